package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmuprofit/coursegate/app/models"
	"github.com/pmuprofit/coursegate/internal/pkg/database"
)

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	return NewFactory(db)
}

func strPtr(s string) *string { return &s }

func TestFactoryReturnsSingleton(t *testing.T) {
	f := newTestFactory(t)

	first := f.GetRepositories()
	assert.Same(t, first, f.GetRepositories())
	assert.Equal(t, first.Entitlement, f.GetEntitlementRepository())
	assert.Equal(t, first.Purchase, f.GetPurchaseRepository())
	assert.NotNil(t, f.DB())
}

func TestEntitlementActiveScope(t *testing.T) {
	f := newTestFactory(t)
	ctx := context.Background()
	userID := uuid.NewString()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	rows := []models.Entitlement{
		{UserID: userID, ProductID: uuid.NewString(), ValidFrom: now.Add(-2 * time.Hour), IsActive: true},
		{UserID: userID, ProductID: uuid.NewString(), ValidFrom: now.Add(-2 * time.Hour), ValidUntil: &past, IsActive: true},
		{UserID: userID, ProductID: uuid.NewString(), ValidFrom: now.Add(time.Hour), IsActive: true},
		{UserID: uuid.NewString(), ProductID: uuid.NewString(), ValidFrom: now.Add(-2 * time.Hour), IsActive: true},
	}
	for i := range rows {
		require.NoError(t, f.DB().Create(&rows[i]).Error)
	}

	repo := f.GetEntitlementRepository()
	active, err := repo.ListActiveByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, rows[0].ID, active[0].ID)

	scoped, err := repo.ListActiveByUserAndProducts(ctx, userID, []string{rows[0].ProductID, rows[1].ProductID})
	require.NoError(t, err)
	require.Len(t, scoped, 1)

	empty, err := repo.ListActiveByUserAndProducts(ctx, userID, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	n, err := repo.CountActive(ctx, userID, rows[1].ProductID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEntitlementDeactivate(t *testing.T) {
	f := newTestFactory(t)
	ctx := context.Background()
	ent := models.Entitlement{UserID: uuid.NewString(), ProductID: uuid.NewString(), IsActive: true}
	require.NoError(t, f.DB().Create(&ent).Error)
	assert.Equal(t, models.EntitlementSourcePurchase, ent.SourceType)

	repo := f.GetEntitlementRepository()
	got, err := repo.Deactivate(ctx, ent.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	n, err := repo.CountActive(ctx, ent.UserID, ent.ProductID)
	require.NoError(t, err)
	assert.Zero(t, n)

	stored, err := repo.GetByID(ctx, ent.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	_, err = repo.Deactivate(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPurchaseListAndDelete(t *testing.T) {
	f := newTestFactory(t)
	ctx := context.Background()
	userID := uuid.NewString()
	base := time.Now().UTC().Add(-time.Hour)

	older := models.Purchase{UserID: userID, StripeCheckoutSessionID: strPtr("cs_older"), Currency: "eur", CreatedAt: base}
	newer := models.Purchase{UserID: userID, StripePaymentIntentID: strPtr("pi_newer"), CreatedAt: base.Add(time.Minute)}
	require.NoError(t, f.DB().Create(&older).Error)
	require.NoError(t, f.DB().Create(&newer).Error)

	repo := f.GetPurchaseRepository()
	list, err := repo.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, "EUR", list[1].Currency)
	assert.Equal(t, models.PurchaseStatusPending, list[1].Status)
	assert.Equal(t, "cs_older", list[1].ExternalRef())
	assert.Equal(t, "pi_newer", list[0].ExternalRef())

	require.NoError(t, repo.Delete(ctx, older.ID))
	assert.ErrorIs(t, repo.Delete(ctx, older.ID), ErrNotFound)
	_, err = repo.GetByID(ctx, older.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := repo.GetByID(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, userID, got.UserID)
}

func TestNewDataStoreError(t *testing.T) {
	assert.NoError(t, NewDataStoreError("noop", nil))

	err := NewDataStoreError("list purchases", ErrNotFound)
	var dse *DataStoreError
	require.ErrorAs(t, err, &dse)
	assert.Equal(t, "list purchases", dse.Op)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "data store: list purchases: record not found", err.Error())
}
