package billing

import (
	"context"
	"errors"
	"time"

	"github.com/pmuprofit/coursegate/app/models"
	"github.com/pmuprofit/coursegate/app/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service. Every
// method returns a *repository.DataStoreError on store failures.
type Repository interface {
	FindPurchaseByReference(ctx context.Context, checkoutSessionID, paymentIntentID string) (*models.Purchase, error)
	CreatePurchaseIfNotExists(ctx context.Context, purchase *models.Purchase) (bool, *models.Purchase, error)
	AttachPurchaseReferences(ctx context.Context, purchaseID, checkoutSessionID, paymentIntentID string) error
	MarkPurchaseReconciled(ctx context.Context, purchaseID string, at time.Time) error
	UpdatePurchaseStatusByPaymentIntent(ctx context.Context, paymentIntentID, status string) (int64, error)
	ActivateEntitlement(ctx context.Context, ent *models.Entitlement) (EntitlementWrite, *models.Entitlement, error)
	UpsertActiveEntitlement(ctx context.Context, ent *models.Entitlement) (*models.Entitlement, error)
	ListEntitlements(ctx context.Context, userID string, productIDs []string) ([]models.Entitlement, error)
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
	ListFailedWebhookEvents(ctx context.Context, lastTriedBefore, receivedAfter time.Time, limit int) ([]models.BillingWebhookEvent, error)
}

// EntitlementWrite tells what ActivateEntitlement did to the stored row.
type EntitlementWrite string

const (
	EntitlementCreated     EntitlementWrite = "created"
	EntitlementReactivated EntitlementWrite = "reactivated"
	EntitlementExisting    EntitlementWrite = "existing"
)

type gormRepository struct {
	db           *gorm.DB
	entitlements repository.EntitlementRepository
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db, entitlements: repository.NewEntitlementRepository(db)}
}

// FindPurchaseByReference matches either provider key. It returns nil, nil
// when no purchase carries any of the given references.
func (r *gormRepository) FindPurchaseByReference(ctx context.Context, checkoutSessionID, paymentIntentID string) (*models.Purchase, error) {
	q := r.db.WithContext(ctx).Model(&models.Purchase{})
	switch {
	case checkoutSessionID != "" && paymentIntentID != "":
		q = q.Where("stripe_checkout_session_id = ? OR stripe_payment_intent_id = ?", checkoutSessionID, paymentIntentID)
	case checkoutSessionID != "":
		q = q.Where("stripe_checkout_session_id = ?", checkoutSessionID)
	case paymentIntentID != "":
		q = q.Where("stripe_payment_intent_id = ?", paymentIntentID)
	default:
		return nil, nil
	}

	var p models.Purchase
	err := q.Order("created_at ASC").First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, repository.NewDataStoreError("find purchase", err)
	}
	return &p, nil
}

// CreatePurchaseIfNotExists inserts the purchase unless one of its unique
// provider references already exists, then returns the stored row.
func (r *gormRepository) CreatePurchaseIfNotExists(ctx context.Context, purchase *models.Purchase) (bool, *models.Purchase, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(purchase)
	if tx.Error != nil {
		return false, nil, repository.NewDataStoreError("create purchase", tx.Error)
	}
	created := tx.RowsAffected > 0

	stored, err := r.FindPurchaseByReference(ctx, deref(purchase.StripeCheckoutSessionID), deref(purchase.StripePaymentIntentID))
	if err != nil {
		return false, nil, err
	}
	if stored == nil {
		return false, nil, repository.NewDataStoreError("create purchase", errors.New("purchase not readable after insert"))
	}
	return created, stored, nil
}

// AttachPurchaseReferences fills provider references the purchase does not carry yet.
func (r *gormRepository) AttachPurchaseReferences(ctx context.Context, purchaseID, checkoutSessionID, paymentIntentID string) error {
	if checkoutSessionID != "" {
		if err := r.db.WithContext(ctx).Model(&models.Purchase{}).
			Where("id = ? AND stripe_checkout_session_id IS NULL", purchaseID).
			Update("stripe_checkout_session_id", checkoutSessionID).Error; err != nil {
			return repository.NewDataStoreError("attach checkout session", err)
		}
	}
	if paymentIntentID != "" {
		if err := r.db.WithContext(ctx).Model(&models.Purchase{}).
			Where("id = ? AND stripe_payment_intent_id IS NULL", purchaseID).
			Update("stripe_payment_intent_id", paymentIntentID).Error; err != nil {
			return repository.NewDataStoreError("attach payment intent", err)
		}
	}
	return nil
}

func (r *gormRepository) MarkPurchaseReconciled(ctx context.Context, purchaseID string, at time.Time) error {
	updates := map[string]interface{}{
		"status":               models.PurchaseStatusCompleted,
		"entitlements_created": true,
		"completed_at":         &at,
		"updated_at":           at,
	}
	err := r.db.WithContext(ctx).Model(&models.Purchase{}).Where("id = ?", purchaseID).Updates(updates).Error
	return repository.NewDataStoreError("mark purchase reconciled", err)
}

func (r *gormRepository) UpdatePurchaseStatusByPaymentIntent(ctx context.Context, paymentIntentID, status string) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("stripe_payment_intent_id = ?", paymentIntentID).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()})
	if tx.Error != nil {
		return 0, repository.NewDataStoreError("update purchase status", tx.Error)
	}
	return tx.RowsAffected, nil
}

// ActivateEntitlement inserts the grant unless (user_id, product_id) already
// exists. A revoked or expired row is reactivated with the new source and
// validity; a current row is returned unchanged.
func (r *gormRepository) ActivateEntitlement(ctx context.Context, ent *models.Entitlement) (EntitlementWrite, *models.Entitlement, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "product_id"},
		},
		DoNothing: true,
	}).Create(ent)
	if tx.Error != nil {
		return "", nil, repository.NewDataStoreError("create entitlement", tx.Error)
	}
	write := EntitlementExisting
	if tx.RowsAffected > 0 {
		write = EntitlementCreated
	} else {
		// only a revoked or lapsed row is touched, so concurrent activations update it once
		upd := r.db.WithContext(ctx).Model(&models.Entitlement{}).
			Where("user_id = ? AND product_id = ?", ent.UserID, ent.ProductID).
			Where("is_active = ? OR (valid_until IS NOT NULL AND valid_until <= ?)", false, ent.ValidFrom).
			Updates(map[string]interface{}{
				"is_active":   true,
				"source_type": ent.SourceType,
				"source_id":   ent.SourceID,
				"valid_from":  ent.ValidFrom,
				"valid_until": ent.ValidUntil,
				"updated_at":  time.Now().UTC(),
			})
		if upd.Error != nil {
			return "", nil, repository.NewDataStoreError("reactivate entitlement", upd.Error)
		}
		if upd.RowsAffected > 0 {
			write = EntitlementReactivated
		}
	}

	var stored models.Entitlement
	if err := r.db.WithContext(ctx).Where("user_id = ? AND product_id = ?", ent.UserID, ent.ProductID).
		First(&stored).Error; err != nil {
		return "", nil, repository.NewDataStoreError("read entitlement", err)
	}
	return write, &stored, nil
}

// UpsertActiveEntitlement inserts the grant or reactivates the existing row
// for (user_id, product_id) with the new source.
func (r *gormRepository) UpsertActiveEntitlement(ctx context.Context, ent *models.Entitlement) (*models.Entitlement, error) {
	ent.IsActive = true
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "product_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"source_type",
			"source_id",
			"valid_from",
			"valid_until",
			"is_active",
			"updated_at",
		}),
	}).Create(ent).Error; err != nil {
		return nil, repository.NewDataStoreError("upsert entitlement", err)
	}

	var stored models.Entitlement
	if err := r.db.WithContext(ctx).Where("user_id = ? AND product_id = ?", ent.UserID, ent.ProductID).
		First(&stored).Error; err != nil {
		return nil, repository.NewDataStoreError("read entitlement", err)
	}
	return &stored, nil
}

// ListEntitlements returns the current grants of a user restricted to productIDs.
func (r *gormRepository) ListEntitlements(ctx context.Context, userID string, productIDs []string) ([]models.Entitlement, error) {
	return r.entitlements.ListActiveByUserAndProducts(ctx, userID, productIDs)
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, repository.NewDataStoreError("create webhook event", tx.Error)
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.WithContext(ctx).Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, repository.NewDataStoreError("read webhook event", err)
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
		"updated_at":       now,
	}
	err := r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
	return repository.NewDataStoreError("mark webhook processed", err)
}

// ListFailedWebhookEvents returns events whose last processing stored an
// error, oldest first.
func (r *gormRepository) ListFailedWebhookEvents(ctx context.Context, lastTriedBefore, receivedAfter time.Time, limit int) ([]models.BillingWebhookEvent, error) {
	out := []models.BillingWebhookEvent{}
	err := r.db.WithContext(ctx).
		Where("processing_error IS NOT NULL AND processing_error <> ''").
		Where("updated_at <= ? AND created_at >= ?", lastTriedBefore, receivedAfter).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, repository.NewDataStoreError("list failed webhook events", err)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
