package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pmuprofit/coursegate/app/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned by lookups by primary key that match nothing.
var ErrNotFound = errors.New("record not found")

// entitlementRepository implements the EntitlementRepository interface
type entitlementRepository struct {
	db *gorm.DB
}

// NewEntitlementRepository creates a new entitlement repository instance
func NewEntitlementRepository(db *gorm.DB) EntitlementRepository {
	return &entitlementRepository{db: db}
}

// GetByID retrieves an entitlement by its ID
func (r *entitlementRepository) GetByID(ctx context.Context, id string) (*models.Entitlement, error) {
	var e models.Entitlement
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, NewDataStoreError("get entitlement", err)
	}
	return &e, nil
}

// ListActiveByUser returns all currently valid entitlements of a user
func (r *entitlementRepository) ListActiveByUser(ctx context.Context, userID string) ([]models.Entitlement, error) {
	out := []models.Entitlement{}
	err := r.activeScope(ctx, time.Now().UTC()).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, NewDataStoreError("list entitlements", err)
	}
	return out, nil
}

func (r *entitlementRepository) ListActiveByUserAndProducts(ctx context.Context, userID string, productIDs []string) ([]models.Entitlement, error) {
	if len(productIDs) == 0 {
		return []models.Entitlement{}, nil
	}
	out := []models.Entitlement{}
	err := r.activeScope(ctx, time.Now().UTC()).
		Where("user_id = ? AND product_id IN ?", userID, productIDs).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, NewDataStoreError("list entitlements by product", err)
	}
	return out, nil
}

// CountActive counts valid entitlements for one (user, product) pair
func (r *entitlementRepository) CountActive(ctx context.Context, userID, productID string) (int64, error) {
	var n int64
	err := r.activeScope(ctx, time.Now().UTC()).
		Model(&models.Entitlement{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Count(&n).Error
	if err != nil {
		return 0, NewDataStoreError("count entitlements", err)
	}
	return n, nil
}

// Deactivate revokes an entitlement without deleting the row
func (r *entitlementRepository) Deactivate(ctx context.Context, id string) (*models.Entitlement, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Entitlement{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()})
	if tx.Error != nil {
		return nil, NewDataStoreError("deactivate entitlement", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *entitlementRepository) activeScope(ctx context.Context, now time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("valid_from <= ?", now).
		Where("valid_until IS NULL OR valid_until > ?", now)
}
