package repository

import (
	"context"
	"errors"

	"github.com/pmuprofit/coursegate/app/models"
	"gorm.io/gorm"
)

// purchaseRepository implements the PurchaseRepository interface
type purchaseRepository struct {
	db *gorm.DB
}

// NewPurchaseRepository creates a new purchase repository instance
func NewPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &purchaseRepository{db: db}
}

func (r *purchaseRepository) GetByID(ctx context.Context, id string) (*models.Purchase, error) {
	var p models.Purchase
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, NewDataStoreError("get purchase", err)
	}
	return &p, nil
}

// ListByUser returns a user's purchases, newest first
func (r *purchaseRepository) ListByUser(ctx context.Context, userID string) ([]models.Purchase, error) {
	out := []models.Purchase{}
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error
	if err != nil {
		return nil, NewDataStoreError("list purchases", err)
	}
	return out, nil
}

// Delete physically removes a purchase. Administrative cleanup only.
func (r *purchaseRepository) Delete(ctx context.Context, id string) error {
	tx := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Purchase{})
	if tx.Error != nil {
		return NewDataStoreError("delete purchase", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
