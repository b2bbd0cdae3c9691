package repository

import (
	"context"

	"github.com/pmuprofit/coursegate/app/models"
	"gorm.io/gorm"
)

// EntitlementRepository defines read and administrative operations on user entitlements
type EntitlementRepository interface {
	GetByID(ctx context.Context, id string) (*models.Entitlement, error)
	ListActiveByUser(ctx context.Context, userID string) ([]models.Entitlement, error)
	ListActiveByUserAndProducts(ctx context.Context, userID string, productIDs []string) ([]models.Entitlement, error)
	CountActive(ctx context.Context, userID, productID string) (int64, error)
	Deactivate(ctx context.Context, id string) (*models.Entitlement, error)
}

// PurchaseRepository defines read and cleanup operations on purchases
type PurchaseRepository interface {
	GetByID(ctx context.Context, id string) (*models.Purchase, error)
	ListByUser(ctx context.Context, userID string) ([]models.Purchase, error)
	Delete(ctx context.Context, id string) error
}

// Repositories holds all repository instances
type Repositories struct {
	Entitlement EntitlementRepository
	Purchase    PurchaseRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Entitlement: NewEntitlementRepository(db),
		Purchase:    NewPurchaseRepository(db),
	}
}
