package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory lazily builds the repository set for one database handle.
// It is constructed once per process and safe for concurrent use.
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetEntitlementRepository returns the entitlement repository instance
func (f *Factory) GetEntitlementRepository() EntitlementRepository {
	return f.GetRepositories().Entitlement
}

// GetPurchaseRepository returns the purchase repository instance
func (f *Factory) GetPurchaseRepository() PurchaseRepository {
	return f.GetRepositories().Purchase
}

// DB exposes the underlying handle for health checks.
func (f *Factory) DB() *gorm.DB {
	return f.db
}
