// Package entitlements answers read-side access questions for a principal.
package entitlements

import (
	"context"
	"time"

	"github.com/pmuprofit/coursegate/app/models"
	"github.com/pmuprofit/coursegate/app/repository"
	"github.com/pmuprofit/coursegate/internal/pkg/products"
)

const DefaultCheckTimeout = 10 * time.Second

// Checker is the entitlement lookup used by the access gate.
type Checker interface {
	HasProductAccess(ctx context.Context, userID string, productID products.ID) (bool, error)
}

// Grant is an active entitlement joined with catalog metadata.
type Grant struct {
	models.Entitlement
	Product *products.Product `json:"product,omitempty"`
}

// Service reads entitlements through the repository layer. Every call runs
// under the configured timeout.
type Service struct {
	repo    repository.EntitlementRepository
	timeout time.Duration
}

func NewService(repo repository.EntitlementRepository, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return &Service{repo: repo, timeout: timeout}
}

// HasProductAccess reports whether the user holds a current entitlement for
// the product. Store failures are returned as errors, never as false.
func (s *Service) HasProductAccess(ctx context.Context, userID string, productID products.ID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.repo.CountActive(ctx, userID, productID.String())
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListActive returns the user's current grants in creation order.
func (s *Service) ListActive(ctx context.Context, userID string) ([]Grant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.repo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Grant, 0, len(rows))
	for _, row := range rows {
		g := Grant{Entitlement: row}
		if p, ok := products.Lookup(row.ProductID); ok {
			g.Product = &p
		}
		out = append(out, g)
	}
	return out, nil
}
