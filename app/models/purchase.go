package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	PurchaseStatusPending   = "pending"
	PurchaseStatusCompleted = "completed"
	PurchaseStatusFailed    = "failed"
	PurchaseStatusRefunded  = "refunded"
)

// Purchase records one checkout/payment attempt. The checkout session id and
// the payment intent id are independent unique keys; either one identifies
// the purchase.
type Purchase struct {
	ID                      string                      `gorm:"type:char(36);primaryKey" json:"id"`
	UserID                  string                      `gorm:"type:char(36);not null;index" json:"user_id"`
	ProductIDs              datatypes.JSONSlice[string] `json:"product_ids"`
	ProductID               string                      `gorm:"type:varchar(64);default:''" json:"product_id,omitempty"`
	StripeCheckoutSessionID *string                     `gorm:"type:varchar(191);uniqueIndex:ux_purchases_checkout_session" json:"stripe_checkout_session_id,omitempty"`
	StripePaymentIntentID   *string                     `gorm:"type:varchar(191);uniqueIndex:ux_purchases_payment_intent" json:"stripe_payment_intent_id,omitempty"`
	Amount                  int64                       `gorm:"not null;default:0" json:"amount"`
	Currency                string                      `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency"`
	Status                  string                      `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	EntitlementsCreated     bool                        `gorm:"not null;default:false" json:"entitlements_created"`
	CustomerEmail           string                      `gorm:"type:varchar(255);default:''" json:"customer_email,omitempty"`
	Metadata                datatypes.JSONMap           `json:"metadata,omitempty"`
	CompletedAt             *time.Time                  `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt               time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Purchase) TableName() string {
	return "purchases"
}

func (p *Purchase) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = PurchaseStatusPending
	}
	if p.ProductIDs == nil {
		p.ProductIDs = datatypes.JSONSlice[string]{}
	}
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if p.Currency == "" {
		p.Currency = "EUR"
	}
	return nil
}

// ExternalRef returns whichever payment provider reference is set, preferring
// the checkout session.
func (p *Purchase) ExternalRef() string {
	if p.StripeCheckoutSessionID != nil && *p.StripeCheckoutSessionID != "" {
		return *p.StripeCheckoutSessionID
	}
	if p.StripePaymentIntentID != nil {
		return *p.StripePaymentIntentID
	}
	return ""
}

func IsValidPurchaseStatus(status string) bool {
	switch status {
	case PurchaseStatusPending, PurchaseStatusCompleted, PurchaseStatusFailed, PurchaseStatusRefunded:
		return true
	default:
		return false
	}
}
