package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EntitlementSourcePurchase  = "purchase"
	EntitlementSourceCheckout  = "checkout"
	EntitlementSourceManual    = "manual"
	EntitlementSourceGift      = "gift"
	EntitlementSourcePromotion = "promotion"
	EntitlementSourceBundle    = "bundle"
)

// Entitlement is a durable access grant of one product to one user.
// (user_id, product_id) is unique; revocation flips IsActive.
type Entitlement struct {
	ID         string     `gorm:"type:char(36);primaryKey" json:"id"`
	UserID     string     `gorm:"type:char(36);not null;index:ux_user_entitlements_user_product,unique,priority:1;index:idx_user_entitlements_user_active,priority:1" json:"user_id"`
	ProductID  string     `gorm:"type:char(36);not null;index:ux_user_entitlements_user_product,unique,priority:2" json:"product_id"`
	SourceType string     `gorm:"type:varchar(20);not null;default:'purchase'" json:"source_type"`
	SourceID   string     `gorm:"type:varchar(191);default:''" json:"source_id"`
	ValidFrom  time.Time  `gorm:"type:timestamp;not null" json:"valid_from"`
	ValidUntil *time.Time `gorm:"type:timestamp;default:null" json:"valid_until,omitempty"`
	IsActive   bool       `gorm:"not null;default:true;index:idx_user_entitlements_user_active,priority:2" json:"is_active"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Entitlement) TableName() string {
	return "user_entitlements"
}

func (e *Entitlement) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ValidFrom.IsZero() {
		e.ValidFrom = time.Now().UTC()
	}
	if e.SourceType == "" {
		e.SourceType = EntitlementSourcePurchase
	}
	return nil
}

// IsCurrent reports whether the grant is active and inside its validity window.
func (e *Entitlement) IsCurrent(now time.Time) bool {
	if !e.IsActive {
		return false
	}
	if now.Before(e.ValidFrom) {
		return false
	}
	return e.ValidUntil == nil || now.Before(*e.ValidUntil)
}

func IsValidEntitlementSource(source string) bool {
	switch source {
	case EntitlementSourcePurchase, EntitlementSourceCheckout, EntitlementSourceManual,
		EntitlementSourceGift, EntitlementSourcePromotion, EntitlementSourceBundle:
		return true
	default:
		return false
	}
}
