package billing

import (
	"strings"

	"github.com/pmuprofit/coursegate/app/models"
)

// ReferenceKind is the kind of payment object a reference points at.
type ReferenceKind string

const (
	ReferenceCheckoutSession ReferenceKind = "checkout_session"
	ReferencePaymentIntent   ReferenceKind = "payment_intent"
)

// KindOfReference derives the object kind from the reference prefix.
func KindOfReference(ref string) (ReferenceKind, error) {
	r := strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(r, "cs_") && len(r) > 3:
		return ReferenceCheckoutSession, nil
	case strings.HasPrefix(r, "pi_") && len(r) > 3:
		return ReferencePaymentIntent, nil
	default:
		return "", ErrUnknownReference
	}
}

// PaymentDetails is the authoritative payment state as reported by the
// provider, reduced to what reconciliation needs.
type PaymentDetails struct {
	Kind              ReferenceKind
	CheckoutSessionID string
	PaymentIntentID   string
	// Amount is in minor currency units.
	Amount        int64
	Currency      string
	Status        string
	Paid          bool
	CustomerEmail string
	Metadata      map[string]string
}

// ReconcileOptions narrows a reconciliation call.
type ReconcileOptions struct {
	// PrincipalOverride replaces the user id carried in payment metadata.
	PrincipalOverride string
	// SpecificProduct replaces the product field of payment metadata when a purchase is created.
	SpecificProduct string
	// RequireMetadataMatch rejects an override that differs from a user id present in metadata.
	RequireMetadataMatch bool
}

// ReconciliationResult is the aggregate outcome of one reconciliation call.
type ReconciliationResult struct {
	Success           bool                 `json:"success"`
	PurchaseID        string               `json:"purchaseId,omitempty"`
	UserID            string               `json:"userId,omitempty"`
	Entitlements      []models.Entitlement `json:"entitlements"`
	Created           int                  `json:"created"`
	Failed            []string             `json:"failed,omitempty"`
	AlreadyReconciled bool                 `json:"alreadyReconciled"`
	Message           string               `json:"message"`
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	ObjectRef       string
	PayloadJSON     string
}

// GrantInput describes an administrative entitlement grant.
type GrantInput struct {
	UserID     string
	ProductID  string
	SourceType string
	SourceID   string
}
