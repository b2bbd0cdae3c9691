package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/pmuprofit/coursegate/app/models"
	"github.com/pmuprofit/coursegate/internal/pkg/products"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentProvider is the authoritative source of payment state.
type PaymentProvider interface {
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*PaymentDetails, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentDetails, error)
}

// Recorder receives reconciliation outcomes. metrics.Metrics implements it.
type Recorder interface {
	ObserveReconciliation(outcome string)
	ObserveEntitlementUpsert(result string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveReconciliation(string)    {}
func (nopRecorder) ObserveEntitlementUpsert(string) {}

// Service turns payment events into purchase and entitlement records.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	repo     Repository
	provider PaymentProvider
	recorder Recorder
	now      func() time.Time
}

type Option func(*Service)

// WithRecorder sets the sink for reconciliation metrics.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a billing service from an injected repository and provider.
func NewService(repo Repository, provider PaymentProvider, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		provider: provider,
		recorder: nopRecorder{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, provider PaymentProvider, opts ...Option) *Service {
	return NewService(NewRepository(db), provider, opts...)
}

// ReconcileFromPaymentEvent creates the entitlements implied by a completed
// payment exactly once per (user, product). ref is a checkout session id
// (cs_...) or a payment intent id (pi_...). Repeated and concurrent calls for
// the same payment converge on one purchase and one entitlement per product.
//
// Errors are returned only for preconditions: an unknown reference shape,
// provider failures, ErrPaymentNotCompleted, ErrMissingPrincipal,
// ErrPrincipalMismatch and store failures before any entitlement is written.
// Individual entitlement failures are reported in the result.
func (s *Service) ReconcileFromPaymentEvent(ctx context.Context, ref string, opts ReconcileOptions) (*ReconciliationResult, error) {
	ref = strings.TrimSpace(ref)
	kind, err := KindOfReference(ref)
	if err != nil {
		s.recorder.ObserveReconciliation("error")
		return nil, fmt.Errorf("%w: %q", err, ref)
	}

	details, err := s.fetch(ctx, kind, ref)
	if err != nil {
		s.recorder.ObserveReconciliation("error")
		return nil, fmt.Errorf("retrieve %s %s: %w", kind, ref, err)
	}
	if !details.Paid {
		s.recorder.ObserveReconciliation("payment_not_completed")
		return &ReconciliationResult{
			Success:      false,
			Entitlements: []models.Entitlement{},
			Message:      fmt.Sprintf("payment not completed (status=%s)", details.Status),
		}, ErrPaymentNotCompleted
	}

	principal, err := effectivePrincipal(opts, details.Metadata)
	if err != nil {
		if errors.Is(err, ErrMissingPrincipal) {
			s.recorder.ObserveReconciliation("missing_principal")
		} else {
			s.recorder.ObserveReconciliation("error")
		}
		return nil, err
	}

	purchase, err := s.repo.FindPurchaseByReference(ctx, details.CheckoutSessionID, details.PaymentIntentID)
	if err != nil {
		s.recorder.ObserveReconciliation("error")
		return nil, err
	}

	if purchase != nil && purchase.EntitlementsCreated {
		ents, err := s.repo.ListEntitlements(ctx, principal, idStrings(s.impliedProducts(purchase, details.Metadata, nil)))
		if err != nil {
			s.recorder.ObserveReconciliation("error")
			return nil, err
		}
		s.recorder.ObserveReconciliation("already_reconciled")
		return &ReconciliationResult{
			Success:           true,
			PurchaseID:        purchase.ID,
			UserID:            principal,
			Entitlements:      ents,
			AlreadyReconciled: true,
			Message:           "entitlements already created",
		}, nil
	}

	var failed []string
	if purchase == nil {
		var unknown []string
		purchase, unknown, err = s.createPurchase(ctx, principal, details, opts.SpecificProduct)
		if err != nil {
			s.recorder.ObserveReconciliation("error")
			return nil, err
		}
		failed = append(failed, unknown...)
	} else if err := s.repo.AttachPurchaseReferences(ctx, purchase.ID, details.CheckoutSessionID, details.PaymentIntentID); err != nil {
		log.Warnf("[reconcile] purchase %s: attach references failed: %v", purchase.ID, err)
	}
	if purchase.UserID != principal {
		log.Warnf("[reconcile] purchase %s belongs to %s, granting to %s", purchase.ID, purchase.UserID, principal)
	}

	result := &ReconciliationResult{
		PurchaseID:   purchase.ID,
		UserID:       principal,
		Entitlements: []models.Entitlement{},
	}
	granted := 0
	for _, productID := range s.impliedProducts(purchase, details.Metadata, &failed) {
		ent := &models.Entitlement{
			UserID:     principal,
			ProductID:  productID.String(),
			SourceType: models.EntitlementSourcePurchase,
			SourceID:   purchase.ID,
			ValidFrom:  s.now(),
			IsActive:   true,
		}
		write, stored, err := s.repo.ActivateEntitlement(ctx, ent)
		if err != nil {
			log.Errorf("[reconcile] purchase %s: entitlement for product %s failed: %v", purchase.ID, productID, err)
			s.recorder.ObserveEntitlementUpsert("failed")
			failed = append(failed, productID.String())
			continue
		}
		s.recorder.ObserveEntitlementUpsert(string(write))
		switch write {
		case EntitlementCreated:
			result.Created++
		case EntitlementReactivated:
			log.Infof("[reconcile] purchase %s reactivated product %s for user %s", purchase.ID, productID, principal)
		}
		result.Entitlements = append(result.Entitlements, *stored)
		if stored.IsCurrent(s.now()) {
			granted++
		}
	}
	for _, f := range failed {
		log.Warnf("[reconcile] purchase %s: could not grant %q", purchase.ID, f)
	}
	result.Failed = failed

	if err := s.repo.MarkPurchaseReconciled(ctx, purchase.ID, s.now()); err != nil {
		log.Errorf("[reconcile] purchase %s: mark completed failed: %v", purchase.ID, err)
	}

	result.Success = granted > 0
	switch {
	case !result.Success:
		result.Message = "no entitlement could be created"
		s.recorder.ObserveReconciliation("error")
	case len(failed) > 0:
		result.Message = fmt.Sprintf("entitlements created with %d failure(s)", len(failed))
		s.recorder.ObserveReconciliation("completed")
	default:
		result.Message = "entitlements created"
		s.recorder.ObserveReconciliation("completed")
	}
	log.Infof("[reconcile] purchase %s (%s) user %s: %d entitlement(s), %d new, %d failed", purchase.ID, purchase.ExternalRef(), principal, granted, result.Created, len(failed))
	return result, nil
}

// UpdatePurchaseStatus moves the purchase carrying the payment intent to status.
func (s *Service) UpdatePurchaseStatus(ctx context.Context, paymentIntentID, status string) (bool, error) {
	pi := strings.TrimSpace(paymentIntentID)
	if pi == "" {
		return false, errors.New("payment_intent_id is required")
	}
	if !models.IsValidPurchaseStatus(status) {
		return false, fmt.Errorf("invalid purchase status %q", status)
	}
	n, err := s.repo.UpdatePurchaseStatusByPaymentIntent(ctx, pi, status)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GrantEntitlement creates or reactivates an entitlement outside the payment flow.
func (s *Service) GrantEntitlement(ctx context.Context, in GrantInput) (*models.Entitlement, error) {
	userID, ok := validPrincipal(in.UserID)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a valid user id", ErrMissingPrincipal, in.UserID)
	}
	productID, err := products.Normalize(in.ProductID)
	if err != nil {
		return nil, err
	}
	source := strings.ToLower(strings.TrimSpace(in.SourceType))
	if source == "" {
		source = models.EntitlementSourceManual
	}
	if !models.IsValidEntitlementSource(source) {
		return nil, fmt.Errorf("invalid source type %q", in.SourceType)
	}

	ent, err := s.repo.UpsertActiveEntitlement(ctx, &models.Entitlement{
		UserID:     userID,
		ProductID:  productID.String(),
		SourceType: source,
		SourceID:   strings.TrimSpace(in.SourceID),
		ValidFrom:  s.now(),
		IsActive:   true,
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[billing] granted %s to %s (source=%s)", productID, userID, source)
	return ent, nil
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		ObjectRef:       strings.TrimSpace(in.ObjectRef),
		PayloadJSON:     in.PayloadJSON,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, errMsg)
}

func (s *Service) fetch(ctx context.Context, kind ReferenceKind, ref string) (*PaymentDetails, error) {
	if s.provider == nil {
		return nil, errors.New("payment provider not configured")
	}
	var (
		details *PaymentDetails
		err     error
	)
	switch kind {
	case ReferenceCheckoutSession:
		details, err = s.provider.RetrieveCheckoutSession(ctx, ref)
	case ReferencePaymentIntent:
		details, err = s.provider.RetrievePaymentIntent(ctx, ref)
	default:
		return nil, ErrUnknownReference
	}
	if err != nil {
		return nil, err
	}
	if details.Metadata == nil {
		details.Metadata = map[string]string{}
	}
	return details, nil
}

func (s *Service) createPurchase(ctx context.Context, principal string, details *PaymentDetails, specific string) (*models.Purchase, []string, error) {
	declared, unknown := normalizeAll(declaredProducts(specific, details.Metadata))
	addons, _ := normalizeAll(flaggedAddons(details.Metadata))
	ids, _ := normalizeAll(append(idStrings(declared), idStrings(addons)...))

	meta := datatypes.JSONMap{}
	for k, v := range details.Metadata {
		meta[k] = v
	}
	purchase := &models.Purchase{
		UserID:        principal,
		ProductIDs:    datatypes.JSONSlice[string](idStrings(ids)),
		Amount:        details.Amount,
		Currency:      details.Currency,
		Status:        models.PurchaseStatusPending,
		CustomerEmail: firstNonEmpty(details.CustomerEmail, details.Metadata[MetadataEmail]),
		Metadata:      meta,
	}
	if details.CheckoutSessionID != "" {
		cs := details.CheckoutSessionID
		purchase.StripeCheckoutSessionID = &cs
	}
	if details.PaymentIntentID != "" {
		pi := details.PaymentIntentID
		purchase.StripePaymentIntentID = &pi
	}

	created, stored, err := s.repo.CreatePurchaseIfNotExists(ctx, purchase)
	if err != nil {
		return nil, nil, err
	}
	if created {
		log.Infof("[reconcile] created purchase %s for %s", stored.ID, principal)
	}
	return stored, unknown, nil
}

// impliedProducts is the base product, the purchase's products and any add-on
// flagged in metadata, in that order and without duplicates. Legacy rows that
// only carry a product slug are normalized here. Unknown refs are appended to
// failed when it is non-nil.
func (s *Service) impliedProducts(p *models.Purchase, meta map[string]string, failed *[]string) []products.ID {
	refs := []string{products.BaseProductID.String()}
	refs = append(refs, p.ProductIDs...)
	if len(p.ProductIDs) == 0 && strings.TrimSpace(p.ProductID) != "" {
		refs = append(refs, p.ProductID)
	}
	refs = append(refs, flaggedAddons(meta)...)

	ids, unknown := normalizeAll(refs)
	if failed != nil {
		*failed = append(*failed, unknown...)
	}
	return ids
}

func effectivePrincipal(opts ReconcileOptions, meta map[string]string) (string, error) {
	fromMeta := principalFromMetadata(meta)
	override := strings.TrimSpace(opts.PrincipalOverride)

	if override != "" {
		id, ok := validPrincipal(override)
		if !ok {
			return "", fmt.Errorf("%w: override %q is not a valid user id", ErrMissingPrincipal, override)
		}
		if opts.RequireMetadataMatch && fromMeta != "" {
			if metaID, ok := validPrincipal(fromMeta); ok && metaID != id {
				return "", ErrPrincipalMismatch
			}
		}
		return id, nil
	}
	if fromMeta == "" {
		return "", ErrMissingPrincipal
	}
	id, ok := validPrincipal(fromMeta)
	if !ok {
		return "", fmt.Errorf("%w: metadata user id %q is not a valid user id", ErrMissingPrincipal, fromMeta)
	}
	return id, nil
}

func idStrings(ids []products.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
