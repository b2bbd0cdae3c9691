package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/pmuprofit/coursegate/app/models"
	"github.com/pmuprofit/coursegate/internal/pkg/billing"
	"github.com/pmuprofit/coursegate/internal/pkg/constants"
	"github.com/pmuprofit/coursegate/internal/pkg/products"
	"github.com/pmuprofit/coursegate/internal/pkg/usercontext"
)

const billingRequestTimeout = 30 * time.Second

// PaymentReconciler is the part of billing.Service the HTTP layer uses.
type PaymentReconciler interface {
	ReconcileFromPaymentEvent(ctx context.Context, ref string, opts billing.ReconcileOptions) (*billing.ReconciliationResult, error)
	ApplyStripeEvent(ctx context.Context, event *billing.StripeEvent) (billing.WebhookOutcome, error)
	RecordWebhookEvent(ctx context.Context, in billing.WebhookEventInput) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error
}

type WebhookRecorder interface {
	ObserveWebhookEvent(eventType, result string)
}

type nopWebhookRecorder struct{}

func (nopWebhookRecorder) ObserveWebhookEvent(string, string) {}

type BillingControllerConfig struct {
	Reconciler       PaymentReconciler
	WebhookSecret    string
	WebhookTolerance time.Duration
	Recorder         WebhookRecorder
	Now              func() time.Time
}

type BillingController struct {
	reconciler PaymentReconciler
	secret     string
	tolerance  time.Duration
	recorder   WebhookRecorder
	now        func() time.Time
}

func NewBillingController(cfg BillingControllerConfig) *BillingController {
	bc := &BillingController{
		reconciler: cfg.Reconciler,
		secret:     cfg.WebhookSecret,
		tolerance:  cfg.WebhookTolerance,
		recorder:   cfg.Recorder,
		now:        cfg.Now,
	}
	if bc.recorder == nil {
		bc.recorder = nopWebhookRecorder{}
	}
	if bc.now == nil {
		bc.now = time.Now
	}
	return bc
}

// HandleStripeWebhook verifies and records a Stripe event, then applies it.
// Once the event is stored the answer is 200, so Stripe stops redelivering
// events whose processing failed for reasons a retry cannot fix.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := firstHeaderValue(c, constants.HeaderStripeSig)

	if err := billing.VerifyStripeWebhookSignature(rawBody, signature, bc.secret, bc.tolerance, bc.now()); err != nil {
		log.Warnf("[webhook] rejected stripe event: %v", err)
		bc.recorder.ObserveWebhookEvent("unknown", "invalid_signature")
		return jsonError(c, fiber.StatusBadRequest, "invalid_signature", "Webhook signature verification failed")
	}

	event, err := billing.ParseStripeEvent(rawBody)
	if err != nil {
		bc.recorder.ObserveWebhookEvent("unknown", "invalid_payload")
		return jsonError(c, fiber.StatusBadRequest, "invalid_payload", "Webhook payload is not a Stripe event")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), billingRequestTimeout)
	defer cancel()

	created, stored, err := bc.reconciler.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		ObjectRef:       event.ObjectID,
		PayloadJSON:     string(rawBody),
	})
	if err != nil {
		log.Errorf("[webhook] persist event %s failed: %v", event.ID, err)
		bc.recorder.ObserveWebhookEvent(event.Type, "persist_failed")
		return jsonError(c, fiber.StatusInternalServerError, "webhook_persist_failed", "Webhook event could not be stored")
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		bc.recorder.ObserveWebhookEvent(event.Type, "duplicate")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	resp, procErr := bc.applyEvent(ctx, event)
	if err := bc.reconciler.MarkWebhookProcessed(ctx, stored.ID, procErr); err != nil {
		log.Errorf("[webhook] mark event %s processed failed: %v", event.ID, err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (bc *BillingController) applyEvent(ctx context.Context, event *billing.StripeEvent) (fiber.Map, error) {
	outcome, err := bc.reconciler.ApplyStripeEvent(ctx, event)
	bc.recorder.ObserveWebhookEvent(event.Type, outcome.Result)
	if err != nil {
		log.Errorf("[webhook] %s %s (%s) failed: %v", event.Type, event.ObjectID, event.ID, err)
		return fiber.Map{"ok": true, "processed": false, "error": reconcileErrorCode(err)}, err
	}

	switch outcome.Result {
	case billing.WebhookPending:
		return fiber.Map{"ok": true, "pending": true}, nil
	case billing.WebhookIgnored:
		return fiber.Map{"ok": true, "ignored": true}, nil
	}
	resp := fiber.Map{"ok": true, "processed": true}
	if outcome.Reconciliation != nil {
		resp["result"] = outcome.Reconciliation
	} else {
		resp["updated"] = outcome.Updated
	}
	return resp, nil
}

type verifyPaymentRequest struct {
	Reference string `json:"reference" validate:"required,max=255"`
	ProductID string `json:"productId" validate:"omitempty,max=100"`
}

// HandleVerifyPayment runs reconciliation for a payment reference reported
// by the checkout success page, for when the webhook has not arrived yet.
func (bc *BillingController) HandleVerifyPayment(c *fiber.Ctx) error {
	var req verifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_body", "Request body must be JSON")
	}
	req.Reference = strings.TrimSpace(req.Reference)
	if err := validate.Struct(req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "validation_failed", validationMessage(err))
	}

	// only the resolved request identity may name the principal
	principal := usercontext.GetUserID(c)

	ctx, cancel := context.WithTimeout(c.UserContext(), billingRequestTimeout)
	defer cancel()

	result, err := bc.reconciler.ReconcileFromPaymentEvent(ctx, req.Reference, billing.ReconcileOptions{
		PrincipalOverride:    principal,
		SpecificProduct:      req.ProductID,
		RequireMetadataMatch: true,
	})
	if err != nil {
		if errors.Is(err, billing.ErrPaymentNotCompleted) && result != nil {
			return c.Status(fiber.StatusOK).JSON(result)
		}
		log.Warnf("[verify] reference %s: %v", req.Reference, err)
		return jsonError(c, reconcileErrorStatus(err), reconcileErrorCode(err), err.Error())
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func reconcileErrorCode(err error) string {
	var pe *billing.ProviderError
	switch {
	case errors.Is(err, billing.ErrUnknownReference):
		return "invalid_reference"
	case errors.Is(err, billing.ErrMissingPrincipal):
		return "missing_principal"
	case errors.Is(err, billing.ErrPrincipalMismatch):
		return "principal_mismatch"
	case errors.Is(err, products.ErrUnknownProduct):
		return "unknown_product"
	case errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound:
		return "payment_not_found"
	case errors.As(err, &pe):
		return "provider_error"
	default:
		return "reconciliation_failed"
	}
}

func reconcileErrorStatus(err error) int {
	switch reconcileErrorCode(err) {
	case "invalid_reference", "unknown_product":
		return fiber.StatusBadRequest
	case "missing_principal":
		return fiber.StatusUnprocessableEntity
	case "principal_mismatch":
		return fiber.StatusForbidden
	case "payment_not_found":
		return fiber.StatusNotFound
	case "provider_error":
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
