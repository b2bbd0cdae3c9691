package billing

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/pmuprofit/coursegate/app/models"
)

// Webhook processing results, also used as metric labels.
const (
	WebhookProcessed = "processed"
	WebhookPending   = "pending"
	WebhookIgnored   = "ignored"
	WebhookFailed    = "failed"
)

// WebhookOutcome is what applying one event did.
type WebhookOutcome struct {
	Result         string
	Reconciliation *ReconciliationResult
	// Updated is set for status events that matched a purchase.
	Updated bool
}

// ApplyStripeEvent runs the state change an event asks for. Completion
// events reconcile; failed payments and refunds update the purchase status.
// Other event types are ignored. An unpaid completion is pending, not an error.
func (s *Service) ApplyStripeEvent(ctx context.Context, event *StripeEvent) (WebhookOutcome, error) {
	switch {
	case IsCompletionEvent(event.Type):
		result, err := s.ReconcileFromPaymentEvent(ctx, event.ObjectID, ReconcileOptions{})
		switch {
		case errors.Is(err, ErrPaymentNotCompleted):
			return WebhookOutcome{Result: WebhookPending, Reconciliation: result}, nil
		case err != nil:
			return WebhookOutcome{Result: WebhookFailed}, err
		}
		return WebhookOutcome{Result: WebhookProcessed, Reconciliation: result}, nil

	case event.Type == EventPaymentIntentFailed:
		return s.applyStatus(ctx, event, models.PurchaseStatusFailed)

	case event.Type == EventChargeRefunded:
		return s.applyStatus(ctx, event, models.PurchaseStatusRefunded)

	default:
		return WebhookOutcome{Result: WebhookIgnored}, nil
	}
}

func (s *Service) applyStatus(ctx context.Context, event *StripeEvent, status string) (WebhookOutcome, error) {
	if event.PaymentIntentID == "" {
		return WebhookOutcome{Result: WebhookIgnored}, nil
	}
	updated, err := s.UpdatePurchaseStatus(ctx, event.PaymentIntentID, status)
	if err != nil {
		return WebhookOutcome{Result: WebhookFailed}, err
	}
	return WebhookOutcome{Result: WebhookProcessed, Updated: updated}, nil
}

// RetryPolicy bounds which failed events are picked up again.
type RetryPolicy struct {
	// MinAge is the pause between attempts on one event.
	MinAge time.Duration
	// MaxAge stops retrying events first received longer ago.
	MaxAge    time.Duration
	BatchSize int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MinAge: 5 * time.Minute, MaxAge: 72 * time.Hour, BatchSize: 50}
}

// RetryFailedWebhooks applies stored events whose last processing failed
// again. It returns how many were attempted and how many now succeeded.
func (s *Service) RetryFailedWebhooks(ctx context.Context, policy RetryPolicy) (attempted, fixed int, err error) {
	if policy.BatchSize <= 0 {
		policy.BatchSize = DefaultRetryPolicy().BatchSize
	}
	now := s.now()
	events, err := s.repo.ListFailedWebhookEvents(ctx, now.Add(-policy.MinAge), now.Add(-policy.MaxAge), policy.BatchSize)
	if err != nil {
		return 0, 0, err
	}

	for _, stored := range events {
		if ctx.Err() != nil {
			return attempted, fixed, ctx.Err()
		}
		attempted++

		event, perr := ParseStripeEvent([]byte(stored.PayloadJSON))
		if perr != nil {
			// stored payloads were verified on receipt, this does not heal
			log.Errorf("[billing] webhook event %d has an unreadable payload: %v", stored.ID, perr)
			_ = s.repo.MarkWebhookProcessed(ctx, stored.ID, "")
			continue
		}

		_, applyErr := s.ApplyStripeEvent(ctx, event)
		if err := s.MarkWebhookProcessed(ctx, stored.ID, applyErr); err != nil {
			log.Errorf("[billing] webhook event %s: mark processed failed: %v", event.ID, err)
			continue
		}
		if applyErr != nil {
			log.Warnf("[billing] retry of webhook event %s failed again: %v", event.ID, applyErr)
			continue
		}
		fixed++
		log.Infof("[billing] retry of webhook event %s (%s) succeeded", event.ID, event.Type)
	}
	return attempted, fixed, nil
}
