package billing

import (
	"encoding/json"
	"errors"
	"strings"
)

// Stripe event types handled by the webhook
const (
	EventCheckoutSessionCompleted    = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceed = "checkout.session.async_payment_succeeded"
	EventPaymentIntentSucceeded      = "payment_intent.succeeded"
	EventPaymentIntentFailed         = "payment_intent.payment_failed"
	EventChargeRefunded              = "charge.refunded"
)

// StripeEvent is the part of a Stripe event envelope the webhook acts on.
type StripeEvent struct {
	ID       string
	Type     string
	ObjectID string
	// PaymentIntentID is the object's payment intent: the object itself for
	// payment_intent events, its payment_intent field otherwise.
	PaymentIntentID string
}

type stripeEventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string          `json:"id"`
			Object        string          `json:"object"`
			PaymentIntent json.RawMessage `json:"payment_intent"`
		} `json:"object"`
	} `json:"data"`
}

func ParseStripeEvent(payload []byte) (*StripeEvent, error) {
	var env stripeEventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, err
	}
	if strings.TrimSpace(env.Type) == "" {
		return nil, errors.New("stripe event without type")
	}
	obj := env.Data.Object
	ev := &StripeEvent{
		ID:       strings.TrimSpace(env.ID),
		Type:     strings.TrimSpace(env.Type),
		ObjectID: strings.TrimSpace(obj.ID),
	}
	if obj.Object == "payment_intent" {
		ev.PaymentIntentID = ev.ObjectID
	} else {
		ev.PaymentIntentID = expandableID(obj.PaymentIntent)
	}
	return ev, nil
}

// IsCompletionEvent reports event types that trigger reconciliation.
func IsCompletionEvent(eventType string) bool {
	switch eventType {
	case EventCheckoutSessionCompleted, EventCheckoutAsyncPaymentSucceed, EventPaymentIntentSucceeded:
		return true
	default:
		return false
	}
}
