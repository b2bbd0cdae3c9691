package billing

import (
	"context"
	"testing"
	"time"

	"github.com/pmuprofit/coursegate/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func paidSession(id string, meta map[string]string) *PaymentDetails {
	return &PaymentDetails{
		Kind:              ReferenceCheckoutSession,
		CheckoutSessionID: id,
		Amount:            49700,
		Currency:          "EUR",
		Status:            "paid",
		Paid:              true,
		Metadata:          meta,
	}
}

func recordFailedEvent(t *testing.T, svc *Service, db *gorm.DB, eventID, sessionID string, age time.Duration) uint {
	t.Helper()
	ctx := context.Background()
	payload := `{"id":"` + eventID + `","type":"checkout.session.completed","data":{"object":{"id":"` + sessionID + `","object":"checkout.session"}}}`
	_, stored, err := svc.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: eventID,
		EventType:       EventCheckoutSessionCompleted,
		ObjectRef:       sessionID,
		PayloadJSON:     payload,
	})
	require.NoError(t, err)

	event, err := ParseStripeEvent([]byte(payload))
	require.NoError(t, err)
	_, applyErr := svc.ApplyStripeEvent(ctx, event)
	require.Error(t, applyErr)
	require.NoError(t, svc.MarkWebhookProcessed(ctx, stored.ID, applyErr))

	past := time.Now().UTC().Add(-age)
	require.NoError(t, db.Model(&models.BillingWebhookEvent{}).Where("id = ?", stored.ID).
		UpdateColumns(map[string]any{"updated_at": past, "created_at": past}).Error)
	return stored.ID
}

func TestApplyStripeEventOutcomes(t *testing.T) {
	svc, provider, _ := newTestService(t)
	ctx := context.Background()
	provider.sessions["cs_apply"] = paidSession("cs_apply", map[string]string{"userId": testUserID})

	out, err := svc.ApplyStripeEvent(ctx, &StripeEvent{ID: "evt_a", Type: EventCheckoutSessionCompleted, ObjectID: "cs_apply"})
	require.NoError(t, err)
	assert.Equal(t, WebhookProcessed, out.Result)
	require.NotNil(t, out.Reconciliation)
	assert.Equal(t, 1, out.Reconciliation.Created)

	out, err = svc.ApplyStripeEvent(ctx, &StripeEvent{ID: "evt_b", Type: "invoice.paid", ObjectID: "in_1"})
	require.NoError(t, err)
	assert.Equal(t, WebhookIgnored, out.Result)

	out, err = svc.ApplyStripeEvent(ctx, &StripeEvent{ID: "evt_c", Type: EventChargeRefunded, ObjectID: "ch_1"})
	require.NoError(t, err)
	assert.Equal(t, WebhookIgnored, out.Result)

	out, err = svc.ApplyStripeEvent(ctx, &StripeEvent{ID: "evt_d", Type: EventPaymentIntentFailed, ObjectID: "pi_unknown", PaymentIntentID: "pi_unknown"})
	require.NoError(t, err)
	assert.Equal(t, WebhookProcessed, out.Result)
	assert.False(t, out.Updated)

	provider.sessions["cs_unpaid"] = &PaymentDetails{Kind: ReferenceCheckoutSession, CheckoutSessionID: "cs_unpaid", Status: "unpaid"}
	out, err = svc.ApplyStripeEvent(ctx, &StripeEvent{ID: "evt_e", Type: EventCheckoutSessionCompleted, ObjectID: "cs_unpaid"})
	require.NoError(t, err)
	assert.Equal(t, WebhookPending, out.Result)
}

func TestRetryFailedWebhooks(t *testing.T) {
	svc, provider, db := newTestService(t)
	ctx := context.Background()
	policy := RetryPolicy{MinAge: time.Minute, MaxAge: time.Hour, BatchSize: 10}

	id := recordFailedEvent(t, svc, db, "evt_retry", "cs_late", 10*time.Minute)
	recordFailedEvent(t, svc, db, "evt_stale", "cs_never", 2*time.Hour)

	// still failing: attempted but not fixed
	attempted, fixed, err := svc.RetryFailedWebhooks(ctx, policy)
	require.NoError(t, err)
	assert.Equal(t, 1, attempted)
	assert.Equal(t, 0, fixed)

	// the failed attempt moved updated_at, so it is not due again yet
	attempted, _, err = svc.RetryFailedWebhooks(ctx, policy)
	require.NoError(t, err)
	assert.Equal(t, 0, attempted)

	provider.sessions["cs_late"] = paidSession("cs_late", map[string]string{"userId": testUserID})
	require.NoError(t, db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).
		UpdateColumn("updated_at", time.Now().UTC().Add(-10*time.Minute)).Error)

	attempted, fixed, err = svc.RetryFailedWebhooks(ctx, policy)
	require.NoError(t, err)
	assert.Equal(t, 1, attempted)
	assert.Equal(t, 1, fixed)
	assert.Len(t, activeProductIDs(t, db, testUserID), 1)

	var stored models.BillingWebhookEvent
	require.NoError(t, db.First(&stored, id).Error)
	assert.Empty(t, stored.ProcessingError)

	attempted, _, err = svc.RetryFailedWebhooks(ctx, policy)
	require.NoError(t, err)
	assert.Equal(t, 0, attempted)
}
