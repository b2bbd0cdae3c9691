package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStripeEvent(t *testing.T) {
	ev, err := ParseStripeEvent([]byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session","payment_intent":"pi_1"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, "cs_1", ev.ObjectID)
	assert.Equal(t, "pi_1", ev.PaymentIntentID)
	assert.True(t, IsCompletionEvent(ev.Type))

	ev, err = ParseStripeEvent([]byte(`{"id":"evt_2","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_2","object":"payment_intent"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "pi_2", ev.PaymentIntentID)
	assert.False(t, IsCompletionEvent(ev.Type))

	ev, err = ParseStripeEvent([]byte(`{"id":"evt_3","type":"charge.refunded","data":{"object":{"id":"ch_3","object":"charge","payment_intent":{"id":"pi_3"}}}}`))
	require.NoError(t, err)
	assert.Equal(t, "pi_3", ev.PaymentIntentID)
}

func TestParseStripeEventRejects(t *testing.T) {
	_, err := ParseStripeEvent([]byte(`not json`))
	assert.Error(t, err)
	_, err = ParseStripeEvent([]byte(`{"id":"evt_1"}`))
	assert.Error(t, err)
}
