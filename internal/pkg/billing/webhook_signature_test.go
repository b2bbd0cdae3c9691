package billing

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestVerifyStripeWebhookSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	secret := "whsec_test"
	now := time.Unix(1_700_000_000, 0)
	header := SignStripePayload(payload, secret, now)

	if err := VerifyStripeWebhookSignature(payload, header, secret, DefaultSignatureTolerance, now); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}

	tests := []struct {
		name    string
		payload []byte
		header  string
		secret  string
		now     time.Time
	}{
		{name: "tampered payload", payload: []byte(`{"id":"evt_2"}`), header: header, secret: secret, now: now},
		{name: "wrong secret", payload: payload, header: header, secret: "whsec_other", now: now},
		{name: "missing secret", payload: payload, header: header, secret: "", now: now},
		{name: "empty header", payload: payload, header: "", secret: secret, now: now},
		{name: "no v1", payload: payload, header: "t=1700000000", secret: secret, now: now},
		{name: "bad hex", payload: payload, header: "t=1700000000,v1=zz", secret: secret, now: now},
		{name: "expired", payload: payload, header: header, secret: secret, now: now.Add(10 * time.Minute)},
	}
	for _, tt := range tests {
		err := VerifyStripeWebhookSignature(tt.payload, tt.header, tt.secret, DefaultSignatureTolerance, tt.now)
		if !errors.Is(err, ErrSignatureVerification) {
			t.Fatalf("%s: expected ErrSignatureVerification, got %v", tt.name, err)
		}
	}
}

func TestVerifyStripeWebhookSignatureAcceptsAnyV1(t *testing.T) {
	payload := []byte(`{}`)
	now := time.Unix(1_700_000_000, 0)
	valid := SignStripePayload(payload, "whsec_new", now)
	sig := strings.SplitN(valid, "v1=", 2)[1]
	header := "t=1700000000,v1=" + strings.Repeat("0", 64) + ",v1=" + sig

	if err := VerifyStripeWebhookSignature(payload, header, "whsec_new", 0, now.Add(time.Hour)); err != nil {
		t.Fatalf("expected rotated signature to verify without tolerance, got %v", err)
	}
}
