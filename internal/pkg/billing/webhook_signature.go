package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

const DefaultSignatureTolerance = 5 * time.Minute

// VerifyStripeWebhookSignature checks a Stripe-Signature header
// ("t=<unix>,v1=<hex>[,v1=...]") against the raw payload. A zero tolerance
// disables the timestamp window check.
func VerifyStripeWebhookSignature(payload []byte, signatureHeader, webhookSecret string, tolerance time.Duration, now time.Time) error {
	secret := strings.TrimSpace(webhookSecret)
	if secret == "" {
		return errors.Join(ErrSignatureVerification, errors.New("webhook secret not configured"))
	}
	ts, signatures, err := parseStripeSignature(signatureHeader)
	if err != nil {
		return errors.Join(ErrSignatureVerification, err)
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return errors.Join(ErrSignatureVerification, errors.New("invalid timestamp"))
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(unix, 0))
		if age > tolerance || age < -tolerance {
			return errors.Join(ErrSignatureVerification, errors.New("timestamp outside tolerance"))
		}
	}

	expected := computeStripeSignature(ts, payload, secret)
	for _, sig := range signatures {
		decoded, err := hex.DecodeString(strings.ToLower(sig))
		if err != nil {
			continue
		}
		if hmac.Equal(expected, decoded) {
			return nil
		}
	}
	return ErrSignatureVerification
}

// SignStripePayload builds a Stripe-Signature header value for the payload.
func SignStripePayload(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + hex.EncodeToString(computeStripeSignature(ts, payload, secret))
}

func computeStripeSignature(timestamp string, payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseStripeSignature(header string) (string, []string, error) {
	var timestamp string
	signatures := []string{}
	for _, part := range strings.Split(header, ",") {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		switch strings.TrimSpace(keyValue[0]) {
		case "t":
			timestamp = strings.TrimSpace(keyValue[1])
		case "v1":
			signatures = append(signatures, strings.TrimSpace(keyValue[1]))
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("malformed signature header")
	}
	return timestamp, signatures, nil
}
