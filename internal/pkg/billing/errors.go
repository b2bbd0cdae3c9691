package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrPaymentNotCompleted means the provider reports the payment did not succeed.
	ErrPaymentNotCompleted = errors.New("payment not completed")
	// ErrMissingPrincipal means the payment cannot be attributed to any user.
	ErrMissingPrincipal = errors.New("missing principal")
	// ErrPrincipalMismatch means the requester is not the user the payment was made for.
	ErrPrincipalMismatch = errors.New("principal does not match payment")
	// ErrUnknownReference means the reference is neither a checkout session nor a payment intent.
	ErrUnknownReference = errors.New("unknown payment reference")
	// ErrSignatureVerification means the webhook signature did not verify.
	ErrSignatureVerification = errors.New("webhook signature verification failed")
)

// ProviderError is a non-success answer from the payment provider API.
type ProviderError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("stripe request failed: status=%d type=%s message=%s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("stripe request failed: status=%d message=%s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed when repeated.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
