package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pmuprofit/coursegate/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com/v1"

// StripeClient retrieves checkout sessions and payment intents from the
// Stripe REST API. It is safe for concurrent use.
type StripeClient struct {
	SecretKey  string
	APIBaseURL string
	HTTPClient *http.Client
	// RetryDelay is the pause before the single retry of a failed request.
	RetryDelay time.Duration
}

func NewStripeClientFromEnv() *StripeClient {
	return &StripeClient{
		SecretKey:  strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		RetryDelay: 500 * time.Millisecond,
	}
}

type stripeMetadata map[string]string

type stripeCheckoutSession struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	AmountTotal   int64           `json:"amount_total"`
	Currency      string          `json:"currency"`
	PaymentIntent json.RawMessage `json:"payment_intent"`
	CustomerEmail string          `json:"customer_email"`
	Customer      struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Metadata stripeMetadata `json:"metadata"`
}

type stripePaymentIntent struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	Amount         int64          `json:"amount"`
	AmountReceived int64          `json:"amount_received"`
	Currency       string         `json:"currency"`
	ReceiptEmail   string         `json:"receipt_email"`
	Metadata       stripeMetadata `json:"metadata"`
}

type stripeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// RetrieveCheckoutSession loads a checkout session. Paid is true when the
// session's payment_status is "paid".
func (c *StripeClient) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*PaymentDetails, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, errors.New("checkout session id is required")
	}

	var cs stripeCheckoutSession
	if err := c.get(ctx, "/checkout/sessions/"+url.PathEscape(id), &cs); err != nil {
		return nil, err
	}
	if cs.ID == "" {
		return nil, errors.New("stripe checkout session response missing id")
	}

	email := cs.CustomerEmail
	if email == "" {
		email = cs.Customer.Email
	}
	return &PaymentDetails{
		Kind:              ReferenceCheckoutSession,
		CheckoutSessionID: cs.ID,
		PaymentIntentID:   expandableID(cs.PaymentIntent),
		Amount:            cs.AmountTotal,
		Currency:          strings.ToUpper(cs.Currency),
		Status:            cs.PaymentStatus,
		Paid:              cs.PaymentStatus == "paid",
		CustomerEmail:     email,
		Metadata:          cs.Metadata,
	}, nil
}

// RetrievePaymentIntent loads a payment intent. Paid is true when the
// intent's status is "succeeded".
func (c *StripeClient) RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentDetails, error) {
	id := strings.TrimSpace(intentID)
	if id == "" {
		return nil, errors.New("payment intent id is required")
	}

	var pi stripePaymentIntent
	if err := c.get(ctx, "/payment_intents/"+url.PathEscape(id), &pi); err != nil {
		return nil, err
	}
	if pi.ID == "" {
		return nil, errors.New("stripe payment intent response missing id")
	}

	amount := pi.AmountReceived
	if amount == 0 {
		amount = pi.Amount
	}
	return &PaymentDetails{
		Kind:            ReferencePaymentIntent,
		PaymentIntentID: pi.ID,
		Amount:          amount,
		Currency:        strings.ToUpper(pi.Currency),
		Status:          pi.Status,
		Paid:            pi.Status == "succeeded",
		CustomerEmail:   pi.ReceiptEmail,
		Metadata:        pi.Metadata,
	}, nil
}

func (c *StripeClient) get(ctx context.Context, path string, out any) error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("STRIPE_SECRET_KEY is not configured")
	}

	err := c.doGet(ctx, path, out)
	if err == nil || !isRetryable(err) || ctx.Err() != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return err
	case <-time.After(c.RetryDelay):
	}
	return c.doGet(ctx, path, out)
}

func (c *StripeClient) doGet(ctx context.Context, path string, out any) error {
	base := strings.TrimRight(c.APIBaseURL, "/")
	if base == "" {
		base = defaultStripeAPIBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var stripeErr stripeErrorResponse
		_ = json.Unmarshal(body, &stripeErr)
		message := strings.TrimSpace(stripeErr.Error.Message)
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &ProviderError{StatusCode: resp.StatusCode, Type: stripeErr.Error.Type, Message: message}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode stripe response: %w", err)
	}
	return nil
}

func (c *StripeClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func isRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	// transport level failure
	return true
}

// expandableID reads a Stripe field that is either an id string or an expanded object.
func expandableID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}
