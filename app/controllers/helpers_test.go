package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pmuprofit/coursegate/app/repository"
	"github.com/pmuprofit/coursegate/internal/pkg/billing"
	"github.com/pmuprofit/coursegate/internal/pkg/database"
	"github.com/pmuprofit/coursegate/internal/pkg/entitlements"
	"github.com/pmuprofit/coursegate/internal/pkg/identity"
	"github.com/pmuprofit/coursegate/internal/pkg/usercontext"
)

const (
	buyerID    = "6f1c2b9e-3a47-4e0f-9a55-1d2c3b4a5f60"
	strangerID = "0b7e5d3c-8f21-4a6b-9c4d-2e1f0a9b8c7d"
	testSecret = "whsec_test_secret"
	testUserHd = "X-Test-User"
)

type fakeProvider struct {
	mu       sync.Mutex
	sessions map[string]*billing.PaymentDetails
	intents  map[string]*billing.PaymentDetails
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		sessions: map[string]*billing.PaymentDetails{},
		intents:  map[string]*billing.PaymentDetails{},
	}
}

func (f *fakeProvider) RetrieveCheckoutSession(_ context.Context, id string) (*billing.PaymentDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.sessions[id]
	if !ok {
		return nil, &billing.ProviderError{StatusCode: http.StatusNotFound, Message: "No such checkout.session"}
	}
	cp := *d
	return &cp, nil
}

func (f *fakeProvider) RetrievePaymentIntent(_ context.Context, id string) (*billing.PaymentDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.intents[id]
	if !ok {
		return nil, &billing.ProviderError{StatusCode: http.StatusNotFound, Message: "No such payment_intent"}
	}
	cp := *d
	return &cp, nil
}

func (f *fakeProvider) addSession(cs, pi string, paid bool, meta map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := "unpaid"
	if paid {
		status = "paid"
	}
	f.sessions[cs] = &billing.PaymentDetails{
		Kind:              billing.ReferenceCheckoutSession,
		CheckoutSessionID: cs,
		PaymentIntentID:   pi,
		Amount:            49700,
		Currency:          "EUR",
		Status:            status,
		Paid:              paid,
		Metadata:          meta,
	}
}

type webhookLog struct {
	mu      sync.Mutex
	results []string
}

func (w *webhookLog) ObserveWebhookEvent(eventType, result string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.results = append(w.results, eventType+":"+result)
}

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	provider *fakeProvider
	webhooks *webhookLog
}

// newTestEnv mounts the controllers on a bare app. The principal comes from
// the X-Test-User header instead of the identity resolver.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)

	provider := newFakeProvider()
	svc := billing.NewServiceFromDB(db, provider)
	repos := repository.NewRepositories(db)
	hooks := &webhookLog{}

	bc := NewBillingController(BillingControllerConfig{
		Reconciler:       svc,
		WebhookSecret:    testSecret,
		WebhookTolerance: billing.DefaultSignatureTolerance,
		Recorder:         hooks,
	})
	ec := NewEntitlementController(entitlements.NewService(repos.Entitlement, 0), svc, repos)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if id := c.Get(testUserHd); id != "" {
			usercontext.Set(c, usercontext.UserContext{UserID: id, IsLoggedIn: true, Source: string(identity.SourceAuthCookie)})
		}
		return c.Next()
	})
	app.Post("/api/webhooks/stripe", bc.HandleStripeWebhook)
	app.Post("/api/verify-payment", bc.HandleVerifyPayment)
	app.Get("/api/user-entitlements", ec.HandleListEntitlements)
	app.Get("/api/user-purchases", ec.HandleListPurchases)
	app.Get("/api/check-entitlements", ec.HandleCheckEntitlement)
	app.Post("/api/admin/entitlements", ec.HandleAdminGrant)
	app.Post("/api/admin/entitlements/:id/revoke", ec.HandleAdminRevoke)
	app.Delete("/api/admin/purchases/:id", ec.HandleAdminDeletePurchase)

	return &testEnv{app: app, db: db, provider: provider, webhooks: hooks}
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}
