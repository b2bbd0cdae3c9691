package router

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmuprofit/coursegate/app/models"
	"github.com/pmuprofit/coursegate/app/repository"
	"github.com/pmuprofit/coursegate/internal/pkg/billing"
	"github.com/pmuprofit/coursegate/internal/pkg/constants"
	"github.com/pmuprofit/coursegate/internal/pkg/database"
	"github.com/pmuprofit/coursegate/internal/pkg/entitlements"
	"github.com/pmuprofit/coursegate/internal/pkg/identity"
	"github.com/pmuprofit/coursegate/internal/pkg/metrics"
	"github.com/pmuprofit/coursegate/internal/pkg/products"
)

const (
	memberID   = "6f1c2b9e-3a47-4e0f-9a55-1d2c3b4a5f60"
	visitorID  = "0b7e5d3c-8f21-4a6b-9c4d-2e1f0a9b8c7d"
	testAdmKey = "admin-secret"
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"path":%q,"user":%q}`, r.URL.Path, r.Header.Get(constants.HeaderUserID))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T, cfg Config) (*fiber.App, *Dependencies) {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)

	repos := repository.NewRepositories(db)
	deps := &Dependencies{
		Config:       cfg,
		DB:           db,
		Resolver:     identity.NewResolver(),
		Billing:      billing.NewServiceFromDB(db, nil),
		Entitlements: entitlements.NewService(repos.Entitlement, time.Second),
		Repositories: repos,
		Metrics:      metrics.New(),
	}
	app := fiber.New()
	InstallRouter(app, deps)
	return app, deps
}

func grantBase(t *testing.T, deps *Dependencies, userID string) {
	t.Helper()
	require.NoError(t, deps.DB.Create(&models.Entitlement{
		UserID:     userID,
		ProductID:  products.BaseProductID.String(),
		SourceType: models.EntitlementSourceManual,
		ValidFrom:  time.Now().UTC().Add(-time.Minute),
		IsActive:   true,
	}).Error)
}

func asUser(req *http.Request, userID string) *http.Request {
	req.AddCookie(&http.Cookie{Name: constants.CookieAuthStatus, Value: constants.AuthStatusAuthenticated})
	req.AddCookie(&http.Cookie{Name: constants.CookieUserID, Value: userID})
	return req
}

func readJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

func TestGatedPagesAreForwardedWithPrincipal(t *testing.T) {
	upstream := newUpstream(t)
	app, deps := newTestApp(t, Config{UpstreamURL: upstream.URL})
	grantBase(t, deps, memberID)

	req := asUser(httptest.NewRequest(http.MethodGet, "/dashboard/lessons/1", nil), memberID)
	req.Header.Set(constants.HeaderUserID, visitorID)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readJSON(t, resp)
	assert.Equal(t, "/dashboard/lessons/1", body["path"])
	assert.Equal(t, memberID, body["user"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/dashboard", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get(fiber.HeaderLocation), constants.LoginRoute+"?redirect="))

	resp, err = app.Test(asUser(httptest.NewRequest(http.MethodGet, "/dashboard", nil), visitorID), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, constants.CheckoutRoute, resp.Header.Get(fiber.HeaderLocation))

	// public pages pass without identity
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(constants.HeaderUserID, visitorID)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "", readJSON(t, resp)["user"])
}

func TestPagesWithoutUpstream(t *testing.T) {
	app, _ := newTestApp(t, Config{})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	app, deps := newTestApp(t, Config{})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/health", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readJSON(t, resp)
	assert.Equal(t, "ok", body["database"])
	assert.Equal(t, "disabled", body["cache"])

	sqlDB, err := deps.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestEntitlementQueryUsesResolvedPrincipal(t *testing.T) {
	app, deps := newTestApp(t, Config{})
	grantBase(t, deps, memberID)

	resp, err := app.Test(asUser(httptest.NewRequest(http.MethodGet, "/api/user-entitlements", nil), memberID), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), readJSON(t, resp)["count"])

	// a spoofed header is not an identity
	req := httptest.NewRequest(http.MethodGet, "/api/user-entitlements", nil)
	req.Header.Set(constants.HeaderUserID, memberID)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRoutesRequireKey(t *testing.T) {
	body := `{"userId":"` + memberID + `","productId":"pmu-profit-system"}`
	newGrant := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/entitlements", strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return req
	}

	disabled, _ := newTestApp(t, Config{})
	resp, err := disabled.Test(newGrant(), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	app, deps := newTestApp(t, Config{AdminAPIKey: testAdmKey})
	resp, err = app.Test(newGrant(), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req := newGrant()
	req.Header.Set(constants.HeaderAdminKey, "wrong")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = newGrant()
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+testAdmKey)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	ok, err := deps.Entitlements.HasProductAccess(req.Context(), memberID, products.BaseProductID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimitSkipsWebhook(t *testing.T) {
	app, _ := newTestApp(t, Config{RateLimitMax: 2, RateLimitWindow: time.Minute, WebhookSecret: "whsec"})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// unsigned deliveries are rejected by the handler, not the limiter
	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(`{}`)), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOpenAPIDocumentIsValid(t *testing.T) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile("../../../public/docs/v1/openapi.yml")
	require.NoError(t, err)
	require.NoError(t, doc.Validate(loader.Context))

	for _, p := range []string{"/webhooks/stripe", "/verify-payment", "/user-entitlements", "/check-entitlements", "/admin/entitlements"} {
		assert.NotNil(t, doc.Paths.Find(p), p)
	}
}
