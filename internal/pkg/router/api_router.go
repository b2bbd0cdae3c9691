package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/pmuprofit/coursegate/app/controllers"
	"github.com/pmuprofit/coursegate/internal/pkg/cache"
	"github.com/pmuprofit/coursegate/internal/pkg/middleware"
)

const webhookPath = "/api/webhooks/stripe"

type ApiRouter struct {
	deps *Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	cfg := h.deps.Config

	api := app.Group("/api",
		h.rateLimiter(),
		middleware.PrincipalContext(h.deps.Resolver, cfg.SecureCookies),
	)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})
	api.Get("/health", NewHealthHandler(h.deps.DB, h.deps.Redis))

	billingController := controllers.NewBillingController(controllers.BillingControllerConfig{
		Reconciler:       h.deps.Billing,
		WebhookSecret:    cfg.WebhookSecret,
		WebhookTolerance: cfg.WebhookTolerance,
		Recorder:         h.deps.Metrics,
	})
	api.Post("/webhooks/stripe", billingController.HandleStripeWebhook)
	api.Post("/verify-payment", billingController.HandleVerifyPayment)

	entitlementController := controllers.NewEntitlementController(h.deps.Entitlements, h.deps.Billing, h.deps.Repositories)
	api.Get("/user-entitlements", middleware.RequireAPISessionAuth, entitlementController.HandleListEntitlements)
	api.Get("/user-purchases", middleware.RequireAPISessionAuth, entitlementController.HandleListPurchases)
	api.Get("/check-entitlements", middleware.RequireAPISessionAuth, entitlementController.HandleCheckEntitlement)

	admin := api.Group("/admin", middleware.AdminKeyAuth(cfg.AdminAPIKey))
	admin.Post("/entitlements", entitlementController.HandleAdminGrant)
	admin.Post("/entitlements/:id/revoke", entitlementController.HandleAdminRevoke)
	admin.Delete("/purchases/:id", entitlementController.HandleAdminDeletePurchase)
}

// rateLimiter keeps counters in Redis when it is available so that limits
// hold across instances. Stripe deliveries are never limited.
func (h ApiRouter) rateLimiter() fiber.Handler {
	cfg := limiter.Config{
		Max:        h.deps.Config.RateLimitMax,
		Expiration: h.deps.Config.RateLimitWindow,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == webhookPath
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests",
			})
		},
	}
	if cfg.Max <= 0 {
		cfg.Max = 60
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = time.Minute
	}
	if h.deps.Redis != nil {
		storage, err := cache.NewLimiterStorage(h.deps.Redis)
		if err != nil {
			log.Warnf("[router] limiter falls back to memory storage: %v", err)
		} else {
			cfg.Storage = storage
		}
	}
	return limiter.New(cfg)
}

func NewApiRouter(deps *Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
