package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/pmuprofit/coursegate/app/repository"
	"github.com/pmuprofit/coursegate/internal/pkg/billing"
	"github.com/pmuprofit/coursegate/internal/pkg/entitlements"
	"github.com/pmuprofit/coursegate/internal/pkg/metrics"
	"github.com/pmuprofit/coursegate/internal/pkg/middleware"
	"github.com/pmuprofit/coursegate/internal/pkg/routes"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Config carries the HTTP-facing settings read from the environment.
type Config struct {
	CanonicalHost    string
	SecureCookies    bool
	AdminAPIKey      string
	WebhookSecret    string
	WebhookTolerance time.Duration
	// UpstreamURL is the site the gate forwards allowed page requests to.
	UpstreamURL     string
	StaticDir       string
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// Dependencies are constructed once in main and shared by all routers.
type Dependencies struct {
	Config       Config
	DB           *gorm.DB
	Redis        *redis.Client
	Classifier   *routes.Classifier
	Resolver     middleware.PrincipalResolver
	Billing      *billing.Service
	Entitlements *entitlements.Service
	Repositories *repository.Repositories
	Metrics      *metrics.Metrics
}

func InstallRouter(app *fiber.App, deps *Dependencies) {
	// The gate runs first for every request. API routes must be registered
	// before the page catch-all.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps), NewPageRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
