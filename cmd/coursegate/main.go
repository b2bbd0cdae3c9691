package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/pmuprofit/coursegate/app/repository"
	"github.com/pmuprofit/coursegate/internal/pkg/billing"
	"github.com/pmuprofit/coursegate/internal/pkg/cache"
	"github.com/pmuprofit/coursegate/internal/pkg/database"
	"github.com/pmuprofit/coursegate/internal/pkg/entitlements"
	"github.com/pmuprofit/coursegate/internal/pkg/env"
	"github.com/pmuprofit/coursegate/internal/pkg/identity"
	"github.com/pmuprofit/coursegate/internal/pkg/jobqueue"
	"github.com/pmuprofit/coursegate/internal/pkg/metrics"
	"github.com/pmuprofit/coursegate/internal/pkg/router"
	"github.com/pmuprofit/coursegate/internal/pkg/routes"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	if env.IsDev() {
		fiberlog.SetLevel(fiberlog.LevelDebug)
	} else {
		fiberlog.SetLevel(fiberlog.LevelInfo)
	}

	db := database.SetupDatabase()

	rdb, err := cache.NewClientFromEnv(context.Background())
	if err != nil {
		// the cache is optional, run without it
		fiberlog.Warnf("[cache] disabled: %v", err)
		rdb = nil
	} else if rdb == nil {
		fiberlog.Info("[cache] CACHE_HOST not set, using in-process caches")
	}

	m := metrics.New()
	repos := repository.NewFactory(db).GetRepositories()

	stripe := billing.NewStripeClientFromEnv()
	if stripe.SecretKey == "" {
		fiberlog.Warn("[billing] STRIPE_SECRET_KEY not set, payment verification will fail")
	}
	billingService := billing.NewServiceFromDB(db, stripe, billing.WithRecorder(m))
	startJobQueue(billingService, rdb)

	deps := &router.Dependencies{
		Config:       routerConfigFromEnv(),
		DB:           db,
		Redis:        rdb,
		Classifier:   routes.NewClassifier(routes.DefaultConfig()),
		Resolver:     newResolver(rdb),
		Billing:      billingService,
		Entitlements: entitlements.NewService(repos.Entitlement, env.GetDuration("ENTITLEMENT_CHECK_TIMEOUT", entitlements.DefaultCheckTimeout)),
		Repositories: repos,
		Metrics:      m,
	}

	basePath := findBasePath()

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "coursegate",
		BodyLimit: 1 << 20,
		// behind the hosting proxy the client address is in X-Forwarded-For
		ProxyHeader: env.GetEnv("PROXY_HEADER", ""),
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// metrics, only with a password
	if password := env.GetEnv("METRICS_PASSWORD", ""); password != "" {
		guard := basicauth.New(basicauth.Config{
			Users: map[string]string{
				env.GetEnv("METRICS_USER", "admin"): password,
			},
		})
		app.Get("/metrics", guard, m.Handler())
		app.Get("/monitor", guard, monitor.New(monitor.Config{Title: "coursegate"}))
	}

	// SWAGGER / OPENAPI
	docFile := basePath + "public/docs/v1/openapi.yml"
	if _, err := os.Stat(docFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: docFile,
			Path:     "v1",
		}))
	}

	// ROUTER
	router.InstallRouter(app, deps)

	return app
}

func newResolver(rdb *redis.Client) *identity.Resolver {
	opts := []identity.Option{
		identity.WithTokenVerifier(identity.NewTokenVerifier(env.GetEnv("AUTH_JWT_SECRET", ""))),
	}
	if client := identity.NewClientFromEnv(); client.Configured() {
		opts = append(opts, identity.WithSessionProvider(client))
	} else {
		fiberlog.Warn("[identity] AUTH_URL not set, session cookies are only checked locally")
	}

	ttl := env.GetDuration("AUTH_CACHE_TTL", identity.DefaultCacheTTL)
	if rdb != nil {
		opts = append(opts, identity.WithCache(cache.NewPrincipalCache(rdb), ttl))
	} else {
		opts = append(opts, identity.WithCache(identity.NewMemoryCache(), ttl))
	}
	return identity.NewResolver(opts...)
}

// startJobQueue starts the webhook retry worker, disabled with WEBHOOK_RETRY_INTERVAL=0.
func startJobQueue(svc *billing.Service, rdb *redis.Client) {
	interval := env.GetDuration("WEBHOOK_RETRY_INTERVAL", 5*time.Minute)
	if interval <= 0 {
		fiberlog.Info("[JobQueue Manager] webhook retry disabled")
		return
	}
	cfg := jobqueue.Config{
		RetryInterval: interval,
		RetryPolicy: billing.RetryPolicy{
			MinAge:    env.GetDuration("WEBHOOK_RETRY_MIN_AGE", 5*time.Minute),
			MaxAge:    env.GetDuration("WEBHOOK_RETRY_MAX_AGE", 72*time.Hour),
			BatchSize: env.GetInt("WEBHOOK_RETRY_BATCH", 50),
		},
	}
	if rdb != nil {
		cfg.Locker = cache.NewLocker(rdb)
	}
	jobqueue.NewManager(svc, cfg).Start()
}

func routerConfigFromEnv() router.Config {
	canonical := env.GetEnv("CANONICAL_HOST", "")
	if canonical == "" {
		canonical = env.GetEnv("PUBLIC_DOMAIN", "")
	}
	return router.Config{
		CanonicalHost:    strings.TrimSpace(canonical),
		SecureCookies:    !env.IsDev(),
		AdminAPIKey:      env.GetEnv("ADMIN_API_KEY", ""),
		WebhookSecret:    env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		WebhookTolerance: env.GetDuration("STRIPE_WEBHOOK_TOLERANCE", billing.DefaultSignatureTolerance),
		UpstreamURL:      env.GetEnv("UPSTREAM_URL", ""),
		StaticDir:        env.GetEnv("STATIC_DIR", ""),
		RateLimitMax:     env.GetInt("API_RATE_LIMIT_MAX", 60),
		RateLimitWindow:  env.GetDuration("API_RATE_LIMIT_WINDOW", time.Minute),
	}
}

// findBasePath returns the project root relative to the working directory.
func findBasePath() string {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/coursegate to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public"); !os.IsNotExist(err) {
			return path
		}
	}
	return "./"
}
