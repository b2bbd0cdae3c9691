package router

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/pmuprofit/coursegate/internal/pkg/middleware"
	"github.com/pmuprofit/coursegate/internal/pkg/routes"
)

type HttpRouter struct {
	deps *Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	classifier := h.deps.Classifier
	if classifier == nil {
		classifier = routes.NewClassifier(routes.DefaultConfig())
	}

	gate := middleware.NewAccessGate(middleware.AccessGateConfig{
		Classifier:    classifier,
		Resolver:      h.deps.Resolver,
		Checker:       h.deps.Entitlements,
		Recorder:      h.deps.Metrics,
		CanonicalHost: h.deps.Config.CanonicalHost,
		SecureCookies: h.deps.Config.SecureCookies,
	})
	app.Use(gate.Handler())

	if dir := h.deps.Config.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			app.Static("/static", dir)
		} else {
			log.Warnf("[router] static dir %s not found, /static disabled", dir)
		}
	}
}

func NewHttpRouter(deps *Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
