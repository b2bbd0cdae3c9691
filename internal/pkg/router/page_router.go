package router

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/proxy"
)

// PageRouter forwards every request the gate let through to the site that
// renders the pages. The downstream request carries the identity headers
// set by the gate.
type PageRouter struct {
	deps *Dependencies
}

func (h PageRouter) InstallRouter(app *fiber.App) {
	upstream := strings.TrimRight(strings.TrimSpace(h.deps.Config.UpstreamURL), "/")
	if upstream == "" {
		log.Warn("[router] UPSTREAM_URL not set, pages are not served")
		app.Use(func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error":   "not_found",
				"message": "No upstream configured",
			})
		})
		return
	}

	app.Use(func(c *fiber.Ctx) error {
		if err := proxy.Do(c, upstream+c.OriginalURL()); err != nil {
			log.Errorf("[router] upstream %s: %v", c.OriginalURL(), err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":   "bad_gateway",
				"message": "Upstream unavailable",
			})
		}
		return nil
	})
}

func NewPageRouter(deps *Dependencies) *PageRouter {
	return &PageRouter{deps: deps}
}
