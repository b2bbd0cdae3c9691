package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pmuprofit/coursegate/internal/pkg/identity"
	"github.com/pmuprofit/coursegate/internal/pkg/usercontext"
)

// PrincipalContext resolves the principal for API requests, which the access
// gate classifies as static. Anonymous requests continue without a context.
func PrincipalContext(resolver PrincipalResolver, secureCookies bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stripIdentityHeaders(c)

		res := resolver.Resolve(c.UserContext(), identity.FromFiber(c))
		if res.Refreshed != nil {
			writeSessionCookies(c, res.Refreshed, secureCookies)
		}
		if res.Resolved() {
			attachPrincipal(c, res)
		} else {
			usercontext.Set(c, usercontext.UserContext{Source: string(identity.SourceNone)})
		}
		return c.Next()
	}
}
