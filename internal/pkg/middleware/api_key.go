package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/pmuprofit/coursegate/internal/pkg/constants"
)

// AdminKeyAuth guards administrative endpoints with a shared key sent in
// X-Admin-Key or as a bearer token. An empty key disables the endpoints.
func AdminKeyAuth(adminKey string) fiber.Handler {
	expected := []byte(strings.TrimSpace(adminKey))
	return func(c *fiber.Ctx) error {
		if len(expected) == 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Admin API disabled"})
		}

		key := extractAdminKey(c)
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing admin key"})
		}
		if subtle.ConstantTimeCompare([]byte(key), expected) != 1 {
			log.Warnf("[admin] rejected admin key from %s", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid admin key"})
		}
		return c.Next()
	}
}

func extractAdminKey(c *fiber.Ctx) string {
	key := strings.TrimSpace(c.Get(constants.HeaderAdminKey))
	if key != "" {
		return key
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
