package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext represents the resolved principal of a request
type UserContext struct {
	UserID     string `json:"user_id"`
	IsLoggedIn bool   `json:"is_logged_in"`
	Source     string `json:"source"`
}

// Set stores the user context in fiber locals
func Set(c *fiber.Ctx, uc UserContext) {
	c.Locals(KeyUserContext, uc)
}

// GetUserContext retrieves the user context from fiber context
// Returns an anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if uc, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return uc
	}
	return UserContext{}
}

// IsLoggedIn checks if the current request carries a resolved principal
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// GetUserID returns the current principal id, or "" if none was resolved
func GetUserID(c *fiber.Ctx) string {
	return GetUserContext(c).UserID
}
