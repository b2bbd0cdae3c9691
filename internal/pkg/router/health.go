package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/pmuprofit/coursegate/internal/pkg/cache"
)

const healthTimeout = 2 * time.Second

// NewHealthHandler reports database and cache reachability. Only the
// database decides the status code; the cache is optional.
func NewHealthHandler(db *gorm.DB, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
		defer cancel()

		status := fiber.StatusOK
		body := fiber.Map{"status": "ok", "database": "ok", "cache": "disabled"}

		if err := pingDB(ctx, db); err != nil {
			status = fiber.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = err.Error()
		}
		if rdb != nil {
			if err := cache.Ping(ctx, rdb); err != nil {
				body["cache"] = err.Error()
			} else {
				body["cache"] = "ok"
			}
		}
		return c.Status(status).JSON(body)
	}
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return gorm.ErrInvalidDB
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
