package cache

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	fiberredis "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"

	"github.com/pmuprofit/coursegate/internal/pkg/env"
)

const pingTimeout = 3 * time.Second

// NewClientFromEnv connects to the Redis compatible cache configured by
// CACHE_HOST, CACHE_PORT and CACHE_PASSWORD. It returns nil, nil when no
// cache host is configured.
func NewClientFromEnv(ctx context.Context) (*redis.Client, error) {
	host := strings.TrimSpace(env.GetEnv("CACHE_HOST", ""))
	if host == "" {
		return nil, nil
	}
	port := env.GetEnv("CACHE_PORT", "6379")
	return NewClient(ctx, net.JoinHostPort(host, port), env.GetEnv("CACHE_PASSWORD", ""))
}

// NewClient creates a client on DB 0 and verifies the connection.
func NewClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect cache %s: %w", addr, err)
	}
	log.Infof("[cache] connected to %s", addr)
	return client, nil
}

// Ping checks the connection under a short timeout.
func Ping(ctx context.Context, client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return client.Ping(ctx).Err()
}

// NewLimiterStorage builds fiber storage for the API rate limiter on a
// separate database of the same server as client.
func NewLimiterStorage(client *redis.Client) (fiber.Storage, error) {
	opts := client.Options()
	host, portStr, err := net.SplitHostPort(opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("parse cache address %q: %w", opts.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("parse cache port %q: %w", portStr, err)
	}
	// Database 1 keeps limiter keys apart from the principal cache (DB 0)
	return fiberredis.New(fiberredis.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: 1,
		Reset:    false,
	}), nil
}
