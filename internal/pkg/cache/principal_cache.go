package cache

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// PrincipalCache stores resolved principals in Redis so that all instances
// share identity lookups. Errors are logged and reported as misses.
type PrincipalCache struct {
	client redis.UniversalClient
}

func NewPrincipalCache(client redis.UniversalClient) *PrincipalCache {
	return &PrincipalCache{client: client}
}

func (p *PrincipalCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := p.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warnf("[cache] principal lookup failed: %v", err)
		}
		return "", false
	}
	return v, v != ""
}

func (p *PrincipalCache) Set(ctx context.Context, key, principalID string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := p.client.Set(ctx, key, principalID, ttl).Err(); err != nil {
		log.Warnf("[cache] principal store failed: %v", err)
	}
}
