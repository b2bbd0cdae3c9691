package cache

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker takes short-lived exclusive leases with SET NX. Leases expire on
// their own and are never released early.
type Locker struct {
	client redis.UniversalClient
	owner  string
}

func NewLocker(client redis.UniversalClient) *Locker {
	owner, err := os.Hostname()
	if err != nil || owner == "" {
		owner = "coursegate"
	}
	return &Locker{client: client, owner: owner}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, "lock:"+key, l.owner, ttl).Result()
}
