package identity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "k", userA, 5*time.Second)
	id, ok := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, userA, id)

	now = now.Add(5 * time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheSweepsExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < sweepEvery-1; i++ {
		c.Set(ctx, fmt.Sprintf("old-%d", i), userA, time.Second)
	}
	now = now.Add(2 * time.Second)
	c.Set(ctx, "fresh", userB, time.Minute)

	assert.Equal(t, 1, c.Len())
}

func TestMemoryCacheConcurrentUse(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := CacheKey(fmt.Sprintf("token-%d", j%10))
				c.Set(ctx, key, userA, time.Second)
				c.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 10)
}

func TestCacheKeyHidesCredential(t *testing.T) {
	k := CacheKey("refresh-secret")
	assert.NotContains(t, k, "refresh-secret")
	assert.Equal(t, k, CacheKey("refresh-secret"))
}
