package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"
)

// Cache holds recently resolved principals. It is best effort: a miss or a
// lost write only costs an extra identity-provider round trip.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, principalID string, ttl time.Duration)
}

// CacheKey derives the cache key for a credential without storing it.
func CacheKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return "identity:" + hex.EncodeToString(sum[:])
}

const sweepEvery = 256

type memoryEntry struct {
	principalID string
	expires     time.Time
}

// MemoryCache is an in-process Cache. Concurrent overwrite and eviction are
// allowed; no lock is taken on the read or write path.
type MemoryCache struct {
	entries sync.Map
	writes  atomic.Uint64
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	v, ok := m.entries.Load(key)
	if !ok {
		return "", false
	}
	e := v.(memoryEntry)
	if !m.now().Before(e.expires) {
		m.entries.CompareAndDelete(key, v)
		return "", false
	}
	return e.principalID, true
}

func (m *MemoryCache) Set(_ context.Context, key, principalID string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.entries.Store(key, memoryEntry{principalID: principalID, expires: m.now().Add(ttl)})
	if m.writes.Add(1)%sweepEvery == 0 {
		m.sweep()
	}
}

func (m *MemoryCache) sweep() {
	now := m.now()
	m.entries.Range(func(k, v any) bool {
		if !now.Before(v.(memoryEntry).expires) {
			m.entries.CompareAndDelete(k, v)
		}
		return true
	})
}

// Len counts live and not yet swept entries.
func (m *MemoryCache) Len() int {
	n := 0
	m.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
