package memory

import (
	"context"
	"sync"
	"time"
)

// Cache is an in-memory implementation of app.Cache with TTL expiry and
// mapping-key tagging, mirroring the redis implementation for tests and the
// no-redis demo mode.
type Cache struct {
	clock func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
	tags    map[string]map[string]struct{}
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewCache() *Cache {
	return &Cache{
		clock:   time.Now,
		entries: make(map[string]cacheEntry),
		tags:    make(map[string]map[string]struct{}),
	}
}

// NewCacheWithClock is test-only for deterministic expiry.
func NewCacheWithClock(clock func() time.Time) *Cache {
	c := NewCache()
	c.clock = clock
	return c
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.clock().Before(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := cacheEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.clock().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

func (c *Cache) Tag(_ context.Context, mappingKey string, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.tags[mappingKey]
	if !ok {
		set = make(map[string]struct{})
		c.tags[mappingKey] = set
	}
	for _, key := range keys {
		set[key] = struct{}{}
	}
	return nil
}

func (c *Cache) Invalidate(_ context.Context, mappingKeys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, mappingKey := range mappingKeys {
		for key := range c.tags[mappingKey] {
			delete(c.entries, key)
		}
		delete(c.tags, mappingKey)
	}
	return nil
}
