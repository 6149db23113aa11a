// Package memory provides a TTL-bounded in-process cache for local
// development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pagescope/pagescope/internal/analysis"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Cache implements analysis.Cache with a map and a fixed TTL.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   analysis.Clock
	entries map[string]entry
}

// New constructs a Cache with the given TTL. The clock is injectable
// so tests can drive expiry.
func New(ttl time.Duration, clock analysis.Clock) *Cache {
	return &Cache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]entry),
	}
}

// Get returns the value for key, or analysis.ErrNotFound if absent or
// past its TTL.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, analysis.ErrNotFound
	}
	if c.clock.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, analysis.ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores value under key with the cache TTL, replacing any prior
// entry.
func (c *Cache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	c.entries[key] = entry{value: stored, expiresAt: c.clock.Now().Add(c.ttl)}
	return nil
}

// Del removes the specified keys. Missing keys are ignored.
func (c *Cache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

// Close is a no-op for the in-memory cache.
func (c *Cache) Close() error { return nil }
