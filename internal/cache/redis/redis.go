// Package redis implements the result cache on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pagescope/pagescope/internal/analysis"
)

// Option configures a Handle.
type Option func(h *Handle)

// Handle is a Redis-backed analysis.Cache with a fixed per-entry TTL.
type Handle struct {
	addr     string
	username string
	password string
	db       int
	ttl      time.Duration
	client   redis.UniversalClient
}

// Configuration errors surfaced at construction time.
var (
	ErrAddrMissing = errors.New("redis address must be specified")
	ErrTTLMissing  = errors.New("cache TTL must be specified")
)

// WithAddr sets the Redis server address.
func WithAddr(addr string) Option {
	return func(h *Handle) { h.addr = addr }
}

// WithCredentials sets the username/password pair.
func WithCredentials(username, password string) Option {
	return func(h *Handle) {
		h.username = username
		h.password = password
	}
}

// WithDatabase selects the Redis logical database.
func WithDatabase(db int) Option {
	return func(h *Handle) { h.db = db }
}

// WithTTL sets the time-to-live applied to every cache write.
func WithTTL(ttl time.Duration) Option {
	return func(h *Handle) { h.ttl = ttl }
}

// New creates a Handle and its underlying client.
func New(opts ...Option) (*Handle, error) {
	h := &Handle{}
	for _, opt := range opts {
		opt(h)
	}
	if h.addr == "" {
		return nil, ErrAddrMissing
	}
	if h.ttl == 0 {
		return nil, ErrTTLMissing
	}
	h.client = redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{h.addr},
		Username: h.username,
		Password: h.password,
		DB:       h.db,
	})
	return h, nil
}

// Ping checks server liveness.
func (h *Handle) Ping(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}

// Get returns the value for key, or analysis.ErrNotFound.
func (h *Handle) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := h.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, analysis.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return val, nil
}

// Set stores value under key with the handle's TTL, replacing any
// prior entry.
func (h *Handle) Set(ctx context.Context, key string, value []byte) error {
	if err := h.client.Set(ctx, key, value, h.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Del removes the specified keys. Missing keys are ignored.
func (h *Handle) Del(ctx context.Context, keys ...string) error {
	if err := h.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the server connection.
func (h *Handle) Close() error {
	return h.client.Close()
}
