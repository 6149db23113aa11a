package analysis

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores and caches when no entry exists for
// the requested correlation id.
var ErrNotFound = errors.New("record not found")

// ResultStore persists analysis records keyed by correlation id.
type ResultStore interface {
	// Create inserts a new record in the processing state. Called
	// synchronously at submission time, before any queue publish.
	Create(ctx context.Context, correlationID, url string, now time.Time) error

	// Complete overwrites the analyzer fields of an existing record and
	// marks it completed. Overwrite semantics: applying the same report
	// twice leaves the record unchanged. Returns ErrNotFound when no
	// record exists for the correlation id.
	Complete(ctx context.Context, correlationID string, report Report, now time.Time) error

	// Fail marks an existing record as failed with a reason.
	Fail(ctx context.Context, correlationID, reason string) error

	// Get returns the record for a correlation id, or ErrNotFound.
	Get(ctx context.Context, correlationID string) (Record, error)

	Close()
}

// Cache mirrors the public view of completed records. Entries carry a
// fixed TTL owned by the implementation; the store remains the source
// of truth.
type Cache interface {
	// Get returns the cached bytes for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the cache's configured TTL,
	// replacing any prior entry.
	Set(ctx context.Context, key string, value []byte) error

	Del(ctx context.Context, keys ...string) error
	Close() error
}

// Publisher sends one message durably to a named destination queue.
// Publish must not return before the fabric has accepted the message,
// so that a stage can publish downstream before acking upstream.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
	Close() error
}

// MessageHandler processes one delivery. A nil return acknowledges the
// message; an error negatively acknowledges it without requeue, leaving
// redelivery or dead-lettering to the queue fabric.
type MessageHandler func(ctx context.Context, body []byte) error

// Consumer drives a prefetch-bounded consume loop over one queue.
// Consume blocks until the context ends or the fabric connection fails;
// a connection-level error is fatal to the stage.
type Consumer interface {
	Consume(ctx context.Context, handler MessageHandler) error
	Close() error
}

// IDGenerator mints correlation ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
