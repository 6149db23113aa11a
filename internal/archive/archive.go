// Package archive defines the interfaces for the raw-HTML snapshot
// store. The parse stage snapshots every fetched page so completed
// analyses can be audited against the markup they were computed from.
package archive

import "context"

// Provider abstracts blob persistence for page snapshots.
type Provider interface {
	// Save uploads data under the given object path and returns a URI
	// identifying the stored snapshot.
	Save(ctx context.Context, objectName string, contentType string, data []byte) (string, error)
}

// NoOpProvider discards snapshots. Useful for local runs where raw
// HTML retention is not wanted.
type NoOpProvider struct{}

// Save for NoOpProvider does nothing and returns an empty URI.
func (NoOpProvider) Save(_ context.Context, _ string, _ string, _ []byte) (string, error) {
	return "", nil
}

type prefixed struct {
	next   Provider
	prefix string
}

// WithPrefix namespaces object names under prefix.
func WithPrefix(next Provider, prefix string) Provider {
	if prefix == "" {
		return next
	}
	return prefixed{next: next, prefix: prefix}
}

func (p prefixed) Save(ctx context.Context, objectName string, contentType string, data []byte) (string, error) {
	return p.next.Save(ctx, p.prefix+"/"+objectName, contentType, data)
}
