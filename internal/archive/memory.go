package archive

import (
	"context"
	"fmt"
	"sync"
)

// MemoryProvider keeps snapshots in a map for tests.
type MemoryProvider struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryProvider constructs an empty MemoryProvider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{objects: make(map[string][]byte)}
}

// Save stores a copy of data and returns a mem:// URI.
func (m *MemoryProvider) Save(_ context.Context, objectName string, _ string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[objectName] = stored
	return fmt.Sprintf("mem://%s", objectName), nil
}

// Object returns the stored bytes for an object name, if present.
func (m *MemoryProvider) Object(objectName string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objectName]
	return data, ok
}
