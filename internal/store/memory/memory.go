// Package memory provides an in-process result store for local
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pagescope/pagescope/internal/analysis"
)

// Store implements analysis.ResultStore with a map.
type Store struct {
	mu      sync.Mutex
	records map[string]analysis.Record
}

// New constructs an empty Store.
func New() *Store {
	return &Store{records: make(map[string]analysis.Record)}
}

// Create inserts a new processing-state record for a correlation id.
func (s *Store) Create(_ context.Context, correlationID, url string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[correlationID]; exists {
		return fmt.Errorf("record %q already exists", correlationID)
	}
	s.records[correlationID] = analysis.Record{
		CorrelationID: correlationID,
		URL:           url,
		Status:        analysis.StatusProcessing,
		CreatedAt:     now,
	}
	return nil
}

// Complete overwrites the analyzer fields and marks the record
// completed. Applying the same report twice leaves the record in the
// same state.
func (s *Store) Complete(_ context.Context, correlationID string, report analysis.Report, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[correlationID]
	if !ok {
		return analysis.ErrNotFound
	}
	rec.Status = analysis.StatusCompleted
	rec.Report = report
	rec.CompletedAt = &now
	s.records[correlationID] = rec
	return nil
}

// Fail marks an existing record as failed with a reason.
func (s *Store) Fail(_ context.Context, correlationID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[correlationID]
	if !ok {
		return analysis.ErrNotFound
	}
	rec.Status = analysis.StatusFailed
	rec.ErrorText = reason
	s.records[correlationID] = rec
	return nil
}

// Get returns the record for a correlation id, or analysis.ErrNotFound.
func (s *Store) Get(_ context.Context, correlationID string) (analysis.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[correlationID]
	if !ok {
		return analysis.Record{}, analysis.ErrNotFound
	}
	return rec, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() {}
