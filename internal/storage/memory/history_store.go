package memory

import (
	"context"
	"sync"

	"chainpulse/internal/domain"
	"chainpulse/internal/storage"
)

// HistoryStore is an in-memory implementation of storage.HistoryStore.
type HistoryStore struct {
	mu      sync.Mutex
	entries []*domain.MeasurementResult
}

// NewHistoryStore creates a new in-memory history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

// Append adds one observation.
func (s *HistoryStore) Append(_ context.Context, r *domain.MeasurementResult) error {
	if r == nil || r.ChainID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.entries = append(s.entries, &cp)
	return nil
}

// Entries returns a snapshot of everything appended so far.
func (s *HistoryStore) Entries() []*domain.MeasurementResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.MeasurementResult, len(s.entries))
	copy(out, s.entries)
	return out
}

// Close is a no-op.
func (s *HistoryStore) Close() error { return nil }
