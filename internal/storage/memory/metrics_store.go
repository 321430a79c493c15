// Package memory provides in-memory storage implementations for tests and
// local runs without a database.
package memory

import (
	"context"
	"sort"
	"sync"

	"chainpulse/internal/domain"
	"chainpulse/internal/storage"
)

// MetricsStore is an in-memory implementation of storage.MetricsStore.
type MetricsStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ChainMetricsRecord // keyed by chain_id
}

// NewMetricsStore creates a new in-memory metrics store.
func NewMetricsStore() *MetricsStore {
	return &MetricsStore{
		data: make(map[string]*domain.ChainMetricsRecord),
	}
}

// Compile-time interface check.
var _ storage.MetricsStore = (*MetricsStore)(nil)

// Upsert writes one result under sparse-overwrite semantics.
func (s *MetricsStore) Upsert(_ context.Context, r *domain.MeasurementResult) error {
	if r == nil || r.ChainID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.data[r.ChainID]
	if !exists {
		rec = &domain.ChainMetricsRecord{ChainID: r.ChainID}
		s.data[r.ChainID] = rec
	}

	// Only the run-owned columns; is_dead, explorer_url and x_handle are
	// collaborator-owned and survive every upsert.
	rec.ChainName = r.ChainName
	rec.RPCURL = r.EndpointUsed
	rec.TPS10Min = copyFloat(r.TPSEstimate)
	rec.LastUpdatedAt = float64(r.ObservedAt.UnixNano()) / 1e9
	rec.Status = string(r.Status)
	rec.ErrorMessage = r.ErrorDetail
	rec.TotalTxCount = copyFloat(r.TotalTxCount)
	rec.HealthStatus = r.Health()
	return nil
}

// Get retrieves one record. Returns ErrNotFound if not exists.
func (s *MetricsStore) Get(_ context.Context, chainID string) (*domain.ChainMetricsRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.data[chainID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// List retrieves every record ordered by chain_id ASC.
func (s *MetricsStore) List(_ context.Context) ([]*domain.ChainMetricsRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.ChainMetricsRecord, 0, len(s.data))
	for _, rec := range s.data {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out, nil
}

// SetExplorerURL updates the collaborator-owned explorer column.
func (s *MetricsStore) SetExplorerURL(_ context.Context, chainID, url string) error {
	return s.update(chainID, func(rec *domain.ChainMetricsRecord) { rec.ExplorerURL = url })
}

// SetSocialHandle updates the collaborator-owned x_handle column.
func (s *MetricsStore) SetSocialHandle(_ context.Context, chainID, handle string) error {
	return s.update(chainID, func(rec *domain.ChainMetricsRecord) { rec.XHandle = handle })
}

// MarkDead updates the manually curated dead flag.
func (s *MetricsStore) MarkDead(_ context.Context, chainID string, dead bool) error {
	return s.update(chainID, func(rec *domain.ChainMetricsRecord) { rec.IsDead = dead })
}

func (s *MetricsStore) update(chainID string, fn func(*domain.ChainMetricsRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.data[chainID]
	if !exists {
		return storage.ErrNotFound
	}
	fn(rec)
	return nil
}

// Commit is a no-op: the map is always current.
func (s *MetricsStore) Commit(_ context.Context) error { return nil }

// Close is a no-op.
func (s *MetricsStore) Close() {}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
