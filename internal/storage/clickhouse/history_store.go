package clickhouse

import (
	"context"
	"fmt"
	"sync"

	"chainpulse/internal/domain"
	"chainpulse/internal/storage"
)

// flushEvery bounds how many observations buffer before a batch insert.
// ClickHouse strongly prefers batched inserts over single-row writes.
const flushEvery = 64

// HistoryStore implements storage.HistoryStore using ClickHouse. Appends are
// buffered and flushed as batches; Close flushes the tail.
type HistoryStore struct {
	conn *Conn

	mu  sync.Mutex
	buf []*domain.MeasurementResult
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(conn *Conn) *HistoryStore {
	return &HistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

// Append buffers one observation, flushing when the buffer fills.
func (s *HistoryStore) Append(ctx context.Context, r *domain.MeasurementResult) error {
	if r == nil || r.ChainID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.buf = append(s.buf, &cp)
	if len(s.buf) < flushEvery {
		return nil
	}
	return s.flushLocked(ctx)
}

// Flush sends any buffered observations immediately.
func (s *HistoryStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *HistoryStore) flushLocked(ctx context.Context) error {
	if len(s.buf) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO measurement_history (
			chain_id, chain_name, endpoint_used, tps, total_tx,
			status, error_detail, scraped, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range s.buf {
		var scraped uint8
		if r.Scraped {
			scraped = 1
		}
		err = batch.Append(
			r.ChainID, r.ChainName, r.EndpointUsed, r.TPSEstimate, r.TotalTxCount,
			string(r.Status), r.ErrorDetail, scraped, r.ObservedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	s.buf = s.buf[:0]
	return nil
}

// Close flushes the remaining buffer and closes the connection.
func (s *HistoryStore) Close() error {
	if err := s.Flush(context.Background()); err != nil {
		return err
	}
	return s.conn.Close()
}
