package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"chainpulse/internal/domain"
	"chainpulse/internal/storage"
)

// MetricsStore implements storage.MetricsStore using PostgreSQL.
type MetricsStore struct {
	pool *Pool
}

// NewMetricsStore creates a new MetricsStore.
func NewMetricsStore(pool *Pool) *MetricsStore {
	return &MetricsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MetricsStore = (*MetricsStore)(nil)

// Upsert writes one result under sparse-overwrite semantics. The conflict
// branch updates only the run-owned columns; is_dead, explorer_url and
// x_handle keep whatever earlier collaborators set. Row-level locking on the
// primary key serializes concurrent upserts for the same chain.
func (s *MetricsStore) Upsert(ctx context.Context, r *domain.MeasurementResult) error {
	if r == nil || r.ChainID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO chain_metrics (
			chain_id, chain_name, rpc_url, tps_10min, last_updated_at,
			status, error_message, total_tx_count, health_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (chain_id) DO UPDATE SET
			chain_name      = EXCLUDED.chain_name,
			rpc_url         = EXCLUDED.rpc_url,
			tps_10min       = EXCLUDED.tps_10min,
			last_updated_at = EXCLUDED.last_updated_at,
			status          = EXCLUDED.status,
			error_message   = EXCLUDED.error_message,
			total_tx_count  = EXCLUDED.total_tx_count,
			health_status   = EXCLUDED.health_status
	`

	_, err := s.pool.Exec(ctx, query,
		r.ChainID, r.ChainName, r.EndpointUsed, r.TPSEstimate,
		float64(r.ObservedAt.UnixNano())/1e9,
		string(r.Status), r.ErrorDetail, r.TotalTxCount, r.Health(),
	)
	if err != nil {
		return fmt.Errorf("upsert chain metrics: %w", err)
	}
	return nil
}

// Get retrieves one record. Returns ErrNotFound if not exists.
func (s *MetricsStore) Get(ctx context.Context, chainID string) (*domain.ChainMetricsRecord, error) {
	query := selectColumns + ` WHERE chain_id = $1`

	row := s.pool.QueryRow(ctx, query, chainID)
	rec, err := scanMetricsRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get chain metrics: %w", err)
	}
	return rec, nil
}

// List retrieves every record ordered by chain_id ASC.
func (s *MetricsStore) List(ctx context.Context) ([]*domain.ChainMetricsRecord, error) {
	query := selectColumns + ` ORDER BY chain_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list chain metrics: %w", err)
	}
	defer rows.Close()

	var records []*domain.ChainMetricsRecord
	for rows.Next() {
		rec, err := scanMetricsRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chain metrics row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chain metrics rows: %w", err)
	}
	return records, nil
}

// SetExplorerURL updates the collaborator-owned explorer column.
func (s *MetricsStore) SetExplorerURL(ctx context.Context, chainID, url string) error {
	return s.updateColumn(ctx, "explorer_url", chainID, url)
}

// SetSocialHandle updates the collaborator-owned x_handle column.
func (s *MetricsStore) SetSocialHandle(ctx context.Context, chainID, handle string) error {
	return s.updateColumn(ctx, "x_handle", chainID, handle)
}

// MarkDead updates the manually curated dead flag.
func (s *MetricsStore) MarkDead(ctx context.Context, chainID string, dead bool) error {
	return s.updateColumn(ctx, "is_dead", chainID, dead)
}

func (s *MetricsStore) updateColumn(ctx context.Context, column, chainID string, value interface{}) error {
	// column is always one of our own literals, never user input.
	query := fmt.Sprintf(`UPDATE chain_metrics SET %s = $2 WHERE chain_id = $1`, column)

	tag, err := s.pool.Exec(ctx, query, chainID, value)
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Commit is a no-op: every Exec is durable on return.
func (s *MetricsStore) Commit(_ context.Context) error { return nil }

// Close closes the underlying pool.
func (s *MetricsStore) Close() {
	s.pool.Close()
}

const selectColumns = `
	SELECT
		chain_id, chain_name, rpc_url, tps_10min, last_updated_at,
		status, error_message, total_tx_count, health_status,
		is_dead, explorer_url, x_handle
	FROM chain_metrics`

// scanMetricsRecord scans a single row into a ChainMetricsRecord.
func scanMetricsRecord(row pgx.Row) (*domain.ChainMetricsRecord, error) {
	var rec domain.ChainMetricsRecord

	err := row.Scan(
		&rec.ChainID, &rec.ChainName, &rec.RPCURL, &rec.TPS10Min, &rec.LastUpdatedAt,
		&rec.Status, &rec.ErrorMessage, &rec.TotalTxCount, &rec.HealthStatus,
		&rec.IsDead, &rec.ExplorerURL, &rec.XHandle,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
