package storage

import (
	"context"

	"chainpulse/internal/domain"
)

// MetricsStore provides access to chain_metrics storage, the durable
// per-chain view keyed by chain_id.
type MetricsStore interface {
	// Upsert writes one measurement result under sparse-overwrite semantics:
	// a new chain_id inserts a fresh record; an existing one has only the
	// run-owned columns overwritten (chain_name, rpc_url, tps_10min,
	// last_updated_at, status, error_message, total_tx_count, health_status).
	// Collaborator-owned columns (is_dead, explorer_url, x_handle) are never
	// touched. Safe for concurrent calls on distinct keys.
	Upsert(ctx context.Context, r *domain.MeasurementResult) error

	// Get retrieves one record. Returns ErrNotFound if not exists.
	Get(ctx context.Context, chainID string) (*domain.ChainMetricsRecord, error)

	// List retrieves every record ordered by chain_id ASC.
	List(ctx context.Context) ([]*domain.ChainMetricsRecord, error)

	// SetExplorerURL maintains the collaborator-owned explorer column.
	// Returns ErrNotFound if the chain does not exist.
	SetExplorerURL(ctx context.Context, chainID, url string) error

	// SetSocialHandle maintains the collaborator-owned x_handle column.
	// Returns ErrNotFound if the chain does not exist.
	SetSocialHandle(ctx context.Context, chainID, handle string) error

	// MarkDead maintains the manually curated dead flag.
	// Returns ErrNotFound if the chain does not exist.
	MarkDead(ctx context.Context, chainID string, dead bool) error

	// Commit makes all writes since the previous Commit durable. For stores
	// that are durable per-write this is a no-op kept so the dispatcher's
	// periodic-commit cadence is uniform across backends.
	Commit(ctx context.Context) error

	// Close releases the store's resources.
	Close()
}

// HistoryStore records every measurement append-only, one row per result per
// run, for time-series analysis. Optional: a run without one keeps no
// history.
type HistoryStore interface {
	// Append adds one measurement observation. Never updates.
	Append(ctx context.Context, r *domain.MeasurementResult) error

	// Close flushes and releases the store's resources.
	Close() error
}
