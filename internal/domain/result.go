package domain

import "time"

// Status is the outcome class of one measurement attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Health labels derived from a result for the persisted record.
const (
	HealthLive        = "Live"
	HealthLiveScraped = "Live (Scraped)"
)

// MeasurementResult is the outcome of sampling one target. Produced exactly
// once per target per run and never mutated afterwards.
type MeasurementResult struct {
	ChainID   string
	ChainName string

	// EndpointUsed is the candidate that produced the result, empty when
	// every candidate failed.
	EndpointUsed string

	// TPSEstimate and TotalTxCount are nil when the run produced no value.
	// StatusSuccess guarantees TPSEstimate is non-nil (possibly zero).
	TPSEstimate  *float64
	TotalTxCount *float64

	Status      Status
	ErrorDetail string // non-empty iff Status != StatusSuccess

	// Scraped marks values derived via page inspection rather than protocol
	// RPC, so consumers can weight confidence accordingly.
	Scraped bool

	ObservedAt time.Time
}

// Success builds a successful result for target measured at endpoint.
func Success(target ChainTarget, endpoint string, tps, totalTx float64) *MeasurementResult {
	return &MeasurementResult{
		ChainID:      target.ChainID,
		ChainName:    target.ChainName,
		EndpointUsed: endpoint,
		TPSEstimate:  &tps,
		TotalTxCount: &totalTx,
		Status:       StatusSuccess,
		ObservedAt:   time.Now().UTC(),
	}
}

// Failure builds an error result carrying detail.
func Failure(target ChainTarget, detail string) *MeasurementResult {
	return &MeasurementResult{
		ChainID:     target.ChainID,
		ChainName:   target.ChainName,
		Status:      StatusError,
		ErrorDetail: detail,
		ObservedAt:  time.Now().UTC(),
	}
}

// Skipped builds a skipped result for targets that were never sampled.
func Skipped(target ChainTarget, detail string) *MeasurementResult {
	return &MeasurementResult{
		ChainID:     target.ChainID,
		ChainName:   target.ChainName,
		Status:      StatusSkipped,
		ErrorDetail: detail,
		ObservedAt:  time.Now().UTC(),
	}
}

// Health returns the human-readable health label persisted alongside the
// result: "Live" on success, the error detail otherwise.
func (r *MeasurementResult) Health() string {
	switch {
	case r.Status == StatusSuccess && r.Scraped:
		return HealthLiveScraped
	case r.Status == StatusSuccess:
		return HealthLive
	default:
		return r.ErrorDetail
	}
}

// ChainMetricsRecord is the durable cumulative view per chain. It carries the
// latest measurement plus fields maintained by other collaborators that a
// measurement run must never overwrite.
type ChainMetricsRecord struct {
	ChainID       string   `json:"chain_id"`
	ChainName     string   `json:"chain_name"`
	RPCURL        string   `json:"rpc_url"`
	TPS10Min      *float64 `json:"tps_10min"`
	LastUpdatedAt float64  `json:"last_updated_at"` // unix seconds
	Status        string   `json:"status"`
	ErrorMessage  string   `json:"error_message"`
	TotalTxCount  *float64 `json:"total_tx_count"`
	HealthStatus  string   `json:"health_status"`

	// Collaborator-owned fields, preserved under sparse-overwrite upsert.
	IsDead      bool   `json:"is_dead"`
	ExplorerURL string `json:"explorer_url"`
	XHandle     string `json:"x_handle"`
}
