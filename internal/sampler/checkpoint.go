package sampler

import (
	"context"
	"fmt"
	"strconv"

	"chainpulse/internal/domain"
	"chainpulse/internal/safefetch"
)

// CheckpointSampler measures checkpoint-ledger chains (Sui-style JSON-RPC).
//
// Variation points: unit = checkpoint addressed by sequence number;
// timestamps arrive in milliseconds and are normalized to seconds;
// transaction counts are the checkpoint's digest list. These chains expose
// an exact running transaction counter, which is preferred over the
// extrapolated lifetime estimate.
type CheckpointSampler struct {
	gate *safefetch.Gate
	cfg  Config
}

// NewCheckpointSampler creates the checkpoint-ledger adapter.
func NewCheckpointSampler(gate *safefetch.Gate, cfg Config) *CheckpointSampler {
	return &CheckpointSampler{gate: gate, cfg: cfg}
}

var _ Sampler = (*CheckpointSampler)(nil)

func (s *CheckpointSampler) Family() domain.ProtocolFamily { return domain.FamilyCheckpointLedger }

type checkpoint struct {
	TimestampMs  string   `json:"timestampMs"`
	Transactions []string `json:"transactions"`
}

func (s *CheckpointSampler) getCheckpoint(ctx context.Context, endpoint string, seq int64) (*checkpoint, error) {
	var cp checkpoint
	params := []interface{}{strconv.FormatInt(seq, 10)}
	if err := rpcCall(ctx, s.gate, endpoint, "sui_getCheckpoint", params, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint %d: %w", seq, err)
	}
	return &cp, nil
}

func (cp *checkpoint) unixSeconds() (float64, error) {
	ms, err := strconv.ParseInt(cp.TimestampMs, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse timestampMs: %w", err)
	}
	return float64(ms) / 1000.0, nil
}

func (s *CheckpointSampler) Sample(ctx context.Context, endpoint string, _ domain.ChainTarget) (*Estimate, error) {
	var seqStr string
	if err := rpcCall(ctx, s.gate, endpoint, "sui_getLatestCheckpointSequenceNumber", nil, &seqStr); err != nil {
		return nil, err
	}
	latestSeq, err := strconv.ParseInt(seqStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse sequence number: %w", err)
	}

	latest, err := s.getCheckpoint(ctx, endpoint, latestSeq)
	if err != nil {
		return nil, ErrNoStartBlock
	}
	latestTS, err := latest.unixSeconds()
	if err != nil {
		return nil, err
	}

	oldSeq := maxInt64(0, latestSeq-s.cfg.CheckpointLookback)
	oldest, err := s.getCheckpoint(ctx, endpoint, oldSeq)
	if err != nil {
		return nil, ErrNoStartBlock
	}
	oldTS, err := oldest.unixSeconds()
	if err != nil {
		return nil, err
	}

	elapsed := latestTS - oldTS

	var totalTx, valid int64
	for _, seq := range samplePoints(oldSeq, latestSeq, s.cfg.SampleSize) {
		cp, err := s.getCheckpoint(ctx, endpoint, seq)
		if err != nil {
			continue
		}
		totalTx += int64(len(cp.Transactions))
		valid++
	}
	if valid == 0 {
		return nil, ErrNoValidSamples
	}

	avgTx := float64(totalTx) / float64(valid)
	tps, total := extrapolate(avgTx, latestSeq-oldSeq, latestSeq, elapsed)

	// The exact counter beats the height-based projection when available.
	var exactStr string
	if err := rpcCall(ctx, s.gate, endpoint, "sui_getTotalTransactionBlocks", nil, &exactStr); err == nil {
		if exact, perr := strconv.ParseFloat(exactStr, 64); perr == nil && exact > 0 {
			total = exact
		}
	}

	return &Estimate{TPS: tps, TotalTx: ptr(total)}, nil
}
