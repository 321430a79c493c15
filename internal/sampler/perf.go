package sampler

import (
	"context"
	"fmt"

	"chainpulse/internal/domain"
	"chainpulse/internal/safefetch"
)

// PerfSampler measures chains that publish ready-made performance samples
// (Solana-style getRecentPerformanceSamples). This is the catch-all for the
// custom family: no block walking at all, the node has already done the
// counting over fixed sample periods.
type PerfSampler struct {
	gate *safefetch.Gate
	cfg  Config
}

// NewPerfSampler creates the custom-family adapter.
func NewPerfSampler(gate *safefetch.Gate, cfg Config) *PerfSampler {
	return &PerfSampler{gate: gate, cfg: cfg}
}

var _ Sampler = (*PerfSampler)(nil)

func (s *PerfSampler) Family() domain.ProtocolFamily { return domain.FamilyCustom }

type perfSample struct {
	NumTransactions  int64 `json:"numTransactions"`
	SamplePeriodSecs int64 `json:"samplePeriodSecs"`
}

func (s *PerfSampler) Sample(ctx context.Context, endpoint string, _ domain.ChainTarget) (*Estimate, error) {
	var samples []perfSample
	params := []interface{}{s.cfg.PerfSampleCount}
	if err := rpcCall(ctx, s.gate, endpoint, "getRecentPerformanceSamples", params, &samples); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrNoValidSamples
	}

	var totalTx, totalSecs int64
	for _, sm := range samples {
		totalTx += sm.NumTransactions
		totalSecs += sm.SamplePeriodSecs
	}
	if totalSecs == 0 {
		return nil, fmt.Errorf("zero sample time")
	}

	est := &Estimate{TPS: float64(totalTx) / float64(totalSecs)}

	// These nodes also keep an exact lifetime counter.
	var count int64
	if err := rpcCall(ctx, s.gate, endpoint, "getTransactionCount", nil, &count); err == nil && count > 0 {
		est.TotalTx = ptr(float64(count))
	}

	return est, nil
}
