package sampler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"chainpulse/internal/domain"
	"chainpulse/internal/safefetch"
)

// SubstrateSampler measures substrate-style chains through a Subscan-like
// block listing API.
//
// Variation points: unit = block row from POST /api/scan/blocks; timestamps
// in seconds; transaction counts come as a ready-made extrinsics_count field
// so no per-block fetch is needed. Some deployments return identical
// timestamps for the whole page; the adapter then falls back to an assumed
// fixed block time.
type SubstrateSampler struct {
	gate *safefetch.Gate
	cfg  Config
}

// NewSubstrateSampler creates the substrate adapter.
func NewSubstrateSampler(gate *safefetch.Gate, cfg Config) *SubstrateSampler {
	return &SubstrateSampler{gate: gate, cfg: cfg}
}

var _ Sampler = (*SubstrateSampler)(nil)

func (s *SubstrateSampler) Family() domain.ProtocolFamily { return domain.FamilySubstrate }

type subscanBlocksResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Blocks []struct {
			BlockNum        int64 `json:"block_num"`
			BlockTimestamp  int64 `json:"block_timestamp"`
			ExtrinsicsCount int64 `json:"extrinsics_count"`
		} `json:"blocks"`
	} `json:"data"`
}

func (s *SubstrateSampler) Sample(ctx context.Context, endpoint string, _ domain.ChainTarget) (*Estimate, error) {
	u := strings.TrimRight(endpoint, "/") + "/api/scan/blocks"
	payload, err := json.Marshal(map[string]int{"row": s.cfg.SubstrateRows, "page": 0})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	body, err := s.gate.Post(ctx, u, payload)
	if err != nil {
		return nil, err
	}

	var resp subscanBlocksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal blocks: %w", err)
	}
	if resp.Message != "Success" {
		return nil, fmt.Errorf("listing api: %s", resp.Message)
	}

	blocks := resp.Data.Blocks
	if len(blocks) < 2 {
		return nil, ErrNoValidSamples
	}

	// Rows arrive newest first.
	var totalTx int64
	for _, b := range blocks {
		totalTx += b.ExtrinsicsCount
	}
	latest := blocks[0]
	oldest := blocks[len(blocks)-1]

	elapsed := float64(latest.BlockTimestamp - oldest.BlockTimestamp)
	if elapsed <= 0 {
		// Degenerate timestamps: assume the configured block cadence.
		elapsed = float64(int64(len(blocks)-1) * s.cfg.SubstrateBlockSecs)
	}
	elapsed = clampElapsed(elapsed)

	tps := float64(totalTx) / elapsed
	avgTx := float64(totalTx) / float64(len(blocks))
	total := float64(latest.BlockNum) * avgTx
	return &Estimate{TPS: tps, TotalTx: ptr(total)}, nil
}
