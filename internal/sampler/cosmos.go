package sampler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chainpulse/internal/domain"
	"chainpulse/internal/safefetch"
)

// CosmosSampler measures tendermint-style chains over their REST surface.
//
// Variation points: unit = block fetched from
// /cosmos/base/tendermint/v1beta1/blocks/{height}, with the pre-SDK-0.40
// /blocks/{height} path as fallback; timestamps are RFC3339 strings;
// transaction counts come from the base64 tx list embedded in the block.
type CosmosSampler struct {
	gate *safefetch.Gate
	cfg  Config
}

// NewCosmosSampler creates the cosmos-like adapter.
func NewCosmosSampler(gate *safefetch.Gate, cfg Config) *CosmosSampler {
	return &CosmosSampler{gate: gate, cfg: cfg}
}

var _ Sampler = (*CosmosSampler)(nil)

func (s *CosmosSampler) Family() domain.ProtocolFamily { return domain.FamilyCosmosLike }

type cosmosBlock struct {
	height int64
	time   time.Time
	txs    int
}

type cosmosBlockPayload struct {
	Block struct {
		Header struct {
			Height string `json:"height"`
			Time   string `json:"time"`
		} `json:"header"`
		Data struct {
			Txs []string `json:"txs"`
		} `json:"data"`
	} `json:"block"`
}

// getBlock fetches one block, trying the modern path first and the legacy
// path when the node predates it.
func (s *CosmosSampler) getBlock(ctx context.Context, base, id string) (*cosmosBlock, error) {
	paths := []string{
		base + "/cosmos/base/tendermint/v1beta1/blocks/" + id,
		base + "/blocks/" + id,
	}

	var lastErr error
	for _, u := range paths {
		body, err := s.gate.Fetch(ctx, u)
		if err != nil {
			lastErr = err
			continue
		}
		var payload cosmosBlockPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			lastErr = fmt.Errorf("unmarshal block: %w", err)
			continue
		}
		if payload.Block.Header.Height == "" {
			lastErr = fmt.Errorf("block %s missing header", id)
			continue
		}

		height, err := strconv.ParseInt(payload.Block.Header.Height, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse height: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, payload.Block.Header.Time)
		if err != nil {
			return nil, fmt.Errorf("parse block time: %w", err)
		}
		return &cosmosBlock{height: height, time: ts, txs: len(payload.Block.Data.Txs)}, nil
	}
	return nil, lastErr
}

func (s *CosmosSampler) Sample(ctx context.Context, endpoint string, _ domain.ChainTarget) (*Estimate, error) {
	base := strings.TrimRight(endpoint, "/")

	latest, err := s.getBlock(ctx, base, "latest")
	if err != nil {
		return nil, err
	}

	startHeight := maxInt64(1, latest.height-s.cfg.CosmosLookback)
	start, err := s.getBlock(ctx, base, strconv.FormatInt(startHeight, 10))
	if err != nil {
		startHeight = maxInt64(1, latest.height-s.cfg.CosmosFallback)
		start, err = s.getBlock(ctx, base, strconv.FormatInt(startHeight, 10))
		if err != nil {
			return nil, ErrNoStartBlock
		}
	}

	elapsed := latest.time.Sub(start.time).Seconds()

	var totalTx, valid int64
	for _, h := range samplePoints(start.height, latest.height, s.cfg.SampleSize) {
		blk, err := s.getBlock(ctx, base, strconv.FormatInt(h, 10))
		if err != nil {
			continue
		}
		totalTx += int64(blk.txs)
		valid++
	}
	if valid == 0 {
		return nil, ErrNoValidSamples
	}

	avgTx := float64(totalTx) / float64(valid)
	tps, total := extrapolate(avgTx, latest.height-start.height, latest.height, elapsed)
	return &Estimate{TPS: tps, TotalTx: ptr(total)}, nil
}
