package sampler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"chainpulse/internal/domain"
	"chainpulse/internal/safefetch"
)

// EVMSampler measures account-model chains over standard Ethereum JSON-RPC.
//
// Variation points: unit = block via eth_getBlockByNumber; heights and
// timestamps arrive hex-encoded, timestamps in seconds; transaction counts
// are read directly from the block's transactions array (hashes only, no
// full bodies).
type EVMSampler struct {
	gate *safefetch.Gate
	cfg  Config
}

// NewEVMSampler creates the account-model adapter.
func NewEVMSampler(gate *safefetch.Gate, cfg Config) *EVMSampler {
	return &EVMSampler{gate: gate, cfg: cfg}
}

var _ Sampler = (*EVMSampler)(nil)

func (s *EVMSampler) Family() domain.ProtocolFamily { return domain.FamilyAccountModel }

// evmBlock is the subset of an eth block the estimate needs.
type evmBlock struct {
	Number       string   `json:"number"`
	Timestamp    string   `json:"timestamp"`
	Transactions []string `json:"transactions"`
}

func (s *EVMSampler) getBlock(ctx context.Context, endpoint, id string) (*evmBlock, error) {
	var blk *evmBlock
	err := rpcCall(ctx, s.gate, endpoint, "eth_getBlockByNumber", []interface{}{id, false}, &blk)
	if err != nil {
		return nil, err
	}
	if blk == nil {
		return nil, fmt.Errorf("empty block for %s", id)
	}
	return blk, nil
}

// Sample implements the shared estimation template with a fixed lookback and
// a smaller fallback seek when the node has pruned the first reference point.
func (s *EVMSampler) Sample(ctx context.Context, endpoint string, _ domain.ChainTarget) (*Estimate, error) {
	latest, err := s.getBlock(ctx, endpoint, "latest")
	if err != nil {
		return nil, err
	}
	latestNum, err := hexUint(latest.Number)
	if err != nil {
		return nil, fmt.Errorf("parse head number: %w", err)
	}
	latestTS, err := hexUint(latest.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse head timestamp: %w", err)
	}

	startNum := maxInt64(0, latestNum-s.cfg.EVMLookback)
	start, err := s.getBlock(ctx, endpoint, hexStr(startNum))
	if err != nil {
		startNum = maxInt64(0, latestNum-s.cfg.EVMFallback)
		start, err = s.getBlock(ctx, endpoint, hexStr(startNum))
		if err != nil {
			return nil, ErrNoStartBlock
		}
	}
	startTS, err := hexUint(start.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse start timestamp: %w", err)
	}

	elapsed := float64(latestTS - startTS)

	var totalTx, valid int64
	for _, num := range samplePoints(startNum, latestNum, s.cfg.SampleSize) {
		blk, err := s.getBlock(ctx, endpoint, hexStr(num))
		if err != nil {
			continue
		}
		totalTx += int64(len(blk.Transactions))
		valid++
	}
	if valid == 0 {
		return nil, ErrNoValidSamples
	}

	avgTx := float64(totalTx) / float64(valid)
	tps, total := extrapolate(avgTx, latestNum-startNum, latestNum, elapsed)
	return &Estimate{TPS: tps, TotalTx: ptr(total)}, nil
}

// hexUint parses a 0x-prefixed quantity.
func hexUint(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(s, "0x"), 16, 64)
}

func hexStr(n int64) string {
	return "0x" + strconv.FormatInt(n, 16)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
