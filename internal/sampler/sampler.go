// Package sampler implements the protocol-family estimation strategies that
// turn raw chain data (blocks, checkpoints, ledgers) into a TPS estimate and
// a lifetime transaction estimate. One adapter per family, all behind a
// single contract; every network call goes through the safefetch gate.
package sampler

import (
	"context"
	"errors"

	"chainpulse/internal/domain"
	"chainpulse/internal/safefetch"
)

// Estimation failures shared by the family adapters.
var (
	ErrNoStartBlock   = errors.New("no_start_block")
	ErrNoValidSamples = errors.New("no_valid_samples")
)

// Estimate is the raw outcome of one successful sample.
type Estimate struct {
	TPS float64

	// TotalTx is nil when neither an exact counter nor an extrapolation was
	// available. When the chain exposes a running transaction counter the
	// exact value is preferred over extrapolation.
	TotalTx *float64

	// Scraped marks values derived via page inspection.
	Scraped bool
}

// Sampler measures one target through one endpoint. Implementations must
// return promptly once ctx is done and never block indefinitely.
type Sampler interface {
	Family() domain.ProtocolFamily
	Sample(ctx context.Context, endpoint string, target domain.ChainTarget) (*Estimate, error)
}

// Config carries the heuristic sampling constants. The lookbacks approximate
// a five-to-ten-minute window for each family's typical block cadence; they
// are deliberately tunable rather than baked into the adapters.
type Config struct {
	SampleSize         int   // evenly spaced units fetched per window
	EVMLookback        int64 // blocks behind head, account-model
	EVMFallback        int64 // smaller lookback when the first seek fails
	UTXOLookback       int64 // blocks, ten-minute cadence chains
	CosmosLookback     int64 // blocks, ~6s cadence
	CosmosFallback     int64
	CheckpointLookback int64 // checkpoints behind latest sequence
	SubstrateRows      int   // recent blocks requested from the listing API
	SubstrateBlockSecs int64 // assumed block time when timestamps degenerate
	PerfSampleCount    int   // performance samples requested, custom family
}

// DefaultConfig returns the tuning used in production sweeps.
func DefaultConfig() Config {
	return Config{
		SampleSize:         5,
		EVMLookback:        100,
		EVMFallback:        10,
		UTXOLookback:       3,
		CosmosLookback:     50,
		CosmosFallback:     5,
		CheckpointLookback: 20,
		SubstrateRows:      10,
		SubstrateBlockSecs: 6,
		PerfSampleCount:    4,
	}
}

// ForFamily builds the closed set of family adapters over one gate. Adding a
// chain family means adding one entry here, nothing else changes.
func ForFamily(gate *safefetch.Gate, cfg Config) map[domain.ProtocolFamily]Sampler {
	return map[domain.ProtocolFamily]Sampler{
		domain.FamilyAccountModel:     NewEVMSampler(gate, cfg),
		domain.FamilyUTXOFork:         NewUTXOSampler(gate, cfg),
		domain.FamilyCosmosLike:       NewCosmosSampler(gate, cfg),
		domain.FamilyCheckpointLedger: NewCheckpointSampler(gate, cfg),
		domain.FamilySubstrate:        NewSubstrateSampler(gate, cfg),
		domain.FamilyCustom:           NewPerfSampler(gate, cfg),
	}
}

// samplePoints returns up to size evenly spaced heights in (start, end]. When
// the range is small enough every intermediate height is returned. This
// bounds request volume regardless of how many units separate the reference
// point from the head.
func samplePoints(start, end int64, size int) []int64 {
	total := end - start
	if total <= 0 {
		return nil
	}
	if total <= int64(size) {
		points := make([]int64, 0, total)
		for h := start + 1; h <= end; h++ {
			points = append(points, h)
		}
		return points
	}

	step := total / int64(size)
	points := make([]int64, 0, size)
	for i := 0; i < size; i++ {
		h := start + 1 + int64(i)*step
		if h > end {
			break
		}
		points = append(points, h)
	}
	return points
}

// clampElapsed floors the window duration at one second to prevent division
// by zero on chains whose reference unit shares the head's timestamp.
func clampElapsed(secs float64) float64 {
	if secs <= 0 {
		return 1
	}
	return secs
}

// extrapolate applies the shared estimation template: average the sampled
// per-unit counts, scale to the full window for TPS, and project the chain's
// full height for the lifetime estimate.
func extrapolate(avgTxPerUnit float64, windowUnits, height int64, elapsedSecs float64) (tps, totalTx float64) {
	tps = avgTxPerUnit * float64(windowUnits) / clampElapsed(elapsedSecs)
	totalTx = float64(height) * avgTxPerUnit
	return tps, totalTx
}

func ptr(v float64) *float64 { return &v }
