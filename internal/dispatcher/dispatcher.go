// Package dispatcher runs one measurement sweep: a bounded worker pool pulls
// targets, picks the family's sampler, walks the candidate endpoints in
// order, and routes every outcome to the result store. Per-target failures
// never abort the run; only a broken store does.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"chainpulse/internal/domain"
	"chainpulse/internal/observability"
	"chainpulse/internal/safefetch"
	"chainpulse/internal/sampler"
	"chainpulse/internal/storage"
)

const (
	DefaultConcurrency   = 50
	DefaultTargetTimeout = 15 * time.Second
	DefaultCommitEvery   = 10
)

// Options for creating a Dispatcher.
type Options struct {
	// Concurrency is the worker pool size, the run's global throttle.
	Concurrency int

	// TargetTimeout bounds one target's whole failover loop.
	TargetTimeout time.Duration

	// CommitEvery triggers a store commit after that many completions, so a
	// crash loses at most the uncommitted tail.
	CommitEvery int

	// Samplers maps each protocol family to its adapter. Required.
	Samplers map[domain.ProtocolFamily]sampler.Sampler

	// Fallback, when set, is tried against the target's explorer URL after
	// every candidate endpoint failed.
	Fallback sampler.Sampler

	// Store receives every result. Required.
	Store storage.MetricsStore

	// History, when set, gets one append-only observation per result.
	History storage.HistoryStore

	Metrics *observability.Metrics
	Logger  *log.Logger

	// OnProgress is invoked after each completion with (done, total).
	OnProgress func(done, total int64)

	Verbose bool
}

// Dispatcher schedules measurement work over a bounded worker pool.
type Dispatcher struct {
	opts Options

	done  atomic.Int64
	total atomic.Int64
}

// New creates a Dispatcher, applying defaults for unset options.
func New(opts Options) (*Dispatcher, error) {
	if opts.Store == nil {
		return nil, errors.New("dispatcher: Store is required")
	}
	if len(opts.Samplers) == 0 {
		return nil, errors.New("dispatcher: Samplers is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.TargetTimeout <= 0 {
		opts.TargetTimeout = DefaultTargetTimeout
	}
	if opts.CommitEvery <= 0 {
		opts.CommitEvery = DefaultCommitEvery
	}
	return &Dispatcher{opts: opts}, nil
}

// RunResult summarizes one sweep.
type RunResult struct {
	Succeeded int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

// Progress reports how many targets have completed out of the current run's
// total. Safe to call concurrently with Run.
func (d *Dispatcher) Progress() (done, total int64) {
	return d.done.Load(), d.total.Load()
}

// Run measures every target exactly once and persists every outcome. Returns
// an error only when the store becomes unusable; per-target failures land in
// the result rows.
func (d *Dispatcher) Run(ctx context.Context, targets []domain.ChainTarget) (*RunResult, error) {
	start := time.Now()
	d.done.Store(0)
	d.total.Store(int64(len(targets)))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		result    RunResult
		completed int
		storeErr  error
	)

	// persist routes one result to the store in completion order and drives
	// the periodic commit. Store failure is fatal: record it once and cancel
	// the remaining workers.
	persist := func(res *domain.MeasurementResult) {
		mu.Lock()
		defer mu.Unlock()

		if storeErr != nil {
			return
		}

		upsertStart := time.Now()
		if err := d.opts.Store.Upsert(runCtx, res); err != nil {
			if d.opts.Metrics != nil {
				d.opts.Metrics.UpsertErrors.Inc()
			}
			storeErr = fmt.Errorf("upsert %s: %w", res.ChainID, err)
			cancel()
			return
		}
		if d.opts.Metrics != nil {
			d.opts.Metrics.UpsertDuration.Observe(time.Since(upsertStart).Seconds())
		}

		if d.opts.History != nil {
			if err := d.opts.History.Append(runCtx, res); err != nil {
				d.log("history append %s: %v", res.ChainID, err)
			}
		}

		switch res.Status {
		case domain.StatusSuccess:
			result.Succeeded++
		case domain.StatusSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
		if d.opts.Metrics != nil {
			d.opts.Metrics.TargetsCompleted.WithLabelValues(string(res.Status)).Inc()
		}

		completed++
		if completed%d.opts.CommitEvery == 0 {
			if err := d.opts.Store.Commit(runCtx); err != nil {
				storeErr = fmt.Errorf("commit: %w", err)
				cancel()
				return
			}
			if d.opts.Metrics != nil {
				d.opts.Metrics.CommitsTotal.Inc()
			}
		}

		done := d.done.Add(1)
		if d.opts.OnProgress != nil {
			d.opts.OnProgress(done, d.total.Load())
		}
	}

	queue := make(chan domain.ChainTarget)
	var wg sync.WaitGroup
	for i := 0; i < d.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range queue {
				if d.opts.Metrics != nil {
					d.opts.Metrics.TargetsInFlight.Inc()
				}
				res := d.measure(runCtx, target)
				if d.opts.Metrics != nil {
					d.opts.Metrics.TargetsInFlight.Dec()
				}
				persist(res)
			}
		}()
	}

feed:
	for _, target := range targets {
		select {
		case queue <- target:
		case <-runCtx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if storeErr != nil {
		return nil, storeErr
	}
	if err := d.opts.Store.Commit(ctx); err != nil {
		return nil, fmt.Errorf("final commit: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	if d.opts.Metrics != nil {
		d.opts.Metrics.RunDuration.Observe(result.Duration.Seconds())
		d.opts.Metrics.LastSuccessfulRun.SetToCurrentTime()
	}
	return &result, nil
}

// measure runs one target's endpoint-failover loop under the per-target
// timeout and always returns a result, success or not.
func (d *Dispatcher) measure(ctx context.Context, target domain.ChainTarget) *domain.MeasurementResult {
	if len(target.CandidateEndpoints) == 0 {
		return domain.Skipped(target, "no_candidate_endpoint")
	}

	s, ok := d.opts.Samplers[target.Family]
	if !ok {
		return domain.Skipped(target, "unknown_protocol_family")
	}

	tctx, cancel := context.WithTimeout(ctx, d.opts.TargetTimeout)
	defer cancel()

	// Candidates strictly in registry order; first success wins. The final
	// error detail is the last candidate's failure reason.
	var lastDetail string
	for i, endpoint := range target.CandidateEndpoints {
		if i > 0 && d.opts.Metrics != nil {
			d.opts.Metrics.EndpointRetries.Inc()
		}

		sampleStart := time.Now()
		est, err := s.Sample(tctx, endpoint, target)
		if d.opts.Metrics != nil {
			d.opts.Metrics.SampleDuration.WithLabelValues(string(target.Family)).Observe(time.Since(sampleStart).Seconds())
		}
		if err == nil {
			return resultFrom(target, endpoint, est)
		}

		lastDetail = failureDetail(err)
		d.recordSampleError(target.Family, err)
		if tctx.Err() != nil {
			lastDetail = "timeout"
			break
		}
	}

	if d.opts.Fallback != nil && target.ExplorerURL != "" && tctx.Err() == nil {
		if d.opts.Metrics != nil {
			d.opts.Metrics.ScrapeFallbacks.Inc()
		}
		if est, err := d.opts.Fallback.Sample(tctx, "", target); err == nil {
			return resultFrom(target, "", est)
		}
	}

	d.log("target %s failed: %s", target.ChainID, lastDetail)
	return domain.Failure(target, lastDetail)
}

func (d *Dispatcher) recordSampleError(family domain.ProtocolFamily, err error) {
	if d.opts.Metrics == nil {
		return
	}
	d.opts.Metrics.SampleErrors.WithLabelValues(string(family), failureReason(err)).Inc()
}

// failureReason maps a sample error onto a closed label set. Free-form error
// text stays out of metric labels; cardinality must not grow with the chain
// universe.
func failureReason(err error) string {
	var fe *safefetch.FetchError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, sampler.ErrNoStartBlock) {
		return "no_start_block"
	}
	if errors.Is(err, sampler.ErrNoValidSamples) {
		return "no_valid_samples"
	}
	return "other"
}

// resultFrom converts a sampler estimate into the persisted result shape.
func resultFrom(target domain.ChainTarget, endpoint string, est *sampler.Estimate) *domain.MeasurementResult {
	res := domain.Success(target, endpoint, est.TPS, 0)
	res.TotalTxCount = est.TotalTx
	res.Scraped = est.Scraped
	return res
}

// failureDetail reduces a sample error to the short diagnostic persisted in
// error_message: gate and transport failures keep their machine-readable
// reason, everything else keeps its message.
func failureDetail(err error) string {
	var fe *safefetch.FetchError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func (d *Dispatcher) log(format string, args ...interface{}) {
	if !d.opts.Verbose {
		return
	}
	if d.opts.Logger != nil {
		d.opts.Logger.Printf("[dispatcher] "+format, args...)
		return
	}
	log.Printf("[dispatcher] "+format, args...)
}
