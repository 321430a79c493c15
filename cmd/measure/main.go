// Package main runs one measurement sweep: load the target registry, measure
// every chain through the family samplers, persist results.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chainpulse/internal/dispatcher"
	"chainpulse/internal/domain"
	"chainpulse/internal/observability"
	"chainpulse/internal/registry"
	"chainpulse/internal/safefetch"
	"chainpulse/internal/sampler"
	"chainpulse/internal/storage"
	chstore "chainpulse/internal/storage/clickhouse"
	"chainpulse/internal/storage/memory"
	"chainpulse/internal/storage/migrations"
	pgstore "chainpulse/internal/storage/postgres"
)

func main() {
	// Load .env if present; real env vars win.
	_ = godotenv.Load()

	// Parse flags (env vars as defaults)
	targetsFile := flag.String("targets", os.Getenv("TARGETS_FILE"), "JSON target file (optional)")
	chainListURL := flag.String("chain-list-url", envOr("CHAIN_LIST_URL", registry.DefaultChainListURL), "EVM chain listing URL (empty to disable)")
	includeBuiltin := flag.Bool("include-builtin", true, "Include the built-in non-EVM chain table")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for measurement history (optional)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	concurrency := flag.Int("concurrency", dispatcher.DefaultConcurrency, "Worker pool size")
	targetTimeout := flag.Duration("target-timeout", dispatcher.DefaultTargetTimeout, "Per-target timeout")
	commitEvery := flag.Int("commit-every", dispatcher.DefaultCommitEvery, "Commit after this many completions")
	sampleSize := flag.Int("sample-size", 0, "Sampled units per window (0 = default)")
	evmLookback := flag.Int64("evm-lookback", 0, "Account-model lookback in blocks (0 = default)")
	allowPrivate := flag.Bool("allow-private", false, "Allow private/loopback endpoints (local development only)")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	logger := log.New(os.Stdout, "[measure] ", log.LstdFlags)

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received signal %v, cancelling run", sig)
		cancel()
	}()

	metrics := observability.NewMetrics("", nil)

	gateOpts := []safefetch.Option{safefetch.WithObserver(metrics)}
	if *allowPrivate {
		gateOpts = append(gateOpts, safefetch.WithAllowPrivate())
	}
	gate := safefetch.New(gateOpts...)

	cfg := sampler.DefaultConfig()
	if *sampleSize > 0 {
		cfg.SampleSize = *sampleSize
	}
	if *evmLookback > 0 {
		cfg.EVMLookback = *evmLookback
	}

	targets, err := loadTargets(ctx, gate, *targetsFile, *chainListURL, *includeBuiltin)
	if err != nil {
		logger.Fatalf("load registry: %v", err)
	}
	logger.Printf("registry loaded: %d targets", len(targets))

	store, history, cleanup, err := openStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("open stores: %v", err)
	}
	defer cleanup()

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Printf("metrics server: %v", err)
			}
		}()
	}

	d, err := dispatcher.New(dispatcher.Options{
		Concurrency:   *concurrency,
		TargetTimeout: *targetTimeout,
		CommitEvery:   *commitEvery,
		Samplers:      sampler.ForFamily(gate, cfg),
		Fallback:      sampler.NewScrapeSampler(gate),
		Store:         store,
		History:       history,
		Metrics:       metrics,
		Logger:        logger,
		Verbose:       *verbose,
		OnProgress: func(done, total int64) {
			if done%10 == 0 || done == total {
				fmt.Printf("\rProgress: %d/%d chains.", done, total)
			}
		},
	})
	if err != nil {
		logger.Fatalf("create dispatcher: %v", err)
	}

	start := time.Now()
	result, err := d.Run(ctx, targets)
	fmt.Println()
	if err != nil {
		logger.Fatalf("run failed: %v", err)
	}

	logger.Printf("run complete in %s: %d success, %d error, %d skipped",
		time.Since(start).Round(time.Second), result.Succeeded, result.Failed, result.Skipped)
}

// loadTargets merges the configured registry sources, first source wins on
// duplicate chain ids.
func loadTargets(ctx context.Context, gate *safefetch.Gate, targetsFile, chainListURL string, includeBuiltin bool) ([]domain.ChainTarget, error) {
	var sources [][]domain.ChainTarget

	if targetsFile != "" {
		fromFile, err := registry.LoadFile(targetsFile)
		if err != nil {
			return nil, err
		}
		sources = append(sources, fromFile)
	}
	if chainListURL != "" {
		remote, err := registry.FetchChainList(ctx, gate, chainListURL)
		if err != nil {
			return nil, err
		}
		sources = append(sources, remote)
	}
	if includeBuiltin {
		sources = append(sources, registry.BuiltinNonEVM())
	}

	targets := registry.Merge(sources...)
	if len(targets) == 0 {
		return nil, registry.ErrNoTargets
	}
	return targets, nil
}

// openStores builds the metrics store and the optional history store.
func openStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.MetricsStore, storage.HistoryStore, func(), error) {
	if useMemory {
		return memory.NewMetricsStore(), nil, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	store := pgstore.NewMetricsStore(pool)

	if clickhouseDSN == "" {
		return store, nil, store.Close, nil
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		store.Close()
		return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	history := chstore.NewHistoryStore(conn)

	cleanup := func() {
		if err := history.Close(); err != nil {
			log.Printf("[measure] close history store: %v", err)
		}
		store.Close()
	}
	return store, history, cleanup, nil
}

// envOr returns the env var's value or fallback when unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
