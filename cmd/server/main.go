// Package main serves the read API over the persisted chain metrics and can
// trigger measurement sweeps on demand via POST /api/refresh.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chainpulse/internal/api"
	"chainpulse/internal/dispatcher"
	"chainpulse/internal/domain"
	"chainpulse/internal/observability"
	"chainpulse/internal/registry"
	"chainpulse/internal/safefetch"
	"chainpulse/internal/sampler"
	"chainpulse/internal/storage"
	"chainpulse/internal/storage/memory"
	"chainpulse/internal/storage/migrations"
	pgstore "chainpulse/internal/storage/postgres"
)

func main() {
	// Load .env if present; real env vars win.
	_ = godotenv.Load()

	addr := flag.String("addr", envOr("SERVER_ADDR", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	targetsFile := flag.String("targets", os.Getenv("TARGETS_FILE"), "JSON target file for refresh sweeps (optional)")
	chainListURL := flag.String("chain-list-url", envOr("CHAIN_LIST_URL", registry.DefaultChainListURL), "EVM chain listing URL (empty to disable)")
	allowPrivate := flag.Bool("allow-private", false, "Allow private/loopback endpoints (local development only)")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags)

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	store, cleanup, err := openStore(ctx, *postgresDSN, *useMemory)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer cleanup()

	metrics := observability.NewMetrics("", nil)

	gateOpts := []safefetch.Option{safefetch.WithObserver(metrics)}
	if *allowPrivate {
		gateOpts = append(gateOpts, safefetch.WithAllowPrivate())
	}
	gate := safefetch.New(gateOpts...)

	var server *api.Server
	server = api.New(api.Options{
		Store:         store,
		Logger:        logger,
		AllowedOrigin: envOr("ALLOWED_ORIGINS", "*"),
		Refresh: func() error {
			return runSweep(ctx, sweepConfig{
				gate:         gate,
				store:        store,
				metrics:      metrics,
				logger:       logger,
				targetsFile:  *targetsFile,
				chainListURL: *chainListURL,
				verbose:      *verbose,
				onProgress:   server.BroadcastProgress,
			})
		},
	})

	httpServer := &http.Server{
		Addr:    *addr,
		Handler: server.Routes(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on %s", *addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("serve: %v", err)
	}
}

type sweepConfig struct {
	gate         *safefetch.Gate
	store        storage.MetricsStore
	metrics      *observability.Metrics
	logger       *log.Logger
	targetsFile  string
	chainListURL string
	verbose      bool
	onProgress   func(done, total int64)
}

// runSweep loads the registry and runs one full measurement pass.
func runSweep(ctx context.Context, cfg sweepConfig) error {
	targets, err := loadTargets(ctx, cfg.gate, cfg.targetsFile, cfg.chainListURL)
	if err != nil {
		return err
	}
	cfg.logger.Printf("refresh: measuring %d targets", len(targets))

	d, err := dispatcher.New(dispatcher.Options{
		Samplers:   sampler.ForFamily(cfg.gate, sampler.DefaultConfig()),
		Fallback:   sampler.NewScrapeSampler(cfg.gate),
		Store:      cfg.store,
		Metrics:    cfg.metrics,
		Logger:     cfg.logger,
		Verbose:    cfg.verbose,
		OnProgress: cfg.onProgress,
	})
	if err != nil {
		return err
	}

	result, err := d.Run(ctx, targets)
	if err != nil {
		return err
	}
	cfg.logger.Printf("refresh complete: %d success, %d error, %d skipped",
		result.Succeeded, result.Failed, result.Skipped)
	return nil
}

func loadTargets(ctx context.Context, gate *safefetch.Gate, targetsFile, chainListURL string) ([]domain.ChainTarget, error) {
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
	sources = append(sources, registry.BuiltinNonEVM())

	targets := registry.Merge(sources...)
	if len(targets) == 0 {
		return nil, registry.ErrNoTargets
	}
	return targets, nil
}

func openStore(ctx context.Context, postgresDSN string, useMemory bool) (storage.MetricsStore, func(), error) {
	if useMemory {
		return memory.NewMetricsStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	store := pgstore.NewMetricsStore(pool)
	return store, store.Close, nil
}

// envOr returns the env var's value or fallback when unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
