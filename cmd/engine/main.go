package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"token-stream-lab/internal/aggregate"
	"token-stream-lab/internal/config"
	"token-stream-lab/internal/discovery"
	"token-stream-lab/internal/engine"
	"token-stream-lab/internal/filter"
	"token-stream-lab/internal/flush"
	"token-stream-lab/internal/lifecycle"
	"token-stream-lab/internal/logging"
	"token-stream-lab/internal/observability"
	"token-stream-lab/internal/storage"
	chstore "token-stream-lab/internal/storage/clickhouse"
	"token-stream-lab/internal/storage/memory"
	"token-stream-lab/internal/storage/migrations"
	pgstore "token-stream-lab/internal/storage/postgres"
	"token-stream-lab/internal/stream"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML)")
	endpoint := flag.String("endpoint", "", "Feed WebSocket endpoint (overrides config)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides config)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides config, empty keeps config value)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL + ClickHouse")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *endpoint != "" {
		cfg.Feed.Endpoint = *endpoint
	}
	if *postgresDSN != "" {
		cfg.Postgres.DSN = *postgresDSN
	}
	if *clickhouseDSN != "" {
		cfg.ClickHouse.DSN = *clickhouseDSN
	}
	if *metricsAddr != "" {
		cfg.Metrics.ListenAddr = *metricsAddr
	}

	logger := logging.New(cfg.Logging).With().Str("app", cfg.App.Name).Logger()

	if cfg.Metrics.ListenAddr != "" {
		go serveMetrics(cfg.Metrics.ListenAddr, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
		cancel()

		select {
		case sig := <-sigCh:
			logger.Error().Str("signal", sig.String()).Msg("second signal, forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error().Msg("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, *useMemory, logger)

	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatal().Err(err).Msg("engine failed")
	}

	logger.Info().Msg("shutdown complete")
}

func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	logger.Info().Str("addr", addr).Msg("starting metrics server")
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func run(ctx context.Context, cfg *config.Config, useMemory bool, logger zerolog.Logger) error {
	// Stores default to in-memory; the production path swaps in Postgres
	// for registry state and ClickHouse for the append-heavy tables.
	var (
		phaseStore    storage.PhaseStore       = memory.NewPhaseStore()
		streamStore   storage.TokenStreamStore = memory.NewTokenStreamStore()
		athStore      storage.ATHStore         = memory.NewATHStore()
		metricStore   storage.MetricStore      = memory.NewMetricStore()
		rawTradeStore storage.RawTradeStore    = memory.NewRawTradeStore()
	)

	if !useMemory {
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}

		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer conn.Close()

		phaseStore = pgstore.NewPhaseStore(pool)
		streamStore = pgstore.NewTokenStreamStore(pool)
		athStore = pgstore.NewATHStore(pool)
		metricStore = chstore.NewMetricStore(conn)
		rawTradeStore = chstore.NewRawTradeStore(conn)
	}

	registry := lifecycle.NewRegistry(phaseStore)
	if err := registry.Load(ctx); err != nil {
		return fmt.Errorf("load phases: %w", err)
	}
	logger.Info().Int("phases", registry.Len()).Msg("phase registry loaded")

	spamFilter, err := filter.New(filter.Config{
		BadWordPattern: cfg.Filter.BadWordPattern,
		BurstWindow:    cfg.Filter.BurstWindow,
	})
	if err != nil {
		return fmt.Errorf("build filter: %w", err)
	}

	aggCfg := aggregate.Config{
		WhaleThresholdSol: cfg.Aggregate.WhaleThresholdSol,
		MicroThresholdSol: cfg.Aggregate.MicroThresholdSol,
	}

	evaluator := lifecycle.NewEvaluator(registry, streamStore, lifecycle.Config{
		FullReserves:    cfg.Lifecycle.FullReserves,
		GraduationRatio: cfg.Lifecycle.GraduationRatio,
		StaleThreshold:  cfg.Lifecycle.StaleThreshold,
		OpTimeout:       cfg.Lifecycle.OpTimeout,
	}, logger)

	pipeline := flush.NewPipeline(metricStore, rawTradeStore, athStore, flush.Config{
		Attempts:     cfg.Flush.Attempts,
		RetryBackoff: cfg.Flush.RetryBackoff,
		OpTimeout:    cfg.Flush.OpTimeout,
	}, logger)

	forwarder := discovery.NewForwarder(discovery.ForwarderOptions{
		URL:        cfg.Forwarder.WebhookURL,
		BatchSize:  cfg.Forwarder.BatchSize,
		MaxRetries: cfg.Forwarder.MaxRetries,
		Timeout:    cfg.Forwarder.Timeout,
		Logger:     logger,
	})

	clientCfg := stream.ClientConfig{
		BaseDelay:    cfg.Feed.BaseDelay,
		MaxDelay:     cfg.Feed.MaxDelay,
		PingInterval: cfg.Feed.PingInterval,
		ReadTimeout:  cfg.Feed.ReadTimeout,
		WriteTimeout: cfg.Feed.WriteTimeout,
		ChunkSize:    cfg.Feed.ChunkSize,
	}
	client, err := stream.NewClient(ctx, cfg.Feed.Endpoint, &clientCfg, logger)
	if err != nil {
		return fmt.Errorf("connect to feed: %w", err)
	}
	defer client.Close()

	batcher := stream.NewBatcher(stream.BatcherOptions{
		Interval:  cfg.Feed.BatchInterval,
		MaxBatch:  cfg.Feed.MaxBatch,
		QueueSize: cfg.Feed.QueueSize,
		Subscribe: client.SubscribeTrades,
		Logger:    logger,
	})

	eng := engine.New(engine.Options{
		Client:    client,
		Batcher:   batcher,
		Cache:     discovery.NewCache(cfg.Cache.MaxSize),
		Forwarder: forwarder,
		Filter:    spamFilter,
		Registry:  registry,
		Watchlist: lifecycle.NewWatchlist(),
		Evaluator: evaluator,
		Pipeline:  pipeline,
		ATH:       aggregate.NewATHCache(),
		Streams:   streamStore,
		ATHStore:  athStore,
		AggConfig: aggCfg,
		Config: engine.Config{
			TickInterval:     cfg.Engine.TickInterval,
			ResyncInterval:   cfg.Engine.ResyncInterval,
			WatchdogInterval: cfg.Engine.WatchdogInterval,
			WatchdogMaxIdle:  cfg.Engine.WatchdogMaxIdle,
			CacheTTL:         cfg.Cache.TTL,
			SweepInterval:    cfg.Engine.SweepInterval,
			ATHFlushInterval: cfg.Engine.ATHFlushInterval,
			ForwardInterval:  cfg.Engine.ForwardInterval,
			OpTimeout:        cfg.Lifecycle.OpTimeout,
			ShutdownTimeout:  cfg.Engine.ShutdownTimeout,
		},
		Logger: logger,
	})

	logger.Info().Str("endpoint", cfg.Feed.Endpoint).Bool("memory", useMemory).Msg("starting ingestion engine")
	return eng.Run(ctx)
}
