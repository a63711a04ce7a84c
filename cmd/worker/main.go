package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/algotrace/service/algorand"
	"github.com/brojonat/algotrace/service/boff"
	"github.com/brojonat/algotrace/service/config"
	"github.com/brojonat/algotrace/service/db"
	"github.com/brojonat/algotrace/service/extract"
	"github.com/brojonat/algotrace/service/ingest"
	"github.com/brojonat/algotrace/service/metrics"
	natspkg "github.com/brojonat/algotrace/service/nats"
	"github.com/brojonat/algotrace/service/temporal"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load and validate configuration from environment
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting temporal worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool, retrying while the database starts
	dbPool, err := boff.Retry(ctx, logger, "connect database", cfg.StartupTimeout, func() (*pgxpool.Pool, error) {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	logger.Info("connected to database")

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry
	logger.Info("Prometheus metrics collector initialized")

	// Initialize database store and apply the schema
	store := db.NewStore(dbPool, metricsCollector)
	if err := store.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	// Start metrics HTTP server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}

	go func() {
		logger.Info("starting metrics HTTP server", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	// Initialize Algorand indexer client
	rpc, err := algorand.NewRPCClient(cfg.IndexerURL, cfg.IndexerToken)
	if err != nil {
		logger.Error("failed to create indexer client", "error", err)
		os.Exit(1)
	}
	endpoint := algorand.EndpointLabel(cfg.IndexerURL)
	ledger := algorand.NewClient(rpc, endpoint, metricsCollector, logger)
	logger.Info("initialized algorand indexer client", "url", cfg.IndexerURL, "endpoint", endpoint)

	// Initialize NATS publisher
	natsPublisher, err := boff.Retry(ctx, logger, "connect nats", cfg.StartupTimeout, func() (*natspkg.JetStreamPublisher, error) {
		return natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
	})
	if err != nil {
		logger.Error("failed to create NATS publisher", "error", err)
		os.Exit(1)
	}
	defer natsPublisher.Close()
	logger.Info("connected to NATS", "url", cfg.NATSURL)

	orchestrator := ingest.New(
		ledger,
		store,
		extract.NewExtractor(metricsCollector, logger),
		natsPublisher,
		metricsCollector,
		logger,
		ingest.Options{
			Accounts: cfg.TrackedAccounts,
			PageSize: uint64(cfg.SyncPageSize),
		},
	)

	// Initialize Temporal client for schedule management
	temporalClient, err := boff.Retry(ctx, logger, "connect temporal", cfg.StartupTimeout, func() (*temporal.Client, error) {
		return temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
	})
	if err != nil {
		logger.Error("failed to create temporal client", "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()

	if err := temporal.EnsureSyncSchedule(ctx, temporalClient, cfg.SyncInterval, logger); err != nil {
		logger.Error("failed to ensure sync schedule", "error", err)
		os.Exit(1)
	}

	// Initialize Temporal worker
	worker, err := temporal.NewWorker(temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		Runner:            orchestrator,
		Metrics:           metricsCollector,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	logger.Info("temporal worker initialized, all dependencies ready",
		"tracked_accounts", len(cfg.TrackedAccounts),
		"sync_interval", cfg.SyncInterval,
		"task_queue", cfg.TemporalTaskQueue,
	)

	// Start worker in background
	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- worker.Start()
	}()

	// Wait for shutdown signal or worker error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		// The worker also stops itself on interrupt.
		if err != nil {
			logger.Error("temporal worker error", "error", err)
			os.Exit(1)
		}
		logger.Info("shutdown complete")
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		worker.Stop()
		logger.Info("shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
