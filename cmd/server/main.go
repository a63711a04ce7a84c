package main

import (
	"context"
	"log/slog"
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
	"github.com/brojonat/algotrace/service/server"
	"github.com/brojonat/algotrace/service/temporal"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"trigger_mode", cfg.TriggerMode,
		"tracked_accounts", len(cfg.TrackedAccounts),
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

	// Initialize database store and apply the schema
	store := db.NewStore(dbPool, metricsCollector)
	if err := store.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	// Choose how trigger endpoints run ingestion
	var runner server.SyncRunner
	switch cfg.TriggerMode {
	case "inline":
		orch, closeOrch, err := inlineRunner(cfg, store, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to build inline runner", "error", err)
			os.Exit(1)
		}
		defer closeOrch()
		runner = orch
	default:
		temporalClient, err := boff.Retry(ctx, logger, "connect temporal", cfg.StartupTimeout, func() (*temporal.Client, error) {
			return temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
		})
		if err != nil {
			logger.Error("failed to create temporal client", "error", err)
			os.Exit(1)
		}
		defer temporalClient.Close()
		runner = temporalClient
	}

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, store, runner, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"indexer_url", cfg.IndexerURL,
		"temporal_host", cfg.TemporalHost,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// inlineRunner builds an in-process orchestrator. Record events are published
// when NATS is reachable; without it ingestion still runs.
func inlineRunner(cfg *config.Config, store *db.Store, m *metrics.Metrics, logger *slog.Logger) (*ingest.Orchestrator, func(), error) {
	rpc, err := algorand.NewRPCClient(cfg.IndexerURL, cfg.IndexerToken)
	if err != nil {
		return nil, nil, err
	}
	ledger := algorand.NewClient(rpc, algorand.EndpointLabel(cfg.IndexerURL), m, logger)

	closer := func() {}
	var publisher ingest.Publisher
	if p, err := natspkg.NewPublisher(cfg.NATSURL, m, logger); err != nil {
		logger.Warn("NATS unavailable, record events will not be published", "url", cfg.NATSURL, "error", err)
	} else {
		publisher = p
		closer = func() { _ = p.Close() }
	}

	orch := ingest.New(ledger, store, extract.NewExtractor(m, logger), publisher, m, logger, ingest.Options{
		Accounts: cfg.TrackedAccounts,
		PageSize: uint64(cfg.SyncPageSize),
	})
	return orch, closer, nil
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
