package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/algotrace/service/config"
	"github.com/brojonat/algotrace/service/db"
	"github.com/brojonat/algotrace/service/extract"
	"github.com/brojonat/algotrace/service/ingest"
	"github.com/brojonat/algotrace/service/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SyncRunner runs ingestion on behalf of the trigger endpoints.
// Both *temporal.Client and *ingest.Orchestrator satisfy it.
type SyncRunner interface {
	RunIncrementalSync(ctx context.Context) (*ingest.SyncResult, error)
	RunBackfill(ctx context.Context, opts ingest.BackfillOptions) (*ingest.BackfillResult, error)
}

// Store is the read side of the persistence layer used by the API.
type Store interface {
	Ping(ctx context.Context) error
	ListCheckpoints(ctx context.Context) ([]*db.Checkpoint, error)
	ListTransactions(ctx context.Context, account string, limit, offset int) ([]*db.Transaction, error)
	GetTransactionByTxID(ctx context.Context, txID string) (*db.Transaction, error)
	ListExtractedRecords(ctx context.Context, txKey int64) ([]extract.Record, error)
}

// Server represents the HTTP server for the ingestion service.
type Server struct {
	addr    string
	cfg     *config.Config
	store   Store
	runner  SyncRunner
	metrics *metrics.Metrics
	logger  *slog.Logger
	server  *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The runner performs syncs and backfills, either through Temporal or in-process.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, store Store, runner SyncRunner, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:    addr,
		cfg:     cfg,
		store:   store,
		runner:  runner,
		metrics: m,
		logger:  logger,
	}
}

// Handler builds the routed handler, wrapped in request metrics and CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Trigger routes
	mux.Handle("POST /api/v1/sync", handleRunSync(s.runner, s.logger))
	mux.Handle("GET /api/v1/sync", handleSyncStatus(s.store, s.cfg.TrackedAccounts, s.logger))
	mux.Handle("POST /api/v1/sync/historical", handleBackfill(s.runner, s.cfg, s.logger))

	// Read routes
	mux.Handle("GET /api/v1/transactions", handleListTransactions(s.store, s.logger))
	mux.Handle("GET /api/v1/transactions/{tx_id}", handleGetTransaction(s.store, s.logger))

	mux.Handle("GET /health", handleHealth(s.store, s.logger))

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(metrics.HTTPMetricsMiddleware(s.metrics)(mux))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// Sync and backfill responses are written when the run completes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
