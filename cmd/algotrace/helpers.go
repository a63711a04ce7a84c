package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/brojonat/algotrace/service/algorand"
	"github.com/brojonat/algotrace/service/config"
	"github.com/brojonat/algotrace/service/db"
	"github.com/brojonat/algotrace/service/extract"
	"github.com/brojonat/algotrace/service/ingest"
	natspkg "github.com/brojonat/algotrace/service/nats"
	"github.com/brojonat/algotrace/service/temporal"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(c.Context, dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(c.Context); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool, nil)
	closer := func() { pool.Close() }

	return store, closer, nil
}

// loadConfig reads the service configuration. Global flags that were set
// explicitly take precedence over the environment.
func loadConfig(c *cli.Context) (*config.Config, error) {
	overrides := map[string]string{
		"database-url":       "DATABASE_URL",
		"nats-url":           "NATS_URL",
		"temporal-host":      "TEMPORAL_HOST",
		"temporal-namespace": "TEMPORAL_NAMESPACE",
	}
	for flag, env := range overrides {
		if c.IsSet(flag) {
			if err := os.Setenv(env, c.String(flag)); err != nil {
				return nil, fmt.Errorf("failed to apply --%s: %w", flag, err)
			}
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger writes human-oriented logs to stderr so stdout stays parseable.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			level = slog.LevelWarn
		}
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildOrchestrator wires the ledger client, store and optional publisher
// into an in-process orchestrator. The returned closer releases the publisher.
func buildOrchestrator(cfg *config.Config, store *db.Store, publish bool, natsURL string, logger *slog.Logger) (*ingest.Orchestrator, func(), error) {
	rpc, err := algorand.NewRPCClient(cfg.IndexerURL, cfg.IndexerToken)
	if err != nil {
		return nil, nil, err
	}
	ledger := algorand.NewClient(rpc, algorand.EndpointLabel(cfg.IndexerURL), nil, logger)

	closer := func() {}
	var publisher ingest.Publisher
	if publish {
		p, err := natspkg.NewPublisher(natsURL, nil, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create NATS publisher: %w", err)
		}
		publisher = p
		closer = func() { _ = p.Close() }
	}

	orch := ingest.New(ledger, store, extract.NewExtractor(nil, logger), publisher, nil, logger, ingest.Options{
		Accounts: cfg.TrackedAccounts,
		PageSize: uint64(cfg.SyncPageSize),
	})
	return orch, closer, nil
}

// Helper function to connect to Temporal
func getTemporalClient(c *cli.Context, logger *slog.Logger) (*temporal.Client, error) {
	host := c.String("temporal-host")
	if host == "" {
		host = "localhost:7233"
	}
	namespace := c.String("temporal-namespace")
	if namespace == "" {
		namespace = "default"
	}
	taskQueue := getEnvOrDefault("TEMPORAL_TASK_QUEUE", "algotrace-ingest")

	return temporal.NewClient(host, namespace, taskQueue, logger)
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Helper function to output JSON
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// recordJSON pairs an extracted record with its kind for output.
type recordJSON struct {
	Kind   extract.Kind   `json:"kind"`
	Fields extract.Record `json:"fields"`
}

func recordsJSON(records []extract.Record) []recordJSON {
	out := make([]recordJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, recordJSON{Kind: rec.Kind(), Fields: rec})
	}
	return out
}

// Helper function to format optional values
func formatOptional(s *string) string {
	if s != nil && *s != "" {
		return *s
	}
	return "(none)"
}

// interruptContext is cancelled on Ctrl-C or SIGTERM.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
