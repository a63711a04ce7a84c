package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/joho/godotenv"
)

// MaxPageSize is the largest page the Algorand indexer will serve.
const MaxPageSize = 1000

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr  string
	MetricsAddr string
	LogLevel    string
	TriggerMode string // "temporal" or "inline"

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Algorand indexer configuration
	IndexerURL   string
	IndexerToken string

	// Tracked accounts, in iteration order
	TrackedAccounts     []string
	TrackedAccountsFile string

	// Ingestion configuration
	SyncPageSize     int
	BackfillPageSize int
	BackfillPacing   time.Duration
	ReparseBatchSize int
	SyncInterval     time.Duration

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// StartupTimeout bounds the backoff used when dialing dependencies.
	StartupTimeout time.Duration
}

// accountsFile is the TOML shape of TRACKED_ACCOUNTS_FILE.
type accountsFile struct {
	Accounts []string `toml:"accounts"`
}

// Load reads configuration from environment variables and validates all required fields.
// A .env file in the working directory is loaded first if present; variables
// already set in the environment take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.TriggerMode = getEnvOrDefault("TRIGGER_MODE", "temporal")
	if cfg.TriggerMode != "temporal" && cfg.TriggerMode != "inline" {
		errs = append(errs, fmt.Errorf("TRIGGER_MODE must be temporal or inline, got %q", cfg.TriggerMode))
	}

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Algorand indexer configuration
	cfg.IndexerURL = getEnvOrDefault("ALGORAND_INDEXER_URL", "https://mainnet-idx.algonode.cloud")
	cfg.IndexerToken = os.Getenv("ALGORAND_INDEXER_TOKEN")

	// Tracked accounts
	cfg.TrackedAccounts = splitList(os.Getenv("TRACKED_ACCOUNTS"))
	cfg.TrackedAccountsFile = os.Getenv("TRACKED_ACCOUNTS_FILE")
	if cfg.TrackedAccountsFile != "" {
		fromFile, err := loadAccountsFile(cfg.TrackedAccountsFile)
		if err != nil {
			errs = append(errs, err)
		} else {
			cfg.TrackedAccounts = append(cfg.TrackedAccounts, fromFile...)
		}
	}
	cfg.TrackedAccounts = dedupe(cfg.TrackedAccounts)
	if len(cfg.TrackedAccounts) == 0 {
		errs = append(errs, fmt.Errorf("TRACKED_ACCOUNTS or TRACKED_ACCOUNTS_FILE must name at least one account"))
	}
	errs = append(errs, validateAccounts(cfg.TrackedAccounts)...)

	// Ingestion configuration
	if v, err := parseInt("SYNC_PAGE_SIZE", 100); err != nil {
		errs = append(errs, err)
	} else {
		cfg.SyncPageSize = v
	}
	if v, err := parseInt("BACKFILL_PAGE_SIZE", 100); err != nil {
		errs = append(errs, err)
	} else {
		cfg.BackfillPageSize = v
	}
	if v, err := parseInt("REPARSE_BATCH_SIZE", 500); err != nil {
		errs = append(errs, err)
	} else {
		cfg.ReparseBatchSize = v
	}
	if v, err := parseDuration("BACKFILL_PACING", "1s"); err != nil {
		errs = append(errs, err)
	} else {
		cfg.BackfillPacing = v
	}
	if v, err := parseDuration("SYNC_INTERVAL", "5m"); err != nil {
		errs = append(errs, err)
	} else {
		cfg.SyncInterval = v
	}

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "algotrace-ingest")

	if v, err := parseDuration("STARTUP_TIMEOUT", "30s"); err != nil {
		errs = append(errs, err)
	} else {
		cfg.StartupTimeout = v
	}

	errs = append(errs, cfg.rangeErrors()...)

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.IndexerURL == "" {
		errs = append(errs, fmt.Errorf("IndexerURL is required"))
	}

	if len(c.TrackedAccounts) == 0 {
		errs = append(errs, fmt.Errorf("TrackedAccounts must not be empty"))
	}
	errs = append(errs, validateAccounts(c.TrackedAccounts)...)

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	errs = append(errs, c.rangeErrors()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

func (c *Config) rangeErrors() []error {
	var errs []error
	if c.SyncPageSize < 1 || c.SyncPageSize > MaxPageSize {
		errs = append(errs, fmt.Errorf("SYNC_PAGE_SIZE must be between 1 and %d, got %d", MaxPageSize, c.SyncPageSize))
	}
	if c.BackfillPageSize < 1 || c.BackfillPageSize > MaxPageSize {
		errs = append(errs, fmt.Errorf("BACKFILL_PAGE_SIZE must be between 1 and %d, got %d", MaxPageSize, c.BackfillPageSize))
	}
	if c.ReparseBatchSize < 1 {
		errs = append(errs, fmt.Errorf("REPARSE_BATCH_SIZE must be positive, got %d", c.ReparseBatchSize))
	}
	if c.BackfillPacing < 0 {
		errs = append(errs, fmt.Errorf("BACKFILL_PACING cannot be negative"))
	}
	if c.SyncInterval < 10*time.Second {
		errs = append(errs, fmt.Errorf("SYNC_INTERVAL must be at least 10s, got %v", c.SyncInterval))
	}
	return errs
}

// validateAccounts checks every address against the Algorand checksum encoding.
func validateAccounts(accounts []string) []error {
	var errs []error
	for _, acct := range accounts {
		if _, err := types.DecodeAddress(acct); err != nil {
			errs = append(errs, fmt.Errorf("invalid tracked account %q: %w", acct, err))
		}
	}
	return errs
}

func loadAccountsFile(path string) ([]string, error) {
	var f accountsFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("TRACKED_ACCOUNTS_FILE: failed to decode %s: %w", path, err)
	}
	out := make([]string, 0, len(f.Accounts))
	for _, a := range f.Accounts {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out, nil
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// dedupe removes repeated entries while keeping first-seen order.
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
