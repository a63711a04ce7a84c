package temporal

import (
	"context"
	"log/slog"
	"time"

	"github.com/brojonat/algotrace/service/ingest"
	"github.com/brojonat/algotrace/service/metrics"
	"go.temporal.io/sdk/activity"
)

// BackfillInput contains the input parameters for a historical backfill.
type BackfillInput struct {
	PageSize     uint64   `json:"page_size,omitempty"`
	PacingMillis int64    `json:"pacing_ms"`
	Accounts     []string `json:"accounts,omitempty"` // Empty means all tracked accounts
}

// ReparseInput contains the input parameters for a re-parse run.
type ReparseInput struct {
	BatchSize int `json:"batch_size,omitempty"`
}

// Runner is the ingestion surface the activities drive.
// *ingest.Orchestrator satisfies it.
type Runner interface {
	RunIncrementalSync(ctx context.Context) (*ingest.SyncResult, error)
	RunBackfill(ctx context.Context, opts ingest.BackfillOptions) (*ingest.BackfillResult, error)
	RunReparse(ctx context.Context, opts ingest.ReparseOptions) (*ingest.ReparseResult, error)
}

// Activities holds the dependencies needed by Temporal activities.
// All dependencies are explicit.
type Activities struct {
	runner  Runner
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(runner Runner, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		runner:  runner,
		metrics: m,
		logger:  logger,
	}
}

func (a *Activities) observe(ctx context.Context, name string, start time.Time) {
	if a.metrics == nil {
		return
	}
	a.logger.DebugContext(ctx, "recording activity duration metric", "activity", name)
	a.metrics.RecordActivityDuration(name, time.Since(start).Seconds())
}

// RunIncrementalSync fetches one page per account, starting at the round
// after its checkpoint.
// Operational failures are reported in the result, so the activity only
// errors when the orchestrator cannot run at all.
func (a *Activities) RunIncrementalSync(ctx context.Context) (*ingest.SyncResult, error) {
	start := time.Now()
	defer a.observe(ctx, "RunIncrementalSync", start)

	a.logger.InfoContext(ctx, "running incremental sync")

	result, err := a.runner.RunIncrementalSync(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "incremental sync failed", "error", err)
		return nil, err
	}

	a.logger.InfoContext(ctx, "incremental sync finished",
		"status", result.Status,
		"processed", result.ProcessedCount,
		"failed_records", result.FailedRecords,
		"duration", time.Since(start),
	)
	return result, nil
}

// RunBackfill pages through the full history of the tracked accounts,
// heartbeating after every page so a stuck run is detected.
func (a *Activities) RunBackfill(ctx context.Context, input BackfillInput) (*ingest.BackfillResult, error) {
	start := time.Now()
	defer a.observe(ctx, "RunBackfill", start)

	a.logger.InfoContext(ctx, "running backfill",
		"page_size", input.PageSize,
		"pacing_ms", input.PacingMillis,
		"accounts", len(input.Accounts),
	)

	result, err := a.runner.RunBackfill(ctx, ingest.BackfillOptions{
		PageSize: input.PageSize,
		Pacing:   time.Duration(input.PacingMillis) * time.Millisecond,
		Accounts: input.Accounts,
		OnPage: func(p ingest.PageProgress) {
			activity.RecordHeartbeat(ctx, p)
		},
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "backfill failed", "error", err)
		return nil, err
	}

	a.logger.InfoContext(ctx, "backfill finished",
		"status", result.Status,
		"total_records", result.TotalRecords,
		"pages", result.PagesProcessed,
		"accounts", result.AccountsProcessed,
		"duration", time.Since(start),
	)
	return result, nil
}

// RunReparse re-extracts every stored note with the current rules.
func (a *Activities) RunReparse(ctx context.Context, input ReparseInput) (*ingest.ReparseResult, error) {
	start := time.Now()
	defer a.observe(ctx, "RunReparse", start)

	a.logger.InfoContext(ctx, "running reparse", "batch_size", input.BatchSize)

	result, err := a.runner.RunReparse(ctx, ingest.ReparseOptions{BatchSize: input.BatchSize})
	if err != nil {
		a.logger.ErrorContext(ctx, "reparse failed", "error", err)
		return nil, err
	}

	a.logger.InfoContext(ctx, "reparse finished",
		"status", result.Status,
		"scanned", result.Scanned,
		"no_match", result.NoMatch,
		"failed", result.Failed,
	)
	return result, nil
}
