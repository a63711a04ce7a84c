package temporal

import (
	"fmt"
	"time"

	"github.com/brojonat/algotrace/service/ingest"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

const (
	// Workflow names as registered with the worker and referenced by schedules.
	IncrementalSyncWorkflowName = "IncrementalSyncWorkflow"
	BackfillWorkflowName        = "BackfillWorkflow"
	ReparseWorkflowName         = "ReparseWorkflow"

	syncTimeout       = 30 * time.Minute
	backfillTimeout   = 6 * time.Hour
	backfillHeartbeat = 5 * time.Minute
	reparseTimeout    = 2 * time.Hour
)

// noRetry is shared by every activity. A failed run is recovered by the
// next run: writes are idempotent and checkpoints only move forward.
var noRetry = &temporalsdk.RetryPolicy{MaximumAttempts: 1}

// IncrementalSyncWorkflow runs one incremental sync over every tracked account.
// It is triggered by the sync schedule or on demand.
func IncrementalSyncWorkflow(ctx workflow.Context) (*ingest.SyncResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("IncrementalSyncWorkflow started")

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: syncTimeout,
		RetryPolicy:         noRetry,
	})

	var result *ingest.SyncResult
	if err := workflow.ExecuteActivity(ctx, a.RunIncrementalSync).Get(ctx, &result); err != nil {
		logger.Error("incremental sync activity failed", "error", err)
		return nil, fmt.Errorf("failed to run incremental sync: %w", err)
	}

	logger.Info("IncrementalSyncWorkflow completed",
		"status", result.Status,
		"processed", result.ProcessedCount,
		"failed_records", result.FailedRecords,
	)
	return result, nil
}

// BackfillWorkflow pages through the full history of the tracked accounts.
// The activity heartbeats per page, so a hung fetch fails the run well
// before the start-to-close timeout.
func BackfillWorkflow(ctx workflow.Context, input BackfillInput) (*ingest.BackfillResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("BackfillWorkflow started",
		"page_size", input.PageSize,
		"pacing_ms", input.PacingMillis,
	)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: backfillTimeout,
		HeartbeatTimeout:    backfillHeartbeat,
		RetryPolicy:         noRetry,
	})

	var result *ingest.BackfillResult
	if err := workflow.ExecuteActivity(ctx, a.RunBackfill, input).Get(ctx, &result); err != nil {
		logger.Error("backfill activity failed", "error", err)
		return nil, fmt.Errorf("failed to run backfill: %w", err)
	}

	logger.Info("BackfillWorkflow completed",
		"status", result.Status,
		"total_records", result.TotalRecords,
		"pages", result.PagesProcessed,
	)
	return result, nil
}

// ReparseWorkflow re-extracts all stored notes.
func ReparseWorkflow(ctx workflow.Context, input ReparseInput) (*ingest.ReparseResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("ReparseWorkflow started", "batch_size", input.BatchSize)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: reparseTimeout,
		RetryPolicy:         noRetry,
	})

	var result *ingest.ReparseResult
	if err := workflow.ExecuteActivity(ctx, a.RunReparse, input).Get(ctx, &result); err != nil {
		logger.Error("reparse activity failed", "error", err)
		return nil, fmt.Errorf("failed to run reparse: %w", err)
	}

	logger.Info("ReparseWorkflow completed",
		"status", result.Status,
		"scanned", result.Scanned,
	)
	return result, nil
}
