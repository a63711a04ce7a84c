package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/algotrace/service/ingest"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
// It also starts workflows on demand and waits for their results.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

func (c *Client) syncAction() *client.ScheduleWorkflowAction {
	return &client.ScheduleWorkflowAction{
		ID:        SyncScheduleID + "-run",
		Workflow:  IncrementalSyncWorkflowName,
		TaskQueue: c.taskQueue,
	}
}

// UpsertSyncSchedule creates or updates the incremental sync schedule.
// If the schedule already exists, only its interval and overlap policy change.
// Overlapping runs are skipped.
func (c *Client) UpsertSyncSchedule(ctx context.Context, interval time.Duration) error {
	c.logger.Debug("upserting sync schedule",
		"schedule_id", SyncScheduleID,
		"interval", interval,
	)

	handle := c.client.ScheduleClient().GetHandle(ctx, SyncScheduleID)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.Debug("schedule not found, creating new one",
			"schedule_id", SyncScheduleID,
			"error", err,
		)
		_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
			ID: SyncScheduleID,
			Spec: client.ScheduleSpec{
				Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
			},
			Action:  c.syncAction(),
			Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
			Memo: map[string]interface{}{
				"created_by": "algotrace",
			},
		})
		if err != nil {
			c.logger.Error("failed to create schedule",
				"schedule_id", SyncScheduleID,
				"error", err,
			)
			return fmt.Errorf("failed to create schedule %q: %w", SyncScheduleID, err)
		}
		c.logger.Info("sync schedule created",
			"schedule_id", SyncScheduleID,
			"interval", interval,
		)
		return nil
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			schedule := input.Description.Schedule
			schedule.Spec.Intervals = []client.ScheduleIntervalSpec{{Every: interval}}
			schedule.Action = c.syncAction()
			if schedule.Policy == nil {
				schedule.Policy = &client.SchedulePolicies{}
			}
			schedule.Policy.Overlap = enumspb.SCHEDULE_OVERLAP_POLICY_SKIP
			return &client.ScheduleUpdate{Schedule: &schedule}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule",
			"schedule_id", SyncScheduleID,
			"error", err,
		)
		return fmt.Errorf("failed to update schedule %q: %w", SyncScheduleID, err)
	}

	c.logger.Info("sync schedule updated",
		"schedule_id", SyncScheduleID,
		"interval", interval,
	)
	return nil
}

// DeleteSyncSchedule deletes the incremental sync schedule.
func (c *Client) DeleteSyncSchedule(ctx context.Context) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, SyncScheduleID)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule",
			"schedule_id", SyncScheduleID,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", SyncScheduleID, err)
	}

	c.logger.Info("sync schedule deleted", "schedule_id", SyncScheduleID)
	return nil
}

// DescribeSyncSchedule reports the schedule's interval, state and recent activity.
func (c *Client) DescribeSyncSchedule(ctx context.Context) (*ScheduleInfo, error) {
	handle := c.client.ScheduleClient().GetHandle(ctx, SyncScheduleID)
	desc, err := handle.Describe(ctx)
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("failed to describe schedule %q: %w", SyncScheduleID, err)
	}
	return scheduleInfoFromDescription(desc), nil
}

func scheduleInfoFromDescription(desc *client.ScheduleDescription) *ScheduleInfo {
	info := &ScheduleInfo{
		ID:              SyncScheduleID,
		NumActions:      desc.Info.NumActions,
		NextActionTimes: desc.Info.NextActionTimes,
	}
	if desc.Schedule.Spec != nil && len(desc.Schedule.Spec.Intervals) > 0 {
		info.Interval = desc.Schedule.Spec.Intervals[0].Every
	}
	if desc.Schedule.State != nil {
		info.Paused = desc.Schedule.State.Paused
	}
	if n := len(desc.Info.RecentActions); n > 0 {
		last := desc.Info.RecentActions[n-1].ActualTime
		info.LastActionTime = &last
	}
	return info
}

// RunIncrementalSync starts IncrementalSyncWorkflow and waits for its result.
func (c *Client) RunIncrementalSync(ctx context.Context) (*ingest.SyncResult, error) {
	var result *ingest.SyncResult
	err := c.execute(ctx, "algotrace-sync", IncrementalSyncWorkflow, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RunBackfill starts BackfillWorkflow and waits for its result.
// opts.OnPage is not carried across the workflow boundary; progress is
// visible as activity heartbeats instead.
func (c *Client) RunBackfill(ctx context.Context, opts ingest.BackfillOptions) (*ingest.BackfillResult, error) {
	input := BackfillInput{
		PageSize:     opts.PageSize,
		PacingMillis: opts.Pacing.Milliseconds(),
		Accounts:     opts.Accounts,
	}
	var result *ingest.BackfillResult
	if err := c.execute(ctx, "algotrace-backfill", BackfillWorkflow, &result, input); err != nil {
		return nil, err
	}
	return result, nil
}

// RunReparse starts ReparseWorkflow and waits for its result.
func (c *Client) RunReparse(ctx context.Context, opts ingest.ReparseOptions) (*ingest.ReparseResult, error) {
	var result *ingest.ReparseResult
	if err := c.execute(ctx, "algotrace-reparse", ReparseWorkflow, &result, ReparseInput{BatchSize: opts.BatchSize}); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) execute(ctx context.Context, prefix string, wf interface{}, out interface{}, args ...interface{}) error {
	id := fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())

	c.logger.InfoContext(ctx, "starting workflow", "workflow_id", id, "task_queue", c.taskQueue)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
	}, wf, args...)
	if err != nil {
		return fmt.Errorf("failed to start workflow %q: %w", id, err)
	}

	if err := run.Get(ctx, out); err != nil {
		c.logger.ErrorContext(ctx, "workflow failed",
			"workflow_id", id,
			"run_id", run.GetRunID(),
			"error", err,
		)
		return fmt.Errorf("workflow %q failed: %w", id, err)
	}

	c.logger.InfoContext(ctx, "workflow completed", "workflow_id", id, "run_id", run.GetRunID())
	return nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
