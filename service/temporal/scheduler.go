package temporal

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// SyncScheduleID is the Temporal schedule that triggers incremental syncs.
const SyncScheduleID = "algotrace-incremental-sync"

// ErrScheduleNotFound is returned by DescribeSyncSchedule when no schedule exists.
var ErrScheduleNotFound = errors.New("sync schedule not found")

// ScheduleInfo describes the current sync schedule.
type ScheduleInfo struct {
	ID              string        `json:"id"`
	Interval        time.Duration `json:"interval"`
	Paused          bool          `json:"paused"`
	NumActions      int           `json:"num_actions"`
	NextActionTimes []time.Time   `json:"next_action_times,omitempty"`
	LastActionTime  *time.Time    `json:"last_action_time,omitempty"`
}

// Scheduler manages the Temporal schedule for incremental syncs.
// The schedule triggers IncrementalSyncWorkflow on a fixed interval.
type Scheduler interface {
	// UpsertSyncSchedule creates the schedule, or updates its interval if it exists.
	UpsertSyncSchedule(ctx context.Context, interval time.Duration) error

	// DeleteSyncSchedule deletes the schedule. Incremental syncs stop.
	DeleteSyncSchedule(ctx context.Context) error

	// DescribeSyncSchedule returns ErrScheduleNotFound when there is no schedule.
	DescribeSyncSchedule(ctx context.Context) (*ScheduleInfo, error)
}

// EnsureSyncSchedule makes sure the sync schedule exists with the given
// interval. An existing schedule with the same interval is left alone.
func EnsureSyncSchedule(ctx context.Context, s Scheduler, interval time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	info, err := s.DescribeSyncSchedule(ctx)
	switch {
	case errors.Is(err, ErrScheduleNotFound):
		logger.InfoContext(ctx, "sync schedule missing, creating", "interval", interval)
	case err != nil:
		return err
	case info.Interval == interval:
		logger.DebugContext(ctx, "sync schedule up to date", "interval", interval)
		return nil
	default:
		logger.InfoContext(ctx, "sync schedule interval changed",
			"old_interval", info.Interval,
			"new_interval", interval,
		)
	}
	return s.UpsertSyncSchedule(ctx, interval)
}
