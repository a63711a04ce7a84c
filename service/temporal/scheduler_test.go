package temporal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
)

func TestEnsureSyncSchedule(t *testing.T) {
	ctx := context.Background()

	t.Run("creates missing schedule", func(t *testing.T) {
		s := NewMockScheduler()
		require.NoError(t, EnsureSyncSchedule(ctx, s, 5*time.Minute, nil))

		interval, ok := s.Interval()
		assert.True(t, ok)
		assert.Equal(t, 5*time.Minute, interval)
		assert.Equal(t, 1, s.UpsertCount())
	})

	t.Run("leaves matching schedule alone", func(t *testing.T) {
		s := NewMockScheduler()
		require.NoError(t, s.UpsertSyncSchedule(ctx, time.Minute))

		require.NoError(t, EnsureSyncSchedule(ctx, s, time.Minute, nil))
		assert.Equal(t, 1, s.UpsertCount())
	})

	t.Run("updates changed interval", func(t *testing.T) {
		s := NewMockScheduler()
		require.NoError(t, s.UpsertSyncSchedule(ctx, time.Minute))

		require.NoError(t, EnsureSyncSchedule(ctx, s, 10*time.Minute, nil))
		interval, _ := s.Interval()
		assert.Equal(t, 10*time.Minute, interval)
		assert.Equal(t, 2, s.UpsertCount())
	})

	t.Run("describe error is returned", func(t *testing.T) {
		s := NewMockScheduler()
		s.SetDescribeError(errors.New("temporal unavailable"))

		err := EnsureSyncSchedule(ctx, s, time.Minute, nil)
		require.Error(t, err)
		assert.False(t, s.ScheduleExists())
	})

	t.Run("upsert error is returned", func(t *testing.T) {
		s := NewMockScheduler()
		s.SetUpsertError(errors.New("permission denied"))

		err := EnsureSyncSchedule(ctx, s, time.Minute, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "permission denied")
	})
}

func TestMockScheduler_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMockScheduler()

	assert.ErrorIs(t, s.DeleteSyncSchedule(ctx), ErrScheduleNotFound)

	require.NoError(t, s.UpsertSyncSchedule(ctx, time.Minute))
	require.NoError(t, s.DeleteSyncSchedule(ctx))
	assert.False(t, s.ScheduleExists())

	_, err := s.DescribeSyncSchedule(ctx)
	assert.ErrorIs(t, err, ErrScheduleNotFound)

	s.SetDeleteError(errors.New("boom"))
	s.Reset()
	require.NoError(t, s.UpsertSyncSchedule(ctx, time.Minute))
	assert.NoError(t, s.DeleteSyncSchedule(ctx))
}

func TestScheduleInfoFromDescription(t *testing.T) {
	last := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	next := last.Add(5 * time.Minute)

	desc := &client.ScheduleDescription{
		Schedule: client.Schedule{
			Spec: &client.ScheduleSpec{
				Intervals: []client.ScheduleIntervalSpec{{Every: 5 * time.Minute}},
			},
			State: &client.ScheduleState{Paused: true},
		},
		Info: client.ScheduleInfo{
			NumActions:      42,
			NextActionTimes: []time.Time{next},
			RecentActions: []client.ScheduleActionResult{
				{ActualTime: last.Add(-5 * time.Minute)},
				{ActualTime: last},
			},
		},
	}

	info := scheduleInfoFromDescription(desc)
	assert.Equal(t, SyncScheduleID, info.ID)
	assert.Equal(t, 5*time.Minute, info.Interval)
	assert.True(t, info.Paused)
	assert.Equal(t, 42, info.NumActions)
	assert.Equal(t, []time.Time{next}, info.NextActionTimes)
	require.NotNil(t, info.LastActionTime)
	assert.Equal(t, last, *info.LastActionTime)
}

func TestScheduleInfoFromDescription_Empty(t *testing.T) {
	info := scheduleInfoFromDescription(&client.ScheduleDescription{})
	assert.Zero(t, info.Interval)
	assert.False(t, info.Paused)
	assert.Nil(t, info.LastActionTime)
}
