package temporal

import (
	"context"
	"sync"
	"time"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu          sync.Mutex
	exists      bool
	interval    time.Duration
	upserts     int
	upsertErr   error
	deleteErr   error
	describeErr error
}

// NewMockScheduler creates a new MockScheduler with no schedule.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{}
}

// UpsertSyncSchedule records that the schedule was created or updated.
func (m *MockScheduler) UpsertSyncSchedule(ctx context.Context, interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.exists = true
	m.interval = interval
	m.upserts++
	return nil
}

// DeleteSyncSchedule records that the schedule was deleted.
func (m *MockScheduler) DeleteSyncSchedule(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}
	if !m.exists {
		return ErrScheduleNotFound
	}
	m.exists = false
	m.interval = 0
	return nil
}

// DescribeSyncSchedule returns the recorded schedule.
func (m *MockScheduler) DescribeSyncSchedule(ctx context.Context) (*ScheduleInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.describeErr != nil {
		return nil, m.describeErr
	}
	if !m.exists {
		return nil, ErrScheduleNotFound
	}
	return &ScheduleInfo{ID: SyncScheduleID, Interval: m.interval}, nil
}

// SetUpsertError makes UpsertSyncSchedule return an error.
func (m *MockScheduler) SetUpsertError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertErr = err
}

// SetDeleteError makes DeleteSyncSchedule return an error.
func (m *MockScheduler) SetDeleteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}

// SetDescribeError makes DescribeSyncSchedule return an error.
func (m *MockScheduler) SetDescribeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.describeErr = err
}

// ScheduleExists reports whether the schedule exists.
func (m *MockScheduler) ScheduleExists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exists
}

// Interval returns the schedule interval and whether the schedule exists.
func (m *MockScheduler) Interval() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval, m.exists
}

// UpsertCount returns the number of successful upserts.
func (m *MockScheduler) UpsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

// Reset clears the schedule and errors.
func (m *MockScheduler) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exists = false
	m.interval = 0
	m.upserts = 0
	m.upsertErr = nil
	m.deleteErr = nil
	m.describeErr = nil
}
