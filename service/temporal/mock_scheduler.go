package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brojonat/blockdew/service/stacks"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu         sync.Mutex
	schedules  map[string]time.Duration // map[scheduleID]interval
	thresholds map[string]float64
	upsertErr  error
	deleteErr  error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{
		schedules:  make(map[string]time.Duration),
		thresholds: make(map[string]float64),
	}
}

// UpsertFeeSchedule creates or updates a schedule.
func (m *MockScheduler) UpsertFeeSchedule(ctx context.Context, network stacks.Network, threshold float64, interval time.Duration) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := scheduleID(network)
	m.schedules[id] = interval
	m.thresholds[id] = threshold
	return nil
}

// DeleteFeeSchedule removes a schedule.
func (m *MockScheduler) DeleteFeeSchedule(ctx context.Context, network stacks.Network) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := scheduleID(network)
	if _, exists := m.schedules[id]; !exists {
		return fmt.Errorf("schedule %q not found", id)
	}
	delete(m.schedules, id)
	delete(m.thresholds, id)
	return nil
}

// HasSchedule reports whether a schedule exists for network.
func (m *MockScheduler) HasSchedule(network stacks.Network) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.schedules[scheduleID(network)]
	return exists
}

// GetSchedule returns the interval and threshold of the schedule for network.
func (m *MockScheduler) GetSchedule(network stacks.Network) (time.Duration, float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := scheduleID(network)
	interval, exists := m.schedules[id]
	return interval, m.thresholds[id], exists
}

// SetUpsertError makes subsequent UpsertFeeSchedule calls fail.
func (m *MockScheduler) SetUpsertError(err error) {
	m.upsertErr = err
}

// SetDeleteError makes subsequent DeleteFeeSchedule calls fail.
func (m *MockScheduler) SetDeleteError(err error) {
	m.deleteErr = err
}
