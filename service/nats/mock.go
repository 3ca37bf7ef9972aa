package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu           sync.RWMutex
	deployments  []*DeploymentEvent
	feeSnapshots []*FeeSnapshotEvent
	publishError error
	closed       bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishDeployment records the event and returns any configured error.
func (m *MockPublisher) PublishDeployment(ctx context.Context, event *DeploymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.deployments = append(m.deployments, event)
	return nil
}

// PublishFeeSnapshot records the event and returns any configured error.
func (m *MockPublisher) PublishFeeSnapshot(ctx context.Context, event *FeeSnapshotEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.feeSnapshots = append(m.feeSnapshots, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetDeployments returns a copy of all published deployment events.
func (m *MockPublisher) GetDeployments() []*DeploymentEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*DeploymentEvent, len(m.deployments))
	copy(events, m.deployments)
	return events
}

// GetFeeSnapshots returns a copy of all published fee snapshot events.
func (m *MockPublisher) GetFeeSnapshots() []*FeeSnapshotEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*FeeSnapshotEvent, len(m.feeSnapshots))
	copy(events, m.feeSnapshots)
	return events
}

// SetPublishError configures the mock to fail every publish.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deployments = nil
	m.feeSnapshots = nil
	m.publishError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
