package temporal

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/blockdew/service/fees"
	"github.com/brojonat/blockdew/service/metrics"
	"github.com/brojonat/blockdew/service/stacks"
)

// Mock fee fetcher
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) GetTransferFeeRate(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

// Mock store or publisher
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordFeeSnapshot(ctx context.Context, snapshot fees.Snapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func fetchersFor(fetchers map[stacks.Network]fees.Fetcher) fees.FetcherFactory {
	return func(network stacks.Network) (fees.Fetcher, error) {
		f, ok := fetchers[network]
		if !ok {
			return nil, errors.New("no fetcher")
		}
		return f, nil
	}
}

func TestFetchFeeSnapshot(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("GetTransferFeeRate", mock.Anything).Return(250.0, nil)

	m := metrics.NewMetrics(prometheus.NewRegistry())
	activities := NewActivities(fetchersFor(map[stacks.Network]fees.Fetcher{stacks.Mainnet: fetcher}), nil, nil, m, nil)

	snap, err := activities.FetchFeeSnapshot(context.Background(), FetchFeeSnapshotInput{Network: "mainnet", Threshold: 200})
	require.NoError(t, err)
	require.NotNil(t, snap.Rate)
	assert.Equal(t, 250.0, *snap.Rate)
	assert.Equal(t, &fees.Tiers{Low: 200, Avg: 250, High: 300}, snap.Tiers)
	assert.Equal(t, fees.StatusBusy, snap.Status)
	assert.Equal(t, stacks.Mainnet, snap.Network)
	assert.Equal(t, 200.0, snap.Threshold)
	assert.False(t, snap.UpdatedAt.IsZero())
	fetcher.AssertExpectations(t)
}

func TestFetchFeeSnapshot_Failures(t *testing.T) {
	tests := []struct {
		name    string
		network string
		rate    float64
		err     error
	}{
		{name: "fetch error", network: "testnet", err: errors.New("timeout")},
		{name: "infinite rate", network: "testnet", rate: math.Inf(1)},
		{name: "NaN rate", network: "testnet", rate: math.NaN()},
		{name: "negative rate", network: "testnet", rate: -1},
		{name: "unknown network", network: "devnet"},
		{name: "no fetcher", network: "mainnet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := new(MockFetcher)
			fetcher.On("GetTransferFeeRate", mock.Anything).Return(tt.rate, tt.err).Maybe()
			activities := NewActivities(fetchersFor(map[stacks.Network]fees.Fetcher{stacks.Testnet: fetcher}), nil, nil, nil, nil)

			snap, err := activities.FetchFeeSnapshot(context.Background(), FetchFeeSnapshotInput{Network: tt.network, Threshold: 300})
			assert.Error(t, err)
			assert.Nil(t, snap)
		})
	}
}

func TestWriteFeeSnapshot(t *testing.T) {
	snap := *goodSnapshot(stacks.Testnet, 100, 300)

	store := new(MockRecorder)
	store.On("RecordFeeSnapshot", mock.Anything, snap).Return(nil).Once()
	activities := NewActivities(nil, store, nil, nil, nil)
	require.NoError(t, activities.WriteFeeSnapshot(context.Background(), snap))
	store.AssertExpectations(t)

	failing := new(MockRecorder)
	failing.On("RecordFeeSnapshot", mock.Anything, snap).Return(errors.New("db down"))
	activities = NewActivities(nil, failing, nil, nil, nil)
	err := activities.WriteFeeSnapshot(context.Background(), snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write fee snapshot")
}

func TestPublishFeeSnapshot(t *testing.T) {
	snap := *goodSnapshot(stacks.Mainnet, 400, 300)

	// no publisher configured
	activities := NewActivities(nil, new(MockRecorder), nil, nil, nil)
	assert.NoError(t, activities.PublishFeeSnapshot(context.Background(), snap))

	publisher := new(MockRecorder)
	publisher.On("RecordFeeSnapshot", mock.Anything, snap).Return(nil).Once()
	activities = NewActivities(nil, new(MockRecorder), publisher, nil, nil)
	require.NoError(t, activities.PublishFeeSnapshot(context.Background(), snap))
	publisher.AssertExpectations(t)

	failing := new(MockRecorder)
	failing.On("RecordFeeSnapshot", mock.Anything, snap).Return(errors.New("nats down"))
	activities = NewActivities(nil, new(MockRecorder), failing, nil, nil)
	assert.Error(t, activities.PublishFeeSnapshot(context.Background(), snap))
}

func TestMockScheduler(t *testing.T) {
	s := NewMockScheduler()
	ctx := context.Background()

	require.NoError(t, s.UpsertFeeSchedule(ctx, stacks.Testnet, 300, 30*time.Second))
	require.NoError(t, s.UpsertFeeSchedule(ctx, stacks.Testnet, 250, time.Minute))
	interval, threshold, ok := s.GetSchedule(stacks.Testnet)
	require.True(t, ok)
	assert.Equal(t, time.Minute, interval)
	assert.Equal(t, 250.0, threshold)
	assert.False(t, s.HasSchedule(stacks.Mainnet))

	require.NoError(t, s.DeleteFeeSchedule(ctx, stacks.Testnet))
	assert.False(t, s.HasSchedule(stacks.Testnet))
	assert.Error(t, s.DeleteFeeSchedule(ctx, stacks.Testnet))
}
