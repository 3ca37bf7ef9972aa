package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/blockdew/service/fees"
	"github.com/brojonat/blockdew/service/metrics"
	"github.com/brojonat/blockdew/service/stacks"
)

// RecordFeesInput contains the input parameters for one scheduled fee recording.
type RecordFeesInput struct {
	Network   string  `json:"network"` // "mainnet" or "testnet"
	Threshold float64 `json:"threshold"`
}

// RecordFeesResult summarizes one RecordFeesWorkflow run.
type RecordFeesResult struct {
	Network   string    `json:"network"`
	Rate      *float64  `json:"rate,omitempty"`
	Status    string    `json:"status,omitempty"`
	Stored    bool      `json:"stored"`
	Published bool      `json:"published"`
	PollTime  time.Time `json:"poll_time"`
	Error     *string   `json:"error,omitempty"`
}

// FetchFeeSnapshotInput contains parameters for the FetchFeeSnapshot activity.
type FetchFeeSnapshotInput struct {
	Network   string  `json:"network"`
	Threshold float64 `json:"threshold"`
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	fetchers  fees.FetcherFactory
	store     fees.Recorder
	publisher fees.Recorder // optional
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// The publisher and metrics may be nil.
func NewActivities(fetchers fees.FetcherFactory, store, publisher fees.Recorder, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		fetchers:  fetchers,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// FetchFeeSnapshot fetches the transfer fee rate of a network and classifies
// it. A failed fetch or an unusable rate is returned as an error so the
// activity is retried.
func (a *Activities) FetchFeeSnapshot(ctx context.Context, input FetchFeeSnapshotInput) (*fees.Snapshot, error) {
	start := time.Now()
	defer a.observe("FetchFeeSnapshot", input.Network, start)

	network, err := stacks.ParseNetwork(input.Network)
	if err != nil {
		return nil, err
	}

	fetcher, err := a.fetchers(network)
	if err != nil {
		return nil, fmt.Errorf("failed to create fee fetcher for %s: %w", network, err)
	}

	rate, err := fetcher.GetTransferFeeRate(ctx)
	if err == nil {
		err = fees.CheckRate(rate)
	}
	if a.metrics != nil {
		a.metrics.RecordFeeFetch(network.String(), rate, err)
	}
	if err != nil {
		a.logger.WarnContext(ctx, "failed to fetch fee rate",
			"network", network.String(),
			"error", err,
		)
		return nil, fmt.Errorf("failed to fetch fee rate for %s: %w", network, err)
	}

	snap := fees.NewSnapshot(network, input.Threshold, rate, nil, time.Now().UTC())
	a.logger.DebugContext(ctx, "fetched fee rate",
		"network", network.String(),
		"rate", rate,
		"status", string(snap.Status),
	)
	return &snap, nil
}

// WriteFeeSnapshot stores a snapshot in the history database.
func (a *Activities) WriteFeeSnapshot(ctx context.Context, snapshot fees.Snapshot) error {
	start := time.Now()
	defer a.observe("WriteFeeSnapshot", snapshot.Network.String(), start)

	if err := a.store.RecordFeeSnapshot(ctx, snapshot); err != nil {
		a.logger.ErrorContext(ctx, "failed to write fee snapshot",
			"network", snapshot.Network.String(),
			"error", err,
		)
		return fmt.Errorf("failed to write fee snapshot: %w", err)
	}

	a.logger.DebugContext(ctx, "fee snapshot written", "network", snapshot.Network.String())
	return nil
}

// PublishFeeSnapshot publishes a snapshot to NATS. Without a publisher it
// does nothing.
func (a *Activities) PublishFeeSnapshot(ctx context.Context, snapshot fees.Snapshot) error {
	if a.publisher == nil {
		a.logger.DebugContext(ctx, "no publisher configured, skipping fee snapshot publish")
		return nil
	}

	start := time.Now()
	defer a.observe("PublishFeeSnapshot", snapshot.Network.String(), start)

	if err := a.publisher.RecordFeeSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to publish fee snapshot: %w", err)
	}
	return nil
}

func (a *Activities) observe(activity, network string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(activity, network, time.Since(start).Seconds())
	}
}
