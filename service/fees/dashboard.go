package fees

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/blockdew/service/metrics"
	"github.com/brojonat/blockdew/service/stacks"
)

// subscriberBuffer is the per-subscriber channel capacity. Updates beyond
// it are dropped for that subscriber.
const subscriberBuffer = 8

// Fetcher returns the current transfer fee rate for one network.
type Fetcher interface {
	GetTransferFeeRate(ctx context.Context) (float64, error)
}

// FetcherFactory returns the Fetcher for a network.
type FetcherFactory func(network stacks.Network) (Fetcher, error)

// Dashboard tracks the fee rate of the selected network. It only holds
// display state; snapshots are recorded to history by RecordFeesWorkflow.
type Dashboard struct {
	mu          sync.Mutex
	network     stacks.Network
	threshold   float64
	snapshot    Snapshot
	fetchers    map[stacks.Network]Fetcher
	factory     FetcherFactory
	subscribers map[chan Snapshot]struct{}

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewDashboard creates a dashboard for network with an initial threshold.
// No fetch happens until Refresh, Select or Run is called.
func NewDashboard(network stacks.Network, threshold float64, factory FetcherFactory, m *metrics.Metrics, logger *slog.Logger) *Dashboard {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Dashboard{
		network:     network,
		threshold:   threshold,
		snapshot:    Snapshot{Network: network, Threshold: threshold, Loading: true},
		fetchers:    make(map[stacks.Network]Fetcher),
		factory:     factory,
		subscribers: make(map[chan Snapshot]struct{}),
		metrics:     m,
		logger:      logger,
	}
}

// Current returns a copy of the current snapshot.
func (d *Dashboard) Current() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot
}

// Network returns the selected network.
func (d *Dashboard) Network() stacks.Network {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.network
}

// Select switches the dashboard to network and fetches its rate.
func (d *Dashboard) Select(ctx context.Context, network stacks.Network) Snapshot {
	d.mu.Lock()
	if network != d.network {
		d.network = network
		d.snapshot = Snapshot{Network: network, Threshold: d.threshold, Loading: true}
	}
	d.mu.Unlock()

	return d.Refresh(ctx)
}

// SetThreshold changes the threshold and reclassifies the current rate.
func (d *Dashboard) SetThreshold(threshold float64) Snapshot {
	d.mu.Lock()
	d.threshold = threshold
	d.snapshot.Threshold = threshold
	if d.snapshot.Rate != nil {
		d.snapshot.Status = Classify(*d.snapshot.Rate, threshold)
	}
	snap := d.snapshot
	d.mu.Unlock()

	d.broadcast(snap)
	return snap
}

// Refresh fetches the rate for the selected network and applies it if the
// selection has not changed in the meantime. It returns the snapshot in
// effect afterwards. Fetch failures are reported in the snapshot.
func (d *Dashboard) Refresh(ctx context.Context) Snapshot {
	d.mu.Lock()
	network := d.network
	d.mu.Unlock()

	rate, err := d.fetch(ctx, network)
	if err == nil {
		err = CheckRate(rate)
	}
	if d.metrics != nil {
		d.metrics.RecordFeeFetch(network.String(), rate, err)
	}

	d.mu.Lock()
	if d.network != network {
		snap := d.snapshot
		d.mu.Unlock()
		d.logger.DebugContext(ctx, "discarding stale fee result",
			"fetched_for", network.String(),
			"selected", snap.Network.String(),
		)
		if d.metrics != nil {
			d.metrics.RecordStaleFeeResult(network.String())
		}
		return snap
	}

	next := NewSnapshot(network, d.threshold, rate, err, time.Now().UTC())
	d.snapshot = next
	d.mu.Unlock()

	if err != nil {
		d.logger.WarnContext(ctx, "failed to load fee rate",
			"network", network.String(),
			"error", err,
		)
	}
	d.broadcast(next)
	return next
}

// Run refreshes immediately and then on every tick until ctx is done.
func (d *Dashboard) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", interval)
	}

	d.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Refresh(ctx)
		}
	}
}

// Subscribe returns a channel receiving every snapshot change and a func
// that unsubscribes and closes the channel.
func (d *Dashboard) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)

	d.mu.Lock()
	d.subscribers[ch] = struct{}{}
	d.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subscribers, ch)
			d.mu.Unlock()
			close(ch)
		})
	}
}

func (d *Dashboard) fetch(ctx context.Context, network stacks.Network) (float64, error) {
	fetcher, err := d.fetcher(network)
	if err != nil {
		return 0, err
	}
	return fetcher.GetTransferFeeRate(ctx)
}

func (d *Dashboard) fetcher(network stacks.Network) (Fetcher, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if f, ok := d.fetchers[network]; ok {
		return f, nil
	}
	f, err := d.factory(network)
	if err != nil {
		return nil, fmt.Errorf("failed to create fee fetcher for %s: %w", network, err)
	}
	d.fetchers[network] = f
	return f, nil
}

// broadcast never blocks; a full subscriber misses the update.
func (d *Dashboard) broadcast(snap Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for ch := range d.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}
