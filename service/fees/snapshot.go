package fees

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/brojonat/blockdew/service/stacks"
)

// LoadError is the user-facing message shown when a fetch fails.
const LoadError = "Failed to load fee rate"

// ErrUnusableRate reports a fetched rate that is not a positive finite number.
var ErrUnusableRate = errors.New("unusable fee rate")

// Snapshot is the fee state of one network at a point in time.
type Snapshot struct {
	Network   stacks.Network `json:"network"`
	Rate      *float64       `json:"rate"`
	Tiers     *Tiers         `json:"tiers,omitempty"`
	Status    Status         `json:"status,omitempty"`
	Threshold float64        `json:"threshold"`
	Loading   bool           `json:"loading"`
	Error     string         `json:"error,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Recorder stores or publishes fee snapshots.
type Recorder interface {
	RecordFeeSnapshot(ctx context.Context, snapshot Snapshot) error
}

// CheckRate returns ErrUnusableRate unless rate is positive and finite.
func CheckRate(rate float64) error {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return fmt.Errorf("%w: %v", ErrUnusableRate, rate)
	}
	return nil
}

// NewSnapshot builds the snapshot for a finished fetch. A fetch error or an
// unusable rate yields a snapshot with LoadError and no rate.
func NewSnapshot(network stacks.Network, threshold, rate float64, fetchErr error, at time.Time) Snapshot {
	snap := Snapshot{
		Network:   network,
		Threshold: threshold,
		UpdatedAt: at,
	}
	if fetchErr != nil || CheckRate(rate) != nil {
		snap.Error = LoadError
		return snap
	}

	tiers := ComputeTiers(rate)
	snap.Rate = &rate
	snap.Tiers = &tiers
	snap.Status = Classify(rate, threshold)
	return snap
}
