package temporal

import (
	"context"
	"time"

	"github.com/brojonat/blockdew/service/stacks"
)

// Scheduler manages the Temporal schedules that record fee history.
// Each network gets its own schedule that triggers RecordFeesWorkflow.
type Scheduler interface {
	// UpsertFeeSchedule creates or updates the schedule for a network.
	UpsertFeeSchedule(ctx context.Context, network stacks.Network, threshold float64, interval time.Duration) error

	// DeleteFeeSchedule deletes the schedule for a network, which stops
	// its fee history from being recorded.
	DeleteFeeSchedule(ctx context.Context, network stacks.Network) error
}

// scheduleID returns the Temporal schedule ID for a network.
func scheduleID(network stacks.Network) string {
	return "record-fees-" + network.String()
}
