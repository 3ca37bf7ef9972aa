package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/brojonat/blockdew/service/fees"
	"github.com/brojonat/blockdew/service/stacks"
)

var a *Activities // for type-safe activity invocation

// RecordFeesWorkflow records one fee snapshot for a network. It is started
// by a schedule (see Client.UpsertFeeSchedule).
//
// The workflow performs these steps:
// 1. Fetch and classify the transfer fee rate (FetchFeeSnapshot)
// 2. Store the snapshot in Postgres (WriteFeeSnapshot)
// 3. Publish the snapshot to NATS (PublishFeeSnapshot)
//
// A fetch that still fails after its retries is recorded as a failed
// snapshot. A publish failure is logged and does not fail the run.
func RecordFeesWorkflow(ctx workflow.Context, input RecordFeesInput) (*RecordFeesResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("RecordFeesWorkflow started", "network", input.Network)

	result := &RecordFeesResult{
		Network:  input.Network,
		PollTime: workflow.Now(ctx),
	}

	network, err := stacks.ParseNetwork(input.Network)
	if err != nil {
		errMsg := err.Error()
		result.Error = &errMsg
		return result, err
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var snapshot *fees.Snapshot
	err = workflow.ExecuteActivity(ctx, a.FetchFeeSnapshot, FetchFeeSnapshotInput{
		Network:   network.String(),
		Threshold: input.Threshold,
	}).Get(ctx, &snapshot)
	if err != nil {
		logger.Warn("fee fetch failed, recording failed snapshot", "network", input.Network, "error", err)
		errMsg := fmt.Sprintf("failed to fetch fee rate: %v", err)
		result.Error = &errMsg
		failed := fees.NewSnapshot(network, input.Threshold, 0, err, workflow.Now(ctx).UTC())
		snapshot = &failed
	}
	result.Rate = snapshot.Rate
	result.Status = string(snapshot.Status)

	if err := workflow.ExecuteActivity(ctx, a.WriteFeeSnapshot, *snapshot).Get(ctx, nil); err != nil {
		errMsg := fmt.Sprintf("failed to write fee snapshot: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to write fee snapshot: %w", err)
	}
	result.Stored = true

	if err := workflow.ExecuteActivity(ctx, a.PublishFeeSnapshot, *snapshot).Get(ctx, nil); err != nil {
		logger.Warn("failed to publish fee snapshot", "network", input.Network, "error", err)
	} else {
		result.Published = true
	}

	logger.Info("RecordFeesWorkflow completed",
		"network", input.Network,
		"stored", result.Stored,
		"published", result.Published,
	)
	return result, nil
}
