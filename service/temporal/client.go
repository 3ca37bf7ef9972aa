package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/brojonat/blockdew/service/stacks"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

var _ Scheduler = (*Client)(nil)

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// CreateFeeSchedule creates a schedule that runs RecordFeesWorkflow for
// network every interval.
func (c *Client) CreateFeeSchedule(ctx context.Context, network stacks.Network, threshold float64, interval time.Duration) error {
	id := scheduleID(network)

	c.logger.Debug("creating fee schedule",
		"network", network.String(),
		"schedule_id", id,
		"interval", interval,
	)

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{
				{Every: interval},
			},
		},
		Action: c.workflowAction(network, threshold),
		Memo: map[string]interface{}{
			"network":    network.String(),
			"threshold":  threshold,
			"created_by": "blockdew",
		},
	})
	if err != nil {
		c.logger.Error("failed to create schedule",
			"network", network.String(),
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", id, err)
	}

	c.logger.Info("fee schedule created",
		"network", network.String(),
		"schedule_id", id,
		"interval", interval,
		"threshold", threshold,
	)
	return nil
}

// UpsertFeeSchedule creates the schedule for network, or updates its
// interval and threshold if it already exists.
func (c *Client) UpsertFeeSchedule(ctx context.Context, network stacks.Network, threshold float64, interval time.Duration) error {
	id := scheduleID(network)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.Debug("schedule not found, creating new one",
			"schedule_id", id,
			"error", err,
		)
		return c.CreateFeeSchedule(ctx, network, threshold, interval)
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			input.Description.Schedule.Action = c.workflowAction(network, threshold)
			return &client.ScheduleUpdate{
				Schedule: &input.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule",
			"network", network.String(),
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to update schedule %q: %w", id, err)
	}

	c.logger.Info("fee schedule updated",
		"network", network.String(),
		"schedule_id", id,
		"interval", interval,
		"threshold", threshold,
	)
	return nil
}

// DeleteFeeSchedule deletes the schedule for network.
func (c *Client) DeleteFeeSchedule(ctx context.Context, network stacks.Network) error {
	id := scheduleID(network)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule",
			"network", network.String(),
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}

	c.logger.Info("fee schedule deleted",
		"network", network.String(),
		"schedule_id", id,
	)
	return nil
}

// Close closes the underlying Temporal connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

func (c *Client) workflowAction(network stacks.Network, threshold float64) *client.ScheduleWorkflowAction {
	return &client.ScheduleWorkflowAction{
		ID:        "record-fees-" + network.String(),
		Workflow:  "RecordFeesWorkflow",
		TaskQueue: c.taskQueue,
		Args: []interface{}{RecordFeesInput{
			Network:   network.String(),
			Threshold: threshold,
		}},
	}
}

type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
