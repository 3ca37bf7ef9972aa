package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/brojonat/blockdew/service/metrics"
)

// Publisher defines the interface for publishing blockdew events to NATS.
type Publisher interface {
	// PublishDeployment publishes to "deploys.{network}".
	PublishDeployment(ctx context.Context, event *DeploymentEvent) error

	// PublishFeeSnapshot publishes to "fees.{network}".
	PublishFeeSnapshot(ctx context.Context, event *FeeSnapshotEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for blockdew events.
	StreamName = "BLOCKDEW"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour
)

// StreamSubjects are the subject patterns captured by the stream.
var StreamSubjects = []string{"deploys.*", "fees.*"}

// DeploymentSubject returns the subject a deployment on network is published to.
func DeploymentSubject(network string) string {
	return "deploys." + network
}

// FeeSubject returns the subject fee snapshots for network are published to.
func FeeSubject(network string) string {
	return "fees." + network
}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	nc, err := nats.Connect(natsURL,
		nats.Name("blockdew-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Stacks contract deployments and fee snapshots",
		Subjects:    StreamSubjects,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishDeployment publishes a deployment event.
func (p *JetStreamPublisher) PublishDeployment(ctx context.Context, event *DeploymentEvent) error {
	subject := DeploymentSubject(event.Network)
	if err := p.publish(ctx, subject, event); err != nil {
		return fmt.Errorf("failed to publish deployment: %w", err)
	}

	p.logger.DebugContext(ctx, "published deployment event",
		"subject", subject,
		"txid", event.TxID,
	)
	return nil
}

// PublishFeeSnapshot publishes a fee snapshot event.
func (p *JetStreamPublisher) PublishFeeSnapshot(ctx context.Context, event *FeeSnapshotEvent) error {
	subject := FeeSubject(event.Network)
	if err := p.publish(ctx, subject, event); err != nil {
		return fmt.Errorf("failed to publish fee snapshot: %w", err)
	}

	p.logger.DebugContext(ctx, "published fee snapshot event", "subject", subject)
	return nil
}

func (p *JetStreamPublisher) publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	}
	return err
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
