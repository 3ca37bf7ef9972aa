package nats

import (
	"context"

	"github.com/brojonat/blockdew/service/deploy"
	"github.com/brojonat/blockdew/service/fees"
)

// Recorder forwards deployments and fee snapshots to a Publisher.
// It satisfies deploy.Recorder and fees.Recorder.
type Recorder struct {
	publisher Publisher
}

var (
	_ deploy.Recorder = (*Recorder)(nil)
	_ fees.Recorder   = (*Recorder)(nil)
)

func NewRecorder(publisher Publisher) *Recorder {
	return &Recorder{publisher: publisher}
}

func (r *Recorder) RecordDeployment(ctx context.Context, result *deploy.Result) error {
	return r.publisher.PublishDeployment(ctx, FromDeployResult(result))
}

func (r *Recorder) RecordFeeSnapshot(ctx context.Context, snapshot fees.Snapshot) error {
	return r.publisher.PublishFeeSnapshot(ctx, FromFeeSnapshot(snapshot))
}
