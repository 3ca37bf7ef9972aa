package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/blockdew/service/deploy"
	"github.com/brojonat/blockdew/service/fees"
	"github.com/brojonat/blockdew/service/stacks"
)

func testResult() *deploy.Result {
	return &deploy.Result{
		Network:      stacks.Testnet,
		Address:      "ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKQVX8X0G",
		ContractName: "blockdew",
		ContractID:   "ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKQVX8X0G.blockdew",
		TxID:         "abc123",
		ExplorerURL:  "https://explorer.hiro.so/txid/abc123?chain=testnet",
		Nonce:        7,
		FeeRate:      2,
		MeasuredSize: 180,
		Fee:          360,
		DeployedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRecorder_RecordDeployment(t *testing.T) {
	pub := NewMockPublisher()
	rec := NewRecorder(pub)

	require.NoError(t, rec.RecordDeployment(context.Background(), testResult()))

	events := pub.GetDeployments()
	require.Len(t, events, 1)
	assert.Equal(t, "abc123", events[0].TxID)
	assert.Equal(t, "testnet", events[0].Network)
	assert.Equal(t, uint64(360), events[0].Fee)
	assert.Equal(t, 180, events[0].MeasuredSize)
	assert.False(t, events[0].PublishedAt.IsZero())
	assert.Equal(t, "deploys.testnet", DeploymentSubject(events[0].Network))
}

func TestRecorder_RecordFeeSnapshot(t *testing.T) {
	pub := NewMockPublisher()
	rec := NewRecorder(pub)

	rate := 100.0
	tiers := fees.ComputeTiers(rate)
	snap := fees.Snapshot{
		Network:   stacks.Mainnet,
		Rate:      &rate,
		Tiers:     &tiers,
		Status:    fees.StatusGood,
		Threshold: 300,
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, rec.RecordFeeSnapshot(context.Background(), snap))

	events := pub.GetFeeSnapshots()
	require.Len(t, events, 1)
	assert.Equal(t, "mainnet", events[0].Network)
	assert.Equal(t, "good", events[0].Status)
	assert.Equal(t, uint64(120), events[0].Tiers.High)
	assert.Equal(t, "fees.mainnet", FeeSubject(events[0].Network))
}

func TestRecorder_PropagatesPublishError(t *testing.T) {
	pub := NewMockPublisher()
	pub.SetPublishError(errors.New("nats down"))
	rec := NewRecorder(pub)

	err := rec.RecordDeployment(context.Background(), testResult())
	assert.EqualError(t, err, "nats down")
	assert.Empty(t, pub.GetDeployments())

	pub.Reset()
	require.NoError(t, rec.RecordDeployment(context.Background(), testResult()))
	assert.Len(t, pub.GetDeployments(), 1)
}

func TestFeeSnapshotEvent_ErrorStateJSON(t *testing.T) {
	event := FromFeeSnapshot(fees.Snapshot{
		Network:   stacks.Testnet,
		Threshold: 300,
		Error:     fees.LoadError,
	})

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.NotContains(t, decoded, "rate")
	assert.NotContains(t, decoded, "tiers")
	assert.Equal(t, "Failed to load fee rate", decoded["error"])
}

func TestMockPublisher_Close(t *testing.T) {
	pub := NewMockPublisher()
	assert.False(t, pub.IsClosed())
	require.NoError(t, pub.Close())
	assert.True(t, pub.IsClosed())
}
