package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/blockdew/service/deploy"
	"github.com/brojonat/blockdew/service/fees"
	"github.com/brojonat/blockdew/service/stacks"
)

func testResult(txID string, deployedAt time.Time) *deploy.Result {
	return &deploy.Result{
		Network:      stacks.Testnet,
		Address:      "ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKQVX8X0G",
		ContractName: "blockdew",
		TxID:         txID,
		ExplorerURL:  "https://explorer.hiro.so/txid/" + txID + "?chain=testnet",
		Nonce:        7,
		FeeRate:      2,
		MeasuredSize: 180,
		Fee:          360,
		DeployedAt:   deployedAt,
	}
}

func TestDeploymentFromResult(t *testing.T) {
	now := time.Now().UTC()
	d := DeploymentFromResult(testResult("abc123", now))

	assert.Equal(t, "abc123", d.TxID)
	assert.Equal(t, "testnet", d.Network)
	assert.Equal(t, int64(7), d.Nonce)
	assert.Equal(t, int64(360), d.Fee)
	assert.Equal(t, int32(180), d.MeasuredSize)
	assert.Equal(t, now, d.DeployedAt)
}

func TestFeeSnapshotFromDashboard(t *testing.T) {
	rate := 100.0
	tiers := fees.ComputeTiers(rate)
	f := FeeSnapshotFromDashboard(fees.Snapshot{
		Network:   stacks.Mainnet,
		Rate:      &rate,
		Tiers:     &tiers,
		Status:    fees.StatusGood,
		Threshold: 300,
	})

	assert.Equal(t, "mainnet", f.Network)
	require.NotNil(t, f.TierLow)
	assert.Equal(t, int64(80), *f.TierLow)
	assert.Equal(t, int64(120), *f.TierHigh)
	require.NotNil(t, f.Status)
	assert.Equal(t, "good", *f.Status)
	assert.Nil(t, f.Error)
	assert.False(t, f.FetchedAt.IsZero())

	failed := FeeSnapshotFromDashboard(fees.Snapshot{
		Network:   stacks.Testnet,
		Threshold: 300,
		Error:     fees.LoadError,
	})
	assert.Nil(t, failed.Rate)
	assert.Nil(t, failed.TierAvg)
	assert.Nil(t, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Equal(t, fees.LoadError, *failed.Error)
}

func TestStore_Deployments(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, store.RecordDeployment(ctx, testResult("tx-old", base.Add(-time.Hour))))
	require.NoError(t, store.RecordDeployment(ctx, testResult("tx-new", base)))

	got, err := store.GetDeployment(ctx, "tx-new", "testnet")
	require.NoError(t, err)
	assert.Equal(t, uint64(360), uint64(got.Fee))
	assert.True(t, base.Equal(got.DeployedAt))

	_, err = store.GetDeployment(ctx, "tx-new", "mainnet")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := store.ListDeployments(ctx, ListParams{Network: "testnet"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "tx-new", list[0].TxID)
	assert.Equal(t, "tx-old", list[1].TxID)

	since := base.Add(-time.Minute)
	list, err = store.ListDeployments(ctx, ListParams{Since: &since})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tx-new", list[0].TxID)

	list, err = store.ListDeployments(ctx, ListParams{Network: "mainnet"})
	require.NoError(t, err)
	assert.Empty(t, list)

	// duplicate txid on the same network is rejected
	assert.Error(t, store.RecordDeployment(ctx, testResult("tx-new", base)))
}

func TestStore_FeeSnapshots(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	rate := 250.0
	tiers := fees.ComputeTiers(rate)
	require.NoError(t, store.RecordFeeSnapshot(ctx, fees.Snapshot{
		Network:   stacks.Testnet,
		Rate:      &rate,
		Tiers:     &tiers,
		Status:    fees.StatusGood,
		Threshold: 300,
		UpdatedAt: time.Now().UTC().Add(-time.Minute),
	}))
	require.NoError(t, store.RecordFeeSnapshot(ctx, fees.Snapshot{
		Network:   stacks.Testnet,
		Threshold: 300,
		Error:     fees.LoadError,
		UpdatedAt: time.Now().UTC(),
	}))

	list, err := store.ListFeeSnapshots(ctx, ListParams{Network: "testnet", Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Nil(t, list[0].Rate)
	require.NotNil(t, list[0].Error)
	assert.Equal(t, fees.LoadError, *list[0].Error)

	require.NotNil(t, list[1].Rate)
	assert.Equal(t, 250.0, *list[1].Rate)
	assert.Equal(t, int64(300), *list[1].TierHigh)
}
