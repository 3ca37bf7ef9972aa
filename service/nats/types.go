package nats

import (
	"time"

	"github.com/brojonat/blockdew/service/deploy"
	"github.com/brojonat/blockdew/service/fees"
)

// DeploymentEvent is published to "deploys.{network}" after a successful broadcast.
type DeploymentEvent struct {
	TxID         string `json:"txid"`
	Network      string `json:"network"`
	Address      string `json:"address"`
	ContractName string `json:"contract_name"`
	ContractID   string `json:"contract_id"`
	ExplorerURL  string `json:"explorer_url"`

	Nonce        uint64  `json:"nonce"`
	Fee          uint64  `json:"fee"`
	FeeRate      float64 `json:"fee_rate"`
	MeasuredSize int     `json:"measured_size"`

	DeployedAt  time.Time `json:"deployed_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FeeSnapshotEvent is published to "fees.{network}" whenever the dashboard
// applies a new snapshot.
type FeeSnapshotEvent struct {
	Network   string      `json:"network"`
	Rate      *float64    `json:"rate,omitempty"`
	Tiers     *fees.Tiers `json:"tiers,omitempty"`
	Status    string      `json:"status,omitempty"`
	Threshold float64     `json:"threshold"`
	Error     string      `json:"error,omitempty"`

	FetchedAt   time.Time `json:"fetched_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromDeployResult converts a deployment result to a DeploymentEvent for publishing.
func FromDeployResult(r *deploy.Result) *DeploymentEvent {
	return &DeploymentEvent{
		TxID:         r.TxID,
		Network:      r.Network.String(),
		Address:      r.Address,
		ContractName: r.ContractName,
		ContractID:   r.ContractID,
		ExplorerURL:  r.ExplorerURL,
		Nonce:        r.Nonce,
		Fee:          r.Fee,
		FeeRate:      r.FeeRate,
		MeasuredSize: r.MeasuredSize,
		DeployedAt:   r.DeployedAt,
		PublishedAt:  time.Now().UTC(),
	}
}

// FromFeeSnapshot converts a dashboard snapshot to a FeeSnapshotEvent.
func FromFeeSnapshot(s fees.Snapshot) *FeeSnapshotEvent {
	return &FeeSnapshotEvent{
		Network:     s.Network.String(),
		Rate:        s.Rate,
		Tiers:       s.Tiers,
		Status:      string(s.Status),
		Threshold:   s.Threshold,
		Error:       s.Error,
		FetchedAt:   s.UpdatedAt,
		PublishedAt: time.Now().UTC(),
	}
}
