// Package history holds the deployment and fee history records served by
// the HTTP API. It has no database dependencies so API clients can use it.
package history

import "time"

// Deployment is a successful contract deployment.
type Deployment struct {
	ID           int64     `json:"id"`
	TxID         string    `json:"txid"`
	Network      string    `json:"network"`
	Address      string    `json:"address"`
	ContractName string    `json:"contract_name"`
	Nonce        int64     `json:"nonce"`
	Fee          int64     `json:"fee"`
	FeeRate      float64   `json:"fee_rate"`
	MeasuredSize int32     `json:"measured_size"`
	ExplorerURL  string    `json:"explorer_url"`
	DeployedAt   time.Time `json:"deployed_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// FeeSnapshot is one recorded fee reading. Rate and tiers are nil when the
// fetch failed.
type FeeSnapshot struct {
	ID        int64     `json:"id"`
	Network   string    `json:"network"`
	Rate      *float64  `json:"rate,omitempty"`
	TierLow   *int64    `json:"tier_low,omitempty"`
	TierAvg   *int64    `json:"tier_avg,omitempty"`
	TierHigh  *int64    `json:"tier_high,omitempty"`
	Threshold float64   `json:"threshold"`
	Status    *string   `json:"status,omitempty"`
	Error     *string   `json:"error,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
	CreatedAt time.Time `json:"created_at"`
}

// ListParams filters history queries. An empty Network matches both networks.
type ListParams struct {
	Network string
	Since   *time.Time
	Limit   int32
}
