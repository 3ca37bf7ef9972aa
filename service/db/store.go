package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brojonat/blockdew/service/deploy"
	"github.com/brojonat/blockdew/service/fees"
	"github.com/brojonat/blockdew/service/history"
	"github.com/brojonat/blockdew/service/metrics"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store persists deployment and fee history in Postgres.
// It satisfies deploy.Recorder and fees.Recorder.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

var (
	_ deploy.Recorder = (*Store)(nil)
	_ fees.Recorder   = (*Store)(nil)
)

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil no query metrics are recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// Row types are defined in the history package so API clients do not
// depend on the database driver.
type (
	Deployment  = history.Deployment
	FeeSnapshot = history.FeeSnapshot
	ListParams  = history.ListParams
)

const deploymentColumns = `id, txid, network, address, contract_name, nonce, fee, fee_rate, measured_size, explorer_url, deployed_at, created_at`

// CreateDeployment inserts a deployment and returns the stored row.
func (s *Store) CreateDeployment(ctx context.Context, d *Deployment) (*Deployment, error) {
	var err error
	defer metrics.Timer(time.Now(), func(dur float64) { s.record("insert", "deployments", dur, err) })()

	query := `
		INSERT INTO deployments (txid, network, address, contract_name, nonce, fee, fee_rate, measured_size, explorer_url, deployed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + deploymentColumns

	row := s.pool.QueryRow(ctx, query,
		d.TxID,
		d.Network,
		d.Address,
		d.ContractName,
		d.Nonce,
		d.Fee,
		d.FeeRate,
		d.MeasuredSize,
		d.ExplorerURL,
		d.DeployedAt,
	)
	var created *Deployment
	created, err = scanDeployment(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert deployment: %w", err)
	}
	return created, nil
}

// GetDeployment retrieves a deployment by txid and network.
func (s *Store) GetDeployment(ctx context.Context, txID, network string) (*Deployment, error) {
	var err error
	defer metrics.Timer(time.Now(), func(dur float64) { s.record("select", "deployments", dur, err) })()

	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE txid = $1 AND network = $2`

	var d *Deployment
	d, err = scanDeployment(s.pool.QueryRow(ctx, query, txID, network))
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
		return nil, fmt.Errorf("deployment %s on %s: %w", txID, network, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}
	return d, nil
}

// ListDeployments returns deployments newest first.
func (s *Store) ListDeployments(ctx context.Context, params ListParams) ([]*Deployment, error) {
	var err error
	defer metrics.Timer(time.Now(), func(dur float64) { s.record("select", "deployments", dur, err) })()

	query := `
		SELECT ` + deploymentColumns + `
		FROM deployments
		WHERE ($1 = '' OR network = $1)
		  AND ($2::timestamptz IS NULL OR deployed_at >= $2)
		ORDER BY deployed_at DESC, id DESC
		LIMIT $3`

	var rows pgx.Rows
	rows, err = s.pool.Query(ctx, query, params.Network, params.Since, limitOrDefault(params.Limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer rows.Close()

	deployments := make([]*Deployment, 0)
	for rows.Next() {
		var d *Deployment
		d, err = scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		deployments = append(deployments, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	return deployments, nil
}

const feeSnapshotColumns = `id, network, rate, tier_low, tier_avg, tier_high, threshold, status, error, fetched_at, created_at`

// CreateFeeSnapshot inserts a fee snapshot and returns the stored row.
func (s *Store) CreateFeeSnapshot(ctx context.Context, f *FeeSnapshot) (*FeeSnapshot, error) {
	var err error
	defer metrics.Timer(time.Now(), func(dur float64) { s.record("insert", "fee_snapshots", dur, err) })()

	query := `
		INSERT INTO fee_snapshots (network, rate, tier_low, tier_avg, tier_high, threshold, status, error, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + feeSnapshotColumns

	var created *FeeSnapshot
	created, err = scanFeeSnapshot(s.pool.QueryRow(ctx, query,
		f.Network,
		f.Rate,
		f.TierLow,
		f.TierAvg,
		f.TierHigh,
		f.Threshold,
		f.Status,
		f.Error,
		f.FetchedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert fee snapshot: %w", err)
	}
	return created, nil
}

// ListFeeSnapshots returns fee snapshots newest first.
func (s *Store) ListFeeSnapshots(ctx context.Context, params ListParams) ([]*FeeSnapshot, error) {
	var err error
	defer metrics.Timer(time.Now(), func(dur float64) { s.record("select", "fee_snapshots", dur, err) })()

	query := `
		SELECT ` + feeSnapshotColumns + `
		FROM fee_snapshots
		WHERE ($1 = '' OR network = $1)
		  AND ($2::timestamptz IS NULL OR fetched_at >= $2)
		ORDER BY fetched_at DESC, id DESC
		LIMIT $3`

	var rows pgx.Rows
	rows, err = s.pool.Query(ctx, query, params.Network, params.Since, limitOrDefault(params.Limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list fee snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]*FeeSnapshot, 0)
	for rows.Next() {
		var f *FeeSnapshot
		f, err = scanFeeSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fee snapshot: %w", err)
		}
		snapshots = append(snapshots, f)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list fee snapshots: %w", err)
	}
	return snapshots, nil
}

// RecordDeployment stores a successful deployment.
func (s *Store) RecordDeployment(ctx context.Context, result *deploy.Result) error {
	_, err := s.CreateDeployment(ctx, DeploymentFromResult(result))
	return err
}

// RecordFeeSnapshot stores an applied dashboard snapshot.
func (s *Store) RecordFeeSnapshot(ctx context.Context, snapshot fees.Snapshot) error {
	_, err := s.CreateFeeSnapshot(ctx, FeeSnapshotFromDashboard(snapshot))
	return err
}

// DeploymentFromResult converts an orchestrator result to a storable row.
func DeploymentFromResult(r *deploy.Result) *Deployment {
	return &Deployment{
		TxID:         r.TxID,
		Network:      r.Network.String(),
		Address:      r.Address,
		ContractName: r.ContractName,
		Nonce:        int64(r.Nonce),
		Fee:          int64(r.Fee),
		FeeRate:      r.FeeRate,
		MeasuredSize: int32(r.MeasuredSize),
		ExplorerURL:  r.ExplorerURL,
		DeployedAt:   r.DeployedAt,
	}
}

// FeeSnapshotFromDashboard converts a dashboard snapshot to a storable row.
func FeeSnapshotFromDashboard(s fees.Snapshot) *FeeSnapshot {
	f := &FeeSnapshot{
		Network:   s.Network.String(),
		Rate:      s.Rate,
		Threshold: s.Threshold,
		FetchedAt: s.UpdatedAt,
	}
	if f.FetchedAt.IsZero() {
		f.FetchedAt = time.Now().UTC()
	}
	if s.Tiers != nil {
		low, avg, high := int64(s.Tiers.Low), int64(s.Tiers.Avg), int64(s.Tiers.High)
		f.TierLow, f.TierAvg, f.TierHigh = &low, &avg, &high
	}
	if s.Status != "" {
		status := string(s.Status)
		f.Status = &status
	}
	if s.Error != "" {
		msg := s.Error
		f.Error = &msg
	}
	return f
}

func (s *Store) record(operation, table string, duration float64, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(operation, table, duration, err)
	}
}

func limitOrDefault(limit int32) int32 {
	if limit <= 0 {
		return 50
	}
	return limit
}

func scanDeployment(row pgx.Row) (*Deployment, error) {
	var d Deployment
	err := row.Scan(
		&d.ID,
		&d.TxID,
		&d.Network,
		&d.Address,
		&d.ContractName,
		&d.Nonce,
		&d.Fee,
		&d.FeeRate,
		&d.MeasuredSize,
		&d.ExplorerURL,
		&d.DeployedAt,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanFeeSnapshot(row pgx.Row) (*FeeSnapshot, error) {
	var f FeeSnapshot
	err := row.Scan(
		&f.ID,
		&f.Network,
		&f.Rate,
		&f.TierLow,
		&f.TierAvg,
		&f.TierHigh,
		&f.Threshold,
		&f.Status,
		&f.Error,
		&f.FetchedAt,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
