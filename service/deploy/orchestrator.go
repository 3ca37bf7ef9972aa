package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/brojonat/blockdew/service/hiro"
	"github.com/brojonat/blockdew/service/metrics"
	"github.com/brojonat/blockdew/service/stacks"
)

// Stage names the states of a deployment run. A run only moves forward:
// Idle → KeyDerived → AddressComputed → NonceFetched → FeeEstimated → Signed → Broadcast.
type Stage string

const (
	StageIdle            Stage = "idle"
	StageKeyDerived      Stage = "key_derived"
	StageAddressComputed Stage = "address_computed"
	StageNonceFetched    Stage = "nonce_fetched"
	StageFeeEstimated    Stage = "fee_estimated"
	StageSigned          Stage = "signed"
	StageBroadcast       Stage = "broadcast"
)

// SizingFee is the nominal fee carried by the draft built to measure wire size.
const SizingFee uint64 = 1

// Network is the subset of the Stacks API the orchestrator needs.
// Implementations must not retry; every call is a single attempt.
type Network interface {
	GetAccountNonce(ctx context.Context, address string) (uint64, error)
	EstimateFeeRate(ctx context.Context, serializedTx []byte) (float64, error)
	BroadcastTransaction(ctx context.Context, signedTx []byte) (string, error)
}

// Recorder is notified after a successful broadcast. Recorder errors are
// logged and never fail the deployment.
type Recorder interface {
	RecordDeployment(ctx context.Context, result *Result) error
}

// Request describes one contract deployment.
type Request struct {
	Mnemonic       string
	Network        stacks.Network
	AccountIndex   int
	AccountCount   int
	ContractName   string
	CodeBody       string
	ClarityVersion stacks.ClarityVersion
}

// Result is the outcome of a successful deployment.
type Result struct {
	Network      stacks.Network `json:"network"`
	AccountIndex int            `json:"account_index"`
	Address      string         `json:"address"`
	ContractName string         `json:"contract_name"`
	ContractID   string         `json:"contract_id"`
	TxID         string         `json:"txid"`
	ExplorerURL  string         `json:"explorer_url"`
	Nonce        uint64         `json:"nonce"`
	FeeRate      float64        `json:"fee_rate"`
	MeasuredSize int            `json:"measured_size"`
	Fee          uint64         `json:"fee"`
	DeployedAt   time.Time      `json:"deployed_at"`
}

// Orchestrator runs the deploy sequence against a Network.
type Orchestrator struct {
	network     Network
	explorerURL string
	recorders   []Recorder
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewOrchestrator creates an orchestrator. If metrics is nil no metrics are
// recorded; if logger is nil logs are discarded.
func NewOrchestrator(network Network, explorerURL string, m *metrics.Metrics, logger *slog.Logger, recorders ...Recorder) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Orchestrator{
		network:     network,
		explorerURL: explorerURL,
		recorders:   recorders,
		metrics:     m,
		logger:      logger,
	}
}

// ResolveAccount derives the account at index and its address. It performs
// no I/O and fails with ErrMissingCredential, ErrAccountNotFound or
// ErrInvalidRequest.
func ResolveAccount(mnemonic string, network stacks.Network, index, count int) (*stacks.Account, string, error) {
	if mnemonic == "" {
		return nil, "", fmt.Errorf("%w: MNEMONIC is required", ErrMissingCredential)
	}
	if count < 1 {
		count = 1
	}

	accounts, err := stacks.DeriveAccounts(mnemonic, count)
	if err != nil {
		if errors.Is(err, stacks.ErrInvalidMnemonic) {
			return nil, "", fmt.Errorf("%w: %w", ErrMissingCredential, err)
		}
		return nil, "", fmt.Errorf("%w: failed to derive accounts: %w", ErrMissingCredential, err)
	}
	if index < 0 || index >= len(accounts) {
		return nil, "", fmt.Errorf("%w: account index %d not found (%d derived)", ErrAccountNotFound, index, len(accounts))
	}

	account := accounts[index]
	address, err := account.Address(network)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to compute address: %w", ErrInvalidRequest, err)
	}
	return account, address, nil
}

// ComputeFee converts a per-byte rate into a total fee for a transaction of size bytes.
func ComputeFee(rate float64, size int) uint64 {
	return uint64(math.Floor(rate * float64(size)))
}

// Deploy derives the sender, estimates the fee from a sizing draft,
// signs the final transaction and broadcasts it. Any failure aborts the run.
func (o *Orchestrator) Deploy(ctx context.Context, req Request) (*Result, error) {
	network := req.Network.String()
	result, err := o.deploy(ctx, req)
	if err != nil {
		o.logger.ErrorContext(ctx, "deployment failed",
			"network", network,
			"contract", req.ContractName,
			"error", err,
		)
		if o.metrics != nil {
			o.metrics.RecordDeployment(network, "failure", 0)
		}
		return nil, err
	}

	if o.metrics != nil {
		o.metrics.RecordDeployment(network, "success", result.Fee)
	}
	o.logger.InfoContext(ctx, "contract deployed",
		"network", network,
		"contract_id", result.ContractID,
		"txid", result.TxID,
		"fee", result.Fee,
	)

	for _, r := range o.recorders {
		if err := r.RecordDeployment(ctx, result); err != nil {
			o.logger.WarnContext(ctx, "failed to record deployment",
				"txid", result.TxID,
				"error", err,
			)
		}
	}
	return result, nil
}

func (o *Orchestrator) deploy(ctx context.Context, req Request) (*Result, error) {
	o.reached(ctx, req.Network, StageIdle)

	account, address, err := ResolveAccount(req.Mnemonic, req.Network, req.AccountIndex, req.AccountCount)
	if err != nil {
		return nil, o.fail(req.Network, StageKeyDerived, err)
	}
	o.reached(ctx, req.Network, StageKeyDerived)
	o.reached(ctx, req.Network, StageAddressComputed, "address", address)

	nonce, err := o.network.GetAccountNonce(ctx, address)
	if err != nil {
		return nil, o.fail(req.Network, StageNonceFetched, fmt.Errorf("%w: fetching nonce: %w", ErrNetwork, err))
	}
	o.reached(ctx, req.Network, StageNonceFetched, "nonce", nonce)

	opts := stacks.ContractDeployOptions{
		Network:        req.Network,
		ContractName:   req.ContractName,
		CodeBody:       req.CodeBody,
		SenderKey:      account.PrivateKey,
		Nonce:          nonce,
		Fee:            SizingFee,
		ClarityVersion: req.ClarityVersion,
	}

	// First pass: the sizing draft only exists to measure the wire size.
	sizing, err := stacks.MakeContractDeploy(opts)
	if err != nil {
		return nil, o.fail(req.Network, StageFeeEstimated, fmt.Errorf("%w: failed to build sizing transaction: %w", ErrInvalidRequest, err))
	}
	sizedBytes := sizing.Serialize()

	rate, err := o.network.EstimateFeeRate(ctx, sizedBytes)
	if err != nil {
		if errors.Is(err, hiro.ErrRateUnavailable) {
			return nil, o.fail(req.Network, StageFeeEstimated, fmt.Errorf("%w: %w", ErrFeeEstimationFailed, err))
		}
		return nil, o.fail(req.Network, StageFeeEstimated, fmt.Errorf("%w: estimating fee: %w", ErrNetwork, err))
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return nil, o.fail(req.Network, StageFeeEstimated, fmt.Errorf("%w: unusable fee rate %v", ErrFeeEstimationFailed, rate))
	}
	fee := ComputeFee(rate, len(sizedBytes))
	o.reached(ctx, req.Network, StageFeeEstimated,
		"fee_rate", rate,
		"measured_size", len(sizedBytes),
		"fee", fee,
	)

	// Second pass: same draft, real fee. The size delta is not re-measured.
	opts.Fee = fee
	final, err := stacks.MakeContractDeploy(opts)
	if err != nil {
		return nil, o.fail(req.Network, StageSigned, fmt.Errorf("%w: failed to build final transaction: %w", ErrInvalidRequest, err))
	}
	o.reached(ctx, req.Network, StageSigned, "expected_txid", final.TxID())

	txID, err := o.network.BroadcastTransaction(ctx, final.Serialize())
	if err != nil {
		var rejected *hiro.RejectedError
		if errors.As(err, &rejected) {
			return nil, o.fail(req.Network, StageBroadcast, &BroadcastRejectedError{Payload: rejected.Payload})
		}
		return nil, o.fail(req.Network, StageBroadcast, fmt.Errorf("%w: broadcasting: %w", ErrNetwork, err))
	}
	o.reached(ctx, req.Network, StageBroadcast, "txid", txID)

	return &Result{
		Network:      req.Network,
		AccountIndex: req.AccountIndex,
		Address:      address,
		ContractName: req.ContractName,
		ContractID:   address + "." + req.ContractName,
		TxID:         txID,
		ExplorerURL:  req.Network.ExplorerTxURL(o.explorerURL, txID),
		Nonce:        nonce,
		FeeRate:      rate,
		MeasuredSize: len(sizedBytes),
		Fee:          fee,
		DeployedAt:   time.Now().UTC(),
	}, nil
}

func (o *Orchestrator) reached(ctx context.Context, network stacks.Network, stage Stage, attrs ...any) {
	o.logger.DebugContext(ctx, "deploy stage reached", append([]any{"stage", string(stage)}, attrs...)...)
	if o.metrics != nil {
		o.metrics.RecordDeployStage(string(stage), "success", network.String())
	}
}

func (o *Orchestrator) fail(network stacks.Network, stage Stage, err error) error {
	if o.metrics != nil {
		o.metrics.RecordDeployStage(string(stage), "failure", network.String())
	}
	return &StageError{Stage: stage, Err: err}
}
