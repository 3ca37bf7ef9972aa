package deploy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/blockdew/service/hiro"
	"github.com/brojonat/blockdew/service/metrics"
	"github.com/brojonat/blockdew/service/stacks"
)

// fakeNetwork records every call and returns canned answers.
type fakeNetwork struct {
	nonce    uint64
	nonceErr error
	rate     float64
	rateErr  error
	txID     string
	bcastErr error

	nonceCalls     int
	estimateCalls  int
	broadcastCalls int
	nonceAddress   string
	sized          []byte
	broadcast      []byte
}

func (f *fakeNetwork) GetAccountNonce(ctx context.Context, address string) (uint64, error) {
	f.nonceCalls++
	f.nonceAddress = address
	return f.nonce, f.nonceErr
}

func (f *fakeNetwork) EstimateFeeRate(ctx context.Context, serializedTx []byte) (float64, error) {
	f.estimateCalls++
	f.sized = serializedTx
	return f.rate, f.rateErr
}

func (f *fakeNetwork) BroadcastTransaction(ctx context.Context, signedTx []byte) (string, error) {
	f.broadcastCalls++
	f.broadcast = signedTx
	return f.txID, f.bcastErr
}

func (f *fakeNetwork) totalCalls() int {
	return f.nonceCalls + f.estimateCalls + f.broadcastCalls
}

type recorderFunc func(ctx context.Context, result *Result) error

func (fn recorderFunc) RecordDeployment(ctx context.Context, result *Result) error {
	return fn(ctx, result)
}

func testRequest() Request {
	return Request{
		Mnemonic:       stacks.TestMnemonic,
		Network:        stacks.Testnet,
		AccountIndex:   0,
		AccountCount:   1,
		ContractName:   "blockdew",
		CodeBody:       strings.Repeat("a", 50),
		ClarityVersion: stacks.ClarityVersion2,
	}
}

func TestDeploy_Success(t *testing.T) {
	net := &fakeNetwork{nonce: 7, rate: 2.0, txID: "abc123"}
	orch := NewOrchestrator(net, "", nil, nil)

	result, err := orch.Deploy(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "abc123", result.TxID)
	assert.Equal(t, uint64(7), result.Nonce)
	assert.Equal(t, 180, result.MeasuredSize)
	assert.Equal(t, uint64(360), result.Fee)
	assert.Equal(t, "https://explorer.hiro.so/txid/abc123?chain=testnet", result.ExplorerURL)
	assert.True(t, strings.HasPrefix(result.Address, "ST"))
	assert.Equal(t, result.Address+".blockdew", result.ContractID)
	assert.Equal(t, result.Address, net.nonceAddress)

	assert.Equal(t, 1, net.nonceCalls)
	assert.Equal(t, 1, net.estimateCalls)
	assert.Equal(t, 1, net.broadcastCalls)

	// the broadcast transaction carries the computed fee and the fetched nonce
	tx, err := stacks.ParseContractDeploy(net.broadcast)
	require.NoError(t, err)
	assert.Equal(t, uint64(360), tx.Fee)
	assert.Equal(t, uint64(7), tx.Nonce)
	assert.Equal(t, stacks.PostConditionModeDeny, tx.PostConditionMode)
	assert.Len(t, net.broadcast, len(net.sized))

	sizing, err := stacks.ParseContractDeploy(net.sized)
	require.NoError(t, err)
	assert.Equal(t, SizingFee, sizing.Fee)
}

func TestDeploy_FeeScalesWithRate(t *testing.T) {
	net := &fakeNetwork{rate: 3.0, txID: "abc123"}
	orch := NewOrchestrator(net, "", nil, nil)

	result, err := orch.Deploy(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, uint64(540), result.Fee)
	assert.Equal(t, uint64(0), result.Nonce)

	tx, err := stacks.ParseContractDeploy(net.broadcast)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), tx.Nonce)
}

func TestDeploy_MissingCredential(t *testing.T) {
	for _, mnemonic := range []string{"", "not a valid phrase"} {
		net := &fakeNetwork{rate: 1, txID: "x"}
		orch := NewOrchestrator(net, "", nil, nil)

		req := testRequest()
		req.Mnemonic = mnemonic
		_, err := orch.Deploy(context.Background(), req)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingCredential)
		assert.Zero(t, net.totalCalls(), "no network calls expected")

		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageKeyDerived, stageErr.Stage)
	}
}

func TestDeploy_AccountNotFound(t *testing.T) {
	net := &fakeNetwork{rate: 1, txID: "x"}
	orch := NewOrchestrator(net, "", nil, nil)

	req := testRequest()
	req.AccountIndex = 5
	req.AccountCount = 1
	_, err := orch.Deploy(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.Zero(t, net.totalCalls())
}

func TestDeploy_NonceFailure(t *testing.T) {
	net := &fakeNetwork{nonceErr: errors.New("connection refused")}
	orch := NewOrchestrator(net, "", nil, nil)

	_, err := orch.Deploy(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, 0, net.estimateCalls)
	assert.Equal(t, 0, net.broadcastCalls)
}

func TestDeploy_FeeEstimationFailures(t *testing.T) {
	tests := []struct {
		name    string
		rate    float64
		rateErr error
		wantErr error
	}{
		{name: "no rate in response", rateErr: hiro.ErrRateUnavailable, wantErr: ErrFeeEstimationFailed},
		{name: "zero rate", rate: 0, wantErr: ErrFeeEstimationFailed},
		{name: "negative rate", rate: -1, wantErr: ErrFeeEstimationFailed},
		{name: "transport failure", rateErr: errors.New("timeout"), wantErr: ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net := &fakeNetwork{rate: tt.rate, rateErr: tt.rateErr}
			orch := NewOrchestrator(net, "", nil, nil)

			_, err := orch.Deploy(context.Background(), testRequest())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, net.broadcastCalls)
		})
	}
}

func TestDeploy_InvalidRequest(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Request)
		stage  Stage
		calls  int
	}{
		{name: "bad contract name", modify: func(r *Request) { r.ContractName = "1-starts-with-digit" }, stage: StageFeeEstimated, calls: 1},
		{name: "empty contract name", modify: func(r *Request) { r.ContractName = "" }, stage: StageFeeEstimated, calls: 1},
		{name: "unknown network", modify: func(r *Request) { r.Network = "devnet" }, stage: StageFeeEstimated, calls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net := &fakeNetwork{rate: 1, txID: "x"}
			orch := NewOrchestrator(net, "", nil, nil)

			req := testRequest()
			tt.modify(&req)
			_, err := orch.Deploy(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Equal(t, tt.calls, net.totalCalls())
			assert.Zero(t, net.broadcastCalls)

			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, tt.stage, stageErr.Stage)
		})
	}
}

func TestDeploy_ErrorsMatchOneSentinel(t *testing.T) {
	sentinels := []error{ErrMissingCredential, ErrInvalidRequest, ErrAccountNotFound, ErrNetwork, ErrFeeEstimationFailed, ErrBroadcastRejected}

	tests := []struct {
		name   string
		net    *fakeNetwork
		modify func(*Request)
	}{
		{name: "missing mnemonic", net: &fakeNetwork{}, modify: func(r *Request) { r.Mnemonic = "" }},
		{name: "account index", net: &fakeNetwork{}, modify: func(r *Request) { r.AccountIndex = 3 }},
		{name: "bad contract name", net: &fakeNetwork{rate: 1}, modify: func(r *Request) { r.ContractName = "bad name" }},
		{name: "nonce", net: &fakeNetwork{nonceErr: errors.New("refused")}},
		{name: "rate", net: &fakeNetwork{rateErr: hiro.ErrRateUnavailable}},
		{name: "rejected", net: &fakeNetwork{rate: 1, bcastErr: &hiro.RejectedError{StatusCode: 400, Payload: "no"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest()
			if tt.modify != nil {
				tt.modify(&req)
			}
			_, err := NewOrchestrator(tt.net, "", nil, nil).Deploy(context.Background(), req)
			require.Error(t, err)

			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)

			matched := 0
			for _, sentinel := range sentinels {
				if errors.Is(err, sentinel) {
					matched++
				}
			}
			assert.Equal(t, 1, matched, "error %q", err)
		})
	}
}

func TestDeploy_BroadcastRejected(t *testing.T) {
	net := &fakeNetwork{
		rate:     1,
		bcastErr: &hiro.RejectedError{StatusCode: 400, Payload: `{"error":"rejected"}`},
	}
	var recorded int
	orch := NewOrchestrator(net, "", nil, nil, recorderFunc(func(ctx context.Context, r *Result) error {
		recorded++
		return nil
	}))

	_, err := orch.Deploy(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBroadcastRejected)

	var rejected *BroadcastRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, `{"error":"rejected"}`, rejected.Payload)
	assert.Zero(t, recorded, "recorders only run after success")
}

func TestDeploy_RecordersRunAndFailuresAreIgnored(t *testing.T) {
	net := &fakeNetwork{rate: 1, txID: "abc123"}
	var seen []string
	orch := NewOrchestrator(net, "", nil, nil,
		recorderFunc(func(ctx context.Context, r *Result) error {
			seen = append(seen, "first:"+r.TxID)
			return errors.New("store unavailable")
		}),
		recorderFunc(func(ctx context.Context, r *Result) error {
			seen = append(seen, "second:"+r.TxID)
			return nil
		}),
	)

	result, err := orch.Deploy(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "abc123", result.TxID)
	assert.Equal(t, []string{"first:abc123", "second:abc123"}, seen)
}

func TestDeploy_RecordsStageMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	net := &fakeNetwork{rate: 1, bcastErr: errors.New("reset by peer")}
	orch := NewOrchestrator(net, "", m, nil)

	_, err := orch.Deploy(context.Background(), testRequest())
	require.Error(t, err)

	assert.Equal(t, 1.0, stageCount(t, reg, "signed", "success"))
	assert.Equal(t, 1.0, stageCount(t, reg, "broadcast", "failure"))
	assert.Equal(t, 0.0, stageCount(t, reg, "broadcast", "success"))
}

func stageCount(t *testing.T, reg *prometheus.Registry, stage, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "deploy_stage_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["stage"] == stage && labels["outcome"] == outcome {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestComputeFee(t *testing.T) {
	assert.Equal(t, uint64(360), ComputeFee(2, 180))
	assert.Equal(t, uint64(540), ComputeFee(3, 180))
	assert.Equal(t, uint64(270), ComputeFee(1.5, 180))
	assert.Equal(t, uint64(181), ComputeFee(1.009, 180))
}

func TestResolveAccount(t *testing.T) {
	account, addr, err := ResolveAccount(stacks.TestMnemonic, stacks.Mainnet, 0, 1)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(addr, "SP"))
	assert.Equal(t, uint32(0), account.Index)

	_, testnetAddr, err := ResolveAccount(stacks.TestMnemonic, stacks.Testnet, 0, 1)
	require.NoError(t, err)
	_, mainHash, err := stacks.DecodeAddress(addr)
	require.NoError(t, err)
	_, testHash, err := stacks.DecodeAddress(testnetAddr)
	require.NoError(t, err)
	assert.Equal(t, mainHash, testHash, "same hash160 on both networks")
	_, _, err = ResolveAccount(stacks.TestMnemonic, stacks.Testnet, 1, 2)
	require.NoError(t, err)

	_, _, err = ResolveAccount(stacks.TestMnemonic, stacks.Testnet, -1, 1)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

// End to end against an httptest Stacks node and the real API client.
func TestDeploy_WithHiroClient(t *testing.T) {
	var broadcastBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v2/accounts/"):
			w.Write([]byte(`{"nonce":3}`))
		case r.Method == http.MethodPost && r.URL.Path == "/extended/v1/fee_rate":
			w.Write([]byte(`{"fee_rate":2}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v2/transactions":
			body, _ := io.ReadAll(r.Body)
			broadcastBody = body
			w.Write([]byte(`"0xfeedface"`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := hiro.NewClient(server.URL, "testnet", nil, nil, nil)
	orch := NewOrchestrator(client, "https://explorer.example", nil, nil)

	result, err := orch.Deploy(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "0xfeedface", result.TxID)
	assert.Equal(t, uint64(3), result.Nonce)
	assert.Equal(t, uint64(360), result.Fee)
	assert.Equal(t, "https://explorer.example/txid/0xfeedface?chain=testnet", result.ExplorerURL)

	tx, err := stacks.ParseContractDeploy(broadcastBody)
	require.NoError(t, err)
	assert.Equal(t, uint64(360), tx.Fee)
	assert.Equal(t, uint64(3), tx.Nonce)
}
