package hiro

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/brojonat/blockdew/service/metrics"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// ErrRateUnavailable means the fee endpoint answered but no numeric rate
// could be extracted from any known response shape.
var ErrRateUnavailable = errors.New("no fee rate in response")

// StatusError is returned when an endpoint answers with a non-2xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// RejectedError is returned when a broadcast response carries no transaction id.
// Payload holds the raw response body for diagnostics.
type RejectedError struct {
	StatusCode int
	Payload    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("broadcast rejected (status %d): %s", e.StatusCode, e.Payload)
}

var bareTxIDPattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)

// Client talks to the Hiro Stacks API for a single network.
type Client struct {
	baseURL    string
	network    string // label for metrics and logs
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates a Hiro API client.
// If httpClient is nil a client with a 30s timeout is used. If metrics is
// nil no metrics are recorded.
func NewClient(baseURL, network string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		network:    network,
		httpClient: httpClient,
		metrics:    m,
		logger:     logger,
	}
}

// BaseURL returns the API root the client was configured with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetAccountNonce returns the next nonce for an address. An account that
// has never transacted has no nonce field, which is reported as zero.
func (c *Client) GetAccountNonce(ctx context.Context, address string) (uint64, error) {
	u := fmt.Sprintf("%s/v2/accounts/%s", c.baseURL, url.PathEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req, "accounts")
	if err != nil {
		return 0, err
	}
	if status < 200 || status >= 300 {
		return 0, &StatusError{Endpoint: "accounts", StatusCode: status, Body: truncate(body)}
	}

	var account struct {
		Nonce *uint64 `json:"nonce"`
	}
	if err := json.Unmarshal(body, &account); err != nil {
		return 0, fmt.Errorf("failed to decode account response: %w", err)
	}
	if account.Nonce == nil {
		c.logger.DebugContext(ctx, "account has no nonce, defaulting to zero", "address", address)
		return 0, nil
	}
	return *account.Nonce, nil
}

// EstimateFeeRate submits a serialized transaction to the fee-rate endpoint
// and returns the per-byte rate.
func (c *Client) EstimateFeeRate(ctx context.Context, serializedTx []byte) (float64, error) {
	reqBody, err := json.Marshal(map[string]string{
		"transaction": hex.EncodeToString(serializedTx),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extended/v1/fee_rate", bytes.NewReader(reqBody))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	status, body, err := c.do(req, "fee_rate")
	if err != nil {
		return 0, err
	}
	if status < 200 || status >= 300 {
		return 0, &StatusError{Endpoint: "fee_rate", StatusCode: status, Body: truncate(body)}
	}
	if !json.Valid(body) {
		return 0, fmt.Errorf("failed to decode fee rate response: invalid JSON: %s", truncate(body))
	}

	rate, ok := ParseRate(body)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrRateUnavailable, truncate(body))
	}
	return rate, nil
}

// BroadcastTransaction submits a signed transaction and returns its id.
// A response without an id yields a *RejectedError.
func (c *Client) BroadcastTransaction(ctx context.Context, signedTx []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/transactions", bytes.NewReader(signedTx))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	status, body, err := c.do(req, "transactions")
	if err != nil {
		return "", err
	}
	ok2xx := status >= 200 && status < 300

	if !json.Valid(body) {
		trimmed := strings.TrimSpace(string(body))
		if ok2xx && bareTxIDPattern.MatchString(trimmed) {
			return trimmed, nil
		}
		if ok2xx {
			return "", fmt.Errorf("failed to decode broadcast response: invalid JSON: %s", truncate(body))
		}
		return "", &StatusError{Endpoint: "transactions", StatusCode: status, Body: truncate(body)}
	}

	txID, found := ParseTxID(body)
	if !found || !ok2xx {
		return "", &RejectedError{StatusCode: status, Payload: string(body)}
	}
	return txID, nil
}

// GetTransferFeeRate returns the current per-byte fee for STX transfers.
// Plain-text numeric responses are tolerated.
func (c *Client) GetTransferFeeRate(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/fees/transfer", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req, "fees_transfer")
	if err != nil {
		return 0, err
	}
	if status < 200 || status >= 300 {
		return 0, &StatusError{Endpoint: "fees_transfer", StatusCode: status, Body: truncate(body)}
	}

	rate, ok := ParseRateText(body)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrRateUnavailable, truncate(body))
	}
	return rate, nil
}

// do executes the request, reads the body and records metrics.
func (c *Client) do(req *http.Request, endpoint string) (int, []byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(endpoint, "error", start)
		c.logger.ErrorContext(req.Context(), "hiro request failed",
			"endpoint", endpoint,
			"error", err,
		)
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.record(endpoint, "error", start)
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	status := "success"
	if resp.StatusCode >= 400 {
		status = "error"
	}
	c.record(endpoint, status, start)

	c.logger.DebugContext(req.Context(), "hiro response",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"bytes", len(body),
	)
	return resp.StatusCode, body, nil
}

func (c *Client) record(endpoint, status string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordAPICall(endpoint, status, c.network, time.Since(start).Seconds())
	}
}

func truncate(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
