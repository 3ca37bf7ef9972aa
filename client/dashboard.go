// Package client talks to a running blockdew server.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/blockdew/service/fees"
	"github.com/brojonat/blockdew/service/history"
	"github.com/brojonat/blockdew/service/stacks"
)

// Client is the HTTP client for the blockdew dashboard API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new dashboard client. Stream ignores the http
// client's Timeout, so pass one without it if you need long streams.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Current returns the server's latest snapshot without fetching.
func (c *Client) Current(ctx context.Context) (*fees.Snapshot, error) {
	var snap fees.Snapshot
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/fees", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Refresh asks the server to fetch the rate now.
func (c *Client) Refresh(ctx context.Context) (*fees.Snapshot, error) {
	var snap fees.Snapshot
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/fees/refresh", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SelectNetwork switches the dashboard to network.
func (c *Client) SelectNetwork(ctx context.Context, network stacks.Network) (*fees.Snapshot, error) {
	var snap fees.Snapshot
	body := map[string]string{"network": network.String()}
	if err := c.doJSON(ctx, http.MethodPut, "/api/v1/fees/network", body, &snap); err != nil {
		return nil, err
	}
	c.logger.Debug("network selected", "network", network.String())
	return &snap, nil
}

// SetThreshold changes the busy threshold.
func (c *Client) SetThreshold(ctx context.Context, threshold float64) (*fees.Snapshot, error) {
	var snap fees.Snapshot
	body := map[string]float64{"threshold": threshold}
	if err := c.doJSON(ctx, http.MethodPut, "/api/v1/fees/threshold", body, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListDeployments returns recorded deployments. The server only serves
// history when it has a database.
func (c *Client) ListDeployments(ctx context.Context, params history.ListParams) ([]*history.Deployment, error) {
	var response struct {
		Deployments []*history.Deployment `json:"deployments"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/deployments"+listQuery(params), nil, &response); err != nil {
		return nil, err
	}
	return response.Deployments, nil
}

// ListFeeHistory returns recorded fee snapshots.
func (c *Client) ListFeeHistory(ctx context.Context, params history.ListParams) ([]*history.FeeSnapshot, error) {
	var response struct {
		Snapshots []*history.FeeSnapshot `json:"snapshots"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/fees/history"+listQuery(params), nil, &response); err != nil {
		return nil, err
	}
	return response.Snapshots, nil
}

// Stream calls fn for every snapshot the server pushes until ctx is done,
// the server closes the stream, or fn returns an error.
func (c *Client) Stream(ctx context.Context, fn func(fees.Snapshot) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/stream/fees", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	streamClient := *c.httpClient
	streamClient.Timeout = 0
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("fee stream connected", "url", c.baseURL)

	scanner := bufio.NewScanner(resp.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			event = ""
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && event == "snapshot":
			var snap fees.Snapshot
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap); err != nil {
				return fmt.Errorf("failed to decode snapshot: %w", err)
			}
			if err := fn(snap); err != nil {
				return err
			}
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return scanner.Err()
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func listQuery(params history.ListParams) string {
	q := url.Values{}
	if params.Network != "" {
		q.Set("network", params.Network)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(int(params.Limit)))
	}
	if params.Since != nil {
		q.Set("since", params.Since.UTC().Format(time.RFC3339))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
