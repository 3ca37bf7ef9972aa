package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/brojonat/blockdew/service/fees"
	"github.com/brojonat/blockdew/service/history"
	"github.com/brojonat/blockdew/service/stacks"
)

const (
	maxRequestBodySize = 1 << 10
	defaultListLimit   = 50
	maxListLimit       = 1000
)

// handleGetFees returns the current snapshot.
// GET /api/v1/fees
func handleGetFees(d *fees.Dashboard) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Current(), http.StatusOK)
	})
}

// handleRefreshFees fetches the rate now and returns the resulting snapshot.
// POST /api/v1/fees/refresh
func handleRefreshFees(d *fees.Dashboard, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := d.Refresh(r.Context())
		logger.DebugContext(r.Context(), "fee refresh requested",
			"network", snap.Network.String(),
			"error", snap.Error,
		)
		writeJSON(w, snap, http.StatusOK)
	})
}

type setNetworkRequest struct {
	Network string `json:"network"`
}

// handleSetNetwork switches the dashboard network.
// PUT /api/v1/fees/network {"network": "mainnet"}
func handleSetNetwork(d *fees.Dashboard, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req setNetworkRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		network, err := stacks.ParseNetwork(req.Network)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		logger.InfoContext(r.Context(), "dashboard network selected", "network", network.String())
		writeJSON(w, d.Select(r.Context(), network), http.StatusOK)
	})
}

type setThresholdRequest struct {
	Threshold *float64 `json:"threshold"`
}

// handleSetThreshold changes the busy/good threshold.
// PUT /api/v1/fees/threshold {"threshold": 300}
func handleSetThreshold(d *fees.Dashboard, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req setThresholdRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Threshold == nil {
			writeError(w, "threshold is required", http.StatusBadRequest)
			return
		}
		if *req.Threshold < 0 {
			writeError(w, "threshold must not be negative", http.StatusBadRequest)
			return
		}

		logger.InfoContext(r.Context(), "dashboard threshold changed", "threshold", *req.Threshold)
		writeJSON(w, d.SetThreshold(*req.Threshold), http.StatusOK)
	})
}

// handleListDeployments lists recorded deployments.
// GET /api/v1/deployments?network=testnet&limit=N&since=RFC3339
func handleListDeployments(store History, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := parseListParams(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		deployments, err := store.ListDeployments(r.Context(), params)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list deployments", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]interface{}{
			"deployments": deployments,
			"count":       len(deployments),
		}, http.StatusOK)
	})
}

// handleListFeeHistory lists recorded fee snapshots.
// GET /api/v1/fees/history?network=testnet&limit=N&since=RFC3339
func handleListFeeHistory(store History, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := parseListParams(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		snapshots, err := store.ListFeeSnapshots(r.Context(), params)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list fee snapshots", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]interface{}{
			"snapshots": snapshots,
			"count":     len(snapshots),
		}, http.StatusOK)
	})
}

func parseListParams(r *http.Request) (history.ListParams, error) {
	query := r.URL.Query()
	params := history.ListParams{Limit: defaultListLimit}

	if n := query.Get("network"); n != "" {
		network, err := stacks.ParseNetwork(n)
		if err != nil {
			return params, err
		}
		params.Network = network.String()
	}

	if l := query.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil {
			return params, errors.New("invalid limit parameter: must be an integer")
		}
		if limit < 1 || limit > maxListLimit {
			return params, errors.New("limit must be between 1 and 1000")
		}
		params.Limit = int32(limit)
	}

	if s := query.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return params, errors.New("invalid since parameter: use RFC3339")
		}
		params.Since = &since
	}

	return params, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("request body too large")
		}
		return errors.New("invalid request body")
	}
	return nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, map[string]string{"error": message}, statusCode)
}
