package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/blockdew/service/fees"
	"github.com/brojonat/blockdew/service/metrics"
)

// handleStreamFees streams dashboard snapshots as Server-Sent Events.
// The current snapshot is sent first, then every change.
// GET /api/v1/stream/fees
func handleStreamFees(d *fees.Dashboard, keepaliveEvery time.Duration, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		updates, unsubscribe := d.Subscribe()
		defer unsubscribe()

		if m != nil {
			m.RecordSSEConnectionChange(1)
			defer m.RecordSSEConnectionChange(-1)
		}

		logger.DebugContext(r.Context(), "SSE client connected", "remote_addr", r.RemoteAddr)

		send := func(snap fees.Snapshot) bool {
			data, err := json.Marshal(snap)
			if err != nil {
				logger.WarnContext(r.Context(), "failed to marshal snapshot", "error", err)
				return true
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return false
			}
			flusher.Flush()
			if m != nil {
				m.RecordSSEEventSent("snapshot")
			}
			return true
		}

		if !send(d.Current()) {
			return
		}

		keepalive := time.NewTicker(keepaliveEvery)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flusher.Flush()

			case snap, open := <-updates:
				if !open || !send(snap) {
					return
				}

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected", "remote_addr", r.RemoteAddr)
				return
			}
		}
	})
}
