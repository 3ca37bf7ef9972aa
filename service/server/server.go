package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/blockdew/service/fees"
	"github.com/brojonat/blockdew/service/history"
	"github.com/brojonat/blockdew/service/metrics"
)

// History is the read side of the history store.
type History interface {
	ListDeployments(ctx context.Context, params history.ListParams) ([]*history.Deployment, error)
	ListFeeSnapshots(ctx context.Context, params history.ListParams) ([]*history.FeeSnapshot, error)
}

// Server is the HTTP front end of the fee dashboard.
type Server struct {
	addr      string
	dashboard *fees.Dashboard
	history   History
	renderer  *TemplateRenderer
	keepalive time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu     sync.Mutex
	server *http.Server
	closed bool
}

// New creates a new HTTP server.
// The history is optional - if nil, history endpoints won't be available.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, dashboard *fees.Dashboard, store History, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Server{
		addr:      addr,
		dashboard: dashboard,
		history:   store,
		keepalive: 15 * time.Second,
		metrics:   m,
		logger:    logger,
	}
}

// WithTemplates adds the embedded dashboard page.
func (s *Server) WithTemplates() error {
	renderer, err := NewTemplateRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	s.renderer = renderer
	s.logger.Info("HTML templates loaded from embedded files")
	return nil
}

// Handler builds the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	route("GET /api/v1/fees", "/api/v1/fees", handleGetFees(s.dashboard))
	route("POST /api/v1/fees/refresh", "/api/v1/fees/refresh", handleRefreshFees(s.dashboard, s.logger))
	route("PUT /api/v1/fees/network", "/api/v1/fees/network", handleSetNetwork(s.dashboard, s.logger))
	route("PUT /api/v1/fees/threshold", "/api/v1/fees/threshold", handleSetThreshold(s.dashboard, s.logger))
	route("GET /api/v1/stream/fees", "/api/v1/stream/fees", handleStreamFees(s.dashboard, s.keepalive, s.metrics, s.logger))

	if s.history != nil {
		route("GET /api/v1/deployments", "/api/v1/deployments", handleListDeployments(s.history, s.logger))
		route("GET /api/v1/fees/history", "/api/v1/fees/history", handleListFeeHistory(s.history, s.logger))
		s.logger.Info("history endpoints enabled")
	}

	if s.renderer != nil {
		mux.HandleFunc("GET /{$}", handleDashboardPage(s.renderer, s.dashboard))
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. Request contexts are
// cancelled when Shutdown begins so open streams end promptly.
func (s *Server) Serve(ln net.Listener) error {
	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: the SSE stream stays open.
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancel)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	s.mu.Lock()
	s.closed = true
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
