package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Hiro API Metrics
	hiroAPICallsTotal   *prometheus.CounterVec
	hiroAPICallDuration *prometheus.HistogramVec

	// Deployment Metrics
	deployStagesTotal *prometheus.CounterVec
	deploymentsTotal  *prometheus.CounterVec
	deploymentFee     *prometheus.HistogramVec

	// Fee Dashboard Metrics
	feeRate          *prometheus.GaugeVec
	feeFetchesTotal  *prometheus.CounterVec
	feeStaleDiscards *prometheus.CounterVec

	// Workflow Metrics
	feeActivityDuration *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Hiro API Metrics
		hiroAPICallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hiro_api_calls_total",
				Help: "Total number of Hiro API calls by endpoint and status",
			},
			[]string{"endpoint", "status", "network"},
		),
		hiroAPICallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hiro_api_call_duration_seconds",
				Help:    "Duration of Hiro API calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint", "network"},
		),

		// Deployment Metrics
		deployStagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deploy_stage_total",
				Help: "Total number of deployment stages reached, by outcome",
			},
			[]string{"stage", "outcome", "network"},
		),
		deploymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deployments_total",
				Help: "Total number of contract deployments attempted",
			},
			[]string{"network", "outcome"},
		),
		deploymentFee: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deployment_fee_microstx",
				Help:    "Fee paid by broadcast contract deployments in micro-STX",
				Buckets: prometheus.ExponentialBuckets(100, 4, 10),
			},
			[]string{"network"},
		),

		// Fee Dashboard Metrics
		feeRate: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fee_rate",
				Help: "Most recent transfer fee rate reported by the network",
			},
			[]string{"network"},
		),
		feeFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fee_fetches_total",
				Help: "Total number of fee rate fetches by status",
			},
			[]string{"network", "status"},
		),
		feeStaleDiscards: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fee_stale_results_total",
				Help: "Fee fetch results discarded because the selected network changed",
			},
			[]string{"network"},
		),

		// Workflow Metrics
		feeActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fee_activity_duration_seconds",
				Help:    "Duration of fee recording activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity", "network"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Hiro API metric helpers

// RecordAPICall records a Hiro API call with duration.
func (m *Metrics) RecordAPICall(endpoint, status, network string, duration float64) {
	m.hiroAPICallsTotal.WithLabelValues(endpoint, status, network).Inc()
	m.hiroAPICallDuration.WithLabelValues(endpoint, network).Observe(duration)
}

// Deployment metric helpers

// RecordDeployStage records that a deployment stage finished with the given outcome.
func (m *Metrics) RecordDeployStage(stage, outcome, network string) {
	m.deployStagesTotal.WithLabelValues(stage, outcome, network).Inc()
}

// RecordDeployment records the terminal outcome of a deployment run.
func (m *Metrics) RecordDeployment(network, outcome string, fee uint64) {
	m.deploymentsTotal.WithLabelValues(network, outcome).Inc()
	if outcome == "success" {
		m.deploymentFee.WithLabelValues(network).Observe(float64(fee))
	}
}

// Fee dashboard metric helpers

// RecordFeeFetch records a fee fetch and, on success, the current rate.
func (m *Metrics) RecordFeeFetch(network string, rate float64, err error) {
	if err != nil {
		m.feeFetchesTotal.WithLabelValues(network, "error").Inc()
		return
	}
	m.feeFetchesTotal.WithLabelValues(network, "success").Inc()
	m.feeRate.WithLabelValues(network).Set(rate)
}

// RecordStaleFeeResult records a fetch result dropped after a network switch.
func (m *Metrics) RecordStaleFeeResult(network string) {
	m.feeStaleDiscards.WithLabelValues(network).Inc()
}

// Workflow metric helpers

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity, network string, duration float64) {
	m.feeActivityDuration.WithLabelValues(activity, network).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	m.sseActiveConnections.Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(eventType string) {
	m.sseEventsSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
