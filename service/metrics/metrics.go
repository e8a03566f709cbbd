package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Intent Metrics
	intentParsesTotal *prometheus.CounterVec
	llmCallsTotal     *prometheus.CounterVec
	llmCallDuration   *prometheus.HistogramVec

	// Compliance Metrics
	complianceChecksTotal    *prometheus.CounterVec
	complianceDecisionsTotal *prometheus.CounterVec

	// Transfer Metrics
	transfersTotal         *prometheus.CounterVec
	transferAmount         *prometheus.HistogramVec
	ledgerCallsTotal       *prometheus.CounterVec
	ledgerCallDuration     *prometheus.HistogramVec
	conversionLookupsTotal *prometheus.CounterVec

	// Workflow Metrics
	transferWorkflowDuration *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	streamConnections   *prometheus.GaugeVec
	streamEventsSent    *prometheus.CounterVec

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
		intentParsesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intent_parses_total",
				Help: "Total number of chat messages parsed, by parse path and resulting action",
			},
			[]string{"source", "action"},
		),
		llmCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_calls_total",
				Help: "Total number of language model extraction calls by provider and status",
			},
			[]string{"provider", "status"},
		),
		llmCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_call_duration_seconds",
				Help:    "Duration of language model calls in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"provider"},
		),

		complianceChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "compliance_checks_total",
				Help: "Total number of individual compliance checks by type and status",
			},
			[]string{"type", "status"},
		),
		complianceDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "compliance_decisions_total",
				Help: "Total number of aggregate compliance decisions by overall status",
			},
			[]string{"status"},
		),

		transfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfers_total",
				Help: "Total number of transfer attempts by terminal state and reason",
			},
			[]string{"state", "reason"},
		),
		transferAmount: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transfer_amount_usd",
				Help:    "USD value of submitted transfers",
				Buckets: []float64{1, 10, 50, 100, 500, 1000, 3000, 10000, 50000},
			},
			[]string{"state"},
		),
		ledgerCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_calls_total",
				Help: "Total number of ledger calls by operation and status",
			},
			[]string{"operation", "status"},
		),
		ledgerCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_call_duration_seconds",
				Help:    "Duration of ledger calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"operation"},
		),
		conversionLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversion_rate_lookups_total",
				Help: "Total number of exchange rate lookups by pair and result (hit, miss, error)",
			},
			[]string{"pair", "result"},
		),

		transferWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transfer_workflow_duration_seconds",
				Help:    "Duration of async transfer workflow execution in seconds",
				Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"status"},
		),

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
		streamConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stream_active_connections",
				Help: "Number of active streaming connections (websocket chat, SSE transfer feed)",
			},
			[]string{"kind"},
		),
		streamEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stream_events_sent_total",
				Help: "Total number of events sent over streaming connections",
			},
			[]string{"kind", "event_type"},
		),

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

// Intent metric helpers

// RecordIntentParse records which path produced an instruction.
func (m *Metrics) RecordIntentParse(source, action string) {
	if m == nil {
		return
	}
	m.intentParsesTotal.WithLabelValues(source, action).Inc()
}

// RecordLLMCall records a language model call with duration.
func (m *Metrics) RecordLLMCall(provider string, err error, duration float64) {
	if m == nil {
		return
	}
	m.llmCallsTotal.WithLabelValues(provider, statusFromError(err)).Inc()
	m.llmCallDuration.WithLabelValues(provider).Observe(duration)
}

// Compliance metric helpers

// RecordComplianceCheck records a single check outcome.
func (m *Metrics) RecordComplianceCheck(checkType, status string) {
	if m == nil {
		return
	}
	m.complianceChecksTotal.WithLabelValues(checkType, status).Inc()
}

// RecordComplianceDecision records an aggregate decision.
func (m *Metrics) RecordComplianceDecision(status string) {
	if m == nil {
		return
	}
	m.complianceDecisionsTotal.WithLabelValues(status).Inc()
}

// Transfer metric helpers

// RecordTransfer records a transfer reaching a terminal state.
// reason is empty for completed transfers.
func (m *Metrics) RecordTransfer(state, reason string, usdAmount float64) {
	if m == nil {
		return
	}
	m.transfersTotal.WithLabelValues(state, reason).Inc()
	if usdAmount > 0 {
		m.transferAmount.WithLabelValues(state).Observe(usdAmount)
	}
}

// RecordLedgerCall records a ledger call with duration.
func (m *Metrics) RecordLedgerCall(operation string, err error, duration float64) {
	if m == nil {
		return
	}
	m.ledgerCallsTotal.WithLabelValues(operation, statusFromError(err)).Inc()
	m.ledgerCallDuration.WithLabelValues(operation).Observe(duration)
}

// RecordConversionLookup records a rate cache hit, miss, or provider error.
func (m *Metrics) RecordConversionLookup(pair, result string) {
	if m == nil {
		return
	}
	m.conversionLookupsTotal.WithLabelValues(pair, result).Inc()
}

// Workflow metric helpers

// RecordWorkflowDuration records async transfer workflow duration.
func (m *Metrics) RecordWorkflowDuration(status string, duration float64) {
	if m == nil {
		return
	}
	m.transferWorkflowDuration.WithLabelValues(status).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, statusFromError(err)).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordStreamConnectionChange records a change in streaming connection count.
func (m *Metrics) RecordStreamConnectionChange(kind string, delta float64) {
	if m == nil {
		return
	}
	m.streamConnections.WithLabelValues(kind).Add(delta)
}

// RecordStreamEventSent records an event sent to a streaming client.
func (m *Metrics) RecordStreamEventSent(kind, eventType string) {
	if m == nil {
		return
	}
	m.streamEventsSent.WithLabelValues(kind, eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusFromError(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

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
