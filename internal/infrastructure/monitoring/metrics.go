package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus instrument the extension core exports.
type Metrics struct {
	// Control-plane HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Interception metrics
	Intercepted       *prometheus.CounterVec
	Rewritten         prometheus.Counter
	SnapshotsCaptured prometheus.Counter

	// Injection metrics
	InjectionOutcomes *prometheus.CounterVec

	// Filter metrics
	FilterRuns  prometheus.Counter
	CardsHidden prometheus.Counter

	// Metered backend actions
	RevealOutcomes *prometheus.CounterVec
	Proposals      *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates and registers the metrics collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frevo_http_requests_total",
				Help: "Total number of control-plane HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "frevo_http_request_duration_seconds",
				Help:    "Control-plane HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		Intercepted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frevo_requests_intercepted_total",
				Help: "Host API requests observed by the interceptor",
			},
			[]string{"kind"},
		),
		Rewritten: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "frevo_requests_rewritten_total",
				Help: "Listing requests whose pagination was rewritten",
			},
		),
		SnapshotsCaptured: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "frevo_project_snapshots_total",
				Help: "Project snapshots captured from listing responses",
			},
		),

		InjectionOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frevo_injection_outcomes_total",
				Help: "Fragment injection attempts by outcome",
			},
			[]string{"outcome"},
		),

		FilterRuns: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "frevo_filter_runs_total",
				Help: "Rating filter passes over a listing",
			},
		),
		CardsHidden: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "frevo_filter_cards_hidden_total",
				Help: "Project cards hidden by the rating filter",
			},
		),

		RevealOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frevo_reveal_outcomes_total",
				Help: "Job-owner reveal requests by outcome",
			},
			[]string{"outcome"},
		),
		Proposals: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frevo_proposals_total",
				Help: "Proposal generation turns by result",
			},
			[]string{"result"},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "frevo_ws_connections",
				Help: "Active WebSocket connections",
			},
		),
		WSMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frevo_ws_messages_total",
				Help: "WebSocket messages by direction and type",
			},
			[]string{"direction", "type"},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "frevo_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	go m.updateUptime()
	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records one control-plane request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordIntercepted counts an observed host request by kind.
func (m *Metrics) RecordIntercepted(kind string) {
	m.Intercepted.WithLabelValues(kind).Inc()
}

// RecordInjection counts an injection attempt outcome.
func (m *Metrics) RecordInjection(outcome string) {
	m.InjectionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordFilterRun counts one filter pass and the cards it hid.
func (m *Metrics) RecordFilterRun(hidden int) {
	m.FilterRuns.Inc()
	m.CardsHidden.Add(float64(hidden))
}

// RecordReveal counts a reveal outcome: revealed, cached, or quota.
func (m *Metrics) RecordReveal(outcome string) {
	m.RevealOutcomes.WithLabelValues(outcome).Inc()
}

// RecordProposal counts a proposal turn result: question or final.
func (m *Metrics) RecordProposal(result string) {
	m.Proposals.WithLabelValues(result).Inc()
}

// RecordWSMessage counts a WebSocket message.
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments the active connection gauge.
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements the active connection gauge.
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}
