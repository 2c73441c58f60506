package addon

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the addon.
type Metrics struct {
	headersEmitted   *prometheus.CounterVec
	metaInjections   prometheus.Counter
	violationReports *prometheus.CounterVec
	policyAppends    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance backed by its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		headersEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csp_headers_emitted_total",
				Help: "Total number of CSP headers emitted by mode (enforce, report-only)",
			},
			[]string{"mode"},
		),

		metaInjections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "csp_meta_injections_total",
				Help: "Total number of meta tags injected into served HTML",
			},
		),

		violationReports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csp_violation_reports_total",
				Help: "Total number of violation reports received by status",
			},
			[]string{"status"},
		),

		policyAppends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csp_policy_appends_total",
				Help: "Total number of dynamic policy appends by kind",
			},
			[]string{"kind"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "csp_http_request_duration_seconds",
				Help:    "Dev server request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path_kind"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.headersEmitted,
		m.metaInjections,
		m.violationReports,
		m.policyAppends,
		m.requestDuration,
	)

	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHeader counts an emitted policy header.
func (m *Metrics) RecordHeader(mode string) {
	m.headersEmitted.WithLabelValues(mode).Inc()
}

// RecordMetaInjection counts a meta tag injected into HTML output.
func (m *Metrics) RecordMetaInjection() {
	m.metaInjections.Inc()
}

// RecordReport counts a received violation report.
func (m *Metrics) RecordReport(status string) {
	m.violationReports.WithLabelValues(status).Inc()
}

// RecordAppend counts a dynamic append applied during a merge.
func (m *Metrics) RecordAppend(kind string) {
	m.policyAppends.WithLabelValues(kind).Inc()
}

// ObserveRequest records a request duration.
func (m *Metrics) ObserveRequest(pathKind string, seconds float64) {
	m.requestDuration.WithLabelValues(pathKind).Observe(seconds)
}
