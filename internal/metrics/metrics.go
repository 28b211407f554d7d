// Package metrics provides Prometheus metrics for the nudge service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	DigestRunsTotal *prometheus.CounterVec
	DigestDuration  prometheus.Histogram
	StalePRsLastRun prometheus.Gauge
	SnoozesTotal    *prometheus.CounterVec
	ActionsTotal    *prometheus.CounterVec
	SkippedRecords  prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		DigestRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nudge_digest_runs_total",
				Help: "Total number of digest runs by status.",
			},
			[]string{"status"},
		),
		DigestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nudge_digest_duration_seconds",
				Help:    "Digest run duration.",
				Buckets: prometheus.DefBuckets,
			},
		),
		StalePRsLastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nudge_stale_prs_last_run",
				Help: "Number of stale PRs found by the most recent digest run.",
			},
		),
		SnoozesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nudge_snoozes_total",
				Help: "Total snooze actions by duration.",
			},
			[]string{"duration"},
		),
		ActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nudge_actions_total",
				Help: "Total user actions by action and result.",
			},
			[]string{"action", "result"},
		),
		SkippedRecords: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nudge_skipped_records_total",
				Help: "Total PR records skipped as malformed.",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nudge_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		registry: reg,
	}

	reg.MustRegister(m.DigestRunsTotal)
	reg.MustRegister(m.DigestDuration)
	reg.MustRegister(m.StalePRsLastRun)
	reg.MustRegister(m.SnoozesTotal)
	reg.MustRegister(m.ActionsTotal)
	reg.MustRegister(m.SkippedRecords)
	reg.MustRegister(m.ErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRun increments the digest run counter.
func (m *Metrics) RecordRun(status string) {
	m.DigestRunsTotal.WithLabelValues(status).Inc()
}

// RecordAction increments the user action counter.
func (m *Metrics) RecordAction(action, result string) {
	m.ActionsTotal.WithLabelValues(action, result).Inc()
}

// RecordSnooze increments the snooze counter.
func (m *Metrics) RecordSnooze(duration string) {
	m.SnoozesTotal.WithLabelValues(duration).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}

// ObserveDigest records a digest run duration.
func (m *Metrics) ObserveDigest(seconds float64) {
	m.DigestDuration.Observe(seconds)
}

// SetStalePRs sets the stale PR gauge for the latest run.
func (m *Metrics) SetStalePRs(count float64) {
	m.StalePRsLastRun.Set(count)
}

// AddSkipped adds to the malformed-record counter.
func (m *Metrics) AddSkipped(count float64) {
	m.SkippedRecords.Add(count)
}
