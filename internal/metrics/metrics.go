// Package metrics exposes scan pipeline metrics in Prometheus format
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/codeguard/pkg/types"
)

const namespace = "codeguard"

// Metrics holds the collectors for one process. Each instance owns its
// registry, so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	// ScansTotal counts finished scans by terminal status
	ScansTotal *prometheus.CounterVec
	// IssuesTotal counts surfaced issues by severity and type
	IssuesTotal *prometheus.CounterVec
	// UnitFailuresTotal counts failed work units by pipeline stage
	UnitFailuresTotal *prometheus.CounterVec
	// CapabilityDuration tracks external capability call latency
	CapabilityDuration *prometheus.HistogramVec
	// ActiveScans is the number of scans not yet terminal
	ActiveScans prometheus.Gauge
}

// New creates a metrics set on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ScansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Finished scans by terminal status.",
		}, []string{"status"}),
		IssuesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_total",
			Help:      "Issues surfaced by completed or failed scans.",
		}, []string{"severity", "type"}),
		UnitFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_failures_total",
			Help:      "Failed work units by pipeline stage.",
		}, []string{"stage"}),
		CapabilityDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capability_duration_seconds",
			Help:      "External capability call duration in seconds, including retries.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"capability"}),
		ActiveScans: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_scans",
			Help:      "Scans currently pending or in progress.",
		}),
	}
}

// Handler serves the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ScanStarted marks a scan as active
func (m *Metrics) ScanStarted() {
	if m == nil {
		return
	}
	m.ActiveScans.Inc()
}

// ScanFinished records a terminal scan and its issues
func (m *Metrics) ScanFinished(status types.ScanStatus, issues []types.Issue) {
	if m == nil {
		return
	}
	m.ActiveScans.Dec()
	m.ScansTotal.WithLabelValues(string(status)).Inc()
	for i := range issues {
		m.IssuesTotal.WithLabelValues(string(issues[i].Severity), string(issues[i].Type)).Inc()
	}
}

// UnitFailed records a failed unit of work
func (m *Metrics) UnitFailed(stage string) {
	if m == nil {
		return
	}
	m.UnitFailuresTotal.WithLabelValues(stage).Inc()
}

// ObserveCapability records one capability call
func (m *Metrics) ObserveCapability(capability string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CapabilityDuration.WithLabelValues(capability).Observe(elapsed.Seconds())
}
