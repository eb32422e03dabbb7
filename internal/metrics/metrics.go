// Package metrics exposes Prometheus collectors for the wizard and the
// report generator.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "qla"

// Metrics holds every collector, registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	reportsGenerated   prometheus.Counter
	generationDuration prometheus.Histogram
	generationErrors   *prometheus.CounterVec
	rosterUploads      *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	sessionsActive     prometheus.Gauge
}

// New creates a Metrics with a fresh registry that also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	auto := promauto.With(reg)

	return &Metrics{
		registry: reg,
		reportsGenerated: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_generated_total",
			Help:      "Total number of student reports written",
		}),
		generationDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_generation_seconds",
			Help:      "Time spent generating one batch of reports",
			Buckets:   prometheus.DefBuckets,
		}),
		generationErrors: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_generation_errors_total",
			Help:      "Failed generation runs by reason",
		}, []string{"reason"}),
		rosterUploads: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roster_uploads_total",
			Help:      "Roster uploads by result",
		}, []string{"result"}),
		transitions: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wizard_transitions_total",
			Help:      "Wizard transitions by source step and result",
		}, []string{"step", "result"}),
		sessionsActive: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Unexpired wizard sessions",
		}),
	}
}

// Registry returns the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveGeneration records a successful generation run.
func (m *Metrics) ObserveGeneration(reports int, d time.Duration) {
	m.reportsGenerated.Add(float64(reports))
	m.generationDuration.Observe(d.Seconds())
}

// GenerationFailed records a failed generation run.
func (m *Metrics) GenerationFailed(reason string) {
	m.generationErrors.WithLabelValues(reason).Inc()
}

// RosterUpload records an upload attempt; result is "accepted" or "rejected".
func (m *Metrics) RosterUpload(accepted bool) {
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.rosterUploads.WithLabelValues(result).Inc()
}

// Transition records a wizard transition attempted from step.
func (m *Metrics) Transition(step int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.transitions.WithLabelValues(strconv.Itoa(step), result).Inc()
}

// SetSessionsActive updates the session gauge.
func (m *Metrics) SetSessionsActive(n int) {
	m.sessionsActive.Set(float64(n))
}
