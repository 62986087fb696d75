package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Exec metrics
	ExecTotal    *prometheus.CounterVec
	ExecDuration *prometheus.HistogramVec

	// Dispatch metrics
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	// Planner metrics
	PlansTotal *prometheus.CounterVec
}

// New creates and registers all metrics
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ExecTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exec_total",
				Help: "Total number of exec invocations by verdict",
			},
			[]string{"verdict"},
		),
		ExecDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exec_duration_seconds",
				Help:    "Duration of exec invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"verdict"},
		),

		DispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_total",
				Help: "Total number of dispatched actions by tool and status",
			},
			[]string{"tool", "status"},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dispatch_duration_seconds",
				Help:    "Duration of dispatched actions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),

		PlansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plans_total",
				Help: "Total number of generated plans by status",
			},
			[]string{"status"},
		),
	}

	m.registry.MustRegister(
		m.ExecTotal,
		m.ExecDuration,
		m.DispatchTotal,
		m.DispatchDuration,
		m.PlansTotal,
	)

	return m
}

// RecordExec implements sandbox.Recorder.
func (m *Metrics) RecordExec(requestID, cmd, verdict string, exitCode int, duration time.Duration) {
	m.ExecTotal.WithLabelValues(verdict).Inc()
	m.ExecDuration.WithLabelValues(verdict).Observe(duration.Seconds())
}

// ObserveDispatch implements dispatch.Observer.
func (m *Metrics) ObserveDispatch(tool, status string, duration time.Duration) {
	m.DispatchTotal.WithLabelValues(tool, status).Inc()
	m.DispatchDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordPlan counts a planning attempt.
func (m *Metrics) RecordPlan(status string) {
	m.PlansTotal.WithLabelValues(status).Inc()
}

// Handler returns an HTTP handler serving the metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
