package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts session activity. One instance is shared by all sessions.
type Metrics struct {
	Transitions *prometheus.CounterVec
	Failures    *prometheus.CounterVec
	Operations  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_status_transitions_total",
				Help: "Session status transitions",
			},
			[]string{"from", "to"},
		),
		Failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_step_failures_total",
				Help: "Failed forward operations by step and failure kind",
			},
			[]string{"step", "kind"},
		),
		Operations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_operation_duration_seconds",
				Help:    "Duration of orchestrator operations",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"operation", "result"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Transitions, m.Failures, m.Operations)
	}
	return m
}
