package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HealthMetrics contains metrics for the health-checker state machine
// (spec §4.3): state transitions, active probes, and passive reports
// fed back by the dispatcher.
type HealthMetrics struct {
	StateTransitionsTotal *prometheus.CounterVec // from, to
	ProbesTotal           *prometheus.CounterVec // result: success|failure
	PassiveReportsTotal   *prometheus.CounterVec // kind: timeout|tcp_failure|http_status
	EndpointsHealthy      *prometheus.GaugeVec   // upstream
	EndpointsTotal        *prometheus.GaugeVec   // upstream
}

// NewHealthMetrics creates health-checker metrics.
func NewHealthMetrics(namespace string) *HealthMetrics {
	return &HealthMetrics{
		StateTransitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "state_transitions_total",
				Help:      "Total number of checker state transitions",
			},
			[]string{"from", "to"},
		),

		ProbesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "probes_total",
				Help:      "Total number of active health probes by result",
			},
			[]string{"result"},
		),

		PassiveReportsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "passive_reports_total",
				Help:      "Total number of passive failure reports fed back by the dispatcher",
			},
			[]string{"kind"},
		),

		EndpointsHealthy: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "endpoints_healthy",
				Help:      "Number of endpoints currently in the healthy subset",
			},
			[]string{"upstream"},
		),

		EndpointsTotal: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "endpoints_total",
				Help:      "Total number of endpoints configured for an upstream",
			},
			[]string{"upstream"},
		),
	}
}
