package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DispatchMetrics contains metrics for the balancer/dispatch workflow
// (spec §4.2): outcomes, retries, and which picker strategy served each
// request.
type DispatchMetrics struct {
	RequestsTotal    *prometheus.CounterVec   // route_id, upstream_id, outcome: ok|error
	DurationSeconds  *prometheus.HistogramVec // route_id, upstream_id
	RetriesTotal     *prometheus.CounterVec   // route_id, upstream_id
	PickerSelections *prometheus.CounterVec   // upstream_id, picker_type: roundrobin|chash|ewma
}

// NewDispatchMetrics creates dispatch-workflow metrics.
func NewDispatchMetrics(namespace string) *DispatchMetrics {
	return &DispatchMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "requests_total",
				Help:      "Total number of dispatch workflow runs by outcome",
			},
			[]string{"route_id", "upstream_id", "outcome"},
		),

		DurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "duration_seconds",
				Help:      "Duration of a single dispatch workflow run",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"route_id", "upstream_id"},
		),

		RetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "retries_total",
				Help:      "Total number of dispatch retry attempts beyond the first",
			},
			[]string{"route_id", "upstream_id"},
		),

		PickerSelections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "picker_selections_total",
				Help:      "Total number of endpoint selections by picker type",
			},
			[]string{"upstream_id", "picker_type"},
		),
	}
}
