package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DiscoveryMetrics contains metrics for the Kubernetes Endpoints oracle
// (spec §9.3): poll outcomes and the size of the cached node snapshot.
type DiscoveryMetrics struct {
	PollsTotal      *prometheus.CounterVec   // result: success|error
	PollDuration    prometheus.Histogram
	NodesDiscovered *prometheus.GaugeVec // service_name
}

// NewDiscoveryMetrics creates discovery-oracle metrics.
func NewDiscoveryMetrics(namespace string) *DiscoveryMetrics {
	return &DiscoveryMetrics{
		PollsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "discovery",
				Name:      "polls_total",
				Help:      "Total number of Endpoints refresh polls by result",
			},
			[]string{"result"},
		),

		PollDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "discovery",
				Name:      "poll_duration_seconds",
				Help:      "Duration of a single Endpoints refresh poll",
				Buckets:   prometheus.DefBuckets,
			},
		),

		NodesDiscovered: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "discovery",
				Name:      "nodes",
				Help:      "Number of nodes currently cached for a service name",
			},
			[]string{"service_name"},
		),
	}
}
