package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CacheMetrics contains metrics for the versioned LRU caches backing
// picker, checker, and address lookups (spec §4.5).
type CacheMetrics struct {
	HitsTotal      *prometheus.CounterVec // cache_name
	MissesTotal    *prometheus.CounterVec // cache_name
	EvictionsTotal *prometheus.CounterVec // cache_name
	Size           *prometheus.GaugeVec   // cache_name
}

// NewCacheMetrics creates versioned-cache metrics.
func NewCacheMetrics(namespace string) *CacheMetrics {
	return &CacheMetrics{
		HitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of cache lookups that found a current-version entry",
			},
			[]string{"cache_name"}, // picker|checker|address
		),

		MissesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of cache lookups that rebuilt a stale or absent entry",
			},
			[]string{"cache_name"},
		),

		EvictionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "evictions_total",
				Help:      "Total number of entries evicted by size or TTL, triggering a disposer call",
			},
			[]string{"cache_name"},
		),

		Size: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "entries",
				Help:      "Current number of entries held in a cache",
			},
			[]string{"cache_name"},
		),
	}
}
