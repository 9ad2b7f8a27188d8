// Package metrics provides centralized metrics management for the gateway
// dispatch core.
//
// This package implements a unified taxonomy for Prometheus metrics:
//   - Dispatch metrics: balancer workflow outcomes, retries, picker selection
//   - Health metrics: checker state transitions, active probes, passive reports
//   - Cache metrics: picker/checker/address cache hit ratio and evictions
//   - Discovery metrics: Kubernetes Endpoints oracle poll outcomes
//
// All metrics follow the naming convention:
// <namespace>_<category>_<metric_name>[_<unit>], with namespace gwcore by
// default (e.g. gwcore_dispatch_requests_total)
//
// Example:
//
//	registry := metrics.DefaultRegistry()
//	registry.Dispatch().RequestsTotal.WithLabelValues("r1", "up1", "ok").Inc()
//	registry.Health().StateTransitionsTotal.WithLabelValues("healthy", "mostly_unhealthy").Inc()
package metrics

import (
	"sync"
)

// MetricCategory represents the category of a metric.
type MetricCategory string

const (
	// CategoryDispatch represents balancer/dispatch-workflow metrics.
	CategoryDispatch MetricCategory = "dispatch"

	// CategoryHealth represents health-checker metrics.
	CategoryHealth MetricCategory = "health"

	// CategoryCache represents versioned-cache metrics.
	CategoryCache MetricCategory = "cache"

	// CategoryDiscovery represents discovery-oracle metrics.
	CategoryDiscovery MetricCategory = "discovery"

	// CategoryHTTP represents the gateway's own HTTP listener metrics.
	CategoryHTTP MetricCategory = "http"
)

// MetricsRegistry is the central registry for all Prometheus metrics.
// Provides organized access to metrics by category.
//
// Thread-safe: All Prometheus metrics are thread-safe by design.
// Singleton: Use DefaultRegistry() to get the global instance.
type MetricsRegistry struct {
	namespace string

	dispatch  *DispatchMetrics
	health    *HealthMetrics
	cache     *CacheMetrics
	discovery *DiscoveryMetrics
	http      *HTTPMetrics

	dispatchOnce  sync.Once
	healthOnce    sync.Once
	cacheOnce     sync.Once
	discoveryOnce sync.Once
	httpOnce      sync.Once
}

var (
	defaultRegistry     *MetricsRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the global singleton MetricsRegistry. Safe for
// concurrent use. Initialized once on first call.
func DefaultRegistry() *MetricsRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewMetricsRegistry("gwcore")
	})
	return defaultRegistry
}

// NewMetricsRegistry creates a new MetricsRegistry with the specified
// namespace. For most use cases, use DefaultRegistry() instead.
func NewMetricsRegistry(namespace string) *MetricsRegistry {
	if namespace == "" {
		namespace = "gwcore"
	}
	return &MetricsRegistry{namespace: namespace}
}

// Dispatch returns the Dispatch metrics manager. Lazy-initialized on
// first access.
func (r *MetricsRegistry) Dispatch() *DispatchMetrics {
	r.dispatchOnce.Do(func() {
		r.dispatch = NewDispatchMetrics(r.namespace)
	})
	return r.dispatch
}

// Health returns the Health metrics manager. Lazy-initialized on first
// access.
func (r *MetricsRegistry) Health() *HealthMetrics {
	r.healthOnce.Do(func() {
		r.health = NewHealthMetrics(r.namespace)
	})
	return r.health
}

// Cache returns the Cache metrics manager. Lazy-initialized on first
// access.
func (r *MetricsRegistry) Cache() *CacheMetrics {
	r.cacheOnce.Do(func() {
		r.cache = NewCacheMetrics(r.namespace)
	})
	return r.cache
}

// Discovery returns the Discovery metrics manager. Lazy-initialized on
// first access.
func (r *MetricsRegistry) Discovery() *DiscoveryMetrics {
	r.discoveryOnce.Do(func() {
		r.discovery = NewDiscoveryMetrics(r.namespace)
	})
	return r.discovery
}

// HTTP returns the HTTP metrics manager. Lazy-initialized on first
// access.
func (r *MetricsRegistry) HTTP() *HTTPMetrics {
	r.httpOnce.Do(func() {
		r.http = NewHTTPMetricsWithNamespace(r.namespace, "http")
	})
	return r.http
}

// Namespace returns the configured namespace for this registry.
func (r *MetricsRegistry) Namespace() string {
	return r.namespace
}
