package health

import (
	"log/slog"
	"time"

	"github.com/vitaliisemenov/gwcore/internal/cache"
	"github.com/vitaliisemenov/gwcore/internal/routestore"
	"github.com/vitaliisemenov/gwcore/pkg/metrics"
)

const (
	checkerCacheCapacity = 256
	checkerCacheTTL      = 300 * time.Second
)

// Registry lazily creates and caches one Checker per upstream, keyed by
// "upstream#"+parent_key (spec §4.3 "Checker lifecycle: created on
// first use"). It is the cache.VersionedCache instantiation the
// dispatcher consults in step 6 of the balancer workflow.
type Registry struct {
	cache  *cache.VersionedCache[string, *Checker]
	store  Store
	logger *slog.Logger

	// OnTransition, if set before the first GetOrCreate call, is
	// attached to every Checker this registry builds (admin surface's
	// /debug/watch feed). Observe composes a metrics listener onto
	// whatever is already here, so setting this directly and calling
	// Observe are both safe regardless of order.
	OnTransition func(namespace string, key EndpointKey, from, to State)

	// OnProbe and OnPassiveReport, set by Observe, are attached to every
	// Checker this registry builds (pkg/metrics.HealthMetrics).
	OnProbe         func(namespace, result string)
	OnPassiveReport func(namespace, kind string)

	cacheMetrics *metrics.CacheMetrics
}

// NewRegistry builds a checker registry backed by store (local or
// Redis, per deployment).
func NewRegistry(store Store, logger *slog.Logger) *Registry {
	r := &Registry{store: store, logger: logger}
	r.cache = cache.New[string, *Checker](checkerCacheCapacity, checkerCacheTTL, func(v any) {
		if chk, ok := v.(*Checker); ok {
			chk.Stop()
		}
		if r.cacheMetrics != nil {
			r.cacheMetrics.EvictionsTotal.WithLabelValues("checker").Inc()
		}
	})
	return r
}

// Observe wires hm/cm into every Checker this registry builds
// (pkg/metrics.HealthMetrics/CacheMetrics). It composes onto any
// OnTransition already set (e.g. by the admin surface's watch feed)
// rather than replacing it. Either argument may be nil.
func (r *Registry) Observe(hm *metrics.HealthMetrics, cm *metrics.CacheMetrics) {
	if hm != nil {
		prev := r.OnTransition
		r.OnTransition = func(namespace string, key EndpointKey, from, to State) {
			if prev != nil {
				prev(namespace, key, from, to)
			}
			hm.StateTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
		}
		r.OnProbe = func(_ string, result string) {
			hm.ProbesTotal.WithLabelValues(result).Inc()
		}
		r.OnPassiveReport = func(_ string, kind string) {
			hm.PassiveReportsTotal.WithLabelValues(kind).Inc()
		}
	}
	if cm != nil {
		r.cacheMetrics = cm
		r.cache.OnHit = func() { cm.HitsTotal.WithLabelValues("checker").Inc() }
		r.cache.OnMiss = func() { cm.MissesTotal.WithLabelValues("checker").Inc() }
	}
}

// GetOrCreate returns the Checker for upstream, building and starting
// one if this is the first use for the given parentKey. It returns nil
// if upstream has no Checks configured (spec §3: "a checker exists for
// a cluster iff Checks is non-nil").
func (r *Registry) GetOrCreate(parentKey string, upstream *routestore.Upstream) *Checker {
	if upstream.Checks == nil {
		return nil
	}

	namespace := "upstream#" + parentKey
	chk, err := r.cache.GetOrBuild(namespace, 0, func() (*Checker, error) {
		c := NewChecker(namespace, upstream.Checks, upstream.Nodes, r.store, r.logger, r.OnTransition)
		if r.OnProbe != nil {
			c.OnProbe = func(result string) { r.OnProbe(namespace, result) }
		}
		if r.OnPassiveReport != nil {
			c.OnPassiveReport = func(kind string) { r.OnPassiveReport(namespace, kind) }
		}
		c.Start()
		return c, nil
	})
	if err != nil {
		return nil
	}

	if upstream.Parent != nil {
		upstream.Parent.OnCleanup(func() {
			r.cache.Remove(namespace)
		})
	}

	return chk
}

// Peek returns the already-created Checker for parentKey, if one
// exists, without creating it (admin surface read-only lookup).
func (r *Registry) Peek(parentKey string) (*Checker, bool) {
	return r.cache.Peek("upstream#" + parentKey)
}
