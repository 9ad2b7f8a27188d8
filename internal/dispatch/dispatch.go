// Package dispatch implements the balancer/dispatcher workflow (spec
// §4.2): resolving an upstream's endpoints, picking one, and handing it
// to the transport.
package dispatch

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/vitaliisemenov/gwcore/internal/balancer/picker"
	lrucache "github.com/vitaliisemenov/gwcore/internal/cache"
	"github.com/vitaliisemenov/gwcore/internal/discovery"
	"github.com/vitaliisemenov/gwcore/internal/gwerrors"
	"github.com/vitaliisemenov/gwcore/internal/health"
	"github.com/vitaliisemenov/gwcore/internal/reqctx"
	"github.com/vitaliisemenov/gwcore/internal/routestore"
	"github.com/vitaliisemenov/gwcore/pkg/metrics"
)

// FailureObserver is the spec §6 "get_last_failure()" transport hook:
// the transport that drives retries reports the outcome of the attempt
// it just made, so the next Run call can feed that outcome back into
// the health checker before picking an endpoint again. A transport
// hands its observer to the dispatcher via reqctx.Context.Failure.
type FailureObserver interface {
	// LastFailure returns the most recently completed attempt's health
	// signal. ok is false before any attempt has completed.
	LastFailure() (gwerrors.HealthSignal, bool)
}

const (
	pickerCacheCapacity = 256
	pickerCacheTTL      = 300 * time.Second

	addressCacheCapacity = 4096
	addressCacheTTL      = 300 * time.Second
)

// Address is a resolved endpoint.
type Address struct {
	Host string
	Port int
}

// Dispatcher runs the balancer workflow for routes whose Upstream is
// non-nil, against a discovery oracle and the health-checker registry.
type Dispatcher struct {
	oracle  discovery.Oracle
	health  *health.Registry
	pickers *lrucache.VersionedCache[string, picker.Picker]
	address *lrucache.VersionedCache[string, Address]

	cacheMetrics  *metrics.CacheMetrics
	healthMetrics *metrics.HealthMetrics
}

// NewDispatcher builds a Dispatcher. oracle may be nil if no route uses
// a dynamic (service_name) upstream.
func NewDispatcher(oracle discovery.Oracle, healthRegistry *health.Registry) *Dispatcher {
	d := &Dispatcher{oracle: oracle, health: healthRegistry}
	d.pickers = lrucache.New[string, picker.Picker](pickerCacheCapacity, pickerCacheTTL, func(_ any) {
		if d.cacheMetrics != nil {
			d.cacheMetrics.EvictionsTotal.WithLabelValues("picker").Inc()
		}
	})
	d.address = lrucache.New[string, Address](addressCacheCapacity, addressCacheTTL, func(_ any) {
		if d.cacheMetrics != nil {
			d.cacheMetrics.EvictionsTotal.WithLabelValues("address").Inc()
		}
	})
	return d
}

// Observe wires cm/hm into the dispatcher's caches and eligible-endpoint
// bookkeeping (pkg/metrics.CacheMetrics/HealthMetrics). Either may be
// nil to skip that category.
func (d *Dispatcher) Observe(cm *metrics.CacheMetrics, hm *metrics.HealthMetrics) {
	d.cacheMetrics = cm
	d.healthMetrics = hm
	if cm == nil {
		return
	}
	d.pickers.OnHit = func() { cm.HitsTotal.WithLabelValues("picker").Inc() }
	d.pickers.OnMiss = func() { cm.MissesTotal.WithLabelValues("picker").Inc() }
	d.address.OnHit = func() { cm.HitsTotal.WithLabelValues("address").Inc() }
	d.address.OnMiss = func() { cm.MissesTotal.WithLabelValues("address").Inc() }
}

// Run executes the nine-step workflow from spec §4.2 against route and
// rctx, using ctx only to bound the discovery-oracle call. Any
// unexpected failure is returned as *gwerrors.ConfigError or
// *gwerrors.TransientError; the caller surfaces both as a 502.
func (d *Dispatcher) Run(ctx context.Context, rctx *reqctx.Context, route *routestore.Route) error {
	up := route.Upstream
	if up == nil {
		return gwerrors.NewConfigError("dispatch.Run", "route has no upstream")
	}

	// Per-request state the transport-layer hooks consult (spec §3):
	// the upstream's own configuration (timeouts, checks), the parent
	// that owns its checker's lifecycle, and the cache-key components a
	// transport may want to log or reuse.
	rctx.UpstreamConf = up
	rctx.UpstreamVersion = route.ConfVer
	rctx.UpstreamKey = parentKey(route, up)
	if up.Parent != nil {
		rctx.UpstreamHealthcheckParent = up.Parent
	} else if route.Cleanup != nil {
		rctx.UpstreamHealthcheckParent = route.Cleanup
	}

	nodes, err := d.resolveNodes(ctx, up)
	if err != nil {
		return err
	}

	// Step 3: fast path for a single endpoint.
	if len(nodes) == 1 {
		rctx.BalancerIP = nodes[0].Host
		rctx.BalancerPort = nodes[0].Port
		return nil
	}

	// Step 4: retry accounting.
	rctx.BalancerTryCount++
	checker := d.health.GetOrCreate(parentKey(route, up), up)
	if rctx.BalancerTryCount > 1 {
		d.reportPreviousAttempt(checker, rctx)
	}

	// Step 5: first-attempt retry budget (transport-layer concern;
	// recorded on the context for the transport hook to read).
	if rctx.BalancerTryCount == 1 {
		retries := len(nodes) - 1
		if up.Retries != nil && *up.Retries >= 0 {
			retries = *up.Retries
		}
		rctx.SetVar("upstream_retries", retries)
	}

	// Step 6: picker lookup, keyed by (upstream_key, upstream_version#status_ver).
	pk, err := d.getPicker(route, up, nodes, checker)
	if err != nil {
		return gwerrors.NewConfigError("dispatch.Run", err.Error())
	}
	rctx.ServerPicker = pk
	rctx.UpChecker = checker

	// Step 7: ask the picker.
	endpoint, err := pk.Get(rctx)
	if err != nil {
		return gwerrors.NewTransientError("dispatch.Run", "failed to find valid upstream server", err)
	}

	// Step 8: resolve the endpoint string via the address cache.
	addr, err := d.address.GetOrBuild(endpoint, 0, func() (Address, error) {
		return parseAddress(endpoint)
	})
	if err != nil {
		return gwerrors.NewTransientError("dispatch.Run", "failed to resolve endpoint address", err)
	}

	// Step 9.
	rctx.BalancerIP = addr.Host
	rctx.BalancerPort = addr.Port
	return nil
}

func (d *Dispatcher) resolveNodes(ctx context.Context, up *routestore.Upstream) ([]routestore.Node, error) {
	if !up.Dynamic() {
		if len(up.Nodes) == 0 {
			return nil, gwerrors.NewConfigError("dispatch.resolveNodes", "no valid upstream node")
		}
		return up.Nodes, nil
	}

	if d.oracle == nil {
		return nil, gwerrors.NewConfigError("dispatch.resolveNodes", "discovery is uninitialized")
	}

	nodes, err := d.oracle.Nodes(ctx, up.ServiceName)
	if err != nil {
		switch err {
		case discovery.ErrUninitialized:
			return nil, gwerrors.NewConfigError("dispatch.resolveNodes", "discovery is uninitialized")
		case discovery.ErrNoValidUpstreamNode:
			return nil, gwerrors.NewConfigError("dispatch.resolveNodes", "no valid upstream node")
		default:
			return nil, gwerrors.NewTransientError("dispatch.resolveNodes", "discovery lookup failed", err)
		}
	}
	return nodes, nil
}

// reportPreviousAttempt feeds the outcome of the prior attempt back into
// checker, via whatever FailureObserver the transport attached to
// rctx.Failure (spec §6 "get_last_failure()"). A transport that never
// sets Failure (or a first attempt, which never reaches here) simply
// reports nothing.
func (d *Dispatcher) reportPreviousAttempt(checker *health.Checker, rctx *reqctx.Context) {
	if checker == nil {
		return
	}
	observer, ok := rctx.Failure.(FailureObserver)
	if !ok {
		return
	}
	sig, ok := observer.LastFailure()
	if !ok {
		return
	}
	switch sig.Kind {
	case gwerrors.SignalTimeout:
		checker.ReportTimeout(sig.Host, sig.Port, sig.Hostname)
	case gwerrors.SignalTCPFailure:
		checker.ReportTCPFailure(sig.Host, sig.Port, sig.Hostname)
	case gwerrors.SignalHTTPStatus:
		checker.ReportHTTPStatus(sig.Host, sig.Port, sig.Hostname, sig.Status)
	}
}

// parentKey names the checker-lifecycle parent for an upstream: the
// route it is embedded in, or the upstream's own configuration-parent
// key when it is registered standalone (spec §4.3 "Checker lifecycle").
func parentKey(route *routestore.Route, up *routestore.Upstream) string {
	if route.ID != "" {
		return route.ID
	}
	if up.Parent != nil {
		return up.Parent.Key
	}
	return up.ID
}

// getPicker looks up (or rebuilds) the picker for up, keyed by
// (upstream_key, upstream_version#status_ver) so a configuration push
// that bumps route.ConfVer invalidates a stale picker even when the
// health state itself hasn't changed since the last build.
func (d *Dispatcher) getPicker(route *routestore.Route, up *routestore.Upstream, nodes []routestore.Node, checker *health.Checker) (picker.Picker, error) {
	version := uint64(0)
	if checker != nil {
		version = checker.StatusVer()
	}
	key := fmt.Sprintf("%s#%d#%d", parentKey(route, up), route.ConfVer, version)

	return d.pickers.GetOrBuild(key, version, func() (picker.Picker, error) {
		eligible := nodes
		if checker != nil {
			eligible = checker.HealthySubset(nodes)
		}
		if d.healthMetrics != nil {
			d.healthMetrics.EndpointsHealthy.WithLabelValues(up.ID).Set(float64(len(eligible)))
			d.healthMetrics.EndpointsTotal.WithLabelValues(up.ID).Set(float64(len(nodes)))
		}
		nodeMap := make(map[string]int, len(eligible))
		for _, n := range eligible {
			w := n.Weight
			if w <= 0 {
				w = 1
			}
			nodeMap[net.JoinHostPort(n.Host, strconv.Itoa(n.Port))] = w
		}
		return picker.New(nodeMap, up)
	})
}

func parseAddress(endpoint string) (Address, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// Port is optional; treat the whole string as a bare host.
		return Address{Host: endpoint, Port: 0}, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return Address{Host: host, Port: port}, nil
}
