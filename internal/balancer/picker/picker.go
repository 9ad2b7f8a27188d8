// Package picker implements the three server-picker strategies (spec
// §4.4): weighted round-robin, consistent hash, and EWMA. All three
// satisfy Picker and are constructed from a node→weight map plus the
// owning upstream's configuration.
package picker

import (
	"errors"
	"time"

	"github.com/vitaliisemenov/gwcore/internal/reqctx"
	"github.com/vitaliisemenov/gwcore/internal/routestore"
)

// ErrNoEndpoints is returned by Get when a picker was built over an
// empty node set.
var ErrNoEndpoints = errors.New("picker: no endpoints available")

// Picker selects one "host:port" endpoint string per request from a
// fixed, weighted node set.
type Picker interface {
	// Get returns the chosen endpoint, or an error if none is available.
	Get(ctx *reqctx.Context) (string, error)
}

// LatencyReporter is implemented by pickers whose selection depends on
// observed response latency (currently only EWMA). The transport's
// post-request hook type-asserts a Picker to this interface and feeds
// back the observed round-trip time.
type LatencyReporter interface {
	ReportLatency(endpoint string, d time.Duration)
}

// New constructs a Picker of upstream.Type over nodes (endpoint string
// → positive integer weight). It fails with a descriptive error — the
// caller wraps this as a ConfigError per spec §4.2 step 6 — if the
// balancer type is unknown.
func New(nodes map[string]int, upstream *routestore.Upstream) (Picker, error) {
	switch upstream.Type {
	case routestore.BalancerRoundRobin:
		return newRoundRobin(nodes), nil
	case routestore.BalancerCHash:
		keyVar := upstream.ChashKeyVar
		if keyVar == "" {
			keyVar = "remote_addr" // pinned default, spec open question (SPEC_FULL.md §10)
		}
		return newCHash(nodes, keyVar), nil
	case routestore.BalancerEWMA:
		return newEWMA(nodes), nil
	default:
		return nil, errors.New("invalid balancer type")
	}
}
