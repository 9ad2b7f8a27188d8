// Package discovery defines the service-discovery oracle the
// dispatcher consults when an upstream names a service_name instead of
// a static node list (spec §4.2 step 1), plus the Kubernetes Endpoints
// watcher reference implementation (§9.3).
package discovery

import (
	"context"
	"errors"

	"github.com/vitaliisemenov/gwcore/internal/routestore"
)

// ErrUninitialized is surfaced by the dispatcher as the literal
// "discovery is uninitialized" ConfigError when no Oracle has resolved
// anything for a service_name yet.
var ErrUninitialized = errors.New("discovery is uninitialized")

// ErrNoValidUpstreamNode is surfaced as "no valid upstream node" when
// the oracle is initialized but currently reports zero endpoints for a
// service_name.
var ErrNoValidUpstreamNode = errors.New("no valid upstream node")

// Oracle answers "which nodes currently back this service" for a
// dynamic upstream.
type Oracle interface {
	Nodes(ctx context.Context, serviceName string) ([]routestore.Node, error)
}
