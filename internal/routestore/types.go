// Package routestore holds the configuration data model shared by the
// trie router and the balancer: routes, upstreams (clusters), and the
// versioned snapshot that the configuration subsystem publishes.
//
// Configuration storage and watch semantics are an external collaborator
// (spec §1 "Out of scope"); this package only defines the shapes the
// dispatch core consumes plus the Watcher contract a real config system
// must satisfy. A reference file-backed Watcher lives in
// internal/config for tests and the demo binary.
package routestore

import (
	"time"

	"github.com/vitaliisemenov/gwcore/internal/predicate"
)

// BalancerType enumerates the three supported load-balancing policies.
type BalancerType string

const (
	BalancerRoundRobin BalancerType = "roundrobin"
	BalancerCHash      BalancerType = "chash"
	BalancerEWMA       BalancerType = "ewma"
)

// Node is one upstream endpoint.
type Node struct {
	Host     string            `yaml:"host" json:"host" validate:"required"`
	Port     int               `yaml:"port" json:"port" validate:"required,min=1,max=65535"`
	Weight   int               `yaml:"weight" json:"weight" validate:"min=0"`
	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Timeout holds the per-phase socket timeouts applied via the
// transport-layer hook (spec §4.2 step 2).
type Timeout struct {
	Connect time.Duration `yaml:"connect,omitempty" json:"connect,omitempty"`
	Send    time.Duration `yaml:"send,omitempty" json:"send,omitempty"`
	Read    time.Duration `yaml:"read,omitempty" json:"read,omitempty"`
}

// ActiveCheck configures the asynchronous probe timer for a cluster.
type ActiveCheck struct {
	Interval           time.Duration `yaml:"interval" json:"interval" validate:"required"`
	HTTPPath           string        `yaml:"http_path" json:"http_path" validate:"required"`
	ExpectedStatuses   []int         `yaml:"expected_statuses" json:"expected_statuses" validate:"required,min=1"`
	HealthyThreshold   int           `yaml:"healthy_threshold" json:"healthy_threshold" validate:"required,min=1"`
	UnhealthyThreshold int           `yaml:"unhealthy_threshold" json:"unhealthy_threshold" validate:"required,min=1"`
	Timeout            time.Duration `yaml:"timeout" json:"timeout" validate:"required"`
}

// PassiveCheck configures passive (report-driven) threshold behavior.
type PassiveCheck struct {
	HealthyStatuses    []int `yaml:"healthy_statuses" json:"healthy_statuses"`
	UnhealthyStatuses  []int `yaml:"unhealthy_statuses" json:"unhealthy_statuses"`
	HealthyThreshold   int   `yaml:"healthy_threshold" json:"healthy_threshold" validate:"required,min=1"`
	UnhealthyThreshold int   `yaml:"unhealthy_threshold" json:"unhealthy_threshold" validate:"required,min=1"`
}

// Checks bundles active and/or passive health-check configuration. A
// Checker exists for a cluster iff Checks is non-nil (spec §3
// invariant).
type Checks struct {
	Active  *ActiveCheck  `yaml:"active,omitempty" json:"active,omitempty"`
	Passive *PassiveCheck `yaml:"passive,omitempty" json:"passive,omitempty"`
	// ProbeHost/ProbePort override the node's own host/port for active
	// probing (spec §3 "probe host and port overrides").
	ProbeHost string `yaml:"probe_host,omitempty" json:"probe_host,omitempty"`
	ProbePort int    `yaml:"probe_port,omitempty" json:"probe_port,omitempty"`
}

// Upstream is a named cluster of backend endpoints plus its balancing,
// timeout, retry, and health-check policy (spec §3 "Upstream").
type Upstream struct {
	ID          string       `yaml:"id" json:"id"`
	Type        BalancerType `yaml:"type" json:"type" validate:"required,oneof=roundrobin chash ewma"`
	Nodes       []Node       `yaml:"nodes,omitempty" json:"nodes,omitempty"`
	ServiceName string       `yaml:"service_name,omitempty" json:"service_name,omitempty"`
	Checks      *Checks      `yaml:"checks,omitempty" json:"checks,omitempty"`
	Timeout     *Timeout     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Retries     *int         `yaml:"retries,omitempty" json:"retries,omitempty"`
	// ChashKeyVar names the reqctx variable the chash picker hashes on;
	// defaults to "remote_addr" when empty (open question, pinned in
	// SPEC_FULL.md §10).
	ChashKeyVar string `yaml:"chash_key_var,omitempty" json:"chash_key_var,omitempty"`

	// Parent is a back-reference used only to attach cleanup handlers
	// (checker teardown) when the upstream is not embedded in a route.
	Parent *CleanupParent `yaml:"-" json:"-"`
}

// Dynamic reports whether node resolution must go through the discovery
// oracle at dispatch time (spec §4.2 step 1).
func (u *Upstream) Dynamic() bool { return u.ServiceName != "" }

// CleanupParent is anything that owns a cleanup-handler list: either a
// Route or a standalone configuration root. Design note 9c replaces the
// original's ad hoc `clean_handlers` closures-on-tables with this
// explicit, identity-keyed disposer.
type CleanupParent struct {
	Key       string
	disposers []func()
}

// OnCleanup registers fn to run when this parent is torn down (its
// owning route or config generation is replaced/removed).
func (p *CleanupParent) OnCleanup(fn func()) {
	p.disposers = append(p.disposers, fn)
}

// Cleanup runs every registered disposer exactly once, in registration
// order, and clears the list.
func (p *CleanupParent) Cleanup() {
	for _, fn := range p.disposers {
		fn()
	}
	p.disposers = nil
}

// VarPredicate is one (name, operator, operand) tuple from a route's
// vars list (spec §4.1).
type VarPredicate struct {
	Name    string `yaml:"name" json:"name" validate:"required"`
	Op      string `yaml:"op" json:"op" validate:"required"`
	Operand string `yaml:"operand" json:"operand"`
}

// Handler is invoked once a route fully matches; it populates
// ctx.MatchedRoute and performs whatever request handling the caller
// wants run for this route.
type Handler func(ctx any)

// Route is a single routing rule (spec §3 "Route").
type Route struct {
	ID         string         `yaml:"id" json:"id" validate:"required"`
	ConfVer    uint64         `yaml:"-" json:"-"`
	Paths      []string       `yaml:"paths" json:"paths" validate:"required,min=1"`
	Methods    []string       `yaml:"methods,omitempty" json:"methods,omitempty"`
	Hosts      []string       `yaml:"hosts,omitempty" json:"hosts,omitempty"`
	RemoteCIDR []string       `yaml:"remote_addrs,omitempty" json:"remote_addrs,omitempty" validate:"omitempty,dive,cidr"`
	Vars       []VarPredicate `yaml:"vars,omitempty" json:"vars,omitempty"`
	Priority   int            `yaml:"priority" json:"priority"`

	// FilterNode is the configuration-level predicate AST; Filter is the
	// compiled form, produced at rebuild time (nil if FilterNode is nil).
	FilterNode *predicate.Node `yaml:"filter_fun,omitempty" json:"filter_fun,omitempty"`
	Filter     predicate.Expr  `yaml:"-" json:"-"`

	Handler  Handler         `yaml:"-" json:"-"`
	Upstream *Upstream       `yaml:"upstream,omitempty" json:"upstream,omitempty"`
	Cleanup  *CleanupParent  `yaml:"-" json:"-"`
}

// Snapshot is the configuration subsystem's versioned view: user routes
// plus an independently-versioned set of plugin/API-defined routes
// (spec §2 component 2).
type Snapshot struct {
	ConfVersion uint64
	Routes      []*Route
	APIRoutes   []*Route
}

// Watcher is the configuration-watch collaborator the dispatch core
// consumes (spec §6 "Configuration watch"): a subscription yielding
// (values, conf_version) snapshots. Out of scope for this module's
// implementation; a reference file-backed Watcher lives in
// internal/config.
type Watcher interface {
	// Current returns the latest published snapshot.
	Current() *Snapshot
	// Subscribe registers fn to be called after every new snapshot is
	// published. Subscribe is not required for correctness — Current is
	// polled at the top of every Match — but lets the admin surface push
	// updates without polling.
	Subscribe(fn func(*Snapshot))
}
