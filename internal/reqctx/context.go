// Package reqctx implements the per-request key/value bag the dispatch
// core reads from and writes into.
//
// The original system resolved variables through a metatable-style trap
// on the request object (design note 9a). This rewrite replaces that
// with a concrete accessor type: Var implements the fixed resolution
// order from spec §6, and results are memoized on the context for the
// life of the request so a route's vars predicates and a chash key
// expression referencing the same name never re-resolve it twice.
package reqctx

import (
	"net"
	"strings"
	"sync"
)

// writableVars is the static set of names that, in addition to being
// memoized, fan out to the transport variable table on assignment.
var writableVars = map[string]bool{
	"upstream_scheme":           true,
	"upstream_host":             true,
	"upstream_upgrade":          true,
	"upstream_connection":       true,
	"upstream_uri":              true,
	"upstream_mirror_host":      true,
	"upstream_cache_zone":       true,
	"upstream_cache_zone_info":  true,
	"upstream_no_cache":         true,
	"upstream_cache_key":        true,
	"upstream_cache_bypass":     true,
	"upstream_hdr_expires":      true,
	"upstream_hdr_cache_control": true,
}

// IsWritable reports whether name is in the writable-variable set.
func IsWritable(name string) bool { return writableVars[name] }

// VariableTable is the transport's named variable table: connection and
// request attributes (uri, host, remote_addr, request_method, args_*,
// arg_*, ...). It is supplied by the collaborator embedding the request
// I/O layer; the dispatch core only ever reads and writes through it.
type VariableTable interface {
	Get(name string) (any, bool)
	Set(name string, value any)
}

// CookieAccessor resolves cookie values by name.
type CookieAccessor interface {
	Cookie(name string) (string, bool)
}

// Context is the per-request state the dispatch core reads from and
// writes into. A Context is created once per inbound request and is
// never shared across requests or goroutines.
type Context struct {
	Method     string
	Host       string
	URI        string
	RemoteAddr string
	Headers    map[string]string // lowercased header names
	Cookies    CookieAccessor
	Vars       VariableTable

	// Per-request state written by the core (spec §3 "Per-request state").
	UpstreamConf              any // *routestore.Upstream, kept as any to avoid an import cycle with routestore
	UpstreamHealthcheckParent any
	UpstreamVersion           uint64
	UpstreamKey               string
	BalancerTryCount          int
	BalancerIP                string
	BalancerPort              int
	UpChecker                 any // *health.Checker
	ServerPicker              any // picker.Picker
	ProxyPassed               bool
	MatchedRoute              any // *routestore.Route

	// Failure is the transport's dispatch.FailureObserver for this
	// request: it reports the previous attempt's outcome so a retried
	// Run call can feed it back into the health checker before picking
	// again (spec §6 "get_last_failure()" hook).
	Failure any

	mu     sync.Mutex
	memo   map[string]any
	memoOK map[string]bool
}

// New creates an empty per-request Context. cookies and vars may be nil
// when the caller has no request attributes to expose (unit tests).
func New(method, host, uri, remoteAddr string, headers map[string]string, cookies CookieAccessor, vars VariableTable) *Context {
	return &Context{
		Method:     method,
		Host:       host,
		URI:        uri,
		RemoteAddr: remoteAddr,
		Headers:    headers,
		Cookies:    cookies,
		Vars:       vars,
		memo:       make(map[string]any),
		memoOK:     make(map[string]bool),
	}
}

// Var resolves name through the fixed order from spec §6:
//  1. "method"            -> the request method
//  2. "cookie"             -> the cookie accessor object itself
//  3. "cookie_<name>"      -> that cookie's value (missing -> nil)
//  4. "http_<header>"      -> that header, lowercased with '-' -> '_'
//  5. otherwise            -> the transport's named variable table
//
// Resolved values are memoized for the life of the request, including a
// resolved-to-nil result (so a repeated lookup of a missing cookie does
// not re-walk the resolution order).
func (c *Context) Var(name string) any {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.memoOK[name]; ok && v {
		return c.memo[name]
	}

	value := c.resolve(name)
	c.memo[name] = value
	c.memoOK[name] = true
	return value
}

func (c *Context) resolve(name string) any {
	switch {
	case name == "method":
		return c.Method
	case name == "cookie":
		return c.Cookies
	case strings.HasPrefix(name, "cookie_"):
		if c.Cookies == nil {
			return nil
		}
		if v, ok := c.Cookies.Cookie(name[len("cookie_"):]); ok {
			return v
		}
		return nil
	case strings.HasPrefix(name, "http_"):
		header := strings.ReplaceAll(strings.ToLower(name[len("http_"):]), "-", "_")
		if c.Headers == nil {
			return nil
		}
		if v, ok := c.Headers[header]; ok {
			return v
		}
		return nil
	default:
		if c.Vars == nil {
			return builtinVar(c, name)
		}
		if v, ok := c.Vars.Get(name); ok {
			return v
		}
		return builtinVar(c, name)
	}
}

// builtinVar covers the handful of named-variable-table entries every
// Context can answer on its own (uri, host, remote_addr,
// request_method) so a nil VariableTable still lets tests and the
// trie's own predicate evaluation run without a full transport stub.
func builtinVar(c *Context, name string) any {
	switch name {
	case "uri":
		return c.URI
	case "host":
		return c.Host
	case "remote_addr":
		return c.RemoteAddr
	case "request_method":
		return c.Method
	default:
		return nil
	}
}

// SetVar assigns a value to a writable name: the value is memoized and,
// for the static writable set, also written through to the transport
// variable table. Assigning a non-writable name only updates memoization
// (callers needing request-scratch storage should prefer their own
// struct field instead of smuggling it through Var/SetVar).
func (c *Context) SetVar(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.memo[name] = value
	c.memoOK[name] = true

	if writableVars[name] && c.Vars != nil {
		c.Vars.Set(name, value)
	}
}

// RemoteIP parses RemoteAddr as host:port and returns just the IP, for
// CIDR matching against route.RemoteAddrs. Returns nil if RemoteAddr is
// not a parseable address.
func (c *Context) RemoteIP() net.IP {
	host := c.RemoteAddr
	if h, _, err := net.SplitHostPort(c.RemoteAddr); err == nil {
		host = h
	}
	return net.ParseIP(host)
}
