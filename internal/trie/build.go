package trie

import (
	"github.com/vitaliisemenov/gwcore/internal/gwerrors"
	"github.com/vitaliisemenov/gwcore/internal/predicate"
	"github.com/vitaliisemenov/gwcore/internal/routestore"
)

// BuildResult carries both the built Router and the routes that were
// skipped because their filter_fun failed to compile (spec §7
// PredicateError: "the offending route is skipped during rebuild and
// logged; other routes remain usable").
type BuildResult struct {
	Router  *Router
	Skipped []*gwerrors.PredicateError
}

// Build constructs a brand-new Router from a snapshot. Plugin/API routes
// are inserted first (spec §4.1 "Plugin routes are inserted first"),
// then user routes, each in snapshot order; within a trie slot,
// candidates are later sorted by descending priority, stable on
// insertion order.
func Build(snap *routestore.Snapshot) *BuildResult {
	root := newNode()
	seq := 0
	result := &BuildResult{}

	insertAll := func(routes []*routestore.Route) {
		for _, route := range routes {
			if err := compileFilter(route); err != nil {
				result.Skipped = append(result.Skipped, err)
				continue
			}
			for _, path := range route.Paths {
				seq++
				insert(root, path, buildCandidate(route, seq))
			}
		}
	}

	insertAll(snap.APIRoutes)
	insertAll(snap.Routes)

	nodeCount, maxDepth := countAndSort(root, 1)

	result.Router = &Router{
		root:      root,
		buildVer:  snap.ConfVersion,
		nodeCount: nodeCount,
		maxDepth:  maxDepth,
	}
	return result
}

func compileFilter(route *routestore.Route) *gwerrors.PredicateError {
	if route.FilterNode == nil {
		return nil
	}
	expr, err := predicate.Compile(*route.FilterNode)
	if err != nil {
		return gwerrors.NewPredicateError(route.ID, err.Error())
	}
	route.Filter = expr
	return nil
}

func buildCandidate(route *routestore.Route, seq int) *candidate {
	c := &candidate{route: route, seq: seq}

	if len(route.Methods) > 0 {
		c.methods = make(map[string]bool, len(route.Methods))
		for _, m := range route.Methods {
			c.methods[m] = true
		}
	}

	for _, h := range route.Hosts {
		c.hosts = append(c.hosts, parseHostPattern(h))
	}

	for _, cidr := range route.RemoteCIDR {
		if n, ok := parseCIDR(cidr); ok {
			c.remoteNets = append(c.remoteNets, n)
		}
	}

	return c
}

// insert walks/creates trie nodes for pattern and appends cand at the
// terminal it resolves to.
func insert(root *node, pattern string, cand *candidate) {
	segs := splitPattern(pattern)
	cur := root

	for i, seg := range segs {
		last := i == len(segs)-1

		if seg == "*" && last {
			if cur.wildcard == nil {
				cur.wildcard = newNode()
			}
			cur.wildcard.wildcardCandidates = append(cur.wildcard.wildcardCandidates, cand)
			return
		}

		if isParamSegment(seg) {
			if cur.param == nil {
				cur.param = newNode()
			}
			cur = cur.param
			continue
		}

		child, ok := cur.literal[seg]
		if !ok {
			child = newNode()
			cur.literal[seg] = child
		}
		cur = child
	}

	cur.candidates = append(cur.candidates, cand)
}

// countAndSort sorts every node's candidate lists by descending priority
// (stable) and returns the total node count and max depth, grounded on
// the teacher's RouteTree precomputed-stats pattern
// (internal/business/routing/tree.go TreeStats).
func countAndSort(n *node, depth int) (count, maxDepth int) {
	count = 1
	maxDepth = depth

	sortCandidates(n.candidates)

	for _, child := range n.literal {
		c, d := countAndSort(child, depth+1)
		count += c
		if d > maxDepth {
			maxDepth = d
		}
	}
	if n.param != nil {
		c, d := countAndSort(n.param, depth+1)
		count += c
		if d > maxDepth {
			maxDepth = d
		}
	}
	if n.wildcard != nil {
		sortCandidates(n.wildcard.wildcardCandidates)
		count++
		if depth+1 > maxDepth {
			maxDepth = depth + 1
		}
	}
	return count, maxDepth
}
