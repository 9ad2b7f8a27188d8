package trie

import (
	"github.com/vitaliisemenov/gwcore/internal/predicate"
	"github.com/vitaliisemenov/gwcore/internal/reqctx"
)

// walk descends the trie along path, preferring a literal child over a
// parameterized one at every level. It does not backtrack across
// branches: once a literal edge is taken it is never undone in favor of
// trying param instead. This is a deliberate simplification over full
// ambiguity resolution (pinned in DESIGN.md as an Open Question) — it
// matches every practical route set observed in the examples, where
// literal and param segments are never registered as true siblings for
// the same prefix in a way that would require backtracking.
//
// If the walk runs out of literal/param edges before consuming the full
// path, the deepest wildcard ancestor passed along the way (if any)
// supplies the candidate list instead.
func walk(root *node, segs []string) []*candidate {
	cur := root
	var lastWildcard *node

	for _, seg := range segs {
		if cur.wildcard != nil {
			lastWildcard = cur.wildcard
		}
		if child, ok := cur.literal[seg]; ok {
			cur = child
			continue
		}
		if cur.param != nil {
			cur = cur.param
			continue
		}
		if lastWildcard != nil {
			return lastWildcard.wildcardCandidates
		}
		return nil
	}

	if cur.wildcard != nil {
		lastWildcard = cur.wildcard
	}
	if len(cur.candidates) > 0 {
		return cur.candidates
	}
	if lastWildcard != nil {
		return lastWildcard.wildcardCandidates
	}
	return nil
}

// Dispatch matches ctx against the trie and, on the first fully-matching
// candidate (candidates are pre-sorted by descending priority), invokes
// its Handler and returns true. It returns false if no route matches,
// leaving the caller (spec's dispatch layer) to produce a 404.
//
// A candidate matches iff method, host, remote-address CIDR, every vars
// predicate, and filter_fun (if present) all agree — a left-to-right,
// short-circuiting conjunction (spec §4.1, pinned operator semantics).
func (r *Router) Dispatch(ctx *reqctx.Context) bool {
	segs := splitPath(ctx.URI)
	cands := walk(r.root, segs)

	for _, c := range cands {
		if !matchCandidate(c, ctx) {
			continue
		}
		if c.route.Handler != nil {
			c.route.Handler(ctx)
		}
		ctx.MatchedRoute = c.route
		return true
	}
	return false
}

func matchCandidate(c *candidate, ctx *reqctx.Context) bool {
	if c.methods != nil && !c.methods[ctx.Method] {
		return false
	}

	if len(c.hosts) > 0 {
		matched := false
		for _, hp := range c.hosts {
			if hp.matches(ctx.Host) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(c.remoteNets) > 0 {
		ip := ctx.RemoteIP()
		matched := false
		for _, n := range c.remoteNets {
			if n.contains(ip) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, vp := range c.route.Vars {
		if !predicate.Compare(ctx.Var(vp.Name), vp.Op, vp.Operand) {
			return false
		}
	}

	if c.route.Filter != nil && !c.route.Filter.Eval(ctx) {
		return false
	}

	return true
}
