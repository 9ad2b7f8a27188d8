// Package trie implements the radix-trie route matcher (spec §4.1).
//
// The trie is built once per configuration generation and then read
// concurrently without locking: Build never mutates an existing Router,
// it produces a brand new one, and Manager swaps the atomic pointer so
// readers always see either the fully-built old trie or the fully-built
// new one, never a partial rebuild (spec §4.1 "Rebuild protocol").
package trie

import (
	"sort"

	"github.com/vitaliisemenov/gwcore/internal/routestore"
)

// candidate is a route bound to one concrete path pattern it was
// registered under, carrying the precomputed matchers needed at
// dispatch time.
type candidate struct {
	route      *routestore.Route
	seq        int // insertion order, for stable sort within a priority class
	methods    map[string]bool
	hosts      []hostPattern
	remoteNets []cidrNet
}

type hostPattern struct {
	wildcard bool   // leading "*." form
	suffix   string // for wildcard: the part after "*", leading "." kept; for literal: full host
}

// node is one segment of the radix trie.
type node struct {
	literal  map[string]*node
	param    *node // matches exactly one arbitrary segment (":name")
	wildcard *node // present if a "*" pattern terminates here; matches any suffix

	// candidates terminate at this exact node (full literal/param path).
	candidates []*candidate
	// wildcardCandidates terminate at node.wildcard.
	wildcardCandidates []*candidate
}

func newNode() *node {
	return &node{literal: make(map[string]*node)}
}

// Router is an immutable, built radix trie plus the version it was
// built from. It is safe for concurrent reads.
type Router struct {
	root        *node
	buildVer    uint64
	nodeCount   int
	maxDepth    int
}

// BuildVersion returns the conf_version this Router was built from.
func (r *Router) BuildVersion() uint64 { return r.buildVer }

// Stats describes the shape of a built trie, for the admin surface.
type Stats struct {
	NodeCount int
	MaxDepth  int
}

// Stats returns cached statistics computed at build time.
func (r *Router) Stats() Stats {
	return Stats{NodeCount: r.nodeCount, MaxDepth: r.maxDepth}
}

// sortCandidates orders candidates by descending Priority, stable on
// insertion order within a priority class (spec §4.1).
func sortCandidates(cands []*candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].route.Priority > cands[j].route.Priority
	})
}
