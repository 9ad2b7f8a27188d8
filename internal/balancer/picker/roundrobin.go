package picker

import (
	"sort"
	"sync"

	"github.com/vitaliisemenov/gwcore/internal/reqctx"
)

// roundRobin is a smooth weighted interleaved round-robin picker
// (spec §4.4): each endpoint is produced at a frequency proportional
// to its weight, minimizing run-lengths, using the classic "current
// weight" algorithm (endpoint with the highest running current weight
// wins each pick, then every endpoint's current weight is nudged by its
// static weight and the winner's is reduced by the total).
type roundRobin struct {
	mu    sync.Mutex
	items []*rrItem
}

type rrItem struct {
	endpoint string
	weight   int
	current  int
}

func newRoundRobin(nodes map[string]int) *roundRobin {
	endpoints := make([]string, 0, len(nodes))
	for ep := range nodes {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints) // deterministic starting order (spec: "deterministic across calls from a fixed starting state")

	items := make([]*rrItem, 0, len(endpoints))
	for _, ep := range endpoints {
		w := nodes[ep]
		if w <= 0 {
			w = 1
		}
		items = append(items, &rrItem{endpoint: ep, weight: w})
	}
	return &roundRobin{items: items}
}

func (r *roundRobin) Get(_ *reqctx.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.items) == 0 {
		return "", ErrNoEndpoints
	}

	total := 0
	var best *rrItem
	for _, it := range r.items {
		it.current += it.weight
		total += it.weight
		if best == nil || it.current > best.current {
			best = it
		}
	}
	best.current -= total
	return best.endpoint, nil
}
