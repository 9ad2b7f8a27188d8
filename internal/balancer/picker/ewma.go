package picker

import (
	"sync"
	"time"

	"github.com/vitaliisemenov/gwcore/internal/reqctx"
)

// ewmaDecay is the smoothing factor applied to each new latency sample;
// higher values react faster to recent observations.
const ewmaDecay = 0.2

type ewmaEndpoint struct {
	endpoint string
	weight   int

	mu      sync.Mutex
	latency float64 // exponentially-weighted moving average, in seconds
	inflight int
}

// ewma picks the endpoint with the minimum score = ewma_latency ×
// (inflight + 1), breaking ties by weight (spec §4.4); the +1 keeps
// latency significant while nothing is in flight. Latency samples arrive
// via ReportLatency, a post-request hook; inflight is incremented on
// Get and decremented by ReportLatency once the request completes.
type ewma struct {
	mu        sync.Mutex
	endpoints []*ewmaEndpoint
}

func newEWMA(nodes map[string]int) *ewma {
	e := &ewma{}
	for ep, w := range nodes {
		if w <= 0 {
			w = 1
		}
		e.endpoints = append(e.endpoints, &ewmaEndpoint{endpoint: ep, weight: w})
	}
	return e
}

func (e *ewma) Get(_ *reqctx.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.endpoints) == 0 {
		return "", ErrNoEndpoints
	}

	var best *ewmaEndpoint
	var bestScore float64

	for _, ep := range e.endpoints {
		ep.mu.Lock()
		score := ep.latency * float64(ep.inflight+1)
		ep.mu.Unlock()

		if best == nil || score < bestScore || (score == bestScore && ep.weight > best.weight) {
			best = ep
			bestScore = score
		}
	}

	best.mu.Lock()
	best.inflight++
	best.mu.Unlock()

	return best.endpoint, nil
}

// ReportLatency feeds a new observed response-time sample for endpoint
// into its EWMA and decrements its inflight counter, marking the
// request that was picked for it as complete.
func (e *ewma) ReportLatency(endpoint string, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ep := range e.endpoints {
		if ep.endpoint != endpoint {
			continue
		}
		ep.mu.Lock()
		sample := d.Seconds()
		if ep.latency == 0 {
			ep.latency = sample
		} else {
			ep.latency = ewmaDecay*sample + (1-ewmaDecay)*ep.latency
		}
		if ep.inflight > 0 {
			ep.inflight--
		}
		ep.mu.Unlock()
		return
	}
}
