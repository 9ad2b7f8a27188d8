package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/gwcore/internal/routestore"
	"github.com/vitaliisemenov/gwcore/pkg/metrics"
)

func newTestChecker(passive *routestore.PassiveCheck) *Checker {
	nodes := []routestore.Node{{Host: "10.0.0.1", Port: 8080}}
	checks := &routestore.Checks{Passive: passive}
	return NewChecker("ns", checks, nodes, NewLocalStore(), nil, nil)
}

func TestChecker_DefaultsToHealthy(t *testing.T) {
	c := newTestChecker(&routestore.PassiveCheck{UnhealthyThreshold: 1, HealthyThreshold: 1})
	assert.True(t, c.GetTargetStatus("10.0.0.1", 8080, "10.0.0.1"), "an endpoint with no recorded attempts starts healthy")
}

func TestChecker_PassiveFailureCrossesThreshold(t *testing.T) {
	// State starts at StateHealthy(3); each threshold-crossing failure
	// retreats it by exactly one level, so reaching StateMostlyUnhealthy(1)
	// (the first level where Healthy() is false) takes two crossings.
	c := newTestChecker(&routestore.PassiveCheck{
		UnhealthyStatuses:  []int{503},
		UnhealthyThreshold: 1,
		HealthyThreshold:   1,
	})

	c.ReportHTTPStatus("10.0.0.1", 8080, "10.0.0.1", 503)
	assert.True(t, c.GetTargetStatus("10.0.0.1", 8080, "10.0.0.1"), "mostly_healthy still counts as eligible for traffic")

	c.ReportHTTPStatus("10.0.0.1", 8080, "10.0.0.1", 503)
	assert.False(t, c.GetTargetStatus("10.0.0.1", 8080, "10.0.0.1"), "a second crossing reaches mostly_unhealthy, which is not eligible")
}

func TestChecker_RecoversAfterHealthySuccesses(t *testing.T) {
	c := newTestChecker(&routestore.PassiveCheck{
		UnhealthyStatuses:  []int{500},
		HealthyStatuses:    []int{200},
		UnhealthyThreshold: 1,
		HealthyThreshold:   2,
	})

	// Two failures: healthy -> mostly_healthy -> mostly_unhealthy (not eligible).
	c.ReportHTTPStatus("10.0.0.1", 8080, "10.0.0.1", 500)
	c.ReportHTTPStatus("10.0.0.1", 8080, "10.0.0.1", 500)
	require.False(t, c.GetTargetStatus("10.0.0.1", 8080, "10.0.0.1"))

	c.ReportHTTPStatus("10.0.0.1", 8080, "10.0.0.1", 200)
	assert.False(t, c.GetTargetStatus("10.0.0.1", 8080, "10.0.0.1"), "not yet enough successes to cross back")

	c.ReportHTTPStatus("10.0.0.1", 8080, "10.0.0.1", 200)
	assert.True(t, c.GetTargetStatus("10.0.0.1", 8080, "10.0.0.1"), "the second success crosses back to mostly_healthy")
}

func TestChecker_NotifiesOnTransition(t *testing.T) {
	var transitions []string
	nodes := []routestore.Node{{Host: "10.0.0.1", Port: 8080}}
	checks := &routestore.Checks{Passive: &routestore.PassiveCheck{
		UnhealthyStatuses:  []int{500},
		UnhealthyThreshold: 1,
	}}
	c := NewChecker("ns", checks, nodes, NewLocalStore(), nil, func(namespace string, key EndpointKey, from, to State) {
		transitions = append(transitions, namespace+":"+from.String()+"->"+to.String())
	})

	c.ReportHTTPStatus("10.0.0.1", 8080, "10.0.0.1", 500)
	require.Len(t, transitions, 1)
	assert.Equal(t, "ns:healthy->mostly_healthy", transitions[0])
}

func TestChecker_HealthySubsetFallsBackWhenEmpty(t *testing.T) {
	nodes := []routestore.Node{{Host: "10.0.0.1", Port: 8080}, {Host: "10.0.0.2", Port: 8080}}
	checks := &routestore.Checks{Passive: &routestore.PassiveCheck{UnhealthyStatuses: []int{500}, UnhealthyThreshold: 1}}
	c := NewChecker("ns", checks, nodes, NewLocalStore(), nil, nil)

	for i := 0; i < 2; i++ {
		c.ReportHTTPStatus("10.0.0.1", 8080, "10.0.0.1", 500)
		c.ReportHTTPStatus("10.0.0.2", 8080, "10.0.0.2", 500)
	}

	subset := c.HealthySubset(nodes)
	assert.Equal(t, nodes, subset, "losing every endpoint falls back to the full list rather than an empty subset")
}

func TestChecker_Snapshot(t *testing.T) {
	c := newTestChecker(&routestore.PassiveCheck{UnhealthyThreshold: 1})
	snap := c.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "10.0.0.1", snap[0].Host)
	assert.True(t, snap[0].Healthy)
}

func TestRegistry_PeekWithoutCreate(t *testing.T) {
	r := NewRegistry(NewLocalStore(), nil)

	_, ok := r.Peek("route-1")
	assert.False(t, ok, "Peek must never create a checker as a side effect")

	up := &routestore.Upstream{
		Checks: &routestore.Checks{Passive: &routestore.PassiveCheck{UnhealthyThreshold: 1}},
		Nodes:  []routestore.Node{{Host: "10.0.0.1", Port: 80}},
	}
	require.NotNil(t, r.GetOrCreate("route-1", up))

	_, ok = r.Peek("route-1")
	assert.True(t, ok)
}

func TestRegistry_NoCheckerWithoutChecks(t *testing.T) {
	r := NewRegistry(NewLocalStore(), nil)
	up := &routestore.Upstream{Nodes: []routestore.Node{{Host: "10.0.0.1", Port: 80}}}
	assert.Nil(t, r.GetOrCreate("route-1", up))
}

func TestRegistry_ObserveComposesExistingOnTransition(t *testing.T) {
	r := NewRegistry(NewLocalStore(), nil)

	var preExistingCalled bool
	r.OnTransition = func(namespace string, key EndpointKey, from, to State) {
		preExistingCalled = true
	}
	r.Observe(metrics.NewHealthMetrics("gwcore_test_registry_observe"), metrics.NewCacheMetrics("gwcore_test_registry_observe"))

	up := &routestore.Upstream{
		Checks: &routestore.Checks{Passive: &routestore.PassiveCheck{UnhealthyStatuses: []int{500}, UnhealthyThreshold: 1}},
		Nodes:  []routestore.Node{{Host: "10.0.0.1", Port: 80}},
	}
	chk := r.GetOrCreate("route-1", up)
	require.NotNil(t, chk)

	chk.ReportHTTPStatus("10.0.0.1", 80, "10.0.0.1", 500)
	assert.True(t, preExistingCalled, "a pre-existing OnTransition callback must still fire after Observe wraps it for metrics")
}

func TestRegistry_ObserveWiresCacheHitsAndMisses(t *testing.T) {
	r := NewRegistry(NewLocalStore(), nil)
	r.Observe(nil, metrics.NewCacheMetrics("gwcore_test_registry_observe_cache"))

	up := &routestore.Upstream{
		Checks: &routestore.Checks{Passive: &routestore.PassiveCheck{UnhealthyThreshold: 1}},
		Nodes:  []routestore.Node{{Host: "10.0.0.1", Port: 80}},
	}
	first := r.GetOrCreate("route-1", up)
	require.NotNil(t, first)
	second := r.GetOrCreate("route-1", up)
	assert.Same(t, first, second, "the second GetOrCreate for the same parentKey must be a cache hit, not a rebuild")
}

func TestChecker_NotifiesOnProbeAndPassiveReport(t *testing.T) {
	var probes, reports []string
	nodes := []routestore.Node{{Host: "10.0.0.1", Port: 8080}}
	checks := &routestore.Checks{Passive: &routestore.PassiveCheck{
		UnhealthyStatuses:  []int{500},
		UnhealthyThreshold: 1,
	}}
	c := NewChecker("ns", checks, nodes, NewLocalStore(), nil, nil)
	c.OnProbe = func(result string) { probes = append(probes, result) }
	c.OnPassiveReport = func(kind string) { reports = append(reports, kind) }

	c.ReportHTTPStatus("10.0.0.1", 8080, "10.0.0.1", 500)
	c.ReportTimeout("10.0.0.1", 8080, "10.0.0.1")
	c.ReportTCPFailure("10.0.0.1", 8080, "10.0.0.1")

	assert.Empty(t, probes, "passive reports must not be counted as active probes")
	assert.Equal(t, []string{"http_status", "timeout", "tcp_failure"}, reports)
}
