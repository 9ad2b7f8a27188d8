package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/gwcore/internal/dispatch"
	"github.com/vitaliisemenov/gwcore/internal/health"
	"github.com/vitaliisemenov/gwcore/internal/routestore"
	"github.com/vitaliisemenov/gwcore/internal/trie"
)

func newTestManager(routes ...*routestore.Route) *trie.Manager {
	store := routestore.NewStore()
	store.Swap(&routestore.Snapshot{ConfVersion: 1, Routes: routes})
	return trie.NewManager(store, nil)
}

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServeHTTP_NoMatchIs404(t *testing.T) {
	h := New(newTestManager(), nil, nil, newDiscardLogger())

	req := httptest.NewRequest(http.MethodGet, "/nothing", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeHTTP_RouteWithNoUpstreamIs204(t *testing.T) {
	manager := newTestManager(&routestore.Route{ID: "r1", Paths: []string{"/health"}})
	h := New(manager, nil, nil, newDiscardLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServeHTTP_MatchedUpstreamWithoutDispatcherIs502(t *testing.T) {
	manager := newTestManager(&routestore.Route{
		ID: "r1", Paths: []string{"/x"},
		Upstream: &routestore.Upstream{ID: "up1", Type: routestore.BalancerRoundRobin, Nodes: []routestore.Node{{Host: "10.0.0.1", Port: 80}}},
	})
	h := New(manager, nil, nil, newDiscardLogger())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServeHTTP_ProxiesToSingleNodeUpstream(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "hello from backend")
	}))
	defer backend.Close()

	backendURL, err := url.Parse(backend.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(backendURL.Port())
	require.NoError(t, err)

	manager := newTestManager(&routestore.Route{
		ID: "r1", Paths: []string{"/x"},
		Upstream: &routestore.Upstream{ID: "up1", Type: routestore.BalancerRoundRobin, Nodes: []routestore.Node{{Host: backendURL.Hostname(), Port: port}}},
	})
	dispatcher := dispatch.NewDispatcher(nil, health.NewRegistry(health.NewLocalStore(), nil))
	h := New(manager, dispatcher, nil, newDiscardLogger())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello from backend", rec.Body.String())
}

func TestServeHTTP_RetriesOnUnhealthyStatusThenSucceeds(t *testing.T) {
	var hits int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok on retry")
	}))
	defer backend.Close()

	backendURL, err := url.Parse(backend.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(backendURL.Port())
	require.NoError(t, err)

	// Both nodes point at the same backend: whichever the picker tries
	// first, the retry loop must re-dispatch and the second attempt
	// must succeed, proving the loop is driven by upstream_retries
	// rather than by which node happens to be picked.
	manager := newTestManager(&routestore.Route{
		ID: "r1", Paths: []string{"/x"},
		Upstream: &routestore.Upstream{
			ID: "up1", Type: routestore.BalancerRoundRobin,
			Nodes: []routestore.Node{
				{Host: backendURL.Hostname(), Port: port, Weight: 1},
				{Host: backendURL.Hostname(), Port: port, Weight: 1},
			},
			Checks: &routestore.Checks{Passive: &routestore.PassiveCheck{
				UnhealthyStatuses:  []int{http.StatusInternalServerError},
				UnhealthyThreshold: 1,
				HealthyThreshold:   1,
			}},
		},
	})
	dispatcher := dispatch.NewDispatcher(nil, health.NewRegistry(health.NewLocalStore(), nil))
	h := New(manager, dispatcher, nil, newDiscardLogger())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok on retry", rec.Body.String())
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "exactly one retry should have happened")
}

func TestServeHTTP_SingleNodeUpstreamNeverRetries(t *testing.T) {
	var hits int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer backend.Close()

	backendURL, err := url.Parse(backend.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(backendURL.Port())
	require.NoError(t, err)

	manager := newTestManager(&routestore.Route{
		ID: "r1", Paths: []string{"/x"},
		Upstream: &routestore.Upstream{
			ID: "up1", Type: routestore.BalancerRoundRobin,
			Nodes: []routestore.Node{{Host: backendURL.Hostname(), Port: port}},
			Checks: &routestore.Checks{Passive: &routestore.PassiveCheck{
				UnhealthyStatuses:  []int{http.StatusInternalServerError},
				UnhealthyThreshold: 1,
				HealthyThreshold:   1,
			}},
		},
	})
	dispatcher := dispatch.NewDispatcher(nil, health.NewRegistry(health.NewLocalStore(), nil))
	h := New(manager, dispatcher, nil, newDiscardLogger())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "the single-endpoint fast path must never retry")
}

func TestHostport(t *testing.T) {
	assert.Equal(t, "10.0.0.1:8080", hostport("10.0.0.1", 8080))
	assert.Equal(t, "10.0.0.1", hostport("10.0.0.1", 0))
}

func TestNewContext_HeadersLowercasedCookieAndQueryResolved(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/a?x=1", nil)
	req.Header.Set("X-Forwarded-For", "9.9.9.9")
	req.AddCookie(&http.Cookie{Name: "session", Value: "abc"})

	ctx := newContext(req)

	assert.Equal(t, "9.9.9.9", ctx.Var("http_X-Forwarded-For"))
	assert.Equal(t, "abc", ctx.Var("cookie_session"))
	assert.Equal(t, "1", ctx.Var("arg_x"))
	assert.NotEmpty(t, ctx.Var("request_id"))
}

func TestVarTable_SetWritesUpstreamPrefixedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/a", nil)
	vt := varTable{req}

	vt.Set("upstream_cache_key", "my-key")
	assert.Equal(t, "my-key", req.Header.Get("X-Upstream-cache-key"))
}

func TestVarTable_SetIgnoresNonStringValues(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/a", nil)
	vt := varTable{req}

	vt.Set("upstream_retries", 3)
	assert.Empty(t, req.Header.Get("X-Upstream-retries"))
}

func TestCookieJar_MissingCookieIsFalse(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/a", nil)
	jar := cookieJar{req}

	_, ok := jar.Cookie("nope")
	assert.False(t, ok)
}
