// Package admin implements the gateway's read-only introspection
// surface (spec SPEC_FULL.md §9.4): a gorilla/mux router exposing the
// live trie snapshot, per-upstream health, and a websocket stream of
// state-change events. It never influences a dispatch decision — every
// handler here only reads from the public, already-exported query
// methods of trie, health, and routestore.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/vitaliisemenov/gwcore/internal/health"
	"github.com/vitaliisemenov/gwcore/internal/routestore"
	"github.com/vitaliisemenov/gwcore/internal/trie"
)

// Deps bundles the read-only collaborators the admin surface queries.
type Deps struct {
	Trie    *trie.Manager
	Health  *health.Registry
	Watcher routestore.Watcher
	Logger  *slog.Logger

	// MetricsHandler, if set, is exposed at GET /metrics — the gateway's
	// own pkg/metrics.HTTPMetrics handler (or any promhttp.Handler).
	MetricsHandler http.Handler
}

// NewRouter builds the admin mux.Router. The caller is responsible for
// running it on its own listener (spec's admin.port, separate from the
// dispatch core's own listener).
func NewRouter(deps Deps) *mux.Router {
	r := mux.NewRouter()

	hub := NewHub(deps.Logger)
	go hub.Run()
	deps.Watcher.Subscribe(func(snap *routestore.Snapshot) {
		hub.Broadcast(Event{Type: "conf_version", Data: map[string]any{"conf_version": snap.ConfVersion}})
	})
	prevTransition := deps.Health.OnTransition
	deps.Health.OnTransition = func(namespace string, key health.EndpointKey, from, to health.State) {
		if prevTransition != nil {
			prevTransition(namespace, key, from, to)
		}
		hub.Broadcast(Event{Type: "health_transition", Data: map[string]any{
			"upstream": namespace,
			"host":     key.Host,
			"port":     key.Port,
			"from":     from.String(),
			"to":       to.String(),
		}})
	}

	r.HandleFunc("/debug/routes", routesHandler(deps)).Methods(http.MethodGet)
	r.HandleFunc("/debug/upstreams/{name}/health", upstreamHealthHandler(deps)).Methods(http.MethodGet)
	r.HandleFunc("/debug/watch", hub.ServeWS).Methods(http.MethodGet)
	r.PathPrefix("/debug/docs").Handler(httpSwagger.WrapHandler)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler).Methods(http.MethodGet)
	}

	return r
}

// @Summary Current routing table
// @Description Dumps the routes and upstreams the live trie was built from, plus trie shape statistics
// @Tags Debug
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /debug/routes [get]
func routesHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := deps.Watcher.Current()
		resp := struct {
			ConfVersion uint64              `json:"conf_version"`
			Stats       trie.Stats          `json:"trie_stats"`
			Routes      []*routestore.Route `json:"routes"`
			APIRoutes   []*routestore.Route `json:"api_routes"`
		}{
			ConfVersion: snap.ConfVersion,
			Stats:       deps.Trie.Stats(),
			Routes:      snap.Routes,
			APIRoutes:   snap.APIRoutes,
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// @Summary Per-endpoint health for an upstream
// @Description Returns the current health state of every node behind the named route's upstream
// @Tags Debug
// @Produce json
// @Param name path string true "Route ID the upstream is registered under"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /debug/upstreams/{name}/health [get]
func upstreamHealthHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]

		checker, ok := deps.Health.Peek(name)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no checker registered for " + name})
			return
		}

		writeJSON(w, http.StatusOK, struct {
			Upstream   string                  `json:"upstream"`
			Endpoints  []health.EndpointStatus `json:"endpoints"`
			StatusVer  uint64                  `json:"status_ver"`
		}{
			Upstream:  name,
			Endpoints: checker.Snapshot(),
			StatusVer: checker.StatusVer(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
