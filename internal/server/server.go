// Package server is the reference transport implementation: it turns an
// inbound *http.Request into a *reqctx.Context, runs it through the trie
// Manager and (if the matched route has an upstream) the Dispatcher, and
// proxies the request to whatever address the balancer picked. Spec §6
// models the transport as four hooks the dispatch core consumes; this is
// the concrete binding used by the demo binary and integration tests —
// the dispatch/trie/balancer packages never import it.
package server

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vitaliisemenov/gwcore/internal/dispatch"
	"github.com/vitaliisemenov/gwcore/internal/gwerrors"
	"github.com/vitaliisemenov/gwcore/internal/reqctx"
	"github.com/vitaliisemenov/gwcore/internal/routestore"
	"github.com/vitaliisemenov/gwcore/internal/trie"
	"github.com/vitaliisemenov/gwcore/pkg/logger"
	"github.com/vitaliisemenov/gwcore/pkg/metrics"
)

// defaultConnectTimeout/defaultRoundTripTimeout apply when an upstream
// declares no Timeout at all (spec §4.2 step 2).
const (
	defaultConnectTimeout   = 2 * time.Second
	defaultRoundTripTimeout = 30 * time.Second
)

// Config mirrors config.ServerConfig; kept separate so this package
// never needs to import the config package.
type Config struct {
	Host                    string
	Port                    string
	ReadTimeout             time.Duration
	WriteTimeout            time.Duration
	IdleTimeout             time.Duration
	GracefulShutdownTimeout time.Duration
}

// Handler is the dispatch core's front door: match, dispatch, proxy.
type Handler struct {
	manager    *trie.Manager
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.DispatchMetrics
	logger     *slog.Logger
}

// New builds the request handler. dispatcher may be nil for a pure
// routing demo (routes with no upstream only).
func New(manager *trie.Manager, dispatcher *dispatch.Dispatcher, reg *metrics.MetricsRegistry, log *slog.Logger) *Handler {
	h := &Handler{manager: manager, dispatcher: dispatcher, logger: log}
	if reg != nil {
		h.metrics = reg.Dispatch()
	}
	return h
}

// ServeHTTP implements the nginx-style "worker" request path (spec §5):
// one Context per request, no state shared with any other in-flight
// request beyond the Manager's atomically-swapped Router and the health
// registry's shared store.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rctx := newContext(r)

	if !h.manager.Dispatch(rctx) {
		http.NotFound(w, r)
		return
	}

	route, ok := rctx.MatchedRoute.(*routestore.Route)
	if !ok || route == nil {
		http.NotFound(w, r)
		return
	}

	routeID := route.ID
	if route.Upstream == nil {
		// Pure routing rule with no upstream: the matched Handler (if
		// any) has already run inside trie.Dispatch. Nothing left to
		// proxy, so a bare 204 acknowledges the match.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if h.dispatcher == nil {
		h.logger.Error("request matched a routed upstream but no dispatcher is configured", "route_id", routeID)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	upstreamID := route.Upstream.ID

	if err := h.dispatcher.Run(r.Context(), rctx, route); err != nil {
		h.logger.Error("dispatch failed", "route_id", routeID, "err", err)
		if h.metrics != nil {
			h.metrics.RequestsTotal.WithLabelValues(routeID, upstreamID, "error").Inc()
		}
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	h.proxy(w, r, rctx, route)

	if h.metrics != nil {
		h.metrics.RequestsTotal.WithLabelValues(routeID, upstreamID, "ok").Inc()
		h.metrics.DurationSeconds.WithLabelValues(routeID, upstreamID).Observe(time.Since(start).Seconds())
	}
}

// attemptRecorder is the dispatch.FailureObserver a single ServeHTTP call
// hands the dispatcher via rctx.Failure (spec §6 "get_last_failure()"):
// it remembers the outcome of the attempt proxy() just made so a retried
// dispatcher.Run call can feed it back into the health checker before
// picking again.
type attemptRecorder struct {
	sig gwerrors.HealthSignal
	ok  bool
}

func (a *attemptRecorder) LastFailure() (gwerrors.HealthSignal, bool) {
	return a.sig, a.ok
}

func (a *attemptRecorder) record(sig gwerrors.HealthSignal) {
	a.sig = sig
	a.ok = true
}

// proxyOnce performs exactly one backend attempt against rctx's current
// BalancerIP/BalancerPort, buffering the response so a retryable failure
// never commits anything to w. body is the already-drained request body,
// re-wrapped fresh for every attempt since http.Request.Body is
// single-read. It reports whether the attempt succeeded, and if not,
// records the failure signal on rec for the next dispatch.Run call.
func (h *Handler) proxyOnce(r *http.Request, body []byte, rctx *reqctx.Context, up *routestore.Upstream, rec *attemptRecorder) (*http.Response, error) {
	addr := hostport(rctx.BalancerIP, rctx.BalancerPort)

	outReq := r.Clone(r.Context())
	outReq.RequestURI = ""
	outReq.URL.Scheme = "http"
	outReq.URL.Host = addr
	if body != nil {
		outReq.Body = io.NopCloser(bytes.NewReader(body))
		outReq.ContentLength = int64(len(body))
	}

	resp, err := h.clientFor(up).Do(outReq)
	if err != nil {
		var netErr net.Error
		kind := gwerrors.SignalTCPFailure
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = gwerrors.SignalTimeout
		}
		rec.record(gwerrors.HealthSignal{Kind: kind, Host: rctx.BalancerIP, Port: rctx.BalancerPort, Hostname: rctx.BalancerIP})
		return nil, err
	}

	if isUnhealthyStatus(up, resp.StatusCode) {
		rec.record(gwerrors.HealthSignal{
			Kind: gwerrors.SignalHTTPStatus, Host: rctx.BalancerIP, Port: rctx.BalancerPort,
			Hostname: rctx.BalancerIP, Status: resp.StatusCode,
		})
		return resp, errUnhealthyStatus
	}

	return resp, nil
}

// errUnhealthyStatus marks a response that came back fine over the wire
// but landed on a status this upstream's passive checks call unhealthy
// (spec §4.2 step 2/step 10: a retryable outcome, not a transport error).
var errUnhealthyStatus = errors.New("server: upstream returned a passively-unhealthy status")

func isUnhealthyStatus(up *routestore.Upstream, status int) bool {
	if up.Checks == nil || up.Checks.Passive == nil {
		return false
	}
	for _, code := range up.Checks.Passive.UnhealthyStatuses {
		if code == status {
			return true
		}
	}
	return false
}

// clientFor builds the *http.Client that applies up's per-cluster socket
// timeouts (spec §4.2 step 2): Connect bounds the dial, Send+Read bound
// the overall round trip. net/http has no separate write/read deadline
// primitive short of a custom net.Conn wrapper, so Send+Read is
// approximated as one client-wide timeout — a deliberate stdlib-only
// simplification of the three-phase model.
func (h *Handler) clientFor(up *routestore.Upstream) *http.Client {
	connect := defaultConnectTimeout
	roundTrip := defaultRoundTripTimeout
	if up.Timeout != nil {
		if up.Timeout.Connect > 0 {
			connect = up.Timeout.Connect
		}
		if up.Timeout.Send > 0 || up.Timeout.Read > 0 {
			roundTrip = up.Timeout.Send + up.Timeout.Read
		}
	}
	dialer := &net.Dialer{Timeout: connect}
	return &http.Client{
		Timeout: roundTrip,
		Transport: &http.Transport{
			DialContext: dialer.DialContext,
		},
	}
}

// proxy drives the retry loop bounded by "upstream_retries" (spec §4.2
// steps 4-10): each attempt is made off the real ResponseWriter so a
// retryable failure never commits partial output, and a failed attempt
// is fed back into the dispatcher via rctx.Failure before the next
// dispatch.Run call picks a different endpoint.
func (h *Handler) proxy(w http.ResponseWriter, r *http.Request, rctx *reqctx.Context, route *routestore.Route) {
	up := route.Upstream

	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body.Close()
	}

	rec := &attemptRecorder{}
	rctx.Failure = rec

	for {
		resp, err := h.proxyOnce(r, body, rctx, up, rec)
		if err == nil {
			rctx.ProxyPassed = true
			writeResponse(w, resp)
			return
		}
		if resp != nil {
			resp.Body.Close()
		}

		budget, ok := rctx.Var("upstream_retries").(int)
		if !ok || rctx.BalancerTryCount > budget {
			h.logger.Error("upstream attempt failed, retry budget exhausted", "route_id", route.ID, "err", err)
			http.Error(w, "Bad Gateway", http.StatusBadGateway)
			return
		}

		if dErr := h.dispatcher.Run(r.Context(), rctx, route); dErr != nil {
			h.logger.Error("dispatch failed on retry", "route_id", route.ID, "err", dErr)
			http.Error(w, "Bad Gateway", http.StatusBadGateway)
			return
		}
	}
}

func writeResponse(w http.ResponseWriter, resp *http.Response) {
	defer resp.Body.Close()
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func hostport(host string, port int) string {
	if port == 0 {
		return host
	}
	return host + ":" + strconv.Itoa(port)
}

// newContext adapts an *http.Request into the dispatch core's request
// attribute contract (spec §6): headers lowercased, cookies resolved
// through http.Request.Cookie, and the named variable table backed by
// the request's query/form values plus a handful of connection
// attributes — the same shape the teacher's middleware chain builds
// before invoking a handler (pkg/logger/logger.go's LoggingMiddleware).
func newContext(r *http.Request) *reqctx.Context {
	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if len(v) > 0 {
			headers[strings.ReplaceAll(strings.ToLower(k), "-", "_")] = v[0]
		}
	}

	ctx := reqctx.New(r.Method, r.Host, r.URL.Path, r.RemoteAddr, headers, cookieJar{r}, varTable{r})

	reqID := logger.GetRequestID(r.Context())
	if reqID == "" {
		reqID = logger.GenerateRequestID()
	}
	ctx.SetVar("request_id", reqID)

	return ctx
}

type cookieJar struct{ r *http.Request }

func (c cookieJar) Cookie(name string) (string, bool) {
	ck, err := c.r.Cookie(name)
	if err != nil {
		return "", false
	}
	return ck.Value, true
}

// varTable answers the named variable table from the request's query
// string (arg_<name> for one parameter, args for the raw query string;
// other args_ names are not resolved) and a static set of
// connection attributes; it never accepts writes from the dispatch core
// except the writable set forwarded to request headers for the proxied
// attempt.
type varTable struct{ r *http.Request }

func (v varTable) Get(name string) (any, bool) {
	switch {
	case name == "uri":
		return v.r.URL.Path, true
	case name == "args":
		return v.r.URL.RawQuery, true
	case strings.HasPrefix(name, "arg_"):
		val := v.r.URL.Query().Get(name[len("arg_"):])
		if val == "" {
			return nil, false
		}
		return val, true
	default:
		return nil, false
	}
}

func (v varTable) Set(name string, value any) {
	val, ok := value.(string)
	if !ok {
		return
	}
	header := strings.ReplaceAll(strings.TrimPrefix(name, "upstream_"), "_", "-")
	v.r.Header.Set("X-Upstream-"+header, val)
}

// NewHTTPServer wraps h behind a *http.Server built from cfg, matching
// the teacher's cmd/server/main.go timeout/listen conventions.
func NewHTTPServer(cfg Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Host + ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
