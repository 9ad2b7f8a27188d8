package trie

import (
	"sync"
	"sync/atomic"

	"github.com/vitaliisemenov/gwcore/internal/gwerrors"
	"github.com/vitaliisemenov/gwcore/internal/reqctx"
	"github.com/vitaliisemenov/gwcore/internal/routestore"
)

// SkipLogger receives a PredicateError for every route dropped during a
// rebuild, so the caller can log it (spec §7: "logged, other routes
// remain usable"). It is optional; a nil logger just drops the errors.
type SkipLogger func(*gwerrors.PredicateError)

// Manager owns the currently-live Router and keeps it in sync with a
// routestore.Watcher: on every Match/Dispatch entry it compares the
// watcher's conf_version against the version the live Router was built
// from and triggers a single rebuild on mismatch, serialized by a
// mutex so concurrent readers never race to rebuild the same
// generation twice (spec §4.1 rebuild protocol).
type Manager struct {
	watcher routestore.Watcher
	onSkip  SkipLogger

	router atomic.Pointer[Router]

	rebuildMu sync.Mutex
}

// NewManager builds an initial Router from the watcher's current
// snapshot and returns a Manager ready to dispatch.
func NewManager(watcher routestore.Watcher, onSkip SkipLogger) *Manager {
	m := &Manager{watcher: watcher, onSkip: onSkip}
	m.rebuild(watcher.Current())
	return m
}

// Dispatch ensures the live Router matches the watcher's current
// conf_version, then dispatches ctx against it.
func (m *Manager) Dispatch(ctx *reqctx.Context) bool {
	return m.current().Dispatch(ctx)
}

// current returns the live Router, rebuilding first if the watcher has
// published a newer snapshot since the last build.
func (m *Manager) current() *Router {
	snap := m.watcher.Current()
	r := m.router.Load()
	if r != nil && r.BuildVersion() == snap.ConfVersion {
		return r
	}

	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	// Re-check: another goroutine may have already rebuilt while we were
	// waiting on the lock.
	r = m.router.Load()
	snap = m.watcher.Current()
	if r != nil && r.BuildVersion() == snap.ConfVersion {
		return r
	}

	m.rebuild(snap)
	return m.router.Load()
}

func (m *Manager) rebuild(snap *routestore.Snapshot) {
	result := Build(snap)
	if m.onSkip != nil {
		for _, skip := range result.Skipped {
			m.onSkip(skip)
		}
	}
	m.router.Store(result.Router)
}

// Stats returns the shape of the currently-live trie (does not itself
// trigger a rebuild check, for use by the admin surface without
// perturbing dispatch timing).
func (m *Manager) Stats() Stats {
	return m.router.Load().Stats()
}
