// Package session keeps one request store per browsing context and keeps
// page trackers in step with the context's page lifecycle.
package session

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/netwatch/internal/capture"
	"github.com/dgnsrekt/netwatch/internal/config"
	"github.com/dgnsrekt/netwatch/internal/requests"
	"github.com/dgnsrekt/netwatch/internal/types"
)

// BrowserContext is an isolated browsing session that reports its page
// lifecycle to registered listeners. Each On* call returns a func that
// removes the listener.
type BrowserContext interface {
	ID() string
	OnPage(func(capture.Page)) (cancel func())
	OnPageClosed(func(capture.Page)) (cancel func())
	OnClose(func()) (cancel func())
}

// Options tunes the trackers a Manager creates.
type Options struct {
	BodyTimeout time.Duration
	StaleAfter  time.Duration
	Observers   []capture.Observer
	// Limits returns the limits to snapshot into each new tracker.
	// Defaults to config.CurrentLimits.
	Limits func() config.Limits
}

// pageSeq numbers pages across every manager in the process.
var pageSeq atomic.Int64

func nextPageID() string {
	return "page-" + strconv.FormatInt(pageSeq.Add(1), 10)
}

type contextState struct {
	store    *requests.Store
	trackers map[string]*capture.Tracker
	cancels  []func()
}

// Manager owns the per-context stores and trackers.
type Manager struct {
	opts Options

	mu       sync.Mutex
	contexts map[string]*contextState
}

// NewManager creates a manager with no contexts.
func NewManager(opts Options) *Manager {
	if opts.Limits == nil {
		opts.Limits = config.CurrentLimits
	}
	return &Manager{
		opts:     opts,
		contexts: make(map[string]*contextState),
	}
}

func (m *Manager) stateLocked(contextID string) *contextState {
	st, ok := m.contexts[contextID]
	if !ok {
		st = &contextState{
			store:    requests.NewStore(),
			trackers: make(map[string]*capture.Tracker),
		}
		m.contexts[contextID] = st
	}
	return st
}

// AttachPage starts tracking page under bc. Attaching a tracked page again
// returns the existing tracker.
func (m *Manager) AttachPage(bc BrowserContext, page capture.Page) *capture.Tracker {
	contextID := bc.ID()

	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.stateLocked(contextID)
	if tr, ok := st.trackers[page.ID()]; ok {
		return tr
	}

	tr := capture.NewTracker(capture.TrackerConfig{
		PageID:      nextPageID(),
		ContextID:   contextID,
		Page:        page,
		Store:       st.store,
		Limits:      m.opts.Limits(),
		BodyTimeout: m.opts.BodyTimeout,
		StaleAfter:  m.opts.StaleAfter,
		Observers:   m.opts.Observers,
	})
	st.trackers[page.ID()] = tr
	slog.Info("page attached", "context_id", contextID, "page_id", tr.PageID(), "target_id", page.ID())
	return tr
}

// DetachPage stops tracking page. Unknown contexts and pages are ignored.
func (m *Manager) DetachPage(bc BrowserContext, page capture.Page) {
	m.mu.Lock()
	st, ok := m.contexts[bc.ID()]
	if !ok {
		m.mu.Unlock()
		return
	}
	tr, ok := st.trackers[page.ID()]
	if ok {
		delete(st.trackers, page.ID())
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	tr.Dispose()
	slog.Info("page detached", "context_id", bc.ID(), "page_id", tr.PageID())
}

// ResetContext disposes every tracker of bc, empties its store and forgets it.
func (m *Manager) ResetContext(bc BrowserContext) {
	m.ResetContextByID(bc.ID())
}

// ResetContextByID is ResetContext for callers that only hold the id.
// It reports whether the context was known.
func (m *Manager) ResetContextByID(contextID string) bool {
	m.mu.Lock()
	st, ok := m.contexts[contextID]
	if ok {
		delete(m.contexts, contextID)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	for _, cancel := range st.cancels {
		cancel()
	}
	for _, tr := range st.trackers {
		tr.Dispose()
	}
	st.store.Reset()
	slog.Info("context reset", "context_id", contextID, "pages", len(st.trackers))
	return true
}

// TrackedPages returns a best-effort snapshot of every page tracked under bc.
func (m *Manager) TrackedPages(bc BrowserContext) []types.PageSnapshot {
	pages, _ := m.TrackedPagesByID(bc.ID())
	return pages
}

// TrackedPagesByID is TrackedPages keyed by context id.
func (m *Manager) TrackedPagesByID(contextID string) ([]types.PageSnapshot, bool) {
	m.mu.Lock()
	st, ok := m.contexts[contextID]
	if !ok {
		m.mu.Unlock()
		return nil, false
	}
	trackers := make([]*capture.Tracker, 0, len(st.trackers))
	for _, tr := range st.trackers {
		trackers = append(trackers, tr)
	}
	m.mu.Unlock()

	out := make([]types.PageSnapshot, 0, len(trackers))
	for _, tr := range trackers {
		out = append(out, tr.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return pageNum(out[i].PageID) < pageNum(out[j].PageID) })
	return out, true
}

// Store returns the request store of bc, creating the context state if needed.
func (m *Manager) Store(bc BrowserContext) *requests.Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked(bc.ID()).store
}

// StoreByID returns the store of a known context.
func (m *Manager) StoreByID(contextID string) (*requests.Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.contexts[contextID]
	if !ok {
		return nil, false
	}
	return st.store, true
}

// ContextIDs lists known contexts in sorted order.
func (m *Manager) ContextIDs() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.contexts))
	for id := range m.contexts {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Watch registers listeners on bc so pages are attached when created,
// detached when closed and the context is reset when it closes. Pages that
// already exist must be attached by the caller.
func (m *Manager) Watch(bc BrowserContext) {
	cancels := []func(){
		bc.OnPage(func(p capture.Page) { m.AttachPage(bc, p) }),
		bc.OnPageClosed(func(p capture.Page) { m.DetachPage(bc, p) }),
		bc.OnClose(func() { m.ResetContext(bc) }),
	}

	m.mu.Lock()
	st := m.stateLocked(bc.ID())
	st.cancels = append(st.cancels, cancels...)
	m.mu.Unlock()
}

// Close resets every context.
func (m *Manager) Close() {
	for _, id := range m.ContextIDs() {
		m.ResetContextByID(id)
	}
}

func pageNum(pageID string) int64 {
	n, err := strconv.ParseInt(strings.TrimPrefix(pageID, "page-"), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
