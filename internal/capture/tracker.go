// Package capture turns a page's live network events into stored records.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/netwatch/internal/config"
	"github.com/dgnsrekt/netwatch/internal/requests"
	"github.com/dgnsrekt/netwatch/internal/types"
)

const (
	// FailedStatus and FailedStatusText mark a request that never got a response.
	FailedStatus     = 0
	FailedStatusText = "FAILED"

	defaultFailureText = "Request failed"
	defaultBodyTimeout = 10 * time.Second
	defaultStaleAfter  = 5 * time.Minute
)

// Observer is notified after every change a tracker makes to its store.
// Observe must not block.
type Observer interface {
	Observe(types.CaptureEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(types.CaptureEvent)

func (f ObserverFunc) Observe(ev types.CaptureEvent) { f(ev) }

type requestState int

const (
	stateObserved requestState = iota
	stateCompleted
	stateFailed
)

func (s requestState) String() string {
	switch s {
	case stateObserved:
		return "observed"
	case stateCompleted:
		return "completed"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type inflight struct {
	recordID string
	state    requestState
	seen     time.Time
}

// TrackerConfig wires a tracker to its page and store.
type TrackerConfig struct {
	PageID    string
	ContextID string
	Page      Page
	Store     *requests.Store
	// Limits is copied at construction; later global changes are not observed.
	Limits      config.Limits
	BodyTimeout time.Duration
	StaleAfter  time.Duration
	Observers   []Observer
}

// Tracker captures one page's traffic into its context's store.
type Tracker struct {
	pageID      string
	contextID   string
	page        Page
	store       *requests.Store
	limits      config.Limits
	bodyTimeout time.Duration
	staleAfter  time.Duration
	observers   []Observer
	log         *slog.Logger

	mu          sync.Mutex
	inflight    map[string]*inflight
	disposed    bool
	unsubscribe func()

	done chan struct{}
	now  func() time.Time
}

// NewTracker subscribes to cfg.Page and registers with the store's monitors.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.BodyTimeout <= 0 {
		cfg.BodyTimeout = defaultBodyTimeout
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}

	t := &Tracker{
		pageID:      cfg.PageID,
		contextID:   cfg.ContextID,
		page:        cfg.Page,
		store:       cfg.Store,
		limits:      cfg.Limits,
		bodyTimeout: cfg.BodyTimeout,
		staleAfter:  cfg.StaleAfter,
		observers:   cfg.Observers,
		log:         slog.With("context_id", cfg.ContextID, "page_id", cfg.PageID),
		inflight:    make(map[string]*inflight),
		done:        make(chan struct{}),
		now:         time.Now,
	}

	t.store.RegisterPageMonitor(t.pageID, t)
	t.unsubscribe = t.page.Subscribe(Handlers{
		OnRequest:       t.onRequest,
		OnResponse:      t.onResponse,
		OnRequestFailed: t.onRequestFailed,
	})
	go t.cleanupLoop()
	return t
}

// PageID returns the identifier stamped on every record this tracker saves.
func (t *Tracker) PageID() string { return t.pageID }

// Limits returns the body limits this tracker was built with.
func (t *Tracker) Limits() config.Limits { return t.limits }

// Snapshot reports the page's current URL and title, best-effort.
func (t *Tracker) Snapshot() types.PageSnapshot {
	return types.PageSnapshot{
		PageID: t.pageID,
		URL:    bestEffort(t.log, "page_url", "", value(t.page.URL)),
		Title:  bestEffort(t.log, "page_title", "", value(t.page.Title)),
	}
}

// Pending returns how many requests are still waiting for a response or failure.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, f := range t.inflight {
		if f.state == stateObserved {
			n++
		}
	}
	return n
}

// Dispose detaches from the page and the store's monitors. Safe to call twice.
func (t *Tracker) Dispose() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	unsubscribe := t.unsubscribe
	t.inflight = make(map[string]*inflight)
	t.mu.Unlock()

	close(t.done)
	if unsubscribe != nil {
		func() {
			defer t.recoverHandler("unsubscribe")
			unsubscribe()
		}()
	}
	t.store.UnregisterPageMonitor(t.pageID)
	t.log.Debug("tracker disposed")
}

func (t *Tracker) onRequest(req Request) {
	defer t.recoverHandler("request")

	t.mu.Lock()
	disposed := t.disposed
	t.mu.Unlock()
	if disposed {
		return
	}

	rec := types.Record{
		PageID:              t.pageID,
		PageURL:             bestEffort(t.log, "page_url", "", value(t.page.URL)),
		PageTitle:           bestEffort(t.log, "page_title", "", value(t.page.Title)),
		URL:                 bestEffort(t.log, "url", "", value(req.URL)),
		Method:              bestEffort(t.log, "method", "", value(req.Method)),
		ResourceType:        strings.ToLower(bestEffort(t.log, "resource_type", "", value(req.ResourceType))),
		IsNavigationRequest: bestEffort(t.log, "is_navigation_request", false, value(req.IsNavigationRequest)),
		RequestHeaders:      cloneHeaders(bestEffort(t.log, "request_headers", nil, value(req.Headers))),
	}
	if frameURL := bestEffort(t.log, "frame_url", "", req.FrameURL); frameURL != "" {
		rec.FrameURL = &frameURL
	}

	body, hasBody := bestEffort(t.log, "request_body", postData{}, func() (postData, error) {
		text, ok := req.PostData()
		return postData{text: text, ok: ok}, nil
	}).unpack()
	if hasBody {
		b := applyLimit(body, t.limits.MaxRequestBodyBytes)
		rec.RequestBody = &b.text
		rec.RequestBodyTruncated = b.truncated
		rec.RequestBodyBytes = &b.bytes
		rec.RequestBodyOriginalBytes = &b.originalBytes
		rec.RequestBodySHA256 = b.sha256
	}

	key := bestEffort(t.log, "request_key", "", value(req.Key))
	if key == "" {
		t.log.Debug("request without key not captured", "request_url", rec.URL)
		return
	}

	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	saved := t.store.Save(rec)
	t.inflight[key] = &inflight{recordID: saved.ID, state: stateObserved, seen: t.now()}
	t.mu.Unlock()

	t.emit(types.EventRequest, saved)
}

func (t *Tracker) onResponse(res Response) {
	defer t.recoverHandler("response")

	req := bestEffort[Request](t.log, "response_request", nil, value(res.Request))
	if req == nil {
		return
	}
	key := bestEffort(t.log, "request_key", "", value(req.Key))
	recordID, ok := t.claim(key, stateCompleted)
	if !ok {
		return
	}
	defer t.forget(key)

	headers := cloneHeaders(bestEffort(t.log, "response_headers", nil, value(res.Headers)))
	patch := types.Patch{
		Status:          types.Ptr(bestEffort(t.log, "status", 0, value(res.Status))),
		StatusText:      types.Ptr(bestEffort(t.log, "status_text", "", value(res.StatusText))),
		ResponseHeaders: headers,
	}
	if ct, ok := headerValue(headers, "content-type"); ok {
		patch.ContentType = &ct
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.bodyTimeout)
	text, err := readBody(ctx, res)
	cancel()
	if err != nil {
		t.log.Debug("response body unavailable", "record_id", recordID, "error", err)
		patch.ResponseBodyError = types.Ptr(err.Error())
		patch.ResponseBodyBytes = types.Ptr(0)
		patch.ResponseBodyOriginalBytes = types.Ptr(0)
	} else {
		b := applyLimit(text, t.limits.MaxResponseBodyBytes)
		patch.ResponseBody = &b.text
		patch.ResponseBodyTruncated = &b.truncated
		patch.ResponseBodyBytes = &b.bytes
		patch.ResponseBodyOriginalBytes = &b.originalBytes
		if b.truncated {
			patch.ResponseBodySHA256 = &b.sha256
		}
	}

	if raw, err := bestEffortTiming(t.log, res); err == nil {
		patch.Timing, patch.DurationMs = normalizeTiming(raw)
	}

	t.update(types.EventResponse, recordID, patch)
}

func (t *Tracker) onRequestFailed(req Request) {
	defer t.recoverHandler("request_failed")

	key := bestEffort(t.log, "request_key", "", value(req.Key))
	recordID, ok := t.claim(key, stateFailed)
	if !ok {
		return
	}
	defer t.forget(key)

	msg := bestEffort(t.log, "failure_text", "", value(req.FailureText))
	if msg == "" {
		msg = defaultFailureText
	}
	t.update(types.EventFailed, recordID, types.Patch{
		Status:     types.Ptr(FailedStatus),
		StatusText: types.Ptr(FailedStatusText),
		Error:      &msg,
	})
}

// claim moves an observed request to a terminal state. Unknown keys and
// requests already completed or failed are rejected.
func (t *Tracker) claim(key string, to requestState) (string, bool) {
	if key == "" {
		return "", false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.inflight[key]
	if !ok || t.disposed {
		return "", false
	}
	if f.state != stateObserved {
		t.log.Debug("ignoring event for finished request", "record_id", f.recordID, "state", f.state.String(), "event", to.String())
		return "", false
	}
	f.state = to
	f.seen = t.now()
	return f.recordID, true
}

func (t *Tracker) forget(key string) {
	t.mu.Lock()
	delete(t.inflight, key)
	t.mu.Unlock()
}

// update writes patch unless the tracker was disposed while the body was read.
// Holding mu across the write keeps it ordered before a context reset.
func (t *Tracker) update(eventType, recordID string, patch types.Patch) {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	rec, ok := t.store.Update(recordID, patch)
	t.mu.Unlock()

	if !ok {
		t.log.Debug("record vanished before update", "record_id", recordID)
		return
	}
	t.emit(eventType, rec)
}

func (t *Tracker) emit(eventType string, rec types.Record) {
	ev := types.CaptureEvent{
		Type:      eventType,
		ContextID: t.contextID,
		PageID:    t.pageID,
		Record:    rec,
	}
	for _, o := range t.observers {
		func() {
			defer t.recoverHandler("observer")
			o.Observe(ev)
		}()
	}
}

func (t *Tracker) recoverHandler(event string) {
	if r := recover(); r != nil {
		t.log.Warn("capture handler recovered", "event", event, "error", fmt.Sprint(r))
	}
}

func (t *Tracker) cleanupLoop() {
	interval := time.Minute
	if t.staleAfter < interval {
		interval = t.staleAfter
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.cleanupStale()
		case <-t.done:
			return
		}
	}
}

// cleanupStale forgets requests that never finished. Their records stay in
// the store with an empty response.
func (t *Tracker) cleanupStale() int {
	threshold := t.now().Add(-t.staleAfter)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, f := range t.inflight {
		if f.state == stateObserved && f.seen.Before(threshold) {
			delete(t.inflight, key)
			removed++
		}
	}
	if removed > 0 {
		t.log.Debug("dropped stale in-flight requests", "count", removed)
	}
	return removed
}

type postData struct {
	text string
	ok   bool
}

func (p postData) unpack() (string, bool) { return p.text, p.ok }

func readBody(ctx context.Context, res Response) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read response body: %v", r)
		}
	}()
	return res.Text(ctx)
}

func bestEffortTiming(log *slog.Logger, res Response) (raw RawTiming, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read timing: %v", r)
		}
		if err != nil {
			log.Debug("capture field unavailable", "field", "timing", "error", err)
		}
	}()
	return res.Timing()
}

func headerValue(headers map[string]string, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

func cloneHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
