package session

import (
	"strings"
	"sync"
	"testing"

	"github.com/dgnsrekt/netwatch/internal/capture"
	"github.com/dgnsrekt/netwatch/internal/config"
	"github.com/dgnsrekt/netwatch/internal/types"
)

type fakePage struct {
	id  string
	url string

	mu       sync.Mutex
	handlers *capture.Handlers
}

func (p *fakePage) ID() string    { return p.id }
func (p *fakePage) URL() string   { return p.url }
func (p *fakePage) Title() string { return strings.ToUpper(p.id) }

func (p *fakePage) Subscribe(h capture.Handlers) func() {
	p.mu.Lock()
	p.handlers = &h
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.handlers = nil
		p.mu.Unlock()
	}
}

func (p *fakePage) subscribed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handlers != nil
}

func (p *fakePage) request(key, url string) {
	p.mu.Lock()
	h := p.handlers
	p.mu.Unlock()
	if h != nil {
		h.OnRequest(&fakeRequest{key: key, url: url})
	}
}

type fakeRequest struct{ key, url string }

func (r *fakeRequest) Key() string                { return r.key }
func (r *fakeRequest) URL() string                { return r.url }
func (r *fakeRequest) Method() string             { return "GET" }
func (r *fakeRequest) ResourceType() string       { return "document" }
func (r *fakeRequest) IsNavigationRequest() bool  { return false }
func (r *fakeRequest) FrameURL() (string, error)  { return "", nil }
func (r *fakeRequest) Headers() map[string]string { return nil }
func (r *fakeRequest) PostData() (string, bool)   { return "", false }
func (r *fakeRequest) FailureText() string        { return "" }

type fakeContext struct {
	id string

	mu       sync.Mutex
	onPage   []func(capture.Page)
	onClosed []func(capture.Page)
	onClose  []func()
}

func (c *fakeContext) ID() string { return c.id }

func (c *fakeContext) OnPage(fn func(capture.Page)) func() {
	c.mu.Lock()
	c.onPage = append(c.onPage, fn)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.onPage = nil
		c.mu.Unlock()
	}
}

func (c *fakeContext) OnPageClosed(fn func(capture.Page)) func() {
	c.mu.Lock()
	c.onClosed = append(c.onClosed, fn)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.onClosed = nil
		c.mu.Unlock()
	}
}

func (c *fakeContext) OnClose(fn func()) func() {
	c.mu.Lock()
	c.onClose = append(c.onClose, fn)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.onClose = nil
		c.mu.Unlock()
	}
}

func (c *fakeContext) openPage(p capture.Page) {
	c.mu.Lock()
	fns := append([]func(capture.Page){}, c.onPage...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

func (c *fakeContext) closePage(p capture.Page) {
	c.mu.Lock()
	fns := append([]func(capture.Page){}, c.onClosed...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

func (c *fakeContext) close() {
	c.mu.Lock()
	fns := append([]func(){}, c.onClose...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *fakeContext) listeners() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.onPage) + len(c.onClosed) + len(c.onClose)
}

func newTestManager() *Manager {
	return NewManager(Options{Limits: config.DefaultLimits})
}

func TestAttachPageIsIdempotent(t *testing.T) {
	m := newTestManager()
	t.Cleanup(m.Close)
	bc := &fakeContext{id: "ctx-a"}
	page := &fakePage{id: "target-1", url: "https://a.test/"}

	first := m.AttachPage(bc, page)
	second := m.AttachPage(bc, page)
	if first != second {
		t.Fatalf("AttachPage() returned a new tracker for the same page")
	}
	if !strings.HasPrefix(first.PageID(), "page-") {
		t.Fatalf("PageID() = %q; want page-N", first.PageID())
	}
	if got := len(m.TrackedPages(bc)); got != 1 {
		t.Fatalf("TrackedPages() len = %d; want 1", got)
	}
	if st := m.Store(bc).Stats(); st.ActiveMonitors != 1 {
		t.Fatalf("ActiveMonitors = %d; want 1", st.ActiveMonitors)
	}
}

func TestPageIDsAreProcessWide(t *testing.T) {
	m1, m2 := newTestManager(), newTestManager()
	t.Cleanup(m1.Close)
	t.Cleanup(m2.Close)

	a := m1.AttachPage(&fakeContext{id: "ctx-a"}, &fakePage{id: "t"})
	b := m2.AttachPage(&fakeContext{id: "ctx-a"}, &fakePage{id: "t"})
	if a.PageID() == b.PageID() {
		t.Fatalf("two managers issued the same page id %q", a.PageID())
	}
	if pageNum(b.PageID()) <= pageNum(a.PageID()) {
		t.Fatalf("page ids not monotonic: %q then %q", a.PageID(), b.PageID())
	}
}

func TestDetachPage(t *testing.T) {
	m := newTestManager()
	t.Cleanup(m.Close)
	bc := &fakeContext{id: "ctx-a"}
	page := &fakePage{id: "target-1"}

	m.AttachPage(bc, page)
	m.DetachPage(bc, page)
	m.DetachPage(bc, page)
	m.DetachPage(&fakeContext{id: "unknown"}, page)

	if page.subscribed() {
		t.Fatalf("page still subscribed after detach")
	}
	if got := len(m.TrackedPages(bc)); got != 0 {
		t.Fatalf("TrackedPages() len = %d; want 0", got)
	}
	if st := m.Store(bc).Stats(); st.ActiveMonitors != 0 {
		t.Fatalf("ActiveMonitors = %d; want 0", st.ActiveMonitors)
	}
}

func TestResetContextIsolation(t *testing.T) {
	m := newTestManager()
	t.Cleanup(m.Close)
	a := &fakeContext{id: "ctx-a"}
	b := &fakeContext{id: "ctx-b"}
	pa := &fakePage{id: "pa"}
	pb := &fakePage{id: "pb"}

	m.AttachPage(a, pa)
	m.AttachPage(b, pb)
	pa.request("1", "https://a.test/1")
	pa.request("2", "https://a.test/2")
	pb.request("1", "https://b.test/1")

	storeA := m.Store(a)
	m.ResetContext(a)

	if st := storeA.Stats(); st.Total != 0 {
		t.Fatalf("reset store Total = %d; want 0", st.Total)
	}
	if pa.subscribed() {
		t.Fatalf("page of reset context still subscribed")
	}
	if st := m.Store(b).Stats(); st.Total != 1 {
		t.Fatalf("other context Total = %d; want 1", st.Total)
	}
	if _, ok := m.StoreByID("ctx-a"); ok {
		t.Fatalf("StoreByID(ctx-a) still known after reset")
	}
	if m.ResetContextByID("ctx-a") {
		t.Fatalf("ResetContextByID(ctx-a) = true for forgotten context")
	}
}

func TestStoresArePerContext(t *testing.T) {
	m := newTestManager()
	t.Cleanup(m.Close)
	a := &fakeContext{id: "ctx-a"}
	b := &fakeContext{id: "ctx-b"}
	pa := &fakePage{id: "pa"}
	pb := &fakePage{id: "pb"}
	m.AttachPage(a, pa)
	m.AttachPage(b, pb)

	pa.request("1", "https://a.test/")
	pb.request("1", "https://b.test/")

	ra := m.Store(a).Query(types.Query{})
	rb := m.Store(b).Query(types.Query{})
	if ra.Total != 1 || rb.Total != 1 {
		t.Fatalf("totals = %d %d; want 1 1", ra.Total, rb.Total)
	}
	if ra.Results[0].ID != "req-1" || rb.Results[0].ID != "req-1" {
		t.Fatalf("ids = %q %q; want per-store numbering", ra.Results[0].ID, rb.Results[0].ID)
	}
	if ids := m.ContextIDs(); len(ids) != 2 || ids[0] != "ctx-a" || ids[1] != "ctx-b" {
		t.Fatalf("ContextIDs() = %v; want [ctx-a ctx-b]", ids)
	}
}

func TestWatch(t *testing.T) {
	m := newTestManager()
	t.Cleanup(m.Close)
	bc := &fakeContext{id: "ctx-w"}
	m.Watch(bc)

	page := &fakePage{id: "w1", url: "https://w.test/"}
	bc.openPage(page)
	pages, ok := m.TrackedPagesByID("ctx-w")
	if !ok || len(pages) != 1 || pages[0].URL != "https://w.test/" || pages[0].Title != "W1" {
		t.Fatalf("TrackedPagesByID() = %+v, %v; want one snapshot", pages, ok)
	}

	page.request("1", "https://w.test/api")
	bc.closePage(page)
	if page.subscribed() {
		t.Fatalf("page still subscribed after close")
	}
	if st := m.Store(bc).Stats(); st.Total != 1 {
		t.Fatalf("records dropped on page close: Total = %d", st.Total)
	}

	store := m.Store(bc)
	bc.close()
	if store.Len() != 0 {
		t.Fatalf("store.Len() after context close = %d; want 0", store.Len())
	}
	if bc.listeners() != 0 {
		t.Fatalf("listeners after close = %d; want 0", bc.listeners())
	}
}

func TestAttachUsesLimitsAtConstruction(t *testing.T) {
	current := config.Limits{MaxRequestBodyBytes: 1024, MaxResponseBodyBytes: 2048}
	m := NewManager(Options{Limits: func() config.Limits { return current }})
	t.Cleanup(m.Close)
	bc := &fakeContext{id: "ctx-l"}

	first := m.AttachPage(bc, &fakePage{id: "1"})
	current = config.Limits{MaxRequestBodyBytes: 4096, MaxResponseBodyBytes: 4096}
	second := m.AttachPage(bc, &fakePage{id: "2"})

	if first.Limits().MaxRequestBodyBytes != 1024 {
		t.Fatalf("first tracker limit = %d; want 1024", first.Limits().MaxRequestBodyBytes)
	}
	if second.Limits().MaxRequestBodyBytes != 4096 {
		t.Fatalf("second tracker limit = %d; want 4096", second.Limits().MaxRequestBodyBytes)
	}
}
