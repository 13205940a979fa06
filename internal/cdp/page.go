package cdp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/netwatch/internal/capture"
)

// inflightRequest follows one RequestID across its redirect hops.
type inflightRequest struct {
	hop      int
	current  *request
	response *network.Response
}

// tabPage is an attached page target. It implements capture.Page and turns
// the target's Network events into capture.Handlers calls.
type tabPage struct {
	id       target.ID
	ctx      context.Context
	cancel   context.CancelFunc
	registry *TabRegistry

	handlers listeners[capture.Handlers]

	mu       sync.Mutex
	requests map[network.RequestID]*inflightRequest
	frames   map[string]string

	now func() time.Time
	// dispatch runs OnResponse handlers, which may block on the body read.
	dispatch func(func())
}

func newTabPage(ctx context.Context, cancel context.CancelFunc, id target.ID, registry *TabRegistry) *tabPage {
	return &tabPage{
		id:       id,
		ctx:      ctx,
		cancel:   cancel,
		registry: registry,
		requests: make(map[network.RequestID]*inflightRequest),
		frames:   make(map[string]string),
		now:      time.Now,
		dispatch: func(fn func()) { go fn() },
	}
}

func (p *tabPage) ID() string { return string(p.id) }

func (p *tabPage) URL() string {
	if info, ok := p.registry.Get(p.id); ok {
		return info.URL
	}
	return ""
}

func (p *tabPage) Title() string {
	if info, ok := p.registry.Get(p.id); ok {
		return info.Title
	}
	return ""
}

func (p *tabPage) Subscribe(h capture.Handlers) func() {
	return p.handlers.add(h)
}

func (p *tabPage) frameURL(frameID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	url, ok := p.frames[frameID]
	return url, ok
}

// onEvent is the chromedp target listener. It must not block.
func (p *tabPage) onEvent(ev any) {
	switch e := ev.(type) {
	case *page.EventFrameNavigated:
		p.mu.Lock()
		p.frames[string(e.Frame.ID)] = e.Frame.URL + e.Frame.URLFragment
		p.mu.Unlock()
		if e.Frame.ParentID == "" {
			p.registry.SetURL(p.id, e.Frame.URL)
		}
	case *page.EventNavigatedWithinDocument:
		p.mu.Lock()
		p.frames[string(e.FrameID)] = e.URL
		p.mu.Unlock()
	case *network.EventRequestWillBeSent:
		p.onRequestWillBeSent(e)
	case *network.EventResponseReceived:
		p.mu.Lock()
		if inf, ok := p.requests[e.RequestID]; ok {
			inf.response = e.Response
		}
		p.mu.Unlock()
	case *network.EventLoadingFinished:
		p.onLoadingFinished(e)
	case *network.EventLoadingFailed:
		p.onLoadingFailed(e)
	}
}

func (p *tabPage) onRequestWillBeSent(e *network.EventRequestWillBeSent) {
	p.mu.Lock()
	inf, ok := p.requests[e.RequestID]
	var redirected *response
	if ok && e.RedirectResponse != nil {
		redirected = &response{req: inf.current, res: e.RedirectResponse, finished: p.now(), redirect: true}
		inf.hop++
	} else {
		inf = &inflightRequest{}
		p.requests[e.RequestID] = inf
	}
	inf.current = newRequest(p, e, inf.hop)
	inf.response = nil
	req := inf.current
	p.mu.Unlock()

	if redirected != nil {
		p.emitResponse(redirected)
	}
	for _, h := range p.handlers.snapshot() {
		if h.OnRequest != nil {
			h.OnRequest(req)
		}
	}
}

func (p *tabPage) onLoadingFinished(e *network.EventLoadingFinished) {
	p.mu.Lock()
	inf, ok := p.requests[e.RequestID]
	delete(p.requests, e.RequestID)
	p.mu.Unlock()

	if !ok || inf.response == nil {
		return
	}
	p.emitResponse(&response{req: inf.current, res: inf.response, finished: p.now()})
}

func (p *tabPage) onLoadingFailed(e *network.EventLoadingFailed) {
	p.mu.Lock()
	inf, ok := p.requests[e.RequestID]
	delete(p.requests, e.RequestID)
	p.mu.Unlock()

	if !ok {
		return
	}
	req := inf.current
	req.failure = e.ErrorText
	if e.BlockedReason != "" {
		req.failure = e.ErrorText + " (blocked: " + string(e.BlockedReason) + ")"
	}
	for _, h := range p.handlers.snapshot() {
		if h.OnRequestFailed != nil {
			h.OnRequestFailed(req)
		}
	}
}

func (p *tabPage) emitResponse(res *response) {
	for _, h := range p.handlers.snapshot() {
		if h.OnResponse == nil {
			continue
		}
		fn := h.OnResponse
		p.dispatch(func() { fn(res) })
	}
}

// close releases the chromedp context of a target that no longer exists.
func (p *tabPage) close() {
	p.mu.Lock()
	pending := len(p.requests)
	p.requests = make(map[network.RequestID]*inflightRequest)
	p.mu.Unlock()
	if pending > 0 {
		slog.Debug("page closed with requests in flight", "target_id", p.id, "count", pending)
	}
	if p.cancel != nil {
		p.cancel()
	}
}
