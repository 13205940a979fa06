package capture

import (
	"context"
	"errors"
	"sync"
)

type fakePage struct {
	id    string
	url   string
	title string

	mu           sync.Mutex
	handlers     *Handlers
	unsubscribed int
	panicTitle   bool
}

func newFakePage(id string) *fakePage {
	return &fakePage{id: id, url: "https://example.test/" + id, title: "Page " + id}
}

func (p *fakePage) ID() string  { return p.id }
func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Title() string {
	if p.panicTitle {
		panic("page closed")
	}
	return p.title
}

func (p *fakePage) Subscribe(h Handlers) func() {
	p.mu.Lock()
	p.handlers = &h
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.handlers = nil
		p.unsubscribed++
		p.mu.Unlock()
	}
}

func (p *fakePage) current() *Handlers {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handlers
}

func (p *fakePage) request(r Request) {
	if h := p.current(); h != nil {
		h.OnRequest(r)
	}
}

func (p *fakePage) respond(r Response) {
	if h := p.current(); h != nil {
		h.OnResponse(r)
	}
}

func (p *fakePage) fail(r Request) {
	if h := p.current(); h != nil {
		h.OnRequestFailed(r)
	}
}

type fakeRequest struct {
	key          string
	url          string
	method       string
	resourceType string
	navigation   bool
	frameURL     string
	frameErr     error
	headers      map[string]string
	postData     *string
	failure      string
	panicMethod  bool
}

func (r *fakeRequest) Key() string  { return r.key }
func (r *fakeRequest) URL() string  { return r.url }
func (r *fakeRequest) Method() string {
	if r.panicMethod {
		panic("target detached")
	}
	return r.method
}
func (r *fakeRequest) ResourceType() string       { return r.resourceType }
func (r *fakeRequest) IsNavigationRequest() bool  { return r.navigation }
func (r *fakeRequest) FrameURL() (string, error)  { return r.frameURL, r.frameErr }
func (r *fakeRequest) Headers() map[string]string { return r.headers }
func (r *fakeRequest) FailureText() string        { return r.failure }

func (r *fakeRequest) PostData() (string, bool) {
	if r.postData == nil {
		return "", false
	}
	return *r.postData, true
}

type fakeResponse struct {
	req        Request
	status     int
	statusText string
	headers    map[string]string
	body       string
	bodyErr    error
	timing     *RawTiming
	// block, when set, is waited on before the body is returned.
	block chan struct{}
}

func (r *fakeResponse) Request() Request           { return r.req }
func (r *fakeResponse) Status() int                { return r.status }
func (r *fakeResponse) StatusText() string         { return r.statusText }
func (r *fakeResponse) Headers() map[string]string { return r.headers }

func (r *fakeResponse) Text(ctx context.Context) (string, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.body, r.bodyErr
}

func (r *fakeResponse) Timing() (RawTiming, error) {
	if r.timing == nil {
		return RawTiming{}, errors.New("timing not available")
	}
	return *r.timing, nil
}
