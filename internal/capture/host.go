package capture

import "context"

// Page is a live browser page whose traffic can be observed.
type Page interface {
	// ID is stable for the page's lifetime and unique within its context.
	ID() string
	URL() string
	Title() string
	// Subscribe attaches h and returns a func that detaches it.
	Subscribe(h Handlers) (unsubscribe func())
}

// Request is the host's view of one outgoing request. Key must stay the same
// for every event of the request, including its response and failure.
type Request interface {
	Key() string
	URL() string
	Method() string
	ResourceType() string
	IsNavigationRequest() bool
	FrameURL() (string, error)
	Headers() map[string]string
	PostData() (string, bool)
	FailureText() string
}

// Response is the host's view of a received response.
type Response interface {
	Request() Request
	Status() int
	StatusText() string
	Headers() map[string]string
	Text(ctx context.Context) (string, error)
	Timing() (RawTiming, error)
}

// Handlers receives a page's traffic events. Hosts deliver OnRequest for a
// request before its OnResponse or OnRequestFailed. OnResponse may block on
// the body read, so hosts call it off their event loop.
type Handlers struct {
	OnRequest       func(Request)
	OnResponse      func(Response)
	OnRequestFailed func(Request)
}
