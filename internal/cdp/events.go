package cdp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/netwatch/internal/capture"
)

var errNoTiming = errors.New("timing not reported for this response")

// request adapts one hop of a CDP request to capture.Request. A redirect
// starts a new hop with the same RequestID.
type request struct {
	tab  *tabPage
	id   network.RequestID
	hop  int
	req  *network.Request
	kind network.ResourceType
	nav  bool
	// frame is the owning frame's ID.
	frame   string
	started time.Time

	failure string
}

func newRequest(tab *tabPage, ev *network.EventRequestWillBeSent, hop int) *request {
	r := &request{
		tab:   tab,
		id:    ev.RequestID,
		hop:   hop,
		req:   ev.Request,
		kind:  ev.Type,
		nav:   ev.Type == network.ResourceTypeDocument && string(ev.RequestID) == string(ev.LoaderID),
		frame: string(ev.FrameID),
	}
	if ev.WallTime != nil {
		r.started = ev.WallTime.Time()
	}
	return r
}

func (r *request) Key() string {
	return string(r.id) + "#" + strconv.Itoa(r.hop)
}

func (r *request) URL() string {
	return r.req.URL + r.req.URLFragment
}

func (r *request) Method() string            { return r.req.Method }
func (r *request) ResourceType() string      { return string(r.kind) }
func (r *request) IsNavigationRequest() bool { return r.nav }

func (r *request) FrameURL() (string, error) {
	if r.frame == "" {
		return "", errors.New("request has no frame")
	}
	url, ok := r.tab.frameURL(r.frame)
	if !ok {
		return "", fmt.Errorf("frame %s not seen", r.frame)
	}
	return url, nil
}

func (r *request) Headers() map[string]string {
	return headerMapToStringMap(r.req.Headers)
}

// PostData decodes the inline post data entries. Bodies too large for CDP to
// inline are reported as absent.
func (r *request) PostData() (string, bool) {
	if !r.req.HasPostData || len(r.req.PostDataEntries) == 0 {
		return "", false
	}
	var decodedParts []byte
	for _, entry := range r.req.PostDataEntries {
		if entry.Bytes == "" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(entry.Bytes)
		if err != nil {
			decodedParts = append(decodedParts, []byte(entry.Bytes)...)
		} else {
			decodedParts = append(decodedParts, decoded...)
		}
	}
	return string(decodedParts), true
}

func (r *request) FailureText() string { return r.failure }

// response adapts a CDP response, finished either by loadingFinished or by a
// redirect to the next hop.
type response struct {
	req      *request
	res      *network.Response
	finished time.Time
	// redirect responses have no retrievable body.
	redirect bool
}

func (r *response) Request() capture.Request { return r.req }
func (r *response) Status() int              { return int(r.res.Status) }
func (r *response) StatusText() string       { return r.res.StatusText }

func (r *response) Headers() map[string]string {
	return headerMapToStringMap(r.res.Headers)
}

// Text fetches the body with Network.getResponseBody on the owning tab.
func (r *response) Text(ctx context.Context) (string, error) {
	if r.redirect {
		return "", errors.New("redirect responses have no body")
	}

	// Derived from the tab context so the command runs on the tab's session.
	// Cancelling it ends this call only; the tab stays open.
	bodyCtx, cancel := context.WithCancel(r.req.tab.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var body []byte
	err := chromedp.Run(bodyCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(r.req.id).Do(ctx)
		return err
	}))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("get response body: %w", ctxErr)
		}
		return "", fmt.Errorf("get response body: %w", err)
	}
	return string(body), nil
}

// Timing converts CDP ResourceTiming. Phase values are already milliseconds
// relative to requestTime and use -1 for phases that did not happen.
func (r *response) Timing() (capture.RawTiming, error) {
	t := r.res.Timing
	if t == nil {
		return capture.RawTiming{}, errNoTiming
	}

	raw := capture.RawTiming{
		DomainLookupStart:     t.DNSStart,
		DomainLookupEnd:       t.DNSEnd,
		ConnectStart:          t.ConnectStart,
		SecureConnectionStart: t.SslStart,
		ConnectEnd:            t.ConnectEnd,
		RequestStart:          t.SendStart,
		ResponseStart:         t.ReceiveHeadersEnd,
		ResponseEnd:           capture.Unavailable,
	}
	if !r.req.started.IsZero() {
		raw.StartTime = float64(r.req.started.UnixNano()) / float64(time.Millisecond)
		if !r.finished.IsZero() {
			if end := float64(r.finished.Sub(r.req.started)) / float64(time.Millisecond); end >= 0 {
				raw.ResponseEnd = end
			}
		}
	}
	return raw, nil
}

func headerMapToStringMap(headers map[string]any) map[string]string {
	result := make(map[string]string, len(headers))
	for k, v := range headers {
		switch s := v.(type) {
		case string:
			result[k] = s
		case nil:
		default:
			result[k] = fmt.Sprint(s)
		}
	}
	return result
}
