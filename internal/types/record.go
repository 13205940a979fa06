package types

// Record is one captured request and, once it arrives, its response or failure.
// Nullable facets are pointers so an in-flight request serializes them as null.
type Record struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`

	PageID    string `json:"page_id"`
	PageURL   string `json:"page_url"`
	PageTitle string `json:"page_title"`

	URL                      string            `json:"url"`
	Method                   string            `json:"method"`
	ResourceType             string            `json:"resource_type"`
	IsNavigationRequest      bool              `json:"is_navigation_request"`
	FrameURL                 *string           `json:"frame_url"`
	RequestHeaders           map[string]string `json:"request_headers"`
	RequestBody              *string           `json:"request_body"`
	RequestBodyTruncated     bool              `json:"request_body_truncated"`
	RequestBodyBytes         *int              `json:"request_body_bytes"`
	RequestBodyOriginalBytes *int              `json:"request_body_original_bytes"`
	RequestBodySHA256        string            `json:"request_body_sha256,omitempty"`

	Status                    *int              `json:"status"`
	StatusText                *string           `json:"status_text"`
	ResponseHeaders           map[string]string `json:"response_headers"`
	ResponseBody              *string           `json:"response_body"`
	ResponseBodyTruncated     bool              `json:"response_body_truncated"`
	ResponseBodyError         *string           `json:"response_body_error"`
	ResponseBodyBytes         *int              `json:"response_body_bytes"`
	ResponseBodyOriginalBytes *int              `json:"response_body_original_bytes"`
	ResponseBodySHA256        string            `json:"response_body_sha256,omitempty"`
	ContentType               *string           `json:"content_type"`
	Timing                    *Timing           `json:"timing"`
	DurationMs                *float64          `json:"duration_ms"`

	Error *string `json:"error"`
}

// Timing holds phase offsets in milliseconds relative to StartTime.
// A nil phase was not reported by the browser.
type Timing struct {
	StartTime             float64  `json:"start_time"`
	DomainLookupStart     *float64 `json:"domain_lookup_start"`
	DomainLookupEnd       *float64 `json:"domain_lookup_end"`
	ConnectStart          *float64 `json:"connect_start"`
	SecureConnectionStart *float64 `json:"secure_connection_start"`
	ConnectEnd            *float64 `json:"connect_end"`
	RequestStart          *float64 `json:"request_start"`
	ResponseStart         *float64 `json:"response_start"`
	ResponseEnd           *float64 `json:"response_end"`
}

// Patch carries a partial update. Only non-nil fields are applied.
type Patch struct {
	PageURL   *string
	PageTitle *string

	Status                    *int
	StatusText                *string
	ResponseHeaders           map[string]string
	ResponseBody              *string
	ResponseBodyTruncated     *bool
	ResponseBodyError         *string
	ResponseBodyBytes         *int
	ResponseBodyOriginalBytes *int
	ResponseBodySHA256        *string
	ContentType               *string
	Timing                    *Timing
	DurationMs                *float64

	Error *string
}

// Clone returns a copy that shares no mutable state with r.
func (r *Record) Clone() Record {
	out := *r
	out.FrameURL = clonePtr(r.FrameURL)
	out.RequestHeaders = cloneHeaders(r.RequestHeaders)
	out.RequestBody = clonePtr(r.RequestBody)
	out.RequestBodyBytes = clonePtr(r.RequestBodyBytes)
	out.RequestBodyOriginalBytes = clonePtr(r.RequestBodyOriginalBytes)

	out.Status = clonePtr(r.Status)
	out.StatusText = clonePtr(r.StatusText)
	out.ResponseHeaders = cloneHeaders(r.ResponseHeaders)
	out.ResponseBody = clonePtr(r.ResponseBody)
	out.ResponseBodyError = clonePtr(r.ResponseBodyError)
	out.ResponseBodyBytes = clonePtr(r.ResponseBodyBytes)
	out.ResponseBodyOriginalBytes = clonePtr(r.ResponseBodyOriginalBytes)
	out.ContentType = clonePtr(r.ContentType)
	out.DurationMs = clonePtr(r.DurationMs)
	out.Error = clonePtr(r.Error)

	if r.Timing != nil {
		t := r.Timing.Clone()
		out.Timing = &t
	}
	return out
}

// Clone returns a copy of t with its own phase values.
func (t *Timing) Clone() Timing {
	out := *t
	out.DomainLookupStart = clonePtr(t.DomainLookupStart)
	out.DomainLookupEnd = clonePtr(t.DomainLookupEnd)
	out.ConnectStart = clonePtr(t.ConnectStart)
	out.SecureConnectionStart = clonePtr(t.SecureConnectionStart)
	out.ConnectEnd = clonePtr(t.ConnectEnd)
	out.RequestStart = clonePtr(t.RequestStart)
	out.ResponseStart = clonePtr(t.ResponseStart)
	out.ResponseEnd = clonePtr(t.ResponseEnd)
	return out
}

func cloneHeaders(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
