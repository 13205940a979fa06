package types

// PageSnapshot is a best-effort view of a tracked page for reporting.
type PageSnapshot struct {
	PageID string `json:"page_id"`
	URL    string `json:"url"`
	Title  string `json:"title"`
}

// ContextInfo summarizes one browsing context and what it has captured.
type ContextInfo struct {
	ID       string         `json:"id"`
	Pages    []PageSnapshot `json:"pages"`
	Requests int            `json:"requests"`
}

// CaptureEvent is emitted for every change the capture pipeline makes to a store.
type CaptureEvent struct {
	Type      string `json:"type"`
	ContextID string `json:"context_id"`
	PageID    string `json:"page_id"`
	Record    Record `json:"record"`
}

const (
	EventRequest  = "request"
	EventResponse = "response"
	EventFailed   = "failed"
)
