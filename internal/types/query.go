package types

// Query selects records from a store. Zero values mean "not filtered".
type Query struct {
	PageID string `json:"page_id,omitempty"`
	// URLPattern matches the whole URL; '*' matches any substring.
	URLPattern   string `json:"url_pattern,omitempty"`
	Method       string `json:"method,omitempty"`
	Status       *int   `json:"status,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	// Since is either epoch milliseconds or an RFC 3339 date-time.
	Since  string `json:"since,omitempty"`
	Search string `json:"search,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// QueryResult reports the filtered total before Limit is applied.
type QueryResult struct {
	Total   int      `json:"total"`
	Results []Record `json:"results"`
}

// Stats aggregates a store's contents.
type Stats struct {
	Total          int                  `json:"total"`
	ByMethod       map[string]int       `json:"by_method"`
	ByStatus       map[string]int       `json:"by_status"`
	ByResourceType map[string]int       `json:"by_resource_type"`
	ByPage         map[string]PageStats `json:"by_page"`
	ActiveMonitors int                  `json:"active_monitors"`
	Usage          Usage                `json:"usage"`
}

// PageStats is the per-page slice of Stats.
type PageStats struct {
	Count int    `json:"count"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Usage estimates body payload memory. Header and metadata overhead is not counted.
type Usage struct {
	RequestBytes          int64 `json:"request_bytes"`
	RequestOriginalBytes  int64 `json:"request_original_bytes"`
	ResponseBytes         int64 `json:"response_bytes"`
	ResponseOriginalBytes int64 `json:"response_original_bytes"`
	RequestTruncated      int   `json:"request_truncated"`
	ResponseTruncated     int   `json:"response_truncated"`
	EstimatedMemoryBytes  int64 `json:"estimated_memory_bytes"`

	MaxRequestBodyBytes  int `json:"max_request_body_bytes"`
	MaxResponseBodyBytes int `json:"max_response_body_bytes"`
}
