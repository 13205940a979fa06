package types

// TabInfo holds CDP target metadata for a tracked page.
type TabInfo struct {
	TargetID         string `json:"target_id"`
	BrowserContextID string `json:"browser_context_id"`
	URL              string `json:"url"`
	Title            string `json:"title"`
}
