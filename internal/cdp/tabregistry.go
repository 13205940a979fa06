package cdp

import (
	"sync"

	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/netwatch/internal/types"
)

// TabRegistry maps CDP target IDs to the latest target metadata.
type TabRegistry struct {
	tabs map[target.ID]*types.TabInfo
	mu   sync.RWMutex
}

func NewTabRegistry() *TabRegistry {
	return &TabRegistry{tabs: make(map[target.ID]*types.TabInfo)}
}

// Register stores or refreshes the metadata of info.
func (r *TabRegistry) Register(info *target.Info) *types.TabInfo {
	tab := &types.TabInfo{
		TargetID:         string(info.TargetID),
		BrowserContextID: browserContextKey(info),
		URL:              info.URL,
		Title:            info.Title,
	}

	r.mu.Lock()
	r.tabs[info.TargetID] = tab
	r.mu.Unlock()

	return tab
}

// SetURL records a main-frame navigation seen on the page itself.
func (r *TabRegistry) SetURL(targetID target.ID, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tab, ok := r.tabs[targetID]; ok {
		updated := *tab
		updated.URL = url
		r.tabs[targetID] = &updated
	}
}

func (r *TabRegistry) Get(targetID target.ID) (*types.TabInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tabs[targetID]
	return info, ok
}

func (r *TabRegistry) Remove(targetID target.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tabs, targetID)
}

// DefaultContextID names the browser's default context when CDP reports none.
const DefaultContextID = "default"

func browserContextKey(info *target.Info) string {
	if info.BrowserContextID == "" {
		return DefaultContextID
	}
	return string(info.BrowserContextID)
}
