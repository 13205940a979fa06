// Package cdp connects to Chromium over the DevTools protocol and reports
// browser contexts and their pages to the session manager.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	cdpproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/netwatch/internal/config"
	"github.com/dgnsrekt/netwatch/internal/session"
	"github.com/dgnsrekt/netwatch/internal/types"
)

// ErrNotConnected is returned by browser commands before Connect succeeds.
var ErrNotConnected = errors.New("cdp client not connected")

const commandTimeout = 15 * time.Second

// Client manages CDP connections to browser tabs.
type Client struct {
	cfg         *config.Config
	manager     *session.Manager
	tabRegistry *TabRegistry

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	ownTarget     target.ID

	// contextMu serializes context creation so Watch runs before a new
	// context is visible in contexts.
	contextMu sync.Mutex

	mu       sync.Mutex
	tabs     map[target.ID]*tabPage
	contexts map[string]*browserContext
	// created holds the contexts opened through CreateContext.
	created map[string]bool
	// attaching guards against a second attach while the first is in flight.
	attaching map[target.ID]bool
}

func NewClient(cfg *config.Config, manager *session.Manager, tabRegistry *TabRegistry) *Client {
	return &Client{
		cfg:         cfg,
		manager:     manager,
		tabRegistry: tabRegistry,
		tabs:        make(map[target.ID]*tabPage),
		contexts:    make(map[string]*browserContext),
		created:     make(map[string]bool),
		attaching:   make(map[target.ID]bool),
	}
}

// Connect attaches to the browser and starts target discovery. Existing
// pages are reported by discovery like new ones.
func (c *Client) Connect(ctx context.Context) error {
	cdpURL := c.cfg.GetCDPURL()
	slog.Info("connecting to chromium", "url", cdpURL)

	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cdpURL)
	c.browserCtx, c.browserCancel = chromedp.NewContext(c.allocCtx)

	connectCtx, cancel := context.WithTimeout(c.browserCtx, commandTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(connectCtx); err != nil {
		c.allocCancel()
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	if t := chromedp.FromContext(c.browserCtx).Target; t != nil {
		c.ownTarget = t.TargetID
	}

	chromedp.ListenBrowser(c.browserCtx, c.onBrowserEvent)

	if err := c.browserDo(ctx, func(ctx context.Context) error {
		return target.SetDiscoverTargets(true).Do(ctx)
	}); err != nil {
		c.allocCancel()
		return fmt.Errorf("failed to enable target discovery: %w", err)
	}

	slog.Info("connected to chromium", "tab_url_filter", c.cfg.TabURLFilter)
	return nil
}

// browserDo runs fn against the browser session rather than a page session.
func (c *Client) browserDo(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.browserCtx == nil {
		return ErrNotConnected
	}
	runCtx, cancel := context.WithTimeout(c.browserCtx, commandTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return fn(cdpproto.WithExecutor(ctx, chromedp.FromContext(ctx).Browser))
	}))
}

// onBrowserEvent runs on chromedp's event loop and must not issue commands
// synchronously.
func (c *Client) onBrowserEvent(ev any) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		c.considerTarget(e.TargetInfo)
	case *target.EventTargetInfoChanged:
		if _, ok := c.tabRegistry.Get(e.TargetInfo.TargetID); ok {
			c.tabRegistry.Register(e.TargetInfo)
			return
		}
		c.considerTarget(e.TargetInfo)
	case *target.EventTargetDestroyed:
		go c.detachTarget(e.TargetID)
	}
}

func (c *Client) considerTarget(info *target.Info) {
	if info == nil || info.Type != "page" || info.TargetID == c.ownTarget {
		return
	}
	if !c.matchesTabURL(info.URL) {
		slog.Debug("skipping tab (url filter)", "url", truncateURL(info.URL))
		return
	}

	c.mu.Lock()
	if _, ok := c.tabs[info.TargetID]; ok || c.attaching[info.TargetID] {
		c.mu.Unlock()
		return
	}
	c.attaching[info.TargetID] = true
	c.mu.Unlock()

	go func() {
		if err := c.attachToTab(info); err != nil {
			slog.Error("failed to attach to tab", "target_id", info.TargetID, "url", truncateURL(info.URL), "error", err)
		}
	}()
}

func (c *Client) attachToTab(info *target.Info) error {
	defer func() {
		c.mu.Lock()
		delete(c.attaching, info.TargetID)
		c.mu.Unlock()
	}()

	tabInfo := c.tabRegistry.Register(info)

	tabCtx, tabCancel := chromedp.NewContext(c.allocCtx, chromedp.WithTargetID(info.TargetID))
	tab := newTabPage(tabCtx, tabCancel, info.TargetID, c.tabRegistry)

	if err := chromedp.Run(tabCtx, network.Enable(), network.SetCacheDisabled(true), page.Enable()); err != nil {
		tabCancel()
		c.tabRegistry.Remove(info.TargetID)
		return fmt.Errorf("failed to enable network/page domains: %w", err)
	}
	chromedp.ListenTarget(tabCtx, tab.onEvent)

	bc := c.contextFor(tabInfo.BrowserContextID)

	c.mu.Lock()
	c.tabs[info.TargetID] = tab
	c.mu.Unlock()

	slog.Info("attached to tab", "target_id", info.TargetID, "context_id", bc.id, "url", truncateURL(info.URL))
	bc.emitPage(tab)
	return nil
}

// contextFor returns the browser context with id, announcing it to the
// session manager the first time it is seen.
func (c *Client) contextFor(id string) *browserContext {
	c.contextMu.Lock()
	defer c.contextMu.Unlock()

	c.mu.Lock()
	bc, ok := c.contexts[id]
	c.mu.Unlock()
	if ok {
		return bc
	}

	bc = newBrowserContext(id)
	c.manager.Watch(bc)

	c.mu.Lock()
	c.contexts[id] = bc
	c.mu.Unlock()
	return bc
}

func (c *Client) detachTarget(id target.ID) {
	c.mu.Lock()
	tab, ok := c.tabs[id]
	delete(c.tabs, id)
	c.mu.Unlock()

	info, known := c.tabRegistry.Get(id)
	c.tabRegistry.Remove(id)
	if !ok {
		return
	}

	if known {
		c.mu.Lock()
		bc := c.contexts[info.BrowserContextID]
		c.mu.Unlock()
		if bc != nil {
			bc.emitPageClosed(tab)
		}
	}
	tab.close()
	slog.Info("tab closed", "target_id", id)
}

// CreateContext creates an isolated browser context and opens startURL in it.
func (c *Client) CreateContext(ctx context.Context, startURL string) (string, error) {
	var id cdpproto.BrowserContextID
	err := c.browserDo(ctx, func(ctx context.Context) error {
		var err error
		id, err = target.CreateBrowserContext().Do(ctx)
		if err != nil {
			return fmt.Errorf("create browser context: %w", err)
		}
		c.contextFor(string(id))
		c.mu.Lock()
		c.created[string(id)] = true
		c.mu.Unlock()
		if _, err := target.CreateTarget(startURL).WithBrowserContextID(id).Do(ctx); err != nil {
			return fmt.Errorf("create target: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	slog.Info("browser context created", "context_id", id, "url", truncateURL(startURL))
	return string(id), nil
}

// OpenPage opens url in a new tab of an existing browser context.
func (c *Client) OpenPage(ctx context.Context, contextID, url string) (string, error) {
	if !c.knowsContext(contextID) {
		return "", types.ErrUnknownContext
	}
	var targetID target.ID
	err := c.browserDo(ctx, func(ctx context.Context) error {
		create := target.CreateTarget(url)
		if contextID != DefaultContextID {
			create = create.WithBrowserContextID(cdpproto.BrowserContextID(contextID))
		}
		var err error
		targetID, err = create.Do(ctx)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	return string(targetID), nil
}

// DisposeContext drops the captured traffic of a browser context. Contexts
// opened by CreateContext are also disposed in the browser, which closes
// their pages. Contexts the browser owns, such as the default one, cannot be
// disposed; their capture restarts on the pages that are still open.
func (c *Client) DisposeContext(ctx context.Context, contextID string) error {
	c.mu.Lock()
	bc, ok := c.contexts[contextID]
	created := c.created[contextID]
	c.mu.Unlock()
	if !ok {
		return types.ErrUnknownContext
	}

	if !created {
		c.resetCapture(contextID, bc)
		return nil
	}

	err := c.browserDo(ctx, func(ctx context.Context) error {
		return target.DisposeBrowserContext(cdpproto.BrowserContextID(contextID)).Do(ctx)
	})
	if err != nil {
		return fmt.Errorf("dispose browser context: %w", err)
	}

	c.mu.Lock()
	delete(c.contexts, contextID)
	delete(c.created, contextID)
	c.mu.Unlock()
	bc.emitClose()
	slog.Info("browser context disposed", "context_id", contextID)
	return nil
}

// resetCapture clears a context's traffic and attaches its open pages again.
func (c *Client) resetCapture(contextID string, bc *browserContext) {
	c.contextMu.Lock()
	c.mu.Lock()
	if c.contexts[contextID] == bc {
		delete(c.contexts, contextID)
	}
	c.mu.Unlock()
	c.contextMu.Unlock()

	bc.emitClose()
	fresh := c.contextFor(contextID)

	c.mu.Lock()
	var open []*tabPage
	for id, tab := range c.tabs {
		if info, ok := c.tabRegistry.Get(id); ok && info.BrowserContextID == contextID {
			open = append(open, tab)
		}
	}
	c.mu.Unlock()

	for _, tab := range open {
		fresh.emitPage(tab)
	}
	slog.Info("browser context capture reset", "context_id", contextID, "pages", len(open))
}

func (c *Client) knowsContext(contextID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.contexts[contextID]
	return ok
}

// Connected reports whether Connect succeeded and the browser is still reachable.
func (c *Client) Connected() bool {
	return c.browserCtx != nil && c.browserCtx.Err() == nil
}

// Close stops capture for every context and drops the CDP connection.
// Attached tabs are left open in the browser.
func (c *Client) Close() error {
	c.mu.Lock()
	contexts := make([]*browserContext, 0, len(c.contexts))
	for _, bc := range c.contexts {
		contexts = append(contexts, bc)
	}
	c.contexts = make(map[string]*browserContext)
	c.created = make(map[string]bool)
	c.tabs = make(map[target.ID]*tabPage)
	c.mu.Unlock()

	for _, bc := range contexts {
		bc.emitClose()
	}
	if c.browserCancel != nil {
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}

	slog.Info("cdp client closed")
	return nil
}

func (c *Client) matchesTabURL(url string) bool {
	if c.cfg.TabURLFilter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(url), strings.ToLower(c.cfg.TabURLFilter))
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
