// Package controller exposes captured traffic and browser context control
// to the HTTP API.
package controller

import (
	"context"
	"errors"
	"strings"

	"github.com/dgnsrekt/netwatch/internal/config"
	"github.com/dgnsrekt/netwatch/internal/requests"
	"github.com/dgnsrekt/netwatch/internal/session"
	"github.com/dgnsrekt/netwatch/internal/types"
)

// Browser creates and disposes browser contexts. It is nil when the service
// runs without a live browser connection.
type Browser interface {
	CreateContext(ctx context.Context, startURL string) (string, error)
	OpenPage(ctx context.Context, contextID, url string) (string, error)
	DisposeContext(ctx context.Context, contextID string) error
	Connected() bool
}

// Service answers queries against per-context request stores.
type Service struct {
	manager *session.Manager
	browser Browser
}

func NewService(manager *session.Manager, browser Browser) *Service {
	return &Service{manager: manager, browser: browser}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &CodedError{Code: CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

func (s *Service) store(contextID string) (*requests.Store, error) {
	if err := s.requireNonEmpty(contextID, "context_id"); err != nil {
		return nil, err
	}
	st, ok := s.manager.StoreByID(strings.TrimSpace(contextID))
	if !ok {
		return nil, &CodedError{Code: CodeContextNotFound, Message: "context " + contextID + " not found"}
	}
	return st, nil
}

// ListContexts reports every context with its tracked pages and record count.
func (s *Service) ListContexts(_ context.Context) []types.ContextInfo {
	ids := s.manager.ContextIDs()
	out := make([]types.ContextInfo, 0, len(ids))
	for _, id := range ids {
		pages, ok := s.manager.TrackedPagesByID(id)
		if !ok {
			continue
		}
		info := types.ContextInfo{ID: id, Pages: pages}
		if st, ok := s.manager.StoreByID(id); ok {
			info.Requests = st.Len()
		}
		out = append(out, info)
	}
	return out
}

func (s *Service) TrackedPages(ctx context.Context, contextID string) ([]types.PageSnapshot, error) {
	if err := s.requireNonEmpty(contextID, "context_id"); err != nil {
		return nil, err
	}
	pages, ok := s.manager.TrackedPagesByID(strings.TrimSpace(contextID))
	if !ok {
		return nil, &CodedError{Code: CodeContextNotFound, Message: "context " + contextID + " not found"}
	}
	return pages, nil
}

// QueryRequests filters a context's records. A negative limit means no limit.
func (s *Service) QueryRequests(ctx context.Context, contextID string, q types.Query) (types.QueryResult, error) {
	st, err := s.store(contextID)
	if err != nil {
		return types.QueryResult{}, err
	}
	if q.Limit < 0 {
		q.Limit = 0
	}
	return st.Query(q), nil
}

func (s *Service) GetRequest(ctx context.Context, contextID, requestID string) (types.Record, error) {
	st, err := s.store(contextID)
	if err != nil {
		return types.Record{}, err
	}
	if err := s.requireNonEmpty(requestID, "request_id"); err != nil {
		return types.Record{}, err
	}
	rec, ok := st.Get(strings.TrimSpace(requestID))
	if !ok {
		return types.Record{}, &CodedError{Code: CodeRequestNotFound, Message: "request " + requestID + " not found"}
	}
	return rec, nil
}

// ClearRequests removes a page's records, or all records when pageID is empty.
func (s *Service) ClearRequests(ctx context.Context, contextID, pageID string) (int, error) {
	st, err := s.store(contextID)
	if err != nil {
		return 0, err
	}
	return st.Clear(strings.TrimSpace(pageID)), nil
}

func (s *Service) Stats(ctx context.Context, contextID string) (types.Stats, error) {
	st, err := s.store(contextID)
	if err != nil {
		return types.Stats{}, err
	}
	return st.Stats(), nil
}

func (s *Service) Usage(ctx context.Context, contextID string) (types.Usage, error) {
	st, err := s.store(contextID)
	if err != nil {
		return types.Usage{}, err
	}
	return st.Usage(), nil
}

// Limits returns the limits new pages will be tracked with.
func (s *Service) Limits(ctx context.Context) config.Limits {
	return config.CurrentLimits()
}

// SetLimits applies kilobyte overrides. Invalid values are ignored and leave
// the previous limit in place; pages already tracked keep their limits.
func (s *Service) SetLimits(ctx context.Context, opts config.LimitOptions) (config.Limits, error) {
	if opts.MaxRequestKB == nil && opts.MaxResponseKB == nil {
		return config.Limits{}, &CodedError{Code: CodeValidation, Message: "max_request_kb or max_response_kb is required"}
	}
	return config.ConfigureLimits(opts), nil
}

// BrowserConnected reports whether browser context commands can be served.
func (s *Service) BrowserConnected() bool {
	return s.browser != nil && s.browser.Connected()
}

func (s *Service) requireBrowser() error {
	if !s.BrowserConnected() {
		return &CodedError{Code: CodeCDPUnavailable, Message: "browser is not connected"}
	}
	return nil
}

// CreateContext opens a fresh isolated browser context at startURL.
func (s *Service) CreateContext(ctx context.Context, startURL string) (string, error) {
	if err := s.requireBrowser(); err != nil {
		return "", err
	}
	if strings.TrimSpace(startURL) == "" {
		startURL = "about:blank"
	}
	id, err := s.browser.CreateContext(ctx, strings.TrimSpace(startURL))
	if err != nil {
		return "", newError(CodeBrowserFailure, "failed to create browser context", err)
	}
	return id, nil
}

// OpenPage opens url in a new tab of contextID and returns its target ID.
func (s *Service) OpenPage(ctx context.Context, contextID, url string) (string, error) {
	if err := s.requireNonEmpty(contextID, "context_id"); err != nil {
		return "", err
	}
	if err := s.requireNonEmpty(url, "url"); err != nil {
		return "", err
	}
	if err := s.requireBrowser(); err != nil {
		return "", err
	}
	id, err := s.browser.OpenPage(ctx, strings.TrimSpace(contextID), strings.TrimSpace(url))
	if err != nil {
		return "", s.browserErr(contextID, "failed to open page", err)
	}
	return id, nil
}

// DisposeContext drops everything a context captured. Contexts created
// through CreateContext are closed in the browser as well.
func (s *Service) DisposeContext(ctx context.Context, contextID string) error {
	if err := s.requireNonEmpty(contextID, "context_id"); err != nil {
		return err
	}
	contextID = strings.TrimSpace(contextID)
	if s.browser == nil {
		if !s.manager.ResetContextByID(contextID) {
			return &CodedError{Code: CodeContextNotFound, Message: "context " + contextID + " not found"}
		}
		return nil
	}
	if err := s.browser.DisposeContext(ctx, contextID); err != nil {
		return s.browserErr(contextID, "failed to dispose browser context", err)
	}
	return nil
}

func (s *Service) browserErr(contextID, msg string, err error) error {
	if errors.Is(err, types.ErrUnknownContext) {
		return &CodedError{Code: CodeContextNotFound, Message: "context " + contextID + " not found", Cause: err}
	}
	return newError(CodeBrowserFailure, msg, err)
}
