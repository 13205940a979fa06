// Package api serves captured traffic over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/netwatch/internal/config"
	"github.com/dgnsrekt/netwatch/internal/controller"
	"github.com/dgnsrekt/netwatch/internal/relay"
	"github.com/dgnsrekt/netwatch/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Service interface {
	ListContexts(ctx context.Context) []types.ContextInfo
	TrackedPages(ctx context.Context, contextID string) ([]types.PageSnapshot, error)
	QueryRequests(ctx context.Context, contextID string, q types.Query) (types.QueryResult, error)
	GetRequest(ctx context.Context, contextID, requestID string) (types.Record, error)
	ClearRequests(ctx context.Context, contextID, pageID string) (int, error)
	Stats(ctx context.Context, contextID string) (types.Stats, error)
	Usage(ctx context.Context, contextID string) (types.Usage, error)
	Limits(ctx context.Context) config.Limits
	SetLimits(ctx context.Context, opts config.LimitOptions) (config.Limits, error)
	BrowserConnected() bool
	CreateContext(ctx context.Context, startURL string) (string, error)
	OpenPage(ctx context.Context, contextID, url string) (string, error)
	DisposeContext(ctx context.Context, contextID string) error
}

type contextIDInput struct {
	ContextID string `path:"context_id" doc:"Browser context ID (\"default\" for the browser's own context)"`
}

// NewServer builds the HTTP handler. broker may be nil, in which case the
// event stream endpoints are not mounted.
func NewServer(svc Service, broker *relay.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "netwatch")
	})

	cfg := huma.DefaultConfig("netwatch API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	if broker != nil {
		router.Get("/api/v1/events", relay.SSEHandler(broker))
		router.Get("/api/v1/events/ws", relay.WebSocketHandler(broker))
	}

	registerHealthHandlers(api, svc, broker)
	registerContextHandlers(api, svc)
	registerRequestHandlers(api, svc)
	registerLimitHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *controller.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case controller.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case controller.CodeContextNotFound, controller.CodeRequestNotFound:
			return huma.Error404NotFound(coded.Message)
		case controller.CodeCDPUnavailable, controller.CodeBrowserFailure:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
