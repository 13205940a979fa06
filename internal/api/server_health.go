package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/netwatch/internal/relay"
)

func registerHealthHandlers(api huma.API, svc Service, broker *relay.Broker) {
	type healthOutput struct {
		Body struct {
			Status           string `json:"status"`
			BrowserConnected bool   `json:"browser_connected"`
			Contexts         int    `json:"contexts"`
			StreamClients    int    `json:"stream_clients"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			out.Body.BrowserConnected = svc.BrowserConnected()
			out.Body.Contexts = len(svc.ListContexts(ctx))
			if broker != nil {
				out.Body.StreamClients = broker.ClientCount()
			}
			return out, nil
		})
}
