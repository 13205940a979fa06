package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/netwatch/internal/types"
)

type queryRequestsInput struct {
	ContextID    string `path:"context_id"`
	PageID       string `query:"page_id"`
	URL          string `query:"url" doc:"URL pattern; '*' matches any substring"`
	Method       string `query:"method"`
	Status       string `query:"status" doc:"Exact status code; 0 selects failed requests"`
	ResourceType string `query:"resource_type"`
	Since        string `query:"since" doc:"Epoch milliseconds or RFC 3339 date-time"`
	Search       string `query:"search" doc:"Regular expression, or literal text when invalid"`
	Limit        int    `query:"limit" doc:"Maximum results; 0 means no limit"`
}

// toQuery converts query parameters. A malformed status is ignored like any
// other invalid filter.
func (in *queryRequestsInput) toQuery() types.Query {
	q := types.Query{
		PageID:       in.PageID,
		URLPattern:   in.URL,
		Method:       in.Method,
		ResourceType: in.ResourceType,
		Since:        in.Since,
		Search:       in.Search,
		Limit:        in.Limit,
	}
	if s := strings.TrimSpace(in.Status); s != "" {
		if code, err := strconv.Atoi(s); err == nil {
			q.Status = &code
		}
	}
	return q
}

func registerRequestHandlers(api huma.API, svc Service) {
	type queryOutput struct {
		Body types.QueryResult
	}
	huma.Register(api, huma.Operation{OperationID: "query-requests", Method: http.MethodGet, Path: "/api/v1/contexts/{context_id}/requests", Summary: "Query captured requests, newest first", Tags: []string{"Requests"}},
		func(ctx context.Context, input *queryRequestsInput) (*queryOutput, error) {
			res, err := svc.QueryRequests(ctx, input.ContextID, input.toQuery())
			if err != nil {
				return nil, mapErr(err)
			}
			if res.Results == nil {
				res.Results = []types.Record{}
			}
			return &queryOutput{Body: res}, nil
		})

	type getRequestInput struct {
		ContextID string `path:"context_id"`
		RequestID string `path:"request_id"`
	}
	type recordOutput struct {
		Body types.Record
	}
	huma.Register(api, huma.Operation{OperationID: "get-request", Method: http.MethodGet, Path: "/api/v1/contexts/{context_id}/requests/{request_id}", Summary: "Get one captured request", Tags: []string{"Requests"}},
		func(ctx context.Context, input *getRequestInput) (*recordOutput, error) {
			rec, err := svc.GetRequest(ctx, input.ContextID, input.RequestID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &recordOutput{Body: rec}, nil
		})

	type clearInput struct {
		ContextID string `path:"context_id"`
		PageID    string `query:"page_id" doc:"Only clear this page's records"`
	}
	type clearOutput struct {
		Body struct {
			Cleared int `json:"cleared"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "clear-requests", Method: http.MethodDelete, Path: "/api/v1/contexts/{context_id}/requests", Summary: "Clear captured requests", Tags: []string{"Requests"}},
		func(ctx context.Context, input *clearInput) (*clearOutput, error) {
			n, err := svc.ClearRequests(ctx, input.ContextID, input.PageID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &clearOutput{}
			out.Body.Cleared = n
			return out, nil
		})

	type statsOutput struct {
		Body types.Stats
	}
	huma.Register(api, huma.Operation{OperationID: "get-stats", Method: http.MethodGet, Path: "/api/v1/contexts/{context_id}/stats", Summary: "Aggregate statistics of a context's requests", Tags: []string{"Requests"}},
		func(ctx context.Context, input *contextIDInput) (*statsOutput, error) {
			st, err := svc.Stats(ctx, input.ContextID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &statsOutput{Body: st}, nil
		})

	type usageOutput struct {
		Body types.Usage
	}
	huma.Register(api, huma.Operation{OperationID: "get-usage", Method: http.MethodGet, Path: "/api/v1/contexts/{context_id}/usage", Summary: "Body memory usage of a context", Tags: []string{"Requests"}},
		func(ctx context.Context, input *contextIDInput) (*usageOutput, error) {
			u, err := svc.Usage(ctx, input.ContextID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &usageOutput{Body: u}, nil
		})
}
