package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/netwatch/internal/types"
)

func registerContextHandlers(api huma.API, svc Service) {
	type listContextsOutput struct {
		Body struct {
			Contexts []types.ContextInfo `json:"contexts"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-contexts", Method: http.MethodGet, Path: "/api/v1/contexts", Summary: "List tracked browser contexts", Tags: []string{"Contexts"}},
		func(ctx context.Context, input *struct{}) (*listContextsOutput, error) {
			out := &listContextsOutput{}
			out.Body.Contexts = svc.ListContexts(ctx)
			return out, nil
		})

	type createContextInput struct {
		Body struct {
			StartURL string `json:"start_url,omitempty" doc:"URL opened in the new context (default about:blank)"`
		} `required:"false"`
	}
	type createContextOutput struct {
		Body struct {
			ContextID string `json:"context_id"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "create-context", Method: http.MethodPost, Path: "/api/v1/contexts", Summary: "Create an isolated browser context", Tags: []string{"Contexts"}, DefaultStatus: http.StatusCreated},
		func(ctx context.Context, input *createContextInput) (*createContextOutput, error) {
			id, err := svc.CreateContext(ctx, input.Body.StartURL)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &createContextOutput{}
			out.Body.ContextID = id
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "dispose-context", Method: http.MethodDelete, Path: "/api/v1/contexts/{context_id}", Summary: "Dispose a browser context and drop its captured traffic", Tags: []string{"Contexts"}},
		func(ctx context.Context, input *contextIDInput) (*struct{}, error) {
			if err := svc.DisposeContext(ctx, input.ContextID); err != nil {
				return nil, mapErr(err)
			}
			return nil, nil
		})

	type pagesOutput struct {
		Body struct {
			ContextID string               `json:"context_id"`
			Pages     []types.PageSnapshot `json:"pages"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-pages", Method: http.MethodGet, Path: "/api/v1/contexts/{context_id}/pages", Summary: "List tracked pages of a context", Tags: []string{"Contexts"}},
		func(ctx context.Context, input *contextIDInput) (*pagesOutput, error) {
			pages, err := svc.TrackedPages(ctx, input.ContextID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &pagesOutput{}
			out.Body.ContextID = input.ContextID
			out.Body.Pages = pages
			return out, nil
		})

	type openPageInput struct {
		ContextID string `path:"context_id"`
		Body      struct {
			URL string `json:"url" required:"true"`
		}
	}
	type openPageOutput struct {
		Body struct {
			TargetID string `json:"target_id"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "open-page", Method: http.MethodPost, Path: "/api/v1/contexts/{context_id}/pages", Summary: "Open a page in a context", Tags: []string{"Contexts"}, DefaultStatus: http.StatusCreated},
		func(ctx context.Context, input *openPageInput) (*openPageOutput, error) {
			id, err := svc.OpenPage(ctx, input.ContextID, input.Body.URL)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &openPageOutput{}
			out.Body.TargetID = id
			return out, nil
		})
}
