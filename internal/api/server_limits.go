package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/netwatch/internal/config"
)

func registerLimitHandlers(api huma.API, svc Service) {
	type limitsOutput struct {
		Body config.Limits
	}
	huma.Register(api, huma.Operation{OperationID: "get-limits", Method: http.MethodGet, Path: "/api/v1/limits", Summary: "Body capture limits for newly tracked pages", Tags: []string{"Limits"}},
		func(ctx context.Context, input *struct{}) (*limitsOutput, error) {
			return &limitsOutput{Body: svc.Limits(ctx)}, nil
		})

	type setLimitsInput struct {
		Body config.LimitOptions
	}
	huma.Register(api, huma.Operation{OperationID: "set-limits", Method: http.MethodPut, Path: "/api/v1/limits", Summary: "Override body capture limits in kilobytes", Description: "Invalid or non-positive values are ignored. Pages already tracked keep the limits they were attached with.", Tags: []string{"Limits"}},
		func(ctx context.Context, input *setLimitsInput) (*limitsOutput, error) {
			limits, err := svc.SetLimits(ctx, input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			return &limitsOutput{Body: limits}, nil
		})
}
