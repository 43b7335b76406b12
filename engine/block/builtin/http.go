package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/compozy/blockgate/engine/block"
	"github.com/go-resty/resty/v2"
)

const actionHTTPRequest = "http_request"

func httpDescriptor() *block.Descriptor {
	return &block.Descriptor{
		Type:        "api",
		Name:        "API",
		Description: "Call any HTTP endpoint and return its response",
		Category:    "tools",
		Icon:        "globe",
		Color:       "#2F55FF",
		Version:     "1.0.0",
		Inputs: []block.Param{
			{Name: "url", Type: block.TypeString, Required: true, Description: "Request URL"},
			{
				Name:        "method",
				Type:        block.TypeString,
				Description: "HTTP method",
				Options:     []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
				Default:     block.Static{V: http.MethodGet},
			},
			{Name: "headers", Type: block.TypeObject, Description: "Request headers"},
			{Name: "params", Type: block.TypeObject, Description: "Query parameters"},
			{Name: "body", Type: block.TypeJSON, Description: "Request body"},
		},
		Outputs: []block.Output{
			{Name: "status", Type: block.TypeNumber, Description: "Response status code"},
			{Name: "headers", Type: block.TypeObject, Description: "Response headers"},
			{Name: "data", Type: block.TypeJSON, Description: "Decoded response body"},
		},
		Transform: func(params map[string]any) (map[string]any, error) {
			method, _ := params["method"].(string)
			return map[string]any{"method": strings.ToUpper(strings.TrimSpace(method))}, nil
		},
		Action:  actionHTTPRequest,
		Actions: []string{actionHTTPRequest},
	}
}

func httpAction(out *Outbound) block.Action {
	return block.ActionFunc{Name: actionHTTPRequest, Fn: func(
		ctx context.Context,
		params map[string]any,
		_ *block.ExecContext,
	) (*block.Result, error) {
		target := stringParam(params, "url")
		if target == "" {
			return nil, fmt.Errorf("url is required")
		}
		method := stringParam(params, "method")
		if method == "" {
			method = http.MethodGet
		}
		resp, err := out.Do(ctx, method, target, func(req *resty.Request) {
			for k, v := range mapParam(params, "headers") {
				req.SetHeader(k, fmt.Sprint(v))
			}
			for k, v := range mapParam(params, "params") {
				req.SetQueryParam(k, fmt.Sprint(v))
			}
			if body, ok := params["body"]; ok && body != nil {
				req.SetBody(body)
			}
		})
		if err != nil && resp == nil {
			return nil, err
		}
		output := map[string]any{
			"status":  resp.StatusCode(),
			"headers": flattenHeaders(resp.Header()),
			"data":    decodeBody(resp.Body()),
		}
		if resp.IsError() {
			return &block.Result{
				Output: output,
				Error:  fmt.Sprintf("request failed with status %d", resp.StatusCode()),
				Usage:  block.Usage{APICallsMade: 1},
			}, nil
		}
		return &block.Result{Success: true, Output: output, Usage: block.Usage{APICallsMade: 1}}, nil
	}}
}

func decodeBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	return v
}

func flattenHeaders(h http.Header) map[string]any {
	out := make(map[string]any, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func stringParam(params map[string]any, name string) string {
	s, _ := params[name].(string)
	return strings.TrimSpace(s)
}

func mapParam(params map[string]any, name string) map[string]any {
	m, _ := params[name].(map[string]any)
	return m
}
