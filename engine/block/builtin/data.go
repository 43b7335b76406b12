package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/compozy/blockgate/engine/block"
	"github.com/tidwall/gjson"
)

const (
	actionJSONExtract  = "json_extract"
	actionTextTemplate = "text_template"
)

func jsonDescriptor() *block.Descriptor {
	return &block.Descriptor{
		Type:        "json_extract",
		Name:        "JSON Extract",
		Description: "Read a value from a JSON document with a path expression",
		Category:    "blocks",
		Icon:        "braces",
		Version:     "1.0.0",
		Inputs: []block.Param{
			{Name: "json", Type: block.TypeJSON, Required: true, Description: "Source document"},
			{Name: "path", Type: block.TypeString, Required: true, Description: "gjson path, for example items.0.name"},
		},
		Outputs: []block.Output{
			{Name: "value", Type: block.TypeJSON, Description: "Extracted value"},
			{Name: "exists", Type: block.TypeBoolean, Description: "Whether the path matched"},
		},
		Action:  actionJSONExtract,
		Actions: []string{actionJSONExtract},
	}
}

func jsonAction() block.Action {
	return block.ActionFunc{Name: actionJSONExtract, Fn: func(
		_ context.Context,
		params map[string]any,
		_ *block.ExecContext,
	) (*block.Result, error) {
		path := stringParam(params, "path")
		if path == "" {
			return nil, fmt.Errorf("path is required")
		}
		var doc []byte
		switch v := params["json"].(type) {
		case string:
			doc = []byte(v)
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encoding json input: %w", err)
			}
			doc = raw
		}
		if !gjson.ValidBytes(doc) {
			return &block.Result{Error: "json input is not valid JSON"}, nil
		}
		res := gjson.GetBytes(doc, path)
		return &block.Result{
			Success: true,
			Output:  map[string]any{"value": res.Value(), "exists": res.Exists()},
		}, nil
	}}
}

func templateDescriptor() *block.Descriptor {
	return &block.Descriptor{
		Type:        "text_template",
		Name:        "Text Template",
		Description: "Render a Go text template with sprig functions",
		Category:    "blocks",
		Icon:        "type",
		Version:     "1.0.0",
		Inputs: []block.Param{
			{Name: "template", Type: block.TypeString, Required: true, Description: "Template source"},
			{Name: "data", Type: block.TypeObject, Description: "Values available as .", Default: block.Computed(
				func(map[string]any) (any, error) { return map[string]any{}, nil },
			)},
		},
		Outputs: []block.Output{{Name: "text", Type: block.TypeString, Description: "Rendered text"}},
		Action:  actionTextTemplate,
		Actions: []string{actionTextTemplate},
	}
}

func templateAction() block.Action {
	return block.ActionFunc{Name: actionTextTemplate, Fn: func(
		_ context.Context,
		params map[string]any,
		_ *block.ExecContext,
	) (*block.Result, error) {
		src, _ := params["template"].(string)
		tmpl, err := template.New("block").Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(src)
		if err != nil {
			return &block.Result{Error: fmt.Sprintf("invalid template: %v", err)}, nil
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, params["data"]); err != nil {
			return &block.Result{Error: fmt.Sprintf("rendering template: %v", err)}, nil
		}
		return &block.Result{Success: true, Output: map[string]any{"text": buf.String()}}, nil
	}}
}
