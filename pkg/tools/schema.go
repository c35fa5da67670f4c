package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// SchemaFor derives the JSON schema for a tool's argument struct from its
// field tags.
func SchemaFor[T any]() (*jsonschema.Schema, error) {
	return jsonschema.For[T](nil)
}

// MustSchemaFor is SchemaFor for schemas known to derive cleanly.
func MustSchemaFor[T any]() *jsonschema.Schema {
	schema, err := SchemaFor[T]()
	if err != nil {
		panic(fmt.Sprintf("deriving schema: %v", err))
	}
	return schema
}

// NewHandler wraps a typed tool function into a HandlerFunc, decoding the
// call's raw argument text into T. Malformed argument payloads surface as
// a normal handler error so the dispatcher can contain them.
func NewHandler[T any](fn func(ctx context.Context, params T) (*ToolCallResult, error)) HandlerFunc {
	return func(ctx context.Context, toolCall ToolCall) (*ToolCallResult, error) {
		var params T
		args := toolCall.Function.Arguments
		if args == "" {
			args = "{}"
		}
		if err := json.Unmarshal([]byte(args), &params); err != nil {
			return nil, fmt.Errorf("invalid arguments for %s: %w", toolCall.Function.Name, err)
		}
		return fn(ctx, params)
	}
}

// ParametersMap renders a tool's parameter schema as a plain map for
// providers that expect one.
func ParametersMap(t *Tool) (map[string]any, error) {
	if t.Parameters == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	}
	var out map[string]any
	if err := JSONRoundtrip(t.Parameters, &out); err != nil {
		return nil, fmt.Errorf("converting parameters for %s: %w", t.Name, err)
	}
	return out, nil
}

// JSONRoundtrip copies params into v through their JSON representations.
func JSONRoundtrip(params, v any) error {
	buf, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, v)
}
