package tools

import (
	"context"
	"encoding/json"

	"github.com/jarz/rentagent/pkg/a2ui"
)

// ToolCall is a fully reconstructed tool invocation request from the model.
// Index is the stream slot the request arrived on; it is only meaningful
// while the request is being reassembled from deltas.
type ToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     ToolType     `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type ToolType string

const ToolTypeFunction ToolType = "function"

// ToolCallResult is what a tool hands back. Output is the machine-usable
// payload, Summary the short natural-language form given to the model,
// RenderMessages the UI components streamed to the client unmodified.
type ToolCallResult struct {
	Success        bool            `json:"success"`
	Output         json.RawMessage `json:"output,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	RenderMessages []a2ui.Message  `json:"render_messages,omitempty"`
}

// ModelContent returns the text appended to the conversation for the model.
func (r *ToolCallResult) ModelContent() string {
	if r.Summary != "" {
		return r.Summary
	}
	if len(r.Output) > 0 {
		return string(r.Output)
	}
	return "(no output)"
}

func ResultSuccess(summary string, output any) *ToolCallResult {
	raw, err := json.Marshal(output)
	if err != nil {
		raw = nil
	}
	return &ToolCallResult{Success: true, Output: raw, Summary: summary}
}

func ResultError(summary string) *ToolCallResult {
	return &ToolCallResult{Success: false, Summary: summary}
}

// HandlerFunc executes one tool call.
type HandlerFunc func(ctx context.Context, toolCall ToolCall) (*ToolCallResult, error)

type ToolAnnotations struct {
	Title        string `json:"title,omitempty"`
	ReadOnlyHint bool   `json:"readOnlyHint,omitempty"`
}

// Tool is a named operation the model may request. Parameters is a JSON
// schema describing the arguments object.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  any             `json:"parameters"`
	Handler     HandlerFunc     `json:"-"`
	Annotations ToolAnnotations `json:"annotations,omitzero"`
}
