package runtime

import (
	"github.com/jarz/rentagent/pkg/a2ui"
	"github.com/jarz/rentagent/pkg/tools"
)

// State is one phase of the turn state machine.
type State string

const (
	StateThinking       State = "thinking"
	StateToolCalling    State = "tool_calling"
	StateExecutingTools State = "executing_tools"
	StateResponding     State = "responding"
	StateError          State = "error"
)

// Event is one item of the outward per-turn stream. Exactly one terminal
// event (complete or error) ends every turn.
type Event interface {
	isEvent()
}

// StatusEvent reports a state machine transition.
type StatusEvent struct {
	Type  string `json:"type"`
	State State  `json:"state"`
}

func Status(state State) Event {
	return &StatusEvent{Type: "status", State: state}
}

func (e *StatusEvent) isEvent() {}

// TextEvent carries one assistant text fragment. Concatenate fragments
// in arrival order for the full answer.
type TextEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func Text(content string) Event {
	return &TextEvent{Type: "text", Content: content}
}

func (e *TextEvent) isEvent() {}

// ToolStartEvent is emitted before a tool invocation, cache hit or not.
type ToolStartEvent struct {
	Type      string         `json:"type"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

func ToolStart(toolCall tools.ToolCall) Event {
	return &ToolStartEvent{
		Type:      "tool_start",
		Tool:      toolCall.Function.Name,
		Arguments: decodeArguments(toolCall.Function.Arguments),
	}
}

func (e *ToolStartEvent) isEvent() {}

// ToolEndEvent is emitted after a tool invocation resolves.
type ToolEndEvent struct {
	Type    string `json:"type"`
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
}

func ToolEnd(toolCall tools.ToolCall, success bool) Event {
	return &ToolEndEvent{
		Type:    "tool_end",
		Tool:    toolCall.Function.Name,
		Success: success,
	}
}

func (e *ToolEndEvent) isEvent() {}

// RenderUpdateEvent passes UI-render payloads through unmodified.
type RenderUpdateEvent struct {
	Type     string         `json:"type"`
	Messages []a2ui.Message `json:"messages"`
}

func RenderUpdate(messages []a2ui.Message) Event {
	return &RenderUpdateEvent{Type: "render_update", Messages: messages}
}

func (e *RenderUpdateEvent) isEvent() {}

// ErrorEvent terminates the turn on an upstream or loop-limit fault.
type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func Error(msg string) Event {
	return &ErrorEvent{Type: "error", Error: msg}
}

func (e *ErrorEvent) isEvent() {}

// CompleteEvent terminates the turn on success.
type CompleteEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

func Complete(conversationID string) Event {
	return &CompleteEvent{Type: "complete", ConversationID: conversationID}
}

func (e *CompleteEvent) isEvent() {}
