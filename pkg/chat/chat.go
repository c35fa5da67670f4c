package chat

import (
	"time"

	"github.com/jarz/rentagent/pkg/tools"
)

// MessageRole identifies who produced a message.
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

// Message is one entry in a conversation. Messages are immutable once
// appended: ToolCalls is only ever set on assistant messages, ToolCallID
// and ToolName only on tool messages.
type Message struct {
	Role       MessageRole      `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []tools.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolName   string           `json:"tool_name,omitempty"`
	CreatedAt  time.Time        `json:"created_at,omitzero"`
}

func NewSystemMessage(content string) Message {
	return Message{Role: MessageRoleSystem, Content: content, CreatedAt: time.Now()}
}

func NewUserMessage(content string) Message {
	return Message{Role: MessageRoleUser, Content: content, CreatedAt: time.Now()}
}

func NewAssistantMessage(content string, toolCalls []tools.ToolCall) Message {
	return Message{Role: MessageRoleAssistant, Content: content, ToolCalls: toolCalls, CreatedAt: time.Now()}
}

func NewToolMessage(call tools.ToolCall, content string) Message {
	return Message{
		Role:       MessageRoleTool,
		Content:    content,
		ToolCallID: call.ID,
		ToolName:   call.Function.Name,
		CreatedAt:  time.Now(),
	}
}
