package chat

import "github.com/jarz/rentagent/pkg/tools"

// FinishReason is the model's declared reason for ending a streamed turn.
type FinishReason string

const (
	FinishReasonNull      FinishReason = ""
	FinishReasonStop      FinishReason = "stop"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonLength    FinishReason = "length"
)

// MessageDelta is one incremental fragment of a streamed response. A delta
// carries either a fragment of plain text or fragments of tool-call slots,
// never a complete message.
type MessageDelta struct {
	Role      string           `json:"role,omitempty"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []tools.ToolCall `json:"tool_calls,omitempty"`
}

type MessageStreamChoice struct {
	Index        int          `json:"index"`
	Delta        MessageDelta `json:"delta"`
	FinishReason FinishReason `json:"finish_reason"`
}

// MessageStreamResponse is one chunk received from the completion stream.
type MessageStreamResponse struct {
	ID      string                `json:"id"`
	Object  string                `json:"object"`
	Created int64                 `json:"created"`
	Model   string                `json:"model"`
	Choices []MessageStreamChoice `json:"choices"`
}

// MessageStream yields completion chunks until io.EOF.
type MessageStream interface {
	Recv() (MessageStreamResponse, error)
	Close()
}
