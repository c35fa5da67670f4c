package runtime

import (
	"encoding/json"
	"log/slog"

	"github.com/jarz/rentagent/pkg/chat"
	"github.com/jarz/rentagent/pkg/tools"
)

// streamParser reassembles a model response from its deltas. Text
// fragments pass straight through; tool-call fragments accumulate per
// stream slot until the finish reason says the batch is complete.
type streamParser struct {
	calls        []tools.ToolCall
	content      []byte
	finishReason chat.FinishReason
}

func newStreamParser() *streamParser {
	return &streamParser{}
}

// feed consumes one choice delta and returns any text fragment it
// carried, for immediate forwarding.
func (p *streamParser) feed(choice *chat.MessageStreamChoice) string {
	if choice.FinishReason != chat.FinishReasonNull {
		p.finishReason = choice.FinishReason
	}

	for _, delta := range choice.Delta.ToolCalls {
		idx := 0
		if delta.Index != nil {
			idx = *delta.Index
		}
		for idx >= len(p.calls) {
			p.calls = append(p.calls, tools.ToolCall{Type: tools.ToolTypeFunction})
		}

		call := &p.calls[idx]
		// id and name arrive once, on the slot's first fragment.
		if delta.ID != "" {
			call.ID = delta.ID
		}
		if delta.Function.Name != "" {
			call.Function.Name = delta.Function.Name
		}
		call.Function.Arguments += delta.Function.Arguments
	}

	if choice.Delta.Content != "" {
		p.content = append(p.content, choice.Delta.Content...)
	}
	return choice.Delta.Content
}

// text returns the full accumulated assistant text.
func (p *streamParser) text() string {
	return string(p.content)
}

// finalize returns the reconstructed tool calls in ascending slot order.
// Tool calls are only emitted when the stream finished because the model
// requested them; any other ending (stop, length, or a stream that died
// without a finish reason) yields none. Argument text that fails to
// parse is replaced with an empty object so the request still surfaces
// as an executable, reportable call.
func (p *streamParser) finalize() []tools.ToolCall {
	if p.finishReason != chat.FinishReasonToolCalls {
		return nil
	}

	out := make([]tools.ToolCall, 0, len(p.calls))
	for i := range p.calls {
		call := p.calls[i]
		if call.Function.Name == "" {
			continue
		}
		if !json.Valid([]byte(call.Function.Arguments)) || call.Function.Arguments == "" {
			slog.Warn("Malformed tool call arguments, using empty object",
				"tool", call.Function.Name, "arguments", call.Function.Arguments)
			call.Function.Arguments = "{}"
		}
		call.Index = nil
		out = append(out, call)
	}
	return out
}
