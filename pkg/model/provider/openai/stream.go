package openai

import (
	"io"

	api "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"github.com/jarz/rentagent/pkg/chat"
	"github.com/jarz/rentagent/pkg/tools"
)

// streamAdapter converts SDK chunks into the runtime's stream shape.
type streamAdapter struct {
	stream *ssestream.Stream[api.ChatCompletionChunk]
}

var _ chat.MessageStream = (*streamAdapter)(nil)

func newStreamAdapter(stream *ssestream.Stream[api.ChatCompletionChunk]) *streamAdapter {
	return &streamAdapter{stream: stream}
}

func (a *streamAdapter) Recv() (chat.MessageStreamResponse, error) {
	if !a.stream.Next() {
		if err := a.stream.Err(); err != nil {
			return chat.MessageStreamResponse{}, err
		}
		return chat.MessageStreamResponse{}, io.EOF
	}

	chunk := a.stream.Current()
	response := chat.MessageStreamResponse{
		ID:      chunk.ID,
		Object:  string(chunk.Object),
		Created: chunk.Created,
		Model:   chunk.Model,
		Choices: make([]chat.MessageStreamChoice, len(chunk.Choices)),
	}

	for i := range chunk.Choices {
		choice := &chunk.Choices[i]
		converted := chat.MessageStreamChoice{
			Index:        int(choice.Index),
			FinishReason: chat.FinishReason(choice.FinishReason),
			Delta: chat.MessageDelta{
				Role:    choice.Delta.Role,
				Content: choice.Delta.Content,
			},
		}

		if len(choice.Delta.ToolCalls) > 0 {
			converted.Delta.ToolCalls = make([]tools.ToolCall, len(choice.Delta.ToolCalls))
			for j, toolCall := range choice.Delta.ToolCalls {
				index := int(toolCall.Index)
				converted.Delta.ToolCalls[j] = tools.ToolCall{
					Index: &index,
					ID:    toolCall.ID,
					Type:  tools.ToolTypeFunction,
					Function: tools.FunctionCall{
						Name:      toolCall.Function.Name,
						Arguments: toolCall.Function.Arguments,
					},
				}
			}
		}

		response.Choices[i] = converted
	}

	return response, nil
}

func (a *streamAdapter) Close() {
	_ = a.stream.Close()
}
