package openai

import (
	api "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/jarz/rentagent/pkg/chat"
)

func convertMessages(messages []chat.Message) []api.ChatCompletionMessageParamUnion {
	out := make([]api.ChatCompletionMessageParamUnion, 0, len(messages))
	for i := range messages {
		msg := &messages[i]

		switch msg.Role {
		case chat.MessageRoleSystem:
			out = append(out, api.SystemMessage(msg.Content))

		case chat.MessageRoleUser:
			out = append(out, api.UserMessage(msg.Content))

		case chat.MessageRoleAssistant:
			// Empty assistant messages can appear when a completion was cut
			// off; the API rejects them.
			if msg.Content == "" && len(msg.ToolCalls) == 0 {
				continue
			}

			assistant := api.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content.OfString = param.NewOpt(msg.Content)
			}
			if len(msg.ToolCalls) > 0 {
				toolCalls := make([]api.ChatCompletionMessageToolCallUnionParam, len(msg.ToolCalls))
				for j, toolCall := range msg.ToolCalls {
					toolCalls[j] = api.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &api.ChatCompletionMessageFunctionToolCallParam{
							ID: toolCall.ID,
							Function: api.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      toolCall.Function.Name,
								Arguments: toolCall.Function.Arguments,
							},
						},
					}
				}
				assistant.ToolCalls = toolCalls
			}
			out = append(out, api.ChatCompletionMessageParamUnion{OfAssistant: &assistant})

		case chat.MessageRoleTool:
			tool := api.ChatCompletionToolMessageParam{
				ToolCallID: msg.ToolCallID,
			}
			tool.Content.OfString = param.NewOpt(msg.Content)
			out = append(out, api.ChatCompletionMessageParamUnion{OfTool: &tool})
		}
	}
	return out
}
