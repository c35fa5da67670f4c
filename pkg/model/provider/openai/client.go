// Package openai implements the model provider against any
// OpenAI-compatible chat completions endpoint, including OpenRouter.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	api "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jarz/rentagent/pkg/chat"
	"github.com/jarz/rentagent/pkg/model/provider"
	"github.com/jarz/rentagent/pkg/tools"
)

// Client implements the provider.Provider interface.
type Client struct {
	client      api.Client
	model       string
	temperature *float64
	maxTokens   int
}

var _ provider.Provider = (*Client)(nil)

type Option func(*Client)

func WithTemperature(t float64) Option { return func(c *Client) { c.temperature = &t } }

func WithMaxTokens(n int) Option { return func(c *Client) { c.maxTokens = n } }

// NewClient creates a provider client. baseURL selects the backend, e.g.
// https://openrouter.ai/api/v1 or https://api.openai.com/v1.
func NewClient(apiKey, baseURL, model string, opts ...Option) *Client {
	c := &Client{
		client: api.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
		),
		model: model,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) params(messages []chat.Message, requestTools []tools.Tool) (api.ChatCompletionNewParams, error) {
	params := api.ChatCompletionNewParams{
		Model:    c.model,
		Messages: convertMessages(messages),
	}
	if c.temperature != nil {
		params.Temperature = api.Float(*c.temperature)
	}
	if c.maxTokens > 0 {
		params.MaxTokens = api.Int(int64(c.maxTokens))
	}

	if len(requestTools) > 0 {
		toolsParam := make([]api.ChatCompletionToolUnionParam, len(requestTools))
		for i := range requestTools {
			tool := &requestTools[i]
			desc := tool.Description
			if desc == "" {
				desc = "Function " + tool.Name
			}
			paramsMap, err := tools.ParametersMap(tool)
			if err != nil {
				return params, err
			}
			toolsParam[i] = api.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: api.String(desc),
				Parameters:  shared.FunctionParameters(paramsMap),
			})
		}
		params.Tools = toolsParam
	}

	return params, nil
}

// CreateChatCompletionStream starts a streaming completion request.
func (c *Client) CreateChatCompletionStream(ctx context.Context, messages []chat.Message, requestTools []tools.Tool) (chat.MessageStream, error) {
	if len(messages) == 0 {
		return nil, errors.New("at least one message is required")
	}

	slog.Debug("Creating chat completion stream",
		"model", c.model,
		"message_count", len(messages),
		"tool_count", len(requestTools),
	)

	params, err := c.params(messages, requestTools)
	if err != nil {
		return nil, fmt.Errorf("building completion params: %w", err)
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	return newStreamAdapter(stream), nil
}

// CreateChatCompletion runs a non-streamed completion.
func (c *Client) CreateChatCompletion(ctx context.Context, messages []chat.Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("at least one message is required")
	}

	params, err := c.params(messages, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("creating chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
