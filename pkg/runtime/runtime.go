// Package runtime drives one conversational turn: it alternates between
// asking the model what to do and executing the tools it requests,
// streaming progress events to the caller as it goes.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/jarz/rentagent/pkg/chat"
	"github.com/jarz/rentagent/pkg/conversation"
	"github.com/jarz/rentagent/pkg/model/provider"
	"github.com/jarz/rentagent/pkg/tools"
)

// DefaultMaxToolRounds bounds the think/execute loop per turn.
const DefaultMaxToolRounds = 8

// ErrToolRoundLimit is the distinct terminal fault for a turn that keeps
// requesting tools without converging on an answer.
var ErrToolRoundLimit = errors.New("tool round limit exceeded")

const defaultSystemPrompt = `You are a UK rental market assistant. You help users understand rental prices, forecasts, and buy-to-let investment potential across UK areas.

Use the available tools to fetch forecasts and market data before answering questions about specific areas. When a tool fails, acknowledge the failure and answer with what you know. Be concise and always state rents as monthly GBP figures.`

// Runtime owns the turn state machine for one assistant instance. It is
// safe for concurrent turns on different conversations.
type Runtime struct {
	provider      provider.Provider
	executor      *ToolExecutor
	store         conversation.Store
	registry      *tools.Registry
	systemPrompt  string
	maxToolRounds int
}

type Opt func(*Runtime)

func WithSystemPrompt(prompt string) Opt {
	return func(rt *Runtime) { rt.systemPrompt = prompt }
}

func WithMaxToolRounds(n int) Opt {
	return func(rt *Runtime) {
		if n > 0 {
			rt.maxToolRounds = n
		}
	}
}

func New(p provider.Provider, executor *ToolExecutor, store conversation.Store, registry *tools.Registry, opts ...Opt) *Runtime {
	rt := &Runtime{
		provider:      p,
		executor:      executor,
		store:         store,
		registry:      registry,
		systemPrompt:  defaultSystemPrompt,
		maxToolRounds: DefaultMaxToolRounds,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// RunStream executes one user turn and returns its event stream. The
// channel is closed after exactly one terminal event. Cancelling ctx
// stops further model and tool calls; an in-flight tool call still
// finishes so its result reaches the cache, but its events are dropped,
// and tool calls that never started are answered with a cancellation
// reply so the persisted log keeps every call paired.
func (rt *Runtime) RunStream(ctx context.Context, conversationID, userMessage string) <-chan Event {
	events := make(chan Event, 64)
	go func() {
		defer close(events)
		rt.run(ctx, conversationID, userMessage, events)
	}()
	return events
}

// emit delivers an event unless the consumer is gone.
func emit(ctx context.Context, events chan<- Event, event Event) {
	select {
	case events <- event:
	case <-ctx.Done():
	}
}

// persist appends to the durable log. Write failures degrade to a
// warning; the in-flight turn still completes.
func (rt *Runtime) persist(ctx context.Context, conversationID string, msg chat.Message) {
	if err := rt.store.AppendMessage(context.WithoutCancel(ctx), conversationID, msg); err != nil {
		slog.Warn("Failed to persist message, history may not survive restart",
			"conversation_id", conversationID, "role", msg.Role, "error", err)
	}
}

func (rt *Runtime) run(ctx context.Context, conversationID, userMessage string, events chan<- Event) {
	conv, err := rt.store.Get(ctx, conversationID)
	if err != nil {
		emit(ctx, events, Error("loading conversation: "+err.Error()))
		return
	}

	messages := make([]chat.Message, 0, len(conv.Messages)+2)
	messages = append(messages, trimDanglingToolCalls(conv.Messages)...)

	if !hasSystemMessage(messages) {
		system := chat.NewSystemMessage(rt.systemPrompt)
		messages = append(messages, system)
		rt.persist(ctx, conversationID, system)
	}

	user := chat.NewUserMessage(userMessage)
	messages = append(messages, user)
	rt.persist(ctx, conversationID, user)

	rounds := 0
	for {
		emit(ctx, events, Status(StateThinking))

		if ctx.Err() != nil {
			return
		}

		assistant, toolCalls, err := rt.completeOnce(ctx, messages, events)
		if err != nil {
			emit(ctx, events, Error(err.Error()))
			return
		}

		if len(toolCalls) == 0 {
			messages = append(messages, assistant)
			rt.persist(ctx, conversationID, assistant)
			emit(ctx, events, Status(StateResponding))
			emit(ctx, events, Complete(conversationID))
			return
		}

		// The limit check precedes the append so a faulted turn never
		// leaves an unanswered tool_calls message in the log.
		if rounds >= rt.maxToolRounds {
			slog.Warn("Tool round limit exceeded", "conversation_id", conversationID, "limit", rt.maxToolRounds)
			emit(ctx, events, Error(ErrToolRoundLimit.Error()))
			return
		}
		rounds++

		messages = append(messages, assistant)
		rt.persist(ctx, conversationID, assistant)
		emit(ctx, events, Status(StateToolCalling))
		emit(ctx, events, Status(StateExecutingTools))

		for i, toolCall := range toolCalls {
			if ctx.Err() != nil {
				// Cancelled mid-batch: answer the calls that never ran so
				// every persisted tool call still has a reply.
				for _, pending := range toolCalls[i:] {
					rt.persist(ctx, conversationID, chat.NewToolMessage(pending, "cancelled before execution"))
				}
				return
			}

			emit(ctx, events, ToolStart(toolCall))

			// Detached so a consumer disconnect does not waste the work:
			// the result still lands in the cache for the next request.
			result := rt.executor.Execute(context.WithoutCancel(ctx), toolCall)

			if len(result.RenderMessages) > 0 {
				emit(ctx, events, RenderUpdate(result.RenderMessages))
			}
			emit(ctx, events, ToolEnd(toolCall, result.Success))

			toolMsg := chat.NewToolMessage(toolCall, result.ModelContent())
			messages = append(messages, toolMsg)
			rt.persist(ctx, conversationID, toolMsg)
		}
	}
}

// completeOnce drives a single model call, forwarding text fragments as
// events and returning the finalized assistant message plus any
// reconstructed tool calls.
func (rt *Runtime) completeOnce(ctx context.Context, messages []chat.Message, events chan<- Event) (chat.Message, []tools.ToolCall, error) {
	stream, err := rt.provider.CreateChatCompletionStream(ctx, messages, rt.registry.Tools())
	if err != nil {
		return chat.Message{}, nil, err
	}
	defer stream.Close()

	parser := newStreamParser()
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return chat.Message{}, nil, err
		}

		for i := range response.Choices {
			if fragment := parser.feed(&response.Choices[i]); fragment != "" {
				emit(ctx, events, Text(fragment))
			}
		}
	}

	toolCalls := parser.finalize()
	return chat.NewAssistantMessage(parser.text(), toolCalls), toolCalls, nil
}

// trimDanglingToolCalls drops tool calls that never received a reply, so
// a log truncated by a crash or an old fault cannot poison later model
// requests (providers reject assistant tool_calls without tool replies).
func trimDanglingToolCalls(messages []chat.Message) []chat.Message {
	answered := make(map[string]bool)
	for i := range messages {
		if messages[i].Role == chat.MessageRoleTool && messages[i].ToolCallID != "" {
			answered[messages[i].ToolCallID] = true
		}
	}

	out := make([]chat.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == chat.MessageRoleAssistant && len(msg.ToolCalls) > 0 {
			var kept []tools.ToolCall
			for _, call := range msg.ToolCalls {
				if answered[call.ID] {
					kept = append(kept, call)
				}
			}
			if len(kept) == 0 && msg.Content == "" {
				continue
			}
			msg.ToolCalls = kept
		}
		out = append(out, msg)
	}
	return out
}

func hasSystemMessage(messages []chat.Message) bool {
	for i := range messages {
		if messages[i].Role == chat.MessageRoleSystem {
			return true
		}
	}
	return false
}

func decodeArguments(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
