package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jarz/rentagent/pkg/a2ui"
	"github.com/jarz/rentagent/pkg/chat"
	"github.com/jarz/rentagent/pkg/conversation"
	"github.com/jarz/rentagent/pkg/model/provider"
	"github.com/jarz/rentagent/pkg/tools"
)

type scriptedStream struct {
	chunks []chat.MessageStreamResponse
	pos    int
}

func (s *scriptedStream) Recv() (chat.MessageStreamResponse, error) {
	if s.pos >= len(s.chunks) {
		return chat.MessageStreamResponse{}, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *scriptedStream) Close() {}

// scriptedProvider replays one scripted stream per model call. When the
// scripts run out it keeps replaying the last one.
type scriptedProvider struct {
	scripts [][]chat.MessageStreamResponse
	err     error
	calls   int
}

func (p *scriptedProvider) CreateChatCompletionStream(context.Context, []chat.Message, []tools.Tool) (chat.MessageStream, error) {
	if p.err != nil {
		return nil, p.err
	}
	idx := p.calls
	if idx >= len(p.scripts) {
		idx = len(p.scripts) - 1
	}
	p.calls++
	return &scriptedStream{chunks: p.scripts[idx]}, nil
}

func (p *scriptedProvider) CreateChatCompletion(context.Context, []chat.Message) (string, error) {
	return "", errors.New("not scripted")
}

// capturingProvider additionally records the messages of every request.
type capturingProvider struct {
	scriptedProvider
	seen [][]chat.Message
}

func (p *capturingProvider) CreateChatCompletionStream(ctx context.Context, messages []chat.Message, requestTools []tools.Tool) (chat.MessageStream, error) {
	p.seen = append(p.seen, append([]chat.Message(nil), messages...))
	return p.scriptedProvider.CreateChatCompletionStream(ctx, messages, requestTools)
}

func chunk(choices ...chat.MessageStreamChoice) chat.MessageStreamResponse {
	return chat.MessageStreamResponse{Choices: choices}
}

func textChunk(content string) chat.MessageStreamResponse {
	return chunk(chat.MessageStreamChoice{Delta: chat.MessageDelta{Content: content}})
}

func toolChunk(index int, id, name, args string) chat.MessageStreamResponse {
	return chunk(chat.MessageStreamChoice{Delta: chat.MessageDelta{
		ToolCalls: []tools.ToolCall{{
			Index:    slot(index),
			ID:       id,
			Function: tools.FunctionCall{Name: name, Arguments: args},
		}},
	}})
}

func finishChunk(reason chat.FinishReason) chat.MessageStreamResponse {
	return chunk(chat.MessageStreamChoice{FinishReason: reason})
}

// textTurn is a scripted model call that answers with plain text.
func textTurn(content string) []chat.MessageStreamResponse {
	return []chat.MessageStreamResponse{textChunk(content), finishChunk(chat.FinishReasonStop)}
}

// toolTurn is a scripted model call that requests one tool.
func toolTurn(name, args string) []chat.MessageStreamResponse {
	return []chat.MessageStreamResponse{
		toolChunk(0, "call_"+name, name, args),
		finishChunk(chat.FinishReasonToolCalls),
	}
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, event)
		case <-timeout:
			t.Fatalf("event stream did not close; got %d events", len(out))
		}
	}
}

func eventTypes(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, event := range events {
		switch e := event.(type) {
		case *StatusEvent:
			out = append(out, "status:"+string(e.State))
		case *TextEvent:
			out = append(out, "text")
		case *ToolStartEvent:
			out = append(out, "tool_start:"+e.Tool)
		case *ToolEndEvent:
			out = append(out, fmt.Sprintf("tool_end:%s:%t", e.Tool, e.Success))
		case *RenderUpdateEvent:
			out = append(out, "render_update")
		case *ErrorEvent:
			out = append(out, "error")
		case *CompleteEvent:
			out = append(out, "complete")
		}
	}
	return out
}

func newTurnFixture(t *testing.T, p provider.Provider, handler tools.HandlerFunc, opts ...Opt) (*Runtime, conversation.Store, string) {
	t.Helper()

	reg := tools.NewRegistry()
	if handler != nil {
		require.NoError(t, reg.Register(tools.Tool{
			Name:        "get_rent_forecast",
			Description: "forecast",
			Parameters:  map[string]any{"type": "object"},
			Handler:     handler,
		}))
	}

	store := conversation.NewInMemoryStore()
	conv, err := store.Create(context.Background(), "")
	require.NoError(t, err)

	executor := NewToolExecutor(reg, newMemCache(), time.Hour)
	return New(p, executor, store, reg, opts...), store, conv.ID
}

func TestRunStreamPlainTextTurn(t *testing.T) {
	p := &scriptedProvider{scripts: [][]chat.MessageStreamResponse{textTurn("Rents in Camden average 2100 GBP.")}}
	rt, store, convID := newTurnFixture(t, p, nil)

	events := collect(t, rt.RunStream(context.Background(), convID, "What do rents in Camden look like?"))

	assert.Equal(t, []string{
		"status:thinking",
		"text",
		"status:responding",
		"complete",
	}, eventTypes(events))

	complete := events[len(events)-1].(*CompleteEvent)
	assert.Equal(t, convID, complete.ConversationID)

	conv, err := store.Get(context.Background(), convID)
	require.NoError(t, err)
	// system + user + assistant.
	require.Len(t, conv.Messages, 3)
	assert.Equal(t, chat.MessageRoleSystem, conv.Messages[0].Role)
	assert.Equal(t, chat.MessageRoleUser, conv.Messages[1].Role)
	assert.Equal(t, "Rents in Camden average 2100 GBP.", conv.Messages[2].Content)
}

func TestRunStreamSingleToolTurn(t *testing.T) {
	p := &scriptedProvider{scripts: [][]chat.MessageStreamResponse{
		toolTurn("get_rent_forecast", `{"location":"NW1"}`),
		textTurn("Camden rents should reach about 2100 GBP."),
	}}

	handler := func(context.Context, tools.ToolCall) (*tools.ToolCallResult, error) {
		result := tools.ResultSuccess("P50 is 2100 GBP/month", map[string]any{"p50": 2100})
		result.RenderMessages = []a2ui.Message{{}}
		return result, nil
	}

	rt, store, convID := newTurnFixture(t, p, handler)
	events := collect(t, rt.RunStream(context.Background(), convID, "Forecast NW1"))

	assert.Equal(t, []string{
		"status:thinking",
		"status:tool_calling",
		"status:executing_tools",
		"tool_start:get_rent_forecast",
		"render_update",
		"tool_end:get_rent_forecast:true",
		"status:thinking",
		"text",
		"status:responding",
		"complete",
	}, eventTypes(events))

	conv, err := store.Get(context.Background(), convID)
	require.NoError(t, err)
	// system, user, assistant(tool_calls), tool, assistant.
	require.Len(t, conv.Messages, 5)

	assistant := conv.Messages[2]
	require.Len(t, assistant.ToolCalls, 1)
	toolMsg := conv.Messages[3]
	assert.Equal(t, chat.MessageRoleTool, toolMsg.Role)
	assert.Equal(t, assistant.ToolCalls[0].ID, toolMsg.ToolCallID)
	assert.Equal(t, "P50 is 2100 GBP/month", toolMsg.Content)
}

func TestRunStreamToolStartCarriesArguments(t *testing.T) {
	p := &scriptedProvider{scripts: [][]chat.MessageStreamResponse{
		toolTurn("get_rent_forecast", `{"location":"NW1","horizon_months":6}`),
		textTurn("done"),
	}}
	handler := func(context.Context, tools.ToolCall) (*tools.ToolCallResult, error) {
		return tools.ResultSuccess("ok", nil), nil
	}

	rt, _, convID := newTurnFixture(t, p, handler)
	events := collect(t, rt.RunStream(context.Background(), convID, "go"))

	var start *ToolStartEvent
	for _, event := range events {
		if e, ok := event.(*ToolStartEvent); ok {
			start = e
		}
	}
	require.NotNil(t, start)
	assert.Equal(t, "get_rent_forecast", start.Tool)
	assert.Equal(t, "NW1", start.Arguments["location"])
}

func TestRunStreamCacheHitAcrossTurns(t *testing.T) {
	script := [][]chat.MessageStreamResponse{
		toolTurn("get_rent_forecast", `{"location":"NW1"}`),
		textTurn("answer one"),
		toolTurn("get_rent_forecast", `{"location":"NW1"}`),
		textTurn("answer two"),
	}
	p := &scriptedProvider{scripts: script}

	invocations := 0
	handler := func(context.Context, tools.ToolCall) (*tools.ToolCallResult, error) {
		invocations++
		return tools.ResultSuccess("cached forecast", nil), nil
	}

	rt, _, convID := newTurnFixture(t, p, handler)

	first := collect(t, rt.RunStream(context.Background(), convID, "forecast NW1"))
	second := collect(t, rt.RunStream(context.Background(), convID, "forecast NW1 again"))

	assert.Equal(t, 1, invocations, "repeated identical call should hit the cache")

	// Cache hits still surface the full tool event pair.
	assert.Contains(t, eventTypes(second), "tool_start:get_rent_forecast")
	assert.Contains(t, eventTypes(second), "tool_end:get_rent_forecast:true")
	assert.Equal(t, "complete", eventTypes(first)[len(first)-1])
	assert.Equal(t, "complete", eventTypes(second)[len(second)-1])
}

func TestRunStreamToolFailureStillCompletes(t *testing.T) {
	p := &scriptedProvider{scripts: [][]chat.MessageStreamResponse{
		toolTurn("get_rent_forecast", `{"location":"NW1"}`),
		textTurn("I could not fetch the forecast."),
	}}
	handler := func(context.Context, tools.ToolCall) (*tools.ToolCallResult, error) {
		return nil, errors.New("upstream down")
	}

	rt, store, convID := newTurnFixture(t, p, handler)
	events := collect(t, rt.RunStream(context.Background(), convID, "forecast NW1"))

	types := eventTypes(events)
	assert.Contains(t, types, "tool_end:get_rent_forecast:false")
	assert.Equal(t, "complete", types[len(types)-1])

	conv, err := store.Get(context.Background(), convID)
	require.NoError(t, err)
	toolMsg := conv.Messages[3]
	assert.Contains(t, toolMsg.Content, "upstream down")
}

func TestRunStreamProviderErrorEmitsSingleError(t *testing.T) {
	p := &scriptedProvider{err: errors.New("model backend unreachable")}
	rt, _, convID := newTurnFixture(t, p, nil)

	events := collect(t, rt.RunStream(context.Background(), convID, "hello"))
	types := eventTypes(events)

	assert.Equal(t, []string{"status:thinking", "error"}, types)
	errEvent := events[len(events)-1].(*ErrorEvent)
	assert.Contains(t, errEvent.Error, "model backend unreachable")
}

func TestRunStreamUnknownConversation(t *testing.T) {
	p := &scriptedProvider{scripts: [][]chat.MessageStreamResponse{textTurn("hi")}}
	rt, _, _ := newTurnFixture(t, p, nil)

	events := collect(t, rt.RunStream(context.Background(), "missing", "hello"))
	require.Len(t, events, 1)
	errEvent, ok := events[0].(*ErrorEvent)
	require.True(t, ok)
	assert.Contains(t, errEvent.Error, "not found")
}

func TestRunStreamBoundedToolRounds(t *testing.T) {
	// The model requests a tool on every round and never converges.
	p := &scriptedProvider{scripts: [][]chat.MessageStreamResponse{
		toolTurn("get_rent_forecast", `{"location":"NW1"}`),
	}}

	invocations := 0
	handler := func(ctx context.Context, call tools.ToolCall) (*tools.ToolCallResult, error) {
		invocations++
		// Distinct output per round so the cache never short-circuits the loop.
		return tools.ResultSuccess(fmt.Sprintf("round %d", invocations), nil), nil
	}

	const limit = 3
	rt, _, convID := newTurnFixture(t, p, handler, WithMaxToolRounds(limit))

	// Defeat caching by making each model call ask with fresh arguments.
	p.scripts = [][]chat.MessageStreamResponse{}
	for i := 0; i <= limit; i++ {
		p.scripts = append(p.scripts, toolTurn("get_rent_forecast", fmt.Sprintf(`{"location":"NW%d"}`, i)))
	}

	events := collect(t, rt.RunStream(context.Background(), convID, "loop forever"))
	types := eventTypes(events)

	assert.Equal(t, limit, invocations, "exactly the configured number of tool rounds run")
	assert.Equal(t, "error", types[len(types)-1])
	errEvent := events[len(events)-1].(*ErrorEvent)
	assert.Equal(t, ErrToolRoundLimit.Error(), errEvent.Error)
	assert.NotContains(t, types, "complete")
}

func TestRunStreamRoundLimitKeepsLogPaired(t *testing.T) {
	p := &scriptedProvider{scripts: [][]chat.MessageStreamResponse{
		toolTurn("get_rent_forecast", `{"location":"NW1"}`),
		toolTurn("get_rent_forecast", `{"location":"E14"}`),
	}}
	handler := func(context.Context, tools.ToolCall) (*tools.ToolCallResult, error) {
		return tools.ResultSuccess("ok", nil), nil
	}

	rt, store, convID := newTurnFixture(t, p, handler, WithMaxToolRounds(1))
	events := collect(t, rt.RunStream(context.Background(), convID, "loop"))

	types := eventTypes(events)
	assert.Equal(t, "error", types[len(types)-1])

	// The faulted turn must not leave an unanswered tool_calls message:
	// the log ends on the reply to the one batch that ran.
	conv, err := store.Get(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 4)
	assert.Equal(t, chat.MessageRoleTool, conv.Messages[3].Role)
	assert.Equal(t, conv.Messages[2].ToolCalls[0].ID, conv.Messages[3].ToolCallID)
}

func TestRunStreamCancelledMidBatchAnswersRemainingCalls(t *testing.T) {
	p := &scriptedProvider{scripts: [][]chat.MessageStreamResponse{
		{
			toolChunk(0, "call_a", "get_rent_forecast", `{"location":"NW1"}`),
			toolChunk(1, "call_b", "get_rent_forecast", `{"location":"E14"}`),
			finishChunk(chat.FinishReasonToolCalls),
		},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	handler := func(context.Context, tools.ToolCall) (*tools.ToolCallResult, error) {
		// The consumer disconnects while the first call is running.
		cancel()
		return tools.ResultSuccess("first finished", nil), nil
	}

	rt, store, convID := newTurnFixture(t, p, handler)
	collect(t, rt.RunStream(ctx, convID, "compare NW1 and E14"))

	conv, err := store.Get(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 5)

	assistant := conv.Messages[2]
	require.Len(t, assistant.ToolCalls, 2)
	assert.Equal(t, "call_a", conv.Messages[3].ToolCallID)
	assert.Equal(t, "first finished", conv.Messages[3].Content)
	assert.Equal(t, "call_b", conv.Messages[4].ToolCallID)
	assert.Contains(t, conv.Messages[4].Content, "cancelled")
}

func TestRunStreamTrimsDanglingHistory(t *testing.T) {
	p := &capturingProvider{scriptedProvider: scriptedProvider{
		scripts: [][]chat.MessageStreamResponse{textTurn("recovered")},
	}}
	rt, store, convID := newTurnFixture(t, p, nil)

	// A log truncated mid-turn: tool calls without replies.
	dangling := chat.NewAssistantMessage("", []tools.ToolCall{{
		ID:       "call_lost",
		Type:     tools.ToolTypeFunction,
		Function: tools.FunctionCall{Name: "get_rent_forecast", Arguments: `{"location":"NW1"}`},
	}})
	require.NoError(t, store.AppendMessage(context.Background(), convID, dangling))

	events := collect(t, rt.RunStream(context.Background(), convID, "still there?"))
	assert.Equal(t, "complete", eventTypes(events)[len(events)-1])

	require.NotEmpty(t, p.seen)
	for _, msg := range p.seen[0] {
		for _, call := range msg.ToolCalls {
			assert.NotEqual(t, "call_lost", call.ID, "unanswered tool call forwarded to the model")
		}
	}
}

func TestTrimDanglingToolCalls(t *testing.T) {
	answered := tools.ToolCall{ID: "call_ok", Type: tools.ToolTypeFunction,
		Function: tools.FunctionCall{Name: "search_location", Arguments: `{}`}}
	lost := tools.ToolCall{ID: "call_lost", Type: tools.ToolTypeFunction,
		Function: tools.FunctionCall{Name: "get_rent_forecast", Arguments: `{}`}}

	messages := []chat.Message{
		chat.NewUserMessage("hi"),
		chat.NewAssistantMessage("", []tools.ToolCall{answered, lost}),
		chat.NewToolMessage(answered, "found it"),
		chat.NewAssistantMessage("", []tools.ToolCall{lost}),
	}

	trimmed := trimDanglingToolCalls(messages)
	require.Len(t, trimmed, 3, "fully unanswered assistant message dropped")

	partial := trimmed[1]
	require.Len(t, partial.ToolCalls, 1)
	assert.Equal(t, "call_ok", partial.ToolCalls[0].ID)
	assert.Equal(t, chat.MessageRoleTool, trimmed[2].Role)
}

func TestRunStreamPairsEveryToolCallWithResult(t *testing.T) {
	p := &scriptedProvider{scripts: [][]chat.MessageStreamResponse{
		{
			toolChunk(0, "call_a", "get_rent_forecast", `{"location":"NW1"}`),
			toolChunk(1, "call_b", "get_rent_forecast", `{"location":"E14"}`),
			finishChunk(chat.FinishReasonToolCalls),
		},
		textTurn("compared"),
	}}
	handler := func(_ context.Context, call tools.ToolCall) (*tools.ToolCallResult, error) {
		return tools.ResultSuccess("ok "+call.ID, nil), nil
	}

	rt, store, convID := newTurnFixture(t, p, handler)
	collect(t, rt.RunStream(context.Background(), convID, "compare NW1 and E14"))

	conv, err := store.Get(context.Background(), convID)
	require.NoError(t, err)

	// Every assistant tool call must be answered by a tool message before
	// the next assistant message.
	for i, msg := range conv.Messages {
		if msg.Role != chat.MessageRoleAssistant || len(msg.ToolCalls) == 0 {
			continue
		}
		for j, call := range msg.ToolCalls {
			pos := i + 1 + j
			require.Less(t, pos, len(conv.Messages))
			reply := conv.Messages[pos]
			assert.Equal(t, chat.MessageRoleTool, reply.Role)
			assert.Equal(t, call.ID, reply.ToolCallID)
		}
	}
}

func TestRunStreamCancelledContextStopsTurn(t *testing.T) {
	p := &scriptedProvider{scripts: [][]chat.MessageStreamResponse{textTurn("hi")}}
	rt, _, convID := newTurnFixture(t, p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := collect(t, rt.RunStream(ctx, convID, "hello"))
	assert.NotContains(t, eventTypes(events), "complete")
}

func TestRunStreamSystemPromptInjectedOnce(t *testing.T) {
	p := &scriptedProvider{scripts: [][]chat.MessageStreamResponse{textTurn("one"), textTurn("two")}}
	rt, store, convID := newTurnFixture(t, p, nil)

	collect(t, rt.RunStream(context.Background(), convID, "first"))
	collect(t, rt.RunStream(context.Background(), convID, "second"))

	conv, err := store.Get(context.Background(), convID)
	require.NoError(t, err)

	systems := 0
	for _, msg := range conv.Messages {
		if msg.Role == chat.MessageRoleSystem {
			systems++
		}
	}
	assert.Equal(t, 1, systems)
}
