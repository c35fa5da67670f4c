package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jarz/rentagent/pkg/tools"
)

type memCache struct {
	entries map[string][]byte
	sets    int
	failSet bool
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	value, ok := c.entries[key]
	return value, ok
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if c.failSet {
		return errors.New("disk full")
	}
	c.sets++
	c.entries[key] = value
	return nil
}

func forecastCall(args string) tools.ToolCall {
	return tools.ToolCall{
		ID:   "call_1",
		Type: tools.ToolTypeFunction,
		Function: tools.FunctionCall{
			Name:      "get_rent_forecast",
			Arguments: args,
		},
	}
}

func registryWith(t *testing.T, name string, handler tools.HandlerFunc) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.Tool{
		Name:        name,
		Description: name,
		Parameters:  map[string]any{"type": "object"},
		Handler:     handler,
	}))
	return reg
}

func TestExecutorCachesSuccessfulResults(t *testing.T) {
	invocations := 0
	reg := registryWith(t, "get_rent_forecast", func(context.Context, tools.ToolCall) (*tools.ToolCallResult, error) {
		invocations++
		return tools.ResultSuccess("P50 is 2100", map[string]any{"p50": 2100}), nil
	})

	executor := NewToolExecutor(reg, newMemCache(), time.Hour)

	first := executor.Execute(context.Background(), forecastCall(`{"location":"NW1"}`))
	second := executor.Execute(context.Background(), forecastCall(`{"location":"NW1"}`))

	assert.Equal(t, 1, invocations, "second call should be served from cache")
	assert.True(t, first.Success)
	assert.Equal(t, first.Summary, second.Summary)
	assert.JSONEq(t, string(first.Output), string(second.Output))
}

func TestExecutorCacheKeyIgnoresArgumentOrder(t *testing.T) {
	invocations := 0
	reg := registryWith(t, "get_rent_forecast", func(context.Context, tools.ToolCall) (*tools.ToolCallResult, error) {
		invocations++
		return tools.ResultSuccess("ok", nil), nil
	})

	executor := NewToolExecutor(reg, newMemCache(), time.Hour)

	executor.Execute(context.Background(), forecastCall(`{"location":"NW1","horizon_months":6}`))
	executor.Execute(context.Background(), forecastCall(`{"horizon_months":6,"location":"NW1"}`))

	assert.Equal(t, 1, invocations)
}

func TestExecutorDoesNotCacheFailures(t *testing.T) {
	invocations := 0
	reg := registryWith(t, "get_rent_forecast", func(context.Context, tools.ToolCall) (*tools.ToolCallResult, error) {
		invocations++
		if invocations == 1 {
			return nil, errors.New("upstream timeout")
		}
		return tools.ResultSuccess("recovered", nil), nil
	})

	cache := newMemCache()
	executor := NewToolExecutor(reg, cache, time.Hour)

	first := executor.Execute(context.Background(), forecastCall(`{}`))
	assert.False(t, first.Success)
	assert.Zero(t, cache.sets, "failed result must not be cached")

	second := executor.Execute(context.Background(), forecastCall(`{}`))
	assert.True(t, second.Success)
	assert.Equal(t, 2, invocations)
}

func TestExecutorContainsHandlerError(t *testing.T) {
	reg := registryWith(t, "get_rent_forecast", func(context.Context, tools.ToolCall) (*tools.ToolCallResult, error) {
		return nil, errors.New("scansan unavailable")
	})

	result := NewToolExecutor(reg, nil, time.Hour).Execute(context.Background(), forecastCall(`{}`))
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Summary, "scansan unavailable")
}

func TestExecutorContainsPanic(t *testing.T) {
	reg := registryWith(t, "get_rent_forecast", func(context.Context, tools.ToolCall) (*tools.ToolCallResult, error) {
		panic("nil map write")
	})

	result := NewToolExecutor(reg, nil, time.Hour).Execute(context.Background(), forecastCall(`{}`))
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Summary, "nil map write")
}

func TestExecutorUnknownTool(t *testing.T) {
	executor := NewToolExecutor(tools.NewRegistry(), nil, time.Hour)

	result := executor.Execute(context.Background(), forecastCall(`{}`))
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Summary, "unknown tool")
}

func TestExecutorNilResultGuard(t *testing.T) {
	reg := registryWith(t, "get_rent_forecast", func(context.Context, tools.ToolCall) (*tools.ToolCallResult, error) {
		return nil, nil
	})

	result := NewToolExecutor(reg, nil, time.Hour).Execute(context.Background(), forecastCall(`{}`))
	require.NotNil(t, result)
	assert.False(t, result.Success)
}

func TestExecutorCorruptCacheEntryReexecutes(t *testing.T) {
	invocations := 0
	reg := registryWith(t, "get_rent_forecast", func(context.Context, tools.ToolCall) (*tools.ToolCallResult, error) {
		invocations++
		return tools.ResultSuccess("fresh", nil), nil
	})

	cache := newMemCache()
	executor := NewToolExecutor(reg, cache, time.Hour)

	call := forecastCall(`{"location":"NW1"}`)
	executor.Execute(context.Background(), call)
	require.Equal(t, 1, invocations)

	for key := range cache.entries {
		cache.entries[key] = []byte("not json")
	}

	result := executor.Execute(context.Background(), call)
	assert.Equal(t, 2, invocations)
	assert.True(t, result.Success)
}

func TestExecutorCacheWriteFailureIsNonFatal(t *testing.T) {
	reg := registryWith(t, "get_rent_forecast", func(context.Context, tools.ToolCall) (*tools.ToolCallResult, error) {
		return tools.ResultSuccess("ok", nil), nil
	})

	cache := newMemCache()
	cache.failSet = true
	result := NewToolExecutor(reg, cache, time.Hour).Execute(context.Background(), forecastCall(`{}`))
	assert.True(t, result.Success)
}
