package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jarz/rentagent/pkg/toolcache"
	"github.com/jarz/rentagent/pkg/tools"
)

// ToolExecutor dispatches tool calls against the registry with a durable
// result cache in front. It never returns an error: every fault inside a
// tool, including panics and unknown names, becomes a failed result so
// one misbehaving tool cannot abort the turn.
type ToolExecutor struct {
	registry *tools.Registry
	cache    toolcache.Store
	cacheTTL time.Duration
	tracer   trace.Tracer
}

func NewToolExecutor(registry *tools.Registry, cache toolcache.Store, cacheTTL time.Duration) *ToolExecutor {
	if cacheTTL <= 0 {
		cacheTTL = toolcache.DefaultTTL
	}
	return &ToolExecutor{
		registry: registry,
		cache:    cache,
		cacheTTL: cacheTTL,
		tracer:   otel.Tracer("rentagent/runtime"),
	}
}

// Execute resolves one tool call, consulting the cache first. Cached and
// fresh results are indistinguishable to the caller.
func (e *ToolExecutor) Execute(ctx context.Context, toolCall tools.ToolCall) *tools.ToolCallResult {
	name := toolCall.Function.Name

	ctx, span := e.tracer.Start(ctx, "tool.execute",
		trace.WithAttributes(attribute.String("tool.name", name)))
	defer span.End()

	key := toolcache.Key(name, toolCall.Function.Arguments)
	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, key); ok {
			var result tools.ToolCallResult
			if err := json.Unmarshal(cached, &result); err == nil {
				slog.Debug("Tool result served from cache", "tool", name)
				span.SetAttributes(attribute.Bool("tool.cached", true))
				return &result
			}
			// Undecodable entry; fall through to a fresh run.
			slog.Debug("Cached tool result undecodable, re-executing", "tool", name)
		}
	}

	result := e.run(ctx, toolCall)

	if e.cache != nil && result.Success {
		if payload, err := json.Marshal(result); err == nil {
			if err := e.cache.Set(ctx, key, payload, e.cacheTTL); err != nil {
				slog.Warn("Tool result cache write failed", "tool", name, "error", err)
			}
		}
	}

	return result
}

func (e *ToolExecutor) run(ctx context.Context, toolCall tools.ToolCall) (result *tools.ToolCallResult) {
	name := toolCall.Function.Name

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Tool panicked", "tool", name, "panic", r)
			result = tools.ResultError(fmt.Sprintf("tool %s failed: %v", name, r))
		}
	}()

	tool, ok := e.registry.Lookup(name)
	if !ok {
		slog.Warn("Unknown tool requested", "tool", name)
		return tools.ResultError(fmt.Sprintf("unknown tool: %s", name))
	}

	start := time.Now()
	result, err := tool.Handler(ctx, toolCall)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		slog.Warn("Tool execution failed", "tool", name, "duration", elapsed, "error", err)
		return tools.ResultError(fmt.Sprintf("tool %s failed: %v", name, err))
	case result == nil:
		return tools.ResultError(fmt.Sprintf("tool %s returned no result", name))
	default:
		slog.Debug("Tool executed", "tool", name, "duration", elapsed, "success", result.Success)
		return result
	}
}
