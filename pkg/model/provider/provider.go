// Package provider defines the boundary between the conversation
// runtime and the language model backend.
package provider

import (
	"context"

	"github.com/jarz/rentagent/pkg/chat"
	"github.com/jarz/rentagent/pkg/tools"
)

// Provider is a chat completion backend.
type Provider interface {
	// CreateChatCompletionStream starts a streaming completion. The
	// returned stream yields deltas until io.EOF.
	CreateChatCompletionStream(ctx context.Context, messages []chat.Message, requestTools []tools.Tool) (chat.MessageStream, error)

	// CreateChatCompletion runs a non-streamed completion and returns the
	// assistant text. Used for auxiliary generations like conversation
	// titles.
	CreateChatCompletion(ctx context.Context, messages []chat.Message) (string, error)
}
