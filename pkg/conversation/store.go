// Package conversation persists the append-only message log per
// conversation. Messages are immutable once appended; the only mutations
// are appends and the updated-at refresh they imply.
package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/jarz/rentagent/pkg/chat"
)

var (
	ErrEmptyID  = errors.New("conversation id cannot be empty")
	ErrNotFound = errors.New("conversation not found")
)

// Conversation is one message log with its metadata.
type Conversation struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Messages  []chat.Message `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Summary is the listing view of a conversation, without its messages.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the durable conversation log.
type Store interface {
	// Create starts a new conversation and returns it with a fresh id.
	Create(ctx context.Context, title string) (*Conversation, error)

	// Get loads a conversation with its messages in append order.
	Get(ctx context.Context, id string) (*Conversation, error)

	// AppendMessage appends one message and refreshes updated-at.
	AppendMessage(ctx context.Context, id string, msg chat.Message) error

	// SetTitle replaces the conversation title.
	SetTitle(ctx context.Context, id, title string) error

	// List returns summaries ordered by most recently updated. A
	// non-positive limit returns everything.
	List(ctx context.Context, limit int) ([]Summary, error)
}
