package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jarz/rentagent/pkg/chat"
	"github.com/jarz/rentagent/pkg/sqliteutil"
	"github.com/jarz/rentagent/pkg/tools"
)

// SQLiteStore persists conversations to SQLite so history survives
// restarts. Message order is the rowid append order.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, err
	}

	_, err = db.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_call_id TEXT NOT NULL DEFAULT '',
			tool_name TEXT NOT NULL DEFAULT '',
			tool_calls TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating conversation tables: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, title string) (*Conversation, error) {
	now := time.Now().UTC().Truncate(time.Second)
	conv := &Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)",
		conv.ID, conv.Title, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return conv, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Conversation, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	var conv Conversation
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?", id,
	).Scan(&conv.ID, &conv.Title, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", id, err)
	}
	conv.CreatedAt = time.Unix(createdAt, 0).UTC()
	conv.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, tool_call_id, tool_name, tool_calls, created_at
		FROM messages WHERE conversation_id = ? ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("loading messages for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg chat.Message
		var role, toolCallsJSON string
		var msgCreated int64
		if err := rows.Scan(&role, &msg.Content, &msg.ToolCallID, &msg.ToolName, &toolCallsJSON, &msgCreated); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Role = chat.MessageRole(role)
		msg.CreatedAt = time.Unix(msgCreated, 0).UTC()
		if toolCallsJSON != "" {
			var toolCalls []tools.ToolCall
			if err := json.Unmarshal([]byte(toolCallsJSON), &toolCalls); err != nil {
				return nil, fmt.Errorf("decoding tool calls: %w", err)
			}
			msg.ToolCalls = toolCalls
		}
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &conv, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, id string, msg chat.Message) error {
	if id == "" {
		return ErrEmptyID
	}

	toolCallsJSON := ""
	if len(msg.ToolCalls) > 0 {
		raw, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("encoding tool calls: %w", err)
		}
		toolCallsJSON = string(raw)
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	now := time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE conversations SET updated_at = ? WHERE id = ?", now, id)
	if err != nil {
		return fmt.Errorf("refreshing conversation %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, role, content, tool_call_id, tool_name, tool_calls, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, string(msg.Role), msg.Content, msg.ToolCallID, msg.ToolName, toolCallsJSON, createdAt.Unix())
	if err != nil {
		return fmt.Errorf("appending message to %s: %w", id, err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) SetTitle(ctx context.Context, id, title string) error {
	if id == "" {
		return ErrEmptyID
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?",
		title, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("setting title for %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Summary, error) {
	query := "SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var summary Summary
		var createdAt, updatedAt int64
		if err := rows.Scan(&summary.ID, &summary.Title, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		summary.CreatedAt = time.Unix(createdAt, 0).UTC()
		summary.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}
