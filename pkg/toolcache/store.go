// Package toolcache is the durable TTL cache for tool results. Entries are
// keyed by a hash of the tool name and its canonicalized arguments, so
// structurally equal requests hit the same entry regardless of key order
// in the argument payload.
package toolcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/jarz/rentagent/pkg/sqliteutil"
)

// DefaultTTL matches the one-hour window identical tool invocations stay
// cheap and deterministic for.
const DefaultTTL = time.Hour

// Store is a durable get/set-with-expiry key/value store.
type Store interface {
	// Get returns the stored value for key, or ok=false on a miss.
	// Expired and undecodable entries are misses, never errors.
	Get(ctx context.Context, key string) (value []byte, ok bool)

	// Set stores value under key until now+ttl, overwriting atomically.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key builds the cache key for a tool invocation. Arguments are decoded
// and re-marshaled so that key order and whitespace in the raw text do
// not change the key.
func Key(toolName, rawArguments string) string {
	canonical := canonicalArguments(rawArguments)
	sum := sha256.Sum256([]byte(toolName + ":" + canonical))
	return hex.EncodeToString(sum[:])
}

func canonicalArguments(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "{}"
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		// Not an object; fall back to the raw text.
		return raw
	}
	keys := make([]string, 0, len(decoded))
	for k := range decoded {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kj, _ := json.Marshal(k)
		vj, _ := json.Marshal(decoded[k])
		b.Write(kj)
		b.WriteByte(':')
		b.Write(vj)
	}
	b.WriteByte('}')
	return b.String()
}

// SQLiteStore persists entries to SQLite with an in-process hot tier in
// front, so repeated hits within one process skip the database.
type SQLiteStore struct {
	db  *sql.DB
	hot *gocache.Cache
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and creates if needed) the cache database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, err
	}

	_, err = db.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache table: %w", err)
	}

	return &SQLiteStore{
		db:  db,
		hot: gocache.New(DefaultTTL, 10*time.Minute),
	}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := s.hot.Get(key); ok {
		if value, ok := v.([]byte); ok {
			return value, true
		}
	}

	var value []byte
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM cache_entries WHERE key = ?", key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		slog.Debug("Cache read failed, treating as miss", "key", key, "error", err)
		return nil, false
	}

	now := time.Now().Unix()
	if expiresAt <= now {
		// Lazy purge; correctness never depends on a background sweep.
		if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ? AND expires_at <= ?", key, now); err != nil {
			slog.Debug("Cache purge failed", "key", key, "error", err)
		}
		s.hot.Delete(key)
		return nil, false
	}

	s.hot.Set(key, value, time.Until(time.Unix(expiresAt, 0)))
	return value, true
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	expiresAt := time.Now().Add(ttl).Unix()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}

	s.hot.Set(key, value, ttl)
	return nil
}

// Clear removes every entry, memory and disk.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.hot.Flush()
	_, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries")
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
