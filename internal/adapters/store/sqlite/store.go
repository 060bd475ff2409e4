// Package sqlite is the durable store for scripts, bot configurations and chat
// history. Every write is an upsert on the record's natural key, so concurrent
// writers resolve to last-write-wins without client-side locking.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bnema/botsmith/internal/ports"
)

const storeDirMode = 0o700

const schema = `
CREATE TABLE IF NOT EXISTS scripts (
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	content TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	chat_id TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	UNIQUE(user_id, name)
);
CREATE INDEX IF NOT EXISTS idx_scripts_chat ON scripts(user_id, chat_id);

CREATE TABLE IF NOT EXISTS bot_configurations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	strategy TEXT NOT NULL,
	config_json TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bot_configurations_strategy ON bot_configurations(user_id, strategy);

CREATE TABLE IF NOT EXISTS chat_history (
	user_id TEXT NOT NULL,
	id TEXT NOT NULL,
	url_id TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	messages_json TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	PRIMARY KEY(user_id, id)
);
`

type Store struct {
	db     *sql.DB
	dbPath string
}

var (
	_ ports.ScriptRepository      = (*Store)(nil)
	_ ports.BotConfigRepository   = (*Store)(nil)
	_ ports.ChatHistoryRepository = (*Store)(nil)
)

func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), storeDirMode); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, dbPath: path}
	if err := store.initialize(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("configure store: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initialize store schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.dbPath
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
