package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const DefaultSQLitePath = "db/checkpoint.sqlite"

// SQLiteStore persists checkpoints in a single local database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the parent directory and the table when missing.
// A path of ":memory:" keeps everything in process.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create checkpoint dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serialises writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id  TEXT PRIMARY KEY,
			messages   TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, threadID string) (Checkpoint, bool, error) {
	var raw string
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT messages, updated_at FROM checkpoints WHERE thread_id = ?`, threadID).Scan(&raw, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{ThreadID: threadID}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}
	msgs, err := decodeMessages([]byte(raw))
	if err != nil {
		return Checkpoint{}, false, err
	}
	return Checkpoint{ThreadID: threadID, Messages: msgs, UpdatedAt: time.UnixMilli(updated).UTC()}, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, cp Checkpoint) error {
	stamp(&cp)
	raw, err := encodeMessages(cp.Messages)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, messages, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET messages = excluded.messages, updated_at = excluded.updated_at`,
		cp.ThreadID, string(raw), cp.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.ThreadID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
