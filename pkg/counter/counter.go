// Package counter tracks how often each user says a set of phrases.
package counter

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const DefaultPath = "db/word_count.db"

// DefaultPhrases are matched in order; the first contained phrase wins.
var DefaultPhrases = []string{
	"low taper fade", "massive", "job", "job application", "employment",
	"unemployment", "unemployed", "sigma", "ohio", "grimace shake",
	"fanum tax", "skibidi toilet",
}

// Entry is one leaderboard row.
type Entry struct {
	UserID   string
	Username string
	Count    int
}

// Counter persists per-user phrase counts in SQLite.
type Counter struct {
	db      *sql.DB
	phrases []string
}

// Open creates the database file and table if needed. Phrases are
// lower-cased; an empty list selects DefaultPhrases.
func Open(ctx context.Context, path string, phrases []string) (*Counter, error) {
	if path == "" {
		path = DefaultPath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create counter dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS phrase_counts (
			phrase   TEXT NOT NULL,
			user_id  TEXT NOT NULL,
			username TEXT NOT NULL,
			count    INTEGER NOT NULL,
			PRIMARY KEY (phrase, user_id)
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create phrase_counts: %w", err)
	}

	if len(phrases) == 0 {
		phrases = DefaultPhrases
	}
	c := &Counter{db: db}
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			c.phrases = append(c.phrases, p)
		}
	}
	return c, nil
}

// Match returns the first tracked phrase contained in content.
func (c *Counter) Match(content string) (string, bool) {
	lower := strings.ToLower(content)
	for _, p := range c.phrases {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}

// Observe increments the count of the first tracked phrase found in content.
// It reports false when content contains no tracked phrase.
func (c *Counter) Observe(ctx context.Context, userID, username, content string) (string, int, bool, error) {
	phrase, ok := c.Match(content)
	if !ok {
		return "", 0, false, nil
	}
	var count int
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO phrase_counts (phrase, user_id, username, count) VALUES (?, ?, ?, 1)
		ON CONFLICT(phrase, user_id) DO UPDATE SET count = count + 1, username = excluded.username
		RETURNING count`, phrase, userID, username).Scan(&count)
	if err != nil {
		return "", 0, false, fmt.Errorf("count %q for %s: %w", phrase, userID, err)
	}
	return phrase, count, true, nil
}

// Top returns the n users who said phrase most often.
func (c *Counter) Top(ctx context.Context, phrase string, n int) ([]Entry, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT user_id, username, count FROM phrase_counts
		WHERE phrase = ? ORDER BY count DESC, username ASC LIMIT ?`,
		strings.ToLower(strings.TrimSpace(phrase)), n)
	if err != nil {
		return nil, fmt.Errorf("top %q: %w", phrase, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.UserID, &e.Username, &e.Count); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Phrases lists the tracked phrases in match order.
func (c *Counter) Phrases() []string { return append([]string(nil), c.phrases...) }

func (c *Counter) Close() error { return c.db.Close() }
