// Package checkpoint persists per-thread conversation history between runs.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Protocol-Lattice/lattice-discord/pkg/models"
)

// Checkpoint is the saved history of one conversation thread.
type Checkpoint struct {
	ThreadID  string           `json:"thread_id"`
	Messages  []models.Message `json:"messages"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store loads and saves checkpoints. Load reports false for unknown threads.
type Store interface {
	Load(ctx context.Context, threadID string) (Checkpoint, bool, error)
	Save(ctx context.Context, cp Checkpoint) error
	Close() error
}

// Config selects a backend. DSN meaning depends on Driver:
// a file path for sqlite, a connection string for postgres, redis and mongo.
type Config struct {
	Driver   string
	DSN      string
	Database string
	TTL      time.Duration
}

// Open builds the configured store. An empty driver selects sqlite.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite":
		path := cfg.DSN
		if path == "" {
			path = DefaultSQLitePath
		}
		return NewSQLiteStore(ctx, path)
	case "memory":
		return NewMemoryStore(), nil
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, cfg.DSN)
	case "redis":
		return NewRedisStore(ctx, cfg.DSN, cfg.TTL)
	case "mongo", "mongodb":
		return NewMongoStore(ctx, cfg.DSN, cfg.Database)
	default:
		return nil, fmt.Errorf("unknown checkpoint driver %q", cfg.Driver)
	}
}

func encodeMessages(msgs []models.Message) ([]byte, error) {
	if msgs == nil {
		msgs = []models.Message{}
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}
	return b, nil
}

func decodeMessages(b []byte) ([]models.Message, error) {
	var msgs []models.Message
	if len(b) == 0 {
		return msgs, nil
	}
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return msgs, nil
}

func stamp(cp *Checkpoint) {
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
}

// MemoryStore keeps checkpoints in process; used by tests and the CLI.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]Checkpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string]Checkpoint)}
}

func (m *MemoryStore) Load(_ context.Context, threadID string) (Checkpoint, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.threads[threadID]
	if !ok {
		return Checkpoint{ThreadID: threadID}, false, nil
	}
	cp.Messages = append([]models.Message(nil), cp.Messages...)
	return cp, true, nil
}

func (m *MemoryStore) Save(_ context.Context, cp Checkpoint) error {
	stamp(&cp)
	cp.Messages = append([]models.Message(nil), cp.Messages...)
	m.mu.Lock()
	m.threads[cp.ThreadID] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }
