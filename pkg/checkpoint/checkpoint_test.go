package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/lattice-discord/pkg/models"
)

func sampleHistory() []models.Message {
	return []models.Message{
		{Role: models.RoleUser, Content: "who wrote go?"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "c1", Name: "wikipedia_search", Arguments: map[string]any{"query": "go"}}}},
		{Role: models.RoleTool, ToolCallID: "c1", Name: "wikipedia_search", Content: "**Go**: a language"},
		{Role: models.RoleAssistant, Content: "Google did."},
	}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	thread := "zeo_thread_" + time.Now().Format("150405.000000000")

	cp, ok, err := store.Load(ctx, thread)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, thread, cp.ThreadID)

	require.NoError(t, store.Save(ctx, Checkpoint{ThreadID: thread, Messages: sampleHistory()}))
	cp, ok, err = store.Load(ctx, thread)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sampleHistory()[1].ToolCalls[0].Name, cp.Messages[1].ToolCalls[0].Name)
	require.Equal(t, "go", cp.Messages[1].ToolCalls[0].Arguments["query"])
	require.Len(t, cp.Messages, 4)

	require.NoError(t, store.Save(ctx, Checkpoint{ThreadID: thread, Messages: sampleHistory()[:1]}))
	cp, _, err = store.Load(ctx, thread)
	require.NoError(t, err)
	require.Len(t, cp.Messages, 1)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesHistory(t *testing.T) {
	s := NewMemoryStore()
	msgs := sampleHistory()
	require.NoError(t, s.Save(context.Background(), Checkpoint{ThreadID: "t", Messages: msgs}))
	msgs[0].Content = "mutated"
	cp, _, _ := s.Load(context.Background(), "t")
	require.Equal(t, "who wrote go?", cp.Messages[0].Content)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "checkpoint.sqlite")
	s, err := NewSQLiteStore(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestOpenSelectsBackend(t *testing.T) {
	s, err := Open(context.Background(), Config{Driver: "memory"})
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)

	s, err = Open(context.Background(), Config{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(context.Background(), Config{Driver: "cassandra"})
	require.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	s, err := NewRedisStore(context.Background(), addr, time.Minute)
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	s, err := NewPostgresStore(context.Background(), dsn)
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	s, err := NewMongoStore(context.Background(), uri, "lattice_discord_test")
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}
