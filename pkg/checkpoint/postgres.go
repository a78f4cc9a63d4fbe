package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps checkpoints in a jsonb column.
type PostgresStore struct {
	DB *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	if connStr == "" {
		return nil, errors.New("postgres connection string is required")
	}
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	ps := &PostgresStore{DB: db}
	if err := ps.CreateSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return ps, nil
}

func (ps *PostgresStore) CreateSchema(ctx context.Context) error {
	_, err := ps.DB.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS agent_checkpoints (
			thread_id  TEXT PRIMARY KEY,
			messages   JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`)
	if err != nil {
		return fmt.Errorf("create agent_checkpoints: %w", err)
	}
	return nil
}

func (ps *PostgresStore) Load(ctx context.Context, threadID string) (Checkpoint, bool, error) {
	cp := Checkpoint{ThreadID: threadID}
	var raw []byte
	err := ps.DB.QueryRow(ctx,
		`SELECT messages::text, updated_at FROM agent_checkpoints WHERE thread_id = $1`, threadID).
		Scan(&raw, &cp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return cp, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}
	if cp.Messages, err = decodeMessages(raw); err != nil {
		return Checkpoint{}, false, err
	}
	return cp, true, nil
}

func (ps *PostgresStore) Save(ctx context.Context, cp Checkpoint) error {
	stamp(&cp)
	raw, err := encodeMessages(cp.Messages)
	if err != nil {
		return err
	}
	_, err = ps.DB.Exec(ctx, `
		INSERT INTO agent_checkpoints (thread_id, messages, updated_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (thread_id) DO UPDATE SET messages = EXCLUDED.messages, updated_at = EXCLUDED.updated_at`,
		cp.ThreadID, string(raw), cp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.ThreadID, err)
	}
	return nil
}

func (ps *PostgresStore) Close() error {
	ps.DB.Close()
	return nil
}
