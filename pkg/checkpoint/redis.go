package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "checkpoint:"

// RedisStore stores each thread as one JSON string, optionally expiring.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore accepts a redis:// URL or a bare host:port address.
func NewRedisStore(ctx context.Context, addr string, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Load(ctx context.Context, threadID string) (Checkpoint, bool, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+threadID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Checkpoint{ThreadID: threadID}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}
	msgs, err := decodeMessages(raw)
	if err != nil {
		return Checkpoint{}, false, err
	}
	return Checkpoint{ThreadID: threadID, Messages: msgs}, true, nil
}

func (r *RedisStore) Save(ctx context.Context, cp Checkpoint) error {
	raw, err := encodeMessages(cp.Messages)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, redisKeyPrefix+cp.ThreadID, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.ThreadID, err)
	}
	return nil
}

func (r *RedisStore) Close() error { return r.client.Close() }
