// Package cooldown rate-limits commands per user with fixed windows.
package cooldown

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Limiter admits the first call per key and window. When a key is still
// cooling down it reports how long remains.
type Limiter interface {
	Allow(ctx context.Context, key string, window time.Duration) (retryAfter time.Duration, ok bool, err error)
}

// Key scopes a cooldown to one command and one user.
func Key(command, userID string) string { return command + ":" + userID }

// Memory keeps cooldowns in process.
type Memory struct {
	c *gocache.Cache
}

func NewMemory() *Memory {
	return &Memory{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *Memory) Allow(_ context.Context, key string, window time.Duration) (time.Duration, bool, error) {
	if window <= 0 {
		return 0, true, nil
	}
	for attempt := 0; attempt < 2; attempt++ {
		now := time.Now()
		if err := m.c.Add(key, now.Add(window), window); err == nil {
			return 0, true, nil
		}
		_, expires, found := m.c.GetWithExpiration(key)
		if !found {
			// expired between Add and Get
			continue
		}
		if remaining := expires.Sub(now); remaining > 0 {
			return remaining, false, nil
		}
		m.c.Delete(key)
	}
	return 0, true, nil
}

// Redis shares cooldowns across bot processes.
type Redis struct {
	client redis.Cmdable
	prefix string
}

func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client, prefix: "cooldown:"}
}

func (r *Redis) Allow(ctx context.Context, key string, window time.Duration) (time.Duration, bool, error) {
	if window <= 0 {
		return 0, true, nil
	}
	k := r.prefix + key
	ok, err := r.client.SetNX(ctx, k, 1, window).Result()
	if err != nil {
		return 0, false, fmt.Errorf("cooldown %s: %w", key, err)
	}
	if ok {
		return 0, true, nil
	}
	ttl, err := r.client.PTTL(ctx, k).Result()
	if err != nil {
		return 0, false, fmt.Errorf("cooldown ttl %s: %w", key, err)
	}
	if ttl <= 0 {
		// key vanished or has no expiry; treat as free
		r.client.Del(ctx, k)
		return 0, true, nil
	}
	return ttl, false, nil
}

// FormatWait renders the user-facing cooldown notice.
func FormatWait(retryAfter time.Duration) string {
	return fmt.Sprintf("Please wait %.2f seconds before using this command again.", retryAfter.Seconds())
}
