package cooldown

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func exerciseLimiter(t *testing.T, l Limiter, key string) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := l.Allow(ctx, key, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	retry, ok, err := l.Allow(ctx, key, time.Second)
	require.NoError(t, err)
	require.False(t, ok)
	require.Greater(t, retry, time.Duration(0))
	require.LessOrEqual(t, retry, time.Second)

	_, ok, err = l.Allow(ctx, key+"-other", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryLimiter(t *testing.T) {
	exerciseLimiter(t, NewMemory(), Key("zeo", "1"))
}

func TestMemoryLimiterWindowExpires(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()
	_, ok, _ := l.Allow(ctx, "k", 20*time.Millisecond)
	require.True(t, ok)
	time.Sleep(40 * time.Millisecond)
	_, ok, _ = l.Allow(ctx, "k", 20*time.Millisecond)
	require.True(t, ok)
}

func TestZeroWindowAlwaysAllows(t *testing.T) {
	l := NewMemory()
	for i := 0; i < 3; i++ {
		_, ok, err := l.Allow(context.Background(), "k", 0)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestFormatWait(t *testing.T) {
	require.Equal(t, "Please wait 12.50 seconds before using this command again.", FormatWait(12500*time.Millisecond))
}

func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	exerciseLimiter(t, NewRedis(client), Key("zeo", time.Now().Format("150405.000000")))
}
