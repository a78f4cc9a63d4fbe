package counter

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T, phrases ...string) *Counter {
	t.Helper()
	c, err := Open(context.Background(), filepath.Join(t.TempDir(), "word_count.db"), phrases)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestObserveCountsFirstMatchingPhrase(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()

	phrase, n, ok, err := c.Observe(ctx, "1", "alice", "Got a JOB application today")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "job", phrase)
	require.Equal(t, 1, n)

	_, n, _, err = c.Observe(ctx, "1", "alice#2", "another job")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, _, ok, err = c.Observe(ctx, "1", "alice", "nothing tracked here")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTopOrdersByCount(t *testing.T) {
	c := openTemp(t, "Sigma")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _, _, err := c.Observe(ctx, "b", "bob", "sigma grindset")
		require.NoError(t, err)
	}
	_, _, _, err := c.Observe(ctx, "a", "alice", "SIGMA")
	require.NoError(t, err)

	top, err := c.Top(ctx, "sigma", 5)
	require.NoError(t, err)
	require.Equal(t, []Entry{{UserID: "b", Username: "bob", Count: 3}, {UserID: "a", Username: "alice", Count: 1}}, top)
	require.Equal(t, []string{"sigma"}, c.Phrases())
}
