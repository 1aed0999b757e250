package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNextDrawsFromConfiguredPool(t *testing.T) {
	t.Parallel()

	pool := []string{"agent-a", "agent-b"}
	r := New(pool, zap.NewNop())
	require.Equal(t, 2, r.PoolSize())

	for i := 0; i < 50; i++ {
		require.Contains(t, pool, r.Next())
	}
}

func TestNewDropsBlankEntries(t *testing.T) {
	t.Parallel()

	r := New([]string{"", "agent-a", ""}, zap.NewNop())
	require.Equal(t, 1, r.PoolSize())
	require.Equal(t, "agent-a", r.Next())
}

func TestEmptyPoolFallsBackToEmbeddedAgents(t *testing.T) {
	t.Parallel()

	r := New(nil, zap.NewNop())
	require.Equal(t, len(fallbackAgents), r.PoolSize())
	require.Contains(t, fallbackAgents, r.Next())
}

func TestNextNeverReturnsEmpty(t *testing.T) {
	t.Parallel()

	r := New([]string{""}, nil)
	for i := 0; i < 20; i++ {
		require.NotEmpty(t, r.Next())
	}
}
