package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// --- Wait ---

func TestSourceLimiters_EnforcesMinInterval(t *testing.T) {
	l := NewSourceLimiters(100) // 10ms between calls
	ctx := context.Background()

	started := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx, "src"))
	}
	elapsed := time.Since(started)

	// First call is immediate, the next two wait 10ms each.
	require.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
}

func TestSourceLimiters_SourcesAreIndependent(t *testing.T) {
	l := NewSourceLimiters(10) // 100ms between calls per source
	ctx := context.Background()

	started := time.Now()
	require.NoError(t, l.Wait(ctx, "a"))
	require.NoError(t, l.Wait(ctx, "b"))
	require.NoError(t, l.Wait(ctx, "c"))
	elapsed := time.Since(started)

	// Distinct sources never wait on each other.
	require.Less(t, elapsed, 50*time.Millisecond)
}

func TestSourceLimiters_CanceledContext(t *testing.T) {
	l := NewSourceLimiters(1) // 1s between calls

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Wait(ctx, "src"))

	cancel()
	require.Error(t, l.Wait(ctx, "src"))
}

func TestSourceLimiters_NonPositiveRateFallsBack(t *testing.T) {
	l := NewSourceLimiters(0)
	require.NoError(t, l.Wait(context.Background(), "src"))
}
