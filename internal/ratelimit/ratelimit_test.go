package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTake_AtMostLimitAllowed(t *testing.T) {
	l := New(nil, zap.NewNop())

	const limit = 5
	allowed := 0
	for i := 0; i < 20; i++ {
		d, err := l.Take(context.Background(), "client-a", limit, time.Minute)
		require.NoError(t, err)
		if d.Allowed {
			allowed++
		}
		assert.GreaterOrEqual(t, d.Remaining, int64(0), "remaining must never go negative")
	}
	assert.Equal(t, limit, allowed)
}

func TestTake_WindowSlides(t *testing.T) {
	l := New(nil, zap.NewNop())

	d, err := l.Take(context.Background(), "client-b", 1, 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.Take(context.Background(), "client-b", 1, 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	time.Sleep(30 * time.Millisecond)

	d, err = l.Take(context.Background(), "client-b", 1, 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "expired entries must free the window")
}

func TestTake_KeysAreIndependent(t *testing.T) {
	l := New(nil, zap.NewNop())

	d, err := l.Take(context.Background(), "client-c", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.Take(context.Background(), "client-d", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestTake_ZeroLimitDenies(t *testing.T) {
	l := New(nil, zap.NewNop())
	d, err := l.Take(context.Background(), "client-e", 0, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(0), d.Remaining)
}

func TestTake_ConcurrentCallersRespectLimit(t *testing.T) {
	l := New(nil, zap.NewNop())

	const limit = 10
	results := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		go func() {
			d, err := l.Take(context.Background(), "client-f", limit, time.Minute)
			if err != nil {
				results <- false
				return
			}
			results <- d.Allowed
		}()
	}

	allowed := 0
	for i := 0; i < 50; i++ {
		if <-results {
			allowed++
		}
	}
	assert.Equal(t, limit, allowed, "check-and-increment must be atomic")
}
