package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradevault/marketpulse/pkg/models"
)

type payload struct {
	Value string `json:"value"`
}

func TestGetOrCompute_MissThenHit(t *testing.T) {
	tc := NewTiered(nil, nil, zap.NewNop())
	calls := 0
	compute := func(ctx context.Context) (*payload, error) {
		calls++
		return &payload{Value: "computed"}, nil
	}

	v, err := GetOrCompute(context.Background(), tc, "k", time.Minute, compute)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "computed", v.Value)
	assert.Equal(t, 1, calls)

	// second lookup comes from the store
	v, err = GetOrCompute(context.Background(), tc, "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, "computed", v.Value)
	assert.Equal(t, 1, calls)
}

func TestGetOrCompute_TTLExpiry(t *testing.T) {
	tc := NewTiered(nil, nil, zap.NewNop())
	calls := 0
	compute := func(ctx context.Context) (*payload, error) {
		calls++
		return &payload{Value: "v"}, nil
	}

	_, err := GetOrCompute(context.Background(), tc, "k", time.Nanosecond, compute)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	_, err = GetOrCompute(context.Background(), tc, "k", time.Nanosecond, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestGetOrCompute_NilNeverCached(t *testing.T) {
	tc := NewTiered(nil, nil, zap.NewNop())
	calls := 0
	compute := func(ctx context.Context) (*payload, error) {
		calls++
		return nil, nil
	}

	for i := 0; i < 3; i++ {
		v, err := GetOrCompute(context.Background(), tc, "k", time.Minute, compute)
		require.NoError(t, err)
		assert.Nil(t, v)
	}
	assert.Equal(t, 3, calls, "nil results must be recomputed on every call")
}

func TestGetOrCompute_ComputeErrorPropagates(t *testing.T) {
	tc := NewTiered(nil, nil, zap.NewNop())
	wantErr := errors.New("provider down")
	v, err := GetOrCompute(context.Background(), tc, "k", time.Minute, func(ctx context.Context) (*payload, error) {
		return nil, wantErr
	})
	assert.Nil(t, v)
	assert.ErrorIs(t, err, wantErr)
}

func TestGetOrCompute_BackendUnreachableFailsOpen(t *testing.T) {
	// a client nobody listens on: every op errors, the cache must fail open
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	tc := NewTiered(rdb, nil, zap.NewNop())

	v, err := GetOrCompute(context.Background(), tc, "k", time.Minute, func(ctx context.Context) (*payload, error) {
		return &payload{Value: "fresh"}, nil
	})
	require.NoError(t, err, "backend failure must not surface to the read path")
	require.NotNil(t, v)
	assert.Equal(t, "fresh", v.Value)
}

func TestHotCache_FreshnessWindow(t *testing.T) {
	hot := NewHotCache(nil, zap.NewNop())
	hot.Put(context.Background(), models.CachedQuote{Symbol: "spy", Price: 500})

	// symbols are case-insensitive through uppercasing
	q, ok := hot.Get(context.Background(), "SPY")
	require.True(t, ok)
	assert.Equal(t, 500.0, q.Price)
}

func TestHotCache_StaleEntryNotServed(t *testing.T) {
	hot := NewHotCache(nil, zap.NewNop())

	// write an entry whose WrittenAt is already outside the freshness
	// window, bypassing Put so the backing store has not evicted it
	stale := models.CachedQuote{
		Symbol: "SPY", Price: 500,
		WrittenAt: time.Now().Add(-2 * HotFreshness),
	}
	data, err := json.Marshal(stale)
	require.NoError(t, err)
	hot.mem.set(hotKey("SPY"), data, time.Hour, time.Now())

	_, ok := hot.Get(context.Background(), "SPY")
	assert.False(t, ok, "stale entries must not be served even while the key still exists")
}

func TestGetQuoteOrCompute_HotBypassesCompute(t *testing.T) {
	hot := NewHotCache(nil, zap.NewNop())
	tc := NewTiered(nil, hot, zap.NewNop())

	hot.Put(context.Background(), models.CachedQuote{Symbol: "SPY", Price: 501.25})

	calls := 0
	q, err := tc.GetQuoteOrCompute(context.Background(), "SPY", time.Minute, func(ctx context.Context) (*models.Quote, error) {
		calls++
		return &models.Quote{Symbol: "SPY", Price: 400}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, 501.25, q.Price)
	assert.Equal(t, 0, calls, "a fresh hot entry must bypass compute entirely")
}

func TestGetQuoteOrCompute_FallsBackWithoutHotEntry(t *testing.T) {
	hot := NewHotCache(nil, zap.NewNop())
	tc := NewTiered(nil, hot, zap.NewNop())

	q, err := tc.GetQuoteOrCompute(context.Background(), "QQQ", time.Minute, func(ctx context.Context) (*models.Quote, error) {
		return &models.Quote{Symbol: "QQQ", Price: 430}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, 430.0, q.Price)
}
