package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tradevault/marketpulse/pkg/metrics"
	"github.com/tradevault/marketpulse/pkg/models"
)

const storeKeyPrefix = "mp:cache:"

// lookupState distinguishes a genuine miss from a failing backend so the two
// are never conflated upstream.
type lookupState int

const (
	lookupHit lookupState = iota
	lookupMiss
	lookupUnavailable
)

// TieredCache is a get-or-compute cache with a two-level lookup: the hot
// cache first (quote keys only), then a keyed store with per-call TTL, then
// direct computation. A failing distributed backend fails open: logged once,
// then treated as an always-miss store backed by an in-process map with the
// same key space.
type TieredCache struct {
	rdb    redis.UniversalClient // nil in degraded mode
	hot    *HotCache
	mem    *memoryStore
	logger *zap.Logger

	warnedUnavailable atomic.Bool
}

// NewTiered creates a tiered cache. rdb may be nil; hot may be nil when no
// live ingestion path exists in the process.
func NewTiered(rdb redis.UniversalClient, hot *HotCache, logger *zap.Logger) *TieredCache {
	return &TieredCache{rdb: rdb, hot: hot, mem: newMemoryStore(), logger: logger}
}

func (tc *TieredCache) storeGet(ctx context.Context, key string) ([]byte, lookupState) {
	if tc.rdb == nil {
		if data, ok := tc.mem.get(key, time.Now()); ok {
			return data, lookupHit
		}
		return nil, lookupMiss
	}
	data, err := tc.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, lookupMiss
	}
	if err != nil {
		tc.noteUnavailable(err)
		if data, ok := tc.mem.get(key, time.Now()); ok {
			return data, lookupHit
		}
		return nil, lookupUnavailable
	}
	return data, lookupHit
}

// storeSet is fire-and-forget relative to the read path: it always writes
// the in-process fallback and asynchronously attempts the distributed store.
func (tc *TieredCache) storeSet(key string, data []byte, ttl time.Duration) {
	tc.mem.set(key, data, ttl, time.Now())
	if tc.rdb == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := tc.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
			tc.noteUnavailable(err)
		}
	}()
}

func (tc *TieredCache) noteUnavailable(err error) {
	if tc.warnedUnavailable.CompareAndSwap(false, true) {
		tc.logger.Warn("cache backend unreachable, failing open to in-process cache", zap.Error(err))
	}
}

// Invalidate removes a key from both stores.
func (tc *TieredCache) Invalidate(ctx context.Context, key string) {
	tc.mem.delete(storeKeyPrefix + key)
	if tc.rdb != nil {
		if err := tc.rdb.Del(ctx, storeKeyPrefix+key).Err(); err != nil {
			tc.noteUnavailable(err)
		}
	}
}

// GetOrCompute returns the cached value under key when younger than ttl,
// otherwise computes, stores, and returns it. A nil compute result is
// returned as-is and never stored, so absent upstream data is recomputed on
// every call. Compute races between concurrent callers are tolerated: the
// last store wins.
func GetOrCompute[T any](ctx context.Context, tc *TieredCache, key string, ttl time.Duration, compute func(context.Context) (*T, error)) (*T, error) {
	fullKey := storeKeyPrefix + key

	data, state := tc.storeGet(ctx, fullKey)
	if state == lookupHit {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			metrics.CacheLookups.WithLabelValues("store").Inc()
			return &v, nil
		}
		// corrupt entry: drop and recompute
		tc.mem.delete(fullKey)
	}
	if state == lookupUnavailable {
		metrics.CacheLookups.WithLabelValues("unavailable").Inc()
	} else {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	v, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	if data, err := json.Marshal(v); err == nil {
		tc.storeSet(fullKey, data, ttl)
	}
	metrics.CacheLookups.WithLabelValues("compute").Inc()
	return v, nil
}

// GetQuoteOrCompute is GetOrCompute for quote lookups, consulting the hot
// cache first: a live tick younger than the freshness window answers the
// call without touching the keyed store or the provider.
func (tc *TieredCache) GetQuoteOrCompute(ctx context.Context, symbol string, ttl time.Duration, compute func(context.Context) (*models.Quote, error)) (*models.Quote, error) {
	if tc.hot != nil {
		if cq, ok := tc.hot.Get(ctx, symbol); ok {
			metrics.CacheLookups.WithLabelValues("hot").Inc()
			return &models.Quote{
				Symbol:    cq.Symbol,
				Price:     cq.Price,
				Volume:    cq.Volume,
				Timestamp: cq.Timestamp,
			}, nil
		}
	}
	return GetOrCompute(ctx, tc, "quote:"+symbol, ttl, compute)
}
