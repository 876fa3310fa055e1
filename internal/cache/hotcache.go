package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tradevault/marketpulse/pkg/models"
)

const (
	hotKeyPrefix = "mp:hot:"

	// HotTTL is the backing-store expiry for hot entries.
	HotTTL = 10 * time.Second

	// HotFreshness is the explicit staleness bound applied on read. It is
	// enforced against CachedQuote.WrittenAt and does not rely on backend
	// eviction timing.
	HotFreshness = 10 * time.Second
)

// HotCache is the live-tick cache written by the redistributor on every
// ingested tick and consulted by the tiered cache before any compute-on-miss
// lookup. Writes are last-writer-wins per symbol. Without a distributed
// backend it degrades to an in-process map.
type HotCache struct {
	rdb    redis.UniversalClient
	mem    *memoryStore
	logger *zap.Logger
}

// NewHotCache creates a hot cache. rdb may be nil for in-memory mode.
func NewHotCache(rdb redis.UniversalClient, logger *zap.Logger) *HotCache {
	return &HotCache{rdb: rdb, mem: newMemoryStore(), logger: logger}
}

func hotKey(symbol string) string {
	return hotKeyPrefix + strings.ToUpper(symbol)
}

// Put stores the latest tick for a symbol. Failures are logged and never
// surfaced; the hot cache is an optimization, not a source of truth.
func (h *HotCache) Put(ctx context.Context, q models.CachedQuote) {
	q.WrittenAt = time.Now()
	data, err := json.Marshal(q)
	if err != nil {
		h.logger.Warn("hot cache marshal failed", zap.String("symbol", q.Symbol), zap.Error(err))
		return
	}
	key := hotKey(q.Symbol)
	if h.rdb != nil {
		if err := h.rdb.Set(ctx, key, data, HotTTL).Err(); err != nil {
			h.logger.Debug("hot cache write failed", zap.String("symbol", q.Symbol), zap.Error(err))
		}
		return
	}
	h.mem.set(key, data, HotTTL, time.Now())
}

// Get returns the hot entry for a symbol when one exists and is younger than
// the freshness window. Backend failures read as a miss.
func (h *HotCache) Get(ctx context.Context, symbol string) (*models.CachedQuote, bool) {
	key := hotKey(symbol)
	var data []byte
	if h.rdb != nil {
		raw, err := h.rdb.Get(ctx, key).Bytes()
		if err != nil {
			return nil, false
		}
		data = raw
	} else {
		raw, ok := h.mem.get(key, time.Now())
		if !ok {
			return nil, false
		}
		data = raw
	}

	var q models.CachedQuote
	if err := json.Unmarshal(data, &q); err != nil {
		h.logger.Warn("hot cache entry corrupt", zap.String("symbol", symbol), zap.Error(err))
		return nil, false
	}
	if time.Since(q.WrittenAt) > HotFreshness {
		return nil, false
	}
	return &q, true
}
