package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const limiterKeyPrefix = "mp:ratelimit:"

// Decision is the outcome of one atomic check-and-increment.
type Decision struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
}

// Limiter answers "count entries in the window, add one if under limit" as a
// single atomic operation. Against Redis this is one Lua script so that
// concurrent requests cannot both pass a nearly exhausted limit; without
// Redis an in-process sliding window provides the same contract per process.
type Limiter struct {
	rdb    redis.UniversalClient // nil in degraded mode
	local  *slidingWindow
	logger *zap.Logger
}

// New creates a limiter. rdb may be nil for in-memory mode.
func New(rdb redis.UniversalClient, logger *zap.Logger) *Limiter {
	return &Limiter{rdb: rdb, local: newSlidingWindow(), logger: logger}
}

// Prune expired window members, count, add one member only when under the
// limit. Returns {allowed, count after the call}.
var windowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  return {0, count}
end
redis.call('ZADD', key, now, now .. '-' .. math.random(1000000))
redis.call('PEXPIRE', key, math.ceil(window / 1000000))
return {1, count + 1}
`)

// Take records one request under key if the window has capacity. Remaining
// never goes negative. A failing backend fails open (allowed, full
// remaining) after a logged warning; rate limiting is protective, not
// load-bearing for correctness.
func (l *Limiter) Take(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	resetAt := time.Now().Add(window)
	if limit <= 0 {
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}
	if l.rdb == nil {
		allowed, count := l.local.take(key, limit, window)
		return decisionFor(allowed, count, int64(limit), resetAt), nil
	}

	now := time.Now().UnixNano()
	res, err := windowScript.Run(ctx, l.rdb, []string{limiterKeyPrefix + key}, now, window.Nanoseconds(), limit).Result()
	if err != nil {
		l.logger.Warn("rate limit script failed, failing open", zap.String("key", key), zap.Error(err))
		return Decision{Allowed: true, Remaining: int64(limit), ResetAt: resetAt}, nil
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return Decision{Allowed: true, Remaining: int64(limit), ResetAt: resetAt},
			fmt.Errorf("unexpected rate limit script result: %v", res)
	}
	allowedInt, _ := vals[0].(int64)
	count, _ := vals[1].(int64)
	return decisionFor(allowedInt == 1, count, int64(limit), resetAt), nil
}

func decisionFor(allowed bool, count, limit int64, resetAt time.Time) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: allowed, Remaining: remaining, ResetAt: resetAt}
}
