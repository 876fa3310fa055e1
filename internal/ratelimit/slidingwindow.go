package ratelimit

import (
	"sync"
	"time"
)

// slidingWindow is the in-process fallback limiter: per-key timestamp lists
// with check-and-append under one lock, mirroring the atomicity of the Redis
// script within a single process.
type slidingWindow struct {
	mu      sync.Mutex
	windows map[string][]int64 // key -> request timestamps (unix nanos)
}

func newSlidingWindow() *slidingWindow {
	return &slidingWindow{windows: make(map[string][]int64)}
}

// take prunes the window for key, then appends when under limit. Returns
// (allowed, count after the call).
func (sw *slidingWindow) take(key string, limit int, window time.Duration) (bool, int64) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now().UnixNano()
	cutoff := now - window.Nanoseconds()

	reqs := sw.windows[key]
	idx := 0
	for idx < len(reqs) && reqs[idx] < cutoff {
		idx++
	}
	if idx > 0 {
		reqs = reqs[idx:]
	}

	if len(reqs) >= limit {
		sw.windows[key] = reqs
		return false, int64(len(reqs))
	}
	reqs = append(reqs, now)
	sw.windows[key] = reqs
	return true, int64(len(reqs))
}
