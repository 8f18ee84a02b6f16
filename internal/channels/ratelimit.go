package channels

import (
	"sync"
	"time"
)

// maxTrackedKeys caps the number of tracked rate-limit keys so rotating
// source addresses cannot exhaust memory.
const maxTrackedKeys = 4096

type rateEntry struct {
	windowStart time.Time
	count       int
}

// ConnRateLimiter counts hits per key inside a sliding window. The web
// adapter uses it to bound WebSocket connection attempts per client IP.
// Safe for concurrent use.
type ConnRateLimiter struct {
	window  time.Duration
	maxHits int

	mu      sync.Mutex
	entries map[string]*rateEntry
}

// NewConnRateLimiter creates a limiter allowing maxHits per key per window.
func NewConnRateLimiter(maxHits int, window time.Duration) *ConnRateLimiter {
	return &ConnRateLimiter{
		window:  window,
		maxHits: maxHits,
		entries: make(map[string]*rateEntry),
	}
}

// Allow reports whether key is within its rate limit, counting this hit.
// Stale entries are pruned when the tracked-key cap is reached.
func (r *ConnRateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if len(r.entries) >= maxTrackedKeys {
		for k, e := range r.entries {
			if now.Sub(e.windowStart) >= r.window {
				delete(r.entries, k)
			}
		}
		// Hard eviction if every entry is still fresh.
		for len(r.entries) >= maxTrackedKeys {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[key]
	if !ok || now.Sub(e.windowStart) >= r.window {
		r.entries[key] = &rateEntry{windowStart: now, count: 1}
		return true
	}

	e.count++
	return e.count <= r.maxHits
}
