package devserver

import (
	"sort"
	"sync"
	"time"
)

const day = 24 * time.Hour

// RateLimiter counts hits per key over a sliding window. limit <= 0 disables it.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (r *RateLimiter) Allow(key string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	cutoff := now.Add(-r.window)
	// hits are appended in time order, so the expired ones form a prefix
	hits := r.hits[key]
	hits = hits[sort.Search(len(hits), func(i int) bool { return hits[i].After(cutoff) }):]
	if len(hits) >= r.limit {
		r.hits[key] = hits
		return false
	}
	r.hits[key] = append(hits, now)
	return true
}

func (r *RateLimiter) Limit() int {
	if r == nil {
		return 0
	}
	return r.limit
}
