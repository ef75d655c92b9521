package guard

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/attaboy/tower/internal/domain"
)

// RateLimiter is a token bucket per caller. Each bucket holds up to limit
// tokens and refills limit tokens per window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
	checks  int
	now     func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// sweepEvery is how many checks pass between purges of full, idle buckets.
const sweepEvery = 1024

// NewRateLimiter creates a limiter allowing limit requests per window.
// A non-positive limit disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Check takes one token from key's bucket. A rejected result carries the
// wait until the next token.
func (rl *RateLimiter) Check(_ context.Context, key string) domain.GuardResult {
	if rl.limit <= 0 || rl.window <= 0 {
		return domain.GuardResult{Allowed: true}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.checks++
	if rl.checks%sweepEvery == 0 {
		rl.sweep(now)
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rl.limit), last: now}
		rl.buckets[key] = b
	}
	b.refill(now, rl.rate(), float64(rl.limit))

	if b.tokens < 1 {
		wait := time.Duration(math.Ceil((1 - b.tokens) * float64(rl.window) / float64(rl.limit)))
		return domain.GuardResult{
			Reason:     fmt.Sprintf("rate limit exceeded: %d per %s", rl.limit, rl.window),
			Guard:      "rate_limiter",
			RetryAfter: wait,
		}
	}
	b.tokens--
	return domain.GuardResult{Allowed: true}
}

// rate is tokens per nanosecond.
func (rl *RateLimiter) rate() float64 {
	return float64(rl.limit) / float64(rl.window)
}

func (rl *RateLimiter) sweep(now time.Time) {
	for k, b := range rl.buckets {
		if now.Sub(b.last) >= rl.window {
			delete(rl.buckets, k)
		}
	}
}

func (b *bucket) refill(now time.Time, rate, capacity float64) {
	if elapsed := now.Sub(b.last); elapsed > 0 {
		b.tokens = math.Min(capacity, b.tokens+float64(elapsed)*rate)
		b.last = now
	}
}
