package guard

import (
	"context"
	"sync"
	"time"

	"github.com/attaboy/tower/internal/domain"
)

const minSweepSize = 256

// IdempotencyGuard remembers Idempotency-Key values for ttl so a retried
// mutation is rejected instead of applied twice. A non-positive ttl never forgets.
type IdempotencyGuard struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	sweepAt int
	now     func() time.Time
}

func NewIdempotencyGuard(ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{
		seen:    make(map[string]time.Time),
		ttl:     ttl,
		sweepAt: minSweepSize,
		now:     time.Now,
	}
}

// Check claims key. The empty key is always allowed and never stored.
func (ig *IdempotencyGuard) Check(_ context.Context, key string) domain.GuardResult {
	if key == "" {
		return domain.GuardResult{Allowed: true}
	}

	ig.mu.Lock()
	defer ig.mu.Unlock()

	now := ig.now()
	if at, ok := ig.seen[key]; ok && !ig.expired(at, now) {
		return domain.GuardResult{
			Reason: "duplicate request: idempotency key already processed",
			Guard:  "idempotency",
		}
	}

	ig.seen[key] = now
	if len(ig.seen) >= ig.sweepAt {
		ig.sweep(now)
	}
	return domain.GuardResult{Allowed: true}
}

// Remove releases key so a failed request can be retried.
func (ig *IdempotencyGuard) Remove(key string) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	delete(ig.seen, key)
}

// Len is the number of remembered keys.
func (ig *IdempotencyGuard) Len() int {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	return len(ig.seen)
}

func (ig *IdempotencyGuard) expired(at, now time.Time) bool {
	return ig.ttl > 0 && now.Sub(at) >= ig.ttl
}

// sweep drops expired keys and sets the next sweep at twice the survivors,
// keeping the amortized cost per Check constant.
func (ig *IdempotencyGuard) sweep(now time.Time) {
	for k, at := range ig.seen {
		if ig.expired(at, now) {
			delete(ig.seen, k)
		}
	}
	ig.sweepAt = max(minSweepSize, 2*len(ig.seen))
}
