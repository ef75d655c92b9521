package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/attaboy/tower/internal/domain"
)

// CircuitState is the breaker position of one dependency.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	}
	return "closed"
}

// CircuitBreaker tracks one circuit per external dependency (RANDOM.ORG, Kafka).
// A circuit opens after failThreshold consecutive failures, stays open for
// resetTimeout, then lets a single probe through. The probe's outcome closes or
// reopens it.
type CircuitBreaker struct {
	mu            sync.Mutex
	circuits      map[string]*circuit
	failThreshold int
	resetTimeout  time.Duration
	now           func() time.Time
}

type circuit struct {
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
}

func NewCircuitBreaker(failThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	if failThreshold < 1 {
		failThreshold = 1
	}
	return &CircuitBreaker{
		circuits:      make(map[string]*circuit),
		failThreshold: failThreshold,
		resetTimeout:  resetTimeout,
		now:           time.Now,
	}
}

// WithClock replaces the time source.
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

func (cb *CircuitBreaker) get(key string) *circuit {
	c, ok := cb.circuits[key]
	if !ok {
		c = &circuit{}
		cb.circuits[key] = c
	}
	return c
}

// Check reports whether a call to key may proceed. In the half-open state only
// the first caller gets through until its outcome is recorded.
func (cb *CircuitBreaker) Check(_ context.Context, key string) domain.GuardResult {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(key)
	if c.state == CircuitOpen {
		wait := cb.resetTimeout - cb.now().Sub(c.openedAt)
		if wait > 0 {
			return domain.GuardResult{
				Reason:     fmt.Sprintf("circuit %s open, retry in %s", key, wait.Round(time.Millisecond)),
				Guard:      "circuit_breaker",
				RetryAfter: wait,
			}
		}
		c.state = CircuitHalfOpen
		c.probing = false
	}
	if c.state == CircuitHalfOpen {
		if c.probing {
			return domain.GuardResult{
				Reason: fmt.Sprintf("circuit %s half-open, probe in flight", key),
				Guard:  "circuit_breaker",
			}
		}
		c.probing = true
	}
	return domain.GuardResult{Allowed: true}
}

// State reports the current position of key without changing it.
func (cb *CircuitBreaker) State(key string) CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if c, ok := cb.circuits[key]; ok {
		return c.state
	}
	return CircuitClosed
}

// Snapshot returns every known circuit's state by key.
func (cb *CircuitBreaker) Snapshot() map[string]string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	out := make(map[string]string, len(cb.circuits))
	for k, c := range cb.circuits {
		out[k] = c.state.String()
	}
	return out
}

// RecordSuccess closes the circuit and clears its failure count.
func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	c := cb.get(key)
	c.state = CircuitClosed
	c.failures = 0
	c.probing = false
}

// RecordFailure counts a failure, opening the circuit at the threshold or
// immediately when a half-open probe fails.
func (cb *CircuitBreaker) RecordFailure(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	c := cb.get(key)
	c.failures++
	c.probing = false
	if c.state == CircuitHalfOpen || c.failures >= cb.failThreshold {
		c.state = CircuitOpen
		c.openedAt = cb.now()
	}
}

// ErrCircuitOpen is returned by Do when the circuit rejects the call.
type ErrCircuitOpen struct {
	Key    string
	Reason string
}

func (e *ErrCircuitOpen) Error() string { return e.Reason }

// Do runs fn through the circuit for key, recording the outcome.
func (cb *CircuitBreaker) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	if res := cb.Check(ctx, key); !res.Allowed {
		return &ErrCircuitOpen{Key: key, Reason: res.Reason}
	}
	if err := fn(ctx); err != nil {
		cb.RecordFailure(key)
		return err
	}
	cb.RecordSuccess(key)
	return nil
}
