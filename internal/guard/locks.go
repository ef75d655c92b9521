package guard

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/attaboy/tower/internal/domain"
)

// PlayerLocks serializes mutations per player id. Each id maps to a one-slot
// semaphore so acquisition can honour context cancellation.
type PlayerLocks struct {
	mu      sync.Mutex
	slots   map[int64]*lockSlot
	timeout time.Duration
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// NewPlayerLocks creates a lock table. timeout bounds every acquisition; zero means
// the caller's context alone decides.
func NewPlayerLocks(timeout time.Duration) *PlayerLocks {
	return &PlayerLocks{
		slots:   make(map[int64]*lockSlot),
		timeout: timeout,
	}
}

func (l *PlayerLocks) ref(id int64) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[id]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[id] = s
	}
	s.refs++
	return s
}

func (l *PlayerLocks) unref(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slots[id]
	s.refs--
	if s.refs == 0 {
		delete(l.slots, id)
	}
}

func (l *PlayerLocks) lockOne(ctx context.Context, id int64) error {
	s := l.ref(id)
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(id)
		return domain.ErrPlayerBusy(id)
	}
}

func (l *PlayerLocks) unlockOne(id int64) {
	l.mu.Lock()
	s := l.slots[id]
	l.mu.Unlock()
	<-s.ch
	l.unref(id)
}

// Acquire locks every distinct id in ascending order and returns the release func.
// On failure nothing stays locked.
func (l *PlayerLocks) Acquire(ctx context.Context, ids ...int64) (func(), error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	held := make([]int64, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlockOne(held[i])
		}
	}
	for _, id := range sorted {
		if err := l.lockOne(ctx, id); err != nil {
			release()
			return nil, err
		}
		held = append(held, id)
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}

// With runs fn while holding the locks for ids.
func (l *PlayerLocks) With(ctx context.Context, fn func() error, ids ...int64) error {
	release, err := l.Acquire(ctx, ids...)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// Held reports how many ids currently have a slot in the table.
func (l *PlayerLocks) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
