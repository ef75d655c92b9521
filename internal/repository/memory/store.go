// Package memory is an in-process Store used by unit tests and the memory backend.
// Writes go to a copy of the state that replaces the live one only when fn succeeds.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/repository"
	"github.com/google/uuid"
)

type balanceKey struct {
	playerID int64
	currency domain.Currency
}

type outboxEntry struct {
	row         domain.OutboxRow
	publishedAt *time.Time
}

// state holds immutable-by-convention pointers. Repositories clone on read and
// on write, so a state copy only needs fresh maps and capped slices.
type state struct {
	players      map[int64]*domain.Player
	balances     map[balanceKey]int64
	txs          []*domain.TransactionRecord
	refs         map[string]int
	guilds       map[int64]*domain.Guild
	raids        map[uuid.UUID]*domain.RaidRecord
	matches      []*domain.PvPMatch
	outbox       []*outboxEntry
	nextTxID     int64
	nextGuildID  int64
	nextOutboxID int64
}

func newState() *state {
	return &state{
		players:  map[int64]*domain.Player{},
		balances: map[balanceKey]int64{},
		refs:     map[string]int{},
		guilds:   map[int64]*domain.Guild{},
		raids:    map[uuid.UUID]*domain.RaidRecord{},
	}
}

func (s *state) clone() *state {
	out := *s
	out.players = make(map[int64]*domain.Player, len(s.players))
	for k, v := range s.players {
		out.players[k] = v
	}
	out.balances = make(map[balanceKey]int64, len(s.balances))
	for k, v := range s.balances {
		out.balances[k] = v
	}
	out.refs = make(map[string]int, len(s.refs))
	for k, v := range s.refs {
		out.refs[k] = v
	}
	out.guilds = make(map[int64]*domain.Guild, len(s.guilds))
	for k, v := range s.guilds {
		out.guilds[k] = v
	}
	out.raids = make(map[uuid.UUID]*domain.RaidRecord, len(s.raids))
	for k, v := range s.raids {
		out.raids[k] = v
	}
	// capacity == length forces appends in the copy onto a new backing array
	out.txs = s.txs[:len(s.txs):len(s.txs)]
	out.matches = s.matches[:len(s.matches):len(s.matches)]
	out.outbox = s.outbox[:len(s.outbox):len(s.outbox)]
	return &out
}

// Store is a mutex-guarded in-memory repository.Store.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

var _ repository.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{st: newState(), now: time.Now}
}

// WithClock overrides the timestamp source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// InTx serializes writers. fn sees a private copy of the state; the copy is
// committed only if fn returns nil. InTx must not be nested, and fn must not
// call Read on the same store.
func (s *Store) InTx(ctx context.Context, fn func(repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&memTx{st: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Read runs fn against the committed state.
func (s *Store) Read(ctx context.Context, fn func(repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{st: s.st, now: s.now})
}

type memTx struct {
	st  *state
	now func() time.Time
}

func (t *memTx) Players() repository.PlayerRepository           { return &playerRepo{t} }
func (t *memTx) Balances() repository.BalanceRepository         { return &balanceRepo{t} }
func (t *memTx) Transactions() repository.TransactionRepository { return &transactionRepo{t} }
func (t *memTx) Guilds() repository.GuildRepository             { return &guildRepo{t} }
func (t *memTx) Raids() repository.RaidRepository               { return &raidRepo{t} }
func (t *memTx) PvP() repository.PvPRepository                  { return &pvpRepo{t} }
func (t *memTx) Outbox() repository.OutboxRepository            { return &outboxRepo{t} }

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}
