package pvp

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/guard"
	"github.com/attaboy/tower/internal/ledger"
	"github.com/attaboy/tower/internal/policy"
	"github.com/attaboy/tower/internal/repository"
	"github.com/attaboy/tower/internal/repository/memory"
	"github.com/attaboy/tower/internal/rng"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Minute

type noContent struct{}

func (noContent) Weapon(string) (domain.Weapon, bool) { return domain.Weapon{}, false }

func (noContent) TalentBonus(*domain.Player, string) domain.TalentBonus {
	return domain.TalentBonus{}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type feed struct {
	mu     sync.Mutex
	events map[int64][]string
}

func (f *feed) PublishToPlayer(playerID int64, event string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[playerID] = append(f.events[playerID], event)
}

type fixture struct {
	svc     *Service
	economy *ledger.Service
	store   *memory.Store
	clock   *clock
	feed    *feed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	locks := guard.NewPlayerLocks(time.Second)
	economy := ledger.NewService(store, locks, nil, policy.DefaultTradeLimits(), logger)
	clk := &clock{now: time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)}
	svc := NewService(store, economy, locks, noContent{}, rng.New(3), testTimeout, logger)
	svc.now = clk.Now
	fd := &feed{events: make(map[int64][]string)}
	svc.WithNotifier(fd)
	return &fixture{svc: svc, economy: economy, store: store, clock: clk, feed: fd}
}

func (f *fixture) player(t *testing.T, id int64, edit func(p *domain.Player)) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.InTx(ctx, func(tx repository.Tx) error {
		p := domain.NewPlayer(id, "p", time.Now())
		if edit != nil {
			edit(p)
		}
		return tx.Players().Create(ctx, p)
	}))
}

func (f *fixture) setState(t *testing.T, id int64, state domain.PlayerState) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.InTx(ctx, func(tx repository.Tx) error {
		p, err := tx.Players().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		p.State = state
		return tx.Players().Update(ctx, p)
	}))
}

func (f *fixture) load(t *testing.T, id int64) *domain.Player {
	t.Helper()
	var p *domain.Player
	require.NoError(t, f.store.Read(context.Background(), func(tx repository.Tx) error {
		var err error
		p, err = tx.Players().Get(context.Background(), id)
		return err
	}))
	return p
}

func (f *fixture) honor(t *testing.T, id int64) int64 {
	t.Helper()
	h, err := f.economy.GetBalance(context.Background(), id, domain.CurrencyHonor)
	require.NoError(t, err)
	return h
}

func TestDuel_Draw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.player(t, 1, nil)
	f.player(t, 2, nil)

	m, err := f.svc.Duel(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, m.Draw())
	assert.Equal(t, MaxRounds, m.Rounds)
	assert.Zero(t, m.RatingDelta)
	assert.Equal(t, int64(10), f.honor(t, 1))
	assert.Equal(t, int64(10), f.honor(t, 2))
	assert.Equal(t, 1, f.load(t, 1).PvP.Draws)
	assert.Equal(t, domain.StateIdle, f.load(t, 2).State)
	assert.Equal(t, []string{"pvp.match"}, f.feed.events[1])
	assert.Equal(t, []string{"pvp.match"}, f.feed.events[2])

	history, err := f.svc.History(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, m.ID, history[0].ID)

	for _, id := range []int64{1, 2} {
		report, err := f.economy.Audit(ctx, id)
		require.NoError(t, err)
		assert.True(t, report.Passed)
	}
}

func TestDuel_Win(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.player(t, 1, func(p *domain.Player) { p.Stats.Strength = 200 })
	f.player(t, 2, nil)

	m, err := f.svc.Duel(ctx, 2, 1)
	require.NoError(t, err)
	require.NotNil(t, m.WinnerID)
	assert.Equal(t, int64(1), *m.WinnerID)
	assert.Equal(t, -16, m.RatingDelta)
	assert.Equal(t, int64(5), f.honor(t, 2))
	assert.Equal(t, int64(25), f.honor(t, 1))

	winner, loser := f.load(t, 1), f.load(t, 2)
	assert.Equal(t, 1016, winner.PvP.Rating)
	assert.Equal(t, 1, winner.PvP.Wins)
	assert.Equal(t, 984, loser.PvP.Rating)
	assert.Equal(t, 1, loser.PvP.Losses)
}

func TestDuel_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.player(t, 1, nil)
	f.player(t, 2, nil)
	f.setState(t, 2, domain.StateInCombat)

	tests := []struct {
		name     string
		a, b     int64
		wantCode string
	}{
		{"self", 1, 1, "VALIDATION_ERROR"},
		{"busy opponent", 1, 2, "INVALID_STATE"},
		{"unknown player", 1, 9, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Duel(ctx, tt.a, tt.b)
			assert.True(t, domain.IsCode(err, tt.wantCode), "got %v", err)
		})
	}
	assert.Zero(t, f.honor(t, 1), "rejected duels pay nothing")
}

func TestQueue_MatchesClosestRating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ratings := map[int64]int{1: 1000, 2: 1500, 3: 1010}
	tickets := map[int64]uuid.UUID{}
	for id, rating := range ratings {
		f.player(t, id, func(p *domain.Player) { p.PvP.Rating = rating })
	}
	for _, id := range []int64{1, 2, 3} {
		tk, err := f.svc.Enqueue(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketQueued, tk.Status)
		assert.Equal(t, ratings[id], tk.Rating)
		tickets[id] = tk.ID
		f.clock.Advance(time.Second)
	}
	_, err := f.svc.Enqueue(ctx, 1)
	assert.True(t, domain.IsKind(err, domain.KindConflict))

	pairs, err := f.svc.MatchPending(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.ElementsMatch(t, []uuid.UUID{tickets[1], tickets[3]}, pairs[0].Tickets[:])
	require.NotNil(t, pairs[0].Match)

	tk, err := f.svc.Status(ctx, tickets[1])
	require.NoError(t, err)
	assert.Equal(t, domain.TicketMatched, tk.Status)
	require.NotNil(t, tk.MatchID)
	assert.Equal(t, pairs[0].Match.ID, *tk.MatchID)

	tk, err = f.svc.Status(ctx, tickets[2])
	require.NoError(t, err)
	assert.Equal(t, domain.TicketQueued, tk.Status, "odd one out waits")

	assert.True(t, domain.IsCode(f.svc.Cancel(ctx, tickets[2], 1), "FORBIDDEN"))
	require.NoError(t, f.svc.Cancel(ctx, tickets[2], 2))
	assert.True(t, domain.IsCode(f.svc.Cancel(ctx, tickets[2], 2), "INVALID_STATE"))

	_, err = f.svc.Status(ctx, uuid.New())
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestQueue_Expiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.player(t, 1, nil)

	tk, err := f.svc.Enqueue(ctx, 1)
	require.NoError(t, err)
	f.clock.Advance(testTimeout)

	got, err := f.svc.Status(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketExpired, got.Status)
	assert.True(t, domain.IsCode(f.svc.Cancel(ctx, tk.ID, 1), "EXPIRED"))

	again, err := f.svc.Enqueue(ctx, 1)
	require.NoError(t, err, "expired tickets free the player")
	assert.NotEqual(t, tk.ID, again.ID)
}

func TestQueue_DropsBusyPlayers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []int64{1, 2} {
		f.player(t, id, nil)
	}
	t1, err := f.svc.Enqueue(ctx, 1)
	require.NoError(t, err)
	t2, err := f.svc.Enqueue(ctx, 2)
	require.NoError(t, err)
	f.setState(t, 2, domain.StateInRaid)

	pairs, err := f.svc.MatchPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pairs)

	got, err := f.svc.Status(ctx, t2.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketDropped, got.Status)
	got, err = f.svc.Status(ctx, t1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketQueued, got.Status)

	_, err = f.svc.Enqueue(ctx, 2)
	assert.True(t, domain.IsCode(err, "INVALID_STATE"))
}

func TestPairByRating(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	ticket := func(rating, minute int) *domain.QueueTicket {
		return &domain.QueueTicket{ID: uuid.New(), Rating: rating, EnqueuedAt: base.Add(time.Duration(minute) * time.Minute)}
	}
	a, b, c, d := ticket(1000, 0), ticket(1100, 1), ticket(1120, 2), ticket(1500, 3)

	pairs := pairByRating([]*domain.QueueTicket{d, b, a, c})
	require.Len(t, pairs, 2)
	assert.Equal(t, [2]*domain.QueueTicket{b, c}, pairs[0])
	assert.Equal(t, [2]*domain.QueueTicket{a, d}, pairs[1])

	// equal gaps favor whoever has waited longest
	e, g, h := ticket(1000, 5), ticket(1050, 7), ticket(1100, 0)
	pairs = pairByRating([]*domain.QueueTicket{e, g, h})
	require.Len(t, pairs, 1)
	assert.Equal(t, [2]*domain.QueueTicket{g, h}, pairs[0])
}

func TestQueue_OverlappingPassesDuelOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const players = 40
	for id := int64(1); id <= players; id++ {
		f.player(t, id, nil)
		_, err := f.svc.Enqueue(ctx, id)
		require.NoError(t, err)
	}

	var (
		wg     sync.WaitGroup
		start  = make(chan struct{})
		counts [2]int
	)
	for i := range counts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			pairs, err := f.svc.MatchPending(ctx)
			assert.NoError(t, err)
			counts[i] = len(pairs)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, players/2, counts[0]+counts[1])
	for id := int64(1); id <= players; id++ {
		p := f.load(t, id)
		assert.Equal(t, 1, p.PvP.Wins+p.PvP.Losses+p.PvP.Draws, "player %d", id)
		assert.Equal(t, int64(10), f.honor(t, id), "player %d", id)
	}
}

func TestQueue_CancelledTicketIsNotClaimed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tickets := map[int64]*domain.QueueTicket{}
	for id := int64(1); id <= 4; id++ {
		f.player(t, id, nil)
		tk, err := f.svc.Enqueue(ctx, id)
		require.NoError(t, err)
		tickets[id] = f.svc.tickets[tk.ID]
	}
	pairs := [][2]*domain.QueueTicket{{tickets[1], tickets[2]}, {tickets[3], tickets[4]}}

	// player 2 leaves between the snapshot and the claim
	require.NoError(t, f.svc.Cancel(ctx, tickets[2].ID, 2))
	claimed := f.svc.claim(pairs)

	require.Len(t, claimed, 1)
	assert.Equal(t, [2]*domain.QueueTicket{tickets[3], tickets[4]}, claimed[0])
	assert.Equal(t, domain.TicketQueued, tickets[1].Status, "partner stays queued")
	assert.Equal(t, domain.TicketCancelled, tickets[2].Status)

	f.svc.drop(tickets[2], "duel failed")
	assert.Equal(t, domain.TicketCancelled, tickets[2].Status, "drop keeps a cancellation")
}
