package combat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/guard"
	"github.com/attaboy/tower/internal/ledger"
	"github.com/attaboy/tower/internal/policy"
	"github.com/attaboy/tower/internal/projection"
	"github.com/attaboy/tower/internal/repository"
	"github.com/attaboy/tower/internal/repository/memory"
	"github.com/attaboy/tower/internal/rng"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type stubContent struct {
	opponents map[string]domain.OpponentTemplate
	items     map[string]domain.Item
}

func newStubContent() *stubContent {
	return &stubContent{
		opponents: map[string]domain.OpponentTemplate{
			"dummy": {ID: "dummy", Name: "Dummy", Kind: domain.OpponentMonster, Floor: 1, HP: 1, XP: 10, GoldMin: 10, GoldMax: 10},
			"brute": {ID: "brute", Name: "Brute", Kind: domain.OpponentMonster, Floor: 1, HP: 10000, Attack: 1000, Defense: 0, XP: 1},
			"wall":  {ID: "wall", Name: "Wall", Kind: domain.OpponentMonster, Floor: 1, HP: 10000},
			"deep":  {ID: "deep", Name: "Deep One", Kind: domain.OpponentMonster, Floor: 5, HP: 1},
			"king":  {ID: "king", Name: "Dummy King", Kind: domain.OpponentBoss, Floor: 1, HP: 1, XP: 50, GoldMin: 100, GoldMax: 100, MinLevel: 2},
		},
		items: map[string]domain.Item{
			"health_potion": {ID: "health_potion", Kind: domain.ItemConsumable, Effects: []domain.Effect{domain.HealFlat{Amount: 50}}},
		},
	}
}

func (c *stubContent) Monster(int, rng.Source) (domain.OpponentTemplate, error) {
	return c.opponents["dummy"], nil
}

func (c *stubContent) FloorBoss(int) (domain.OpponentTemplate, error) { return c.opponents["king"], nil }

func (c *stubContent) Opponent(id string) (domain.OpponentTemplate, bool) {
	t, ok := c.opponents[id]
	return t, ok
}

func (c *stubContent) Weapon(string) (domain.Weapon, bool) { return domain.Weapon{}, false }

func (c *stubContent) Item(id string) (domain.Item, bool) {
	it, ok := c.items[id]
	return it, ok
}

func (c *stubContent) TalentBonus(*domain.Player, string) domain.TalentBonus { return domain.TalentBonus{} }

type fixture struct {
	store   *memory.Store
	economy *ledger.Service
	svc     *Service
}

func newFixture(t *testing.T, permadeath bool) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	locks := guard.NewPlayerLocks(time.Second)
	economy := ledger.NewService(store, locks, projection.NewMemoryCache(), policy.DefaultTradeLimits(), logger)
	svc := NewService(store, economy, locks, newStubContent(), rng.New(1), permadeath, logger)
	return &fixture{store: store, economy: economy, svc: svc}
}

func (f *fixture) addPlayer(t *testing.T, id int64, gold int64, mutate func(p *domain.Player)) {
	t.Helper()
	require.NoError(t, f.store.InTx(context.Background(), func(tx repository.Tx) error {
		p := domain.NewPlayer(id, "hero", testEpoch)
		if mutate != nil {
			mutate(p)
		}
		return tx.Players().Create(context.Background(), p)
	}))
	if gold > 0 {
		_, err := f.economy.AdjustBalance(context.Background(), domain.AdjustParams{
			PlayerID: id, Currency: domain.CurrencyGold, Delta: gold, Type: domain.TxOpeningGrant,
		})
		require.NoError(t, err)
	}
}

func (f *fixture) player(t *testing.T, id int64) *domain.Player {
	t.Helper()
	var p *domain.Player
	require.NoError(t, f.store.Read(context.Background(), func(tx repository.Tx) error {
		var err error
		p, err = tx.Players().Get(context.Background(), id)
		return err
	}))
	return p
}

func TestService_VictorySettlesAndClosesSession(t *testing.T) {
	f := newFixture(t, false)
	f.addPlayer(t, 1, 100, nil)
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, 1, OpponentSpec{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateInCombat, f.player(t, 1).State)
	assert.Equal(t, 1, f.svc.ActiveCount())

	res, err := f.svc.Act(ctx, sess.ID, Action{Kind: ActionAttack})
	require.NoError(t, err)
	assert.Equal(t, StatusVictory, res.Status)

	p := f.player(t, 1)
	assert.Equal(t, domain.StateIdle, p.State)
	assert.Equal(t, 10, p.Exp)
	gold, err := f.economy.GetBalance(ctx, 1, domain.CurrencyGold)
	require.NoError(t, err)
	assert.Equal(t, int64(110), gold)

	_, err = f.svc.Act(ctx, sess.ID, Action{Kind: ActionAttack})
	assert.True(t, domain.IsCode(err, "ENCOUNTER_RESOLVED"))
	_, err = f.svc.Act(ctx, uuid.New(), Action{Kind: ActionAttack})
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
	assert.Zero(t, f.svc.ActiveCount())

	report, err := f.economy.Audit(ctx, 1)
	require.NoError(t, err)
	assert.True(t, report.Passed)
}

func TestService_StartRequiresIdle(t *testing.T) {
	f := newFixture(t, false)
	f.addPlayer(t, 1, 0, nil)
	f.addPlayer(t, 2, 0, func(p *domain.Player) { p.State = domain.StateInRaid })
	ctx := context.Background()

	_, err := f.svc.Start(ctx, 1, OpponentSpec{})
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, 1, OpponentSpec{})
	assert.True(t, domain.IsCode(err, "ALREADY_IN_COMBAT"))

	_, err = f.svc.Start(ctx, 2, OpponentSpec{})
	assert.True(t, domain.IsCode(err, "ALREADY_IN_COMBAT"))

	_, err = f.svc.Start(ctx, 99, OpponentSpec{})
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestService_OpponentSelection(t *testing.T) {
	tests := []struct {
		name    string
		spec    OpponentSpec
		mutate  func(p *domain.Player)
		wantErr string
		wantOpp string
	}{
		{"random monster", OpponentSpec{}, nil, "", "dummy"},
		{"named monster", OpponentSpec{OpponentID: "brute"}, nil, "", "brute"},
		{"unknown monster", OpponentSpec{OpponentID: "ghost"}, nil, "NOT_FOUND", ""},
		{"monster from a deeper floor", OpponentSpec{OpponentID: "deep"}, nil, "INVALID_STATE", ""},
		{"boss without key", OpponentSpec{Boss: true}, func(p *domain.Player) { p.Level = 2 }, "INSUFFICIENT_STOCK", ""},
		{"boss below level", OpponentSpec{Boss: true}, func(p *domain.Player) { p.Inventory.Add(BossKeyItem, 1) }, "INVALID_STATE", ""},
		{"boss with key", OpponentSpec{Boss: true}, func(p *domain.Player) {
			p.Level = 2
			p.Inventory.Add(BossKeyItem, 1)
		}, "", "king"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			f.addPlayer(t, 1, 0, tt.mutate)

			sess, err := f.svc.Start(context.Background(), 1, tt.spec)
			if tt.wantErr != "" {
				assert.True(t, domain.IsCode(err, tt.wantErr), "got %v", err)
				assert.Equal(t, domain.StateIdle, f.player(t, 1).State)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOpp, sess.Opponent.ID)
			if tt.spec.Boss {
				assert.Zero(t, f.player(t, 1).Inventory[BossKeyItem])
			}
		})
	}
}

func TestService_BossVictoryOpensNextFloor(t *testing.T) {
	f := newFixture(t, false)
	f.addPlayer(t, 1, 0, func(p *domain.Player) {
		p.Level = 2
		p.Inventory.Add(BossKeyItem, 1)
	})
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, 1, OpponentSpec{Boss: true})
	require.NoError(t, err)
	res, err := f.svc.Act(ctx, sess.ID, Action{Kind: ActionAttack})
	require.NoError(t, err)
	require.Equal(t, StatusVictory, res.Status)

	assert.Equal(t, 2, f.player(t, 1).Floor)
}

func TestService_UseItemConsumesInventory(t *testing.T) {
	f := newFixture(t, false)
	f.addPlayer(t, 1, 0, func(p *domain.Player) {
		p.HP = 20
		p.Inventory.Add("health_potion", 1)
	})
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, 1, OpponentSpec{OpponentID: "brute"})
	require.NoError(t, err)

	res, err := f.svc.Act(ctx, sess.ID, Action{Kind: ActionUseItem, ItemID: "health_potion"})
	require.NoError(t, err)
	assert.Equal(t, 70, res.PlayerHP)
	assert.Zero(t, f.player(t, 1).Inventory["health_potion"])

	_, err = f.svc.Act(ctx, sess.ID, Action{Kind: ActionUseItem, ItemID: "health_potion"})
	assert.True(t, domain.IsCode(err, "INSUFFICIENT_STOCK"))
	cur, err := f.svc.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, cur.Player.HP, "a rejected item leaves the session unchanged")

	_, err = f.svc.Act(ctx, sess.ID, Action{Kind: ActionUseItem, ItemID: "mystery"})
	assert.True(t, domain.IsCode(err, "INVALID_ACTION"))
}

func TestService_DefeatAppliesPenalty(t *testing.T) {
	f := newFixture(t, false)
	f.addPlayer(t, 1, 100, nil)
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, 1, OpponentSpec{OpponentID: "brute"})
	require.NoError(t, err)
	res, err := f.svc.Act(ctx, sess.ID, Action{Kind: ActionAttack})
	require.NoError(t, err)
	require.Equal(t, StatusDefeat, res.Status)

	assert.GreaterOrEqual(t, res.GoldLost, int64(10))
	assert.LessOrEqual(t, res.GoldLost, int64(50))
	gold, err := f.economy.GetBalance(ctx, 1, domain.CurrencyGold)
	require.NoError(t, err)
	assert.Equal(t, 100-res.GoldLost, gold)

	p := f.player(t, 1)
	assert.Equal(t, p.MaxHP/2, p.HP)
	assert.Equal(t, domain.StateIdle, p.State)
}

func TestService_DefeatWithPermadeathResets(t *testing.T) {
	f := newFixture(t, true)
	f.addPlayer(t, 1, 100, func(p *domain.Player) { p.Level = 4 })
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, 1, OpponentSpec{OpponentID: "brute"})
	require.NoError(t, err)
	res, err := f.svc.Act(ctx, sess.ID, Action{Kind: ActionAttack})
	require.NoError(t, err)

	assert.True(t, res.Permadeath)
	assert.Equal(t, int64(100), res.GoldLost)
	p := f.player(t, 1)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, 1, p.Deaths)
}

func TestService_FleeEndsWithoutReward(t *testing.T) {
	f := newFixture(t, false)
	f.addPlayer(t, 1, 100, func(p *domain.Player) { p.Stats.Agility = 10 })
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, 1, OpponentSpec{OpponentID: "wall"})
	require.NoError(t, err)

	for range 50 {
		res, err := f.svc.Act(ctx, sess.ID, Action{Kind: ActionFlee})
		require.NoError(t, err)
		if res.Status != StatusFled {
			continue
		}
		p := f.player(t, 1)
		assert.Equal(t, domain.StateIdle, p.State)
		assert.Equal(t, res.PlayerHP, p.HP)
		assert.Zero(t, p.Exp)
		gold, err := f.economy.GetBalance(ctx, 1, domain.CurrencyGold)
		require.NoError(t, err)
		assert.Equal(t, int64(100), gold)
		return
	}
	t.Fatal("never fled")
}

func TestService_ConcurrentActsAreSerialized(t *testing.T) {
	f := newFixture(t, false)
	f.addPlayer(t, 1, 0, func(p *domain.Player) { p.Inventory.Add("health_potion", 5) })
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, 1, OpponentSpec{OpponentID: "brute"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Act(ctx, sess.ID, Action{Kind: ActionUseItem, ItemID: "health_potion"}); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	assert.Zero(t, f.player(t, 1).Inventory["health_potion"])
}

type failingStore struct {
	repository.Store
	fail atomic.Bool
}

func (s *failingStore) InTx(ctx context.Context, fn func(repository.Tx) error) error {
	if s.fail.Swap(false) {
		return errors.New("connection reset")
	}
	return s.Store.InTx(ctx, fn)
}

func TestService_FailedSettleReplaysSameDraws(t *testing.T) {
	f := newFixture(t, false)
	f.addPlayer(t, 1, 100, nil)
	ctx := context.Background()
	flaky := &failingStore{Store: f.store}
	f.svc.store = flaky

	sess, err := f.svc.Start(ctx, 1, OpponentSpec{})
	require.NoError(t, err)
	before := f.svc.sessions[sess.ID].src.Clone()
	replay := f.svc.sessions[sess.ID].src.Clone()

	flaky.fail.Store(true)
	_, err = f.svc.Act(ctx, sess.ID, Action{Kind: ActionAttack})
	require.Error(t, err)
	assert.Equal(t, 1, f.svc.ActiveCount(), "session survives a failed settle")
	assert.Equal(t, domain.StateInCombat, f.player(t, 1).State)

	after := f.svc.sessions[sess.ID].src.Clone()
	for range 8 {
		assert.Equal(t, before.Float64(), after.Float64())
	}

	res, err := f.svc.Act(ctx, sess.ID, Action{Kind: ActionAttack})
	require.NoError(t, err)
	assert.Equal(t, StatusVictory, res.Status)

	_, want, err := Resolve(sess, Action{Kind: ActionAttack}, replay)
	require.NoError(t, err)
	assert.Equal(t, want.Events, res.Events)
}
