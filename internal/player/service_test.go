package player

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/attaboy/tower/internal/catalog"
	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/guard"
	"github.com/attaboy/tower/internal/ledger"
	"github.com/attaboy/tower/internal/policy"
	"github.com/attaboy/tower/internal/repository"
	"github.com/attaboy/tower/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *ledger.Service, *memory.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	locks := guard.NewPlayerLocks(time.Second)
	economy := ledger.NewService(store, locks, nil, policy.DefaultTradeLimits(), logger)
	return NewService(store, economy, locks, catalog.Default(), logger), economy, store
}

func edit(t *testing.T, store *memory.Store, id int64, fn func(p *domain.Player)) {
	t.Helper()
	require.NoError(t, store.InTx(context.Background(), func(tx repository.Tx) error {
		p, err := tx.Players().GetForUpdate(context.Background(), id)
		if err != nil {
			return err
		}
		fn(p)
		return tx.Players().Update(context.Background(), p)
	}))
}

func TestRegister(t *testing.T) {
	svc, economy, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Register(ctx, 7, "  Aria ")
	require.NoError(t, err)
	assert.Equal(t, "Aria", p.Nickname)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, 100, p.MaxHP)
	assert.Equal(t, domain.StateIdle, p.State)

	gold, err := economy.GetBalance(ctx, 7, domain.CurrencyGold)
	require.NoError(t, err)
	assert.Equal(t, int64(domain.StartingGold), gold)

	_, err = svc.Register(ctx, 7, "Again")
	assert.True(t, domain.IsKind(err, domain.KindConflict))

	_, err = svc.Register(ctx, 8, "x")
	assert.True(t, domain.IsCode(err, "INVALID_LENGTH"))

	_, err = svc.Get(ctx, 99)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestLevelUp(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, 1, "hero")
	require.NoError(t, err)

	_, err = svc.LevelUp(ctx, 1)
	assert.True(t, domain.IsCode(err, "INVALID_STATE"))

	edit(t, store, 1, func(p *domain.Player) {
		p.Exp = 130
		p.HP = 3
	})
	p, err := svc.LevelUp(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, 30, p.Exp)
	assert.Equal(t, 6, p.Stats.Vitality)
	assert.Equal(t, 104, p.MaxHP)
	assert.Equal(t, 104, p.HP)
}

func TestLevelUp_RequiresIdle(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, 1, "hero")
	require.NoError(t, err)
	edit(t, store, 1, func(p *domain.Player) {
		p.Exp = 500
		p.State = domain.StateInCombat
	})

	_, err = svc.LevelUp(ctx, 1)
	assert.True(t, domain.IsCode(err, "INVALID_STATE"))
}

func TestWeaponsAndSkills(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, 1, "hero")
	require.NoError(t, err)

	_, err = svc.LearnSkill(ctx, 1, "power_strike")
	assert.True(t, domain.IsCode(err, "INVALID_STATE"), "no weapon")

	_, err = svc.SelectWeapon(ctx, 1, "laser")
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	p, err := svc.SelectWeapon(ctx, 1, "sword")
	require.NoError(t, err)
	assert.Equal(t, "sword", p.CurrentWeapon)
	assert.Equal(t, []string{"slash"}, p.Weapons["sword"].Skills)

	_, err = svc.LearnSkill(ctx, 1, "power_strike")
	assert.True(t, domain.IsCode(err, "INVALID_STATE"), "strength 5 < 10")

	edit(t, store, 1, func(p *domain.Player) { p.Stats.Strength = 10 })
	p, err = svc.LearnSkill(ctx, 1, "power_strike")
	require.NoError(t, err)
	assert.Equal(t, []string{"slash", "power_strike"}, p.Weapons["sword"].Skills)

	_, err = svc.LearnSkill(ctx, 1, "power_strike")
	assert.True(t, domain.IsKind(err, domain.KindConflict))
	_, err = svc.LearnSkill(ctx, 1, "quick_strike")
	assert.True(t, domain.IsKind(err, domain.KindNotFound), "dagger skill on a sword")
}

func TestLearnTalent(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, 1, "hero")
	require.NoError(t, err)

	_, err = svc.LearnTalent(ctx, 1, "sword1")
	assert.True(t, domain.IsCode(err, "INVALID_STATE"), "weapon not owned")

	_, err = svc.SelectWeapon(ctx, 1, "sword")
	require.NoError(t, err)
	_, err = svc.LearnTalent(ctx, 1, "sword1")
	assert.True(t, domain.IsCode(err, "INSUFFICIENT_STOCK"), "level 1 has no points")

	edit(t, store, 1, func(p *domain.Player) { p.Level = 4 })
	_, err = svc.LearnTalent(ctx, 1, "sword1")
	require.NoError(t, err)
	p, err := svc.LearnTalent(ctx, 1, "sword2")
	require.NoError(t, err)
	assert.Zero(t, p.TalentPoints(catalog.Default().TalentCost))

	_, err = svc.LearnTalent(ctx, 1, "sword1")
	assert.True(t, domain.IsKind(err, domain.KindConflict))
}

func TestResetTalents(t *testing.T) {
	setup := func(t *testing.T, gold int64) (*Service, *ledger.Service, *memory.Store) {
		svc, economy, store := newTestService(t)
		ctx := context.Background()
		_, err := svc.Register(ctx, 1, "hero")
		require.NoError(t, err)
		_, err = svc.SelectWeapon(ctx, 1, "sword")
		require.NoError(t, err)
		edit(t, store, 1, func(p *domain.Player) { p.Level = 4 })
		_, err = svc.LearnTalent(ctx, 1, "sword1")
		require.NoError(t, err)
		_, err = economy.AdjustBalance(ctx, domain.AdjustParams{
			PlayerID: 1, Currency: domain.CurrencyGold, Delta: gold, Type: domain.TxAdminAdjust,
		})
		require.NoError(t, err)
		return svc, economy, store
	}

	t.Run("refunds spent points for gold", func(t *testing.T) {
		svc, economy, _ := setup(t, domain.TalentResetCost)
		ctx := context.Background()
		before, err := svc.Get(ctx, 1)
		require.NoError(t, err)
		points := before.TalentPoints(catalog.Default().TalentCost)

		p, err := svc.ResetTalents(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, p.Talents)
		assert.Equal(t, points+catalog.Default().TalentCost("sword1"), p.TalentPoints(catalog.Default().TalentCost))

		gold, err := economy.GetBalance(ctx, 1, domain.CurrencyGold)
		require.NoError(t, err)
		assert.Equal(t, int64(domain.StartingGold), gold)

		report, err := economy.Audit(ctx, 1)
		require.NoError(t, err)
		assert.True(t, report.Passed)
	})

	t.Run("short of gold keeps talents", func(t *testing.T) {
		svc, _, _ := setup(t, 0)
		ctx := context.Background()
		_, err := svc.ResetTalents(ctx, 1)
		assert.True(t, domain.IsCode(err, "INSUFFICIENT_FUNDS"))
		p, err := svc.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, p.Talents["sword1"])
	})

	t.Run("nothing to reset", func(t *testing.T) {
		svc, _, _ := setup(t, domain.TalentResetCost)
		ctx := context.Background()
		_, err := svc.ResetTalents(ctx, 1)
		require.NoError(t, err)
		_, err = svc.ResetTalents(ctx, 1)
		assert.True(t, domain.IsCode(err, "INVALID_STATE"))
	})
}

func TestPurchase(t *testing.T) {
	svc, economy, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, 1, "hero")
	require.NoError(t, err)

	p, err := svc.Purchase(ctx, 1, "health_potion", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Inventory["health_potion"])
	gold, err := economy.GetBalance(ctx, 1, domain.CurrencyGold)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gold)

	_, err = svc.Purchase(ctx, 1, "health_potion", 1)
	assert.True(t, domain.IsCode(err, "INSUFFICIENT_FUNDS"))
	p, err = svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Inventory["health_potion"], "failed purchase leaves inventory alone")

	_, err = svc.Purchase(ctx, 1, "goblin_ear", 1)
	assert.True(t, domain.IsKind(err, domain.KindNotFound), "materials are not sold")
	_, err = svc.Purchase(ctx, 1, "health_potion", 0)
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	report, err := economy.Audit(ctx, 1)
	require.NoError(t, err)
	assert.True(t, report.Passed)
}

func TestUseUpgrade(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, 1, "hero")
	require.NoError(t, err)
	edit(t, store, 1, func(p *domain.Player) {
		p.Inventory.Add("armor_upgrade", 1)
		p.Inventory.Add("weapon_upgrade", 1)
	})

	p, err := svc.UseUpgrade(ctx, 1, "armor_upgrade")
	require.NoError(t, err)
	assert.Equal(t, 10, p.Stats.Defense)
	assert.Zero(t, p.Inventory["armor_upgrade"])

	_, err = svc.UseUpgrade(ctx, 1, "weapon_upgrade")
	assert.True(t, domain.IsCode(err, "INVALID_STATE"), "no weapon")

	_, err = svc.SelectWeapon(ctx, 1, "axe")
	require.NoError(t, err)
	p, err = svc.UseUpgrade(ctx, 1, "weapon_upgrade")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Weapons["axe"].Level)

	_, err = svc.UseUpgrade(ctx, 1, "weapon_upgrade")
	assert.True(t, domain.IsCode(err, "INSUFFICIENT_STOCK"))
	_, err = svc.UseUpgrade(ctx, 1, "health_potion")
	assert.True(t, domain.IsCode(err, "INVALID_ACTION"))
}

func TestRecover(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	for _, id := range []int64{1, 2, 3} {
		_, err := svc.Register(ctx, id, "hero")
		require.NoError(t, err)
	}
	edit(t, store, 1, func(p *domain.Player) { p.State = domain.StateInCombat })
	edit(t, store, 2, func(p *domain.Player) { p.State = domain.StateInRaid })

	n, err := svc.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	for _, id := range []int64{1, 2, 3} {
		p, err := svc.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StateIdle, p.State)
	}
}
