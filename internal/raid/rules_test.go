package raid

import (
	"testing"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/rng"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testBoss() domain.RaidBoss {
	return domain.RaidBoss{
		ID:         "test_boss",
		Name:       "Test Boss",
		BaseHealth: 1000,
		MinPlayers: 2,
		Abilities: []domain.BossAbility{
			{Name: "smash", Damage: 100, CooldownTicks: 2, StunChance: 0.5, StunTicks: 1},
		},
		EnrageAfter: 10 * time.Minute,
		Loot:        []domain.LootEntry{{ItemID: "dragon_scale", Chance: 0.6}, {ItemID: "ancient_artifact", Chance: 0.25}},
		GoldMin:     100,
		GoldMax:     200,
	}
}

func member(id int64, role domain.RaidRole) *domain.RaidMember {
	return &domain.RaidMember{PlayerID: id, Role: role, Ready: true, HP: 1000, MaxHP: 1000, Attack: 50, HealPower: 100}
}

func inProgress(t *testing.T, members ...*domain.RaidMember) *domain.RaidState {
	t.Helper()
	st, err := NewRaid(uuid.New(), members[0].PlayerID, testBoss(), domain.DifficultyNormal, testTime)
	require.NoError(t, err)
	st.Members = members
	started := testTime
	st.StartedAt = &started
	st.Status = domain.RaidInProgress
	return st
}

func TestNewRaid_Difficulty(t *testing.T) {
	tests := []struct {
		difficulty domain.RaidDifficulty
		health     int64
	}{
		{domain.DifficultyNormal, 1000},
		{domain.DifficultyHeroic, 1500},
		{domain.DifficultyMythic, 2000},
	}
	for _, tt := range tests {
		t.Run(string(tt.difficulty), func(t *testing.T) {
			st, err := NewRaid(uuid.New(), 1, testBoss(), tt.difficulty, testTime)
			require.NoError(t, err)
			assert.Equal(t, tt.health, st.BossHealth)
			assert.Equal(t, tt.health, st.BossMax)
			assert.Equal(t, domain.RaidRecruiting, st.Status)
		})
	}

	_, err := NewRaid(uuid.New(), 1, testBoss(), "nightmare", testTime)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestNewMember(t *testing.T) {
	p := domain.NewPlayer(1, "hero", testTime)
	m := NewMember(p, nil, domain.TalentBonus{}, domain.RoleTank, testTime)
	assert.Equal(t, p.MaxHP*HealthFactor, m.HP)
	assert.Equal(t, m.HP, m.MaxHP)
	assert.Equal(t, p.MaxHP, m.HealPower)
	assert.Positive(t, m.Attack)
	assert.False(t, m.Ready)
}

func TestCanStart(t *testing.T) {
	need := domain.DefaultRaidComposition()
	roster := func(extraDPS int) *domain.RaidState {
		st, err := NewRaid(uuid.New(), 1, testBoss(), domain.DifficultyNormal, testTime)
		require.NoError(t, err)
		id := int64(0)
		add := func(role domain.RaidRole, n int) {
			for range n {
				id++
				st.Members = append(st.Members, member(id, role))
			}
		}
		add(domain.RoleTank, 2)
		add(domain.RoleHealer, 3)
		add(domain.RoleDPS, extraDPS)
		return st
	}

	assert.False(t, CanStart(roster(4), need), "9 members")
	assert.True(t, CanStart(roster(5), need), "10 members")

	st := roster(5)
	st.Members[0].Ready = false
	assert.False(t, CanStart(st, need), "unready tank does not count")

	st = roster(5)
	st.Members[2].Role = domain.RoleDPS
	assert.False(t, CanStart(st, need), "two healers")

	st = roster(5)
	st.Boss.MinPlayers = 12
	assert.False(t, CanStart(st, need), "boss minimum wins over config")
}

func TestAttack(t *testing.T) {
	st := inProgress(t, member(1, domain.RoleDPS), member(2, domain.RoleHealer))

	res, err := Attack(st, 1, rng.Fixed(0.99), testTime)
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.Damage)
	assert.False(t, res.Crit)
	assert.Equal(t, int64(950), st.BossHealth)

	st.Members[0].CritChance = 1
	res, err = Attack(st, 1, rng.Fixed(0.99), testTime)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Damage)
	assert.True(t, res.Crit)

	_, err = Attack(st, 9, rng.Fixed(0), testTime)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	st.Members[1].StunnedFor = 1
	_, err = Attack(st, 2, rng.Fixed(0), testTime)
	assert.True(t, domain.IsCode(err, "INVALID_STATE"), "stunned")
}

func TestAttack_KillCompletes(t *testing.T) {
	st := inProgress(t, member(1, domain.RoleDPS))
	st.BossHealth = 30

	res, err := Attack(st, 1, rng.Fixed(0.99), testTime)
	require.NoError(t, err)
	assert.Equal(t, int64(30), res.Damage, "damage capped at remaining health")
	assert.Equal(t, int64(0), st.BossHealth)
	assert.Equal(t, domain.RaidCompleted, st.Status)
	require.NotNil(t, st.EndedAt)

	_, err = Attack(st, 1, rng.Fixed(0.99), testTime)
	assert.True(t, domain.IsCode(err, "INVALID_STATE"))
}

func TestAttack_RequiresInProgress(t *testing.T) {
	st, err := NewRaid(uuid.New(), 1, testBoss(), domain.DifficultyNormal, testTime)
	require.NoError(t, err)
	st.Members = []*domain.RaidMember{member(1, domain.RoleDPS)}
	_, err = Attack(st, 1, rng.Fixed(0), testTime)
	assert.True(t, domain.IsCode(err, "INVALID_STATE"))
}

func TestHeal(t *testing.T) {
	st := inProgress(t, member(1, domain.RoleHealer), member(2, domain.RoleDPS), member(3, domain.RoleTank))
	st.Members[1].HP = 950

	res, err := Heal(st, 1, 2, testTime)
	require.NoError(t, err)
	assert.Equal(t, 50, res.Healed, "capped at max")
	assert.Equal(t, 1000, res.TargetHP)

	_, err = Heal(st, 2, 1, testTime)
	assert.True(t, domain.IsCode(err, "INVALID_ACTION"), "dps cannot heal")

	st.Members[2].HP = 0
	_, err = Heal(st, 1, 3, testTime)
	assert.True(t, domain.IsCode(err, "INVALID_STATE"), "downed target")
}

func TestTick_TankMitigation(t *testing.T) {
	st := inProgress(t, member(1, domain.RoleTank), member(2, domain.RoleDPS))

	// ability fires, both stun rolls miss
	report := Tick(st, 1, testTime.Add(time.Minute), rng.NewSequence(0.05, 0.9, 0.9))
	require.True(t, report.Applied)
	require.Len(t, report.Abilities, 1)
	assert.Equal(t, []int64{1, 2}, report.Abilities[0].Hits)
	assert.Empty(t, report.Abilities[0].Stunned)
	assert.Equal(t, 940, st.Members[0].HP)
	assert.Equal(t, 900, st.Members[1].HP)
	assert.Equal(t, 2, st.Cooldowns["smash"])
}

func TestTick_Cooldown(t *testing.T) {
	st := inProgress(t, member(1, domain.RoleDPS))
	src := rng.Fixed(0)

	Tick(st, 1, testTime, src)
	assert.Equal(t, 900, st.Members[0].HP)
	Tick(st, 2, testTime, src)
	Tick(st, 3, testTime, src)
	assert.Equal(t, 900, st.Members[0].HP, "on cooldown for two ticks")
	Tick(st, 4, testTime, src)
	assert.Equal(t, 800, st.Members[0].HP)
}

func TestTick_Stun(t *testing.T) {
	st := inProgress(t, member(1, domain.RoleDPS))

	report := Tick(st, 1, testTime, rng.NewSequence(0.05, 0.1))
	require.Len(t, report.Abilities, 1)
	assert.Equal(t, []int64{1}, report.Abilities[0].Stunned)
	assert.Equal(t, 1, st.Members[0].StunnedFor)

	_, err := Attack(st, 1, rng.Fixed(0.99), testTime)
	assert.True(t, domain.IsCode(err, "INVALID_STATE"))

	Tick(st, 2, testTime, rng.Fixed(0.99))
	assert.Zero(t, st.Members[0].StunnedFor)
	_, err = Attack(st, 1, rng.Fixed(0.99), testTime)
	assert.NoError(t, err)
}

func TestTick_Idempotent(t *testing.T) {
	st := inProgress(t, member(1, domain.RoleDPS))

	first := Tick(st, 5, testTime, rng.Fixed(0))
	require.True(t, first.Applied)
	hp := st.Members[0].HP

	for _, seq := range []int64{5, 3} {
		report := Tick(st, seq, testTime, rng.Fixed(0))
		assert.False(t, report.Applied)
	}
	assert.Equal(t, hp, st.Members[0].HP)
	assert.Equal(t, int64(5), st.TickSeq)
}

func TestTick_Enrage(t *testing.T) {
	st := inProgress(t, member(1, domain.RoleDPS))

	report := Tick(st, 1, testTime.Add(10*time.Minute), rng.Fixed(0.99))
	assert.Equal(t, domain.RaidInProgress, report.Status, "exactly at the limit")

	report = Tick(st, 2, testTime.Add(10*time.Minute+time.Second), rng.Fixed(0.99))
	assert.True(t, report.Enraged)
	assert.Equal(t, domain.RaidFailed, st.Status)
}

func TestActions_PastEnrageFail(t *testing.T) {
	late := testTime.Add(time.Hour)

	t.Run("attack cannot land a kill", func(t *testing.T) {
		st := inProgress(t, member(1, domain.RoleDPS))
		st.BossHealth = 10

		res, err := Attack(st, 1, rng.Fixed(0.99), late)
		assert.True(t, domain.IsCode(err, "EXPIRED"), "got %v", err)
		assert.Zero(t, res.Damage)
		assert.Equal(t, int64(10), st.BossHealth)
		assert.Equal(t, domain.RaidFailed, st.Status)
		require.NotNil(t, st.EndedAt)
		assert.Equal(t, late, *st.EndedAt)
		assert.Zero(t, st.Members[0].Damage)
	})

	t.Run("heal", func(t *testing.T) {
		st := inProgress(t, member(1, domain.RoleHealer), member(2, domain.RoleDPS))
		st.Members[1].HP = 500

		_, err := Heal(st, 1, 2, late)
		assert.True(t, domain.IsCode(err, "EXPIRED"), "got %v", err)
		assert.Equal(t, 500, st.Members[1].HP)
		assert.Equal(t, domain.RaidFailed, st.Status)
	})

	t.Run("exactly at the limit still counts", func(t *testing.T) {
		st := inProgress(t, member(1, domain.RoleDPS))
		st.BossHealth = 10

		res, err := Attack(st, 1, rng.Fixed(0.99), testTime.Add(10*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, domain.RaidCompleted, res.Status)
	})
}

func TestTick_Wipe(t *testing.T) {
	st := inProgress(t, member(1, domain.RoleDPS), member(2, domain.RoleDPS))
	st.Members[0].HP = 100
	st.Members[1].HP = 50

	report := Tick(st, 1, testTime, rng.Fixed(0))
	require.Len(t, report.Abilities, 1)
	assert.ElementsMatch(t, []int64{1, 2}, report.Abilities[0].Downed)
	assert.Empty(t, report.Abilities[0].Stunned, "downed members are not stunned")
	assert.Equal(t, domain.RaidFailed, report.Status)
}

func TestBossHealthNeverRises(t *testing.T) {
	st := inProgress(t, member(1, domain.RoleDPS), member(2, domain.RoleHealer), member(3, domain.RoleTank))
	st.Boss.EnrageAfter = 0
	st.Members[0].Attack = 100
	src := rng.NewLocal(42)

	last := st.BossHealth
	for seq := int64(1); seq <= 200 && st.Status == domain.RaidInProgress; seq++ {
		_, _ = Attack(st, 1, src, testTime)
		_, _ = Heal(st, 2, 1, testTime)
		Tick(st, seq, testTime, src)
		require.LessOrEqual(t, st.BossHealth, last)
		require.GreaterOrEqual(t, st.BossHealth, int64(0))
		last = st.BossHealth
	}
	assert.Equal(t, domain.RaidCompleted, st.Status)
}

func TestRollLootAndGold(t *testing.T) {
	st := inProgress(t, member(1, domain.RoleDPS), member(2, domain.RoleTank))

	// first entry drops to member index 1, second misses
	loot := RollLoot(st, rng.NewSequence(0.1, 0.9, 0.9))
	require.Len(t, loot, 1)
	assert.Equal(t, domain.LootAward{ItemID: "dragon_scale", PlayerID: 2}, loot[0])

	assert.Empty(t, RollLoot(st, rng.Fixed(0.99)))

	gold := RollGold(st, rng.Fixed(0))
	assert.Equal(t, map[int64]int64{1: 100, 2: 100}, gold)
	gold = RollGold(st, rng.Fixed(0.999))
	assert.Equal(t, int64(200), gold[1])
}

func TestRecord(t *testing.T) {
	st := inProgress(t, member(1, domain.RoleDPS), member(2, domain.RoleTank))
	finish(st, domain.RaidCompleted, testTime.Add(time.Hour))
	st.Loot = []domain.LootAward{{ItemID: "dragon_scale", PlayerID: 2}}

	rec := Record(st)
	assert.Equal(t, st.ID, rec.ID)
	assert.Equal(t, "test_boss", rec.BossID)
	assert.Equal(t, []int64{1, 2}, rec.MemberIDs)
	assert.Equal(t, testTime.Add(time.Hour), rec.EndedAt)
	assert.Equal(t, st.Loot, rec.Loot)
}
