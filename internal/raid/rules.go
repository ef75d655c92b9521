// Package raid coordinates group encounters against epic bosses. Each active raid
// is owned by a single goroutine; the rules in this file are pure functions over
// the raid snapshot it holds.
package raid

import (
	"fmt"
	"time"

	"github.com/attaboy/tower/internal/combat"
	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/rng"
	"github.com/google/uuid"
)

const (
	// AbilityChance is the per-tick trigger chance of every ability off cooldown.
	AbilityChance = 0.10
	// TankMitigation is the share of ability damage a tank takes.
	TankMitigation = 0.6
	// HealthFactor scales a player's max health into the raid health pool.
	HealthFactor = 10

	critMultiplier = 2
)

// NewRaid builds a recruiting raid. Boss health is base health times the
// difficulty multiplier.
func NewRaid(id uuid.UUID, leaderID int64, boss domain.RaidBoss, difficulty domain.RaidDifficulty, now time.Time) (*domain.RaidState, error) {
	num, den, ok := difficulty.Multiplier()
	if !ok {
		return nil, domain.ErrValidation("unknown difficulty: " + string(difficulty))
	}
	health := boss.BaseHealth * num / den
	return &domain.RaidState{
		ID:         id,
		LeaderID:   leaderID,
		Boss:       boss,
		Difficulty: difficulty,
		Status:     domain.RaidRecruiting,
		BossHealth: health,
		BossMax:    health,
		Cooldowns:  map[string]int{},
		CreatedAt:  now,
	}, nil
}

// NewMember snapshots a player's combat profile for the raid roster.
func NewMember(p *domain.Player, weapon *domain.Weapon, talent domain.TalentBonus, role domain.RaidRole, now time.Time) *domain.RaidMember {
	c := combat.NewCombatant(p, weapon, talent)
	pool := p.MaxHP * HealthFactor
	return &domain.RaidMember{
		PlayerID:   p.ID,
		Role:       role,
		HP:         pool,
		MaxHP:      pool,
		Attack:     c.AttackPower(),
		CritChance: c.CritChance(),
		HealPower:  p.MaxHP,
		JoinedAt:   now,
	}
}

// Composition counts ready members by role.
func Composition(st *domain.RaidState) domain.RaidComposition {
	var c domain.RaidComposition
	for _, m := range st.Members {
		if !m.Ready {
			continue
		}
		c.Total++
		switch m.Role {
		case domain.RoleTank:
			c.Tanks++
		case domain.RoleHealer:
			c.Healers++
		}
	}
	return c
}

// CanStart reports whether the ready roster meets the minimum composition and the
// boss's own minimum.
func CanStart(st *domain.RaidState, need domain.RaidComposition) bool {
	have := Composition(st)
	return have.Tanks >= need.Tanks &&
		have.Healers >= need.Healers &&
		have.Total >= max(need.Total, st.Boss.MinPlayers)
}

func requireInProgress(st *domain.RaidState) error {
	if st.Status != domain.RaidInProgress {
		return domain.ErrInvalidState(fmt.Sprintf("raid is %s", st.Status)).With("status", string(st.Status))
	}
	return nil
}

func requireActive(st *domain.RaidState, playerID int64) (*domain.RaidMember, error) {
	m, ok := st.Member(playerID)
	if !ok {
		return nil, domain.ErrNotFound("raid member", fmt.Sprint(playerID))
	}
	if m.Downed() {
		return nil, domain.ErrInvalidState("member is downed")
	}
	if m.StunnedFor > 0 {
		return nil, domain.ErrInvalidState("member is stunned").With("stunned_for", m.StunnedFor)
	}
	return m, nil
}

// AttackResult reports one member attack.
type AttackResult struct {
	Damage     int64             `json:"damage"`
	Crit       bool              `json:"crit"`
	BossHealth int64             `json:"boss_health"`
	Status     domain.RaidStatus `json:"status"`
}

// enraged fails the raid once the enrage deadline has passed.
func enraged(st *domain.RaidState, now time.Time) bool {
	if st.StartedAt == nil || st.Boss.EnrageAfter <= 0 || now.Sub(*st.StartedAt) <= st.Boss.EnrageAfter {
		return false
	}
	finish(st, domain.RaidFailed, now)
	return true
}

func errEnraged(st *domain.RaidState) error {
	return domain.ErrExpired("the boss has enraged").With("raid_id", st.ID.String())
}

// Attack applies one member's hit to the boss. Boss health only goes down; a
// kill completes the raid. Past the enrage deadline the raid fails instead.
func Attack(st *domain.RaidState, playerID int64, src rng.Source, now time.Time) (AttackResult, error) {
	if err := requireInProgress(st); err != nil {
		return AttackResult{}, err
	}
	if enraged(st, now) {
		return AttackResult{BossHealth: st.BossHealth, Status: st.Status}, errEnraged(st)
	}
	m, err := requireActive(st, playerID)
	if err != nil {
		return AttackResult{}, err
	}
	dmg := int64(max(1, m.Attack))
	crit := rng.Chance(src, m.CritChance)
	if crit {
		dmg *= critMultiplier
	}
	dmg = min(dmg, st.BossHealth)
	st.BossHealth -= dmg
	m.Damage += dmg
	if st.BossHealth <= 0 {
		finish(st, domain.RaidCompleted, now)
	}
	return AttackResult{Damage: dmg, Crit: crit, BossHealth: st.BossHealth, Status: st.Status}, nil
}

// HealResult reports one heal.
type HealResult struct {
	Healed   int `json:"healed"`
	TargetHP int `json:"target_hp"`
}

// Heal restores a living member's raid health. Only healers heal; downed members
// stay down.
func Heal(st *domain.RaidState, healerID, targetID int64, now time.Time) (HealResult, error) {
	if err := requireInProgress(st); err != nil {
		return HealResult{}, err
	}
	if enraged(st, now) {
		return HealResult{}, errEnraged(st)
	}
	h, err := requireActive(st, healerID)
	if err != nil {
		return HealResult{}, err
	}
	if h.Role != domain.RoleHealer {
		return HealResult{}, domain.ErrInvalidAction("only healers can heal").With("role", string(h.Role))
	}
	target, ok := st.Member(targetID)
	if !ok {
		return HealResult{}, domain.ErrNotFound("raid member", fmt.Sprint(targetID))
	}
	if target.Downed() {
		return HealResult{}, domain.ErrInvalidState("target is downed")
	}
	before := target.HP
	target.HP = min(target.MaxHP, target.HP+h.HealPower)
	healed := target.HP - before
	h.Healing += int64(healed)
	return HealResult{Healed: healed, TargetHP: target.HP}, nil
}

// AbilityHit is one boss ability that fired during a tick.
type AbilityHit struct {
	Ability string  `json:"ability"`
	Hits    []int64 `json:"hit_players"`
	Stunned []int64 `json:"stunned_players,omitempty"`
	Downed  []int64 `json:"downed_players,omitempty"`
}

// TickReport is the outcome of one tick.
type TickReport struct {
	Seq        int64             `json:"seq"`
	Applied    bool              `json:"applied"`
	Enraged    bool              `json:"enraged,omitempty"`
	Abilities  []AbilityHit      `json:"abilities,omitempty"`
	BossHealth int64             `json:"boss_health"`
	Status     domain.RaidStatus `json:"status"`
}

// Tick advances the boss by one step. A seq not above the last applied one is a
// no-op, so a re-delivered tick never applies twice.
func Tick(st *domain.RaidState, seq int64, now time.Time, src rng.Source) TickReport {
	report := TickReport{Seq: seq, BossHealth: st.BossHealth, Status: st.Status}
	if st.Status != domain.RaidInProgress || seq <= st.TickSeq {
		return report
	}
	st.TickSeq = seq
	report.Applied = true

	if enraged(st, now) {
		report.Enraged = true
		report.Status = st.Status
		return report
	}

	for _, m := range st.Members {
		if m.StunnedFor > 0 {
			m.StunnedFor--
		}
	}
	for _, a := range st.Boss.Abilities {
		if st.Cooldowns[a.Name] > 0 {
			st.Cooldowns[a.Name]--
			continue
		}
		if !rng.Chance(src, AbilityChance) {
			continue
		}
		st.Cooldowns[a.Name] = a.CooldownTicks
		report.Abilities = append(report.Abilities, fire(st, a, src))
	}

	switch {
	case allDowned(st):
		finish(st, domain.RaidFailed, now)
	case st.BossHealth <= 0:
		finish(st, domain.RaidCompleted, now)
	}
	report.BossHealth = st.BossHealth
	report.Status = st.Status
	return report
}

func fire(st *domain.RaidState, a domain.BossAbility, src rng.Source) AbilityHit {
	hit := AbilityHit{Ability: a.Name}
	for _, m := range st.Members {
		if m.Downed() {
			continue
		}
		dmg := a.Damage
		if m.Role == domain.RoleTank {
			dmg = int(float64(dmg) * TankMitigation)
		}
		m.HP = max(0, m.HP-dmg)
		hit.Hits = append(hit.Hits, m.PlayerID)
		if m.Downed() {
			m.StunnedFor = 0
			hit.Downed = append(hit.Downed, m.PlayerID)
			continue
		}
		if a.StunTicks > 0 && rng.Chance(src, a.StunChance) {
			m.StunnedFor = max(m.StunnedFor, a.StunTicks)
			hit.Stunned = append(hit.Stunned, m.PlayerID)
		}
	}
	return hit
}

func allDowned(st *domain.RaidState) bool {
	for _, m := range st.Members {
		if !m.Downed() {
			return false
		}
	}
	return true
}

func finish(st *domain.RaidState, status domain.RaidStatus, now time.Time) {
	st.Status = status
	st.EndedAt = &now
}

// RollLoot draws every loot entry independently; each drop goes to one uniformly
// random member.
func RollLoot(st *domain.RaidState, src rng.Source) []domain.LootAward {
	if len(st.Members) == 0 {
		return nil
	}
	var awards []domain.LootAward
	for _, entry := range st.Boss.Loot {
		if !rng.Chance(src, entry.Chance) {
			continue
		}
		winner := st.Members[src.IntN(len(st.Members))]
		awards = append(awards, domain.LootAward{ItemID: entry.ItemID, PlayerID: winner.PlayerID})
	}
	return awards
}

// RollGold samples each member's gold reward from the boss's range.
func RollGold(st *domain.RaidState, src rng.Source) map[int64]int64 {
	out := make(map[int64]int64, len(st.Members))
	for _, m := range st.Members {
		out[m.PlayerID] = src.Range(st.Boss.GoldMin, st.Boss.GoldMax)
	}
	return out
}

// Record builds the archive row for a finished raid.
func Record(st *domain.RaidState) *domain.RaidRecord {
	ended := time.Time{}
	if st.EndedAt != nil {
		ended = *st.EndedAt
	}
	return &domain.RaidRecord{
		ID:         st.ID,
		BossID:     st.Boss.ID,
		BossName:   st.Boss.Name,
		Difficulty: st.Difficulty,
		Status:     st.Status,
		LeaderID:   st.LeaderID,
		MemberIDs:  st.MemberIDs(),
		BossHealth: st.BossHealth,
		StartedAt:  st.StartedAt,
		EndedAt:    ended,
		Loot:       append([]domain.LootAward(nil), st.Loot...),
	}
}
