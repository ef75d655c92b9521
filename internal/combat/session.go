// Package combat resolves turn-based PvE encounters.
//
// Resolve is a pure function of (session, action, random draws); the Service owns
// the per-player locking, the active-session index and settlement.
package combat

import (
	"math"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/google/uuid"
)

// ActionKind is the player's choice for one turn.
type ActionKind string

const (
	ActionAttack   ActionKind = "attack"
	ActionDefend   ActionKind = "defend"
	ActionUseItem  ActionKind = "use_item"
	ActionFlee     ActionKind = "flee"
	ActionUseSkill ActionKind = "use_skill"
)

// Action is one player intent. Item is resolved from the catalog by the service
// before the action reaches Resolve.
type Action struct {
	Kind    ActionKind   `json:"kind"`
	ItemID  string       `json:"item_id,omitempty"`
	SkillID string       `json:"skill_id,omitempty"`
	Item    *domain.Item `json:"-"`
}

// Status is the lifecycle of a session.
type Status string

const (
	StatusActive  Status = "active"
	StatusVictory Status = "victory"
	StatusDefeat  Status = "defeat"
	StatusFled    Status = "fled"
)

// Terminal reports whether the encounter has ended.
func (s Status) Terminal() bool { return s != StatusActive }

// Outcome maps a terminal status to the recorded outcome.
func (s Status) Outcome() domain.CombatOutcome {
	switch s {
	case StatusVictory:
		return domain.CombatVictory
	case StatusDefeat:
		return domain.CombatDefeat
	}
	return domain.CombatFled
}

// Combatant is the player's side of an encounter.
type Combatant struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	HP          int                `json:"hp"`
	MaxHP       int                `json:"max_hp"`
	Stats       domain.StatBlock   `json:"stats"`
	Weapon      *domain.Weapon     `json:"weapon,omitempty"`
	WeaponLevel int                `json:"weapon_level"`
	Skills      []string           `json:"skills"`
	Talent      domain.TalentBonus `json:"talent"`
	Statuses    domain.Statuses    `json:"statuses"`
	Defending   bool               `json:"defending"`
}

// Opponent is the scaled monster or boss with its live health.
type Opponent struct {
	domain.OpponentTemplate
	MaxHP    int             `json:"max_hp"`
	Statuses domain.Statuses `json:"statuses"`
}

// Reward is the victory payout decided by the draws of the final turn.
type Reward struct {
	Exp  int      `json:"exp"`
	Gold int64    `json:"gold"`
	Loot []string `json:"loot,omitempty"`
}

// Session is one ephemeral encounter. It is never persisted.
type Session struct {
	ID          uuid.UUID `json:"id"`
	PlayerID    int64     `json:"player_id"`
	Floor       int       `json:"floor"`
	Player      Combatant `json:"player"`
	Opponent    Opponent  `json:"opponent"`
	Turn        int       `json:"turn"`
	Status      Status    `json:"status"`
	Reward      *Reward   `json:"reward,omitempty"`
	PenaltyRoll int64     `json:"-"`
	StartedAt   time.Time `json:"started_at"`
}

// Clone returns a deep copy so Resolve never aliases its input.
func (s *Session) Clone() *Session {
	out := *s
	out.Player.Skills = append([]string(nil), s.Player.Skills...)
	out.Player.Statuses = append(domain.Statuses(nil), s.Player.Statuses...)
	out.Opponent.Statuses = append(domain.Statuses(nil), s.Opponent.Statuses...)
	out.Opponent.Loot = append([]string(nil), s.Opponent.Loot...)
	if s.Reward != nil {
		r := *s.Reward
		r.Loot = append([]string(nil), s.Reward.Loot...)
		out.Reward = &r
	}
	return &out
}

// NewOpponent scales a template to the floor and fills its health.
func NewOpponent(t domain.OpponentTemplate, floor int) Opponent {
	scaled := t.Scaled(floor)
	return Opponent{OpponentTemplate: scaled, MaxHP: scaled.HP}
}

// NewCombatant snapshots a player for an encounter. weapon may be nil for unarmed.
// Usable skills are the learned ones whose stat requirement is met, the base skill,
// and any skill unlocked by a talent regardless of its requirement.
func NewCombatant(p *domain.Player, weapon *domain.Weapon, talent domain.TalentBonus) Combatant {
	c := Combatant{
		ID:     p.ID,
		Name:   p.Nickname,
		HP:     p.HP,
		MaxHP:  p.MaxHP,
		Stats:  p.Stats,
		Talent: talent,
	}
	if weapon == nil {
		return c
	}
	w := *weapon
	c.Weapon = &w
	progress := p.Weapons[w.ID]
	c.WeaponLevel = max(1, progress.Level)

	seen := map[string]bool{}
	add := func(id string) {
		if _, ok := w.Skills[id]; ok && !seen[id] {
			seen[id] = true
			c.Skills = append(c.Skills, id)
		}
	}
	add(w.BaseSkill)
	for _, id := range progress.Skills {
		if sk, ok := w.Skills[id]; ok && p.Stats.Get(w.Stat) >= sk.MinStat {
			add(id)
		}
	}
	if talent.UnlockSkill != "" {
		add(talent.UnlockSkill)
	}
	return c
}

const (
	weaponLevelBonus = 2
	baseCritChance   = 0.10
	critPerLuck      = 0.005
	maxStatCrit      = 0.5
	baseFleeChance   = 0.5
	fleePerAgility   = 0.02
	maxFleeChance    = 0.95
	defaultCritMult  = 2.0
)

// BaseDamage is the single damage formula: max(1, attack - defense/2).
func BaseDamage(attack, defense int) int {
	return max(1, attack-max(0, defense)/2)
}

// Stat returns a stat including active timed buffs.
func (c *Combatant) Stat(stat domain.Stat) int {
	return c.Stats.Get(stat) + c.Statuses.StatBonus(stat)
}

// AttackPower is weapon damage plus the governing stat and the weapon level bonus,
// scaled by talent damage. Unarmed fighters attack with strength.
func (c *Combatant) AttackPower() int {
	atk := c.Stat(domain.StatStrength)
	if c.Weapon != nil {
		atk = c.Weapon.Damage + c.Stat(c.Weapon.Stat) + (c.WeaponLevel-1)*weaponLevelBonus
	}
	return int(math.Floor(float64(atk) * (1 + c.Talent.DamagePct)))
}

// DefensePower is the defense stat scaled by talent defense.
func (c *Combatant) DefensePower() int {
	return int(math.Floor(float64(c.Stat(domain.StatDefense)) * (1 + c.Talent.DefensePct)))
}

// CritChance is min(0.5, 0.10 + luck*0.005) plus talent and item bonuses.
func (c *Combatant) CritChance() float64 {
	return min(maxStatCrit, baseCritChance+float64(c.Stat(domain.StatLuck))*critPerLuck) +
		c.Talent.CritChance + c.Statuses.CritBonus()
}

// FleeChance is 0.5 + agility*0.02, capped below certainty.
func (c *Combatant) FleeChance() float64 {
	return min(maxFleeChance, baseFleeChance+float64(c.Stat(domain.StatAgility))*fleePerAgility)
}

// ArmorPen sums talent penetration and active penetration statuses, capped at 1.
func (c *Combatant) ArmorPen() float64 {
	pen := c.Talent.ArmorPen
	for _, st := range c.Statuses {
		if st.Kind == domain.EffectArmorPenetration && st.Remaining > 0 {
			pen += st.Fraction
		}
	}
	return min(1, pen)
}

// HasSkill reports whether the skill is usable in this encounter.
func (c *Combatant) HasSkill(id string) bool {
	for _, s := range c.Skills {
		if s == id {
			return true
		}
	}
	return false
}

func (c *Combatant) heal(amount int) int {
	before := c.HP
	c.HP = min(c.MaxHP, c.HP+max(0, amount))
	return c.HP - before
}

func (o *Opponent) heal(amount int) int {
	before := o.HP
	o.HP = min(o.MaxHP, o.HP+max(0, amount))
	return o.HP - before
}
