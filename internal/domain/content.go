package domain

import "math"

// OpponentKind distinguishes ordinary monsters from floor bosses.
type OpponentKind string

const (
	OpponentMonster OpponentKind = "monster"
	OpponentBoss    OpponentKind = "boss"
)

// OpponentTraits are optional behaviors of a PvE opponent.
type OpponentTraits struct {
	Regen        int     `json:"regen,omitempty"`
	LifeSteal    float64 `json:"life_steal,omitempty"`
	PoisonChance float64 `json:"poison_chance,omitempty"`
	PoisonDamage int     `json:"poison_damage,omitempty"`
	PoisonTurns  int     `json:"poison_turns,omitempty"`
	DodgeChance  float64 `json:"dodge_chance,omitempty"`
	StunChance   float64 `json:"stun_chance,omitempty"`
}

// OpponentTemplate is the unscaled definition of a PvE opponent.
type OpponentTemplate struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Kind       OpponentKind   `json:"kind"`
	Floor      int            `json:"floor"`
	HP         int            `json:"hp"`
	Attack     int            `json:"attack"`
	Defense    int            `json:"defense"`
	XP         int            `json:"xp"`
	GoldMin    int64          `json:"gold_min"`
	GoldMax    int64          `json:"gold_max"`
	Loot       []string       `json:"loot,omitempty"`
	LootChance float64        `json:"loot_chance,omitempty"`
	MinLevel   int            `json:"min_level,omitempty"`
	Traits     OpponentTraits `json:"traits"`
}

// ScaleFactor returns the stat multiplier for an opponent kind on a floor.
func ScaleFactor(kind OpponentKind, floor int) float64 {
	if floor < 1 {
		floor = 1
	}
	step := 0.2
	if kind == OpponentBoss {
		step = 0.5
	}
	return 1 + float64(floor-1)*step
}

// Scaled applies the floor multiplier to hp, attack, defense and xp with ceiling rounding.
func (t OpponentTemplate) Scaled(floor int) OpponentTemplate {
	f := ScaleFactor(t.Kind, floor)
	scale := func(v int) int { return int(math.Ceil(float64(v) * f)) }
	t.HP = scale(t.HP)
	t.Attack = scale(t.Attack)
	t.Defense = scale(t.Defense)
	t.XP = scale(t.XP)
	t.Loot = append([]string(nil), t.Loot...)
	return t
}

// Skill is a weapon technique with modifiers applied on top of the base damage formula.
type Skill struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	MinStat    int     `json:"min_stat"`
	DamageMult float64 `json:"damage_mult,omitempty"`
	Hits       int     `json:"hits,omitempty"`
	ArmorPen   float64 `json:"armor_pen,omitempty"`
	StunChance float64 `json:"stun_chance,omitempty"`
	StunTurns  int     `json:"stun_turns,omitempty"`
	CritChance float64 `json:"crit_chance,omitempty"`
	CritMult   float64 `json:"crit_mult,omitempty"`
	SelfDamage float64 `json:"self_damage,omitempty"`
	LifeSteal  float64 `json:"life_steal,omitempty"`
}

// Multiplier returns the damage multiplier, defaulting to 1.
func (s Skill) Multiplier() float64 {
	if s.DamageMult <= 0 {
		return 1
	}
	return s.DamageMult
}

// HitCount returns the number of strikes, defaulting to 1.
func (s Skill) HitCount() int {
	return max(1, s.Hits)
}

// Weapon is a weapon family with its governing stat and skill list.
type Weapon struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Damage    int              `json:"damage"`
	Stat      Stat             `json:"stat"`
	BaseSkill string           `json:"base_skill"`
	Skills    map[string]Skill `json:"skills"`
}

// ItemKind classifies shop and loot items.
type ItemKind string

const (
	ItemConsumable ItemKind = "consumable"
	ItemUpgrade    ItemKind = "upgrade"
	ItemKey        ItemKind = "key"
	ItemMaterial   ItemKind = "material"
)

// Item is a catalog entry. Effects apply when a consumable is used in combat.
type Item struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Kind        ItemKind `json:"kind"`
	Price       int64    `json:"price,omitempty"`
	Effects     []Effect `json:"-"`
	StatBonus   Stat     `json:"stat_bonus,omitempty"`
	BonusAmount int      `json:"bonus_amount,omitempty"`
}

// Purchasable reports whether the shop sells the item.
func (i Item) Purchasable() bool { return i.Price > 0 }

// TalentBonus is the passive modifier granted by a learned talent.
type TalentBonus struct {
	DamagePct   float64 `json:"damage_pct,omitempty"`
	DefensePct  float64 `json:"defense_pct,omitempty"`
	CritChance  float64 `json:"crit_chance,omitempty"`
	StunChance  float64 `json:"stun_chance,omitempty"`
	ArmorPen    float64 `json:"armor_pen,omitempty"`
	UnlockSkill string  `json:"unlock_skill,omitempty"`
}

// Add sums two bonuses. UnlockSkill keeps the receiver's value when set.
func (b TalentBonus) Add(o TalentBonus) TalentBonus {
	b.DamagePct += o.DamagePct
	b.DefensePct += o.DefensePct
	b.CritChance += o.CritChance
	b.StunChance += o.StunChance
	b.ArmorPen += o.ArmorPen
	if b.UnlockSkill == "" {
		b.UnlockSkill = o.UnlockSkill
	}
	return b
}

// Talent is one node of a weapon talent tree.
type Talent struct {
	ID     string      `json:"id"`
	Weapon string      `json:"weapon"`
	Name   string      `json:"name"`
	Cost   int         `json:"cost"`
	Bonus  TalentBonus `json:"bonus"`
}

// TalentPoints is the number of unspent points: one per level above the first,
// minus the cost of every learned talent.
func (p *Player) TalentPoints(costOf func(id string) int) int {
	spent := 0
	for id, rank := range p.Talents {
		if rank > 0 {
			spent += costOf(id)
		}
	}
	return max(0, p.Level-1-spent)
}
