package domain

// EffectKind tags the closed set of combat effects.
type EffectKind string

const (
	EffectHealFlat         EffectKind = "heal_flat"
	EffectStatBuffTimed    EffectKind = "stat_buff_timed"
	EffectDamageOverTime   EffectKind = "damage_over_time"
	EffectStunTurns        EffectKind = "stun_turns"
	EffectArmorPenetration EffectKind = "armor_penetration"
	EffectCritChanceBonus  EffectKind = "crit_chance_bonus"
)

// Effect is a sealed variant. Only the types in this file implement it.
type Effect interface {
	Kind() EffectKind
	effect()
}

// HealFlat restores a fixed amount of health immediately.
type HealFlat struct {
	Amount int `json:"amount"`
}

// StatBuffTimed raises one stat for a number of turns.
type StatBuffTimed struct {
	Stat   Stat `json:"stat"`
	Amount int  `json:"amount"`
	Turns  int  `json:"turns"`
}

// DamageOverTime deals PerTurn damage at the end of each round.
type DamageOverTime struct {
	PerTurn int `json:"per_turn"`
	Turns   int `json:"turns"`
}

// StunTurns makes the target skip its next actions.
type StunTurns struct {
	Turns int `json:"turns"`
}

// ArmorPenetration ignores a fraction of the defender's defense.
type ArmorPenetration struct {
	Fraction float64 `json:"fraction"`
}

// CritChanceBonus adds to critical chance for a number of turns.
type CritChanceBonus struct {
	Bonus float64 `json:"bonus"`
	Turns int     `json:"turns"`
}

func (HealFlat) Kind() EffectKind         { return EffectHealFlat }
func (StatBuffTimed) Kind() EffectKind    { return EffectStatBuffTimed }
func (DamageOverTime) Kind() EffectKind   { return EffectDamageOverTime }
func (StunTurns) Kind() EffectKind        { return EffectStunTurns }
func (ArmorPenetration) Kind() EffectKind { return EffectArmorPenetration }
func (CritChanceBonus) Kind() EffectKind  { return EffectCritChanceBonus }

func (HealFlat) effect()         {}
func (StatBuffTimed) effect()    {}
func (DamageOverTime) effect()   {}
func (StunTurns) effect()        {}
func (ArmorPenetration) effect() {}
func (CritChanceBonus) effect()  {}

// StatusEffect is a timed effect currently attached to a combatant.
type StatusEffect struct {
	Kind      EffectKind `json:"kind"`
	Stat      Stat       `json:"stat,omitempty"`
	Magnitude int        `json:"magnitude,omitempty"`
	Fraction  float64    `json:"fraction,omitempty"`
	Remaining int        `json:"remaining"`
}

// AsStatus converts a timed effect to its status form. Instant effects return false.
func AsStatus(e Effect) (StatusEffect, bool) {
	switch v := e.(type) {
	case HealFlat:
		return StatusEffect{}, false
	case ArmorPenetration:
		return StatusEffect{}, false
	case StatBuffTimed:
		return StatusEffect{Kind: v.Kind(), Stat: v.Stat, Magnitude: v.Amount, Remaining: v.Turns}, v.Turns > 0
	case DamageOverTime:
		return StatusEffect{Kind: v.Kind(), Magnitude: v.PerTurn, Remaining: v.Turns}, v.Turns > 0
	case StunTurns:
		return StatusEffect{Kind: v.Kind(), Remaining: v.Turns}, v.Turns > 0
	case CritChanceBonus:
		return StatusEffect{Kind: v.Kind(), Fraction: v.Bonus, Remaining: v.Turns}, v.Turns > 0
	}
	return StatusEffect{}, false
}

// Statuses is the set of active status effects on one combatant.
type Statuses []StatusEffect

// Has reports whether a status of the given kind is active.
func (s Statuses) Has(kind EffectKind) bool {
	for _, e := range s {
		if e.Kind == kind && e.Remaining > 0 {
			return true
		}
	}
	return false
}

// StatBonus sums active timed buffs for stat.
func (s Statuses) StatBonus(stat Stat) int {
	total := 0
	for _, e := range s {
		if e.Kind == EffectStatBuffTimed && e.Stat == stat && e.Remaining > 0 {
			total += e.Magnitude
		}
	}
	return total
}

// CritBonus sums active crit chance bonuses.
func (s Statuses) CritBonus() float64 {
	total := 0.0
	for _, e := range s {
		if e.Kind == EffectCritChanceBonus && e.Remaining > 0 {
			total += e.Fraction
		}
	}
	return total
}

// Tick decrements every status and drops expired ones.
func (s Statuses) Tick() Statuses {
	out := s[:0:0]
	for _, e := range s {
		e.Remaining--
		if e.Remaining > 0 {
			out = append(out, e)
		}
	}
	return out
}

// Consume decrements the first active status of kind by one turn.
func (s Statuses) Consume(kind EffectKind) Statuses {
	out := append(Statuses(nil), s...)
	for i := range out {
		if out[i].Kind == kind && out[i].Remaining > 0 {
			out[i].Remaining--
			break
		}
	}
	return out.prune()
}

func (s Statuses) prune() Statuses {
	out := s[:0:0]
	for _, e := range s {
		if e.Remaining > 0 {
			out = append(out, e)
		}
	}
	return out
}
