package combat

import (
	"math"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/rng"
)

// StrikeMods scales a strike for the mode it is fought in. A zero factor means 1.
type StrikeMods struct {
	DamageFactor  float64
	ControlFactor float64
}

// Hit is a resolved strike that has not been applied to either side yet.
type Hit struct {
	Total      int
	Crit       bool
	StunTurns  int
	LifeSteal  int
	SelfDamage int
}

// Strike resolves one attack against a defense value. Armor penetration lowers the
// defense, the multiplier scales each hit and one crit roll covers every hit. The
// damage factor applies to the per-hit damage after the crit. Draws: crit, then stun.
func Strike(att *Combatant, defense int, sk domain.Skill, src rng.Source, mods StrikeMods) Hit {
	pen := min(1, att.ArmorPen()+sk.ArmorPen)
	def := int(math.Floor(float64(defense) * (1 - pen)))
	perHit := max(1, int(math.Floor(float64(BaseDamage(att.AttackPower(), def))*sk.Multiplier())))

	var h Hit
	h.Crit = rng.Chance(src, att.CritChance()+sk.CritChance)
	if h.Crit {
		mult := defaultCritMult
		if sk.CritMult > 0 {
			mult = sk.CritMult
		}
		perHit = int(math.Floor(float64(perHit) * mult))
	}
	if f := mods.DamageFactor; f > 0 && f != 1 {
		perHit = max(1, int(math.Floor(float64(perHit)*f)))
	}
	h.Total = perHit * sk.HitCount()

	stun := sk.StunChance + att.Talent.StunChance
	if f := mods.ControlFactor; f > 0 {
		stun *= f
	}
	if stun > 0 && rng.Chance(src, stun) {
		h.StunTurns = max(1, sk.StunTurns)
	}
	h.LifeSteal = int(float64(h.Total) * sk.LifeSteal)
	h.SelfDamage = int(float64(h.Total) * sk.SelfDamage)
	return h
}

// Recoil applies a hit's life steal and self-damage to the attacker. Self-damage
// never takes the attacker below 1 HP.
func (c *Combatant) Recoil(h Hit) (healed, self int) {
	if h.LifeSteal > 0 {
		healed = c.heal(h.LifeSteal)
	}
	if h.SelfDamage > 0 {
		self = h.SelfDamage
		c.HP = max(1, c.HP-self)
	}
	return healed, self
}
