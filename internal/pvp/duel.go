// Package pvp runs player duels and the rated matchmaking queue.
package pvp

import (
	"github.com/attaboy/tower/internal/combat"
	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/rng"
)

const (
	// MaxRounds caps a duel; both fighters standing after it is a draw.
	MaxRounds = 20
	// DamageFactor dampens every PvP hit.
	DamageFactor = 0.75
	// ControlFactor dampens stun chances.
	ControlFactor = 0.5
)

var dampened = combat.StrikeMods{DamageFactor: DamageFactor, ControlFactor: ControlFactor}

var unarmed = domain.Skill{ID: "strike", Name: "Strike"}

// Strike is one attack in the duel log.
type Strike struct {
	Round      int    `json:"round"`
	AttackerID int64  `json:"attacker_id"`
	Skill      string `json:"skill,omitempty"`
	Damage     int    `json:"damage"`
	Crit       bool   `json:"crit,omitempty"`
	Stunned    bool   `json:"stunned,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
}

// Result is the outcome of a duel. WinnerID is nil on a draw.
type Result struct {
	Rounds       int      `json:"rounds"`
	WinnerID     *int64   `json:"winner_id,omitempty"`
	ChallengerHP int      `json:"challenger_hp"`
	OpponentHP   int      `json:"opponent_hp"`
	Log          []Strike `json:"log"`
}

type fighter struct {
	c       combat.Combatant
	skill   domain.Skill
	stunned int
}

func newFighter(c combat.Combatant) *fighter {
	c.HP = c.MaxHP
	return &fighter{c: c, skill: bestSkill(&c)}
}

// bestSkill picks the learned skill with the highest damage per turn. Earlier
// skills win ties.
func bestSkill(c *combat.Combatant) domain.Skill {
	if c.Weapon == nil {
		return unarmed
	}
	best, score := unarmed, 0.0
	for _, id := range c.Skills {
		sk, ok := c.Weapon.Skills[id]
		if !ok {
			continue
		}
		if s := sk.Multiplier() * float64(sk.HitCount()); s > score {
			best, score = sk, s
		}
	}
	return best
}

// Duel fights two combatants at full health, challenger first each round.
func Duel(challenger, opponent combat.Combatant, src rng.Source) Result {
	a, b := newFighter(challenger), newFighter(opponent)
	var res Result
	for round := 1; round <= MaxRounds; round++ {
		res.Rounds = round
		res.Log = append(res.Log, strike(round, a, b, src))
		if b.c.HP == 0 {
			break
		}
		res.Log = append(res.Log, strike(round, b, a, src))
		if a.c.HP == 0 {
			break
		}
	}
	res.ChallengerHP, res.OpponentHP = a.c.HP, b.c.HP
	switch {
	case b.c.HP == 0:
		id := a.c.ID
		res.WinnerID = &id
	case a.c.HP == 0:
		id := b.c.ID
		res.WinnerID = &id
	}
	return res
}

func strike(round int, atk, def *fighter, src rng.Source) Strike {
	s := Strike{Round: round, AttackerID: atk.c.ID, Skill: atk.skill.ID}
	if atk.stunned > 0 {
		atk.stunned--
		s.Skipped = true
		return s
	}
	h := combat.Strike(&atk.c, def.c.DefensePower(), atk.skill, src, dampened)
	s.Crit = h.Crit
	s.Damage = min(def.c.HP, h.Total)
	def.c.HP -= s.Damage

	if h.StunTurns > 0 && def.c.HP > 0 {
		def.stunned = max(def.stunned, h.StunTurns)
		s.Stunned = true
	}
	atk.c.Recoil(h)
	return s
}
