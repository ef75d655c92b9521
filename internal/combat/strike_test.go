package combat

import (
	"testing"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/rng"
	"github.com/stretchr/testify/assert"
)

func TestStrike_Damage(t *testing.T) {
	dampened := StrikeMods{DamageFactor: 0.75}
	tests := []struct {
		name      string
		strength  int
		defense   int
		skill     domain.Skill
		src       rng.Source
		mods      StrikeMods
		wantTotal int
		wantCrit  bool
	}{
		{"plain hit", 10, 4, domain.Skill{}, noCrit, StrikeMods{}, 8, false},
		{"crit doubles", 10, 4, domain.Skill{}, rng.Fixed(0), StrikeMods{}, 16, true},
		{"damage factor after crit", 10, 4, domain.Skill{}, rng.Fixed(0), dampened, 12, true},
		{"damage factor without crit", 10, 4, domain.Skill{}, noCrit, dampened, 6, false},
		{"custom crit multiplier", 10, 4, domain.Skill{CritMult: 1.5}, rng.Fixed(0), StrikeMods{}, 12, true},
		{"multi hit floors each hit", 10, 4, domain.Skill{DamageMult: 0.5, Hits: 3}, noCrit, StrikeMods{}, 12, false},
		{"full penetration ignores defense", 10, 4, domain.Skill{ArmorPen: 1}, noCrit, StrikeMods{}, 10, false},
		{"dampened hit still lands one", 0, 100, domain.Skill{}, noCrit, dampened, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			att := fighter(tt.strength)
			h := Strike(&att, tt.defense, tt.skill, tt.src, tt.mods)
			assert.Equal(t, tt.wantTotal, h.Total)
			assert.Equal(t, tt.wantCrit, h.Crit)
		})
	}
}

func TestStrike_ControlFactorScalesStun(t *testing.T) {
	bash := domain.Skill{ID: "bash", StunChance: 1, StunTurns: 2}
	halved := StrikeMods{ControlFactor: 0.5}

	att := fighter(10)
	assert.Equal(t, 2, Strike(&att, 4, bash, rng.Fixed(0.4), halved).StunTurns)
	assert.Zero(t, Strike(&att, 4, bash, rng.Fixed(0.6), halved).StunTurns)
	assert.Equal(t, 2, Strike(&att, 4, bash, rng.Fixed(0.6), StrikeMods{}).StunTurns, "certain stun draws nothing")
}

func TestCombatant_Recoil(t *testing.T) {
	att := fighter(10)
	att.HP = 90
	h := Strike(&att, 4, domain.Skill{LifeSteal: 0.5}, noCrit, StrikeMods{})
	healed, self := att.Recoil(h)
	assert.Equal(t, 4, healed)
	assert.Zero(t, self)
	assert.Equal(t, 94, att.HP)

	att.HP = 1
	healed, self = att.Recoil(Hit{Total: 8, SelfDamage: 2})
	assert.Zero(t, healed)
	assert.Equal(t, 2, self)
	assert.Equal(t, 1, att.HP, "self damage never knocks out")
}
