package domain

import (
	"slices"
	"time"
)

// PlayerState is the mutually exclusive activity tag of a player.
type PlayerState string

const (
	StateIdle     PlayerState = "idle"
	StateInCombat PlayerState = "in_combat"
	StateInRaid   PlayerState = "in_raid"
	StateInDuel   PlayerState = "in_duel"
)

// Stat names a primary attribute.
type Stat string

const (
	StatStrength Stat = "strength"
	StatAgility  Stat = "agility"
	StatVitality Stat = "vitality"
	StatLuck     Stat = "luck"
	StatAccuracy Stat = "accuracy"
	StatDefense  Stat = "defense"
)

// AllStats lists the primary attributes in display order.
func AllStats() []Stat {
	return []Stat{StatStrength, StatAgility, StatVitality, StatLuck, StatAccuracy, StatDefense}
}

// StatBlock holds the six primary attributes.
type StatBlock struct {
	Strength int `json:"strength"`
	Agility  int `json:"agility"`
	Vitality int `json:"vitality"`
	Luck     int `json:"luck"`
	Accuracy int `json:"accuracy"`
	Defense  int `json:"defense"`
}

// Get returns the value of a single stat.
func (s StatBlock) Get(stat Stat) int {
	switch stat {
	case StatStrength:
		return s.Strength
	case StatAgility:
		return s.Agility
	case StatVitality:
		return s.Vitality
	case StatLuck:
		return s.Luck
	case StatAccuracy:
		return s.Accuracy
	case StatDefense:
		return s.Defense
	}
	return 0
}

// Add returns a copy with delta applied to stat.
func (s StatBlock) Add(stat Stat, delta int) StatBlock {
	switch stat {
	case StatStrength:
		s.Strength += delta
	case StatAgility:
		s.Agility += delta
	case StatVitality:
		s.Vitality += delta
	case StatLuck:
		s.Luck += delta
	case StatAccuracy:
		s.Accuracy += delta
	case StatDefense:
		s.Defense += delta
	}
	return s
}

// WeaponProgress is the per-weapon level and learned skill list.
type WeaponProgress struct {
	Level  int      `json:"level"`
	Exp    int      `json:"exp"`
	Skills []string `json:"skills"`
}

// HasSkill reports whether the skill was learned for this weapon.
func (w WeaponProgress) HasSkill(skillID string) bool {
	for _, s := range w.Skills {
		if s == skillID {
			return true
		}
	}
	return false
}

// Inventory maps item id to quantity. Quantities are always positive.
type Inventory map[string]int

// Add increases the quantity of itemID.
func (inv Inventory) Add(itemID string, qty int) {
	if qty <= 0 {
		return
	}
	inv[itemID] += qty
}

// Remove decreases the quantity of itemID, returning false without change if not enough is held.
func (inv Inventory) Remove(itemID string, qty int) bool {
	have := inv[itemID]
	if qty <= 0 || have < qty {
		return false
	}
	if have == qty {
		delete(inv, itemID)
	} else {
		inv[itemID] = have - qty
	}
	return true
}

// Clone returns an independent copy.
func (inv Inventory) Clone() Inventory {
	out := make(Inventory, len(inv))
	for k, v := range inv {
		out[k] = v
	}
	return out
}

// Player is the persistent character record. Balances live in the ledger, not here.
type Player struct {
	ID            int64                     `json:"id"`
	Nickname      string                    `json:"nickname"`
	Level         int                       `json:"level"`
	Exp           int                       `json:"exp"`
	HP            int                       `json:"hp"`
	MaxHP         int                       `json:"max_hp"`
	Floor         int                       `json:"floor"`
	Stats         StatBlock                 `json:"stats"`
	CurrentWeapon string                    `json:"current_weapon,omitempty"`
	Weapons       map[string]WeaponProgress `json:"weapons"`
	Inventory     Inventory                 `json:"inventory"`
	Talents       map[string]int            `json:"talents"`
	Titles        []string                  `json:"titles,omitempty"`
	GuildID       *int64                    `json:"guild_id,omitempty"`
	State         PlayerState               `json:"state"`
	Deaths        int                       `json:"deaths"`
	PvP           PvPRecord                 `json:"pvp"`
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

// PvPRecord is the rating and match tally of a player.
type PvPRecord struct {
	Rating int `json:"rating"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
	Draws  int `json:"draws"`
}

const (
	StartingStat   = 5
	StartingGold   = 100
	StartingRating = 1000
	baseMaxHP      = 80
	hpPerVitality  = 4

	// TalentResetCost is the gold price of clearing a talent tree.
	TalentResetCost = 1000
)

// NewPlayer returns the starting character template.
func NewPlayer(id int64, nickname string, now time.Time) *Player {
	stats := StatBlock{
		Strength: StartingStat,
		Agility:  StartingStat,
		Vitality: StartingStat,
		Luck:     StartingStat,
		Accuracy: StartingStat,
		Defense:  StartingStat,
	}
	maxHP := MaxHPFor(stats)
	return &Player{
		ID:        id,
		Nickname:  nickname,
		Level:     1,
		HP:        maxHP,
		MaxHP:     maxHP,
		Floor:     1,
		Stats:     stats,
		Weapons:   map[string]WeaponProgress{},
		Inventory: Inventory{},
		Talents:   map[string]int{},
		State:     StateIdle,
		PvP:       PvPRecord{Rating: StartingRating},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MaxHPFor derives max health from vitality.
func MaxHPFor(stats StatBlock) int {
	return baseMaxHP + stats.Vitality*hpPerVitality
}

// ExpToNextLevel is the experience needed to leave the given level.
func ExpToNextLevel(level int) int {
	return level * 100
}

// SetHP assigns health clamped to [0, MaxHP].
func (p *Player) SetHP(hp int) {
	p.HP = max(0, min(hp, p.MaxHP))
}

// IsIdle reports whether the player can start a new activity.
func (p *Player) IsIdle() bool {
	return p.State == StateIdle || p.State == ""
}

// Clone returns a deep copy of the player.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	out := *p
	out.Weapons = make(map[string]WeaponProgress, len(p.Weapons))
	for k, w := range p.Weapons {
		w.Skills = append([]string(nil), w.Skills...)
		out.Weapons[k] = w
	}
	out.Inventory = p.Inventory.Clone()
	out.Talents = make(map[string]int, len(p.Talents))
	for k, v := range p.Talents {
		out.Talents[k] = v
	}
	out.Titles = append([]string(nil), p.Titles...)
	if p.GuildID != nil {
		g := *p.GuildID
		out.GuildID = &g
	}
	return &out
}

// AddTitle grants a title once. It reports whether the title was new.
func (p *Player) AddTitle(title string) bool {
	if title == "" || slices.Contains(p.Titles, title) {
		return false
	}
	p.Titles = append(p.Titles, title)
	return true
}
