package domain

import (
	"time"

	"github.com/google/uuid"
)

// RaidDifficulty scales boss health.
type RaidDifficulty string

const (
	DifficultyNormal RaidDifficulty = "normal"
	DifficultyHeroic RaidDifficulty = "heroic"
	DifficultyMythic RaidDifficulty = "mythic"
)

// Multiplier returns the health multiplier for the difficulty as num/den.
func (d RaidDifficulty) Multiplier() (num, den int64, ok bool) {
	switch d {
	case DifficultyNormal:
		return 1, 1, true
	case DifficultyHeroic:
		return 3, 2, true
	case DifficultyMythic:
		return 2, 1, true
	}
	return 0, 0, false
}

// RaidRole is the member's function in the group.
type RaidRole string

const (
	RoleTank   RaidRole = "tank"
	RoleHealer RaidRole = "healer"
	RoleDPS    RaidRole = "dps"
)

// Valid reports whether r is a known role.
func (r RaidRole) Valid() bool {
	return r == RoleTank || r == RoleHealer || r == RoleDPS
}

// RaidStatus is the raid lifecycle state.
type RaidStatus string

const (
	RaidRecruiting RaidStatus = "recruiting"
	RaidInProgress RaidStatus = "in_progress"
	RaidCompleted  RaidStatus = "completed"
	RaidFailed     RaidStatus = "failed"
)

// Terminal reports whether the raid has ended.
func (s RaidStatus) Terminal() bool {
	return s == RaidCompleted || s == RaidFailed
}

// BossAbility is one periodic raid boss attack.
type BossAbility struct {
	Name          string  `json:"name"`
	Damage        int     `json:"damage"`
	CooldownTicks int     `json:"cooldown_ticks"`
	StunChance    float64 `json:"stun_chance"`
	StunTicks     int     `json:"stun_ticks"`
}

// LootEntry is one independent drop in a loot table.
type LootEntry struct {
	ItemID string  `json:"item_id"`
	Chance float64 `json:"chance"`
}

// RaidBoss is the content definition of an epic boss.
type RaidBoss struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	BaseHealth  int64         `json:"base_health"`
	Abilities   []BossAbility `json:"abilities"`
	EnrageAfter time.Duration `json:"enrage_after"`
	Loot        []LootEntry   `json:"loot"`
	GoldMin     int64         `json:"gold_min"`
	GoldMax     int64         `json:"gold_max"`
	MinPlayers  int           `json:"min_players"`
	Title       string        `json:"title,omitempty"`
}

// RaidMember is one roster entry in an active raid.
type RaidMember struct {
	PlayerID   int64     `json:"player_id"`
	Role       RaidRole  `json:"role"`
	Ready      bool      `json:"ready"`
	HP         int       `json:"hp"`
	MaxHP      int       `json:"max_hp"`
	Attack     int       `json:"attack"`
	CritChance float64   `json:"crit_chance"`
	HealPower  int       `json:"heal_power"`
	StunnedFor int       `json:"stunned_for"`
	Damage     int64     `json:"damage_dealt"`
	Healing    int64     `json:"healing_done"`
	JoinedAt   time.Time `json:"joined_at"`
}

// Downed reports whether the member is out of the fight.
func (m *RaidMember) Downed() bool { return m.HP <= 0 }

// RaidState is a snapshot of an active raid.
type RaidState struct {
	ID         uuid.UUID      `json:"id"`
	LeaderID   int64          `json:"leader_id"`
	Boss       RaidBoss       `json:"boss"`
	Difficulty RaidDifficulty `json:"difficulty"`
	Status     RaidStatus     `json:"status"`
	BossHealth int64          `json:"boss_health"`
	BossMax    int64          `json:"boss_max_health"`
	Members    []*RaidMember  `json:"members"`
	Cooldowns  map[string]int `json:"cooldowns"`
	TickSeq    int64          `json:"tick_seq"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	EndedAt    *time.Time     `json:"ended_at,omitempty"`
	Loot       []LootAward    `json:"loot,omitempty"`
}

// Member returns the roster entry for playerID.
func (r *RaidState) Member(playerID int64) (*RaidMember, bool) {
	for _, m := range r.Members {
		if m.PlayerID == playerID {
			return m, true
		}
	}
	return nil, false
}

// MemberIDs lists the roster in join order.
func (r *RaidState) MemberIDs() []int64 {
	ids := make([]int64, 0, len(r.Members))
	for _, m := range r.Members {
		ids = append(ids, m.PlayerID)
	}
	return ids
}

// Clone returns a deep copy suitable for handing to readers.
func (r *RaidState) Clone() *RaidState {
	out := *r
	out.Members = make([]*RaidMember, len(r.Members))
	for i, m := range r.Members {
		mm := *m
		out.Members[i] = &mm
	}
	out.Cooldowns = make(map[string]int, len(r.Cooldowns))
	for k, v := range r.Cooldowns {
		out.Cooldowns[k] = v
	}
	out.Boss.Abilities = append([]BossAbility(nil), r.Boss.Abilities...)
	out.Boss.Loot = append([]LootEntry(nil), r.Boss.Loot...)
	out.Loot = append([]LootAward(nil), r.Loot...)
	return &out
}

// LootAward is an item dropped at raid completion and the member who received it.
type LootAward struct {
	ItemID   string `json:"item_id"`
	PlayerID int64  `json:"player_id"`
}

// RaidRecord is the archived history row of a finished raid.
type RaidRecord struct {
	ID         uuid.UUID      `json:"id"`
	BossID     string         `json:"boss_id"`
	BossName   string         `json:"boss_name"`
	Difficulty RaidDifficulty `json:"difficulty"`
	Status     RaidStatus     `json:"status"`
	LeaderID   int64          `json:"leader_id"`
	MemberIDs  []int64        `json:"member_ids"`
	BossHealth int64          `json:"boss_health"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	EndedAt    time.Time      `json:"ended_at"`
	Loot       []LootAward    `json:"loot"`
}

// RaidComposition is the minimum ready roster required to start.
type RaidComposition struct {
	Tanks   int `json:"tanks"`
	Healers int `json:"healers"`
	Total   int `json:"total"`
}

// DefaultRaidComposition is 2 tanks, 3 healers and 10 members.
func DefaultRaidComposition() RaidComposition {
	return RaidComposition{Tanks: 2, Healers: 3, Total: 10}
}
