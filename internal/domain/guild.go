package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// GuildRank is the ordered membership rank.
type GuildRank string

const (
	RankRecruit GuildRank = "recruit"
	RankMember  GuildRank = "member"
	RankOfficer GuildRank = "officer"
	RankLeader  GuildRank = "leader"
)

var rankOrder = map[GuildRank]int{
	RankRecruit: 0,
	RankMember:  1,
	RankOfficer: 2,
	RankLeader:  3,
}

// Level returns the position of the rank, or -1 if unknown.
func (r GuildRank) Level() int {
	if lvl, ok := rankOrder[r]; ok {
		return lvl
	}
	return -1
}

// Valid reports whether r is a known rank.
func (r GuildRank) Valid() bool { return r.Level() >= 0 }

// AtLeast reports whether r is the same as or above other.
func (r GuildRank) AtLeast(other GuildRank) bool { return r.Level() >= other.Level() }

// Next returns the rank one step up, and false at the top.
func (r GuildRank) Next() (GuildRank, bool) {
	switch r {
	case RankRecruit:
		return RankMember, true
	case RankMember:
		return RankOfficer, true
	case RankOfficer:
		return RankLeader, true
	}
	return r, false
}

// Prev returns the rank one step down, and false at the bottom.
func (r GuildRank) Prev() (GuildRank, bool) {
	switch r {
	case RankLeader:
		return RankOfficer, true
	case RankOfficer:
		return RankMember, true
	case RankMember:
		return RankRecruit, true
	}
	return r, false
}

// GuildMember is one roster entry.
type GuildMember struct {
	PlayerID     int64     `json:"player_id"`
	Rank         GuildRank `json:"rank"`
	Contribution int64     `json:"contribution"`
	JoinedAt     time.Time `json:"joined_at"`
}

// BankItem is a stack of items in the guild bank with per-depositor attribution.
type BankItem struct {
	ItemID      string        `json:"item_id"`
	Quantity    int           `json:"quantity"`
	DepositedBy map[int64]int `json:"deposited_by"`
}

// Guild is the aggregate root for membership and the shared bank.
// BankGold only changes together with a matching ledger entry on a member.
type Guild struct {
	ID        int64                  `json:"id"`
	Name      string                 `json:"name"`
	Tag       string                 `json:"tag"`
	Level     int                    `json:"level"`
	Exp       int64                  `json:"exp"`
	LeaderID  int64                  `json:"leader_id"`
	Members   map[int64]*GuildMember `json:"members"`
	Bank      map[string]*BankItem   `json:"bank"`
	BankGold  int64                  `json:"bank_gold"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

const (
	GuildNameMin          = 3
	GuildNameMax          = 24
	GuildTagMin           = 2
	GuildTagMax           = 4
	ContributionPerItem   = 10
	baseGuildCapacity     = 10
	capacityPerGuildLevel = 5
	baseGuildLevelExp     = 1000
)

// Capacity is the hard roster cap for the guild's level.
func (g *Guild) Capacity() int {
	return GuildCapacity(g.Level)
}

// GuildCapacity returns 10 + level*5.
func GuildCapacity(level int) int {
	return baseGuildCapacity + level*capacityPerGuildLevel
}

// GuildExpToLevel returns the experience needed to leave level: 1000*2^(level-1).
func GuildExpToLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	return int64(baseGuildLevelExp) << (level - 1)
}

// Member returns the roster entry for playerID.
func (g *Guild) Member(playerID int64) (*GuildMember, bool) {
	m, ok := g.Members[playerID]
	return m, ok
}

// LeaderCount counts members holding the Leader rank.
func (g *Guild) LeaderCount() int {
	n := 0
	for _, m := range g.Members {
		if m.Rank == RankLeader {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (g *Guild) Clone() *Guild {
	if g == nil {
		return nil
	}
	out := *g
	out.Members = make(map[int64]*GuildMember, len(g.Members))
	for id, m := range g.Members {
		mm := *m
		out.Members[id] = &mm
	}
	out.Bank = make(map[string]*BankItem, len(g.Bank))
	for id, b := range g.Bank {
		bb := *b
		bb.DepositedBy = make(map[int64]int, len(b.DepositedBy))
		for p, q := range b.DepositedBy {
			bb.DepositedBy[p] = q
		}
		out.Bank[id] = &bb
	}
	return &out
}

// NormalizeGuildKey folds a name or tag for case-insensitive uniqueness.
func NormalizeGuildKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateGuildName checks rune length bounds for a guild name and tag.
func ValidateGuildName(name, tag string) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(name)); n < GuildNameMin || n > GuildNameMax {
		return ErrInvalidLength("name", GuildNameMin, GuildNameMax)
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(tag)); n < GuildTagMin || n > GuildTagMax {
		return ErrInvalidLength("tag", GuildTagMin, GuildTagMax)
	}
	return nil
}
