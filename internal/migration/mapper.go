package migration

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/attaboy/tower/internal/domain"
)

// LegacyPlayer is the prototype character blob. Fields the new model derives
// or drops (combat_data, active_effects, explored, achievements) are ignored.
type LegacyPlayer struct {
	Nickname       string                  `json:"nickname"`
	Level          int                     `json:"level"`
	Exp            int                     `json:"exp"`
	HP             int                     `json:"hp"`
	Floor          int                     `json:"floor"`
	Gold           int64                   `json:"gold"`
	Stats          map[string]int          `json:"stats"`
	CurrentWeapon  string                  `json:"current_weapon"`
	Weapons        map[string]legacyWeapon `json:"weapons"`
	Inventory      []string                `json:"inventory"`
	LearnedTalents []string                `json:"learned_talents"`
	Deaths         int                     `json:"deaths"`
}

type legacyWeapon struct {
	Level  int      `json:"level"`
	Skills []string `json:"skills"`
}

// Mapped is a converted character plus the gold to grant through the ledger.
type Mapped struct {
	Player *domain.Player
	Gold   int64
}

// MapPlayer converts one legacy row. Prototype players that never finished
// character creation (no nickname) fail validation. Transient combat state is
// dropped: every imported character starts idle at full health.
func MapPlayer(row LegacyRow, now time.Time) (*Mapped, error) {
	var lp LegacyPlayer
	if err := json.Unmarshal(row.Data, &lp); err != nil {
		return nil, domain.ErrValidation(fmt.Sprintf("player %d: malformed legacy data", row.PlayerID))
	}
	if row.PlayerID <= 0 {
		return nil, domain.ErrValidation(fmt.Sprintf("player %d: id must be positive", row.PlayerID))
	}
	if err := domain.ValidateNickname(lp.Nickname); err != nil {
		return nil, err
	}
	if lp.Gold < 0 {
		return nil, domain.ErrValidation(fmt.Sprintf("player %d: negative gold", row.PlayerID))
	}

	p := domain.NewPlayer(row.PlayerID, strings.TrimSpace(lp.Nickname), now)
	if lp.Level > 0 {
		p.Level = lp.Level
	}
	p.Exp = max(lp.Exp, 0)
	if lp.Floor > 0 {
		p.Floor = lp.Floor
	}
	p.Deaths = max(lp.Deaths, 0)
	if len(lp.Stats) > 0 {
		var stats domain.StatBlock
		for _, s := range domain.AllStats() {
			stats = stats.Add(s, lp.Stats[string(s)])
		}
		p.Stats = stats
	}
	p.MaxHP = domain.MaxHPFor(p.Stats)
	p.HP = p.MaxHP

	for id, w := range lp.Weapons {
		p.Weapons[id] = domain.WeaponProgress{
			Level:  max(w.Level, 1),
			Skills: append([]string{}, w.Skills...),
		}
	}
	if _, ok := p.Weapons[lp.CurrentWeapon]; ok {
		p.CurrentWeapon = lp.CurrentWeapon
	}
	for _, item := range lp.Inventory {
		p.Inventory.Add(item, 1)
	}
	for _, t := range lp.LearnedTalents {
		p.Talents[t] = 1
	}
	return &Mapped{Player: p, Gold: lp.Gold}, nil
}
