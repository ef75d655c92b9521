package settlement

import (
	"context"
	"fmt"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/ledger"
	"github.com/attaboy/tower/internal/repository"
)

// RaidSettlement archives finished raids and pays their members.
type RaidSettlement struct {
	engine *ledger.Engine
}

// NewRaidSettlement creates a raid settlement handler.
func NewRaidSettlement(engine *ledger.Engine) *RaidSettlement {
	return &RaidSettlement{engine: engine}
}

// RaidPayout is the archived record plus the gold sampled for each member.
// Gold is empty for a failed raid. Title is granted to every member of a
// completed raid.
type RaidPayout struct {
	Record *domain.RaidRecord
	Gold   map[int64]int64
	Title  string
}

// Settle archives the raid, returns every member to idle, delivers loot, grants the
// boss title and pays gold.
// A raid that was already archived is a no-op reported as false.
func (s *RaidSettlement) Settle(ctx context.Context, tx repository.Tx, payout RaidPayout) (bool, error) {
	rec := payout.Record
	archived, err := tx.Raids().Archive(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("archive raid: %w", err)
	}
	if !archived {
		return false, nil
	}

	players, err := s.engine.LockPlayers(ctx, tx, rec.MemberIDs...)
	if err != nil {
		return false, fmt.Errorf("settle raid: %w", err)
	}
	for _, award := range rec.Loot {
		if p, ok := players[award.PlayerID]; ok {
			p.Inventory.Add(award.ItemID, 1)
		}
	}
	for _, id := range rec.MemberIDs {
		p := players[id]
		if p.State == domain.StateInRaid {
			p.State = domain.StateIdle
		}
		if rec.Status == domain.RaidCompleted {
			p.AddTitle(payout.Title)
		}
		if err := tx.Players().Update(ctx, p); err != nil {
			return false, fmt.Errorf("settle raid update player: %w", err)
		}
	}

	if rec.Status == domain.RaidCompleted {
		for _, id := range rec.MemberIDs {
			gold := payout.Gold[id]
			if gold <= 0 {
				continue
			}
			_, err := s.engine.Adjust(ctx, tx, domain.AdjustParams{
				PlayerID: id,
				Currency: domain.CurrencyGold,
				Delta:    gold,
				Type:     domain.TxRaidReward,
				Details: map[string]any{
					"reference": fmt.Sprintf("raid:%s:%d", rec.ID, id),
					"raid_id":   rec.ID.String(),
					"boss_id":   rec.BossID,
				},
			})
			if err != nil {
				return false, fmt.Errorf("raid reward: %w", err)
			}
		}
	}

	if err := tx.Outbox().Insert(ctx, domain.NewRaidFinishedEvent(rec)); err != nil {
		return false, fmt.Errorf("raid event: %w", err)
	}
	return true, nil
}
