// Package settlement writes the durable consequences of finished encounters: ledger
// entries, character updates and outbox events, all inside the caller's Tx.
package settlement

import (
	"context"
	"fmt"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/ledger"
	"github.com/attaboy/tower/internal/repository"
	"github.com/google/uuid"
)

// CombatSettlement handles PvE payouts, defeat penalties and permadeath resets.
type CombatSettlement struct {
	engine     *ledger.Engine
	permadeath bool
}

// NewCombatSettlement creates a combat settlement handler.
func NewCombatSettlement(engine *ledger.Engine, permadeath bool) *CombatSettlement {
	return &CombatSettlement{engine: engine, permadeath: permadeath}
}

// CombatResolution is everything the combat core decided about a finished encounter.
type CombatResolution struct {
	SessionID   uuid.UUID
	PlayerID    int64
	Opponent    domain.OpponentTemplate
	Outcome     domain.CombatOutcome
	PlayerHP    int
	Exp         int
	Gold        int64
	Loot        []string
	PenaltyRoll int64
}

// CombatSettled reports what was written.
type CombatSettled struct {
	Player     *domain.Player
	GoldLost   int64
	Permadeath bool
	Records    []*domain.TransactionRecord
}

// Settle applies the outcome to the player and returns them to idle.
//
// Victory: exp, gold sample and loot; clearing a floor boss opens the next floor.
// Defeat: loses min(balance, penalty roll) gold and wakes at max(1, max_hp/2), or
// with permadeath enabled, resets to the starting template with balances drained.
// Fled: keeps the current health, nothing else changes.
func (s *CombatSettlement) Settle(ctx context.Context, tx repository.Tx, res CombatResolution) (*CombatSettled, error) {
	locked, err := s.engine.LockPlayers(ctx, tx, res.PlayerID)
	if err != nil {
		return nil, fmt.Errorf("settle combat: %w", err)
	}
	p := locked[res.PlayerID]
	out := &CombatSettled{}

	switch res.Outcome {
	case domain.CombatVictory:
		p.Exp += res.Exp
		p.SetHP(res.PlayerHP)
		for _, item := range res.Loot {
			p.Inventory.Add(item, 1)
		}
		if res.Opponent.Kind == domain.OpponentBoss && res.Opponent.Floor >= p.Floor {
			p.Floor = res.Opponent.Floor + 1
		}
		if res.Gold > 0 {
			cmd, err := s.engine.Adjust(ctx, tx, domain.AdjustParams{
				PlayerID: p.ID,
				Currency: domain.CurrencyGold,
				Delta:    res.Gold,
				Type:     domain.TxCombatReward,
				Details:  combatDetails(res, "reward"),
			})
			if err != nil {
				return nil, fmt.Errorf("combat reward: %w", err)
			}
			out.Records = append(out.Records, cmd.Records...)
		}

	case domain.CombatDefeat:
		if s.permadeath {
			p, err = s.resetCharacter(ctx, tx, p, res, out)
			if err != nil {
				return nil, err
			}
			break
		}
		have, err := tx.Balances().Get(ctx, p.ID, domain.CurrencyGold)
		if err != nil {
			return nil, fmt.Errorf("combat penalty balance: %w", err)
		}
		out.GoldLost = min(have, res.PenaltyRoll)
		if out.GoldLost > 0 {
			cmd, err := s.engine.Adjust(ctx, tx, domain.AdjustParams{
				PlayerID: p.ID,
				Currency: domain.CurrencyGold,
				Delta:    -out.GoldLost,
				Type:     domain.TxCombatPenalty,
				Details:  combatDetails(res, "penalty"),
			})
			if err != nil {
				return nil, fmt.Errorf("combat penalty: %w", err)
			}
			out.Records = append(out.Records, cmd.Records...)
		}
		p.SetHP(max(1, p.MaxHP/2))

	default:
		p.SetHP(res.PlayerHP)
	}

	p.State = domain.StateIdle
	if err := tx.Players().Update(ctx, p); err != nil {
		return nil, fmt.Errorf("settle combat update player: %w", err)
	}

	gold := res.Gold
	if res.Outcome == domain.CombatDefeat {
		gold = -out.GoldLost
	}
	event := domain.NewCombatResolvedEvent(p.ID, res.SessionID, res.Opponent.ID, res.Outcome, gold, res.Exp, res.Loot)
	if err := tx.Outbox().Insert(ctx, event); err != nil {
		return nil, fmt.Errorf("settle combat event: %w", err)
	}

	out.Player = p
	return out, nil
}

// resetCharacter replaces the player with the starting template. Guild affiliation,
// nickname, rating and the death counter survive; every balance is drained.
func (s *CombatSettlement) resetCharacter(ctx context.Context, tx repository.Tx, p *domain.Player, res CombatResolution, out *CombatSettled) (*domain.Player, error) {
	balances, err := tx.Balances().GetAll(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("permadeath balances: %w", err)
	}
	for _, c := range domain.AllCurrencies() {
		amount := balances[c]
		if amount <= 0 {
			continue
		}
		cmd, err := s.engine.Adjust(ctx, tx, domain.AdjustParams{
			PlayerID: p.ID,
			Currency: c,
			Delta:    -amount,
			Type:     domain.TxPermadeathReset,
			Details:  combatDetails(res, "permadeath:"+string(c)),
		})
		if err != nil {
			return nil, fmt.Errorf("permadeath drain %s: %w", c, err)
		}
		out.Records = append(out.Records, cmd.Records...)
		if c == domain.CurrencyGold {
			out.GoldLost = amount
		}
	}

	fresh := domain.NewPlayer(p.ID, p.Nickname, p.CreatedAt)
	fresh.GuildID = p.GuildID
	fresh.PvP = p.PvP
	fresh.Deaths = p.Deaths + 1
	out.Permadeath = true

	if err := tx.Outbox().Insert(ctx, domain.NewPlayerDiedEvent(fresh.ID, fresh.Deaths)); err != nil {
		return nil, fmt.Errorf("permadeath event: %w", err)
	}
	return fresh, nil
}

func combatDetails(res CombatResolution, kind string) map[string]any {
	return map[string]any{
		"reference":  fmt.Sprintf("combat:%s:%s", res.SessionID, kind),
		"session_id": res.SessionID.String(),
		"opponent":   res.Opponent.ID,
	}
}
