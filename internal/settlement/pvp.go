package settlement

import (
	"context"
	"fmt"
	"math"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/ledger"
	"github.com/attaboy/tower/internal/repository"
)

const (
	HonorWin  int64 = 25
	HonorLoss int64 = 5
	HonorDraw int64 = 10
	eloK      = 32
)

// PvPSettlement records duels, awards honor and moves ratings.
type PvPSettlement struct {
	engine *ledger.Engine
}

// NewPvPSettlement creates a PvP settlement handler.
func NewPvPSettlement(engine *ledger.Engine) *PvPSettlement {
	return &PvPSettlement{engine: engine}
}

// EloDelta is the rating change for the challenger given the score
// (1 win, 0.5 draw, 0 loss). The opponent moves by the negation.
func EloDelta(challenger, opponent int, score float64) int {
	expected := 1 / (1 + math.Pow(10, float64(opponent-challenger)/400))
	return int(math.Round(eloK * (score - expected)))
}

// Settle fills in the rating and honor fields of m, then writes it with both
// players back to idle. Both players must be in_duel. m.WinnerID nil means a draw.
func (s *PvPSettlement) Settle(ctx context.Context, tx repository.Tx, m *domain.PvPMatch) error {
	players, err := s.engine.LockPlayers(ctx, tx, m.ChallengerID, m.OpponentID)
	if err != nil {
		return fmt.Errorf("settle duel: %w", err)
	}
	c, o := players[m.ChallengerID], players[m.OpponentID]
	for _, p := range []*domain.Player{c, o} {
		if p.State != domain.StateInDuel {
			return domain.ErrInvalidState(fmt.Sprintf("player %d is %s, not in a duel", p.ID, p.State)).
				With("player_id", p.ID).With("state", string(p.State))
		}
	}

	score := 0.5
	m.ChallengerHonor, m.OpponentHonor = HonorDraw, HonorDraw
	switch {
	case m.Draw():
		c.PvP.Draws++
		o.PvP.Draws++
	case *m.WinnerID == c.ID:
		score = 1
		m.ChallengerHonor, m.OpponentHonor = HonorWin, HonorLoss
		c.PvP.Wins++
		o.PvP.Losses++
	default:
		score = 0
		m.ChallengerHonor, m.OpponentHonor = HonorLoss, HonorWin
		c.PvP.Losses++
		o.PvP.Wins++
	}
	m.RatingDelta = EloDelta(c.PvP.Rating, o.PvP.Rating, score)
	c.PvP.Rating += m.RatingDelta
	o.PvP.Rating -= m.RatingDelta

	for _, p := range []*domain.Player{c, o} {
		p.State = domain.StateIdle
		if err := tx.Players().Update(ctx, p); err != nil {
			return fmt.Errorf("settle duel update player: %w", err)
		}
	}

	if err := tx.PvP().Insert(ctx, m); err != nil {
		return fmt.Errorf("record duel: %w", err)
	}
	honor := map[int64]int64{c.ID: m.ChallengerHonor, o.ID: m.OpponentHonor}
	for _, id := range []int64{c.ID, o.ID} {
		_, err := s.engine.Adjust(ctx, tx, domain.AdjustParams{
			PlayerID: id,
			Currency: domain.CurrencyHonor,
			Delta:    honor[id],
			Type:     domain.TxPvPHonor,
			Details: map[string]any{
				"reference": fmt.Sprintf("pvp:%s:%d", m.ID, id),
				"match_id":  m.ID.String(),
			},
		})
		if err != nil {
			return fmt.Errorf("pvp honor: %w", err)
		}
	}

	if err := tx.Outbox().Insert(ctx, domain.NewPvPMatchRecordedEvent(m)); err != nil {
		return fmt.Errorf("pvp event: %w", err)
	}
	return nil
}
