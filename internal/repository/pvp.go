package repository

import (
	"context"
	"fmt"

	"github.com/attaboy/tower/internal/domain"
)

type pvpRepo struct {
	db DBTX
}

func (r *pvpRepo) Insert(ctx context.Context, m *domain.PvPMatch) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO pvp_matches
		  (id, challenger_id, opponent_id, winner_id, rounds, challenger_hp, opponent_hp,
		   rating_delta, challenger_honor, opponent_honor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.ChallengerID, m.OpponentID, m.WinnerID, m.Rounds, m.ChallengerHP, m.OpponentHP,
		m.RatingDelta, m.ChallengerHonor, m.OpponentHonor, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pvp match: %w", err)
	}
	return nil
}

func (r *pvpRepo) ListByPlayer(ctx context.Context, playerID int64, limit int) ([]*domain.PvPMatch, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, challenger_id, opponent_id, winner_id, rounds, challenger_hp, opponent_hp,
		       rating_delta, challenger_honor, opponent_honor, created_at
		FROM pvp_matches
		WHERE challenger_id = $1 OR opponent_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query pvp matches: %w", err)
	}
	defer rows.Close()

	var out []*domain.PvPMatch
	for rows.Next() {
		var m domain.PvPMatch
		if err := rows.Scan(
			&m.ID, &m.ChallengerID, &m.OpponentID, &m.WinnerID, &m.Rounds, &m.ChallengerHP, &m.OpponentHP,
			&m.RatingDelta, &m.ChallengerHonor, &m.OpponentHonor, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pvp match: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
