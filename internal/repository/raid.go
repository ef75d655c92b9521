package repository

import (
	"context"
	"fmt"

	"github.com/attaboy/tower/internal/domain"
	"github.com/google/uuid"
)

const raidColumns = `id, boss_id, boss_name, difficulty, status, leader_id, member_ids, boss_health, started_at, ended_at`

type raidRepo struct {
	db DBTX
}

func (r *raidRepo) Archive(ctx context.Context, rec *domain.RaidRecord) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO raid_history
		  (id, boss_id, boss_name, difficulty, status, leader_id, member_ids, boss_health, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.BossID, rec.BossName, string(rec.Difficulty), string(rec.Status),
		rec.LeaderID, rec.MemberIDs, rec.BossHealth, rec.StartedAt, rec.EndedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert raid history: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for _, l := range rec.Loot {
		_, err := r.db.Exec(ctx, `
			INSERT INTO raid_loot (raid_id, item_id, player_id, created_at)
			VALUES ($1, $2, $3, $4)`,
			rec.ID, l.ItemID, l.PlayerID, rec.EndedAt,
		)
		if err != nil {
			return false, fmt.Errorf("insert raid loot: %w", err)
		}
	}
	return true, nil
}

func (r *raidRepo) Get(ctx context.Context, id uuid.UUID) (*domain.RaidRecord, error) {
	var rec domain.RaidRecord
	var difficulty, status string
	err := r.db.QueryRow(ctx, `SELECT `+raidColumns+` FROM raid_history WHERE id = $1`, id).Scan(
		&rec.ID, &rec.BossID, &rec.BossName, &difficulty, &status,
		&rec.LeaderID, &rec.MemberIDs, &rec.BossHealth, &rec.StartedAt, &rec.EndedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan raid: %w", err)
	}
	rec.Difficulty = domain.RaidDifficulty(difficulty)
	rec.Status = domain.RaidStatus(status)
	if err := r.loadLoot(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *raidRepo) ListByPlayer(ctx context.Context, playerID int64, limit int) ([]*domain.RaidRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+raidColumns+`
		FROM raid_history
		WHERE member_ids @> ARRAY[$1]::BIGINT[]
		ORDER BY ended_at DESC
		LIMIT $2`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query raids: %w", err)
	}

	var out []*domain.RaidRecord
	for rows.Next() {
		var rec domain.RaidRecord
		var difficulty, status string
		if err := rows.Scan(
			&rec.ID, &rec.BossID, &rec.BossName, &difficulty, &status,
			&rec.LeaderID, &rec.MemberIDs, &rec.BossHealth, &rec.StartedAt, &rec.EndedAt,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan raid row: %w", err)
		}
		rec.Difficulty = domain.RaidDifficulty(difficulty)
		rec.Status = domain.RaidStatus(status)
		out = append(out, &rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rec := range out {
		if err := r.loadLoot(ctx, rec); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *raidRepo) loadLoot(ctx context.Context, rec *domain.RaidRecord) error {
	rows, err := r.db.Query(ctx, `
		SELECT item_id, player_id FROM raid_loot WHERE raid_id = $1 ORDER BY id`, rec.ID)
	if err != nil {
		return fmt.Errorf("query raid loot: %w", err)
	}
	defer rows.Close()

	rec.Loot = []domain.LootAward{}
	for rows.Next() {
		var l domain.LootAward
		if err := rows.Scan(&l.ItemID, &l.PlayerID); err != nil {
			return fmt.Errorf("scan raid loot: %w", err)
		}
		rec.Loot = append(rec.Loot, l)
	}
	return rows.Err()
}
