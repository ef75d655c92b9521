package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/attaboy/tower/internal/domain"
	"github.com/jackc/pgx/v5"
)

const playerColumns = `id, nickname, level, exp, hp, max_hp, floor, stats, current_weapon,
		       weapons, inventory, talents, guild_id, state, deaths,
		       pvp_rating, pvp_wins, pvp_losses, pvp_draws, created_at, updated_at, titles`

type playerRepo struct {
	db DBTX
}

func (r *playerRepo) Get(ctx context.Context, id int64) (*domain.Player, error) {
	row := r.db.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, id)
	return scanPlayer(row)
}

func (r *playerRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Player, error) {
	row := r.db.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1 FOR UPDATE`, id)
	return scanPlayer(row)
}

func (r *playerRepo) Create(ctx context.Context, p *domain.Player) error {
	args, err := playerArgs(p)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO players
		  (id, nickname, level, exp, hp, max_hp, floor, stats, current_weapon,
		   weapons, inventory, talents, guild_id, state, deaths,
		   pvp_rating, pvp_wins, pvp_losses, pvp_draws, created_at, updated_at, titles)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("insert player: %w", err)
	}
	return nil
}

func (r *playerRepo) Update(ctx context.Context, p *domain.Player) error {
	args, err := playerArgs(p)
	if err != nil {
		return err
	}
	// created_at ($20) is immutable; drop it so every placeholder is referenced.
	args = append(args[:19], args[20:]...)
	tag, err := r.db.Exec(ctx, `
		UPDATE players SET
		  nickname = $2, level = $3, exp = $4, hp = $5, max_hp = $6, floor = $7, stats = $8,
		  current_weapon = $9, weapons = $10, inventory = $11, talents = $12, guild_id = $13,
		  state = $14, deaths = $15, pvp_rating = $16, pvp_wins = $17, pvp_losses = $18,
		  pvp_draws = $19, updated_at = $20, titles = $21
		WHERE id = $1`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("player", fmt.Sprint(p.ID))
	}
	return nil
}

func (r *playerRepo) ListByGuild(ctx context.Context, guildID int64) ([]*domain.Player, error) {
	rows, err := r.db.Query(ctx, `SELECT `+playerColumns+` FROM players WHERE guild_id = $1 ORDER BY id`, guildID)
	if err != nil {
		return nil, fmt.Errorf("query guild players: %w", err)
	}
	defer rows.Close()

	var out []*domain.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *playerRepo) ResetActiveStates(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE players SET state = 'idle', updated_at = now() WHERE state <> 'idle'`)
	if err != nil {
		return 0, fmt.Errorf("reset player states: %w", err)
	}
	return tag.RowsAffected(), nil
}

func playerArgs(p *domain.Player) ([]any, error) {
	stats, err := marshalJSONB(p.Stats)
	if err != nil {
		return nil, err
	}
	weapons, err := marshalJSONB(p.Weapons)
	if err != nil {
		return nil, err
	}
	inventory, err := marshalJSONB(p.Inventory)
	if err != nil {
		return nil, err
	}
	talents, err := marshalJSONB(p.Talents)
	if err != nil {
		return nil, err
	}
	titles := p.Titles
	if titles == nil {
		titles = []string{}
	}
	return []any{
		p.ID, p.Nickname, p.Level, p.Exp, p.HP, p.MaxHP, p.Floor, stats, p.CurrentWeapon,
		weapons, inventory, talents, p.GuildID, string(p.State), p.Deaths,
		p.PvP.Rating, p.PvP.Wins, p.PvP.Losses, p.PvP.Draws, p.CreatedAt, p.UpdatedAt, titles,
	}, nil
}

func scanPlayer(row pgx.Row) (*domain.Player, error) {
	var p domain.Player
	var stats, weapons, inventory, talents []byte
	var state string
	err := row.Scan(
		&p.ID, &p.Nickname, &p.Level, &p.Exp, &p.HP, &p.MaxHP, &p.Floor, &stats, &p.CurrentWeapon,
		&weapons, &inventory, &talents, &p.GuildID, &state, &p.Deaths,
		&p.PvP.Rating, &p.PvP.Wins, &p.PvP.Losses, &p.PvP.Draws, &p.CreatedAt, &p.UpdatedAt, &p.Titles,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan player: %w", err)
	}
	p.State = domain.PlayerState(state)

	if err := json.Unmarshal(stats, &p.Stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	if err := json.Unmarshal(weapons, &p.Weapons); err != nil {
		return nil, fmt.Errorf("decode weapons: %w", err)
	}
	if err := json.Unmarshal(inventory, &p.Inventory); err != nil {
		return nil, fmt.Errorf("decode inventory: %w", err)
	}
	if err := json.Unmarshal(talents, &p.Talents); err != nil {
		return nil, fmt.Errorf("decode talents: %w", err)
	}
	if p.Weapons == nil {
		p.Weapons = map[string]domain.WeaponProgress{}
	}
	if p.Inventory == nil {
		p.Inventory = domain.Inventory{}
	}
	if p.Talents == nil {
		p.Talents = map[string]int{}
	}
	return &p, nil
}
