package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/attaboy/tower/internal/domain"
)

const guildColumns = `id, name, tag, level, exp, leader_id, bank_gold, created_at, updated_at`

type guildRepo struct {
	db DBTX
}

func (r *guildRepo) Get(ctx context.Context, id int64) (*domain.Guild, error) {
	return r.load(ctx, `SELECT `+guildColumns+` FROM guilds WHERE id = $1`, id)
}

func (r *guildRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Guild, error) {
	return r.load(ctx, `SELECT `+guildColumns+` FROM guilds WHERE id = $1 FOR UPDATE`, id)
}

func (r *guildRepo) load(ctx context.Context, query string, id int64) (*domain.Guild, error) {
	var g domain.Guild
	err := r.db.QueryRow(ctx, query, id).Scan(
		&g.ID, &g.Name, &g.Tag, &g.Level, &g.Exp, &g.LeaderID, &g.BankGold, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan guild: %w", err)
	}
	if err := r.loadMembers(ctx, &g); err != nil {
		return nil, err
	}
	if err := r.loadBank(ctx, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *guildRepo) loadMembers(ctx context.Context, g *domain.Guild) error {
	rows, err := r.db.Query(ctx, `
		SELECT player_id, rank, contribution, joined_at
		FROM guild_members WHERE guild_id = $1`, g.ID)
	if err != nil {
		return fmt.Errorf("query guild members: %w", err)
	}
	defer rows.Close()

	g.Members = make(map[int64]*domain.GuildMember)
	for rows.Next() {
		var m domain.GuildMember
		var rank string
		if err := rows.Scan(&m.PlayerID, &rank, &m.Contribution, &m.JoinedAt); err != nil {
			return fmt.Errorf("scan guild member: %w", err)
		}
		m.Rank = domain.GuildRank(rank)
		g.Members[m.PlayerID] = &m
	}
	return rows.Err()
}

func (r *guildRepo) loadBank(ctx context.Context, g *domain.Guild) error {
	rows, err := r.db.Query(ctx, `
		SELECT item_id, quantity, deposited_by
		FROM guild_bank_items WHERE guild_id = $1`, g.ID)
	if err != nil {
		return fmt.Errorf("query guild bank: %w", err)
	}
	defer rows.Close()

	g.Bank = make(map[string]*domain.BankItem)
	for rows.Next() {
		var b domain.BankItem
		var depositedBy []byte
		if err := rows.Scan(&b.ItemID, &b.Quantity, &depositedBy); err != nil {
			return fmt.Errorf("scan bank item: %w", err)
		}
		if err := json.Unmarshal(depositedBy, &b.DepositedBy); err != nil {
			return fmt.Errorf("decode deposited_by: %w", err)
		}
		if b.DepositedBy == nil {
			b.DepositedBy = map[int64]int{}
		}
		g.Bank[b.ItemID] = &b
	}
	return rows.Err()
}

func (r *guildRepo) NameOrTagTaken(ctx context.Context, name, tag string) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM guilds WHERE lower(name) = $1 OR lower(tag) = $2)`,
		domain.NormalizeGuildKey(name), domain.NormalizeGuildKey(tag)).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check guild uniqueness: %w", err)
	}
	return taken, nil
}

func (r *guildRepo) Create(ctx context.Context, g *domain.Guild) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO guilds (name, tag, level, exp, leader_id, bank_gold, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		g.Name, g.Tag, g.Level, g.Exp, g.LeaderID, g.BankGold, g.CreatedAt, g.UpdatedAt,
	).Scan(&g.ID)
	if err != nil {
		return fmt.Errorf("insert guild: %w", err)
	}
	if err := r.writeMembers(ctx, g); err != nil {
		return err
	}
	return r.writeBank(ctx, g)
}

func (r *guildRepo) Save(ctx context.Context, g *domain.Guild) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE guilds SET name = $2, tag = $3, level = $4, exp = $5, leader_id = $6,
		  bank_gold = $7, updated_at = $8
		WHERE id = $1`,
		g.ID, g.Name, g.Tag, g.Level, g.Exp, g.LeaderID, g.BankGold, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update guild: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("guild", fmt.Sprint(g.ID))
	}

	if _, err := r.db.Exec(ctx, `DELETE FROM guild_members WHERE guild_id = $1`, g.ID); err != nil {
		return fmt.Errorf("clear guild members: %w", err)
	}
	if err := r.writeMembers(ctx, g); err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM guild_bank_items WHERE guild_id = $1`, g.ID); err != nil {
		return fmt.Errorf("clear guild bank: %w", err)
	}
	return r.writeBank(ctx, g)
}

func (r *guildRepo) writeMembers(ctx context.Context, g *domain.Guild) error {
	for _, m := range g.Members {
		_, err := r.db.Exec(ctx, `
			INSERT INTO guild_members (guild_id, player_id, rank, contribution, joined_at)
			VALUES ($1, $2, $3, $4, $5)`,
			g.ID, m.PlayerID, string(m.Rank), m.Contribution, m.JoinedAt,
		)
		if err != nil {
			return fmt.Errorf("insert guild member %d: %w", m.PlayerID, err)
		}
	}
	return nil
}

func (r *guildRepo) writeBank(ctx context.Context, g *domain.Guild) error {
	for _, b := range g.Bank {
		if b.Quantity <= 0 {
			continue
		}
		depositedBy, err := marshalJSONB(b.DepositedBy)
		if err != nil {
			return err
		}
		_, err = r.db.Exec(ctx, `
			INSERT INTO guild_bank_items (guild_id, item_id, quantity, deposited_by)
			VALUES ($1, $2, $3, $4)`,
			g.ID, b.ItemID, b.Quantity, depositedBy,
		)
		if err != nil {
			return fmt.Errorf("insert bank item %s: %w", b.ItemID, err)
		}
	}
	return nil
}

func (r *guildRepo) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `UPDATE players SET guild_id = NULL, updated_at = now() WHERE guild_id = $1`, id); err != nil {
		return fmt.Errorf("clear guild affiliation: %w", err)
	}
	// members and bank items cascade
	if _, err := r.db.Exec(ctx, `DELETE FROM guilds WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete guild: %w", err)
	}
	return nil
}

func (r *guildRepo) List(ctx context.Context, limit int) ([]*domain.Guild, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, `
		SELECT id FROM guilds ORDER BY level DESC, exp DESC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query guilds: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan guild id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*domain.Guild, 0, len(ids))
	for _, id := range ids {
		g, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if g != nil {
			out = append(out, g)
		}
	}
	return out, nil
}
