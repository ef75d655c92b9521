package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the Postgres-backed Store.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore wraps a connection pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// InTx runs fn inside a single database transaction. Any error rolls it back.
func (s *PgStore) InTx(ctx context.Context, fn func(Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&pgTx{db: tx})
	})
}

// Read runs fn against the pool directly.
func (s *PgStore) Read(ctx context.Context, fn func(Tx) error) error {
	return fn(&pgTx{db: s.pool})
}

type pgTx struct {
	db DBTX
}

func (t *pgTx) Players() PlayerRepository           { return &playerRepo{db: t.db} }
func (t *pgTx) Balances() BalanceRepository         { return &balanceRepo{db: t.db} }
func (t *pgTx) Transactions() TransactionRepository { return &transactionRepo{db: t.db} }
func (t *pgTx) Guilds() GuildRepository             { return &guildRepo{db: t.db} }
func (t *pgTx) Raids() RaidRepository               { return &raidRepo{db: t.db} }
func (t *pgTx) PvP() PvPRepository                  { return &pvpRepo{db: t.db} }
func (t *pgTx) Outbox() OutboxRepository            { return &outboxRepo{db: t.db} }

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func marshalJSONB(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return b, nil
}
