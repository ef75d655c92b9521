package repository

import (
	"context"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the persistence gateway. InTx runs fn as one atomic unit: either every
// write made through the Tx commits or none does.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	// Read runs fn without write guarantees. Callers must not mutate through it.
	Read(ctx context.Context, fn func(Tx) error) error
}

// Tx exposes the repositories bound to one unit of work.
type Tx interface {
	Players() PlayerRepository
	Balances() BalanceRepository
	Transactions() TransactionRepository
	Guilds() GuildRepository
	Raids() RaidRepository
	PvP() PvPRepository
	Outbox() OutboxRepository
}

// PlayerRepository provides access to players. Lookups return (nil, nil) when absent.
type PlayerRepository interface {
	// Get returns a player by ID.
	Get(ctx context.Context, id int64) (*domain.Player, error)

	// GetForUpdate acquires a row-level lock (SELECT FOR UPDATE) and returns the player.
	GetForUpdate(ctx context.Context, id int64) (*domain.Player, error)

	// Create inserts a new player.
	Create(ctx context.Context, p *domain.Player) error

	// Update persists every mutable field of p.
	Update(ctx context.Context, p *domain.Player) error

	// ListByGuild returns the players affiliated with a guild.
	ListByGuild(ctx context.Context, guildID int64) ([]*domain.Player, error)

	// ResetActiveStates moves every non-idle player back to idle and returns how many changed.
	ResetActiveStates(ctx context.Context) (int64, error)
}

// BalanceRepository provides access to player_balances.
type BalanceRepository interface {
	// Get returns the balance, zero when no row exists.
	Get(ctx context.Context, playerID int64, currency domain.Currency) (int64, error)

	// GetAll returns every currency for the player, zero-filled.
	GetAll(ctx context.Context, playerID int64) (domain.BalanceSheet, error)

	// Apply adds delta using server-side arithmetic and returns the new amount.
	// A result below zero fails with INSUFFICIENT_FUNDS and leaves the row unchanged.
	Apply(ctx context.Context, playerID int64, currency domain.Currency, delta int64) (int64, error)
}

// TransactionRepository provides access to the append-only ledger_transactions.
type TransactionRepository interface {
	// FindByReference checks the idempotency index for an existing record.
	FindByReference(ctx context.Context, reference string) (*domain.TransactionRecord, error)

	// Insert appends a ledger record with its balance snapshot.
	Insert(ctx context.Context, params domain.PostEntryParams, balanceAfter int64) (*domain.TransactionRecord, error)

	// ListByPlayer returns records for a player, most recent first.
	ListByPlayer(ctx context.Context, playerID int64, filter domain.HistoryFilter) ([]*domain.TransactionRecord, error)

	// SumByPlayer totals every record of the player per currency.
	SumByPlayer(ctx context.Context, playerID int64) (domain.BalanceSheet, error)

	// SumSince totals the absolute amount of records of txType in currency since the given time.
	SumSince(ctx context.Context, playerID int64, txType domain.TransactionType, currency domain.Currency, since time.Time) (int64, error)
}

// GuildRepository provides access to guilds with their roster and bank.
type GuildRepository interface {
	// Get loads the full aggregate.
	Get(ctx context.Context, id int64) (*domain.Guild, error)

	// GetForUpdate loads the aggregate with the guild row locked.
	GetForUpdate(ctx context.Context, id int64) (*domain.Guild, error)

	// NameOrTagTaken checks case-insensitive uniqueness.
	NameOrTagTaken(ctx context.Context, name, tag string) (bool, error)

	// Create inserts the guild and its roster, assigning g.ID.
	Create(ctx context.Context, g *domain.Guild) error

	// Save rewrites the guild row, roster and bank.
	Save(ctx context.Context, g *domain.Guild) error

	// Delete removes the guild with its roster and bank.
	Delete(ctx context.Context, id int64) error

	// List returns guilds ordered by level then experience.
	List(ctx context.Context, limit int) ([]*domain.Guild, error)
}

// RaidRepository provides access to raid_history and raid_loot.
type RaidRepository interface {
	// Archive writes the record and its loot rows. It returns false without writing
	// when the raid id was already archived.
	Archive(ctx context.Context, rec *domain.RaidRecord) (bool, error)

	// Get returns one archived raid.
	Get(ctx context.Context, id uuid.UUID) (*domain.RaidRecord, error)

	// ListByPlayer returns archived raids the player took part in, newest first.
	ListByPlayer(ctx context.Context, playerID int64, limit int) ([]*domain.RaidRecord, error)
}

// PvPRepository provides access to pvp_matches.
type PvPRepository interface {
	// Insert records a finished duel.
	Insert(ctx context.Context, m *domain.PvPMatch) error

	// ListByPlayer returns matches the player fought, newest first.
	ListByPlayer(ctx context.Context, playerID int64, limit int) ([]*domain.PvPMatch, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the state change).
	Insert(ctx context.Context, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events for the outbox poller, oldest first.
	FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxRow, error)

	// MarkPublished stamps publishedAt on the given rows.
	MarkPublished(ctx context.Context, ids []int64) error
}

// InsertEvents writes every draft through the outbox repository.
func InsertEvents(ctx context.Context, tx Tx, drafts ...domain.OutboxDraft) error {
	for _, d := range drafts {
		if err := tx.Outbox().Insert(ctx, d); err != nil {
			return err
		}
	}
	return nil
}
