package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/repository"
)

// Engine provides the foundational ledger operations, all scoped to the caller's Tx:
//  1. LockPlayers: row-level pessimistic locks in ascending id order
//  2. FindExisting: idempotency check by reference
//  3. Post: atomic balance update + append-only insert + outbox event
//
// Adjust, Transfer and Convert build on these. Other services call them from
// inside their own InTx so a payout commits together with the game state it pays for.
type Engine struct{}

// NewEngine creates a ledger engine.
func NewEngine() *Engine {
	return &Engine{}
}

// LockPlayers acquires a row lock on every player in ascending id order and returns
// them keyed by id. A missing player fails with NOT_FOUND.
func (e *Engine) LockPlayers(ctx context.Context, tx repository.Tx, ids ...int64) (map[int64]*domain.Player, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	out := make(map[int64]*domain.Player, len(sorted))
	for _, id := range sorted {
		p, err := tx.Players().GetForUpdate(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lock player: %w", err)
		}
		if p == nil {
			return nil, domain.ErrNotFound("player", fmt.Sprint(id))
		}
		out[id] = p
	}
	return out, nil
}

// FindExisting checks whether a record with the same reference was already posted.
// Returns nil if no duplicate found.
func (e *Engine) FindExisting(ctx context.Context, tx repository.Tx, reference *string) (*domain.TransactionRecord, error) {
	if reference == nil {
		return nil, nil
	}
	existing, err := tx.Transactions().FindByReference(ctx, *reference)
	if err != nil {
		return nil, fmt.Errorf("find existing transaction: %w", err)
	}
	return existing, nil
}

// Post atomically updates one balance and appends its ledger record.
// Every command delegates to this.
//
// Steps:
//  1. Update the balance with server-side arithmetic (skipped for the system sink)
//  2. Insert the record with the post-update balance snapshot
//  3. Insert the outbox event
func (e *Engine) Post(ctx context.Context, tx repository.Tx, params domain.PostEntryParams) (*domain.TransactionRecord, error) {
	var balanceAfter int64
	if params.PlayerID != nil {
		var err error
		balanceAfter, err = tx.Balances().Apply(ctx, *params.PlayerID, params.Currency, params.Amount)
		if err != nil {
			return nil, fmt.Errorf("apply balance: %w", err)
		}
	}

	params.Details = ensureJSON(params.Details)
	entry, err := tx.Transactions().Insert(ctx, params, balanceAfter)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	if err := tx.Outbox().Insert(ctx, domain.NewTransactionPostedEvent(entry)); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}
	return entry, nil
}

func playerRef(id int64) *int64 { return &id }

func ensureJSON(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage(`{}`)
	}
	return data
}

func marshalDetails(details map[string]any) (json.RawMessage, error) {
	if len(details) == 0 {
		return json.RawMessage(`{}`), nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil, domain.ErrValidation("details must be JSON-serializable")
	}
	return data, nil
}

func mergeDetails(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
