package ledger

import (
	"context"
	"fmt"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/repository"
)

// Adjust applies a signed delta to one balance and appends exactly one record.
// A result below zero fails with INSUFFICIENT_FUNDS before anything is written.
// A details["reference"] that was already posted returns the original record.
func (e *Engine) Adjust(ctx context.Context, tx repository.Tx, params domain.AdjustParams) (*domain.CommandResult, error) {
	if err := validateAdjust(params); err != nil {
		return nil, err
	}

	// Lock
	if _, err := e.LockPlayers(ctx, tx, params.PlayerID); err != nil {
		return nil, fmt.Errorf("adjust: %w", err)
	}

	// Idempotency check
	ref := params.Reference()
	existing, err := e.FindExisting(ctx, tx, ref)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &domain.CommandResult{Records: []*domain.TransactionRecord{existing}, Idempotent: true}, nil
	}

	details, err := marshalDetails(params.Details)
	if err != nil {
		return nil, err
	}

	entry, err := e.Post(ctx, tx, domain.PostEntryParams{
		PlayerID:  playerRef(params.PlayerID),
		Currency:  params.Currency,
		Amount:    params.Delta,
		Type:      params.Type,
		Reference: ref,
		Details:   details,
	})
	if err != nil {
		return nil, fmt.Errorf("adjust post: %w", err)
	}

	return &domain.CommandResult{
		Records: []*domain.TransactionRecord{entry},
		Events:  []domain.OutboxDraft{domain.NewTransactionPostedEvent(entry)},
	}, nil
}

func validateAdjust(params domain.AdjustParams) error {
	if _, err := domain.ParseCurrency(string(params.Currency)); err != nil {
		return err
	}
	if !params.Type.Valid() {
		return domain.ErrValidation(fmt.Sprintf("unknown transaction type: %s", params.Type)).With("type", string(params.Type))
	}
	if params.Delta == 0 {
		return domain.ErrValidation("delta must be non-zero")
	}
	return nil
}
