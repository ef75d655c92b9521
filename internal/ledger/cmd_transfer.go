package ledger

import (
	"context"
	"fmt"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/repository"
)

// Transfer moves amount from one player to another, keeping floor(amount*fee) for
// the system sink. Three records are written together: the sender debit, the
// recipient credit net of the fee and the sink credit.
func (e *Engine) Transfer(ctx context.Context, tx repository.Tx, params domain.TransferParams) (*domain.CommandResult, error) {
	if err := validateTransfer(params); err != nil {
		return nil, err
	}

	// Lock both rows in id order
	if _, err := e.LockPlayers(ctx, tx, params.FromID, params.ToID); err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}

	// Check the sender before any mutation
	have, err := tx.Balances().Get(ctx, params.FromID, params.Currency)
	if err != nil {
		return nil, fmt.Errorf("transfer balance: %w", err)
	}
	if have < params.Amount {
		return nil, domain.ErrInsufficientFunds(params.Currency, params.Amount, have)
	}

	fee := domain.FeeFor(params.Amount, params.FeePercent)
	net := params.Amount - fee

	legs := []domain.PostEntryParams{
		{
			PlayerID: playerRef(params.FromID),
			Currency: params.Currency,
			Amount:   -params.Amount,
			Type:     domain.TxTransferOut,
		},
		{
			PlayerID: playerRef(params.ToID),
			Currency: params.Currency,
			Amount:   net,
			Type:     domain.TxTransferIn,
		},
		{
			Currency: params.Currency,
			Amount:   fee,
			Type:     domain.TxTransferFee,
		},
	}
	base := map[string]any{"from": params.FromID, "to": params.ToID, "amount": params.Amount, "fee": fee}

	result := &domain.CommandResult{Fee: fee}
	for _, leg := range legs {
		leg.Details, err = marshalDetails(mergeDetails(base, map[string]any{"leg": string(leg.Type)}))
		if err != nil {
			return nil, err
		}
		entry, err := e.Post(ctx, tx, leg)
		if err != nil {
			return nil, fmt.Errorf("transfer post %s: %w", leg.Type, err)
		}
		result.Records = append(result.Records, entry)
		result.Events = append(result.Events, domain.NewTransactionPostedEvent(entry))
	}
	return result, nil
}

func validateTransfer(params domain.TransferParams) error {
	if _, err := domain.ParseCurrency(string(params.Currency)); err != nil {
		return err
	}
	if err := domain.ValidatePositiveAmount(params.Amount); err != nil {
		return err
	}
	if err := domain.ValidateFeePercent(params.FeePercent); err != nil {
		return err
	}
	if params.FromID == params.ToID {
		return domain.ErrValidation("cannot transfer to self")
	}
	return nil
}
