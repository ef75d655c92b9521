package ledger

import (
	"context"
	"fmt"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/repository"
)

// Convert exchanges amount of one currency for another at the fixed rate table.
// The fee is taken in the source currency before conversion:
//
//	fee       = floor(amount*feePercent)
//	converted = floor((amount-fee) * rate)
//
// Records: source debit, sink fee (when non-zero), destination credit.
func (e *Engine) Convert(ctx context.Context, tx repository.Tx, params domain.ConvertParams) (*domain.CommandResult, error) {
	rate, err := validateConvert(params)
	if err != nil {
		return nil, err
	}

	if _, err := e.LockPlayers(ctx, tx, params.PlayerID); err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}

	have, err := tx.Balances().Get(ctx, params.PlayerID, params.From)
	if err != nil {
		return nil, fmt.Errorf("convert balance: %w", err)
	}
	if have < params.Amount {
		return nil, domain.ErrInsufficientFunds(params.From, params.Amount, have)
	}

	fee := domain.FeeFor(params.Amount, params.FeePercent)
	converted, err := rate.Apply(params.Amount - fee)
	if err != nil {
		return nil, err
	}
	if converted <= 0 {
		return nil, domain.ErrValidation(fmt.Sprintf("amount %d %s converts to zero %s", params.Amount, params.From, params.To)).
			With("amount", params.Amount)
	}

	details, err := marshalDetails(map[string]any{
		"from":      string(params.From),
		"to":        string(params.To),
		"amount":    params.Amount,
		"fee":       fee,
		"converted": converted,
		"rate":      rate,
	})
	if err != nil {
		return nil, err
	}

	legs := []domain.PostEntryParams{
		{PlayerID: playerRef(params.PlayerID), Currency: params.From, Amount: -params.Amount, Type: domain.TxConvertOut, Details: details},
	}
	if fee > 0 {
		legs = append(legs, domain.PostEntryParams{Currency: params.From, Amount: fee, Type: domain.TxConvertFee, Details: details})
	}
	legs = append(legs, domain.PostEntryParams{PlayerID: playerRef(params.PlayerID), Currency: params.To, Amount: converted, Type: domain.TxConvertIn, Details: details})

	result := &domain.CommandResult{Converted: converted, Fee: fee}
	for _, leg := range legs {
		entry, err := e.Post(ctx, tx, leg)
		if err != nil {
			return nil, fmt.Errorf("convert post %s: %w", leg.Type, err)
		}
		result.Records = append(result.Records, entry)
		result.Events = append(result.Events, domain.NewTransactionPostedEvent(entry))
	}
	return result, nil
}

func validateConvert(params domain.ConvertParams) (domain.ExchangeRate, error) {
	for _, c := range []domain.Currency{params.From, params.To} {
		if _, err := domain.ParseCurrency(string(c)); err != nil {
			return domain.ExchangeRate{}, err
		}
	}
	if err := domain.ValidatePositiveAmount(params.Amount); err != nil {
		return domain.ExchangeRate{}, err
	}
	if err := domain.ValidateFeePercent(params.FeePercent); err != nil {
		return domain.ExchangeRate{}, err
	}
	return domain.LookupExchangeRate(params.From, params.To)
}
