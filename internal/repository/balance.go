package repository

import (
	"context"
	"fmt"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/infra"
	"github.com/jackc/pgx/v5/pgtype"
)

type balanceRepo struct {
	db DBTX
}

func (r *balanceRepo) Get(ctx context.Context, playerID int64, currency domain.Currency) (int64, error) {
	var n pgtype.Numeric
	err := r.db.QueryRow(ctx, `
		SELECT amount FROM player_balances WHERE player_id = $1 AND currency = $2`,
		playerID, string(currency)).Scan(&n)
	if err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return infra.AmountFromNumeric(n)
}

func (r *balanceRepo) GetAll(ctx context.Context, playerID int64) (domain.BalanceSheet, error) {
	rows, err := r.db.Query(ctx, `
		SELECT currency, amount FROM player_balances WHERE player_id = $1`, playerID)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	sheet := zeroSheet()
	for rows.Next() {
		var cur string
		var n pgtype.Numeric
		if err := rows.Scan(&cur, &n); err != nil {
			return nil, fmt.Errorf("scan balance row: %w", err)
		}
		amount, err := infra.AmountFromNumeric(n)
		if err != nil {
			return nil, fmt.Errorf("convert %s balance: %w", cur, err)
		}
		sheet[domain.Currency(cur)] = amount
	}
	return sheet, rows.Err()
}

// Apply uses server-side arithmetic. The row is locked by the upsert; a negative
// result is detected before it reaches the CHECK constraint.
func (r *balanceRepo) Apply(ctx context.Context, playerID int64, currency domain.Currency, delta int64) (int64, error) {
	current, err := r.lockedAmount(ctx, playerID, currency)
	if err != nil {
		return 0, err
	}
	if current+delta < 0 {
		return 0, domain.ErrInsufficientFunds(currency, -delta, current)
	}

	var n pgtype.Numeric
	err = r.db.QueryRow(ctx, `
		UPDATE player_balances SET amount = amount + $3, updated_at = now()
		WHERE player_id = $1 AND currency = $2
		RETURNING amount`,
		playerID, string(currency), infra.NumericAmount(delta)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("apply balance delta: %w", err)
	}
	return infra.AmountFromNumeric(n)
}

func (r *balanceRepo) lockedAmount(ctx context.Context, playerID int64, currency domain.Currency) (int64, error) {
	var n pgtype.Numeric
	err := r.db.QueryRow(ctx, `
		INSERT INTO player_balances (player_id, currency, amount)
		VALUES ($1, $2, 0)
		ON CONFLICT (player_id, currency) DO UPDATE SET currency = EXCLUDED.currency
		RETURNING amount`,
		playerID, string(currency)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("lock balance row: %w", err)
	}
	return infra.AmountFromNumeric(n)
}

func zeroSheet() domain.BalanceSheet {
	sheet := make(domain.BalanceSheet, len(domain.AllCurrencies()))
	for _, c := range domain.AllCurrencies() {
		sheet[c] = 0
	}
	return sheet
}
