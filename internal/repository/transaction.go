package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/infra"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const transactionColumns = `id, player_id, currency, amount, type, balance_after, reference, details, created_at`

type transactionRepo struct {
	db DBTX
}

func (r *transactionRepo) FindByReference(ctx context.Context, reference string) (*domain.TransactionRecord, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM ledger_transactions WHERE reference = $1`, reference)
	return scanTransaction(row)
}

func (r *transactionRepo) Insert(ctx context.Context, params domain.PostEntryParams, balanceAfter int64) (*domain.TransactionRecord, error) {
	details := params.Details
	if details == nil {
		details = json.RawMessage(`{}`)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO ledger_transactions
		  (player_id, currency, amount, type, balance_after, reference, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+transactionColumns,
		params.PlayerID,
		string(params.Currency),
		infra.NumericAmount(params.Amount),
		string(params.Type),
		infra.NumericAmount(balanceAfter),
		params.Reference,
		[]byte(details),
	)
	tx, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return tx, nil
}

func (r *transactionRepo) ListByPlayer(ctx context.Context, playerID int64, filter domain.HistoryFilter) ([]*domain.TransactionRecord, error) {
	filter = filter.Normalize()

	var rows pgx.Rows
	var err error
	if filter.Currency != nil {
		rows, err = r.db.Query(ctx, `
			SELECT `+transactionColumns+`
			FROM ledger_transactions
			WHERE player_id = $1 AND currency = $2
			ORDER BY id DESC
			LIMIT $3`, playerID, string(*filter.Currency), filter.Limit)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT `+transactionColumns+`
			FROM ledger_transactions
			WHERE player_id = $1
			ORDER BY id DESC
			LIMIT $2`, playerID, filter.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func (r *transactionRepo) SumByPlayer(ctx context.Context, playerID int64) (domain.BalanceSheet, error) {
	rows, err := r.db.Query(ctx, `
		SELECT currency, COALESCE(SUM(amount), 0)
		FROM ledger_transactions
		WHERE player_id = $1
		GROUP BY currency`, playerID)
	if err != nil {
		return nil, fmt.Errorf("sum transactions: %w", err)
	}
	defer rows.Close()

	sheet := zeroSheet()
	for rows.Next() {
		var cur string
		var n pgtype.Numeric
		if err := rows.Scan(&cur, &n); err != nil {
			return nil, fmt.Errorf("scan sum row: %w", err)
		}
		sum, err := infra.AmountFromNumeric(n)
		if err != nil {
			return nil, fmt.Errorf("convert %s sum: %w", cur, err)
		}
		sheet[domain.Currency(cur)] = sum
	}
	return sheet, rows.Err()
}

func (r *transactionRepo) SumSince(ctx context.Context, playerID int64, txType domain.TransactionType, currency domain.Currency, since time.Time) (int64, error) {
	var n pgtype.Numeric
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(ABS(amount)), 0)
		FROM ledger_transactions
		WHERE player_id = $1 AND type = $2 AND currency = $3 AND created_at >= $4`,
		playerID, string(txType), string(currency), since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("daily sum: %w", err)
	}
	return infra.AmountFromNumeric(n)
}

func scanTransaction(row pgx.Row) (*domain.TransactionRecord, error) {
	var tx domain.TransactionRecord
	var amountNum, balNum pgtype.Numeric
	var currency, txType string
	var details []byte
	err := row.Scan(&tx.ID, &tx.PlayerID, &currency, &amountNum, &txType, &balNum, &tx.Reference, &details, &tx.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	tx.Currency = domain.Currency(currency)
	tx.Type = domain.TransactionType(txType)
	tx.Details = json.RawMessage(details)

	var convErr error
	tx.Amount, convErr = infra.AmountFromNumeric(amountNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert amount: %w", convErr)
	}
	tx.BalanceAfter, convErr = infra.AmountFromNumeric(balNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert balance_after: %w", convErr)
	}
	return &tx, nil
}

func collectTransactions(rows pgx.Rows) ([]*domain.TransactionRecord, error) {
	var txs []*domain.TransactionRecord
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
