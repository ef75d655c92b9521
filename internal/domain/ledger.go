package domain

import (
	"encoding/json"
	"math"
)

const bpsScale = 10000

// FeeFor computes floor(amount*feePercent) in integer basis points for a
// non-negative amount. The rate is clamped to [0, 1], so the fee never exceeds
// the amount, and the product is split so it cannot overflow.
func FeeFor(amount int64, feePercent float64) int64 {
	if math.IsNaN(feePercent) || feePercent <= 0 || amount <= 0 {
		return 0
	}
	bps := int64(bpsScale)
	if feePercent < 1 {
		bps = int64(math.Round(feePercent * bpsScale))
	}
	return amount/bpsScale*bps + amount%bpsScale*bps/bpsScale
}

// PostEntryParams is the input to one atomic balance mutation plus its record.
type PostEntryParams struct {
	PlayerID  *int64
	Currency  Currency
	Amount    int64
	Type      TransactionType
	Reference *string
	Details   json.RawMessage
}

// AdjustParams is the input to AdjustBalance.
type AdjustParams struct {
	PlayerID int64
	Currency Currency
	Delta    int64
	Type     TransactionType
	Details  map[string]any
}

// Reference extracts the optional idempotency reference from the details payload.
func (p AdjustParams) Reference() *string {
	if p.Details == nil {
		return nil
	}
	if ref, ok := p.Details["reference"].(string); ok && ref != "" {
		return &ref
	}
	return nil
}

// TransferParams is the input to Transfer.
type TransferParams struct {
	FromID     int64
	ToID       int64
	Currency   Currency
	Amount     int64
	FeePercent float64
}

// ConvertParams is the input to Convert.
type ConvertParams struct {
	PlayerID   int64
	From       Currency
	To         Currency
	Amount     int64
	FeePercent float64
}

// CommandResult is the return value from the ledger commands.
type CommandResult struct {
	Records    []*TransactionRecord `json:"records"`
	Converted  int64                `json:"converted,omitempty"`
	Fee        int64                `json:"fee,omitempty"`
	Events     []OutboxDraft        `json:"-"`
	Idempotent bool                 `json:"idempotent"` // true if this was a replay that returned the existing record
}

// BalanceSheet maps every currency to its amount for one player.
type BalanceSheet map[Currency]int64

// AuditCheck is one invariant verified by the ledger audit.
type AuditCheck struct {
	Name     string   `json:"name"`
	Currency Currency `json:"currency"`
	Passed   bool     `json:"passed"`
	Balance  int64    `json:"balance"`
	Sum      int64    `json:"history_sum"`
	Detail   string   `json:"detail,omitempty"`
}

// AuditReport is the result of auditing one player's ledger.
type AuditReport struct {
	PlayerID int64        `json:"player_id"`
	Passed   bool         `json:"passed"`
	Checks   []AuditCheck `json:"checks"`
}
