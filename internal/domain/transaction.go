package domain

import (
	"encoding/json"
	"time"
)

// TransactionType enumerates all ledger transaction types.
type TransactionType string

const (
	// Combat
	TxCombatReward  TransactionType = "combat_reward"
	TxCombatPenalty TransactionType = "combat_penalty"

	// Trade
	TxTransferOut TransactionType = "transfer_out"
	TxTransferIn  TransactionType = "transfer_in"
	TxTransferFee TransactionType = "transfer_fee"
	TxConvertOut  TransactionType = "convert_out"
	TxConvertIn   TransactionType = "convert_in"
	TxConvertFee  TransactionType = "convert_fee"

	// Guild
	TxGuildCreate        TransactionType = "guild_create"
	TxGuildDeposit       TransactionType = "guild_deposit"
	TxGuildWithdraw      TransactionType = "guild_withdraw"
	TxGuildDisbandRefund TransactionType = "guild_disband_refund"

	// Group activities
	TxRaidReward TransactionType = "raid_reward"
	TxPvPHonor   TransactionType = "pvp_honor"

	// Misc
	TxShopPurchase    TransactionType = "shop_purchase"
	TxOpeningGrant    TransactionType = "opening_grant"
	TxLegacyImport    TransactionType = "legacy_import"
	TxAdminAdjust     TransactionType = "admin_adjust"
	TxPermadeathReset TransactionType = "permadeath_reset"
	TxTalentReset     TransactionType = "talent_reset"
)

var knownTxTypes = map[TransactionType]bool{
	TxCombatReward: true, TxCombatPenalty: true,
	TxTransferOut: true, TxTransferIn: true, TxTransferFee: true,
	TxConvertOut: true, TxConvertIn: true, TxConvertFee: true,
	TxGuildCreate: true, TxGuildDeposit: true, TxGuildWithdraw: true, TxGuildDisbandRefund: true,
	TxRaidReward: true, TxPvPHonor: true,
	TxShopPurchase: true, TxOpeningGrant: true, TxLegacyImport: true, TxAdminAdjust: true, TxPermadeathReset: true,
	TxTalentReset: true,
}

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool { return knownTxTypes[t] }

// TransactionRecord is an append-only ledger row. PlayerID is nil for the system sink.
type TransactionRecord struct {
	ID           int64           `json:"id"`
	PlayerID     *int64          `json:"player_id"`
	Currency     Currency        `json:"currency"`
	Amount       int64           `json:"amount"`
	Type         TransactionType `json:"type"`
	BalanceAfter int64           `json:"balance_after"`
	Reference    *string         `json:"reference,omitempty"`
	Details      json.RawMessage `json:"details"`
	CreatedAt    time.Time       `json:"created_at"`
}

// IsSink reports whether the record belongs to the system sink.
func (r *TransactionRecord) IsSink() bool { return r.PlayerID == nil }

// HistoryFilter narrows a transaction history query.
type HistoryFilter struct {
	Currency *Currency
	Limit    int
}

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// Normalize clamps the limit into [1, MaxHistoryLimit].
func (f HistoryFilter) Normalize() HistoryFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}
	if f.Limit > MaxHistoryLimit {
		f.Limit = MaxHistoryLimit
	}
	return f
}
