package policy

// TradeLimitPolicy caps player-to-player transfers.
type TradeLimitPolicy struct {
	SingleTransferMax int64 `json:"single_transfer_max"` // 0 disables
	DailyTransferMax  int64 `json:"daily_transfer_max"`  // rolling 24h, 0 disables
}

// DefaultTradeLimits returns the default caps (50k single, 200k daily).
func DefaultTradeLimits() TradeLimitPolicy {
	return TradeLimitPolicy{
		SingleTransferMax: 50_000,
		DailyTransferMax:  200_000,
	}
}

// TradeEvaluation holds the result of a trade limits check.
type TradeEvaluation struct {
	Allowed       bool   `json:"allowed"`
	BreachedLimit string `json:"breached_limit,omitempty"`
	LimitValue    int64  `json:"limit_value,omitempty"`
	RequestedAmt  int64  `json:"requested_amount,omitempty"`
}

// EvaluateTradeLimits checks a transfer amount against the policy.
// sentToday is the sender's outgoing transfer total over the last 24 hours.
func EvaluateTradeLimits(policy TradeLimitPolicy, amount, sentToday int64) TradeEvaluation {
	if policy.SingleTransferMax > 0 && amount > policy.SingleTransferMax {
		return TradeEvaluation{
			Allowed:       false,
			BreachedLimit: "single_transfer",
			LimitValue:    policy.SingleTransferMax,
			RequestedAmt:  amount,
		}
	}

	if policy.DailyTransferMax > 0 && sentToday+amount > policy.DailyTransferMax {
		return TradeEvaluation{
			Allowed:       false,
			BreachedLimit: "daily_transfer",
			LimitValue:    policy.DailyTransferMax,
			RequestedAmt:  sentToday + amount,
		}
	}

	return TradeEvaluation{Allowed: true}
}
