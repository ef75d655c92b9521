package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateTradeLimits_AllowsWithinLimits(t *testing.T) {
	result := EvaluateTradeLimits(DefaultTradeLimits(), 10_000, 0)
	assert.True(t, result.Allowed)
}

func TestEvaluateTradeLimits_BlocksSingleTransferOverLimit(t *testing.T) {
	result := EvaluateTradeLimits(DefaultTradeLimits(), 60_000, 0)
	assert.False(t, result.Allowed)
	assert.Equal(t, "single_transfer", result.BreachedLimit)
	assert.Equal(t, int64(50_000), result.LimitValue)
}

func TestEvaluateTradeLimits_BlocksDailyOverLimit(t *testing.T) {
	// Already sent 180_000, trying 30_000 more (total 210_000 > 200_000)
	result := EvaluateTradeLimits(DefaultTradeLimits(), 30_000, 180_000)
	assert.False(t, result.Allowed)
	assert.Equal(t, "daily_transfer", result.BreachedLimit)
	assert.Equal(t, int64(210_000), result.RequestedAmt)
}

func TestEvaluateTradeLimits_ZeroDisables(t *testing.T) {
	result := EvaluateTradeLimits(TradeLimitPolicy{}, 1_000_000, 1_000_000)
	assert.True(t, result.Allowed)
}
