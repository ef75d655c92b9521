package projection

import (
	"context"
	"testing"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "forever", []byte("a"), 0))
	require.NoError(t, c.Set(ctx, "short", []byte("b"), time.Second))

	got, err := c.Get(ctx, "short")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)

	now = now.Add(time.Second)
	_, err = c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrMiss, "expires exactly at the deadline")
	assert.Equal(t, 1, c.Len(), "expired key is dropped on read")

	_, err = c.Get(ctx, "forever")
	assert.NoError(t, err)

	require.NoError(t, c.Delete(ctx, "forever"))
	_, err = c.Get(ctx, "forever")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestBalances(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	_, err := LoadBalances(ctx, c, 42)
	require.ErrorIs(t, err, ErrMiss)

	sheet := domain.BalanceSheet{domain.CurrencyGold: 1500, domain.CurrencyHonor: 25}
	require.NoError(t, PutBalances(ctx, c, 42, sheet))

	got, err := LoadBalances(ctx, c, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.PlayerID)
	assert.Equal(t, sheet, got.Sheet)
	assert.False(t, got.ProjectedAt.IsZero())

	require.NoError(t, DropBalances(ctx, c, 42))
	_, err = LoadBalances(ctx, c, 42)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestLoadBalances_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	require.NoError(t, c.Set(ctx, balanceKey(7), []byte("{"), 0))

	_, err := LoadBalances(ctx, c, 7)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}
