package infra

import (
	"math"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericAmount_RoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, 100, -250, 999_999_999_999_999, math.MinInt64} {
		got, err := AmountFromNumeric(NumericAmount(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestAmountFromNumeric(t *testing.T) {
	huge, _ := new(big.Int).SetString("99999999999999999999", 10)

	tests := []struct {
		name    string
		in      pgtype.Numeric
		want    int64
		wantErr string
	}{
		{"positive exponent", pgtype.Numeric{Int: big.NewInt(5), Exp: 3, Valid: true}, 5000, ""},
		{"trailing zeros after the point", pgtype.Numeric{Int: big.NewInt(4200), Exp: -2, Valid: true}, 42, ""},
		{"fractional", pgtype.Numeric{Int: big.NewInt(4250), Exp: -2, Valid: true}, 0, "fractional"},
		{"null", pgtype.Numeric{}, 0, "NULL"},
		{"nan", pgtype.Numeric{NaN: true, Valid: true}, 0, "finite"},
		{"infinity", pgtype.Numeric{InfinityModifier: pgtype.Infinity, Valid: true}, 0, "finite"},
		{"overflow", pgtype.Numeric{Int: huge, Valid: true}, 0, "overflows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AmountFromNumeric(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
