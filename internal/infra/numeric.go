package infra

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

var ten = big.NewInt(10)

// AmountFromNumeric reads a whole-unit currency amount out of a numeric(15,0)
// column. Fractional values are rejected rather than truncated.
func AmountFromNumeric(n pgtype.Numeric) (int64, error) {
	if !n.Valid {
		return 0, fmt.Errorf("amount is NULL")
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return 0, fmt.Errorf("amount is not a finite number")
	}

	v := new(big.Int).Set(n.Int)
	switch {
	case n.Exp > 0:
		v.Mul(v, new(big.Int).Exp(ten, big.NewInt(int64(n.Exp)), nil))
	case n.Exp < 0:
		var rem big.Int
		v.QuoRem(v, new(big.Int).Exp(ten, big.NewInt(int64(-n.Exp)), nil), &rem)
		if rem.Sign() != 0 {
			return 0, fmt.Errorf("amount %s has a fractional part", n.Int.String())
		}
	}

	if !v.IsInt64() {
		return 0, fmt.Errorf("amount %s overflows int64", v.String())
	}
	return v.Int64(), nil
}

// NumericAmount encodes a whole-unit amount for a numeric(15,0) column.
func NumericAmount(v int64) pgtype.Numeric {
	return pgtype.Numeric{Int: big.NewInt(v), InfinityModifier: pgtype.Finite, Valid: true}
}
