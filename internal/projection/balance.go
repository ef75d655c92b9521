package projection

import (
	"context"
	"strconv"
	"time"

	"github.com/attaboy/tower/internal/domain"
)

// Balances is the cached balance sheet of one player.
type Balances struct {
	PlayerID    int64               `json:"player_id"`
	Sheet       domain.BalanceSheet `json:"balances"`
	ProjectedAt time.Time           `json:"projected_at"`
}

// BalanceTTL bounds how stale a balance projection may get if an invalidation is missed.
const BalanceTTL = 5 * time.Minute

func balanceKey(playerID int64) string {
	return "balance:" + strconv.FormatInt(playerID, 10)
}

// PutBalances stores a fresh projection of sheet.
func PutBalances(ctx context.Context, c Cache, playerID int64, sheet domain.BalanceSheet) error {
	return put(ctx, c, balanceKey(playerID), Balances{
		PlayerID:    playerID,
		Sheet:       sheet,
		ProjectedAt: time.Now().UTC(),
	}, BalanceTTL)
}

// LoadBalances returns the cached projection or ErrMiss.
func LoadBalances(ctx context.Context, c Cache, playerID int64) (Balances, error) {
	return load[Balances](ctx, c, balanceKey(playerID))
}

// DropBalances evicts the player's projection.
func DropBalances(ctx context.Context, c Cache, playerID int64) error {
	return c.Delete(ctx, balanceKey(playerID))
}
