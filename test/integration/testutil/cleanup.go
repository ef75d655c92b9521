//go:build integration

package testutil

import (
	"context"
	"strings"
	"time"
)

// CleanAll truncates all game tables.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tables := []string{
		"event_outbox",
		"pvp_matches",
		"raid_loot",
		"raid_history",
		"guild_bank_items",
		"guild_members",
		"ledger_transactions",
		"player_balances",
		"guilds",
		"players",
	}
	_, err := env.Pool.Exec(ctx, "TRUNCATE "+strings.Join(tables, ", ")+" RESTART IDENTITY CASCADE")
	if err != nil {
		env.t.Fatalf("CleanAll: %v", err)
	}
}
