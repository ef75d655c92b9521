package migration

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/ledger"
	"github.com/attaboy/tower/internal/repository"
	"github.com/attaboy/tower/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ctx        = context.Background()
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	epoch      = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

const veteranBlob = `{
	"nickname": "Borin",
	"level": 7,
	"exp": 120,
	"hp": 3,
	"max_hp": 999,
	"floor": 4,
	"gold": 640,
	"state": "in_combat",
	"stats": {"strength": 9, "agility": 4, "vitality": 6, "luck": 2, "accuracy": 3, "defense": 1},
	"current_weapon": "axe",
	"weapons": {"axe": {"level": 6, "skills": ["cleave"]}, "sword": {"level": 0, "skills": []}},
	"inventory": ["health_potion", "health_potion", "wolf_pelt"],
	"learned_talents": ["axe_fury"],
	"deaths": 2,
	"combat_data": {"enemy": "wolf"}
}`

func TestMapPlayer(t *testing.T) {
	m, err := MapPlayer(LegacyRow{PlayerID: 42, Data: json.RawMessage(veteranBlob)}, epoch)
	require.NoError(t, err)

	p := m.Player
	assert.Equal(t, int64(42), p.ID)
	assert.Equal(t, "Borin", p.Nickname)
	assert.Equal(t, 7, p.Level)
	assert.Equal(t, 120, p.Exp)
	assert.Equal(t, 4, p.Floor)
	assert.Equal(t, 2, p.Deaths)
	assert.Equal(t, domain.StatBlock{Strength: 9, Agility: 4, Vitality: 6, Luck: 2, Accuracy: 3, Defense: 1}, p.Stats)
	assert.Equal(t, domain.MaxHPFor(p.Stats), p.MaxHP)
	assert.Equal(t, p.MaxHP, p.HP)
	assert.Equal(t, domain.StateIdle, p.State)
	assert.Equal(t, "axe", p.CurrentWeapon)
	assert.Equal(t, domain.WeaponProgress{Level: 6, Skills: []string{"cleave"}}, p.Weapons["axe"])
	assert.Equal(t, 1, p.Weapons["sword"].Level)
	assert.Equal(t, domain.Inventory{"health_potion": 2, "wolf_pelt": 1}, p.Inventory)
	assert.Equal(t, map[string]int{"axe_fury": 1}, p.Talents)
	assert.Equal(t, int64(640), m.Gold)
}

func TestMapPlayer_Defaults(t *testing.T) {
	m, err := MapPlayer(LegacyRow{PlayerID: 1, Data: json.RawMessage(`{"nickname":"Ann","current_weapon":"bow"}`)}, epoch)
	require.NoError(t, err)

	fresh := domain.NewPlayer(1, "Ann", epoch)
	assert.Equal(t, fresh.Level, m.Player.Level)
	assert.Equal(t, fresh.Stats, m.Player.Stats)
	assert.Equal(t, fresh.Floor, m.Player.Floor)
	assert.Empty(t, m.Player.CurrentWeapon, "weapon not owned")
	assert.Zero(t, m.Gold)
}

func TestMapPlayer_Rejects(t *testing.T) {
	tests := []struct {
		name string
		row  LegacyRow
	}{
		{"malformed json", LegacyRow{PlayerID: 1, Data: json.RawMessage(`{`)}},
		{"unfinished character", LegacyRow{PlayerID: 1, Data: json.RawMessage(`{"level": 1}`)}},
		{"zero id", LegacyRow{PlayerID: 0, Data: json.RawMessage(`{"nickname":"Ann"}`)}},
		{"negative gold", LegacyRow{PlayerID: 1, Data: json.RawMessage(`{"nickname":"Ann","gold":-5}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MapPlayer(tt.row, epoch)
			require.Error(t, err)
			var appErr *domain.AppError
			assert.ErrorAs(t, err, &appErr)
		})
	}
}

func writeLegacyDB(t *testing.T, rows map[int64]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE players (
		player_id INTEGER PRIMARY KEY,
		player_data TEXT NOT NULL,
		last_active REAL DEFAULT 0,
		guild_id INTEGER DEFAULT 0
	)`)
	require.NoError(t, err)
	for id, data := range rows {
		_, err := db.Exec(`INSERT INTO players (player_id, player_data) VALUES (?, ?)`, id, data)
		require.NoError(t, err)
	}
	return path
}

func TestLegacyReader_Players(t *testing.T) {
	path := writeLegacyDB(t, map[int64]string{
		9: `{"nickname":"Zed"}`,
		3: veteranBlob,
	})

	r, err := OpenLegacy(path)
	require.NoError(t, err)
	defer r.Close()

	rows, err := r.Players(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[0].PlayerID)
	assert.Equal(t, int64(9), rows[1].PlayerID)
	assert.JSONEq(t, `{"nickname":"Zed"}`, string(rows[1].Data))
}

func TestOpenLegacy_EmptyPath(t *testing.T) {
	_, err := OpenLegacy("  ")
	assert.Error(t, err)
}

func TestImporter_Import(t *testing.T) {
	store := memory.NewStore()
	im := NewImporter(store, ledger.NewEngine(), testLogger)
	im.now = func() time.Time { return epoch }

	rows := []LegacyRow{
		{PlayerID: 42, Data: json.RawMessage(veteranBlob)},
		{PlayerID: 7, Data: json.RawMessage(`{"nickname":"Ann"}`)},
		{PlayerID: 8, Data: json.RawMessage(`{"level": 3}`)},
	}

	rep, err := im.Import(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Imported)
	assert.Zero(t, rep.Skipped)
	assert.Equal(t, []int64{8}, rep.Failed)

	var (
		gold int64
		hist []*domain.TransactionRecord
	)
	require.NoError(t, store.Read(ctx, func(tx repository.Tx) error {
		var err error
		gold, err = tx.Balances().Get(ctx, 42, domain.CurrencyGold)
		if err != nil {
			return err
		}
		hist, err = tx.Transactions().ListByPlayer(ctx, 42, domain.HistoryFilter{Limit: 10})
		return err
	}))
	assert.Equal(t, int64(640), gold)
	require.Len(t, hist, 1)
	assert.Equal(t, domain.TxLegacyImport, hist[0].Type)

	t.Run("rerun skips existing players", func(t *testing.T) {
		rep, err := im.Import(ctx, rows[:2])
		require.NoError(t, err)
		assert.Zero(t, rep.Imported)
		assert.Equal(t, 2, rep.Skipped)
	})
}
