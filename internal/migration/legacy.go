// Package migration moves characters out of the prototype's SQLite file into
// the tower store.
package migration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// LegacyRow is one row of the prototype players table: the id plus the raw
// JSON character blob.
type LegacyRow struct {
	PlayerID int64
	Data     json.RawMessage
}

// LegacyReader reads the prototype database read-only.
type LegacyReader struct {
	db *sql.DB
}

// OpenLegacy opens the SQLite file at path.
func OpenLegacy(path string) (*LegacyReader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("legacy database path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=query_only(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open legacy db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping legacy db: %w", err)
	}
	return &LegacyReader{db: db}, nil
}

// Close closes the SQLite handle.
func (r *LegacyReader) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Players returns every row of the players table in id order.
func (r *LegacyReader) Players(ctx context.Context) ([]LegacyRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT player_id, player_data FROM players ORDER BY player_id`)
	if err != nil {
		return nil, fmt.Errorf("query legacy players: %w", err)
	}
	defer rows.Close()

	var out []LegacyRow
	for rows.Next() {
		var (
			row  LegacyRow
			data string
		)
		if err := rows.Scan(&row.PlayerID, &data); err != nil {
			return nil, fmt.Errorf("scan legacy player: %w", err)
		}
		row.Data = json.RawMessage(data)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legacy players: %w", err)
	}
	return out, nil
}
