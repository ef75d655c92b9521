package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/ledger"
	"github.com/attaboy/tower/internal/repository"
)

// Report tallies one import run.
type Report struct {
	Imported int     `json:"imported"`
	Skipped  int     `json:"skipped"`
	Failed   []int64 `json:"failed,omitempty"`
}

// Importer writes mapped characters into the store. Gold is credited as a
// legacy_import ledger record so the audit invariant holds from the first row.
type Importer struct {
	store  repository.Store
	engine *ledger.Engine
	logger *slog.Logger
	now    func() time.Time
}

// NewImporter creates an importer over store.
func NewImporter(store repository.Store, engine *ledger.Engine, logger *slog.Logger) *Importer {
	return &Importer{store: store, engine: engine, logger: logger, now: time.Now}
}

// Import converts and writes every row. Players that already exist are skipped,
// so rerunning an import is safe. A row that fails to map or write is reported
// and does not stop the run.
func (im *Importer) Import(ctx context.Context, rows []LegacyRow) (*Report, error) {
	rep := &Report{}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		created, err := im.importOne(ctx, row)
		switch {
		case err != nil:
			var appErr *domain.AppError
			if !errors.As(err, &appErr) {
				return rep, fmt.Errorf("import player %d: %w", row.PlayerID, err)
			}
			im.logger.Warn("legacy player rejected", "player_id", row.PlayerID, "error", err)
			rep.Failed = append(rep.Failed, row.PlayerID)
		case created:
			rep.Imported++
		default:
			rep.Skipped++
		}
	}
	im.logger.Info("legacy import finished",
		"imported", rep.Imported, "skipped", rep.Skipped, "failed", len(rep.Failed))
	return rep, nil
}

func (im *Importer) importOne(ctx context.Context, row LegacyRow) (bool, error) {
	m, err := MapPlayer(row, im.now())
	if err != nil {
		return false, err
	}

	created := false
	err = im.store.InTx(ctx, func(tx repository.Tx) error {
		existing, err := tx.Players().Get(ctx, m.Player.ID)
		if err != nil {
			return fmt.Errorf("get player: %w", err)
		}
		if existing != nil {
			return nil
		}
		if err := tx.Players().Create(ctx, m.Player); err != nil {
			return fmt.Errorf("create player: %w", err)
		}
		if m.Gold > 0 {
			_, err := im.engine.Adjust(ctx, tx, domain.AdjustParams{
				PlayerID: m.Player.ID,
				Currency: domain.CurrencyGold,
				Delta:    m.Gold,
				Type:     domain.TxLegacyImport,
				Details:  map[string]any{"reference": fmt.Sprintf("legacy:%d", m.Player.ID)},
			})
			if err != nil {
				return err
			}
		}
		if err := tx.Outbox().Insert(ctx, domain.NewPlayerRegisteredEvent(m.Player)); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		created = true
		return nil
	})
	return created, err
}
