package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attaboy/tower/internal/infra"
	"github.com/attaboy/tower/internal/ledger"
	"github.com/attaboy/tower/internal/migration"
	"github.com/attaboy/tower/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	path := flag.String("db", "mmorpg.db", "path to the prototype SQLite database")
	dryRun := flag.Bool("dry-run", false, "map every row and report rejects without writing")
	flag.Parse()

	if err := run(logger, *path, *dryRun); err != nil {
		logger.Error("legacy import failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, path string, dryRun bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("legacy database: %w", err)
	}
	reader, err := migration.OpenLegacy(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	rows, err := reader.Players(ctx)
	if err != nil {
		return err
	}
	logger.Info("legacy players loaded", "path", path, "count", len(rows))

	if dryRun {
		rejected := 0
		for _, row := range rows {
			if _, err := migration.MapPlayer(row, time.Now()); err != nil {
				rejected++
				logger.Warn("legacy player rejected", "player_id", row.PlayerID, "error", err)
			}
		}
		logger.Info("dry run finished", "accepted", len(rows)-rejected, "rejected", rejected)
		return nil
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := infra.RunMigrations(cfg.DSN(), cfg.MigrationsDir, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	im := migration.NewImporter(repository.NewPgStore(pool), ledger.NewEngine(), logger)
	rep, err := im.Import(ctx, rows)
	if err != nil {
		return err
	}
	if len(rep.Failed) > 0 {
		logger.Warn("some legacy players were not imported", "player_ids", rep.Failed)
	}
	return nil
}
