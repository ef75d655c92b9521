package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attaboy/tower/internal/app"
	"github.com/attaboy/tower/internal/auth"
	"github.com/attaboy/tower/internal/guard"
	"github.com/attaboy/tower/internal/infra"
	"github.com/attaboy/tower/internal/repository"
	"github.com/attaboy/tower/internal/repository/memory"
	"github.com/attaboy/tower/internal/rng"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	shutdownTracing, err := infra.SetupTracing(ctx, cfg.OTelEndpoint, "tower-server")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	// Storage
	var (
		store  repository.Store
		health func(context.Context) error
	)
	switch cfg.StoreBackend {
	case "memory":
		store = memory.NewStore()
		logger.Warn("using in-memory store; state is lost on exit")
	default:
		if err := infra.RunMigrations(cfg.DSN(), cfg.MigrationsDir, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		pool, err := infra.NewPostgresPool(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		logger.Info("connected to postgres")
		store = repository.NewPgStore(pool)
		health = func(ctx context.Context) error { return infra.HealthCheck(ctx, pool) }
	}

	// Randomness
	breaker := guard.NewCircuitBreaker(5, 30*time.Second)
	seed, source, err := rng.SeedSource{
		Explicit:  cfg.RNGSeed,
		RandomOrg: rng.NewRandomOrgClient(cfg.RandomOrgAPIKey, logger),
		Breaker:   breaker,
		Logger:    logger,
	}.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolve rng seed: %w", err)
	}
	logger.Info("rng seeded", "source", source)

	// Services
	svcs := app.NewServices(app.ServiceDeps{
		Store:  store,
		Config: cfg,
		Rand:   rng.New(seed),
		Logger: logger,
	})
	recovered, err := svcs.Players.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover players: %w", err)
	}
	if recovered > 0 {
		logger.Info("released players stuck in combat", "count", recovered)
	}

	router := app.NewRouter(app.RouterDeps{
		Services:           svcs,
		JWTMgr:             auth.NewJWTManager(cfg.JWTSecret, cfg.JWTServiceExpiry, cfg.JWTAdminExpiry),
		Health:             health,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TransferFeePercent: cfg.TransferFeePercent,
		CORSOrigin:         cfg.CORSOrigin,
		Breaker:            breaker,
		Logger:             logger,
	})

	// Event bus
	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return svcs.Raids.Run(gctx, cfg.RaidTickInterval)
	})

	g.Go(func() error {
		return svcs.PvP.Run(gctx, cfg.PvPMatchInterval)
	})

	// Unpublished rows stay in the outbox until a broker is configured.
	if producer.Enabled() {
		poller := infra.NewOutboxPoller(repository.OutboxFeed{Store: store}, producer, breaker, cfg.KafkaTopicPrefix, logger)
		g.Go(func() error {
			return poller.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return svcs.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}
