//go:build integration

package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/attaboy/tower/internal/app"
	"github.com/attaboy/tower/internal/auth"
	"github.com/attaboy/tower/internal/infra"
	"github.com/attaboy/tower/internal/repository"
	"github.com/attaboy/tower/internal/rng"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	TestJWTSecret = "integration-test-secret-0123456789abcdef"
	TestDBHost    = "localhost"
	TestDBPort    = 5435
	TestDBUser    = "tower"
	TestDBPass    = "tower"
	TestDBName    = "tower_test"
)

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server   *httptest.Server
	Pool     *pgxpool.Pool
	Store    repository.Store
	Services *app.Services
	JWTMgr   *auth.JWTManager
	Token    string
	Admin    string
	t        *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func testDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBName)
}

func bootstrapDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, "tower")
}

func ensureTestDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bPool, err := pgxpool.New(ctx, bootstrapDSN())
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	err = bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}
	if !exists {
		if _, err := bPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", TestDBName)); err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}
	return nil
}

func getSharedPool(t *testing.T, logger *slog.Logger) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}
		if err := infra.RunMigrations(testDSN(), "", logger); err != nil {
			poolErr = err
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(testDSN())
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 10
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// TestConfig is the game configuration every integration test runs with.
func TestConfig() *infra.Config {
	return &infra.Config{
		PlayerLockTimeout: 2 * time.Second,
		PvPQueueTimeout:   time.Minute,
		RaidMinTanks:      1,
		RaidMinHealers:    1,
		RaidMinMembers:    3,
		SingleTransferMax: 50000,
		DailyTransferMax:  200000,
		GuildCreationCost: 50,
	}
}

// NewTestEnv creates a test environment with an httptest.Server backed by the
// real router and the Postgres store.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	pool := getSharedPool(t, logger)
	store := repository.NewPgStore(pool)

	svcs := app.NewServices(app.ServiceDeps{
		Store:  store,
		Config: TestConfig(),
		Rand:   rng.New(42),
		Logger: logger,
	})
	jwtMgr := auth.NewJWTManager(TestJWTSecret, time.Hour, time.Hour)
	router := app.NewRouter(app.RouterDeps{
		Services:           svcs,
		JWTMgr:             jwtMgr,
		Health:             func(ctx context.Context) error { return infra.HealthCheck(ctx, pool) },
		RateLimitPerMinute: 10000,
		TransferFeePercent: 0.05,
		Logger:             logger,
	})

	env := &TestEnv{
		Server:   httptest.NewServer(router),
		Pool:     pool,
		Store:    store,
		Services: svcs,
		JWTMgr:   jwtMgr,
		t:        t,
	}
	env.Token = env.mint(auth.RealmService, "integration", "")
	env.Admin = env.mint(auth.RealmAdmin, "integration-ops", auth.RoleSuperAdmin)

	t.Cleanup(func() {
		env.Server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svcs.Shutdown(ctx)
		env.CleanAll()
	})

	// Clean before test to ensure isolation
	env.CleanAll()

	return env
}

func (env *TestEnv) mint(realm auth.Realm, subject, role string) string {
	env.t.Helper()
	token, err := env.JWTMgr.GenerateToken(realm, subject, role)
	if err != nil {
		env.t.Fatalf("mint token: %v", err)
	}
	return token
}
