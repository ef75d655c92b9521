// Package app assembles the game services and the HTTP operation API.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/attaboy/tower/internal/auth"
	"github.com/attaboy/tower/internal/catalog"
	"github.com/attaboy/tower/internal/combat"
	"github.com/attaboy/tower/internal/guard"
	"github.com/attaboy/tower/internal/guild"
	"github.com/attaboy/tower/internal/handler"
	"github.com/attaboy/tower/internal/infra"
	"github.com/attaboy/tower/internal/ledger"
	"github.com/attaboy/tower/internal/player"
	"github.com/attaboy/tower/internal/policy"
	"github.com/attaboy/tower/internal/projection"
	"github.com/attaboy/tower/internal/pvp"
	"github.com/attaboy/tower/internal/raid"
	"github.com/attaboy/tower/internal/repository"
	"github.com/attaboy/tower/internal/rng"
	"github.com/go-chi/chi/v5"
)

const idempotencyTTL = 24 * time.Hour

// Services is the assembled game core. Every service shares one store, one
// per-player lock table and one RNG.
type Services struct {
	Content *catalog.Catalog
	Locks   *guard.PlayerLocks
	Economy *ledger.Service
	Players *player.Service
	Combat  *combat.Service
	Guilds  *guild.Service
	Raids   *raid.Service
	PvP     *pvp.Service
	Hub     *infra.WSHub
}

// ServiceDeps holds what NewServices needs from the process.
type ServiceDeps struct {
	Store  repository.Store
	Config *infra.Config
	Rand   *rng.Service
	Logger *slog.Logger
}

// NewServices wires the game services over the given store.
func NewServices(deps ServiceDeps) *Services {
	cfg := deps.Config
	logger := deps.Logger
	content := catalog.Default()
	locks := guard.NewPlayerLocks(cfg.PlayerLockTimeout)
	hub := infra.NewWSHub(logger.With("component", "ws"))

	limits := policy.TradeLimitPolicy{
		SingleTransferMax: cfg.SingleTransferMax,
		DailyTransferMax:  cfg.DailyTransferMax,
	}
	economy := ledger.NewService(deps.Store, locks, projection.NewMemoryCache(), limits, logger.With("component", "ledger"))

	return &Services{
		Content: content,
		Locks:   locks,
		Economy: economy,
		Players: player.NewService(deps.Store, economy, locks, content, logger.With("component", "player")),
		Combat:  combat.NewService(deps.Store, economy, locks, content, deps.Rand, cfg.PermadeathEnabled, logger.With("component", "combat")),
		Guilds:  guild.NewService(deps.Store, economy, locks, cfg.GuildCreationCost, logger.With("component", "guild")),
		Raids: raid.NewService(deps.Store, economy, locks, content, deps.Rand, hub, cfg.RaidComposition(),
			logger.With("component", "raid")),
		PvP: pvp.NewService(deps.Store, economy, locks, content, deps.Rand, cfg.PvPQueueTimeout,
			logger.With("component", "pvp")).WithNotifier(hub),
		Hub: hub,
	}
}

// Shutdown stops the raid actors and closes live streams.
func (s *Services) Shutdown(ctx context.Context) error {
	s.Hub.Shutdown(ctx)
	return s.Raids.Shutdown(ctx)
}

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Services           *Services
	JWTMgr             *auth.JWTManager
	Health             func(context.Context) error
	RateLimitPerMinute int
	TransferFeePercent float64
	CORSOrigin         string
	Breaker            *guard.CircuitBreaker // optional; exposed on /admin/stats
	Logger             *slog.Logger
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	svcs := deps.Services
	jwtMgr := deps.JWTMgr
	logger := deps.Logger

	// Handlers
	catalogHandler := handler.NewCatalogHandler(svcs.Content)
	playerHandler := handler.NewPlayerHandler(svcs.Players, svcs.Economy)
	feedHandler := handler.NewFeedHandler(svcs.Hub, svcs.Players, logger)
	combatHandler := handler.NewCombatHandler(svcs.Combat)
	economyHandler := handler.NewEconomyHandler(svcs.Economy, deps.TransferFeePercent)
	guildHandler := handler.NewGuildHandler(svcs.Guilds)
	raidHandler := handler.NewRaidHandler(svcs.Raids, svcs.Hub, logger)
	pvpHandler := handler.NewPvPHandler(svcs.PvP)

	limiter := guard.NewRateLimiter(deps.RateLimitPerMinute, time.Minute)
	idempotency := handler.Idempotency(guard.NewIdempotencyGuard(idempotencyTTL))

	origin := deps.CORSOrigin
	if origin == "" {
		origin = "*"
	}

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(origin))
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(handler.Check{Name: "store", Probe: deps.Health}))

	// Presentation-layer routes
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticateService(jwtMgr))
		r.Use(handler.RateLimit(limiter))

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/weapons", catalogHandler.Weapons)
			r.Get("/weapons/{weaponID}/talents", catalogHandler.Talents)
			r.Get("/shop", catalogHandler.Shop)
			r.Get("/raid-bosses", catalogHandler.RaidBosses)
		})

		r.Route("/players", func(r chi.Router) {
			r.Post("/", playerHandler.Register)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", playerHandler.Get)
				r.Post("/level-up", playerHandler.LevelUp)
				r.Put("/weapon", playerHandler.SelectWeapon)
				r.Post("/skills", playerHandler.LearnSkill)
				r.Post("/talents", playerHandler.LearnTalent)
				r.Post("/talents/reset", playerHandler.ResetTalents)
				r.With(idempotency).Post("/purchases", playerHandler.Purchase)
				r.Post("/upgrades", playerHandler.UseUpgrade)
				r.Get("/combat", combatHandler.Active)
				r.Get("/raids", raidHandler.History)
				r.Get("/duels", pvpHandler.History)
				r.Get("/stream", feedHandler.Player)
			})
		})

		r.Route("/combat/sessions", func(r chi.Router) {
			r.Post("/", combatHandler.Start)
			r.Get("/{id}", combatHandler.Get)
			r.Post("/{id}/actions", combatHandler.Act)
		})

		r.Route("/economy", func(r chi.Router) {
			r.Use(idempotency)
			r.Get("/players/{id}/balance", economyHandler.Balance)
			r.Get("/players/{id}/transactions", economyHandler.Transactions)
			r.Get("/players/{id}/audit", economyHandler.Audit)
			r.Post("/adjust", economyHandler.Adjust)
			r.Post("/transfers", economyHandler.Transfer)
			r.Post("/conversions", economyHandler.Convert)
		})

		r.Route("/guilds", func(r chi.Router) {
			r.Post("/", guildHandler.Create)
			r.Get("/", guildHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", guildHandler.Get)
				r.Delete("/", guildHandler.Disband)
				r.Post("/members", guildHandler.Join)
				r.Delete("/members/{playerID}", guildHandler.RemoveMember)
				r.Post("/members/{playerID}/promote", guildHandler.Promote)
				r.Post("/members/{playerID}/demote", guildHandler.Demote)
				r.Post("/leadership", guildHandler.TransferLeadership)
				r.With(idempotency).Post("/bank/items/deposit", guildHandler.DepositItem)
				r.With(idempotency).Post("/bank/items/withdraw", guildHandler.WithdrawItem)
				r.With(idempotency).Post("/bank/gold/deposit", guildHandler.DepositGold)
				r.With(idempotency).Post("/bank/gold/withdraw", guildHandler.WithdrawGold)
			})
		})

		r.Route("/raids", func(r chi.Router) {
			r.Post("/", raidHandler.Create)
			r.Get("/", raidHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", raidHandler.Status)
				r.Get("/record", raidHandler.Record)
				r.Get("/stream", raidHandler.Stream)
				r.Post("/members", raidHandler.Join)
				r.Put("/members/{playerID}/ready", raidHandler.SetReady)
				r.Delete("/members/{playerID}", raidHandler.Leave)
				r.Post("/start", raidHandler.Start)
				r.Post("/attack", raidHandler.Attack)
				r.Post("/heal", raidHandler.Heal)
			})
		})

		r.Route("/pvp", func(r chi.Router) {
			r.Post("/duels", pvpHandler.Duel)
			r.Post("/queue", pvpHandler.Enqueue)
			r.Get("/queue/{ticketID}", pvpHandler.Ticket)
			r.Delete("/queue/{ticketID}", pvpHandler.Cancel)
		})
	})

	// Operator routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.AuthenticateAdmin(jwtMgr))

		r.Get("/stats", feedHandler.Stats(func() map[string]any {
			stats := map[string]any{
				"active_encounters": svcs.Combat.ActiveCount(),
				"active_raids":      len(svcs.Raids.Active()),
				"held_player_locks": svcs.Locks.Held(),
			}
			if deps.Breaker != nil {
				stats["circuits"] = deps.Breaker.Snapshot()
			}
			return stats
		}))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleOperator))
			r.Post("/raids/tick", raidHandler.TickAll)
			r.Post("/raids/{id}/tick", raidHandler.Tick)
			r.Post("/pvp/match", pvpHandler.Match)
			r.Post("/guilds/{id}/experience", guildHandler.AddExperience)
		})
	})

	return r
}
