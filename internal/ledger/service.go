package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/guard"
	"github.com/attaboy/tower/internal/infra"
	"github.com/attaboy/tower/internal/policy"
	"github.com/attaboy/tower/internal/projection"
	"github.com/attaboy/tower/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/attaboy/tower/internal/ledger")

// Service is the public economy API. Each call holds the per-player locks of every
// player it touches, in ascending id order, and runs as one store transaction.
type Service struct {
	store  repository.Store
	engine *Engine
	locks  *guard.PlayerLocks
	cache  projection.Cache
	limits policy.TradeLimitPolicy
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates the economy service. cache may be nil to disable projections.
func NewService(store repository.Store, locks *guard.PlayerLocks, cache projection.Cache, limits policy.TradeLimitPolicy, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		engine: NewEngine(),
		locks:  locks,
		cache:  cache,
		limits: limits,
		logger: logger,
		now:    time.Now,
	}
}

// Engine exposes the tx-scoped primitives to other services.
func (s *Service) Engine() *Engine { return s.engine }

// GetBalance returns one currency balance.
func (s *Service) GetBalance(ctx context.Context, playerID int64, currency domain.Currency) (int64, error) {
	if _, err := domain.ParseCurrency(string(currency)); err != nil {
		return 0, err
	}
	var amount int64
	err := s.store.Read(ctx, func(tx repository.Tx) error {
		if err := requirePlayer(ctx, tx, playerID); err != nil {
			return err
		}
		var err error
		amount, err = tx.Balances().Get(ctx, playerID, currency)
		return err
	})
	return amount, err
}

// GetBalances returns every currency for the player.
func (s *Service) GetBalances(ctx context.Context, playerID int64) (domain.BalanceSheet, error) {
	var sheet domain.BalanceSheet
	err := s.store.Read(ctx, func(tx repository.Tx) error {
		if err := requirePlayer(ctx, tx, playerID); err != nil {
			return err
		}
		var err error
		sheet, err = tx.Balances().GetAll(ctx, playerID)
		return err
	})
	return sheet, err
}

// CachedBalances serves the balance projection, falling back to the store on a miss.
// The fallback read and the projection write hold the player's lock, so a sheet
// read before a concurrent commit is always invalidated after it.
func (s *Service) CachedBalances(ctx context.Context, playerID int64) (domain.BalanceSheet, error) {
	if s.cache == nil {
		return s.GetBalances(ctx, playerID)
	}
	if p, err := projection.LoadBalances(ctx, s.cache, playerID); err == nil {
		return p.Sheet, nil
	}
	var sheet domain.BalanceSheet
	err := s.locks.With(ctx, func() error {
		var err error
		if sheet, err = s.GetBalances(ctx, playerID); err != nil {
			return err
		}
		s.project(ctx, playerID, sheet)
		return nil
	}, playerID)
	return sheet, err
}

// AdjustBalance applies a signed delta with exactly one record.
func (s *Service) AdjustBalance(ctx context.Context, params domain.AdjustParams) (res *domain.CommandResult, err error) {
	ctx, span := tracer.Start(ctx, "ledger.AdjustBalance", trace.WithAttributes(
		attribute.Int64("player_id", params.PlayerID),
		attribute.String("currency", string(params.Currency)),
		attribute.String("tx_type", string(params.Type)),
	))
	defer func() { infra.EndSpan(span, err) }()

	err = s.locks.With(ctx, func() error {
		return s.store.InTx(ctx, func(tx repository.Tx) error {
			var err error
			res, err = s.engine.Adjust(ctx, tx, params)
			return err
		})
	}, params.PlayerID)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, params.PlayerID)
	return res, nil
}

// Transfer moves currency between two players with a fee to the system sink,
// subject to the single and daily trade caps.
func (s *Service) Transfer(ctx context.Context, params domain.TransferParams) (res *domain.CommandResult, err error) {
	ctx, span := tracer.Start(ctx, "ledger.Transfer", trace.WithAttributes(
		attribute.Int64("from_id", params.FromID),
		attribute.Int64("to_id", params.ToID),
		attribute.String("currency", string(params.Currency)),
	))
	defer func() { infra.EndSpan(span, err) }()

	err = s.locks.With(ctx, func() error {
		return s.store.InTx(ctx, func(tx repository.Tx) error {
			if err := s.checkTradeLimits(ctx, tx, params); err != nil {
				return err
			}
			var err error
			res, err = s.engine.Transfer(ctx, tx, params)
			return err
		})
	}, params.FromID, params.ToID)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, params.FromID, params.ToID)
	s.logger.Info("transfer posted",
		"from_id", params.FromID, "to_id", params.ToID,
		"currency", params.Currency, "amount", params.Amount, "fee", res.Fee)
	return res, nil
}

// Convert exchanges one currency for another at the fixed rate table.
func (s *Service) Convert(ctx context.Context, params domain.ConvertParams) (res *domain.CommandResult, err error) {
	ctx, span := tracer.Start(ctx, "ledger.Convert", trace.WithAttributes(
		attribute.Int64("player_id", params.PlayerID),
		attribute.String("from", string(params.From)),
		attribute.String("to", string(params.To)),
	))
	defer func() { infra.EndSpan(span, err) }()

	err = s.locks.With(ctx, func() error {
		return s.store.InTx(ctx, func(tx repository.Tx) error {
			var err error
			res, err = s.engine.Convert(ctx, tx, params)
			return err
		})
	}, params.PlayerID)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, params.PlayerID)
	return res, nil
}

// GetTransactionHistory returns the player's records, most recent first.
func (s *Service) GetTransactionHistory(ctx context.Context, playerID int64, limit int, currency *domain.Currency) ([]*domain.TransactionRecord, error) {
	if currency != nil {
		if _, err := domain.ParseCurrency(string(*currency)); err != nil {
			return nil, err
		}
	}
	filter := domain.HistoryFilter{Currency: currency, Limit: limit}.Normalize()

	var out []*domain.TransactionRecord
	err := s.store.Read(ctx, func(tx repository.Tx) error {
		if err := requirePlayer(ctx, tx, playerID); err != nil {
			return err
		}
		var err error
		out, err = tx.Transactions().ListByPlayer(ctx, playerID, filter)
		return err
	})
	return out, err
}

// Audit verifies, for every currency, that the balance is non-negative and equals the
// sum of the player's history.
func (s *Service) Audit(ctx context.Context, playerID int64) (*domain.AuditReport, error) {
	report := &domain.AuditReport{PlayerID: playerID, Passed: true}
	err := s.store.Read(ctx, func(tx repository.Tx) error {
		if err := requirePlayer(ctx, tx, playerID); err != nil {
			return err
		}
		balances, err := tx.Balances().GetAll(ctx, playerID)
		if err != nil {
			return fmt.Errorf("audit balances: %w", err)
		}
		sums, err := tx.Transactions().SumByPlayer(ctx, playerID)
		if err != nil {
			return fmt.Errorf("audit history: %w", err)
		}
		report.Checks = auditChecks(balances, sums)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, c := range report.Checks {
		if !c.Passed {
			report.Passed = false
			s.logger.Error("ledger audit failed", "player_id", playerID, "check", c.Name, "currency", c.Currency, "detail", c.Detail)
		}
	}
	return report, nil
}

func auditChecks(balances, sums domain.BalanceSheet) []domain.AuditCheck {
	checks := make([]domain.AuditCheck, 0, 2*len(domain.AllCurrencies()))
	for _, c := range domain.AllCurrencies() {
		bal, sum := balances[c], sums[c]
		checks = append(checks,
			domain.AuditCheck{
				Name:     "balance_non_negative",
				Currency: c,
				Passed:   bal >= 0,
				Balance:  bal,
				Sum:      sum,
			},
			domain.AuditCheck{
				Name:     "ledger_parity",
				Currency: c,
				Passed:   bal == sum,
				Balance:  bal,
				Sum:      sum,
				Detail:   fmt.Sprintf("balance=%d history=%d", bal, sum),
			},
		)
	}
	return checks
}

func (s *Service) checkTradeLimits(ctx context.Context, tx repository.Tx, params domain.TransferParams) error {
	sent, err := tx.Transactions().SumSince(ctx, params.FromID, domain.TxTransferOut, params.Currency, s.now().Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("trade limits: %w", err)
	}
	eval := policy.EvaluateTradeLimits(s.limits, params.Amount, sent)
	if !eval.Allowed {
		return domain.ErrTradeLimit(eval.BreachedLimit, eval.LimitValue, eval.RequestedAmt)
	}
	return nil
}

// Invalidate drops the cached projections of the given players. Call it after a
// commit made by another service through the Engine.
func (s *Service) Invalidate(ctx context.Context, playerIDs ...int64) {
	s.invalidate(ctx, playerIDs...)
}

func (s *Service) invalidate(ctx context.Context, playerIDs ...int64) {
	if s.cache == nil {
		return
	}
	for _, id := range playerIDs {
		if err := projection.DropBalances(ctx, s.cache, id); err != nil {
			s.logger.Warn("balance projection invalidation failed", "player_id", id, "error", err)
		}
	}
}

func (s *Service) project(ctx context.Context, playerID int64, sheet domain.BalanceSheet) {
	if s.cache == nil {
		return
	}
	if err := projection.PutBalances(ctx, s.cache, playerID, sheet); err != nil {
		s.logger.Warn("balance projection update failed", "player_id", playerID, "error", err)
	}
}

func requirePlayer(ctx context.Context, tx repository.Tx, playerID int64) error {
	p, err := tx.Players().Get(ctx, playerID)
	if err != nil {
		return fmt.Errorf("get player: %w", err)
	}
	if p == nil {
		return domain.ErrNotFound("player", fmt.Sprint(playerID))
	}
	return nil
}
