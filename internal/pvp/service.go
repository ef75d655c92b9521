package pvp

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/attaboy/tower/internal/combat"
	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/guard"
	"github.com/attaboy/tower/internal/infra"
	"github.com/attaboy/tower/internal/ledger"
	"github.com/attaboy/tower/internal/repository"
	"github.com/attaboy/tower/internal/rng"
	"github.com/attaboy/tower/internal/settlement"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/attaboy/tower/internal/pvp")

// Content is the slice of the catalog duels need.
type Content interface {
	Weapon(id string) (domain.Weapon, bool)
	TalentBonus(p *domain.Player, weapon string) domain.TalentBonus
}

// Pairing is one queue match and the duel it produced.
type Pairing struct {
	Tickets [2]uuid.UUID     `json:"tickets"`
	Match   *domain.PvPMatch `json:"match,omitempty"`
}

// Notifier pushes match results to each player's live feed.
type Notifier interface {
	PublishToPlayer(playerID int64, event string, data any)
}

// Service runs duels and the matchmaking queue.
type Service struct {
	store        repository.Store
	economy      *ledger.Service
	locks        *guard.PlayerLocks
	content      Content
	rand         *rng.Service
	settle       *settlement.PvPSettlement
	queueTimeout time.Duration
	logger       *slog.Logger
	notify       Notifier
	now          func() time.Time

	// matching serializes MatchPending passes.
	matching sync.Mutex

	mu       sync.Mutex
	tickets  map[uuid.UUID]*domain.QueueTicket
	byPlayer map[int64]uuid.UUID
}

// NewService creates the PvP coordinator.
func NewService(store repository.Store, economy *ledger.Service, locks *guard.PlayerLocks, content Content, rand *rng.Service, queueTimeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		store:        store,
		economy:      economy,
		locks:        locks,
		content:      content,
		rand:         rand,
		settle:       settlement.NewPvPSettlement(economy.Engine()),
		queueTimeout: queueTimeout,
		logger:       logger,
		now:          time.Now,
		tickets:      make(map[uuid.UUID]*domain.QueueTicket),
		byPlayer:     make(map[int64]uuid.UUID),
	}
}

// WithNotifier sets the live feed duel results are published to.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notify = n
	return s
}

func (s *Service) combatant(p *domain.Player) combat.Combatant {
	var weapon *domain.Weapon
	if w, ok := s.content.Weapon(p.CurrentWeapon); ok {
		weapon = &w
	}
	return combat.NewCombatant(p, weapon, s.content.TalentBonus(p, p.CurrentWeapon))
}

// Duel fights two idle players and settles honor and rating in one transaction.
func (s *Service) Duel(ctx context.Context, challengerID, opponentID int64) (m *domain.PvPMatch, err error) {
	ctx, span := tracer.Start(ctx, "pvp.Duel", trace.WithAttributes(
		attribute.Int64("challenger_id", challengerID),
		attribute.Int64("opponent_id", opponentID),
	))
	defer func() { infra.EndSpan(span, err) }()

	if challengerID == opponentID {
		return nil, domain.ErrValidation("cannot duel yourself")
	}
	var res Result
	err = s.locks.With(ctx, func() error {
		return s.store.InTx(ctx, func(tx repository.Tx) error {
			players, err := s.economy.Engine().LockPlayers(ctx, tx, challengerID, opponentID)
			if err != nil {
				return err
			}
			c, o := players[challengerID], players[opponentID]
			for _, p := range []*domain.Player{c, o} {
				if !p.IsIdle() {
					return domain.ErrInvalidState(fmt.Sprintf("player %d is %s", p.ID, p.State)).
						With("player_id", p.ID).With("state", string(p.State))
				}
				p.State = domain.StateInDuel
				if err := tx.Players().Update(ctx, p); err != nil {
					return fmt.Errorf("enter duel: %w", err)
				}
			}
			res = Duel(s.combatant(c), s.combatant(o), s.rand)
			m = &domain.PvPMatch{
				ID:           uuid.New(),
				ChallengerID: challengerID,
				OpponentID:   opponentID,
				WinnerID:     res.WinnerID,
				Rounds:       res.Rounds,
				ChallengerHP: res.ChallengerHP,
				OpponentHP:   res.OpponentHP,
				CreatedAt:    s.now(),
			}
			return s.settle.Settle(ctx, tx, m)
		})
	}, challengerID, opponentID)
	if err != nil {
		return nil, err
	}
	s.economy.Invalidate(ctx, challengerID, opponentID)
	s.logger.Info("duel finished", "match_id", m.ID, "challenger_id", challengerID, "opponent_id", opponentID,
		"rounds", m.Rounds, "draw", m.Draw(), "rating_delta", m.RatingDelta)
	if s.notify != nil {
		s.notify.PublishToPlayer(challengerID, "pvp.match", m)
		s.notify.PublishToPlayer(opponentID, "pvp.match", m)
	}
	return m, nil
}

// History returns a player's recorded duels, newest first.
func (s *Service) History(ctx context.Context, playerID int64, limit int) ([]*domain.PvPMatch, error) {
	var out []*domain.PvPMatch
	err := s.store.Read(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.PvP().ListByPlayer(ctx, playerID, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pvp history: %w", err)
	}
	return out, nil
}

func (s *Service) loadPlayer(ctx context.Context, id int64) (*domain.Player, error) {
	var p *domain.Player
	err := s.store.Read(ctx, func(tx repository.Tx) error {
		var err error
		p, err = tx.Players().Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get player: %w", err)
	}
	if p == nil {
		return nil, domain.ErrNotFound("player", fmt.Sprint(id))
	}
	return p, nil
}

// Enqueue places an idle player in the rated queue.
func (s *Service) Enqueue(ctx context.Context, playerID int64) (*domain.QueueTicket, error) {
	p, err := s.loadPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if !p.IsIdle() {
		return nil, domain.ErrInvalidState(fmt.Sprintf("player %d is %s", playerID, p.State)).With("state", string(p.State))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.expireLocked(now)
	if id, ok := s.byPlayer[playerID]; ok {
		return nil, domain.ErrConflict("player is already queued").With("ticket_id", id.String())
	}
	t := &domain.QueueTicket{
		ID:         uuid.New(),
		PlayerID:   playerID,
		Rating:     p.PvP.Rating,
		Status:     domain.TicketQueued,
		EnqueuedAt: now,
		ExpiresAt:  now.Add(s.queueTimeout),
	}
	s.tickets[t.ID] = t
	s.byPlayer[playerID] = t.ID
	s.logger.Info("player queued", "player_id", playerID, "ticket_id", t.ID, "rating", t.Rating)
	return copyTicket(t), nil
}

// Cancel withdraws a queued ticket. Only its owner may cancel it.
func (s *Service) Cancel(_ context.Context, ticketID uuid.UUID, playerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(s.now())
	t, ok := s.tickets[ticketID]
	if !ok {
		return domain.ErrNotFound("ticket", ticketID.String())
	}
	if t.PlayerID != playerID {
		return domain.ErrForbidden("ticket belongs to another player")
	}
	switch t.Status {
	case domain.TicketQueued:
	case domain.TicketExpired:
		return domain.ErrExpired("ticket expired").With("ticket_id", ticketID.String())
	default:
		return domain.ErrInvalidState(fmt.Sprintf("ticket is %s", t.Status)).With("status", string(t.Status))
	}
	t.Status = domain.TicketCancelled
	delete(s.byPlayer, playerID)
	return nil
}

// Status returns the ticket. An expired ticket reports TicketExpired.
func (s *Service) Status(_ context.Context, ticketID uuid.UUID) (*domain.QueueTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(s.now())
	t, ok := s.tickets[ticketID]
	if !ok {
		return nil, domain.ErrNotFound("ticket", ticketID.String())
	}
	return copyTicket(t), nil
}

// expireLocked moves timed-out tickets to expired and forgets old finished ones.
func (s *Service) expireLocked(now time.Time) {
	for id, t := range s.tickets {
		switch {
		case t.Status == domain.TicketQueued && !now.Before(t.ExpiresAt):
			t.Status = domain.TicketExpired
			delete(s.byPlayer, t.PlayerID)
		case t.Status != domain.TicketQueued && now.Sub(t.ExpiresAt) > s.queueTimeout:
			delete(s.tickets, id)
		}
	}
}

// MatchPending pairs queued players by closest rating and duels each pair.
// Players no longer idle are dropped from the queue. Passes never overlap, and a
// ticket cancelled while a pass runs is never dueled.
func (s *Service) MatchPending(ctx context.Context) (out []Pairing, err error) {
	ctx, span := tracer.Start(ctx, "pvp.MatchPending")
	defer func() { infra.EndSpan(span, err) }()

	s.matching.Lock()
	defer s.matching.Unlock()

	s.mu.Lock()
	s.expireLocked(s.now())
	var queued []*domain.QueueTicket
	for _, t := range s.tickets {
		if t.Status == domain.TicketQueued {
			queued = append(queued, t)
		}
	}
	s.mu.Unlock()

	var eligible []*domain.QueueTicket
	for _, t := range queued {
		p, err := s.loadPlayer(ctx, t.PlayerID)
		if err == nil && p.IsIdle() {
			eligible = append(eligible, t)
			continue
		}
		s.drop(t, "player not idle")
	}

	pairs := s.claim(pairByRating(eligible))
	span.SetAttributes(attribute.Int("queued", len(queued)), attribute.Int("pairs", len(pairs)))

	for _, pair := range pairs {
		p := Pairing{Tickets: [2]uuid.UUID{pair[0].ID, pair[1].ID}}
		m, err := s.Duel(ctx, pair[0].PlayerID, pair[1].PlayerID)
		if err != nil {
			s.logger.Warn("queued duel failed", "challenger_id", pair[0].PlayerID, "opponent_id", pair[1].PlayerID, "error", err)
			s.drop(pair[0], "duel failed")
			s.drop(pair[1], "duel failed")
			continue
		}
		s.mu.Lock()
		pair[0].MatchID, pair[1].MatchID = &m.ID, &m.ID
		s.mu.Unlock()
		p.Match = m
		out = append(out, p)
	}
	return out, nil
}

// claim marks both tickets of each pair matched. Pairs where either ticket left
// the queue since the snapshot are skipped.
func (s *Service) claim(pairs [][2]*domain.QueueTicket) [][2]*domain.QueueTicket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(s.now())
	claimed := pairs[:0]
	for _, pair := range pairs {
		if pair[0].Status != domain.TicketQueued || pair[1].Status != domain.TicketQueued {
			continue
		}
		for _, t := range pair {
			t.Status = domain.TicketMatched
			delete(s.byPlayer, t.PlayerID)
		}
		claimed = append(claimed, pair)
	}
	return claimed
}

// drop removes a queued or matched ticket. Cancelled and expired tickets keep
// their status.
func (s *Service) drop(t *domain.QueueTicket, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Status != domain.TicketQueued && t.Status != domain.TicketMatched {
		return
	}
	t.Status = domain.TicketDropped
	if s.byPlayer[t.PlayerID] == t.ID {
		delete(s.byPlayer, t.PlayerID)
	}
	s.logger.Info("ticket dropped", "ticket_id", t.ID, "player_id", t.PlayerID, "reason", reason)
}

// pairByRating repeatedly matches the two tickets with the smallest rating gap.
// Equal gaps go to the pair that has waited longest.
func pairByRating(tickets []*domain.QueueTicket) [][2]*domain.QueueTicket {
	pool := slices.Clone(tickets)
	slices.SortFunc(pool, func(a, b *domain.QueueTicket) int {
		return cmp.Or(cmp.Compare(a.Rating, b.Rating), a.EnqueuedAt.Compare(b.EnqueuedAt))
	})
	var pairs [][2]*domain.QueueTicket
	for len(pool) >= 2 {
		best := 0
		for i := 1; i < len(pool)-1; i++ {
			gap, bestGap := pool[i+1].Rating-pool[i].Rating, pool[best+1].Rating-pool[best].Rating
			if gap < bestGap || gap == bestGap && waited(pool[i], pool[i+1]).Before(waited(pool[best], pool[best+1])) {
				best = i
			}
		}
		pairs = append(pairs, [2]*domain.QueueTicket{pool[best], pool[best+1]})
		pool = slices.Delete(pool, best, best+2)
	}
	return pairs
}

func waited(a, b *domain.QueueTicket) time.Time {
	if a.EnqueuedAt.Before(b.EnqueuedAt) {
		return a.EnqueuedAt
	}
	return b.EnqueuedAt
}

// Run matches the queue on interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	s.logger.Info("matchmaker started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("matchmaker stopped")
			return nil
		case <-ticker.C:
			if _, err := s.MatchPending(ctx); err != nil {
				s.logger.Error("matchmaking round failed", "error", err)
			}
		}
	}
}

func copyTicket(t *domain.QueueTicket) *domain.QueueTicket {
	out := *t
	if t.MatchID != nil {
		id := *t.MatchID
		out.MatchID = &id
	}
	return &out
}
