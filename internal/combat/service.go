package combat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

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

var tracer = otel.Tracer("github.com/attaboy/tower/internal/combat")

// Content is the slice of the catalog combat needs.
type Content interface {
	Monster(floor int, src rng.Source) (domain.OpponentTemplate, error)
	FloorBoss(floor int) (domain.OpponentTemplate, error)
	Opponent(id string) (domain.OpponentTemplate, bool)
	Weapon(id string) (domain.Weapon, bool)
	Item(id string) (domain.Item, bool)
	TalentBonus(p *domain.Player, weapon string) domain.TalentBonus
}

// BossKeyItem is consumed when a floor boss fight starts.
const BossKeyItem = "boss_key"

const resolvedTTL = 10 * time.Minute

// OpponentSpec selects what to fight. Empty means a random monster of the
// player's floor; Boss picks the floor boss; OpponentID names a monster directly.
type OpponentSpec struct {
	Boss       bool   `json:"boss,omitempty"`
	OpponentID string `json:"opponent_id,omitempty"`
}

type active struct {
	session *Session
	src     *rng.Local
}

// Service owns the active PvE sessions. Every call that touches a session holds
// that player's lock for its whole duration.
type Service struct {
	store   repository.Store
	economy *ledger.Service
	locks   *guard.PlayerLocks
	content Content
	rand    *rng.Service
	settle  *settlement.CombatSettlement
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*active
	byPlayer map[int64]uuid.UUID
	resolved map[uuid.UUID]time.Time
}

// NewService creates the combat service.
func NewService(store repository.Store, economy *ledger.Service, locks *guard.PlayerLocks, content Content, rand *rng.Service, permadeath bool, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		economy:  economy,
		locks:    locks,
		content:  content,
		rand:     rand,
		settle:   settlement.NewCombatSettlement(economy.Engine(), permadeath),
		logger:   logger,
		now:      time.Now,
		sessions: make(map[uuid.UUID]*active),
		byPlayer: make(map[int64]uuid.UUID),
		resolved: make(map[uuid.UUID]time.Time),
	}
}

// Start opens an encounter. The player must be idle; boss fights also need the
// boss key and the boss's minimum level.
func (s *Service) Start(ctx context.Context, playerID int64, spec OpponentSpec) (sess *Session, err error) {
	ctx, span := tracer.Start(ctx, "combat.Start", trace.WithAttributes(
		attribute.Int64("player_id", playerID),
		attribute.Bool("boss", spec.Boss),
	))
	defer func() { infra.EndSpan(span, err) }()

	src := s.rand.Fork()
	err = s.locks.With(ctx, func() error {
		return s.store.InTx(ctx, func(tx repository.Tx) error {
			locked, err := s.economy.Engine().LockPlayers(ctx, tx, playerID)
			if err != nil {
				return err
			}
			p := locked[playerID]
			if !p.IsIdle() {
				return domain.ErrAlreadyInCombat(playerID, p.State)
			}
			if p.HP <= 0 {
				return domain.ErrInvalidState("player has no health left")
			}

			tmpl, err := s.pickOpponent(p, spec, src)
			if err != nil {
				return err
			}
			var weapon *domain.Weapon
			if w, ok := s.content.Weapon(p.CurrentWeapon); ok {
				weapon = &w
			}

			sess = &Session{
				ID:        uuid.New(),
				PlayerID:  p.ID,
				Floor:     p.Floor,
				Player:    NewCombatant(p, weapon, s.content.TalentBonus(p, p.CurrentWeapon)),
				Opponent:  NewOpponent(tmpl, p.Floor),
				Turn:      1,
				Status:    StatusActive,
				StartedAt: s.now(),
			}
			p.State = domain.StateInCombat
			return tx.Players().Update(ctx, p)
		})
	}, playerID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.ID] = &active{session: sess, src: src}
	s.byPlayer[playerID] = sess.ID
	s.mu.Unlock()

	s.logger.Info("combat started", "player_id", playerID, "session_id", sess.ID, "opponent", sess.Opponent.ID)
	return sess.Clone(), nil
}

func (s *Service) pickOpponent(p *domain.Player, spec OpponentSpec, src rng.Source) (domain.OpponentTemplate, error) {
	switch {
	case spec.Boss:
		boss, err := s.content.FloorBoss(p.Floor)
		if err != nil {
			return boss, err
		}
		if p.Level < boss.MinLevel {
			return boss, domain.ErrInvalidState(fmt.Sprintf("level %d required for %s", boss.MinLevel, boss.Name)).
				With("min_level", boss.MinLevel).With("level", p.Level)
		}
		if !p.Inventory.Remove(BossKeyItem, 1) {
			return boss, domain.ErrInsufficientStock(BossKeyItem, 1, p.Inventory[BossKeyItem])
		}
		return boss, nil
	case spec.OpponentID != "":
		t, ok := s.content.Opponent(spec.OpponentID)
		if !ok {
			return t, domain.ErrNotFound("opponent", spec.OpponentID)
		}
		if t.Kind == domain.OpponentBoss {
			return t, domain.ErrValidation("bosses are fought with boss=true")
		}
		if t.Floor > p.Floor {
			return t, domain.ErrInvalidState(fmt.Sprintf("%s lives on floor %d", t.Name, t.Floor)).With("floor", t.Floor)
		}
		return t, nil
	}
	return s.content.Monster(p.Floor, src)
}

// Act applies one player action. Items are taken from the inventory in the same
// transaction that records the turn; a terminal turn is settled before returning.
func (s *Service) Act(ctx context.Context, sessionID uuid.UUID, action Action) (res *TurnResult, err error) {
	ctx, span := tracer.Start(ctx, "combat.Act", trace.WithAttributes(
		attribute.String("session_id", sessionID.String()),
		attribute.String("action", string(action.Kind)),
	))
	defer func() { infra.EndSpan(span, err) }()

	entry, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	playerID := entry.session.PlayerID

	err = s.locks.With(ctx, func() error {
		// another call may have finished the session while we waited
		entry, err = s.lookup(sessionID)
		if err != nil {
			return err
		}
		if action.Kind == ActionUseItem {
			item, ok := s.content.Item(action.ItemID)
			if !ok {
				return domain.ErrInvalidAction("unknown item: " + action.ItemID).With("item_id", action.ItemID)
			}
			action.Item = &item
		}

		// draws advance a copy so a failed commit replays the same turn
		src := entry.src.Clone()
		next, turn, err := Resolve(entry.session, action, src)
		if err != nil {
			return err
		}

		if action.Kind == ActionUseItem || next.Status.Terminal() {
			err = s.store.InTx(ctx, func(tx repository.Tx) error {
				if action.Kind == ActionUseItem {
					if err := consumeItem(ctx, tx, playerID, action.ItemID); err != nil {
						return err
					}
				}
				if !next.Status.Terminal() {
					return nil
				}
				return s.settleTurn(ctx, tx, next, turn)
			})
			if err != nil {
				return err
			}
		}

		s.commit(next, src)
		res = turn
		return nil
	}, playerID)
	if err != nil {
		return nil, err
	}

	if res.Status.Terminal() {
		s.economy.Invalidate(ctx, playerID)
		s.logger.Info("combat resolved", "player_id", playerID, "session_id", sessionID, "status", res.Status, "turns", res.Turn)
	}
	return res, nil
}

func (s *Service) settleTurn(ctx context.Context, tx repository.Tx, next *Session, turn *TurnResult) error {
	resolution := settlement.CombatResolution{
		SessionID:   next.ID,
		PlayerID:    next.PlayerID,
		Opponent:    next.Opponent.OpponentTemplate,
		Outcome:     next.Status.Outcome(),
		PlayerHP:    next.Player.HP,
		PenaltyRoll: next.PenaltyRoll,
	}
	if next.Reward != nil {
		resolution.Exp = next.Reward.Exp
		resolution.Gold = next.Reward.Gold
		resolution.Loot = next.Reward.Loot
	}
	settled, err := s.settle.Settle(ctx, tx, resolution)
	if err != nil {
		return err
	}
	turn.GoldLost = settled.GoldLost
	turn.Permadeath = settled.Permadeath
	return nil
}

func consumeItem(ctx context.Context, tx repository.Tx, playerID int64, itemID string) error {
	p, err := tx.Players().GetForUpdate(ctx, playerID)
	if err != nil {
		return fmt.Errorf("consume item: %w", err)
	}
	if p == nil {
		return domain.ErrNotFound("player", fmt.Sprint(playerID))
	}
	if !p.Inventory.Remove(itemID, 1) {
		return domain.ErrInsufficientStock(itemID, 1, p.Inventory[itemID])
	}
	return tx.Players().Update(ctx, p)
}

func (s *Service) lookup(id uuid.UUID) (*active, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.sessions[id]; ok {
		return a, nil
	}
	if _, ok := s.resolved[id]; ok {
		return nil, domain.ErrEncounterResolved(id.String())
	}
	return nil, domain.ErrNotFound("combat session", id.String())
}

func (s *Service) commit(next *Session, src *rng.Local) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !next.Status.Terminal() {
		a := s.sessions[next.ID]
		a.session, a.src = next, src
		return
	}
	delete(s.sessions, next.ID)
	delete(s.byPlayer, next.PlayerID)
	now := s.now()
	s.resolved[next.ID] = now
	for id, at := range s.resolved {
		if now.Sub(at) > resolvedTTL {
			delete(s.resolved, id)
		}
	}
}

// Get returns a snapshot of an active session.
func (s *Service) Get(sessionID uuid.UUID) (*Session, error) {
	a, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return a.session.Clone(), nil
}

// ActiveFor returns the player's open session, if any.
func (s *Service) ActiveFor(playerID int64) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPlayer[playerID]
	if !ok {
		return nil, false
	}
	return s.sessions[id].session.Clone(), true
}

// ActiveCount reports how many encounters are in flight.
func (s *Service) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
