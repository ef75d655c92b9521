package raid

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
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/attaboy/tower/internal/raid")

const (
	inboxSize     = 64
	finishedTTL   = 10 * time.Minute
	settleTimeout = 10 * time.Second
	tickParallel  = 8
)

// Content is the slice of the catalog raids need.
type Content interface {
	RaidBoss(id string) (domain.RaidBoss, bool)
	Weapon(id string) (domain.Weapon, bool)
	TalentBonus(p *domain.Player, weapon string) domain.TalentBonus
}

// Broadcaster fans raid events out to live subscribers.
type Broadcaster interface {
	Publish(room, event string, data any)
}

// Room is the broadcast room of a raid.
func Room(id uuid.UUID) string { return "raid:" + id.String() }

// CreateParams opens a raid. The leader joins with Role (dps when empty).
type CreateParams struct {
	LeaderID   int64                 `json:"leader_id"`
	BossID     string                `json:"boss_id"`
	Difficulty domain.RaidDifficulty `json:"difficulty"`
	Role       domain.RaidRole       `json:"role"`
}

type request struct {
	ctx  context.Context
	fn   func(ctx context.Context, a *actor) error
	done chan error
}

// actor owns one raid. Only its goroutine touches state, src and the payout.
type actor struct {
	id     uuid.UUID
	inbox  chan request
	quit   chan struct{}
	state  *domain.RaidState
	src    rng.Source
	rolled bool
	gold   map[int64]int64
}

type finished struct {
	state *domain.RaidState
	at    time.Time
}

// Service is the raid coordinator. Requests for one raid are applied in receipt
// order by that raid's goroutine.
type Service struct {
	store       repository.Store
	economy     *ledger.Service
	locks       *guard.PlayerLocks
	content     Content
	rand        *rng.Service
	settle      *settlement.RaidSettlement
	hub         Broadcaster
	composition domain.RaidComposition
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	raids    map[uuid.UUID]*actor
	finished map[uuid.UUID]finished
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewService creates the raid coordinator. hub may be nil.
func NewService(store repository.Store, economy *ledger.Service, locks *guard.PlayerLocks, content Content, rand *rng.Service, hub Broadcaster, composition domain.RaidComposition, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		economy:     economy,
		locks:       locks,
		content:     content,
		rand:        rand,
		settle:      settlement.NewRaidSettlement(economy.Engine()),
		hub:         hub,
		composition: composition,
		logger:      logger,
		now:         time.Now,
		raids:       make(map[uuid.UUID]*actor),
		finished:    make(map[uuid.UUID]finished),
		stop:        make(chan struct{}),
	}
}

func (s *Service) publish(id uuid.UUID, event string, data any) {
	if s.hub != nil {
		s.hub.Publish(Room(id), event, data)
	}
}

// Create opens a recruiting raid with the leader as its first member.
func (s *Service) Create(ctx context.Context, params CreateParams) (st *domain.RaidState, err error) {
	ctx, span := tracer.Start(ctx, "raid.Create", trace.WithAttributes(
		attribute.Int64("player_id", params.LeaderID),
		attribute.String("boss_id", params.BossID),
	))
	defer func() { infra.EndSpan(span, err) }()

	boss, ok := s.content.RaidBoss(params.BossID)
	if !ok {
		return nil, domain.ErrNotFound("raid boss", params.BossID)
	}
	if params.Role == "" {
		params.Role = domain.RoleDPS
	}
	if !params.Role.Valid() {
		return nil, domain.ErrValidation("unknown role: " + string(params.Role))
	}
	st, err = NewRaid(uuid.New(), params.LeaderID, boss, params.Difficulty, s.now())
	if err != nil {
		return nil, err
	}
	leader, err := s.enlist(ctx, params.LeaderID, params.Role)
	if err != nil {
		return nil, err
	}
	st.Members = append(st.Members, leader)
	snapshot := st.Clone()

	a := &actor{
		id:    st.ID,
		inbox: make(chan request, inboxSize),
		quit:  make(chan struct{}),
		state: st,
		src:   s.rand.Fork(),
	}
	s.mu.Lock()
	s.raids[a.id] = a
	s.mu.Unlock()
	s.wg.Add(1)
	go s.run(a)

	s.logger.Info("raid created", "raid_id", a.id, "boss", boss.ID, "difficulty", params.Difficulty, "leader_id", params.LeaderID)
	s.publish(a.id, "raid.created", snapshot)
	return snapshot, nil
}

func (s *Service) run(a *actor) {
	defer s.wg.Done()
	defer close(a.quit)
	for {
		select {
		case <-s.stop:
			return
		case req := <-a.inbox:
			err := req.fn(req.ctx, a)
			exit := s.afterRequest(req.ctx, a)
			req.done <- err
			if exit {
				return
			}
		}
	}
}

// afterRequest settles a finished raid or drops an empty recruiting one. It
// reports whether the actor should exit.
func (s *Service) afterRequest(ctx context.Context, a *actor) bool {
	st := a.state
	switch {
	case st.Status.Terminal():
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
		defer cancel()
		if err := s.settleRaid(ctx, a); err != nil {
			// the raid stays active; the next tick retries
			s.logger.Error("raid settlement failed", "raid_id", a.id, "error", err)
			return false
		}
	case st.Status == domain.RaidRecruiting && len(st.Members) == 0:
		s.logger.Info("raid disbanded before start", "raid_id", a.id)
	default:
		return false
	}
	s.retire(a)
	return true
}

func (s *Service) retire(a *actor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.raids, a.id)
	now := s.now()
	s.finished[a.id] = finished{state: a.state.Clone(), at: now}
	for id, f := range s.finished {
		if now.Sub(f.at) > finishedTTL {
			delete(s.finished, id)
		}
	}
}

// settleRaid rolls the payout once and settles it. Settlement is idempotent by raid
// id, so a retry after a failed commit is safe.
func (s *Service) settleRaid(ctx context.Context, a *actor) (err error) {
	ctx, span := tracer.Start(ctx, "raid.Settle", trace.WithAttributes(
		attribute.String("raid_id", a.id.String()),
		attribute.String("status", string(a.state.Status)),
	))
	defer func() { infra.EndSpan(span, err) }()

	st := a.state
	if !a.rolled {
		if st.Status == domain.RaidCompleted {
			st.Loot = RollLoot(st, a.src)
			a.gold = RollGold(st, a.src)
		}
		a.rolled = true
	}
	rec := Record(st)
	ids := rec.MemberIDs
	var archived bool
	err = s.locks.With(ctx, func() error {
		return s.store.InTx(ctx, func(tx repository.Tx) error {
			var err error
			archived, err = s.settle.Settle(ctx, tx, settlement.RaidPayout{Record: rec, Gold: a.gold, Title: st.Boss.Title})
			return err
		})
	}, ids...)
	if err != nil {
		return err
	}
	s.economy.Invalidate(ctx, ids...)
	s.logger.Info("raid finished", "raid_id", a.id, "status", st.Status, "members", len(ids), "loot", len(st.Loot), "archived", archived)
	s.publish(a.id, "raid.finished", rec)
	return nil
}

func (s *Service) lookup(id uuid.UUID) (*actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.raids[id]; ok {
		return a, nil
	}
	return nil, s.goneLocked(id)
}

func (s *Service) goneLocked(id uuid.UUID) error {
	if f, ok := s.finished[id]; ok {
		return domain.ErrInvalidState(fmt.Sprintf("raid %s has %s", id, f.state.Status)).With("status", string(f.state.Status))
	}
	return domain.ErrNotFound("raid", id.String())
}

// do queues fn on the raid's goroutine and waits for it to run.
func (s *Service) do(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, a *actor) error) error {
	a, err := s.lookup(id)
	if err != nil {
		return err
	}
	req := request{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case a.inbox <- req:
	case <-a.quit:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.goneLocked(id)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-a.quit:
		select {
		case err := <-req.done:
			return err
		default:
			return domain.ErrInvalidState("raid coordinator stopped")
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enlist moves an idle player into the raid state and snapshots their profile.
func (s *Service) enlist(ctx context.Context, playerID int64, role domain.RaidRole) (*domain.RaidMember, error) {
	var m *domain.RaidMember
	err := s.locks.With(ctx, func() error {
		return s.store.InTx(ctx, func(tx repository.Tx) error {
			locked, err := s.economy.Engine().LockPlayers(ctx, tx, playerID)
			if err != nil {
				return err
			}
			p := locked[playerID]
			if !p.IsIdle() {
				return domain.ErrInvalidState(fmt.Sprintf("player %d is %s", playerID, p.State)).With("state", string(p.State))
			}
			var weapon *domain.Weapon
			if w, ok := s.content.Weapon(p.CurrentWeapon); ok {
				weapon = &w
			}
			m = NewMember(p, weapon, s.content.TalentBonus(p, p.CurrentWeapon), role, s.now())
			p.State = domain.StateInRaid
			p.UpdatedAt = s.now()
			return tx.Players().Update(ctx, p)
		})
	}, playerID)
	return m, err
}

// release returns a departing member to idle.
func (s *Service) release(ctx context.Context, playerID int64) error {
	return s.locks.With(ctx, func() error {
		return s.store.InTx(ctx, func(tx repository.Tx) error {
			p, err := tx.Players().GetForUpdate(ctx, playerID)
			if err != nil {
				return fmt.Errorf("lock player: %w", err)
			}
			if p == nil || p.State != domain.StateInRaid {
				return nil
			}
			p.State = domain.StateIdle
			p.UpdatedAt = s.now()
			return tx.Players().Update(ctx, p)
		})
	}, playerID)
}

// Join adds a player to a recruiting raid. It returns false when the player is
// already on the roster.
func (s *Service) Join(ctx context.Context, raidID uuid.UUID, playerID int64, role domain.RaidRole) (bool, error) {
	if !role.Valid() {
		return false, domain.ErrValidation("unknown role: " + string(role))
	}
	var joined bool
	err := s.do(ctx, raidID, func(ctx context.Context, a *actor) error {
		st := a.state
		if _, ok := st.Member(playerID); ok {
			return nil
		}
		if st.Status != domain.RaidRecruiting {
			return domain.ErrInvalidState(fmt.Sprintf("raid is %s", st.Status)).With("status", string(st.Status))
		}
		m, err := s.enlist(ctx, playerID, role)
		if err != nil {
			return err
		}
		st.Members = append(st.Members, m)
		joined = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if joined {
		s.publish(raidID, "raid.member_joined", map[string]any{"player_id": playerID, "role": role})
	}
	return joined, nil
}

// SetReady flips a member's ready flag while recruiting.
func (s *Service) SetReady(ctx context.Context, raidID uuid.UUID, playerID int64, ready bool) error {
	err := s.do(ctx, raidID, func(_ context.Context, a *actor) error {
		st := a.state
		if st.Status != domain.RaidRecruiting {
			return domain.ErrInvalidState(fmt.Sprintf("raid is %s", st.Status)).With("status", string(st.Status))
		}
		m, ok := st.Member(playerID)
		if !ok {
			return domain.ErrNotFound("raid member", fmt.Sprint(playerID))
		}
		m.Ready = ready
		return nil
	})
	if err == nil {
		s.publish(raidID, "raid.member_ready", map[string]any{"player_id": playerID, "ready": ready})
	}
	return err
}

// Leave removes a member at any point before the raid ends. Leadership passes to
// the earliest remaining member; an in-progress raid with nobody left standing fails.
func (s *Service) Leave(ctx context.Context, raidID uuid.UUID, playerID int64) error {
	err := s.do(ctx, raidID, func(ctx context.Context, a *actor) error {
		st := a.state
		idx := -1
		for i, m := range st.Members {
			if m.PlayerID == playerID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return domain.ErrNotFound("raid member", fmt.Sprint(playerID))
		}
		if err := s.release(ctx, playerID); err != nil {
			return err
		}
		st.Members = append(st.Members[:idx:idx], st.Members[idx+1:]...)
		if st.LeaderID == playerID && len(st.Members) > 0 {
			st.LeaderID = st.Members[0].PlayerID
		}
		if st.Status == domain.RaidInProgress && allDowned(st) {
			finish(st, domain.RaidFailed, s.now())
		}
		return nil
	})
	if err == nil {
		s.publish(raidID, "raid.member_left", map[string]any{"player_id": playerID})
	}
	return err
}

// Start begins the encounter. Only the leader may start; it returns false with no
// state change while the ready roster is below the required composition.
func (s *Service) Start(ctx context.Context, raidID uuid.UUID, requesterID int64) (started bool, err error) {
	ctx, span := tracer.Start(ctx, "raid.Start", trace.WithAttributes(attribute.String("raid_id", raidID.String())))
	defer func() { infra.EndSpan(span, err) }()

	err = s.do(ctx, raidID, func(_ context.Context, a *actor) error {
		st := a.state
		if st.LeaderID != requesterID {
			return domain.ErrForbidden("only the raid leader can start the raid")
		}
		if st.Status != domain.RaidRecruiting {
			return domain.ErrInvalidState(fmt.Sprintf("raid is %s", st.Status)).With("status", string(st.Status))
		}
		if !CanStart(st, s.composition) {
			return nil
		}
		now := s.now()
		st.Status = domain.RaidInProgress
		st.StartedAt = &now
		started = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if started {
		s.logger.Info("raid started", "raid_id", raidID)
		s.publish(raidID, "raid.started", map[string]any{"started_at": s.now()})
	}
	return started, nil
}

// Attack queues one member hit on the boss.
func (s *Service) Attack(ctx context.Context, raidID uuid.UUID, playerID int64) (AttackResult, error) {
	var res AttackResult
	err := s.do(ctx, raidID, func(_ context.Context, a *actor) error {
		var err error
		res, err = Attack(a.state, playerID, a.src, s.now())
		return err
	})
	if err != nil {
		return AttackResult{}, err
	}
	s.publish(raidID, "raid.attack", map[string]any{"player_id": playerID, "result": res})
	return res, nil
}

// Heal queues one heal from a healer onto a member.
func (s *Service) Heal(ctx context.Context, raidID uuid.UUID, healerID, targetID int64) (HealResult, error) {
	var res HealResult
	err := s.do(ctx, raidID, func(_ context.Context, a *actor) error {
		var err error
		res, err = Heal(a.state, healerID, targetID, s.now())
		return err
	})
	if err != nil {
		return HealResult{}, err
	}
	s.publish(raidID, "raid.heal", map[string]any{"healer_id": healerID, "target_id": targetID, "result": res})
	return res, nil
}

// Tick advances one raid. seq must grow monotonically per raid; a repeated or
// older seq is a no-op. seq <= 0 takes the next one.
func (s *Service) Tick(ctx context.Context, raidID uuid.UUID, seq int64, now time.Time) (report TickReport, err error) {
	ctx, span := tracer.Start(ctx, "raid.Tick", trace.WithAttributes(
		attribute.String("raid_id", raidID.String()),
		attribute.Int64("seq", seq),
	))
	defer func() { infra.EndSpan(span, err) }()

	err = s.do(ctx, raidID, func(_ context.Context, a *actor) error {
		if seq <= 0 {
			seq = a.state.TickSeq + 1
		}
		report = Tick(a.state, seq, now, a.src)
		return nil
	})
	if err != nil {
		return TickReport{}, err
	}
	if report.Applied {
		s.publish(raidID, "raid.tick", report)
	}
	return report, nil
}

// TickAll ticks every active raid concurrently and returns how many were ticked.
// A failing raid is logged and does not stop the others.
func (s *Service) TickAll(ctx context.Context, now time.Time) (int, error) {
	ids := s.Active()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(tickParallel)
	var (
		mu     sync.Mutex
		ticked int
	)
	for _, id := range ids {
		g.Go(func() error {
			report, err := s.Tick(ctx, id, 0, now)
			if err != nil {
				if !domain.IsKind(err, domain.KindNotFound) && !domain.IsKind(err, domain.KindInvalidState) {
					s.logger.Warn("raid tick failed", "raid_id", id, "error", err)
				}
				return nil
			}
			if report.Applied {
				mu.Lock()
				ticked++
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()
	return ticked, err
}

// Run ticks every active raid on interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	s.logger.Info("raid ticker started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("raid ticker stopped")
			return nil
		case <-ticker.C:
			if _, err := s.TickAll(ctx, s.now()); err != nil {
				s.logger.Error("raid tick round failed", "error", err)
			}
		}
	}
}

// Status returns a snapshot of an active raid, or its final state shortly after it ends.
func (s *Service) Status(ctx context.Context, raidID uuid.UUID) (*domain.RaidState, error) {
	var snap *domain.RaidState
	err := s.do(ctx, raidID, func(_ context.Context, a *actor) error {
		snap = a.state.Clone()
		return nil
	})
	if err == nil {
		return snap, nil
	}
	s.mu.Lock()
	f, ok := s.finished[raidID]
	s.mu.Unlock()
	if ok {
		return f.state.Clone(), nil
	}
	return nil, err
}

// Active lists the ids of raids that have not been archived.
func (s *Service) Active() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(s.raids))
	for id := range s.raids {
		ids = append(ids, id)
	}
	return ids
}

// List returns snapshots of every active raid.
func (s *Service) List(ctx context.Context) ([]*domain.RaidState, error) {
	var out []*domain.RaidState
	for _, id := range s.Active() {
		st, err := s.Status(ctx, id)
		if err != nil {
			if domain.IsKind(err, domain.KindNotFound) {
				continue
			}
			return nil, err
		}
		if !st.Status.Terminal() {
			out = append(out, st)
		}
	}
	return out, nil
}

// Archived returns the history row of a finished raid.
func (s *Service) Archived(ctx context.Context, raidID uuid.UUID) (*domain.RaidRecord, error) {
	var rec *domain.RaidRecord
	err := s.store.Read(ctx, func(tx repository.Tx) error {
		var err error
		rec, err = tx.Raids().Get(ctx, raidID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get raid: %w", err)
	}
	if rec == nil {
		return nil, domain.ErrNotFound("raid", raidID.String())
	}
	return rec, nil
}

// History returns the archived raids a player took part in, newest first.
func (s *Service) History(ctx context.Context, playerID int64, limit int) ([]*domain.RaidRecord, error) {
	var out []*domain.RaidRecord
	err := s.store.Read(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.Raids().ListByPlayer(ctx, playerID, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("raid history: %w", err)
	}
	return out, nil
}

// Shutdown stops every raid goroutine. Members stay in the raid state until the
// next startup recovery.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
