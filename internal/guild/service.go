// Package guild manages guild membership, ranks, the shared bank and guild levels.
package guild

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/guard"
	"github.com/attaboy/tower/internal/infra"
	"github.com/attaboy/tower/internal/ledger"
	"github.com/attaboy/tower/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/attaboy/tower/internal/guild")

// Service is the guild state machine. The guild row is locked for the duration of
// every mutation; players whose records change are also held under their
// per-player lock.
type Service struct {
	store        repository.Store
	economy      *ledger.Service
	locks        *guard.PlayerLocks
	creationCost int64
	logger       *slog.Logger
	now          func() time.Time
}

// NewService creates the guild service. creationCost is debited from the founder.
func NewService(store repository.Store, economy *ledger.Service, locks *guard.PlayerLocks, creationCost int64, logger *slog.Logger) *Service {
	return &Service{
		store:        store,
		economy:      economy,
		locks:        locks,
		creationCost: creationCost,
		logger:       logger,
		now:          time.Now,
	}
}

// Create founds a guild. The founder becomes its only Leader and pays the creation cost.
func (s *Service) Create(ctx context.Context, founderID int64, name, tag string) (g *domain.Guild, err error) {
	ctx, span := tracer.Start(ctx, "guild.Create", trace.WithAttributes(attribute.Int64("player_id", founderID)))
	defer func() { infra.EndSpan(span, err) }()

	if err := domain.ValidateGuildName(name, tag); err != nil {
		return nil, err
	}
	name, tag = strings.TrimSpace(name), strings.TrimSpace(tag)

	err = s.locks.With(ctx, func() error {
		return s.store.InTx(ctx, func(tx repository.Tx) error {
			locked, err := s.economy.Engine().LockPlayers(ctx, tx, founderID)
			if err != nil {
				return err
			}
			founder := locked[founderID]
			if founder.GuildID != nil {
				return domain.ErrConflict(fmt.Sprintf("player %d already belongs to guild %d", founderID, *founder.GuildID))
			}
			taken, err := tx.Guilds().NameOrTagTaken(ctx, name, tag)
			if err != nil {
				return fmt.Errorf("check guild name: %w", err)
			}
			if taken {
				return domain.ErrNameOrTagTaken(name, tag)
			}

			now := s.now()
			g = &domain.Guild{
				Name:     name,
				Tag:      tag,
				Level:    1,
				LeaderID: founderID,
				Members: map[int64]*domain.GuildMember{
					founderID: {PlayerID: founderID, Rank: domain.RankLeader, JoinedAt: now},
				},
				Bank:      map[string]*domain.BankItem{},
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Guilds().Create(ctx, g); err != nil {
				return err
			}
			if s.creationCost > 0 {
				_, err = s.economy.Engine().Adjust(ctx, tx, domain.AdjustParams{
					PlayerID: founderID,
					Currency: domain.CurrencyGold,
					Delta:    -s.creationCost,
					Type:     domain.TxGuildCreate,
					Details:  map[string]any{"guild_id": g.ID, "name": name},
				})
				if err != nil {
					return err
				}
			}
			founder.GuildID = &g.ID
			founder.UpdatedAt = now
			if err := tx.Players().Update(ctx, founder); err != nil {
				return fmt.Errorf("update founder: %w", err)
			}
			return tx.Outbox().Insert(ctx, domain.NewGuildEvent(g.ID, domain.EventGuildCreated, map[string]any{
				"name": name, "tag": tag, "leader_id": founderID,
			}))
		})
	}, founderID)
	if err != nil {
		return nil, err
	}
	s.economy.Invalidate(ctx, founderID)
	s.logger.Info("guild created", "guild_id", g.ID, "name", g.Name, "leader_id", founderID)
	return g, nil
}

// Get loads a guild with its roster and bank.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Guild, error) {
	var g *domain.Guild
	err := s.store.Read(ctx, func(tx repository.Tx) error {
		var err error
		g, err = tx.Guilds().Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get guild: %w", err)
	}
	if g == nil {
		return nil, domain.ErrNotFound("guild", fmt.Sprint(id))
	}
	return g, nil
}

// List returns the top guilds by level then experience.
func (s *Service) List(ctx context.Context, limit int) ([]*domain.Guild, error) {
	var out []*domain.Guild
	err := s.store.Read(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.Guilds().List(ctx, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}
	return out, nil
}

// mutate locks the guild row (and the given players) for fn and saves the guild
// afterwards unless fn reports that nothing changed.
func (s *Service) mutate(ctx context.Context, guildID int64, playerIDs []int64, fn func(tx repository.Tx, g *domain.Guild) (bool, error)) (*domain.Guild, bool, error) {
	var (
		out     *domain.Guild
		changed bool
	)
	err := s.locks.With(ctx, func() error {
		return s.store.InTx(ctx, func(tx repository.Tx) error {
			g, err := tx.Guilds().GetForUpdate(ctx, guildID)
			if err != nil {
				return fmt.Errorf("lock guild: %w", err)
			}
			if g == nil {
				return domain.ErrNotFound("guild", fmt.Sprint(guildID))
			}
			changed, err = fn(tx, g)
			if err != nil {
				return err
			}
			out = g
			if !changed {
				return nil
			}
			g.UpdatedAt = s.now()
			return tx.Guilds().Save(ctx, g)
		})
	}, playerIDs...)
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}

func requireMember(g *domain.Guild, playerID int64) (*domain.GuildMember, error) {
	m, ok := g.Member(playerID)
	if !ok {
		return nil, domain.ErrNotFound(fmt.Sprintf("member of guild %d", g.ID), fmt.Sprint(playerID))
	}
	return m, nil
}

func requireRank(m *domain.GuildMember, min domain.GuildRank) error {
	if !m.Rank.AtLeast(min) {
		return domain.ErrForbidden(fmt.Sprintf("rank %s or above required", min)).
			With("rank", string(m.Rank)).With("required", string(min))
	}
	return nil
}

func memberEvent(g *domain.Guild, playerID int64, action string, rank domain.GuildRank) domain.OutboxDraft {
	return domain.NewGuildEvent(g.ID, domain.EventGuildMemberChanged, map[string]any{
		"player_id": playerID,
		"action":    action,
		"rank":      rank,
		"members":   len(g.Members),
	})
}

// AddMember enrols a player at rank (Recruit when empty). It returns false without
// changing anything when the player is already on the roster or the roster is full.
func (s *Service) AddMember(ctx context.Context, guildID, playerID int64, rank domain.GuildRank) (added bool, err error) {
	ctx, span := tracer.Start(ctx, "guild.AddMember", trace.WithAttributes(
		attribute.Int64("guild_id", guildID),
		attribute.Int64("player_id", playerID),
	))
	defer func() { infra.EndSpan(span, err) }()

	if rank == "" {
		rank = domain.RankRecruit
	}
	if !rank.Valid() {
		return false, domain.ErrValidation("unknown rank: " + string(rank))
	}
	if rank == domain.RankLeader {
		return false, domain.ErrValidation("leadership is only gained by transfer")
	}

	_, added, err = s.mutate(ctx, guildID, []int64{playerID}, func(tx repository.Tx, g *domain.Guild) (bool, error) {
		if _, ok := g.Member(playerID); ok {
			return false, nil
		}
		if len(g.Members) >= g.Capacity() {
			return false, nil
		}
		locked, err := s.economy.Engine().LockPlayers(ctx, tx, playerID)
		if err != nil {
			return false, err
		}
		p := locked[playerID]
		if p.GuildID != nil {
			return false, domain.ErrConflict(fmt.Sprintf("player %d already belongs to guild %d", playerID, *p.GuildID))
		}
		g.Members[playerID] = &domain.GuildMember{PlayerID: playerID, Rank: rank, JoinedAt: s.now()}
		p.GuildID = &g.ID
		p.UpdatedAt = s.now()
		if err := tx.Players().Update(ctx, p); err != nil {
			return false, fmt.Errorf("update member: %w", err)
		}
		return true, tx.Outbox().Insert(ctx, memberEvent(g, playerID, "joined", rank))
	})
	return added, err
}

// Promote moves target one rank up. Leadership never changes here; the actor must
// outrank the resulting rank.
func (s *Service) Promote(ctx context.Context, guildID, actorID, targetID int64) (*domain.GuildMember, error) {
	var out domain.GuildMember
	_, _, err := s.mutate(ctx, guildID, nil, func(tx repository.Tx, g *domain.Guild) (bool, error) {
		actor, err := requireMember(g, actorID)
		if err != nil {
			return false, err
		}
		target, err := requireMember(g, targetID)
		if err != nil {
			return false, err
		}
		next, ok := target.Rank.Next()
		if !ok || next == domain.RankLeader {
			return false, domain.ErrInvalidState(fmt.Sprintf("%s cannot be promoted; transfer leadership instead", target.Rank)).
				With("rank", string(target.Rank))
		}
		if actor.Rank.Level() <= next.Level() {
			return false, domain.ErrForbidden(fmt.Sprintf("%s cannot promote to %s", actor.Rank, next))
		}
		target.Rank = next
		out = *target
		return true, tx.Outbox().Insert(ctx, memberEvent(g, targetID, "promoted", next))
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Demote moves target one rank down. The Leader is only replaced by a transfer.
func (s *Service) Demote(ctx context.Context, guildID, actorID, targetID int64) (*domain.GuildMember, error) {
	var out domain.GuildMember
	_, _, err := s.mutate(ctx, guildID, nil, func(tx repository.Tx, g *domain.Guild) (bool, error) {
		actor, err := requireMember(g, actorID)
		if err != nil {
			return false, err
		}
		target, err := requireMember(g, targetID)
		if err != nil {
			return false, err
		}
		if target.Rank == domain.RankLeader {
			return false, domain.ErrInvalidState("the leader cannot be demoted; transfer leadership instead")
		}
		prev, ok := target.Rank.Prev()
		if !ok {
			return false, domain.ErrInvalidState(fmt.Sprintf("%s is the lowest rank", target.Rank)).
				With("rank", string(target.Rank))
		}
		if actor.Rank.Level() <= target.Rank.Level() {
			return false, domain.ErrForbidden(fmt.Sprintf("%s cannot demote %s", actor.Rank, target.Rank))
		}
		target.Rank = prev
		out = *target
		return true, tx.Outbox().Insert(ctx, memberEvent(g, targetID, "demoted", prev))
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// TransferLeadership hands the Leader rank to another member; the old leader
// becomes an Officer. Exactly one Leader exists before and after.
func (s *Service) TransferLeadership(ctx context.Context, guildID, leaderID, newLeaderID int64) (*domain.Guild, error) {
	g, _, err := s.mutate(ctx, guildID, nil, func(tx repository.Tx, g *domain.Guild) (bool, error) {
		leader, err := requireMember(g, leaderID)
		if err != nil {
			return false, err
		}
		if err := requireRank(leader, domain.RankLeader); err != nil {
			return false, err
		}
		if newLeaderID == leaderID {
			return false, domain.ErrValidation("already the leader")
		}
		next, err := requireMember(g, newLeaderID)
		if err != nil {
			return false, err
		}
		leader.Rank = domain.RankOfficer
		next.Rank = domain.RankLeader
		g.LeaderID = newLeaderID
		return true, repository.InsertEvents(ctx, tx,
			memberEvent(g, leaderID, "stepped_down", domain.RankOfficer),
			memberEvent(g, newLeaderID, "leader", domain.RankLeader),
		)
	})
	return g, err
}

// Leave removes the player from the roster. The Leader must transfer leadership
// or disband first.
func (s *Service) Leave(ctx context.Context, guildID, playerID int64) error {
	_, _, err := s.mutate(ctx, guildID, []int64{playerID}, func(tx repository.Tx, g *domain.Guild) (bool, error) {
		m, err := requireMember(g, playerID)
		if err != nil {
			return false, err
		}
		if m.Rank == domain.RankLeader {
			return false, domain.ErrInvalidState("the leader must transfer leadership or disband")
		}
		return true, s.removeMember(ctx, tx, g, playerID, "left")
	})
	return err
}

// Kick removes target. The actor must be at least an Officer and outrank target.
func (s *Service) Kick(ctx context.Context, guildID, actorID, targetID int64) error {
	_, _, err := s.mutate(ctx, guildID, []int64{targetID}, func(tx repository.Tx, g *domain.Guild) (bool, error) {
		actor, err := requireMember(g, actorID)
		if err != nil {
			return false, err
		}
		if err := requireRank(actor, domain.RankOfficer); err != nil {
			return false, err
		}
		target, err := requireMember(g, targetID)
		if err != nil {
			return false, err
		}
		if actor.Rank.Level() <= target.Rank.Level() {
			return false, domain.ErrForbidden(fmt.Sprintf("%s cannot kick %s", actor.Rank, target.Rank))
		}
		return true, s.removeMember(ctx, tx, g, targetID, "kicked")
	})
	return err
}

func (s *Service) removeMember(ctx context.Context, tx repository.Tx, g *domain.Guild, playerID int64, action string) error {
	rank := g.Members[playerID].Rank
	delete(g.Members, playerID)
	p, err := tx.Players().GetForUpdate(ctx, playerID)
	if err != nil {
		return fmt.Errorf("lock member: %w", err)
	}
	if p != nil && p.GuildID != nil && *p.GuildID == g.ID {
		p.GuildID = nil
		p.UpdatedAt = s.now()
		if err := tx.Players().Update(ctx, p); err != nil {
			return fmt.Errorf("update member: %w", err)
		}
	}
	return tx.Outbox().Insert(ctx, memberEvent(g, playerID, action, rank))
}

func bankEvent(g *domain.Guild, playerID int64, action, itemID string, qty int64) domain.OutboxDraft {
	return domain.NewGuildEvent(g.ID, domain.EventGuildBankChanged, map[string]any{
		"player_id": playerID,
		"action":    action,
		"item_id":   itemID,
		"quantity":  qty,
		"bank_gold": g.BankGold,
	})
}

// DepositToBank moves items from a member's inventory into the bank and credits
// qty*10 contribution.
func (s *Service) DepositToBank(ctx context.Context, guildID, playerID int64, itemID string, qty int) (g *domain.Guild, err error) {
	ctx, span := tracer.Start(ctx, "guild.DepositToBank", trace.WithAttributes(
		attribute.Int64("guild_id", guildID),
		attribute.String("item_id", itemID),
	))
	defer func() { infra.EndSpan(span, err) }()

	if err := domain.ValidateQuantity(qty); err != nil {
		return nil, err
	}
	g, _, err = s.mutate(ctx, guildID, []int64{playerID}, func(tx repository.Tx, g *domain.Guild) (bool, error) {
		m, err := requireMember(g, playerID)
		if err != nil {
			return false, err
		}
		locked, err := s.economy.Engine().LockPlayers(ctx, tx, playerID)
		if err != nil {
			return false, err
		}
		p := locked[playerID]
		if !p.Inventory.Remove(itemID, qty) {
			return false, domain.ErrInsufficientStock(itemID, qty, p.Inventory[itemID])
		}
		p.UpdatedAt = s.now()
		if err := tx.Players().Update(ctx, p); err != nil {
			return false, fmt.Errorf("update depositor: %w", err)
		}

		b, ok := g.Bank[itemID]
		if !ok {
			b = &domain.BankItem{ItemID: itemID, DepositedBy: map[int64]int{}}
			g.Bank[itemID] = b
		}
		b.Quantity += qty
		b.DepositedBy[playerID] += qty
		m.Contribution += int64(qty) * domain.ContributionPerItem
		return true, tx.Outbox().Insert(ctx, bankEvent(g, playerID, "deposit", itemID, int64(qty)))
	})
	return g, err
}

// WithdrawFromBank moves items from the bank to an Officer's or the Leader's
// inventory. Stock never goes negative.
func (s *Service) WithdrawFromBank(ctx context.Context, guildID, playerID int64, itemID string, qty int) (g *domain.Guild, err error) {
	ctx, span := tracer.Start(ctx, "guild.WithdrawFromBank", trace.WithAttributes(
		attribute.Int64("guild_id", guildID),
		attribute.String("item_id", itemID),
	))
	defer func() { infra.EndSpan(span, err) }()

	if err := domain.ValidateQuantity(qty); err != nil {
		return nil, err
	}
	g, _, err = s.mutate(ctx, guildID, []int64{playerID}, func(tx repository.Tx, g *domain.Guild) (bool, error) {
		m, err := requireMember(g, playerID)
		if err != nil {
			return false, err
		}
		if err := requireRank(m, domain.RankOfficer); err != nil {
			return false, err
		}
		stored := 0
		if b, ok := g.Bank[itemID]; ok {
			stored = b.Quantity
		}
		if qty > stored {
			return false, domain.ErrInsufficientStock(itemID, qty, stored)
		}
		if g.Bank[itemID].Quantity -= qty; g.Bank[itemID].Quantity == 0 {
			delete(g.Bank, itemID)
		}

		locked, err := s.economy.Engine().LockPlayers(ctx, tx, playerID)
		if err != nil {
			return false, err
		}
		p := locked[playerID]
		p.Inventory.Add(itemID, qty)
		p.UpdatedAt = s.now()
		if err := tx.Players().Update(ctx, p); err != nil {
			return false, fmt.Errorf("update withdrawer: %w", err)
		}
		return true, tx.Outbox().Insert(ctx, bankEvent(g, playerID, "withdraw", itemID, int64(qty)))
	})
	return g, err
}

// DepositGold debits a member through the ledger and credits the bank.
func (s *Service) DepositGold(ctx context.Context, guildID, playerID, amount int64) (g *domain.Guild, err error) {
	ctx, span := tracer.Start(ctx, "guild.DepositGold", trace.WithAttributes(attribute.Int64("guild_id", guildID)))
	defer func() { infra.EndSpan(span, err) }()

	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, err
	}
	g, _, err = s.mutate(ctx, guildID, []int64{playerID}, func(tx repository.Tx, g *domain.Guild) (bool, error) {
		if _, err := requireMember(g, playerID); err != nil {
			return false, err
		}
		_, err := s.economy.Engine().Adjust(ctx, tx, domain.AdjustParams{
			PlayerID: playerID,
			Currency: domain.CurrencyGold,
			Delta:    -amount,
			Type:     domain.TxGuildDeposit,
			Details:  map[string]any{"guild_id": g.ID},
		})
		if err != nil {
			return false, err
		}
		g.BankGold += amount
		return true, tx.Outbox().Insert(ctx, bankEvent(g, playerID, "deposit", string(domain.CurrencyGold), amount))
	})
	if err != nil {
		return nil, err
	}
	s.economy.Invalidate(ctx, playerID)
	return g, nil
}

// WithdrawGold pays bank gold to an Officer or the Leader through the ledger.
func (s *Service) WithdrawGold(ctx context.Context, guildID, playerID, amount int64) (g *domain.Guild, err error) {
	ctx, span := tracer.Start(ctx, "guild.WithdrawGold", trace.WithAttributes(attribute.Int64("guild_id", guildID)))
	defer func() { infra.EndSpan(span, err) }()

	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, err
	}
	g, _, err = s.mutate(ctx, guildID, []int64{playerID}, func(tx repository.Tx, g *domain.Guild) (bool, error) {
		m, err := requireMember(g, playerID)
		if err != nil {
			return false, err
		}
		if err := requireRank(m, domain.RankOfficer); err != nil {
			return false, err
		}
		if g.BankGold < amount {
			return false, domain.ErrInsufficientFunds(domain.CurrencyGold, amount, g.BankGold).With("guild_id", g.ID)
		}
		g.BankGold -= amount
		_, err = s.economy.Engine().Adjust(ctx, tx, domain.AdjustParams{
			PlayerID: playerID,
			Currency: domain.CurrencyGold,
			Delta:    amount,
			Type:     domain.TxGuildWithdraw,
			Details:  map[string]any{"guild_id": g.ID},
		})
		if err != nil {
			return false, err
		}
		return true, tx.Outbox().Insert(ctx, bankEvent(g, playerID, "withdraw", string(domain.CurrencyGold), amount))
	})
	if err != nil {
		return nil, err
	}
	s.economy.Invalidate(ctx, playerID)
	return g, nil
}

// Disband removes the guild with its roster and bank. Only the Leader may do it;
// bank gold and items are returned to the Leader in the same transaction.
func (s *Service) Disband(ctx context.Context, guildID, requesterID int64) (err error) {
	ctx, span := tracer.Start(ctx, "guild.Disband", trace.WithAttributes(
		attribute.Int64("guild_id", guildID),
		attribute.Int64("player_id", requesterID),
	))
	defer func() { infra.EndSpan(span, err) }()

	var refund int64
	err = s.locks.With(ctx, func() error {
		return s.store.InTx(ctx, func(tx repository.Tx) error {
			g, err := tx.Guilds().GetForUpdate(ctx, guildID)
			if err != nil {
				return fmt.Errorf("lock guild: %w", err)
			}
			if g == nil {
				return domain.ErrNotFound("guild", fmt.Sprint(guildID))
			}
			m, err := requireMember(g, requesterID)
			if err != nil {
				return err
			}
			if err := requireRank(m, domain.RankLeader); err != nil {
				return err
			}

			locked, err := s.economy.Engine().LockPlayers(ctx, tx, requesterID)
			if err != nil {
				return err
			}
			leader := locked[requesterID]
			for id, b := range g.Bank {
				if b.Quantity > 0 {
					leader.Inventory.Add(id, b.Quantity)
				}
			}
			leader.GuildID = nil
			leader.UpdatedAt = s.now()
			if err := tx.Players().Update(ctx, leader); err != nil {
				return fmt.Errorf("update leader: %w", err)
			}
			if g.BankGold > 0 {
				refund = g.BankGold
				_, err = s.economy.Engine().Adjust(ctx, tx, domain.AdjustParams{
					PlayerID: requesterID,
					Currency: domain.CurrencyGold,
					Delta:    g.BankGold,
					Type:     domain.TxGuildDisbandRefund,
					Details:  map[string]any{"guild_id": g.ID, "reference": fmt.Sprintf("guild:%d:disband", g.ID)},
				})
				if err != nil {
					return err
				}
			}
			if err := tx.Guilds().Delete(ctx, g.ID); err != nil {
				return fmt.Errorf("delete guild: %w", err)
			}
			return tx.Outbox().Insert(ctx, domain.NewGuildEvent(g.ID, domain.EventGuildDisbanded, map[string]any{
				"leader_id": requesterID,
				"members":   len(g.Members),
				"refund":    refund,
			}))
		})
	}, requesterID)
	if err != nil {
		return err
	}
	s.economy.Invalidate(ctx, requesterID)
	s.logger.Info("guild disbanded", "guild_id", guildID, "leader_id", requesterID, "refund", refund)
	return nil
}

// AddExperience accumulates guild experience. At most one level is gained per
// call; on level-up the experience resets to zero.
func (s *Service) AddExperience(ctx context.Context, guildID, amount int64) (*domain.Guild, bool, error) {
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, false, err
	}
	var leveled bool
	g, _, err := s.mutate(ctx, guildID, nil, func(tx repository.Tx, g *domain.Guild) (bool, error) {
		g.Exp += amount
		if g.Exp < domain.GuildExpToLevel(g.Level) {
			return true, nil
		}
		g.Level++
		g.Exp = 0
		leveled = true
		return true, tx.Outbox().Insert(ctx, domain.NewGuildEvent(g.ID, domain.EventGuildLeveledUp, map[string]any{
			"level":    g.Level,
			"capacity": g.Capacity(),
		}))
	})
	if err != nil {
		return nil, false, err
	}
	if leveled {
		s.logger.Info("guild leveled up", "guild_id", guildID, "level", g.Level)
	}
	return g, leveled, nil
}
