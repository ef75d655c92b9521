// Package player owns character progression: registration, levels, weapons,
// skills, talents and the item shop.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/guard"
	"github.com/attaboy/tower/internal/ledger"
	"github.com/attaboy/tower/internal/repository"
)

// Content is the slice of the catalog progression needs.
type Content interface {
	Weapon(id string) (domain.Weapon, bool)
	Item(id string) (domain.Item, bool)
	Talent(id string) (domain.Talent, bool)
	TalentCost(id string) int
}

// Service mutates player records under the per-player lock.
type Service struct {
	store   repository.Store
	economy *ledger.Service
	locks   *guard.PlayerLocks
	content Content
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates the progression service.
func NewService(store repository.Store, economy *ledger.Service, locks *guard.PlayerLocks, content Content, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		economy: economy,
		locks:   locks,
		content: content,
		logger:  logger,
		now:     time.Now,
	}
}

// Register creates the starting character and credits the opening grant.
func (s *Service) Register(ctx context.Context, id int64, nickname string) (*domain.Player, error) {
	if id <= 0 {
		return nil, domain.ErrValidation("player id must be positive")
	}
	if err := domain.ValidateNickname(nickname); err != nil {
		return nil, err
	}
	p := domain.NewPlayer(id, strings.TrimSpace(nickname), s.now())

	err := s.locks.With(ctx, func() error {
		return s.store.InTx(ctx, func(tx repository.Tx) error {
			existing, err := tx.Players().Get(ctx, id)
			if err != nil {
				return fmt.Errorf("get player: %w", err)
			}
			if existing != nil {
				return domain.ErrConflict(fmt.Sprintf("player %d already registered", id))
			}
			if err := tx.Players().Create(ctx, p); err != nil {
				return fmt.Errorf("create player: %w", err)
			}
			_, err = s.economy.Engine().Adjust(ctx, tx, domain.AdjustParams{
				PlayerID: id,
				Currency: domain.CurrencyGold,
				Delta:    domain.StartingGold,
				Type:     domain.TxOpeningGrant,
				Details:  map[string]any{"reference": fmt.Sprintf("opening:%d", id)},
			})
			if err != nil {
				return err
			}
			return tx.Outbox().Insert(ctx, domain.NewPlayerRegisteredEvent(p))
		})
	}, id)
	if err != nil {
		return nil, err
	}
	s.economy.Invalidate(ctx, id)
	s.logger.Info("player registered", "player_id", id, "nickname", p.Nickname)
	return p, nil
}

// Get reads a player.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Player, error) {
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

// mutate runs fn on the locked player inside one transaction and persists the result.
func (s *Service) mutate(ctx context.Context, id int64, requireIdle bool, fn func(tx repository.Tx, p *domain.Player) error) (*domain.Player, error) {
	var out *domain.Player
	err := s.locks.With(ctx, func() error {
		return s.store.InTx(ctx, func(tx repository.Tx) error {
			locked, err := s.economy.Engine().LockPlayers(ctx, tx, id)
			if err != nil {
				return err
			}
			p := locked[id]
			if requireIdle && !p.IsIdle() {
				return domain.ErrInvalidState(fmt.Sprintf("player %d is %s", id, p.State)).With("state", string(p.State))
			}
			if err := fn(tx, p); err != nil {
				return err
			}
			p.UpdatedAt = s.now()
			if err := tx.Players().Update(ctx, p); err != nil {
				return fmt.Errorf("update player: %w", err)
			}
			out = p
			return nil
		})
	}, id)
	return out, err
}

// LevelUp spends level*100 experience for one level: +1 vitality, recomputed
// max health and a full heal.
func (s *Service) LevelUp(ctx context.Context, id int64) (*domain.Player, error) {
	return s.mutate(ctx, id, true, func(tx repository.Tx, p *domain.Player) error {
		need := domain.ExpToNextLevel(p.Level)
		if p.Exp < need {
			return domain.ErrInvalidState(fmt.Sprintf("need %d experience to level up", need)).
				With("required", need).With("available", p.Exp)
		}
		p.Exp -= need
		p.Level++
		p.Stats = p.Stats.Add(domain.StatVitality, 1)
		p.MaxHP = domain.MaxHPFor(p.Stats)
		p.HP = p.MaxHP
		return tx.Outbox().Insert(ctx, domain.NewPlayerLeveledUpEvent(p))
	})
}

// SelectWeapon equips a weapon family, starting it at level 1 with its base skill.
func (s *Service) SelectWeapon(ctx context.Context, id int64, weaponID string) (*domain.Player, error) {
	w, ok := s.content.Weapon(weaponID)
	if !ok {
		return nil, domain.ErrNotFound("weapon", weaponID)
	}
	return s.mutate(ctx, id, true, func(_ repository.Tx, p *domain.Player) error {
		if _, owned := p.Weapons[w.ID]; !owned {
			p.Weapons[w.ID] = domain.WeaponProgress{Level: 1, Skills: []string{w.BaseSkill}}
		}
		p.CurrentWeapon = w.ID
		return nil
	})
}

// LearnSkill adds a skill of the current weapon once its stat requirement is met.
func (s *Service) LearnSkill(ctx context.Context, id int64, skillID string) (*domain.Player, error) {
	return s.mutate(ctx, id, false, func(_ repository.Tx, p *domain.Player) error {
		w, ok := s.content.Weapon(p.CurrentWeapon)
		if !ok {
			return domain.ErrInvalidState("no weapon equipped")
		}
		sk, ok := w.Skills[skillID]
		if !ok {
			return domain.ErrNotFound("skill", skillID)
		}
		progress := p.Weapons[w.ID]
		if progress.HasSkill(skillID) {
			return domain.ErrConflict("skill already learned: " + skillID)
		}
		if have := p.Stats.Get(w.Stat); have < sk.MinStat {
			return domain.ErrInvalidState(fmt.Sprintf("%s %d required", w.Stat, sk.MinStat)).
				With("stat", string(w.Stat)).With("required", sk.MinStat).With("available", have)
		}
		progress.Skills = append(slices.Clone(progress.Skills), skillID)
		p.Weapons[w.ID] = progress
		return nil
	})
}

// LearnTalent spends talent points on a node of an owned weapon's tree.
func (s *Service) LearnTalent(ctx context.Context, id int64, talentID string) (*domain.Player, error) {
	t, ok := s.content.Talent(talentID)
	if !ok {
		return nil, domain.ErrNotFound("talent", talentID)
	}
	return s.mutate(ctx, id, false, func(_ repository.Tx, p *domain.Player) error {
		if _, owned := p.Weapons[t.Weapon]; !owned {
			return domain.ErrInvalidState("weapon not owned: " + t.Weapon).With("weapon", t.Weapon)
		}
		if p.Talents[talentID] > 0 {
			return domain.ErrConflict("talent already learned: " + talentID)
		}
		if points := p.TalentPoints(s.content.TalentCost); points < t.Cost {
			return domain.ErrInsufficientStock("talent_points", t.Cost, points)
		}
		p.Talents[talentID] = 1
		return nil
	})
}

// ResetTalents clears every learned talent for TalentResetCost gold. The spent
// points come back because talent points are derived from level and the learned set.
func (s *Service) ResetTalents(ctx context.Context, id int64) (*domain.Player, error) {
	p, err := s.mutate(ctx, id, true, func(tx repository.Tx, p *domain.Player) error {
		if len(p.Talents) == 0 {
			return domain.ErrInvalidState("no talents learned")
		}
		_, err := s.economy.Engine().Adjust(ctx, tx, domain.AdjustParams{
			PlayerID: id,
			Currency: domain.CurrencyGold,
			Delta:    -domain.TalentResetCost,
			Type:     domain.TxTalentReset,
			Details:  map[string]any{"talents": len(p.Talents)},
		})
		if err != nil {
			return err
		}
		clear(p.Talents)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.economy.Invalidate(ctx, id)
	return p, nil
}

// Purchase debits the shop price and credits the items in one transaction.
func (s *Service) Purchase(ctx context.Context, id int64, itemID string, qty int) (*domain.Player, error) {
	if err := domain.ValidateQuantity(qty); err != nil {
		return nil, err
	}
	item, ok := s.content.Item(itemID)
	if !ok || !item.Purchasable() {
		return nil, domain.ErrNotFound("shop item", itemID)
	}
	p, err := s.mutate(ctx, id, false, func(tx repository.Tx, p *domain.Player) error {
		_, err := s.economy.Engine().Adjust(ctx, tx, domain.AdjustParams{
			PlayerID: id,
			Currency: domain.CurrencyGold,
			Delta:    -item.Price * int64(qty),
			Type:     domain.TxShopPurchase,
			Details:  map[string]any{"item_id": itemID, "qty": qty},
		})
		if err != nil {
			return err
		}
		p.Inventory.Add(itemID, qty)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.economy.Invalidate(ctx, id)
	return p, nil
}

// UseUpgrade applies a permanent upgrade item out of combat: a stat bonus, or one
// level on the current weapon.
func (s *Service) UseUpgrade(ctx context.Context, id int64, itemID string) (*domain.Player, error) {
	item, ok := s.content.Item(itemID)
	if !ok {
		return nil, domain.ErrNotFound("item", itemID)
	}
	if item.Kind != domain.ItemUpgrade {
		return nil, domain.ErrInvalidAction(itemID + " is not an upgrade").With("item_id", itemID)
	}
	return s.mutate(ctx, id, true, func(_ repository.Tx, p *domain.Player) error {
		if item.StatBonus == "" {
			progress, ok := p.Weapons[p.CurrentWeapon]
			if !ok {
				return domain.ErrInvalidState("no weapon equipped")
			}
			progress.Level++
			p.Weapons[p.CurrentWeapon] = progress
		}
		if !p.Inventory.Remove(itemID, 1) {
			return domain.ErrInsufficientStock(itemID, 1, p.Inventory[itemID])
		}
		if item.StatBonus != "" {
			p.Stats = p.Stats.Add(item.StatBonus, item.BonusAmount)
			p.MaxHP = domain.MaxHPFor(p.Stats)
			p.SetHP(p.HP)
		}
		return nil
	})
}

// Recover returns every player left in combat, a raid or a duel to idle. Sessions
// are not persisted, so after a restart they are abandoned.
func (s *Service) Recover(ctx context.Context) (int64, error) {
	var n int64
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		n, err = tx.Players().ResetActiveStates(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("recover players: %w", err)
	}
	if n > 0 {
		s.logger.Warn("reset abandoned sessions", "players", n)
	}
	return n, nil
}
