// Package catalog holds the static game content: monsters, floor bosses, weapons,
// items, talent trees and epic raid bosses.
package catalog

import (
	"fmt"
	"sort"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/rng"
)

// Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	monsters   map[int][]domain.OpponentTemplate
	bosses     map[int]domain.OpponentTemplate
	opponents  map[string]domain.OpponentTemplate
	weapons    map[string]domain.Weapon
	items      map[string]domain.Item
	talents    map[string]domain.Talent
	raidBosses map[string]domain.RaidBoss
	maxFloor   int
}

// Default returns the built-in content set.
func Default() *Catalog {
	c := &Catalog{
		monsters:   map[int][]domain.OpponentTemplate{},
		bosses:     map[int]domain.OpponentTemplate{},
		opponents:  map[string]domain.OpponentTemplate{},
		weapons:    map[string]domain.Weapon{},
		items:      map[string]domain.Item{},
		talents:    map[string]domain.Talent{},
		raidBosses: map[string]domain.RaidBoss{},
	}
	for _, m := range monsterTable {
		m.Kind = domain.OpponentMonster
		c.monsters[m.Floor] = append(c.monsters[m.Floor], m)
		c.opponents[m.ID] = m
		c.maxFloor = max(c.maxFloor, m.Floor)
	}
	for _, b := range bossTable {
		b.Kind = domain.OpponentBoss
		c.bosses[b.Floor] = b
		c.opponents[b.ID] = b
	}
	for _, w := range weaponTable {
		c.weapons[w.ID] = w
	}
	for _, it := range itemTable {
		c.items[it.ID] = it
	}
	for _, t := range talentTable {
		c.talents[t.ID] = t
	}
	for _, rb := range raidBossTable {
		c.raidBosses[rb.ID] = rb
	}
	return c
}

// MaxFloor is the highest floor with content. Deeper floors reuse it with more scaling.
func (c *Catalog) MaxFloor() int { return c.maxFloor }

func (c *Catalog) contentFloor(floor int) int {
	return max(1, min(floor, c.maxFloor))
}

// Monster picks a random monster for the floor.
func (c *Catalog) Monster(floor int, src rng.Source) (domain.OpponentTemplate, error) {
	pool := c.monsters[c.contentFloor(floor)]
	if len(pool) == 0 {
		return domain.OpponentTemplate{}, domain.ErrNotFound("monster pool for floor", fmt.Sprint(floor))
	}
	return pool[src.IntN(len(pool))], nil
}

// FloorBoss returns the boss guarding the floor.
func (c *Catalog) FloorBoss(floor int) (domain.OpponentTemplate, error) {
	b, ok := c.bosses[c.contentFloor(floor)]
	if !ok {
		return domain.OpponentTemplate{}, domain.ErrNotFound("boss for floor", fmt.Sprint(floor))
	}
	return b, nil
}

// Opponent looks up a monster or boss by id.
func (c *Catalog) Opponent(id string) (domain.OpponentTemplate, bool) {
	t, ok := c.opponents[id]
	return t, ok
}

// Weapon looks up a weapon family.
func (c *Catalog) Weapon(id string) (domain.Weapon, bool) {
	w, ok := c.weapons[id]
	return w, ok
}

// Weapons lists every weapon family by id.
func (c *Catalog) Weapons() []domain.Weapon {
	out := make([]domain.Weapon, 0, len(c.weapons))
	for _, w := range c.weapons {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Item looks up an item definition.
func (c *Catalog) Item(id string) (domain.Item, bool) {
	it, ok := c.items[id]
	return it, ok
}

// ShopItems lists the purchasable items ordered by price.
func (c *Catalog) ShopItems() []domain.Item {
	var out []domain.Item
	for _, it := range c.items {
		if it.Purchasable() {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Talent looks up a talent node.
func (c *Catalog) Talent(id string) (domain.Talent, bool) {
	t, ok := c.talents[id]
	return t, ok
}

// TalentCost returns the cost of a talent, zero when unknown.
func (c *Catalog) TalentCost(id string) int {
	return c.talents[id].Cost
}

// TalentTree lists the talents of one weapon in cost order.
func (c *Catalog) TalentTree(weapon string) []domain.Talent {
	var out []domain.Talent
	for _, t := range c.talents {
		if t.Weapon == weapon {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cost != out[j].Cost {
			return out[i].Cost < out[j].Cost
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// TalentBonus sums the bonuses of the player's learned talents for one weapon.
func (c *Catalog) TalentBonus(p *domain.Player, weapon string) domain.TalentBonus {
	var total domain.TalentBonus
	for id, rank := range p.Talents {
		t, ok := c.talents[id]
		if !ok || rank <= 0 || t.Weapon != weapon {
			continue
		}
		total = total.Add(t.Bonus)
	}
	return total
}

// RaidBoss looks up an epic boss.
func (c *Catalog) RaidBoss(id string) (domain.RaidBoss, bool) {
	b, ok := c.raidBosses[id]
	if !ok {
		return domain.RaidBoss{}, false
	}
	b.Abilities = append([]domain.BossAbility(nil), b.Abilities...)
	b.Loot = append([]domain.LootEntry(nil), b.Loot...)
	return b, true
}

// RaidBosses lists every epic boss ordered by health.
func (c *Catalog) RaidBosses() []domain.RaidBoss {
	out := make([]domain.RaidBoss, 0, len(c.raidBosses))
	for _, b := range c.raidBosses {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BaseHealth < out[j].BaseHealth })
	return out
}
