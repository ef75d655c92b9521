package catalog

import (
	"time"

	"github.com/attaboy/tower/internal/domain"
)

const defaultLootChance = 0.3

func mob(id, name string, floor, hp, attack, defense, xp int, goldMin, goldMax int64, loot ...string) domain.OpponentTemplate {
	return domain.OpponentTemplate{
		ID: id, Name: name, Floor: floor,
		HP: hp, Attack: attack, Defense: defense, XP: xp,
		GoldMin: goldMin, GoldMax: goldMax,
		Loot: loot, LootChance: defaultLootChance,
	}
}

func withTraits(t domain.OpponentTemplate, traits domain.OpponentTraits) domain.OpponentTemplate {
	t.Traits = traits
	return t
}

var monsterTable = []domain.OpponentTemplate{
	mob("goblin", "Goblin", 1, 30, 5, 2, 10, 3, 10, "goblin_ear"),
	mob("goblin_scout", "Goblin Scout", 1, 25, 7, 1, 12, 5, 12, "goblin_ear"),
	mob("goblin_warrior", "Goblin Warrior", 1, 40, 9, 3, 15, 7, 15, "rusty_blade"),

	mob("orc", "Orc", 2, 50, 8, 4, 20, 5, 15, "orc_tusk"),
	mob("orc_berserker", "Orc Berserker", 2, 60, 12, 3, 25, 7, 18, "orc_tusk"),
	withTraits(mob("orc_shaman", "Orc Shaman", 2, 40, 15, 2, 30, 10, 25, "shaman_totem"),
		domain.OpponentTraits{StunChance: 0.1}),

	mob("fire_troll", "Fire Troll", 3, 80, 12, 6, 30, 10, 20, "ember_core"),
	withTraits(mob("lava_salamander", "Lava Salamander", 3, 70, 10, 5, 35, 12, 25, "salamander_scale"),
		domain.OpponentTraits{Regen: 5}),
	mob("magma_golem", "Magma Golem", 3, 90, 18, 9, 40, 15, 30, "ember_core"),

	mob("skeleton_warrior", "Skeleton Warrior", 4, 60, 10, 8, 40, 10, 20, "bone_dust"),
	withTraits(mob("ghost", "Ghost", 4, 40, 15, 4, 50, 15, 30, "ectoplasm"),
		domain.OpponentTraits{DodgeChance: 0.3}),
	mob("lich", "Lich", 4, 100, 20, 10, 70, 20, 40, "phylactery_shard"),

	mob("star_predator", "Star Predator", 5, 100, 15, 10, 70, 20, 40, "star_shard"),
	withTraits(mob("cosmic_slime", "Cosmic Slime", 5, 120, 10, 8, 80, 25, 50, "star_shard"),
		domain.OpponentTraits{Regen: 10}),
	mob("night_hunter", "Night Hunter", 5, 90, 25, 9, 90, 30, 60, "shadow_pelt"),

	mob("ice_elemental", "Ice Elemental", 6, 120, 15, 12, 90, 30, 50, "frost_crystal"),
	mob("yeti", "Yeti", 6, 150, 20, 12, 100, 40, 60, "yeti_fur"),
	mob("frost_drake", "Frost Drake", 6, 100, 25, 14, 120, 50, 80, "drake_scale"),

	withTraits(mob("venom_spider", "Venom Spider", 7, 80, 20, 10, 100, 40, 60, "spider_silk"),
		domain.OpponentTraits{PoisonChance: 0.3, PoisonDamage: 6, PoisonTurns: 3}),
	withTraits(mob("giant_leech", "Giant Leech", 7, 120, 15, 10, 110, 50, 70, "leech_oil"),
		domain.OpponentTraits{LifeSteal: 0.3}),
	withTraits(mob("maneater_plant", "Man-eater Plant", 7, 150, 25, 12, 130, 60, 90, "vine_heart"),
		domain.OpponentTraits{StunChance: 0.2}),

	mob("mummy", "Mummy", 8, 100, 20, 14, 120, 50, 80, "linen_wrap"),
	mob("scorpion_guardian", "Scorpion Guardian", 8, 130, 25, 16, 140, 70, 100, "scorpion_stinger"),
	mob("cursed_sarcophagus", "Cursed Sarcophagus", 8, 200, 30, 20, 160, 100, 150, "cursed_gold"),

	mob("storm_elemental", "Storm Elemental", 9, 150, 25, 16, 150, 80, 120, "storm_essence"),
	mob("air_demon", "Air Demon", 9, 130, 30, 15, 170, 100, 150, "demon_horn"),
	mob("lightning_lord", "Lightning Lord", 9, 180, 35, 18, 190, 120, 180, "storm_essence"),

	mob("crystal_golem", "Crystal Golem", 10, 200, 30, 22, 200, 150, 200, "living_crystal"),
	withTraits(mob("phantom_crystal", "Phantom Crystal", 10, 150, 40, 18, 220, 180, 250, "living_crystal"),
		domain.OpponentTraits{DodgeChance: 0.2}),
	mob("reality_warper", "Reality Warper", 10, 250, 50, 24, 250, 200, 300, "void_fragment"),
}

func floorBoss(id, name string, floor, hp, attack, defense, xp int, goldMin, goldMax int64, minLevel int, loot ...string) domain.OpponentTemplate {
	t := mob(id, name, floor, hp, attack, defense, xp, goldMin, goldMax, loot...)
	t.MinLevel = minLevel
	t.LootChance = 0.8
	return t
}

var bossTable = []domain.OpponentTemplate{
	floorBoss("goblin_king", "Goblin King", 1, 500, 20, 8, 100, 100, 200, 5, "goblin_crown"),
	floorBoss("horde_chief", "Horde Chief", 2, 1000, 30, 12, 200, 200, 300, 10, "chief_axe"),
	floorBoss("magma_lord", "Magma Lord", 3, 2000, 40, 16, 300, 300, 500, 15, "magma_heart"),
	floorBoss("king_of_the_dead", "King of the Dead", 4, 3000, 50, 20, 500, 500, 700, 20, "death_crown"),
	floorBoss("star_dragon", "Star Dragon", 5, 5000, 70, 26, 800, 800, 1200, 25, "star_dragon_scale"),
	floorBoss("ice_queen", "Ice Queen", 6, 7000, 90, 30, 1200, 1200, 1800, 30, "frozen_tiara"),
	floorBoss("jungle_lord", "Jungle Lord", 7, 9000, 110, 34, 1800, 1800, 2500, 35, "ancient_seed"),
	floorBoss("undying_pharaoh", "Undying Pharaoh", 8, 12000, 140, 40, 2500, 2500, 3500, 40, "pharaoh_mask"),
	floorBoss("storm_lord", "Storm Lord", 9, 15000, 170, 46, 3500, 3500, 5000, 45, "thunder_core"),
	floorBoss("reality_keeper", "Reality Keeper", 10, 20000, 200, 52, 5000, 5000, 8000, 50, "reality_shard"),
}

func skill(id, name string, minStat int, mods domain.Skill) domain.Skill {
	mods.ID, mods.Name, mods.MinStat = id, name, minStat
	if mods.StunChance > 0 && mods.StunTurns == 0 {
		mods.StunTurns = 1
	}
	return mods
}

func weapon(id, name string, damage int, stat domain.Stat, skills ...domain.Skill) domain.Weapon {
	w := domain.Weapon{ID: id, Name: name, Damage: damage, Stat: stat, Skills: map[string]domain.Skill{}}
	for i, s := range skills {
		if i == 0 {
			w.BaseSkill = s.ID
		}
		w.Skills[s.ID] = s
	}
	return w
}

var weaponTable = []domain.Weapon{
	weapon("sword", "Sword", 8, domain.StatStrength,
		skill("slash", "Slash", 0, domain.Skill{}),
		skill("power_strike", "Power Strike", 10, domain.Skill{DamageMult: 1.5}),
		skill("crushing_blow", "Crushing Blow", 15, domain.Skill{DamageMult: 2.0, StunChance: 0.3}),
		skill("blade_whirl", "Blade Whirl", 20, domain.Skill{Hits: 3, DamageMult: 0.7}),
	),
	weapon("dagger", "Dagger", 5, domain.StatAgility,
		skill("quick_strike", "Quick Strike", 0, domain.Skill{}),
		skill("rapid_strike", "Rapid Strike", 10, domain.Skill{Hits: 2}),
		skill("lethal_stab", "Lethal Stab", 15, domain.Skill{CritChance: 0.5, CritMult: 2.0}),
		skill("shadow_blade", "Shadow Blade", 20, domain.Skill{DamageMult: 1.5, LifeSteal: 0.2}),
	),
	weapon("mace", "Mace", 10, domain.StatStrength,
		skill("stun_bash", "Stun Bash", 0, domain.Skill{StunChance: 0.15}),
		skill("shatter", "Shatter", 10, domain.Skill{ArmorPen: 0.5}),
		skill("earthquake", "Earthquake", 15, domain.Skill{DamageMult: 1.2}),
		skill("thunder_strike", "Thunder Strike", 20, domain.Skill{StunChance: 0.4, DamageMult: 1.8}),
	),
	weapon("bow", "Bow", 7, domain.StatAccuracy,
		skill("aimed_shot", "Aimed Shot", 0, domain.Skill{}),
		skill("double_shot", "Double Shot", 10, domain.Skill{Hits: 2}),
		skill("sniper_shot", "Sniper Shot", 15, domain.Skill{CritChance: 0.6, DamageMult: 2.5}),
		skill("arrow_rain", "Arrow Rain", 20, domain.Skill{Hits: 5, DamageMult: 0.6}),
	),
	weapon("axe", "Axe", 12, domain.StatStrength,
		skill("heavy_chop", "Heavy Chop", 0, domain.Skill{}),
		skill("cleave", "Cleave", 10, domain.Skill{DamageMult: 1.8}),
		skill("berserk", "Berserk", 15, domain.Skill{DamageMult: 2.0, SelfDamage: 0.1}),
		skill("axe_whirl", "Axe Whirl", 20, domain.Skill{Hits: 2, DamageMult: 1.2}),
	),
	weapon("spear", "Spear", 9, domain.StatAgility,
		skill("pinpoint_thrust", "Pinpoint Thrust", 0, domain.Skill{}),
		skill("pierce", "Pierce", 10, domain.Skill{ArmorPen: 0.7}),
		skill("swift_thrust", "Swift Thrust", 15, domain.Skill{Hits: 3}),
		skill("spear_of_fate", "Spear of Fate", 20, domain.Skill{CritChance: 0.4, CritMult: 3.0}),
	),
	weapon("hammer", "Hammer", 14, domain.StatStrength,
		skill("smash", "Smash", 0, domain.Skill{}),
		skill("wrecker", "Wrecker", 12, domain.Skill{DamageMult: 1.8, ArmorPen: 0.6}),
		skill("hammer_blow", "Hammer Blow", 18, domain.Skill{StunChance: 0.5, DamageMult: 2.0}),
		skill("earth_rift", "Earth Rift", 25, domain.Skill{DamageMult: 1.5}),
	),
	weapon("crossbow", "Crossbow", 10, domain.StatAccuracy,
		skill("heavy_bolt", "Heavy Bolt", 0, domain.Skill{}),
		skill("piercing_bolt", "Piercing Bolt", 12, domain.Skill{ArmorPen: 0.8}),
		skill("bolt_flurry", "Bolt Flurry", 18, domain.Skill{Hits: 4, DamageMult: 0.7}),
		skill("deadly_bolt", "Deadly Bolt", 24, domain.Skill{CritChance: 0.7, CritMult: 3.0}),
	),
}

const (
	elixirAmount = 3
	elixirTurns  = 10
)

func elixir(id, name string, stat domain.Stat) domain.Item {
	return domain.Item{
		ID: id, Name: name, Kind: domain.ItemConsumable, Price: 300,
		Effects: []domain.Effect{domain.StatBuffTimed{Stat: stat, Amount: elixirAmount, Turns: elixirTurns}},
	}
}

func material(id, name string) domain.Item {
	return domain.Item{ID: id, Name: name, Kind: domain.ItemMaterial}
}

var itemTable = []domain.Item{
	{ID: "health_potion", Name: "Health Potion", Kind: domain.ItemConsumable, Price: 50,
		Effects: []domain.Effect{domain.HealFlat{Amount: 50}}},
	{ID: "weapon_upgrade", Name: "Weapon Upgrade", Kind: domain.ItemUpgrade, Price: 200},
	{ID: "armor_upgrade", Name: "Armor Upgrade", Kind: domain.ItemUpgrade, Price: 150,
		StatBonus: domain.StatDefense, BonusAmount: 5},
	elixir("elixir_strength", "Elixir of Strength", domain.StatStrength),
	elixir("elixir_agility", "Elixir of Agility", domain.StatAgility),
	elixir("elixir_vitality", "Elixir of Vitality", domain.StatVitality),
	elixir("elixir_luck", "Elixir of Luck", domain.StatLuck),
	{ID: "whetstone", Name: "Whetstone", Kind: domain.ItemConsumable, Price: 120,
		Effects: []domain.Effect{domain.CritChanceBonus{Bonus: 0.15, Turns: 3}}},
	{ID: "piercing_oil", Name: "Piercing Oil", Kind: domain.ItemConsumable, Price: 120,
		Effects: []domain.Effect{domain.ArmorPenetration{Fraction: 0.5}}},
	{ID: "boss_key", Name: "Boss Key", Kind: domain.ItemKey, Price: 1000},

	material("goblin_ear", "Goblin Ear"),
	material("rusty_blade", "Rusty Blade"),
	material("orc_tusk", "Orc Tusk"),
	material("shaman_totem", "Shaman Totem"),
	material("ember_core", "Ember Core"),
	material("salamander_scale", "Salamander Scale"),
	material("bone_dust", "Bone Dust"),
	material("ectoplasm", "Ectoplasm"),
	material("phylactery_shard", "Phylactery Shard"),
	material("star_shard", "Star Shard"),
	material("shadow_pelt", "Shadow Pelt"),
	material("frost_crystal", "Frost Crystal"),
	material("yeti_fur", "Yeti Fur"),
	material("drake_scale", "Drake Scale"),
	material("spider_silk", "Spider Silk"),
	material("leech_oil", "Leech Oil"),
	material("vine_heart", "Vine Heart"),
	material("linen_wrap", "Linen Wrap"),
	material("scorpion_stinger", "Scorpion Stinger"),
	material("cursed_gold", "Cursed Gold"),
	material("storm_essence", "Storm Essence"),
	material("demon_horn", "Demon Horn"),
	material("living_crystal", "Living Crystal"),
	material("void_fragment", "Void Fragment"),
	material("goblin_crown", "Goblin Crown"),
	material("chief_axe", "Chief's Axe"),
	material("magma_heart", "Magma Heart"),
	material("death_crown", "Crown of the Dead"),
	material("star_dragon_scale", "Star Dragon Scale"),
	material("frozen_tiara", "Frozen Tiara"),
	material("ancient_seed", "Ancient Seed"),
	material("pharaoh_mask", "Pharaoh's Mask"),
	material("thunder_core", "Thunder Core"),
	material("reality_shard", "Reality Shard"),
	material("dragon_scale", "Dragon Scale"),
	material("ancient_artifact", "Ancient Artifact"),
	material("titan_heart", "Titan Heart"),
	material("void_crystal", "Void Crystal"),
	material("celestial_essence", "Celestial Essence"),
	material("divine_shard", "Divine Shard"),
}

func talentTree(weapon string, bonuses ...domain.TalentBonus) []domain.Talent {
	costs := []int{1, 2, 3, 5}
	out := make([]domain.Talent, 0, len(bonuses))
	for i, b := range bonuses {
		out = append(out, domain.Talent{
			ID:     weapon + string(rune('1'+i)),
			Weapon: weapon,
			Cost:   costs[i],
			Bonus:  b,
		})
	}
	return out
}

func named(ts []domain.Talent, names ...string) []domain.Talent {
	for i := range ts {
		ts[i].Name = names[i]
	}
	return ts
}

var talentTable = concat(
	named(talentTree("sword",
		domain.TalentBonus{DamagePct: 0.05},
		domain.TalentBonus{CritChance: 0.03},
		domain.TalentBonus{DefensePct: 0.10},
		domain.TalentBonus{UnlockSkill: "blade_whirl"},
	), "Keen Edge", "Fencer", "Knight's Honor", "Deadly Whirl"),
	named(talentTree("dagger",
		domain.TalentBonus{CritChance: 0.05},
		domain.TalentBonus{DamagePct: 0.05},
		domain.TalentBonus{DamagePct: 0.10},
		domain.TalentBonus{UnlockSkill: "shadow_blade"},
	), "Shadow Strike", "Venom Edge", "Assassin", "Dance of Death"),
	named(talentTree("mace",
		domain.TalentBonus{StunChance: 0.10},
		domain.TalentBonus{ArmorPen: 0.20},
		domain.TalentBonus{DamagePct: 0.15},
		domain.TalentBonus{UnlockSkill: "thunder_strike"},
	), "Crusher", "Armor Breaker", "Tremor", "Hammer of the Gods"),
	named(talentTree("bow",
		domain.TalentBonus{CritChance: 0.05},
		domain.TalentBonus{DamagePct: 0.10},
		domain.TalentBonus{DamagePct: 0.10},
		domain.TalentBonus{UnlockSkill: "arrow_rain"},
	), "Marksman", "Rapid Fire", "Deadly Shot", "Rain of Arrows"),
	named(talentTree("axe",
		domain.TalentBonus{DamagePct: 0.08},
		domain.TalentBonus{DamagePct: 0.10},
		domain.TalentBonus{DamagePct: 0.20},
		domain.TalentBonus{UnlockSkill: "axe_whirl"},
	), "Blood Rage", "Double Chop", "Berserker", "Whirl of Ruin"),
	named(talentTree("spear",
		domain.TalentBonus{DamagePct: 0.05},
		domain.TalentBonus{ArmorPen: 0.25},
		domain.TalentBonus{DefensePct: 0.10},
		domain.TalentBonus{UnlockSkill: "spear_of_fate"},
	), "Long Reach", "Piercing Thrust", "Counterattack", "Dragon Strike"),
	named(talentTree("hammer",
		domain.TalentBonus{DamagePct: 0.10},
		domain.TalentBonus{StunChance: 0.15},
		domain.TalentBonus{DamagePct: 0.05},
		domain.TalentBonus{UnlockSkill: "earth_rift"},
	), "Crushing Force", "Shockwave", "Siege Breaker", "Apocalypse"),
	named(talentTree("crossbow",
		domain.TalentBonus{DamagePct: 0.12},
		domain.TalentBonus{CritChance: 0.03},
		domain.TalentBonus{ArmorPen: 0.30},
		domain.TalentBonus{UnlockSkill: "deadly_bolt"},
	), "Heavy Bolt", "Quick Reload", "Armor-piercing Bolt", "Killing Shot"),
)

func concat(trees ...[]domain.Talent) []domain.Talent {
	var out []domain.Talent
	for _, t := range trees {
		out = append(out, t...)
	}
	return out
}

var raidBossTable = []domain.RaidBoss{
	{
		ID: "ancient_dragon", Name: "Ancient Dragon", BaseHealth: 50000, MinPlayers: 5,
		Abilities: []domain.BossAbility{
			{Name: "fire_breath", Damage: 500, CooldownTicks: 3},
			{Name: "tail_sweep", Damage: 300, CooldownTicks: 2, StunChance: 0.2, StunTicks: 1},
		},
		EnrageAfter: 15 * time.Minute,
		Loot:        []domain.LootEntry{{ItemID: "dragon_scale", Chance: 0.6}, {ItemID: "ancient_artifact", Chance: 0.25}},
		GoldMin:     5000, GoldMax: 10000,
		Title:       "Dragonslayer",
	},
	{
		ID: "titan", Name: "Void Titan", BaseHealth: 75000, MinPlayers: 8,
		Abilities: []domain.BossAbility{
			{Name: "void_slam", Damage: 700, CooldownTicks: 3, StunChance: 0.25, StunTicks: 2},
			{Name: "gravity_well", Damage: 400, CooldownTicks: 2},
		},
		EnrageAfter: 20 * time.Minute,
		Loot:        []domain.LootEntry{{ItemID: "titan_heart", Chance: 0.5}, {ItemID: "void_crystal", Chance: 0.3}},
		GoldMin:     10000, GoldMax: 15000,
		Title:       "Titan Breaker",
	},
	{
		ID: "celestial_being", Name: "Celestial Warden", BaseHealth: 100000, MinPlayers: 10,
		Abilities: []domain.BossAbility{
			{Name: "judgement", Damage: 1000, CooldownTicks: 4},
			{Name: "radiant_bind", Damage: 500, CooldownTicks: 2, StunChance: 0.3, StunTicks: 1},
		},
		EnrageAfter: 25 * time.Minute,
		Loot:        []domain.LootEntry{{ItemID: "celestial_essence", Chance: 0.5}, {ItemID: "divine_shard", Chance: 0.2}},
		GoldMin:     15000, GoldMax: 25000,
		Title:       "Celestial Conqueror",
	},
}
