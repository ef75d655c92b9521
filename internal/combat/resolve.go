package combat

import (
	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/rng"
	"github.com/google/uuid"
)

// Actor names the side an event happened to or came from.
type Actor string

const (
	ActorPlayer   Actor = "player"
	ActorOpponent Actor = "opponent"
)

// EventKind tags one step of a turn for the presentation layer.
type EventKind string

const (
	EventHit         EventKind = "hit"
	EventCrit        EventKind = "crit"
	EventDodge       EventKind = "dodge"
	EventHeal        EventKind = "heal"
	EventBuff        EventKind = "buff"
	EventItem        EventKind = "item"
	EventPoisoned    EventKind = "poisoned"
	EventPoisonTick  EventKind = "poison_tick"
	EventStunned     EventKind = "stunned"
	EventStunSkip    EventKind = "stun_skip"
	EventDefend      EventKind = "defend"
	EventFleeFailed  EventKind = "flee_failed"
	EventFled        EventKind = "fled"
	EventRegen       EventKind = "regen"
	EventLifeSteal   EventKind = "life_steal"
	EventSelfDamage  EventKind = "self_damage"
	EventVictory     EventKind = "victory"
	EventDefeat      EventKind = "defeat"
	EventLootDropped EventKind = "loot"
)

// TurnEvent is one thing that happened during a turn.
type TurnEvent struct {
	Actor  Actor     `json:"actor"`
	Kind   EventKind `json:"kind"`
	Amount int       `json:"amount,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// TurnResult reports what one action did.
type TurnResult struct {
	SessionID  uuid.UUID   `json:"session_id"`
	Turn       int         `json:"turn"`
	Action     ActionKind  `json:"action"`
	Events     []TurnEvent `json:"events"`
	PlayerHP   int         `json:"player_hp"`
	OpponentHP int         `json:"opponent_hp"`
	Status     Status      `json:"status"`
	Reward     *Reward     `json:"reward,omitempty"`
	GoldLost   int64       `json:"gold_lost,omitempty"`
	Permadeath bool        `json:"permadeath,omitempty"`
}

const (
	penaltyMin = 10
	penaltyMax = 50
)

// Resolve applies one action and returns the next session state. The input is never
// modified. Draw order is fixed so a seeded source replays identically:
// opponent dodge, crit, stun for the player's strike; flee; then opponent poison and
// stun; then victory gold and loot or the defeat penalty.
func Resolve(in *Session, action Action, src rng.Source) (*Session, *TurnResult, error) {
	if in.Status.Terminal() {
		return nil, nil, domain.ErrEncounterResolved(in.ID.String())
	}
	s := in.Clone()
	r := &turn{s: s, src: src, res: &TurnResult{SessionID: s.ID, Turn: s.Turn, Action: action.Kind}}

	// Using an item does not take the turn: the opponent does not act and
	// statuses do not tick.
	if action.Kind == ActionUseItem {
		if err := validateItem(action.Item); err != nil {
			return nil, nil, err
		}
		r.emit(TurnEvent{Actor: ActorPlayer, Kind: EventItem, Detail: action.Item.ID})
		for _, e := range action.Item.Effects {
			r.emit(applyItemEffect(s, e))
		}
		return s, r.finish(), nil
	}

	skill, err := r.validate(action)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case s.Player.Statuses.Has(domain.EffectStunTurns):
		s.Player.Statuses = s.Player.Statuses.Consume(domain.EffectStunTurns)
		r.emit(TurnEvent{Actor: ActorPlayer, Kind: EventStunSkip})
	case action.Kind == ActionAttack, action.Kind == ActionUseSkill:
		r.playerStrike(skill)
	case action.Kind == ActionDefend:
		s.Player.Defending = true
		r.emit(TurnEvent{Actor: ActorPlayer, Kind: EventDefend})
	case action.Kind == ActionFlee:
		if rng.Chance(src, s.Player.FleeChance()) {
			s.Status = StatusFled
			r.emit(TurnEvent{Actor: ActorPlayer, Kind: EventFled})
			return s, r.finish(), nil
		}
		r.emit(TurnEvent{Actor: ActorPlayer, Kind: EventFleeFailed})
	}

	if s.Opponent.HP <= 0 {
		r.victory()
		return s, r.finish(), nil
	}

	r.opponentTurn()
	if s.Player.HP <= 0 {
		r.defeat()
		return s, r.finish(), nil
	}

	r.endOfTurn()
	return s, r.finish(), nil
}

func validateItem(item *domain.Item) error {
	if item == nil {
		return domain.ErrInvalidAction("use_item requires an item")
	}
	if item.Kind != domain.ItemConsumable || len(item.Effects) == 0 {
		return domain.ErrInvalidAction("item " + item.ID + " cannot be used in combat").With("item_id", item.ID)
	}
	return nil
}

type turn struct {
	s   *Session
	src rng.Source
	res *TurnResult
}

func (r *turn) emit(e TurnEvent) { r.res.Events = append(r.res.Events, e) }

func (r *turn) finish() *TurnResult {
	r.res.PlayerHP = r.s.Player.HP
	r.res.OpponentHP = r.s.Opponent.HP
	r.res.Status = r.s.Status
	if r.s.Reward != nil {
		rw := *r.s.Reward
		r.res.Reward = &rw
	}
	return r.res
}

func (r *turn) validate(action Action) (domain.Skill, error) {
	switch action.Kind {
	case ActionAttack, ActionDefend, ActionFlee:
		return domain.Skill{}, nil
	case ActionUseSkill:
		p := &r.s.Player
		if p.Weapon == nil {
			return domain.Skill{}, domain.ErrInvalidAction("no weapon equipped")
		}
		sk, ok := p.Weapon.Skills[action.SkillID]
		if !ok || !p.HasSkill(action.SkillID) {
			return domain.Skill{}, domain.ErrInvalidAction("skill " + action.SkillID + " is not available").With("skill_id", action.SkillID)
		}
		return sk, nil
	}
	return domain.Skill{}, domain.ErrInvalidAction("unknown action: " + string(action.Kind)).With("action", string(action.Kind))
}

// playerStrike lands the player's attack unless the opponent dodges first.
func (r *turn) playerStrike(sk domain.Skill) {
	p, o := &r.s.Player, &r.s.Opponent

	if o.Traits.DodgeChance > 0 && rng.Chance(r.src, o.Traits.DodgeChance) {
		r.emit(TurnEvent{Actor: ActorOpponent, Kind: EventDodge, Detail: sk.ID})
		return
	}

	h := Strike(p, o.Defense, sk, r.src, StrikeMods{})
	o.HP = max(0, o.HP-h.Total)

	kind := EventHit
	if h.Crit {
		kind = EventCrit
	}
	r.emit(TurnEvent{Actor: ActorPlayer, Kind: kind, Amount: h.Total, Detail: sk.ID})

	if h.StunTurns > 0 {
		o.Statuses = append(o.Statuses, domain.StatusEffect{Kind: domain.EffectStunTurns, Remaining: h.StunTurns})
		r.emit(TurnEvent{Actor: ActorOpponent, Kind: EventStunned, Amount: h.StunTurns})
	}
	healed, self := p.Recoil(h)
	if healed > 0 {
		r.emit(TurnEvent{Actor: ActorPlayer, Kind: EventLifeSteal, Amount: healed})
	}
	if self > 0 {
		r.emit(TurnEvent{Actor: ActorPlayer, Kind: EventSelfDamage, Amount: self})
	}
}

func (r *turn) opponentTurn() {
	p, o := &r.s.Player, &r.s.Opponent

	if o.Statuses.Has(domain.EffectStunTurns) {
		o.Statuses = o.Statuses.Consume(domain.EffectStunTurns)
		r.emit(TurnEvent{Actor: ActorOpponent, Kind: EventStunSkip})
		return
	}

	dmg := BaseDamage(o.Attack, p.DefensePower())
	if p.Defending {
		dmg = max(1, dmg/2)
	}
	p.HP = max(0, p.HP-dmg)
	r.emit(TurnEvent{Actor: ActorOpponent, Kind: EventHit, Amount: dmg})

	t := o.Traits
	if t.LifeSteal > 0 {
		if healed := o.heal(int(float64(dmg) * t.LifeSteal)); healed > 0 {
			r.emit(TurnEvent{Actor: ActorOpponent, Kind: EventLifeSteal, Amount: healed})
		}
	}
	if t.PoisonChance > 0 && rng.Chance(r.src, t.PoisonChance) {
		p.Statuses = append(p.Statuses, domain.StatusEffect{
			Kind: domain.EffectDamageOverTime, Magnitude: t.PoisonDamage, Remaining: max(1, t.PoisonTurns),
		})
		r.emit(TurnEvent{Actor: ActorPlayer, Kind: EventPoisoned, Amount: t.PoisonDamage})
	}
	if t.StunChance > 0 && rng.Chance(r.src, t.StunChance) {
		p.Statuses = append(p.Statuses, domain.StatusEffect{Kind: domain.EffectStunTurns, Remaining: 1})
		r.emit(TurnEvent{Actor: ActorPlayer, Kind: EventStunned, Amount: 1})
	}
}

// endOfTurn ticks damage over time and regeneration, expires timed statuses and
// clears the defend flag. Stuns expire only when they make someone skip a turn.
func (r *turn) endOfTurn() {
	p, o := &r.s.Player, &r.s.Opponent

	if dot := tickDamageOverTime(o.Statuses); dot > 0 {
		o.HP = max(0, o.HP-dot)
		r.emit(TurnEvent{Actor: ActorOpponent, Kind: EventPoisonTick, Amount: dot})
		if o.HP <= 0 {
			r.victory()
			return
		}
	}
	if dot := tickDamageOverTime(p.Statuses); dot > 0 {
		p.HP = max(0, p.HP-dot)
		r.emit(TurnEvent{Actor: ActorPlayer, Kind: EventPoisonTick, Amount: dot})
		if p.HP <= 0 {
			r.defeat()
			return
		}
	}
	if o.Traits.Regen > 0 {
		if healed := o.heal(o.Traits.Regen); healed > 0 {
			r.emit(TurnEvent{Actor: ActorOpponent, Kind: EventRegen, Amount: healed})
		}
	}

	p.Statuses = tickTimed(p.Statuses)
	o.Statuses = tickTimed(o.Statuses)
	p.Defending = false
	r.s.Turn++
}

func tickTimed(st domain.Statuses) domain.Statuses {
	out := st[:0:0]
	for _, e := range st {
		if e.Kind != domain.EffectStunTurns {
			e.Remaining--
		}
		if e.Remaining > 0 {
			out = append(out, e)
		}
	}
	return out
}

func (r *turn) victory() {
	o := &r.s.Opponent
	reward := &Reward{Exp: o.XP, Gold: r.src.Range(o.GoldMin, o.GoldMax)}
	if len(o.Loot) > 0 && rng.Chance(r.src, o.LootChance) {
		item := o.Loot[r.src.IntN(len(o.Loot))]
		reward.Loot = append(reward.Loot, item)
		r.emit(TurnEvent{Actor: ActorPlayer, Kind: EventLootDropped, Detail: item})
	}
	r.s.Reward = reward
	r.s.Status = StatusVictory
	r.s.Player.Defending = false
	r.emit(TurnEvent{Actor: ActorPlayer, Kind: EventVictory, Amount: reward.Exp})
}

func (r *turn) defeat() {
	r.s.PenaltyRoll = r.src.Range(penaltyMin, penaltyMax)
	r.s.Status = StatusDefeat
	r.s.Player.Defending = false
	r.emit(TurnEvent{Actor: ActorPlayer, Kind: EventDefeat})
}
