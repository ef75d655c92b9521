package combat

import (
	"fmt"

	"github.com/attaboy/tower/internal/domain"
)

// itemPenTurns is how long an armor penetration consumable lasts.
const itemPenTurns = 3

// applyItemEffect is the single dispatch point for consumable effects. Buffs land on
// the player; harmful effects land on the opponent.
func applyItemEffect(s *Session, e domain.Effect) TurnEvent {
	switch v := e.(type) {
	case domain.HealFlat:
		healed := s.Player.heal(v.Amount)
		return TurnEvent{Actor: ActorPlayer, Kind: EventHeal, Amount: healed}
	case domain.StatBuffTimed:
		st, _ := domain.AsStatus(v)
		s.Player.Statuses = append(s.Player.Statuses, st)
		return TurnEvent{Actor: ActorPlayer, Kind: EventBuff, Amount: v.Amount, Detail: string(v.Stat)}
	case domain.CritChanceBonus:
		st, _ := domain.AsStatus(v)
		s.Player.Statuses = append(s.Player.Statuses, st)
		return TurnEvent{Actor: ActorPlayer, Kind: EventBuff, Detail: "crit_chance"}
	case domain.ArmorPenetration:
		s.Player.Statuses = append(s.Player.Statuses, domain.StatusEffect{
			Kind: domain.EffectArmorPenetration, Fraction: v.Fraction, Remaining: itemPenTurns,
		})
		return TurnEvent{Actor: ActorPlayer, Kind: EventBuff, Detail: "armor_penetration"}
	case domain.DamageOverTime:
		st, _ := domain.AsStatus(v)
		s.Opponent.Statuses = append(s.Opponent.Statuses, st)
		return TurnEvent{Actor: ActorOpponent, Kind: EventPoisoned, Amount: v.PerTurn}
	case domain.StunTurns:
		st, _ := domain.AsStatus(v)
		s.Opponent.Statuses = append(s.Opponent.Statuses, st)
		return TurnEvent{Actor: ActorOpponent, Kind: EventStunned, Amount: v.Turns}
	}
	// Effect is sealed in domain; every variant is handled above.
	return TurnEvent{Actor: ActorPlayer, Kind: EventItem, Detail: fmt.Sprintf("%T", e)}
}

// tickDamageOverTime applies every active DoT on a status list and returns the total.
func tickDamageOverTime(statuses domain.Statuses) int {
	total := 0
	for _, st := range statuses {
		if st.Kind == domain.EffectDamageOverTime && st.Remaining > 0 {
			total += st.Magnitude
		}
	}
	return total
}
