package domain

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

func newDraft(agg AggregateType, aggID string, evt EventType, partition string, payload any) OutboxDraft {
	body, _ := json.Marshal(payload)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: agg,
		AggregateID:   aggID,
		EventType:     evt,
		PartitionKey:  partition,
		Headers:       json.RawMessage(`{}`),
		Payload:       body,
		OccurredAt:    time.Now(),
	}
}

func playerKey(id int64) string { return strconv.FormatInt(id, 10) }

// NewTransactionPostedEvent creates the standard ledger event for a posted record.
func NewTransactionPostedEvent(tx *TransactionRecord) OutboxDraft {
	key := "sink"
	if tx.PlayerID != nil {
		key = playerKey(*tx.PlayerID)
	}
	return newDraft(AggregateLedger, key, EventTransactionPosted, key, tx)
}

// NewPlayerRegisteredEvent creates a player lifecycle event.
func NewPlayerRegisteredEvent(p *Player) OutboxDraft {
	return newDraft(AggregatePlayer, playerKey(p.ID), EventPlayerRegistered, playerKey(p.ID), map[string]any{
		"player_id": p.ID,
		"nickname":  p.Nickname,
	})
}

// NewPlayerLeveledUpEvent records a character level-up.
func NewPlayerLeveledUpEvent(p *Player) OutboxDraft {
	return newDraft(AggregatePlayer, playerKey(p.ID), EventPlayerLeveledUp, playerKey(p.ID), map[string]any{
		"player_id": p.ID,
		"level":     p.Level,
		"max_hp":    p.MaxHP,
	})
}

// NewPlayerDiedEvent records a permadeath reset.
func NewPlayerDiedEvent(playerID int64, deaths int) OutboxDraft {
	return newDraft(AggregatePlayer, playerKey(playerID), EventPlayerDied, playerKey(playerID), map[string]any{
		"player_id": playerID,
		"deaths":    deaths,
	})
}

// CombatOutcome is the terminal result of a PvE encounter.
type CombatOutcome string

const (
	CombatVictory CombatOutcome = "victory"
	CombatDefeat  CombatOutcome = "defeat"
	CombatFled    CombatOutcome = "fled"
)

// NewCombatResolvedEvent records the outcome of a PvE encounter.
func NewCombatResolvedEvent(playerID int64, sessionID uuid.UUID, opponent string, outcome CombatOutcome, gold int64, exp int, loot []string) OutboxDraft {
	return newDraft(AggregateCombat, sessionID.String(), EventCombatResolved, playerKey(playerID), map[string]any{
		"player_id":  playerID,
		"session_id": sessionID,
		"opponent":   opponent,
		"outcome":    outcome,
		"gold":       gold,
		"exp":        exp,
		"loot":       loot,
	})
}

// NewGuildEvent creates a guild aggregate event with a free-form payload.
func NewGuildEvent(guildID int64, evt EventType, payload map[string]any) OutboxDraft {
	key := playerKey(guildID)
	if payload == nil {
		payload = map[string]any{}
	}
	payload["guild_id"] = guildID
	return newDraft(AggregateGuild, key, evt, key, payload)
}

// NewRaidFinishedEvent records the archival of a raid.
func NewRaidFinishedEvent(rec *RaidRecord) OutboxDraft {
	evt := EventRaidCompleted
	if rec.Status == RaidFailed {
		evt = EventRaidFailed
	}
	return newDraft(AggregateRaid, rec.ID.String(), evt, rec.ID.String(), rec)
}

// NewPvPMatchRecordedEvent records a finished duel.
func NewPvPMatchRecordedEvent(m *PvPMatch) OutboxDraft {
	return newDraft(AggregatePvP, m.ID.String(), EventPvPMatchRecorded, playerKey(m.ChallengerID), m)
}
