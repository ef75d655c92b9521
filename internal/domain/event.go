package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventPlayerRegistered   EventType = "tower.player.registered"
	EventPlayerLeveledUp    EventType = "tower.player.leveled_up"
	EventPlayerDied         EventType = "tower.player.died"
	EventTransactionPosted  EventType = "tower.ledger.transaction.posted"
	EventCombatResolved     EventType = "tower.combat.resolved"
	EventGuildCreated       EventType = "tower.guild.created"
	EventGuildMemberChanged EventType = "tower.guild.member.changed"
	EventGuildBankChanged   EventType = "tower.guild.bank.changed"
	EventGuildLeveledUp     EventType = "tower.guild.leveled_up"
	EventGuildDisbanded     EventType = "tower.guild.disbanded"
	EventRaidCompleted      EventType = "tower.raid.completed"
	EventRaidFailed         EventType = "tower.raid.failed"
	EventPvPMatchRecorded   EventType = "tower.pvp.match.recorded"
)

// EventTypes lists every event type written to the outbox.
func EventTypes() []EventType {
	return []EventType{
		EventPlayerRegistered, EventPlayerLeveledUp, EventPlayerDied,
		EventTransactionPosted, EventCombatResolved,
		EventGuildCreated, EventGuildMemberChanged, EventGuildBankChanged, EventGuildLeveledUp, EventGuildDisbanded,
		EventRaidCompleted, EventRaidFailed, EventPvPMatchRecorded,
	}
}

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregatePlayer AggregateType = "player"
	AggregateLedger AggregateType = "ledger"
	AggregateCombat AggregateType = "combat"
	AggregateGuild  AggregateType = "guild"
	AggregateRaid   AggregateType = "raid"
	AggregatePvP    AggregateType = "pvp"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// OutboxRow is an unpublished outbox entry as read back by the poller.
type OutboxRow struct {
	ID            int64
	EventID       uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	PartitionKey  string
	Headers       json.RawMessage
	Payload       json.RawMessage
	OccurredAt    time.Time
}
