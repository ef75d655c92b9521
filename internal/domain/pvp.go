package domain

import (
	"time"

	"github.com/google/uuid"
)

// MatchOutcome is the result of a duel from the challenger's side.
type MatchOutcome string

const (
	OutcomeWin  MatchOutcome = "win"
	OutcomeLoss MatchOutcome = "loss"
	OutcomeDraw MatchOutcome = "draw"
)

// PvPMatch is the recorded result of one duel.
type PvPMatch struct {
	ID              uuid.UUID `json:"id"`
	ChallengerID    int64     `json:"challenger_id"`
	OpponentID      int64     `json:"opponent_id"`
	WinnerID        *int64    `json:"winner_id,omitempty"`
	Rounds          int       `json:"rounds"`
	ChallengerHP    int       `json:"challenger_hp"`
	OpponentHP      int       `json:"opponent_hp"`
	RatingDelta     int       `json:"rating_delta"`
	ChallengerHonor int64     `json:"challenger_honor"`
	OpponentHonor   int64     `json:"opponent_honor"`
	CreatedAt       time.Time `json:"created_at"`
}

// Draw reports whether the match ended without a winner.
func (m *PvPMatch) Draw() bool { return m.WinnerID == nil }

// TicketStatus is the lifecycle of a matchmaking ticket.
type TicketStatus string

const (
	TicketQueued    TicketStatus = "queued"
	TicketMatched   TicketStatus = "matched"
	TicketCancelled TicketStatus = "cancelled"
	TicketExpired   TicketStatus = "expired"
	TicketDropped   TicketStatus = "dropped"
)

// QueueTicket is a player's place in the matchmaking queue.
type QueueTicket struct {
	ID         uuid.UUID    `json:"id"`
	PlayerID   int64        `json:"player_id"`
	Rating     int          `json:"rating"`
	Status     TicketStatus `json:"status"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
	ExpiresAt  time.Time    `json:"expires_at"`
	MatchID    *uuid.UUID   `json:"match_id,omitempty"`
}
