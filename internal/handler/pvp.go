package handler

import (
	"net/http"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/pvp"
)

// PvPHandler handles duel and matchmaking endpoints.
type PvPHandler struct {
	pvp *pvp.Service
}

// NewPvPHandler creates a new PvPHandler.
func NewPvPHandler(svc *pvp.Service) *PvPHandler {
	return &PvPHandler{pvp: svc}
}

type duelRequest struct {
	ChallengerID int64 `json:"challenger_id"`
	OpponentID   int64 `json:"opponent_id"`
}

// Duel handles POST /pvp/duels.
func (h *PvPHandler) Duel(w http.ResponseWriter, r *http.Request) {
	var req duelRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	m, err := h.pvp.Duel(r.Context(), req.ChallengerID, req.OpponentID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, m)
}

// History handles GET /players/{id}/duels.
func (h *PvPHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	matches, err := h.pvp.History(r.Context(), id, limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	if matches == nil {
		matches = []*domain.PvPMatch{}
	}
	RespondJSON(w, http.StatusOK, matches)
}

// Enqueue handles POST /pvp/queue.
func (h *PvPHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID int64 `json:"player_id"`
	}
	if !decodeOrRespond(w, r, &req) {
		return
	}
	ticket, err := h.pvp.Enqueue(r.Context(), req.PlayerID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, ticket)
}

// Ticket handles GET /pvp/queue/{ticketID}.
func (h *PvPHandler) Ticket(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "ticketID")
	if err != nil {
		RespondError(w, err)
		return
	}
	ticket, err := h.pvp.Status(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, ticket)
}

// Cancel handles DELETE /pvp/queue/{ticketID}?player_id=.
func (h *PvPHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "ticketID")
	if err != nil {
		RespondError(w, err)
		return
	}
	playerID, err := queryInt64(r, "player_id", 0)
	if err != nil {
		RespondError(w, err)
		return
	}
	if err := h.pvp.Cancel(r.Context(), id, playerID); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}

// Match handles POST /admin/pvp/match, one matchmaking pass.
func (h *PvPHandler) Match(w http.ResponseWriter, r *http.Request) {
	pairings, err := h.pvp.MatchPending(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	if pairings == nil {
		pairings = []pvp.Pairing{}
	}
	RespondJSON(w, http.StatusOK, pairings)
}
