package handler

import (
	"net/http"

	"github.com/attaboy/tower/internal/combat"
	"github.com/attaboy/tower/internal/domain"
	"github.com/go-chi/chi/v5"
)

// CombatHandler handles PvE encounter endpoints.
type CombatHandler struct {
	combat *combat.Service
}

// NewCombatHandler creates a new CombatHandler.
func NewCombatHandler(svc *combat.Service) *CombatHandler {
	return &CombatHandler{combat: svc}
}

type startCombatRequest struct {
	PlayerID int64 `json:"player_id"`
	combat.OpponentSpec
}

// Start handles POST /combat/sessions.
func (h *CombatHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startCombatRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	sess, err := h.combat.Start(r.Context(), req.PlayerID, req.OpponentSpec)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, sess)
}

// Get handles GET /combat/sessions/{id}.
func (h *CombatHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	sess, err := h.combat.Get(id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, sess)
}

// Act handles POST /combat/sessions/{id}/actions.
func (h *CombatHandler) Act(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	var action combat.Action
	if !decodeOrRespond(w, r, &action) {
		return
	}
	res, err := h.combat.Act(r.Context(), id, action)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// Active handles GET /players/{id}/combat.
func (h *CombatHandler) Active(w http.ResponseWriter, r *http.Request) {
	playerID, err := pathInt64(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	sess, ok := h.combat.ActiveFor(playerID)
	if !ok {
		RespondError(w, domain.ErrNotFound("active encounter for player", chi.URLParam(r, "id")))
		return
	}
	RespondJSON(w, http.StatusOK, sess)
}
