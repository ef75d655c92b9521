package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/infra"
	"github.com/attaboy/tower/internal/raid"
	"github.com/google/uuid"
)

// RaidHandler handles raid lobby, combat and stream endpoints.
type RaidHandler struct {
	raids  *raid.Service
	hub    *infra.WSHub
	logger *slog.Logger
}

// NewRaidHandler creates a new RaidHandler.
func NewRaidHandler(svc *raid.Service, hub *infra.WSHub, logger *slog.Logger) *RaidHandler {
	return &RaidHandler{raids: svc, hub: hub, logger: logger}
}

// Create handles POST /raids.
func (h *RaidHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req raid.CreateParams
	if !decodeOrRespond(w, r, &req) {
		return
	}
	st, err := h.raids.Create(r.Context(), req)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, st)
}

// List handles GET /raids.
func (h *RaidHandler) List(w http.ResponseWriter, r *http.Request) {
	raids, err := h.raids.List(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	if raids == nil {
		raids = []*domain.RaidState{}
	}
	RespondJSON(w, http.StatusOK, raids)
}

// Status handles GET /raids/{id}.
func (h *RaidHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	st, err := h.raids.Status(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, st)
}

// Record handles GET /raids/{id}/record, the archived outcome.
func (h *RaidHandler) Record(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	rec, err := h.raids.Archived(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, rec)
}

// History handles GET /players/{id}/raids.
func (h *RaidHandler) History(w http.ResponseWriter, r *http.Request) {
	playerID, err := pathInt64(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	records, err := h.raids.History(r.Context(), playerID, limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	if records == nil {
		records = []*domain.RaidRecord{}
	}
	RespondJSON(w, http.StatusOK, records)
}

type joinRaidRequest struct {
	PlayerID int64           `json:"player_id"`
	Role     domain.RaidRole `json:"role"`
}

// Join handles POST /raids/{id}/members. Joining twice answers 200 with
// joined=false.
func (h *RaidHandler) Join(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	var req joinRaidRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	joined, err := h.raids.Join(r.Context(), id, req.PlayerID, req.Role)
	if err != nil {
		RespondError(w, err)
		return
	}
	status := http.StatusOK
	if joined {
		status = http.StatusCreated
	}
	RespondJSON(w, status, map[string]bool{"joined": joined})
}

// SetReady handles PUT /raids/{id}/members/{playerID}/ready.
func (h *RaidHandler) SetReady(w http.ResponseWriter, r *http.Request) {
	id, playerID, ok := raidAndPlayer(w, r)
	if !ok {
		return
	}
	var req struct {
		Ready bool `json:"ready"`
	}
	if !decodeOrRespond(w, r, &req) {
		return
	}
	if err := h.raids.SetReady(r.Context(), id, playerID, req.Ready); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}

// Leave handles DELETE /raids/{id}/members/{playerID}.
func (h *RaidHandler) Leave(w http.ResponseWriter, r *http.Request) {
	id, playerID, ok := raidAndPlayer(w, r)
	if !ok {
		return
	}
	if err := h.raids.Leave(r.Context(), id, playerID); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}

type raidActorRequest struct {
	PlayerID int64 `json:"player_id"`
	TargetID int64 `json:"target_id,omitempty"`
}

// Start handles POST /raids/{id}/start. A roster below the minimum answers 200
// with started=false.
func (h *RaidHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	var req raidActorRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	started, err := h.raids.Start(r.Context(), id, req.PlayerID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]bool{"started": started})
}

// Attack handles POST /raids/{id}/attack.
func (h *RaidHandler) Attack(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	var req raidActorRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	res, err := h.raids.Attack(r.Context(), id, req.PlayerID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// Heal handles POST /raids/{id}/heal.
func (h *RaidHandler) Heal(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	var req raidActorRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	res, err := h.raids.Heal(r.Context(), id, req.PlayerID, req.TargetID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// Tick handles POST /admin/raids/{id}/tick. A missing or zero seq advances by one.
func (h *RaidHandler) Tick(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	var req struct {
		Seq int64 `json:"seq"`
	}
	if r.ContentLength != 0 && !decodeOrRespond(w, r, &req) {
		return
	}
	report, err := h.raids.Tick(r.Context(), id, req.Seq, time.Now())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, report)
}

// TickAll handles POST /admin/raids/tick.
func (h *RaidHandler) TickAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.raids.TickAll(r.Context(), time.Now())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]int{"applied": n})
}

// Stream handles GET /raids/{id}/stream, a websocket of raid events.
func (h *RaidHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	if _, err := h.raids.Status(r.Context(), id); err != nil {
		RespondError(w, err)
		return
	}
	if err := h.hub.Serve(w, r, raid.Room(id)); err != nil {
		h.logger.Debug("raid stream closed", "raid_id", id, "error", err)
	}
}

func raidAndPlayer(w http.ResponseWriter, r *http.Request) (uuid.UUID, int64, bool) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return uuid.Nil, 0, false
	}
	playerID, err := pathInt64(r, "playerID")
	if err != nil {
		RespondError(w, err)
		return uuid.Nil, 0, false
	}
	return id, playerID, true
}
