package handler

import (
	"log/slog"
	"net/http"

	"github.com/attaboy/tower/internal/infra"
	"github.com/attaboy/tower/internal/player"
)

// FeedHandler streams a player's personal events over websocket.
type FeedHandler struct {
	hub     *infra.WSHub
	players *player.Service
	logger  *slog.Logger
}

// NewFeedHandler creates a new FeedHandler.
func NewFeedHandler(hub *infra.WSHub, players *player.Service, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{hub: hub, players: players, logger: logger}
}

// Player handles GET /players/{id}/stream.
func (h *FeedHandler) Player(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	if _, err := h.players.Get(r.Context(), id); err != nil {
		RespondError(w, err)
		return
	}
	if err := h.hub.Serve(w, r, infra.PlayerRoom(id)); err != nil {
		h.logger.Debug("player stream closed", "player_id", id, "error", err)
	}
}

// Stats handles GET /admin/stats.
func (h *FeedHandler) Stats(extra func() map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := map[string]any{
			"ws_connections": h.hub.ConnectionCount(),
			"ws_rooms":       h.hub.RoomCount(),
		}
		if extra != nil {
			for k, v := range extra() {
				stats[k] = v
			}
		}
		RespondJSON(w, http.StatusOK, stats)
	}
}
