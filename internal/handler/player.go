package handler

import (
	"net/http"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/ledger"
	"github.com/attaboy/tower/internal/player"
)

// PlayerHandler handles character registration and progression endpoints.
type PlayerHandler struct {
	players *player.Service
	economy *ledger.Service
}

// NewPlayerHandler creates a new PlayerHandler.
func NewPlayerHandler(players *player.Service, economy *ledger.Service) *PlayerHandler {
	return &PlayerHandler{players: players, economy: economy}
}

// playerResponse combines the character with its cached balances.
type playerResponse struct {
	*domain.Player
	Balances domain.BalanceSheet `json:"balances"`
}

type registerRequest struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
}

// Register handles POST /players.
func (h *PlayerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	p, err := h.players.Register(r.Context(), req.ID, req.Nickname)
	if err != nil {
		RespondError(w, err)
		return
	}
	h.respondPlayer(w, r, http.StatusCreated, p)
}

// Get handles GET /players/{id}.
func (h *PlayerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	p, err := h.players.Get(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	h.respondPlayer(w, r, http.StatusOK, p)
}

// LevelUp handles POST /players/{id}/level-up.
func (h *PlayerHandler) LevelUp(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(id int64) (*domain.Player, error) {
		return h.players.LevelUp(r.Context(), id)
	})
}

// SelectWeapon handles PUT /players/{id}/weapon.
func (h *PlayerHandler) SelectWeapon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WeaponID string `json:"weapon_id"`
	}
	if !decodeOrRespond(w, r, &req) {
		return
	}
	h.mutate(w, r, func(id int64) (*domain.Player, error) {
		return h.players.SelectWeapon(r.Context(), id, req.WeaponID)
	})
}

// LearnSkill handles POST /players/{id}/skills.
func (h *PlayerHandler) LearnSkill(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SkillID string `json:"skill_id"`
	}
	if !decodeOrRespond(w, r, &req) {
		return
	}
	h.mutate(w, r, func(id int64) (*domain.Player, error) {
		return h.players.LearnSkill(r.Context(), id, req.SkillID)
	})
}

// LearnTalent handles POST /players/{id}/talents.
func (h *PlayerHandler) LearnTalent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TalentID string `json:"talent_id"`
	}
	if !decodeOrRespond(w, r, &req) {
		return
	}
	h.mutate(w, r, func(id int64) (*domain.Player, error) {
		return h.players.LearnTalent(r.Context(), id, req.TalentID)
	})
}

// ResetTalents handles POST /players/{id}/talents/reset.
func (h *PlayerHandler) ResetTalents(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(id int64) (*domain.Player, error) {
		return h.players.ResetTalents(r.Context(), id)
	})
}

// Purchase handles POST /players/{id}/purchases.
func (h *PlayerHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID   string `json:"item_id"`
		Quantity int    `json:"quantity"`
	}
	if !decodeOrRespond(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	h.mutate(w, r, func(id int64) (*domain.Player, error) {
		return h.players.Purchase(r.Context(), id, req.ItemID, req.Quantity)
	})
}

// UseUpgrade handles POST /players/{id}/upgrades.
func (h *PlayerHandler) UseUpgrade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID string `json:"item_id"`
	}
	if !decodeOrRespond(w, r, &req) {
		return
	}
	h.mutate(w, r, func(id int64) (*domain.Player, error) {
		return h.players.UseUpgrade(r.Context(), id, req.ItemID)
	})
}

func (h *PlayerHandler) mutate(w http.ResponseWriter, r *http.Request, fn func(id int64) (*domain.Player, error)) {
	id, err := pathInt64(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	p, err := fn(id)
	if err != nil {
		RespondError(w, err)
		return
	}
	h.respondPlayer(w, r, http.StatusOK, p)
}

func (h *PlayerHandler) respondPlayer(w http.ResponseWriter, r *http.Request, status int, p *domain.Player) {
	balances, err := h.economy.CachedBalances(r.Context(), p.ID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, status, playerResponse{Player: p, Balances: balances})
}
