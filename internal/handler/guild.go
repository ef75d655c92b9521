package handler

import (
	"context"
	"net/http"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/guild"
)

// GuildHandler handles guild membership, rank and bank endpoints.
type GuildHandler struct {
	guilds *guild.Service
}

// NewGuildHandler creates a new GuildHandler.
func NewGuildHandler(svc *guild.Service) *GuildHandler {
	return &GuildHandler{guilds: svc}
}

type createGuildRequest struct {
	FounderID int64  `json:"founder_id"`
	Name      string `json:"name"`
	Tag       string `json:"tag"`
}

// Create handles POST /guilds.
func (h *GuildHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createGuildRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	g, err := h.guilds.Create(r.Context(), req.FounderID, req.Name, req.Tag)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, g)
}

// List handles GET /guilds.
func (h *GuildHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	guilds, err := h.guilds.List(r.Context(), limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	if guilds == nil {
		guilds = []*domain.Guild{}
	}
	RespondJSON(w, http.StatusOK, guilds)
}

// Get handles GET /guilds/{id}.
func (h *GuildHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	g, err := h.guilds.Get(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, g)
}

type joinGuildRequest struct {
	PlayerID int64            `json:"player_id"`
	Rank     domain.GuildRank `json:"rank,omitempty"`
}

// Join handles POST /guilds/{id}/members. A duplicate or a full roster answers
// 200 with added=false.
func (h *GuildHandler) Join(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	var req joinGuildRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	if req.Rank == "" {
		req.Rank = domain.RankRecruit
	}
	added, err := h.guilds.AddMember(r.Context(), id, req.PlayerID, req.Rank)
	if err != nil {
		RespondError(w, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	RespondJSON(w, status, map[string]bool{"added": added})
}

type actorRequest struct {
	ActorID int64 `json:"actor_id"`
}

// Promote handles POST /guilds/{id}/members/{playerID}/promote.
func (h *GuildHandler) Promote(w http.ResponseWriter, r *http.Request) {
	h.rankChange(w, r, h.guilds.Promote)
}

// Demote handles POST /guilds/{id}/members/{playerID}/demote.
func (h *GuildHandler) Demote(w http.ResponseWriter, r *http.Request) {
	h.rankChange(w, r, h.guilds.Demote)
}

func (h *GuildHandler) rankChange(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, guildID, actorID, targetID int64) (*domain.GuildMember, error)) {
	guildID, targetID, ok := guildAndPlayer(w, r)
	if !ok {
		return
	}
	var req actorRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	m, err := fn(r.Context(), guildID, req.ActorID, targetID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, m)
}

// RemoveMember handles DELETE /guilds/{id}/members/{playerID}?actor_id=. The
// member leaving on their own omits actor_id or passes their own id.
func (h *GuildHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	guildID, targetID, ok := guildAndPlayer(w, r)
	if !ok {
		return
	}
	actorID, err := queryInt64(r, "actor_id", targetID)
	if err != nil {
		RespondError(w, err)
		return
	}
	if actorID == targetID {
		err = h.guilds.Leave(r.Context(), guildID, targetID)
	} else {
		err = h.guilds.Kick(r.Context(), guildID, actorID, targetID)
	}
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}

type leadershipRequest struct {
	LeaderID    int64 `json:"leader_id"`
	NewLeaderID int64 `json:"new_leader_id"`
}

// TransferLeadership handles POST /guilds/{id}/leadership.
func (h *GuildHandler) TransferLeadership(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	var req leadershipRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	g, err := h.guilds.TransferLeadership(r.Context(), id, req.LeaderID, req.NewLeaderID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, g)
}

type bankItemRequest struct {
	PlayerID int64  `json:"player_id"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// DepositItem handles POST /guilds/{id}/bank/items/deposit.
func (h *GuildHandler) DepositItem(w http.ResponseWriter, r *http.Request) {
	h.bankItem(w, r, h.guilds.DepositToBank)
}

// WithdrawItem handles POST /guilds/{id}/bank/items/withdraw.
func (h *GuildHandler) WithdrawItem(w http.ResponseWriter, r *http.Request) {
	h.bankItem(w, r, h.guilds.WithdrawFromBank)
}

func (h *GuildHandler) bankItem(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, guildID, playerID int64, itemID string, qty int) (*domain.Guild, error)) {
	id, err := pathInt64(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	var req bankItemRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	g, err := fn(r.Context(), id, req.PlayerID, req.ItemID, req.Quantity)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, g)
}

type bankGoldRequest struct {
	PlayerID int64 `json:"player_id"`
	Amount   int64 `json:"amount"`
}

// DepositGold handles POST /guilds/{id}/bank/gold/deposit.
func (h *GuildHandler) DepositGold(w http.ResponseWriter, r *http.Request) {
	h.bankGold(w, r, h.guilds.DepositGold)
}

// WithdrawGold handles POST /guilds/{id}/bank/gold/withdraw.
func (h *GuildHandler) WithdrawGold(w http.ResponseWriter, r *http.Request) {
	h.bankGold(w, r, h.guilds.WithdrawGold)
}

func (h *GuildHandler) bankGold(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, guildID, playerID, amount int64) (*domain.Guild, error)) {
	id, err := pathInt64(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	var req bankGoldRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	g, err := fn(r.Context(), id, req.PlayerID, req.Amount)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, g)
}

// Disband handles DELETE /guilds/{id}?requester_id=.
func (h *GuildHandler) Disband(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	requesterID, err := queryInt64(r, "requester_id", 0)
	if err != nil {
		RespondError(w, err)
		return
	}
	if err := h.guilds.Disband(r.Context(), id, requesterID); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}

// AddExperience handles POST /admin/guilds/{id}/experience.
func (h *GuildHandler) AddExperience(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !decodeOrRespond(w, r, &req) {
		return
	}
	g, leveled, err := h.guilds.AddExperience(r.Context(), id, req.Amount)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"guild": g, "leveled_up": leveled})
}

func guildAndPlayer(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	guildID, err := pathInt64(r, "id")
	if err != nil {
		RespondError(w, err)
		return 0, 0, false
	}
	playerID, err := pathInt64(r, "playerID")
	if err != nil {
		RespondError(w, err)
		return 0, 0, false
	}
	return guildID, playerID, true
}
