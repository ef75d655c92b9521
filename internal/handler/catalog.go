package handler

import (
	"net/http"

	"github.com/attaboy/tower/internal/catalog"
	"github.com/attaboy/tower/internal/domain"
	"github.com/go-chi/chi/v5"
)

// CatalogHandler serves the static game content.
type CatalogHandler struct {
	content *catalog.Catalog
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(content *catalog.Catalog) *CatalogHandler {
	return &CatalogHandler{content: content}
}

// Weapons handles GET /catalog/weapons.
func (h *CatalogHandler) Weapons(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.content.Weapons())
}

// Shop handles GET /catalog/shop.
func (h *CatalogHandler) Shop(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.content.ShopItems())
}

// Talents handles GET /catalog/weapons/{weaponID}/talents.
func (h *CatalogHandler) Talents(w http.ResponseWriter, r *http.Request) {
	weaponID := chi.URLParam(r, "weaponID")
	if _, ok := h.content.Weapon(weaponID); !ok {
		RespondError(w, domain.ErrNotFound("weapon", weaponID))
		return
	}
	RespondJSON(w, http.StatusOK, h.content.TalentTree(weaponID))
}

// RaidBosses handles GET /catalog/raid-bosses.
func (h *CatalogHandler) RaidBosses(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.content.RaidBosses())
}
