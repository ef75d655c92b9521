package handler

import (
	"net/http"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/ledger"
)

// EconomyHandler handles balance, history and currency movement endpoints.
type EconomyHandler struct {
	ledger     *ledger.Service
	defaultFee float64
}

// NewEconomyHandler creates a new EconomyHandler. defaultFee applies when a
// transfer or conversion omits fee_percent.
func NewEconomyHandler(svc *ledger.Service, defaultFee float64) *EconomyHandler {
	return &EconomyHandler{ledger: svc, defaultFee: defaultFee}
}

// Balance handles GET /economy/players/{id}/balance. With ?currency= it returns
// the single amount, otherwise the whole sheet.
func (h *EconomyHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	if raw := r.URL.Query().Get("currency"); raw != "" {
		currency, err := domain.ParseCurrency(raw)
		if err != nil {
			RespondError(w, err)
			return
		}
		amount, err := h.ledger.GetBalance(r.Context(), id, currency)
		if err != nil {
			RespondError(w, err)
			return
		}
		RespondJSON(w, http.StatusOK, map[string]any{"player_id": id, "currency": currency, "amount": amount})
		return
	}
	sheet, err := h.ledger.GetBalances(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"player_id": id, "balances": sheet})
}

// Transactions handles GET /economy/players/{id}/transactions.
func (h *EconomyHandler) Transactions(w http.ResponseWriter, r *http.Request) {
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
	var currency *domain.Currency
	if raw := r.URL.Query().Get("currency"); raw != "" {
		c := domain.Currency(raw)
		currency = &c
	}
	records, err := h.ledger.GetTransactionHistory(r.Context(), id, limit, currency)
	if err != nil {
		RespondError(w, err)
		return
	}
	if records == nil {
		records = []*domain.TransactionRecord{}
	}
	RespondJSON(w, http.StatusOK, records)
}

// Audit handles GET /economy/players/{id}/audit.
func (h *EconomyHandler) Audit(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	report, err := h.ledger.Audit(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, report)
}

type adjustRequest struct {
	PlayerID int64                  `json:"player_id"`
	Currency domain.Currency        `json:"currency"`
	Delta    int64                  `json:"delta"`
	Type     domain.TransactionType `json:"tx_type"`
	Details  map[string]any         `json:"details,omitempty"`
}

// Adjust handles POST /economy/adjust.
func (h *EconomyHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	if req.Type == "" {
		req.Type = domain.TxAdminAdjust
	}
	res, err := h.ledger.AdjustBalance(r.Context(), domain.AdjustParams{
		PlayerID: req.PlayerID,
		Currency: req.Currency,
		Delta:    req.Delta,
		Type:     req.Type,
		Details:  req.Details,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

type transferRequest struct {
	FromID     int64           `json:"from_id"`
	ToID       int64           `json:"to_id"`
	Currency   domain.Currency `json:"currency"`
	Amount     int64           `json:"amount"`
	FeePercent *float64        `json:"fee_percent,omitempty"`
}

// Transfer handles POST /economy/transfers.
func (h *EconomyHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	res, err := h.ledger.Transfer(r.Context(), domain.TransferParams{
		FromID:     req.FromID,
		ToID:       req.ToID,
		Currency:   req.Currency,
		Amount:     req.Amount,
		FeePercent: h.fee(req.FeePercent),
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

type convertRequest struct {
	PlayerID   int64           `json:"player_id"`
	From       domain.Currency `json:"from"`
	To         domain.Currency `json:"to"`
	Amount     int64           `json:"amount"`
	FeePercent *float64        `json:"fee_percent,omitempty"`
}

// Convert handles POST /economy/conversions.
func (h *EconomyHandler) Convert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if !decodeOrRespond(w, r, &req) {
		return
	}
	res, err := h.ledger.Convert(r.Context(), domain.ConvertParams{
		PlayerID:   req.PlayerID,
		From:       req.From,
		To:         req.To,
		Amount:     req.Amount,
		FeePercent: h.fee(req.FeePercent),
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

func (h *EconomyHandler) fee(requested *float64) float64 {
	if requested != nil {
		return *requested
	}
	return h.defaultFee
}
