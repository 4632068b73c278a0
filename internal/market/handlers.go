package market

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/sapp/margin-engine/internal/api"
	"github.com/sapp/margin-engine/internal/auth"
	"github.com/sapp/margin-engine/internal/model"
	"github.com/sapp/margin-engine/internal/oracle"
	"github.com/sapp/margin-engine/internal/store"
)

// RegisterRequest is the JSON body for POST /api/v1/exclusive/markets.
type RegisterRequest struct {
	Market         string          `json:"market"`
	Exchange       string          `json:"exchange"`
	OracleFeed     string          `json:"oracle_feed"`
	TickSize       decimal.Decimal `json:"tick_size"`
	ContractSize   decimal.Decimal `json:"contract_size"`
	MinMarginRatio decimal.Decimal `json:"min_margin_ratio"`
	SettlementType string          `json:"settlement_type"`
}

// HandleRegister handles POST /api/v1/exclusive/markets (admin).
func (r *Registry) HandleRegister(w http.ResponseWriter, req *http.Request) {
	caller, err := auth.Caller(req)
	if err != nil {
		api.WriteError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var body RegisterRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	m, err := model.ParseExclusiveMarket(body.Market)
	if err != nil {
		api.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.SettlementType != model.SettlementCash && body.SettlementType != model.SettlementPhysical {
		api.WriteError(w, "settlement_type must be cash or physical", http.StatusBadRequest)
		return
	}

	cfg := &model.ExclusiveDerivative{
		Market:         m,
		Exchange:       body.Exchange,
		OracleFeed:     body.OracleFeed,
		TickSize:       body.TickSize,
		ContractSize:   body.ContractSize,
		MinMarginRatio: body.MinMarginRatio,
		SettlementType: body.SettlementType,
	}

	if err := r.Register(req.Context(), caller, cfg); err != nil {
		switch {
		case errors.Is(err, auth.ErrNotAuthorized):
			api.WriteError(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, store.ErrNotInitialized):
			api.WriteError(w, err.Error(), http.StatusConflict)
		default:
			api.WriteError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	api.WriteJSON(w, http.StatusCreated, cfg)
}

// HandleSpreadPrice handles GET /api/v1/exclusive/spread?leg1=WTI&leg2=BRENT.
func (r *Registry) HandleSpreadPrice(w http.ResponseWriter, req *http.Request) {
	leg1, err := model.ParseExclusiveMarket(req.URL.Query().Get("leg1"))
	if err != nil {
		api.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}
	leg2, err := model.ParseExclusiveMarket(req.URL.Query().Get("leg2"))
	if err != nil {
		api.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	spread, err := r.SpreadPrice(req.Context(), leg1, leg2)
	if err != nil {
		if errors.Is(err, oracle.ErrPriceNotAvailable) {
			api.WriteError(w, err.Error(), http.StatusConflict)
			return
		}
		api.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]string{
		"leg1":   string(leg1),
		"leg2":   string(leg2),
		"spread": spread.String(),
	})
}
