package spread

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sapp/margin-engine/internal/api"
	"github.com/sapp/margin-engine/internal/auth"
	"github.com/sapp/margin-engine/internal/market"
	"github.com/sapp/margin-engine/internal/model"
	"github.com/sapp/margin-engine/internal/oracle"
	"github.com/sapp/margin-engine/internal/store"
)

// OpenRequest is the JSON body for POST /api/v1/spreads.
type OpenRequest struct {
	Trader   string          `json:"trader"`
	Leg1     string          `json:"leg1"`
	Leg2     string          `json:"leg2"`
	Leg1Size decimal.Decimal `json:"leg1_size"`
	Leg2Size decimal.Decimal `json:"leg2_size"`
	Margin   decimal.Decimal `json:"margin"`
}

// OpenResponse is returned from POST /api/v1/spreads.
type OpenResponse struct {
	SpreadID uint64 `json:"spread_id"`
}

// CloseResponse is returned from POST /api/v1/spreads/{spreadID}/close.
type CloseResponse struct {
	SpreadID uint64          `json:"spread_id"`
	PnL      decimal.Decimal `json:"pnl"`
}

// HandleOpen handles POST /api/v1/spreads.
func (s *Service) HandleOpen(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.Caller(r)
	if err != nil {
		api.WriteError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Trader == "" {
		api.WriteError(w, "trader is required", http.StatusBadRequest)
		return
	}

	leg1, err := model.ParseExclusiveMarket(req.Leg1)
	if err != nil {
		api.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}
	leg2, err := model.ParseExclusiveMarket(req.Leg2)
	if err != nil {
		api.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := s.Open(r.Context(), caller, req.Trader, leg1, leg2, req.Leg1Size, req.Leg2Size, req.Margin)
	if err != nil {
		writeSpreadError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusCreated, OpenResponse{SpreadID: id})
}

// HandleClose handles POST /api/v1/spreads/{spreadID}/close.
func (s *Service) HandleClose(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.Caller(r)
	if err != nil {
		api.WriteError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	id, ok := spreadID(w, r)
	if !ok {
		return
	}

	pnl, err := s.Close(r.Context(), caller, id)
	if err != nil {
		writeSpreadError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, CloseResponse{SpreadID: id, PnL: pnl})
}

// HandleGet handles GET /api/v1/spreads/{spreadID}.
func (s *Service) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := spreadID(w, r)
	if !ok {
		return
	}

	position, err := s.Position(r.Context(), id)
	if err != nil {
		writeSpreadError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, position)
}

func spreadID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "spreadID"), 10, 64)
	if err != nil {
		api.WriteError(w, "invalid spread position id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeSpreadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrNotAuthorized):
		api.WriteError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrSpreadPositionNotFound):
		api.WriteError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrUnbalancedSpread),
		errors.Is(err, ErrInsufficientMargin):
		api.WriteError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, market.ErrMarketNotRegistered),
		errors.Is(err, oracle.ErrPriceNotAvailable),
		errors.Is(err, store.ErrNotInitialized):
		api.WriteError(w, err.Error(), http.StatusConflict)
	default:
		api.WriteError(w, err.Error(), http.StatusInternalServerError)
	}
}
