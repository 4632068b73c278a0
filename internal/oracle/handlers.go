package oracle

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sapp/margin-engine/internal/api"
	"github.com/sapp/margin-engine/internal/auth"
	"github.com/sapp/margin-engine/internal/model"
	"github.com/sapp/margin-engine/internal/store"
)

// UpdatePriceRequest is the JSON body for POST /api/v1/prices.
type UpdatePriceRequest struct {
	Asset string          `json:"asset"`
	Price decimal.Decimal `json:"price"`
}

// UpdateExclusivePriceRequest is the JSON body for POST /api/v1/exclusive/prices.
type UpdateExclusivePriceRequest struct {
	Market string          `json:"market"`
	Price  decimal.Decimal `json:"price"`
}

// HandleUpdatePrice handles POST /api/v1/prices (admin).
func (g *Gateway) HandleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.Caller(r)
	if err != nil {
		api.WriteError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var req UpdatePriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Asset == "" {
		api.WriteError(w, "asset is required", http.StatusBadRequest)
		return
	}

	if err := g.UpdatePrice(r.Context(), caller, req.Asset, req.Price); err != nil {
		switch {
		case errors.Is(err, auth.ErrNotAuthorized):
			api.WriteError(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, ErrInvalidPrice):
			api.WriteError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, store.ErrNotInitialized):
			api.WriteError(w, err.Error(), http.StatusConflict)
		default:
			api.WriteError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]string{
		"asset": req.Asset,
		"price": req.Price.String(),
	})
}

// HandleAssetPrice handles GET /api/v1/prices/{asset}.
func (g *Gateway) HandleAssetPrice(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")

	price, err := g.AssetPrice(r.Context(), asset)
	if err != nil {
		switch {
		case errors.Is(err, ErrPriceNotFound):
			api.WriteError(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, ErrPriceStale):
			api.WriteError(w, err.Error(), http.StatusConflict)
		default:
			api.WriteError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]string{
		"asset": asset,
		"price": price.String(),
	})
}

// HandleExclusivePrice handles GET /api/v1/exclusive/prices/{market}.
func (g *Gateway) HandleExclusivePrice(w http.ResponseWriter, r *http.Request) {
	market, err := model.ParseExclusiveMarket(chi.URLParam(r, "market"))
	if err != nil {
		api.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	price, err := g.ExclusivePrice(r.Context(), market)
	if err != nil {
		if errors.Is(err, ErrPriceNotAvailable) {
			api.WriteError(w, err.Error(), http.StatusNotFound)
			return
		}
		api.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]string{
		"market": string(market),
		"price":  price.String(),
	})
}

// HandleUpdateExclusivePrice handles POST /api/v1/exclusive/prices (admin).
func (g *Gateway) HandleUpdateExclusivePrice(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.Caller(r)
	if err != nil {
		api.WriteError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var req UpdateExclusivePriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	market, err := model.ParseExclusiveMarket(req.Market)
	if err != nil {
		api.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := g.UpdateExclusivePrice(r.Context(), caller, market, req.Price); err != nil {
		switch {
		case errors.Is(err, auth.ErrNotAuthorized):
			api.WriteError(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, ErrOracleNotBound):
			api.WriteError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, store.ErrNotInitialized):
			api.WriteError(w, err.Error(), http.StatusConflict)
		default:
			api.WriteError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]string{
		"market": string(market),
		"price":  req.Price.String(),
	})
}
