package ledger

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sapp/margin-engine/internal/api"
	"github.com/sapp/margin-engine/internal/auth"
	"github.com/sapp/margin-engine/internal/model"
	"github.com/sapp/margin-engine/internal/oracle"
	"github.com/sapp/margin-engine/internal/store"
)

// InitializeRequest is the JSON body for POST /api/v1/initialize.
type InitializeRequest struct {
	Admin  string `json:"admin"`
	Oracle string `json:"oracle"`
}

// OpenRequest is the JSON body for POST /api/v1/positions.
type OpenRequest struct {
	Owner      string          `json:"owner"`
	Asset      string          `json:"asset"`
	IsLong     bool            `json:"is_long"`
	Size       decimal.Decimal `json:"size"`
	Collateral decimal.Decimal `json:"collateral"`
	Leverage   uint32          `json:"leverage"`
}

// OpenResponse is returned from POST /api/v1/positions.
type OpenResponse struct {
	PositionID uint64 `json:"position_id"`
}

// CloseResponse is returned from POST /api/v1/positions/{positionID}/close.
type CloseResponse struct {
	PositionID uint64          `json:"position_id"`
	PnL        decimal.Decimal `json:"pnl"`
	Returned   decimal.Decimal `json:"returned"`
}

// HandleInitialize handles POST /api/v1/initialize (one-time).
func (s *Service) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Admin == "" || req.Oracle == "" {
		api.WriteError(w, "admin and oracle are required", http.StatusBadRequest)
		return
	}

	if err := s.Initialize(r.Context(), req.Admin, req.Oracle); err != nil {
		if errors.Is(err, ErrAlreadyInitialized) {
			api.WriteError(w, err.Error(), http.StatusConflict)
			return
		}
		api.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	api.WriteJSON(w, http.StatusCreated, map[string]string{
		"admin":  req.Admin,
		"oracle": req.Oracle,
	})
}

// HandleAdmin handles GET /api/v1/admin.
func (s *Service) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	admin, err := s.Admin(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotInitialized) {
			api.WriteError(w, err.Error(), http.StatusConflict)
			return
		}
		api.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"admin": admin})
}

// HandleOpen handles POST /api/v1/positions.
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
	if req.Owner == "" || req.Asset == "" {
		api.WriteError(w, "owner and asset are required", http.StatusBadRequest)
		return
	}

	id, err := s.Open(r.Context(), caller, req.Owner, req.Asset, req.IsLong, req.Size, req.Collateral, req.Leverage)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusCreated, OpenResponse{PositionID: id})
}

// HandleClose handles POST /api/v1/positions/{positionID}/close.
func (s *Service) HandleClose(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.Caller(r)
	if err != nil {
		api.WriteError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	id, ok := positionID(w, r)
	if !ok {
		return
	}

	pnl, returned, err := s.Close(r.Context(), caller, id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, CloseResponse{
		PositionID: id,
		PnL:        pnl,
		Returned:   returned,
	})
}

// HandleLiquidate handles POST /api/v1/positions/{positionID}/liquidate.
// No authorization: anyone may liquidate an under-margined position.
func (s *Service) HandleLiquidate(w http.ResponseWriter, r *http.Request) {
	id, ok := positionID(w, r)
	if !ok {
		return
	}

	if err := s.Liquidate(r.Context(), id); err != nil {
		writeLedgerError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]uint64{"position_id": id})
}

// HandleGetPosition handles GET /api/v1/positions/{positionID}.
func (s *Service) HandleGetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := positionID(w, r)
	if !ok {
		return
	}

	position, err := s.Position(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, position)
}

// HandleAtRisk handles GET /api/v1/positions/{positionID}/risk.
func (s *Service) HandleAtRisk(w http.ResponseWriter, r *http.Request) {
	id, ok := positionID(w, r)
	if !ok {
		return
	}

	atRisk, err := s.AtRisk(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"position_id": id,
		"at_risk":     atRisk,
	})
}

// HandleActivePositions handles GET /api/v1/positions.
func (s *Service) HandleActivePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.ActivePositions(r.Context())
	if err != nil {
		api.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	api.WriteJSON(w, http.StatusOK, positions)
}

// HandleUserPositions handles GET /api/v1/users/{userID}/positions.
func (s *Service) HandleUserPositions(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "userID")

	positions, err := s.UserPositions(r.Context(), owner)
	if err != nil {
		api.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	api.WriteJSON(w, http.StatusOK, positions)
}

func positionID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "positionID"), 10, 64)
	if err != nil {
		api.WriteError(w, "invalid position id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrNotAuthorized):
		api.WriteError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrPositionNotFound):
		api.WriteError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, oracle.ErrPriceNotFound):
		api.WriteError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidLeverage),
		errors.Is(err, ErrInvalidSizeOrCollateral),
		errors.Is(err, ErrInsufficientCollateral):
		api.WriteError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, oracle.ErrPriceStale),
		errors.Is(err, ErrPositionNotLiquidatable),
		errors.Is(err, store.ErrNotInitialized):
		api.WriteError(w, err.Error(), http.StatusConflict)
	default:
		api.WriteError(w, err.Error(), http.StatusInternalServerError)
	}
}
