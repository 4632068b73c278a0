// Package ledger owns the single-asset leveraged position lifecycle:
// open, close, force-liquidation, and risk queries.
//
// Every operation validates completely before its first write, so a failure
// aborts with zero side effects. A mutex serializes mutating operations,
// standing in for the serialized, atomic execution environment the engine
// was designed for. All monetary values use shopspring/decimal — never
// float64 for money.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sapp/margin-engine/internal/auth"
	"github.com/sapp/margin-engine/internal/margin"
	"github.com/sapp/margin-engine/internal/metrics"
	"github.com/sapp/margin-engine/internal/model"
	"github.com/sapp/margin-engine/internal/oracle"
	"github.com/sapp/margin-engine/internal/store"
	"github.com/sapp/margin-engine/internal/stream"
	"github.com/sapp/margin-engine/internal/treasury"
)

var (
	// ErrAlreadyInitialized is returned when initialize runs twice.
	ErrAlreadyInitialized = errors.New("ledger: already initialized")

	// ErrInvalidLeverage is returned when leverage is outside [1, max].
	ErrInvalidLeverage = errors.New("ledger: invalid leverage")

	// ErrInvalidSizeOrCollateral is returned when size or collateral is
	// not positive.
	ErrInvalidSizeOrCollateral = errors.New("ledger: invalid size or collateral")

	// ErrInsufficientCollateral is returned when collateral does not cover
	// size / leverage.
	ErrInsufficientCollateral = errors.New("ledger: insufficient collateral for leverage")

	// ErrPositionNotFound is returned when the referenced position does
	// not exist (never opened, closed, or liquidated).
	ErrPositionNotFound = errors.New("ledger: position not found")

	// ErrPositionNotLiquidatable is returned when a liquidation targets a
	// position at or above the maintenance margin.
	ErrPositionNotLiquidatable = errors.New("ledger: position not liquidatable")
)

// openMarginRatio is the informational margin-ratio snapshot persisted at
// open: 10000 bp = 100%, regardless of inputs.
var openMarginRatio = decimal.NewFromInt(10000)

// Service is the position ledger. Mutating operations are serialized by a
// single mutex; queries go straight to the store.
type Service struct {
	store    store.Store
	prices   *oracle.Gateway
	treasury treasury.Treasury
	hub      *stream.Hub // optional
	now      func() time.Time
	mu       sync.Mutex
}

// NewService creates a position ledger. Pass nil for hub if WebSocket
// broadcasting is not needed; pass nil for now to use the wall clock.
func NewService(st store.Store, prices *oracle.Gateway, tr treasury.Treasury, hub *stream.Hub, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:    st,
		prices:   prices,
		treasury: tr,
		hub:      hub,
		now:      now,
	}
}

// Initialize persists the engine configuration: admin and oracle identities
// plus the default risk parameters. One-time; fails if already initialized.
func (s *Service) Initialize(ctx context.Context, admin, oracleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.store.InitConfig(ctx, model.DefaultEngineConfig(admin, oracleID))
	if errors.Is(err, store.ErrAlreadyExists) {
		return ErrAlreadyInitialized
	}
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	slog.Info("engine initialized", "admin", admin, "oracle", oracleID)
	return nil
}

// Admin returns the admin identity set at initialize.
func (s *Service) Admin(ctx context.Context) (string, error) {
	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return "", err
	}
	return cfg.Admin, nil
}

// Open opens a leveraged position for owner, debiting the collateral. The
// caller must act as the owner account. Returns the new position id.
func (s *Service) Open(ctx context.Context, caller, owner, asset string, isLong bool, size, collateral decimal.Decimal, leverage uint32) (uint64, error) {
	if err := auth.RequireAccount(caller, owner); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return 0, err
	}

	if leverage < 1 || leverage > cfg.MaxLeverage {
		return 0, fmt.Errorf("%w: %d (max %d)", ErrInvalidLeverage, leverage, cfg.MaxLeverage)
	}
	if !size.IsPositive() || !collateral.IsPositive() {
		return 0, ErrInvalidSizeOrCollateral
	}
	if collateral.LessThan(margin.RequiredCollateral(size, leverage)) {
		return 0, ErrInsufficientCollateral
	}

	// Read the entry price before any write so a stale or missing price
	// aborts with no side effects.
	price, err := s.prices.AssetPrice(ctx, asset)
	if err != nil {
		return 0, err
	}

	if err := s.treasury.Debit(ctx, owner, collateral); err != nil {
		return 0, fmt.Errorf("debit collateral: %w", err)
	}

	id, err := s.store.NextPositionID(ctx)
	if err != nil {
		return 0, err
	}

	position := &model.Position{
		ID:          id,
		Owner:       owner,
		Asset:       asset,
		IsLong:      isLong,
		Size:        size,
		Collateral:  collateral,
		EntryPrice:  price,
		Leverage:    leverage,
		MarginRatio: openMarginRatio,
		Timestamp:   s.now().UTC(),
	}
	if err := s.store.PutPosition(ctx, position); err != nil {
		return 0, fmt.Errorf("persist position: %w", err)
	}

	direction := "long"
	if !isLong {
		direction = "short"
	}
	metrics.PositionsOpened.WithLabelValues(direction).Inc()
	metrics.OpenPositions.Inc()

	slog.Info("position opened",
		"id", id,
		"owner", owner,
		"asset", asset,
		"direction", direction,
		"size", size.String(),
		"collateral", collateral.String(),
		"entry_price", price.String(),
		"leverage", leverage,
	)

	if s.hub != nil {
		s.hub.Broadcast(stream.Event{
			Type:       stream.EventPositionOpened,
			PositionID: id,
			Account:    owner,
			Asset:      asset,
		})
	}
	return id, nil
}

// Close settles a position at the current price and deletes it. Only the
// owner may close. Remaining collateral, if any, is credited back.
// Returns the realized PnL and the amount returned.
func (s *Service) Close(ctx context.Context, caller string, id uint64) (pnl, returned decimal.Decimal, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	position, err := s.position(ctx, id)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	if err := auth.RequireAccount(caller, position.Owner); err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}

	price, err := s.prices.AssetPrice(ctx, position.Asset)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}

	pnl, remaining := margin.PnL(position, price)

	if err := s.store.DeletePosition(ctx, id); err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	if remaining.IsPositive() {
		if err := s.treasury.Credit(ctx, position.Owner, remaining); err != nil {
			return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("return collateral: %w", err)
		}
	}

	metrics.PositionsClosed.Inc()
	metrics.OpenPositions.Dec()

	slog.Info("position closed",
		"id", id,
		"owner", position.Owner,
		"pnl", pnl.String(),
		"returned", remaining.String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(stream.Event{
			Type:       stream.EventPositionClosed,
			PositionID: id,
			Account:    position.Owner,
			Asset:      position.Asset,
			PnL:        pnl.String(),
		})
	}
	return pnl, remaining, nil
}

// Liquidate force-closes a position whose margin ratio has fallen below the
// maintenance margin. Callable by anyone: third-party liquidators keep the
// at-risk book clean. The flat penalty is retained by the protocol; any
// remainder goes back to the owner.
func (s *Service) Liquidate(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	position, err := s.position(ctx, id)
	if err != nil {
		return err
	}

	price, err := s.prices.AssetPrice(ctx, position.Asset)
	if err != nil {
		return err
	}

	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return err
	}

	ratio := margin.Ratio(position, price)
	if ratio.GreaterThanOrEqual(cfg.MaintenanceMargin) {
		return fmt.Errorf("%w: margin ratio %s >= maintenance %s",
			ErrPositionNotLiquidatable, ratio, cfg.MaintenanceMargin)
	}

	penalty := margin.LiquidationPenalty(position)
	_, remaining := margin.PnL(position, price)
	remaining = remaining.Sub(penalty)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	if err := s.store.DeletePosition(ctx, id); err != nil {
		return err
	}
	if penalty.IsPositive() {
		if err := s.treasury.Credit(ctx, treasury.ProtocolAccount, penalty); err != nil {
			return fmt.Errorf("retain penalty: %w", err)
		}
	}
	if remaining.IsPositive() {
		if err := s.treasury.Credit(ctx, position.Owner, remaining); err != nil {
			return fmt.Errorf("return collateral: %w", err)
		}
	}

	metrics.PositionsLiquidated.Inc()
	metrics.OpenPositions.Dec()

	slog.Info("position liquidated",
		"id", id,
		"owner", position.Owner,
		"margin_ratio", ratio.String(),
		"penalty", penalty.String(),
		"returned", remaining.String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(stream.Event{
			Type:       stream.EventPositionLiquidated,
			PositionID: id,
			Account:    position.Owner,
			Asset:      position.Asset,
		})
	}
	return nil
}

// Position returns a position by id.
func (s *Service) Position(ctx context.Context, id uint64) (*model.Position, error) {
	return s.position(ctx, id)
}

// AtRisk reports whether a position's live margin ratio has entered the
// warning band at 1.5x the maintenance margin.
func (s *Service) AtRisk(ctx context.Context, id uint64) (bool, error) {
	position, err := s.position(ctx, id)
	if err != nil {
		return false, err
	}

	price, err := s.prices.AssetPrice(ctx, position.Asset)
	if err != nil {
		return false, err
	}

	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return false, err
	}
	return margin.AtRisk(position, price, cfg.MaintenanceMargin), nil
}

// ActivePositions returns all live positions in ascending id order.
// Enumeration covers every live position regardless of gaps left by closed
// or liquidated ids.
func (s *Service) ActivePositions(ctx context.Context) ([]model.Position, error) {
	return s.store.ListPositions(ctx)
}

// UserPositions returns the live positions owned by one account.
func (s *Service) UserPositions(ctx context.Context, owner string) ([]model.Position, error) {
	return s.store.ListPositionsByOwner(ctx, owner)
}

func (s *Service) position(ctx context.Context, id uint64) (*model.Position, error) {
	position, err := s.store.GetPosition(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrPositionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return position, nil
}
