// Package spread manages two-leg spread positions across exclusive
// derivative markets. A spread is treated as a single synthetic instrument:
// its value is the price difference between the legs, and its PnL is driven
// by changes in that spread rather than either leg's absolute price.
package spread

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
	"github.com/sapp/margin-engine/internal/market"
	"github.com/sapp/margin-engine/internal/metrics"
	"github.com/sapp/margin-engine/internal/model"
	"github.com/sapp/margin-engine/internal/store"
	"github.com/sapp/margin-engine/internal/stream"
	"github.com/sapp/margin-engine/internal/treasury"
)

var (
	// ErrUnbalancedSpread is returned when a WTI/Brent spread's leg sizes
	// do not sum to zero. The balance rule applies only to that pair: it
	// is the canonical crude hedge, other pairs are unconstrained.
	ErrUnbalancedSpread = errors.New("spread: WTI/Brent spread must be balanced")

	// ErrInsufficientMargin is returned when the posted margin does not
	// cover the per-leg minimum requirements.
	ErrInsufficientMargin = errors.New("spread: insufficient margin")

	// ErrSpreadPositionNotFound is returned when the referenced spread
	// position does not exist.
	ErrSpreadPositionNotFound = errors.New("spread: position not found")
)

// Service is the spread position ledger.
type Service struct {
	store    store.Store
	registry *market.Registry
	treasury treasury.Treasury
	hub      *stream.Hub // optional
	now      func() time.Time
	mu       sync.Mutex
}

// NewService creates a spread position ledger. Pass nil for hub if WebSocket
// broadcasting is not needed; pass nil for now to use the wall clock.
func NewService(st store.Store, registry *market.Registry, tr treasury.Treasury, hub *stream.Hub, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:    st,
		registry: registry,
		treasury: tr,
		hub:      hub,
		now:      now,
	}
}

// Open opens a spread position for trader, debiting the margin. Both legs
// must be registered markets with live prices. Returns the new spread id
// (a counter space of its own, starting at 1).
func (s *Service) Open(ctx context.Context, caller, trader string, leg1, leg2 model.ExclusiveMarket, leg1Size, leg2Size, posted decimal.Decimal) (uint64, error) {
	if err := auth.RequireAccount(caller, trader); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg1, err := s.registry.Validate(ctx, leg1)
	if err != nil {
		return 0, err
	}
	cfg2, err := s.registry.Validate(ctx, leg2)
	if err != nil {
		return 0, err
	}

	if leg1 == model.MarketWTI && leg2 == model.MarketBrent {
		if !leg1Size.Add(leg2Size).IsZero() {
			return 0, ErrUnbalancedSpread
		}
	}

	required := margin.SpreadLegRequirement(leg1Size, cfg1).
		Add(margin.SpreadLegRequirement(leg2Size, cfg2))
	if posted.LessThan(required) {
		return 0, fmt.Errorf("%w: required %s, posted %s", ErrInsufficientMargin, required, posted)
	}

	// Capture the entry spread before any write so a missing price aborts
	// with no side effects.
	entrySpread, err := s.registry.SpreadPrice(ctx, leg1, leg2)
	if err != nil {
		return 0, err
	}

	if posted.IsPositive() {
		if err := s.treasury.Debit(ctx, trader, posted); err != nil {
			return 0, fmt.Errorf("debit margin: %w", err)
		}
	}

	id, err := s.store.NextSpreadPositionID(ctx)
	if err != nil {
		return 0, err
	}

	position := &model.SpreadPosition{
		ID:          id,
		Trader:      trader,
		Leg1Market:  leg1,
		Leg2Market:  leg2,
		Leg1Size:    leg1Size,
		Leg2Size:    leg2Size,
		EntrySpread: entrySpread,
		Margin:      posted,
		Timestamp:   s.now().UTC(),
	}
	if err := s.store.PutSpreadPosition(ctx, position); err != nil {
		return 0, fmt.Errorf("persist spread position: %w", err)
	}

	metrics.SpreadsOpened.Inc()

	slog.Info("spread position opened",
		"id", id,
		"trader", trader,
		"leg1", leg1,
		"leg2", leg2,
		"leg1_size", leg1Size.String(),
		"leg2_size", leg2Size.String(),
		"entry_spread", entrySpread.String(),
		"margin", posted.String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(stream.Event{
			Type:       stream.EventSpreadOpened,
			PositionID: id,
			Account:    trader,
			Market:     string(leg1) + "/" + string(leg2),
		})
	}
	return id, nil
}

// Close settles a spread position at the current spread and deletes it.
// Only the trader may close. PnL is attributed to leg1's size:
//
//	pnl = (exitSpread − entrySpread) * leg1Size
//
// Margin plus PnL is credited back if positive; a negative total is simply
// not paid out — losses past the posted margin are not clawed back.
func (s *Service) Close(ctx context.Context, caller string, id uint64) (pnl decimal.Decimal, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	position, err := s.position(ctx, id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if err := auth.RequireAccount(caller, position.Trader); err != nil {
		return decimal.Decimal{}, err
	}

	exitSpread, err := s.registry.SpreadPrice(ctx, position.Leg1Market, position.Leg2Market)
	if err != nil {
		return decimal.Decimal{}, err
	}

	pnl = margin.SpreadPnL(position, exitSpread)
	finalAmount := position.Margin.Add(pnl)

	if err := s.store.DeleteSpreadPosition(ctx, id); err != nil {
		return decimal.Decimal{}, err
	}
	if finalAmount.IsPositive() {
		if err := s.treasury.Credit(ctx, position.Trader, finalAmount); err != nil {
			return decimal.Decimal{}, fmt.Errorf("return margin: %w", err)
		}
	}

	metrics.SpreadsClosed.Inc()

	slog.Info("spread position closed",
		"id", id,
		"trader", position.Trader,
		"exit_spread", exitSpread.String(),
		"pnl", pnl.String(),
		"returned", finalAmount.String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(stream.Event{
			Type:       stream.EventSpreadClosed,
			PositionID: id,
			Account:    position.Trader,
			PnL:        pnl.String(),
		})
	}
	return pnl, nil
}

// Position returns a spread position by id.
func (s *Service) Position(ctx context.Context, id uint64) (*model.SpreadPosition, error) {
	return s.position(ctx, id)
}

func (s *Service) position(ctx context.Context, id uint64) (*model.SpreadPosition, error) {
	position, err := s.store.GetSpreadPosition(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrSpreadPositionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return position, nil
}
