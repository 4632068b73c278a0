// Package store defines the persistence interfaces for the margin engine.
// Implementations include PostgreSQL (durable tier, source of truth), Redis
// (short-lived exclusive-price tier with automatic expiry), and in-memory
// (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sapp/margin-engine/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists is returned when a create-once record is already
	// present (engine config written by initialize).
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrNotInitialized is returned by GetConfig before initialize has
	// persisted the engine configuration.
	ErrNotInitialized = errors.New("store: engine not initialized")
)

// Store is the durable persistence interface. Records live until explicitly
// deleted; price staleness on this tier is a read-time rule enforced by the
// oracle gateway, not by the store.
type Store interface {
	// --- Engine configuration (singleton, written once) ---

	// InitConfig persists the engine configuration. Returns
	// ErrAlreadyExists if the engine was already initialized.
	InitConfig(ctx context.Context, cfg model.EngineConfig) error

	// GetConfig retrieves the engine configuration, or ErrNotInitialized
	// if initialize has not run.
	GetConfig(ctx context.Context) (*model.EngineConfig, error)

	// --- Asset prices (durable tier) ---

	// PutPrice overwrites the price record for an asset.
	PutPrice(ctx context.Context, asset string, data model.PriceData) error

	// GetPrice retrieves the price record for an asset.
	GetPrice(ctx context.Context, asset string) (*model.PriceData, error)

	// --- Single-asset positions ---

	// NextPositionID allocates the next position id. Ids start at 0 and
	// only move forward; deleted ids are never reused.
	NextPositionID(ctx context.Context) (uint64, error)

	// PutPosition persists a position keyed by its id.
	PutPosition(ctx context.Context, p *model.Position) error

	// GetPosition retrieves a position by id.
	GetPosition(ctx context.Context, id uint64) (*model.Position, error)

	// DeletePosition removes a position. The id is retired permanently.
	DeletePosition(ctx context.Context, id uint64) error

	// ListPositions returns all live positions in ascending id order.
	ListPositions(ctx context.Context) ([]model.Position, error)

	// ListPositionsByOwner returns the live positions owned by one account.
	ListPositionsByOwner(ctx context.Context, owner string) ([]model.Position, error)

	// --- Exclusive market configuration ---

	// PutMarketConfig overwrites the configuration and oracle binding for
	// a market.
	PutMarketConfig(ctx context.Context, cfg *model.ExclusiveDerivative) error

	// GetMarketConfig retrieves the configuration for a market.
	GetMarketConfig(ctx context.Context, market model.ExclusiveMarket) (*model.ExclusiveDerivative, error)

	// GetMarketOracle retrieves the oracle feed bound to a market.
	GetMarketOracle(ctx context.Context, market model.ExclusiveMarket) (string, error)

	// --- Spread positions ---

	// NextSpreadPositionID allocates the next spread position id. Spread
	// ids are a counter space of their own, starting at 1.
	NextSpreadPositionID(ctx context.Context) (uint64, error)

	// PutSpreadPosition persists a spread position keyed by its id.
	PutSpreadPosition(ctx context.Context, sp *model.SpreadPosition) error

	// GetSpreadPosition retrieves a spread position by id.
	GetSpreadPosition(ctx context.Context, id uint64) (*model.SpreadPosition, error)

	// DeleteSpreadPosition removes a spread position.
	DeleteSpreadPosition(ctx context.Context, id uint64) error
}

// EphemeralPriceStore is the short-lived price tier for exclusive markets.
// Values expire automatically after the TTL elapses; an expired value is
// indistinguishable from one never set. There is no staleness check on this
// tier — expiry is the freshness mechanism.
type EphemeralPriceStore interface {
	// SetPrice stores a market price that expires after ttl.
	SetPrice(ctx context.Context, market model.ExclusiveMarket, price decimal.Decimal, ttl time.Duration) error

	// GetPrice retrieves a live market price, or ErrNotFound if the price
	// has expired or was never set.
	GetPrice(ctx context.Context, market model.ExclusiveMarket) (decimal.Decimal, error)
}
