package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sapp/margin-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu            sync.RWMutex
	config        *model.EngineConfig
	prices        map[string]model.PriceData
	positions     map[uint64]*model.Position
	posCounter    uint64 // next id to hand out; first id is 0
	markets       map[model.ExclusiveMarket]*model.ExclusiveDerivative
	marketOracles map[model.ExclusiveMarket]string
	spreads       map[uint64]*model.SpreadPosition
	spreadCounter uint64 // last id handed out; first id is 1
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prices:        make(map[string]model.PriceData),
		positions:     make(map[uint64]*model.Position),
		markets:       make(map[model.ExclusiveMarket]*model.ExclusiveDerivative),
		marketOracles: make(map[model.ExclusiveMarket]string),
		spreads:       make(map[uint64]*model.SpreadPosition),
	}
}

func (s *MemoryStore) InitConfig(_ context.Context, cfg model.EngineConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config != nil {
		return ErrAlreadyExists
	}
	s.config = &cfg
	return nil
}

func (s *MemoryStore) GetConfig(_ context.Context) (*model.EngineConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.config == nil {
		return nil, ErrNotInitialized
	}
	cfg := *s.config
	return &cfg, nil
}

func (s *MemoryStore) PutPrice(_ context.Context, asset string, data model.PriceData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prices[asset] = data
	return nil
}

func (s *MemoryStore) GetPrice(_ context.Context, asset string) (*model.PriceData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.prices[asset]
	if !ok {
		return nil, ErrNotFound
	}
	return &data, nil
}

func (s *MemoryStore) NextPositionID(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.posCounter
	s.posCounter++
	return id, nil
}

func (s *MemoryStore) PutPosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	cp := *p
	s.positions[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPosition(_ context.Context, id uint64) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) DeletePosition(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[id]; !ok {
		return ErrNotFound
	}
	delete(s.positions, id)
	return nil
}

func (s *MemoryStore) ListPositions(_ context.Context) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]model.Position, 0, len(s.positions))
	for _, p := range s.positions {
		positions = append(positions, *p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].ID < positions[j].ID })
	return positions, nil
}

func (s *MemoryStore) ListPositionsByOwner(_ context.Context, owner string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var positions []model.Position
	for _, p := range s.positions {
		if p.Owner == owner {
			positions = append(positions, *p)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].ID < positions[j].ID })
	return positions, nil
}

func (s *MemoryStore) PutMarketConfig(_ context.Context, cfg *model.ExclusiveDerivative) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *cfg
	s.markets[cfg.Market] = &cp
	s.marketOracles[cfg.Market] = cfg.OracleFeed
	return nil
}

func (s *MemoryStore) GetMarketConfig(_ context.Context, market model.ExclusiveMarket) (*model.ExclusiveDerivative, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.markets[market]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (s *MemoryStore) GetMarketOracle(_ context.Context, market model.ExclusiveMarket) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	feed, ok := s.marketOracles[market]
	if !ok {
		return "", ErrNotFound
	}
	return feed, nil
}

func (s *MemoryStore) NextSpreadPositionID(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spreadCounter++
	return s.spreadCounter, nil
}

func (s *MemoryStore) PutSpreadPosition(_ context.Context, sp *model.SpreadPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sp
	s.spreads[sp.ID] = &cp
	return nil
}

func (s *MemoryStore) GetSpreadPosition(_ context.Context, id uint64) (*model.SpreadPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sp, ok := s.spreads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sp
	return &cp, nil
}

func (s *MemoryStore) DeleteSpreadPosition(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.spreads[id]; !ok {
		return ErrNotFound
	}
	delete(s.spreads, id)
	return nil
}

// MemoryPriceStore implements EphemeralPriceStore with expiry timestamps
// checked on read. Used for testing and development; production uses Redis
// where expiry is native.
type MemoryPriceStore struct {
	mu      sync.RWMutex
	now     func() time.Time
	entries map[model.ExclusiveMarket]ephemeralEntry
}

type ephemeralEntry struct {
	price     decimal.Decimal
	expiresAt time.Time
}

// NewMemoryPriceStore creates an in-memory ephemeral price store. The clock
// is injected so tests can drive expiry.
func NewMemoryPriceStore(now func() time.Time) *MemoryPriceStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryPriceStore{
		now:     now,
		entries: make(map[model.ExclusiveMarket]ephemeralEntry),
	}
}

func (s *MemoryPriceStore) SetPrice(_ context.Context, market model.ExclusiveMarket, price decimal.Decimal, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[market] = ephemeralEntry{
		price:     price,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *MemoryPriceStore) GetPrice(_ context.Context, market model.ExclusiveMarket) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[market]
	if !ok || !s.now().Before(entry.expiresAt) {
		return decimal.Decimal{}, ErrNotFound
	}
	return entry.price, nil
}
