package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sapp/margin-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Id counters live in a counters table so they only ever move forward,
// regardless of deletions.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InitConfig(ctx context.Context, cfg model.EngineConfig) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO engine_config (id, admin, oracle, maintenance_margin, max_leverage, protocol_fee)
		 VALUES (1, $1, $2, $3::NUMERIC, $4, $5::NUMERIC)
		 ON CONFLICT (id) DO NOTHING`,
		cfg.Admin, cfg.Oracle,
		cfg.MaintenanceMargin.String(), cfg.MaxLeverage, cfg.ProtocolFee.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *PostgresStore) GetConfig(ctx context.Context) (*model.EngineConfig, error) {
	var cfg model.EngineConfig
	var maintenance, fee string

	err := s.pool.QueryRow(ctx,
		`SELECT admin, oracle, maintenance_margin::TEXT, max_leverage, protocol_fee::TEXT
		 FROM engine_config WHERE id = 1`).
		Scan(&cfg.Admin, &cfg.Oracle, &maintenance, &cfg.MaxLeverage, &fee)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("get engine config: %w", err)
	}

	cfg.MaintenanceMargin, _ = decimal.NewFromString(maintenance)
	cfg.ProtocolFee, _ = decimal.NewFromString(fee)
	return &cfg, nil
}

func (s *PostgresStore) PutPrice(ctx context.Context, asset string, data model.PriceData) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO asset_prices (asset, price, updated_at)
		 VALUES ($1, $2::NUMERIC, $3)
		 ON CONFLICT (asset) DO UPDATE SET price = EXCLUDED.price, updated_at = EXCLUDED.updated_at`,
		asset, data.Price.String(), data.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetPrice(ctx context.Context, asset string) (*model.PriceData, error) {
	var data model.PriceData
	var price string

	err := s.pool.QueryRow(ctx,
		`SELECT price::TEXT, updated_at FROM asset_prices WHERE asset = $1`, asset).
		Scan(&price, &data.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get price %s: %w", asset, err)
	}

	data.Price, _ = decimal.NewFromString(price)
	return &data, nil
}

func (s *PostgresStore) NextPositionID(ctx context.Context) (uint64, error) {
	// First allocation returns 0; subsequent calls return value-1 after
	// the increment, so ids are 0, 1, 2, ...
	var next int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO counters (name, value) VALUES ('position', 1)
		 ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		 RETURNING value - 1`).
		Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next position id: %w", err)
	}
	return uint64(next), nil
}

func (s *PostgresStore) PutPosition(ctx context.Context, p *model.Position) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (id, owner, asset, is_long, size, collateral, entry_price, leverage, margin_ratio, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9::NUMERIC, $10)`,
		int64(p.ID), p.Owner, p.Asset, p.IsLong,
		p.Size.String(), p.Collateral.String(), p.EntryPrice.String(),
		p.Leverage, p.MarginRatio.String(), p.Timestamp,
	)
	return err
}

const positionColumns = `id, owner, asset, is_long,
	        size::TEXT, collateral::TEXT, entry_price::TEXT,
	        leverage, margin_ratio::TEXT, created_at`

func (s *PostgresStore) GetPosition(ctx context.Context, id uint64) (*model.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE id = $1`, int64(id))

	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position %d: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) DeletePosition(ctx context.Context, id uint64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE id = $1`, int64(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPositions(rows)
}

func (s *PostgresStore) ListPositionsByOwner(ctx context.Context, owner string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE owner = $1 ORDER BY id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPositions(rows)
}

func (s *PostgresStore) PutMarketConfig(ctx context.Context, cfg *model.ExclusiveDerivative) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO exclusive_markets (market, exchange, oracle_feed, tick_size, contract_size, min_margin_ratio, settlement_type)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7)
		 ON CONFLICT (market) DO UPDATE SET
		     exchange = EXCLUDED.exchange,
		     oracle_feed = EXCLUDED.oracle_feed,
		     tick_size = EXCLUDED.tick_size,
		     contract_size = EXCLUDED.contract_size,
		     min_margin_ratio = EXCLUDED.min_margin_ratio,
		     settlement_type = EXCLUDED.settlement_type`,
		string(cfg.Market), cfg.Exchange, cfg.OracleFeed,
		cfg.TickSize.String(), cfg.ContractSize.String(), cfg.MinMarginRatio.String(),
		cfg.SettlementType,
	)
	return err
}

func (s *PostgresStore) GetMarketConfig(ctx context.Context, market model.ExclusiveMarket) (*model.ExclusiveDerivative, error) {
	var cfg model.ExclusiveDerivative
	var m, tick, contractSize, minMargin string

	err := s.pool.QueryRow(ctx,
		`SELECT market, exchange, oracle_feed,
		        tick_size::TEXT, contract_size::TEXT, min_margin_ratio::TEXT,
		        settlement_type
		 FROM exclusive_markets WHERE market = $1`, string(market)).
		Scan(&m, &cfg.Exchange, &cfg.OracleFeed, &tick, &contractSize, &minMargin, &cfg.SettlementType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get market config %s: %w", market, err)
	}

	cfg.Market = model.ExclusiveMarket(m)
	cfg.TickSize, _ = decimal.NewFromString(tick)
	cfg.ContractSize, _ = decimal.NewFromString(contractSize)
	cfg.MinMarginRatio, _ = decimal.NewFromString(minMargin)
	return &cfg, nil
}

func (s *PostgresStore) GetMarketOracle(ctx context.Context, market model.ExclusiveMarket) (string, error) {
	var feed string
	err := s.pool.QueryRow(ctx,
		`SELECT oracle_feed FROM exclusive_markets WHERE market = $1`, string(market)).
		Scan(&feed)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get market oracle %s: %w", market, err)
	}
	return feed, nil
}

func (s *PostgresStore) NextSpreadPositionID(ctx context.Context) (uint64, error) {
	// Spread ids start at 1: the counter stores the last issued id.
	var next int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO counters (name, value) VALUES ('spread_position', 1)
		 ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		 RETURNING value`).
		Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next spread position id: %w", err)
	}
	return uint64(next), nil
}

func (s *PostgresStore) PutSpreadPosition(ctx context.Context, sp *model.SpreadPosition) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO spread_positions (id, trader, leg1_market, leg2_market, leg1_size, leg2_size, entry_spread, margin, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)`,
		int64(sp.ID), sp.Trader, string(sp.Leg1Market), string(sp.Leg2Market),
		sp.Leg1Size.String(), sp.Leg2Size.String(), sp.EntrySpread.String(), sp.Margin.String(),
		sp.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetSpreadPosition(ctx context.Context, id uint64) (*model.SpreadPosition, error) {
	var sp model.SpreadPosition
	var spID int64
	var leg1, leg2, leg1Size, leg2Size, entrySpread, margin string

	err := s.pool.QueryRow(ctx,
		`SELECT id, trader, leg1_market, leg2_market,
		        leg1_size::TEXT, leg2_size::TEXT, entry_spread::TEXT, margin::TEXT,
		        created_at
		 FROM spread_positions WHERE id = $1`, int64(id)).
		Scan(&spID, &sp.Trader, &leg1, &leg2, &leg1Size, &leg2Size, &entrySpread, &margin, &sp.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get spread position %d: %w", id, err)
	}

	sp.ID = uint64(spID)
	sp.Leg1Market = model.ExclusiveMarket(leg1)
	sp.Leg2Market = model.ExclusiveMarket(leg2)
	sp.Leg1Size, _ = decimal.NewFromString(leg1Size)
	sp.Leg2Size, _ = decimal.NewFromString(leg2Size)
	sp.EntrySpread, _ = decimal.NewFromString(entrySpread)
	sp.Margin, _ = decimal.NewFromString(margin)
	return &sp, nil
}

func (s *PostgresStore) DeleteSpreadPosition(ctx context.Context, id uint64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM spread_positions WHERE id = $1`, int64(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanPosition reads one position row.
func scanPosition(row pgx.Row) (*model.Position, error) {
	var p model.Position
	var id int64
	var size, collateral, entryPrice, marginRatio string

	if err := row.Scan(&id, &p.Owner, &p.Asset, &p.IsLong,
		&size, &collateral, &entryPrice,
		&p.Leverage, &marginRatio, &p.Timestamp); err != nil {
		return nil, err
	}

	p.ID = uint64(id)
	p.Size, _ = decimal.NewFromString(size)
	p.Collateral, _ = decimal.NewFromString(collateral)
	p.EntryPrice, _ = decimal.NewFromString(entryPrice)
	p.MarginRatio, _ = decimal.NewFromString(marginRatio)
	return &p, nil
}

func collectPositions(rows pgx.Rows) ([]model.Position, error) {
	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}
