// Package treasury abstracts custody of the settlement asset. The engine
// never moves funds itself: it debits collateral when a position opens and
// credits settlement proceeds when one closes, through this capability.
// Amounts must be positive; a transfer is only requested after every
// validation on the surrounding operation has passed.
package treasury

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ProtocolAccount receives liquidation penalties.
const ProtocolAccount = "protocol"

// ErrInvalidAmount is returned when a transfer amount is not positive.
var ErrInvalidAmount = errors.New("treasury: transfer amount must be positive")

// Treasury is the abstract ledger-transfer capability.
type Treasury interface {
	// Debit moves amount from the account into engine custody.
	Debit(ctx context.Context, account string, amount decimal.Decimal) error

	// Credit moves amount from engine custody to the account.
	Credit(ctx context.Context, account string, amount decimal.Decimal) error
}

// LogTreasury records transfers as structured log lines without moving any
// asset. This mirrors the stubbed custody of the reference deployment; swap
// in a real settlement integration for production.
type LogTreasury struct{}

// NewLogTreasury creates a log-only treasury.
func NewLogTreasury() *LogTreasury {
	return &LogTreasury{}
}

func (t *LogTreasury) Debit(_ context.Context, account string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	slog.Info("treasury debit",
		"ref", uuid.New().String(),
		"account", account,
		"amount", amount.String(),
	)
	return nil
}

func (t *LogTreasury) Credit(_ context.Context, account string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	slog.Info("treasury credit",
		"ref", uuid.New().String(),
		"account", account,
		"amount", amount.String(),
	)
	return nil
}

// JournalTreasury records transfers in a PostgreSQL journal table. Still an
// accounting stub — no external asset moves — but every debit and credit
// leaves a durable row with a uuid reference for reconciliation.
type JournalTreasury struct {
	pool *pgxpool.Pool
}

// NewJournalTreasury creates a journal-backed treasury.
func NewJournalTreasury(pool *pgxpool.Pool) *JournalTreasury {
	return &JournalTreasury{pool: pool}
}

func (t *JournalTreasury) Debit(ctx context.Context, account string, amount decimal.Decimal) error {
	return t.record(ctx, account, "debit", amount)
}

func (t *JournalTreasury) Credit(ctx context.Context, account string, amount decimal.Decimal) error {
	return t.record(ctx, account, "credit", amount)
}

func (t *JournalTreasury) record(ctx context.Context, account, direction string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	_, err := t.pool.Exec(ctx,
		`INSERT INTO transfers (id, account, direction, amount, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5)`,
		uuid.New().String(), account, direction, amount.String(), time.Now().UTC(),
	)
	return err
}
