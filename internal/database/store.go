package database

import (
	"context"
	"time"
)

// TradeStore is the persistence contract consumed by the reconciler, the
// exit scanner and the cleanup pass. Implementations must scope every
// pair query to both ticker AND timeframe: a 1h record must never be
// read, matched or mutated by a 15m operation on the same ticker.
type TradeStore interface {
	CreateTrade(ctx context.Context, trade *TradeRecord) error
	GetTradeByID(ctx context.Context, id string) (*TradeRecord, error)
	UpdateTrade(ctx context.Context, trade *TradeRecord) error
	// DeleteTrade hard-deletes a record. Only waiting records (never
	// triggered, no P&L) are ever hard-deleted.
	DeleteTrade(ctx context.Context, id string) error
	// GetOpenTrade returns the single waiting/active record for the pair,
	// or nil when none exists.
	GetOpenTrade(ctx context.Context, ticker, timeframe string) (*TradeRecord, error)
	ListOpenTrades(ctx context.Context) ([]*TradeRecord, error)
	ListTrades(ctx context.Context, ticker, timeframe string, limit int) ([]*TradeRecord, error)
	// ListStaleWaiting returns waiting records created before the cutoff;
	// input to the cleanup sweep.
	ListStaleWaiting(ctx context.Context, cutoff time.Time) ([]*TradeRecord, error)
}
