package market

import (
	"context"
	"time"
)

// Candle represents one OHLC bar. Candles are read-only inputs to the
// reconciliation engine; nothing in this codebase mutates them.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
}

// CandleProvider supplies ordered price history for a ticker/timeframe pair.
// Implementations must return candles in chronological order.
type CandleProvider interface {
	// CandlesSince returns all candles with an open time at or after the
	// given baseline, oldest first.
	CandlesSince(ctx context.Context, ticker, timeframe string, since time.Time) ([]Candle, error)
	// LastPrice returns the most recent close for the ticker/timeframe.
	LastPrice(ctx context.Context, ticker, timeframe string) (float64, error)
}
