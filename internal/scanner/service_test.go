package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"chart-advisor/internal/database"
	"chart-advisor/internal/market"
)

type stubProvider struct {
	candles []market.Candle
	err     error
}

func (p *stubProvider) CandlesSince(ctx context.Context, ticker, timeframe string, since time.Time) ([]market.Candle, error) {
	return p.candles, p.err
}

func (p *stubProvider) LastPrice(ctx context.Context, ticker, timeframe string) (float64, error) {
	return 0, errors.New("not used")
}

type recordingClearer struct {
	cleared []string
}

func (c *recordingClearer) ClearTradeContext(ctx context.Context, ticker, timeframe string) error {
	c.cleared = append(c.cleared, ticker+":"+timeframe)
	return nil
}

// TestTriggerThenStopInOnePass: a waiting trade whose window contains the
// trigger and a later stop sweep ends the pass closed, with the trigger
// checkpoint recorded.
func TestTriggerThenStopInOnePass(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryTradeStore()
	clearer := &recordingClearer{}

	trade := &database.TradeRecord{
		ID: "t-1", Ticker: "BTCUSD", Timeframe: "1h",
		Status: database.StatusWaiting, Action: database.ActionBuy,
		StrategyType: "breakout",
		EntryPrice:   100, TargetPrice: 110, StopLoss: 95,
		CreatedAt: scanBase.Add(-time.Hour),
	}
	if err := store.CreateTrade(ctx, trade); err != nil {
		t.Fatalf("seed: %v", err)
	}

	provider := &stubProvider{candles: []market.Candle{
		candle(0, 99, 100.5, 98, 100), // trigger
		candle(60, 100, 101, 94, 96),  // stop sweep
	}}

	svc := NewService(NewScanner(Config{}), store, provider, clearer, nil, time.Second)
	if err := svc.EvaluateOpenTrades(ctx); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	got, _ := store.GetTradeByID(ctx, "t-1")
	if got.Status != database.StatusStopHit {
		t.Fatalf("expected stop_hit after trigger+sweep, got %s", got.Status)
	}
	if got.TriggerHitTime == nil || !got.TriggerHitTime.Equal(scanBase) {
		t.Errorf("trigger checkpoint not recorded: %v", got.TriggerHitTime)
	}
	if got.ClosePrice == nil || *got.ClosePrice != 95 {
		t.Errorf("close price must be the stop level: %v", got.ClosePrice)
	}
	if got.PnL == nil || *got.PnL != -5 {
		t.Errorf("expected PnL -5, got %v", got.PnL)
	}
	if len(clearer.cleared) != 1 || clearer.cleared[0] != "BTCUSD:1h" {
		t.Errorf("context must be cleared on close: %v", clearer.cleared)
	}
}

// TestProviderFailureIsNonDestructive: an unavailable candle feed leaves
// the trade untouched.
func TestProviderFailureIsNonDestructive(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryTradeStore()

	trade := &database.TradeRecord{
		ID: "t-err", Ticker: "ETHUSD", Timeframe: "15m",
		Status: database.StatusActive, Action: database.ActionBuy,
		EntryPrice: 3000, TargetPrice: 3300, StopLoss: 2850,
		CreatedAt: scanBase.Add(-time.Hour),
	}
	if err := store.CreateTrade(ctx, trade); err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := NewService(NewScanner(Config{}), store, &stubProvider{err: errors.New("feed down")}, nil, nil, time.Second)
	if err := svc.EvaluateOpenTrades(ctx); err != nil {
		t.Fatalf("a per-trade failure must not fail the sweep: %v", err)
	}

	got, _ := store.GetTradeByID(ctx, "t-err")
	if got.Status != database.StatusActive {
		t.Errorf("trade mutated on an error path: %s", got.Status)
	}
}

// TestStillOpenIsNoop: no event in the window leaves everything as is.
func TestStillOpenIsNoop(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryTradeStore()
	clearer := &recordingClearer{}

	trade := &database.TradeRecord{
		ID: "t-open", Ticker: "SOLUSD", Timeframe: "1h",
		Status: database.StatusWaiting, Action: database.ActionBuy,
		StrategyType: "breakout",
		EntryPrice:   150, TargetPrice: 165, StopLoss: 142,
		CreatedAt: scanBase.Add(-time.Hour),
	}
	if err := store.CreateTrade(ctx, trade); err != nil {
		t.Fatalf("seed: %v", err)
	}

	provider := &stubProvider{candles: []market.Candle{
		candle(0, 148, 149.5, 147, 149),
	}}

	svc := NewService(NewScanner(Config{}), store, provider, clearer, nil, time.Second)
	if err := svc.EvaluateOpenTrades(ctx); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	got, _ := store.GetTradeByID(ctx, "t-open")
	if got.Status != database.StatusWaiting || got.TriggerHitTime != nil {
		t.Errorf("still-open trade mutated: %+v", got)
	}
	if len(clearer.cleared) != 0 {
		t.Errorf("context cleared without a close: %v", clearer.cleared)
	}
}
