package cache

import (
	"context"
	"testing"
	"time"
)

// Tests run in memory-only mode (nil Redis client), the same fallback path
// production takes when Redis is down.

func TestSaveGetClearRoundTrip(t *testing.T) {
	c := NewTradeContextCache(nil)
	ctx := context.Background()

	tc := &TradeContext{
		TradeID:     "t-1",
		Ticker:      "BTCUSD",
		Timeframe:   "1h",
		Status:      "active",
		Action:      "buy",
		EntryPrice:  118500,
		TargetPrice: 121000,
		StopLoss:    116000,
	}
	if err := c.SaveTradeContext(ctx, tc); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := c.GetTradeContext(ctx, "BTCUSD", "1h")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil || got.TradeID != "t-1" || got.StopLoss != 116000 {
		t.Errorf("unexpected context: %+v", got)
	}
	if got.SavedAt.IsZero() {
		t.Error("SavedAt should be stamped on save")
	}

	if err := c.ClearTradeContext(ctx, "BTCUSD", "1h"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	got, err = c.GetTradeContext(ctx, "BTCUSD", "1h")
	if err != nil {
		t.Fatalf("get after clear failed: %v", err)
	}
	if got != nil {
		t.Errorf("context should be gone after clear, got %+v", got)
	}
}

// TestMissingContextIsNilNotError verifies the stale-context contract:
// asking for a pair with no record returns nil, not an error.
func TestMissingContextIsNilNotError(t *testing.T) {
	c := NewTradeContextCache(nil)

	got, err := c.GetTradeContext(context.Background(), "LINKUSD", "15m")
	if err != nil {
		t.Fatalf("missing context must not error, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil context, got %+v", got)
	}
}

// TestTimeframeIsolation verifies a 1h context is invisible to 15m reads
// on the same ticker.
func TestTimeframeIsolation(t *testing.T) {
	c := NewTradeContextCache(nil)
	ctx := context.Background()

	trigger := time.Now()
	if err := c.SaveTradeContext(ctx, &TradeContext{
		TradeID: "t-1h", Ticker: "ETHUSD", Timeframe: "1h",
		Status: "active", Action: "buy", EntryPrice: 3000,
		TriggerHitTime: &trigger,
	}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := c.GetTradeContext(ctx, "ETHUSD", "15m")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Errorf("15m read must not see the 1h context, got %+v", got)
	}

	if err := c.ClearTradeContext(ctx, "ETHUSD", "15m"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	got, _ = c.GetTradeContext(ctx, "ETHUSD", "1h")
	if got == nil {
		t.Error("clearing 15m must not remove the 1h context")
	}
}
