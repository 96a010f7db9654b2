package reconciler

import (
	"context"
	"testing"
	"time"

	"chart-advisor/internal/analysis"
	"chart-advisor/internal/cache"
	"chart-advisor/internal/database"
	"chart-advisor/internal/protection"
	"chart-advisor/internal/strategy"

	"github.com/rs/zerolog"
)

func floatPtr(v float64) *float64 { return &v }

type fixture struct {
	store    *database.MemoryTradeStore
	registry *protection.Registry
	contexts *cache.TradeContextCache
	rec      *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := database.NewMemoryTradeStore()
	registry := protection.NewRegistry(5 * time.Minute)
	contexts := cache.NewTradeContextCache(nil)
	rec := New(
		store,
		analysis.NewIntentClassifier(),
		strategy.NewSelector(zerolog.Nop()),
		registry,
		contexts,
		nil,
		5*time.Second,
	)
	return &fixture{store: store, registry: registry, contexts: contexts, rec: rec}
}

func buyAnalysis(id, ticker, timeframe string, entry, target, stop float64) *analysis.Result {
	return &analysis.Result{
		ID:           id,
		Ticker:       ticker,
		Timeframe:    timeframe,
		Timestamp:    time.Now(),
		CurrentPrice: entry,
		Recommendation: &analysis.Recommendation{
			Action:      analysis.ActionBuy,
			EntryPrice:  floatPtr(entry),
			TargetPrice: floatPtr(target),
			StopLoss:    floatPtr(stop),
		},
	}
}

func seedTrade(t *testing.T, f *fixture, trade *database.TradeRecord) {
	t.Helper()
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = time.Now().Add(-time.Hour)
	}
	if err := f.store.CreateTrade(context.Background(), trade); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

// TestModifyReplacesWaitingTrade covers spec scenario 1: a waiting trade
// plus a MODIFY assessment hard-deletes the old record (no P&L) and
// creates the replacement at the new entry.
func TestModifyReplacesWaitingTrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedTrade(t, f, &database.TradeRecord{
		ID: "old-1", Ticker: "LINKUSD", Timeframe: "4h",
		Status: database.StatusWaiting, Action: database.ActionBuy,
		EntryPrice: 14.20, TargetPrice: 15.80, StopLoss: 13.50,
	})

	ar := buyAnalysis("a-2", "LINKUSD", "4h", 16.10, 18.00, 15.20)
	ar.ContextAssessment = "Previous Position Status: MODIFY. Entry moves up after the breakout held."

	result := f.rec.Reconcile(ctx, "LINKUSD", "4h", ar)

	if !result.Success || result.ActionType != ActionCloseAndCreate {
		t.Fatalf("expected close_and_create, got %+v", result)
	}
	if len(result.ClosedTrades) != 1 || result.ClosedTrades[0].ID != "old-1" {
		t.Errorf("old trade should be in closedTrades: %+v", result.ClosedTrades)
	}
	if result.ClosedTrades[0].PnL != nil {
		t.Error("a never-triggered trade must not record P&L")
	}
	if len(result.NewTrades) != 1 || result.NewTrades[0].EntryPrice != 16.10 {
		t.Errorf("new trade should be created at 16.10: %+v", result.NewTrades)
	}

	// Old record is gone from the store, not closed.
	old, _ := f.store.GetTradeByID(ctx, "old-1")
	if old != nil {
		t.Error("waiting trade should be hard-deleted on replace")
	}
	// Replacement is protected against the cleanup pass.
	if !f.registry.IsProtected(result.NewTrades[0].ID) {
		t.Error("replacement trade must be protected immediately")
	}
}

// TestMaintainWithNoTradeIsNoMutation covers spec scenario 2: a maintain
// assessment containing an incidental "close" yields Maintain with no
// closed or new trades.
func TestMaintainWithNoTradeIsNoMutation(t *testing.T) {
	f := newFixture(t)

	ar := &analysis.Result{
		ID:                "a-1",
		ContextAssessment: "Previous Position Status: MAINTAIN. Price is close to optimal entry.",
		Recommendation:    &analysis.Recommendation{Action: analysis.ActionHold},
	}

	result := f.rec.Reconcile(context.Background(), "BTCUSD", "1h", ar)

	if !result.Success || result.ActionType != ActionMaintain {
		t.Fatalf("expected maintain, got %+v", result)
	}
	if len(result.ClosedTrades) != 0 || len(result.NewTrades) != 0 {
		t.Errorf("maintain must not mutate: %+v", result)
	}
	if !result.ShouldPreserveExistingTargets {
		t.Error("maintain must preserve existing targets")
	}
}

func TestMaintainPreservesExistingTrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedTrade(t, f, &database.TradeRecord{
		ID: "t-1", Ticker: "ETHUSD", Timeframe: "1h",
		Status: database.StatusActive, Action: database.ActionBuy,
		EntryPrice: 3000, TargetPrice: 3300, StopLoss: 2850,
	})

	ar := &analysis.Result{
		ID:                "a-9",
		ContextAssessment: "Previous position status: maintain. Structure remains intact.",
	}

	result := f.rec.Reconcile(ctx, "ETHUSD", "1h", ar)
	if result.ActionType != ActionMaintain {
		t.Fatalf("expected maintain, got %s", result.ActionType)
	}

	got, _ := f.store.GetTradeByID(ctx, "t-1")
	if got == nil || got.EntryPrice != 3000 || got.StopLoss != 2850 || got.Status != database.StatusActive {
		t.Errorf("maintained trade must be untouched: %+v", got)
	}
	if !f.registry.IsProtected("t-1") {
		t.Error("a keep-existing decision must protect the record")
	}
}

// TestActiveCloseRecordsPnL: an active trade closed by a closure intent
// records realized P&L against the analysis' current price.
func TestActiveCloseRecordsPnL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	trigger := time.Now().Add(-30 * time.Minute)
	seedTrade(t, f, &database.TradeRecord{
		ID: "t-act", Ticker: "BTCUSD", Timeframe: "1h",
		Status: database.StatusActive, Action: database.ActionBuy,
		EntryPrice: 118500, TargetPrice: 121000, StopLoss: 116000,
		TriggerHitTime: &trigger,
	})

	ar := buyAnalysis("a-close", "BTCUSD", "1h", 120000, 124000, 118000)
	ar.CurrentPrice = 119500
	ar.ContextAssessment = "Previous position invalidated, trade cancellation and re-entry higher."

	result := f.rec.Reconcile(ctx, "BTCUSD", "1h", ar)
	if result.ActionType != ActionCloseAndCreate {
		t.Fatalf("expected close_and_create, got %+v", result)
	}

	closed := result.ClosedTrades[0]
	if closed.Status != database.StatusAIClosed {
		t.Errorf("expected ai_closed, got %s", closed.Status)
	}
	if closed.PnL == nil || *closed.PnL != 1000 {
		t.Errorf("expected PnL 1000, got %v", closed.PnL)
	}
	if !result.ShouldDeactivateRecommendations {
		t.Error("closure must flag recommendation deactivation")
	}

	// Context for the pair now describes the new trade, not the closed one.
	tc, _ := f.contexts.GetTradeContext(ctx, "BTCUSD", "1h")
	if tc == nil || tc.TradeID == "t-act" {
		t.Errorf("stale context must not survive a close: %+v", tc)
	}
}

// TestReconcileIsIdempotent: running the same analysis twice never
// double-creates or double-closes.
func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ar := buyAnalysis("a-1", "SOLUSD", "15m", 150, 165, 142)

	first := f.rec.Reconcile(ctx, "SOLUSD", "15m", ar)
	if first.ActionType != ActionCreateNew || len(first.NewTrades) != 1 {
		t.Fatalf("first cycle should create: %+v", first)
	}

	second := f.rec.Reconcile(ctx, "SOLUSD", "15m", ar)
	if second.ActionType != ActionNoAction || len(second.NewTrades) != 0 || len(second.ClosedTrades) != 0 {
		t.Fatalf("second cycle must be a no-op: %+v", second)
	}

	open, _ := f.store.ListOpenTrades(ctx)
	if len(open) != 1 {
		t.Errorf("expected exactly one open trade, got %d", len(open))
	}
}

// TestProtectionBlocksImmediateReplacement: a just-created record cannot
// be replaced inside its protection window, and the refusal is reported.
func TestProtectionBlocksImmediateReplacement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.rec.Reconcile(ctx, "AVAXUSD", "1h", buyAnalysis("a-1", "AVAXUSD", "1h", 40, 46, 37))
	if created.ActionType != ActionCreateNew {
		t.Fatalf("setup create failed: %+v", created)
	}

	replace := buyAnalysis("a-2", "AVAXUSD", "1h", 42, 48, 39)
	replace.ContextAssessment = "Previous Position Status: REPLACE with a higher entry."

	result := f.rec.Reconcile(ctx, "AVAXUSD", "1h", replace)
	if result.Success {
		t.Fatalf("replacement inside the window must be refused: %+v", result)
	}
	if len(result.Errors) == 0 {
		t.Error("refusal must carry a descriptive error")
	}

	open, _ := f.store.GetOpenTrade(ctx, "AVAXUSD", "1h")
	if open == nil || open.ID != created.NewTrades[0].ID {
		t.Error("protected trade must survive the replacement attempt")
	}
}

// TestTimeframeIsolation: reconciling a 15m analysis neither reads nor
// mutates the 1h record on the same ticker.
func TestTimeframeIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedTrade(t, f, &database.TradeRecord{
		ID: "t-1h", Ticker: "BTCUSD", Timeframe: "1h",
		Status: database.StatusWaiting, Action: database.ActionBuy,
		EntryPrice: 118000, TargetPrice: 122000, StopLoss: 115000,
	})

	ar := buyAnalysis("a-15", "BTCUSD", "15m", 118200, 119000, 117500)
	ar.ContextAssessment = "Previous position status: replace after the failed breakout."

	result := f.rec.Reconcile(ctx, "BTCUSD", "15m", ar)

	// No 15m record existed, so nothing closes; closure intent with no
	// record falls through to creation.
	if len(result.ClosedTrades) != 0 {
		t.Errorf("15m cycle closed something: %+v", result.ClosedTrades)
	}
	if result.ActionType != ActionCreateNew {
		t.Fatalf("expected create_new on empty 15m pair, got %+v", result)
	}

	h1, _ := f.store.GetTradeByID(ctx, "t-1h")
	if h1 == nil || h1.Status != database.StatusWaiting || h1.EntryPrice != 118000 {
		t.Errorf("1h record must be untouched by the 15m cycle: %+v", h1)
	}
}

// TestMalformedRecommendationDegradesToNoAction: bad recommendation data
// is recorded as an error, never raised.
func TestMalformedRecommendationDegradesToNoAction(t *testing.T) {
	f := newFixture(t)

	cases := []*analysis.Result{
		{ID: "m-1"}, // no recommendation at all
		{ID: "m-2", Recommendation: &analysis.Recommendation{Action: analysis.ActionBuy, TargetPrice: floatPtr(100)}},
		{ID: "m-3", Recommendation: &analysis.Recommendation{Action: analysis.ActionBuy, EntryPrice: floatPtr(-5), TargetPrice: floatPtr(100), StopLoss: floatPtr(90)}},
		{ID: "m-4", Recommendation: &analysis.Recommendation{EntryPrice: floatPtr(95), TargetPrice: floatPtr(100), StopLoss: floatPtr(90)}},
	}

	for _, ar := range cases {
		result := f.rec.Reconcile(context.Background(), "DOGEUSD", "1h", ar)
		if !result.Success || result.ActionType != ActionNoAction {
			t.Errorf("analysis %s: expected recovered no_action, got %+v", ar.ID, result)
		}
		if len(result.Errors) == 0 {
			t.Errorf("analysis %s: validation failure must be recorded", ar.ID)
		}
	}
}

// TestFreshIntentPreservesOpenTrade: FRESH/UNKNOWN with a live record
// never destroys it.
func TestFreshIntentPreservesOpenTrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedTrade(t, f, &database.TradeRecord{
		ID: "t-keep", Ticker: "LINKUSD", Timeframe: "1h",
		Status: database.StatusActive, Action: database.ActionBuy,
		EntryPrice: 14, TargetPrice: 16, StopLoss: 13,
	})

	ar := buyAnalysis("a-fresh", "LINKUSD", "1h", 15, 17, 14)
	ar.ContextAssessment = "Strong setup forming above support."

	result := f.rec.Reconcile(ctx, "LINKUSD", "1h", ar)
	if result.ActionType != ActionNoAction || !result.ShouldPreserveExistingTargets {
		t.Fatalf("expected preserving no_action, got %+v", result)
	}

	got, _ := f.store.GetTradeByID(ctx, "t-keep")
	if got == nil || got.Status != database.StatusActive {
		t.Errorf("open trade must survive a fresh analysis: %+v", got)
	}
}

// TestStrategySelectionFeedsNewTrade: entry strategies override the
// recommendation entry and supply the stop with provenance.
func TestStrategySelectionFeedsNewTrade(t *testing.T) {
	f := newFixture(t)

	ar := &analysis.Result{
		ID:           "a-strat",
		CurrentPrice: 118000,
		Recommendation: &analysis.Recommendation{
			Action:      analysis.ActionBuy,
			EntryPrice:  floatPtr(118000),
			TargetPrice: floatPtr(124000),
		},
		EntryStrategies: []analysis.EntryStrategy{
			{StrategyType: "breakout", EntryPrice: 120000, Probability: "medium", StopLoss: floatPtr(119000)},
			{StrategyType: "pullback", EntryPrice: 117000, Probability: "high", StopLoss: floatPtr(115500)},
		},
	}

	result := f.rec.Reconcile(context.Background(), "BTCUSD", "4h", ar)
	if result.ActionType != ActionCreateNew {
		t.Fatalf("expected create_new, got %+v", result)
	}

	trade := result.NewTrades[0]
	if trade.StrategyType != "pullback" || trade.EntryPrice != 117000 || trade.StopLoss != 115500 {
		t.Errorf("selected strategy should shape the trade: %+v", trade)
	}
	if trade.StopLossMethod != strategy.MethodStrategyEmbedded {
		t.Errorf("expected strategy_embedded provenance, got %s", trade.StopLossMethod)
	}
}
