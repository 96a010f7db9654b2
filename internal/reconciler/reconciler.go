// Package reconciler converts an AI position assessment plus the persisted
// trade state into deterministic, idempotent trade mutations. It is the
// root of the reconciliation engine: intent classification, strategy
// selection and the protection registry all feed the decision table here.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"chart-advisor/internal/analysis"
	"chart-advisor/internal/cache"
	"chart-advisor/internal/database"
	"chart-advisor/internal/events"
	"chart-advisor/internal/logging"
	"chart-advisor/internal/protection"
	"chart-advisor/internal/strategy"

	"github.com/google/uuid"
)

// Stop-loss provenance tag for a stop taken straight off the
// recommendation when no entry strategy carries one.
const stopMethodRecommendation = "recommendation"

// Reconciler orchestrates one reconciliation cycle per analysis.
type Reconciler struct {
	store      database.TradeStore
	classifier *analysis.IntentClassifier
	selector   *strategy.Selector
	registry   *protection.Registry
	contexts   *cache.TradeContextCache
	bus        *events.Bus
	timeout    time.Duration
	locks      *pairLocks
	logger     *logging.Logger
}

// New creates a Reconciler. contexts and bus may be nil.
func New(
	store database.TradeStore,
	classifier *analysis.IntentClassifier,
	selector *strategy.Selector,
	registry *protection.Registry,
	contexts *cache.TradeContextCache,
	bus *events.Bus,
	timeout time.Duration,
) *Reconciler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reconciler{
		store:      store,
		classifier: classifier,
		selector:   selector,
		registry:   registry,
		contexts:   contexts,
		bus:        bus,
		timeout:    timeout,
		locks:      newPairLocks(),
		logger:     logging.WithComponent("reconciler"),
	}
}

// Reconcile applies one analysis to the persisted state for the pair.
// Cycles for the same (ticker, timeframe) are serialized; different pairs
// run concurrently. All failures are reported inside the Result.
func (r *Reconciler) Reconcile(ctx context.Context, ticker, timeframe string, ar *analysis.Result) *Result {
	result := newResult()

	if ar == nil {
		return result.failed("no analysis provided")
	}
	if ticker == "" || timeframe == "" {
		return result.failed("ticker and timeframe are required")
	}

	unlock := r.locks.lock(ticker + ":" + timeframe)
	defer unlock()

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	existing, err := r.store.GetOpenTrade(callCtx, ticker, timeframe)
	if err != nil {
		// Degrade to a logged no-op; an unknown state must never feed a
		// destructive decision.
		result.addError(fmt.Errorf("failed to load open trade: %w", err))
		r.logger.WithError(err).Error("reconcile aborted, store unavailable",
			"ticker", ticker, "timeframe", timeframe)
		return result.failed("trade state unavailable")
	}

	// Intent is computed exactly once per cycle and passed down from here;
	// dependent checks receive it as a parameter instead of re-invoking
	// the classifier.
	intent := r.classifier.Classify(ar.ContextAssessment, ar.PreviousPositionStatus)

	log := logging.ReconcileContext(ticker, timeframe, string(intent))
	log.Info("reconciling analysis", "analysis_id", ar.ID, "has_existing", existing != nil)

	// Idempotence guard: if the open record was created by this very
	// analysis, the cycle already ran.
	if existing != nil && ar.ID != "" && existing.AnalysisID == ar.ID {
		r.protect(existing)
		return result.noAction(fmt.Sprintf("analysis %s already reconciled into trade %s", ar.ID, existing.ID))
	}

	switch {
	case intent == analysis.IntentMaintain:
		return r.maintain(callCtx, existing, result)

	case existing != nil && intent.IsClosure():
		return r.closeAndCreate(callCtx, existing, intent, ar, result)

	case existing == nil:
		return r.createIfActionable(callCtx, ticker, timeframe, ar, result)

	default:
		// FRESH/UNKNOWN with a live record: the one-open-record invariant
		// outranks the create branch. A fresh analysis that ignores an
		// open position must not destroy it without a classified closure
		// intent.
		result.ShouldPreserveExistingTargets = true
		r.protect(existing)
		return result.noAction(fmt.Sprintf("open trade %s preserved; analysis shows no closure intent", existing.ID))
	}
}

// maintain preserves the existing record untouched.
func (r *Reconciler) maintain(ctx context.Context, existing *database.TradeRecord, result *Result) *Result {
	result.Success = true
	result.ActionType = ActionMaintain
	result.ShouldPreserveExistingTargets = true

	if existing == nil {
		result.Message = "maintain intent with no open trade; nothing to do"
		return result
	}

	// A keep-existing decision protects the record from the cleanup pass
	// the same way a create does.
	r.protect(existing)
	r.saveContext(ctx, existing)
	result.Message = fmt.Sprintf("trade %s maintained, entry/target/stop preserved", existing.ID)

	r.publish(events.TradeMaintained, map[string]interface{}{"trade": existing})
	return result
}

// closeAndCreate ends the existing record per the closure intent, then
// creates the replacement when the recommendation is actionable.
func (r *Reconciler) closeAndCreate(ctx context.Context, existing *database.TradeRecord, intent analysis.Intent, ar *analysis.Result, result *Result) *Result {
	if err := r.registry.Guard(existing.ID); err != nil {
		// Refused, never silently dropped.
		result.addError(err)
		r.logger.WithError(err).Warn("closure refused by protection registry",
			"trade_id", existing.ID, "ticker", existing.Ticker, "timeframe", existing.Timeframe)
		return result.failed("existing trade is protected from replacement")
	}

	switch existing.Status {
	case database.StatusWaiting:
		// Never triggered: hard delete, no P&L.
		if err := r.store.DeleteTrade(ctx, existing.ID); err != nil {
			result.addError(fmt.Errorf("failed to delete waiting trade %s: %w", existing.ID, err))
			return result.failed("could not remove superseded trade")
		}
		r.logger.Info("waiting trade removed",
			"trade_id", existing.ID, "ticker", existing.Ticker, "intent", string(intent))

	case database.StatusActive:
		closePrice := ar.CurrentPrice
		now := time.Now()
		pnl, pnlPercent := realizedPnL(existing, closePrice)

		existing.Status = database.StatusAIClosed
		existing.ClosePrice = &closePrice
		existing.ClosedAt = &now
		existing.PnL = &pnl
		existing.PnLPercent = &pnlPercent

		if err := r.store.UpdateTrade(ctx, existing); err != nil {
			result.addError(fmt.Errorf("failed to close trade %s: %w", existing.ID, err))
			return result.failed("could not close active trade")
		}
		r.logger.Info("active trade closed by analysis",
			"trade_id", existing.ID, "ticker", existing.Ticker, "close_price", closePrice, "pnl", pnl)
	}

	r.clearContext(ctx, existing.Ticker, existing.Timeframe)
	result.ClosedTrades = append(result.ClosedTrades, existing)
	result.ShouldDeactivateRecommendations = true
	r.publish(events.TradeClosed, map[string]interface{}{"trade": existing, "reason": string(intent)})

	created := r.tryCreate(ctx, existing.Ticker, existing.Timeframe, ar, result)
	result.Success = true
	if created != nil {
		result.ActionType = ActionCloseAndCreate
		result.Message = fmt.Sprintf("trade %s replaced by %s", existing.ID, created.ID)
	} else {
		result.ActionType = ActionClose
		result.Message = fmt.Sprintf("trade %s closed, no actionable replacement", existing.ID)
	}
	return result
}

// createIfActionable creates a new record when the recommendation is
// usable, otherwise records why not.
func (r *Reconciler) createIfActionable(ctx context.Context, ticker, timeframe string, ar *analysis.Result, result *Result) *Result {
	created := r.tryCreate(ctx, ticker, timeframe, ar, result)
	if created == nil {
		result.Success = true
		result.ActionType = ActionNoAction
		result.Message = "no actionable recommendation"
		return result
	}
	result.Success = true
	result.ActionType = ActionCreateNew
	result.Message = fmt.Sprintf("trade %s created at %.8g", created.ID, created.EntryPrice)
	return result
}

// tryCreate validates and persists a new trade. A nil return means the
// recommendation was not actionable; the reason is already recorded.
func (r *Reconciler) tryCreate(ctx context.Context, ticker, timeframe string, ar *analysis.Result, result *Result) *database.TradeRecord {
	trade, err := r.buildTrade(ticker, timeframe, ar)
	if err != nil {
		result.addError(err)
		r.logger.WithError(err).Info("recommendation not actionable",
			"ticker", ticker, "timeframe", timeframe, "analysis_id", ar.ID)
		return nil
	}

	// Register before the insert so no concurrent cleanup pass can ever
	// observe the id unprotected.
	r.registry.Add(trade.ID, time.Now())

	if err := r.store.CreateTrade(ctx, trade); err != nil {
		result.addError(fmt.Errorf("failed to create trade: %w", err))
		return nil
	}

	r.saveContext(ctx, trade)
	result.NewTrades = append(result.NewTrades, trade)
	r.publish(events.TradeCreated, map[string]interface{}{"trade": trade})
	return trade
}

// buildTrade resolves entry/target/stop from the recommendation and the
// selected entry strategy.
func (r *Reconciler) buildTrade(ticker, timeframe string, ar *analysis.Result) (*database.TradeRecord, error) {
	if err := ar.ValidateRecommendation(); err != nil {
		return nil, err
	}
	rec := ar.Recommendation

	trade := &database.TradeRecord{
		ID:          uuid.NewString(),
		Ticker:      ticker,
		Timeframe:   timeframe,
		Status:      database.StatusWaiting,
		Action:      rec.Action,
		EntryPrice:  *rec.EntryPrice,
		TargetPrice: *rec.TargetPrice,
		AnalysisID:  ar.ID,
	}

	if len(ar.EntryStrategies) > 0 {
		sel, err := r.selector.Select(ar)
		if err != nil {
			return nil, err
		}
		trade.StrategyType = sel.Strategy.StrategyType
		if sel.Strategy.EntryPrice > 0 {
			trade.EntryPrice = sel.Strategy.EntryPrice
		}
		if sel.StopLoss != nil {
			trade.StopLoss = *sel.StopLoss
			trade.StopLossMethod = sel.StopLossMethod
		}
	}

	if trade.StopLoss == 0 {
		if rec.StopLoss == nil {
			return nil, fmt.Errorf("no stop loss resolvable from recommendation or strategies")
		}
		trade.StopLoss = *rec.StopLoss
		trade.StopLossMethod = stopMethodRecommendation
	}

	return trade, nil
}

func (r *Reconciler) protect(trade *database.TradeRecord) {
	if trade != nil {
		r.registry.Add(trade.ID, time.Now())
	}
}

func (r *Reconciler) saveContext(ctx context.Context, trade *database.TradeRecord) {
	if r.contexts == nil {
		return
	}
	err := r.contexts.SaveTradeContext(ctx, &cache.TradeContext{
		TradeID:        trade.ID,
		Ticker:         trade.Ticker,
		Timeframe:      trade.Timeframe,
		Status:         trade.Status,
		Action:         trade.Action,
		EntryPrice:     trade.EntryPrice,
		TargetPrice:    trade.TargetPrice,
		StopLoss:       trade.StopLoss,
		TriggerHitTime: trade.TriggerHitTime,
	})
	if err != nil {
		r.logger.WithError(err).Warn("failed to save trade context", "trade_id", trade.ID)
	}
}

func (r *Reconciler) clearContext(ctx context.Context, ticker, timeframe string) {
	if r.contexts == nil {
		return
	}
	if err := r.contexts.ClearTradeContext(ctx, ticker, timeframe); err != nil {
		r.logger.WithError(err).Warn("failed to clear trade context",
			"ticker", ticker, "timeframe", timeframe)
	}
}

func (r *Reconciler) publish(eventType events.Type, data map[string]interface{}) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.Event{Type: eventType, Data: data})
}

func realizedPnL(trade *database.TradeRecord, closePrice float64) (pnl, pnlPercent float64) {
	if trade.Action == database.ActionSell {
		pnl = trade.EntryPrice - closePrice
	} else {
		pnl = closePrice - trade.EntryPrice
	}
	if trade.EntryPrice != 0 {
		pnlPercent = pnl / trade.EntryPrice * 100
	}
	return pnl, pnlPercent
}
