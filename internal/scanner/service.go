package scanner

import (
	"context"
	"fmt"
	"time"

	"chart-advisor/internal/database"
	"chart-advisor/internal/events"
	"chart-advisor/internal/logging"
	"chart-advisor/internal/market"
)

// ContextClearer removes the cached trade context for a pair. When a trade
// closes, the cache must be cleared immediately so stale entry/stop data is
// never echoed back to the analysis producer as if the position were live.
type ContextClearer interface {
	ClearTradeContext(ctx context.Context, ticker, timeframe string) error
}

// Service runs historical exit scans over open trades and applies the
// resulting lifecycle transitions to the store.
type Service struct {
	scanner  *Scanner
	store    database.TradeStore
	provider market.CandleProvider
	cache    ContextClearer
	bus      *events.Bus
	timeout  time.Duration
	logger   *logging.Logger
}

// NewService wires the scanner against its collaborators. cache and bus
// may be nil.
func NewService(sc *Scanner, store database.TradeStore, provider market.CandleProvider, cache ContextClearer, bus *events.Bus, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Service{
		scanner:  sc,
		store:    store,
		provider: provider,
		cache:    cache,
		bus:      bus,
		timeout:  timeout,
		logger:   logging.WithComponent("exit_scanner"),
	}
}

// EvaluateOpenTrades scans every open trade. Collaborator failures degrade
// to a logged no-op for that trade; scanning never takes a destructive
// action on an error path.
func (s *Service) EvaluateOpenTrades(ctx context.Context) error {
	trades, err := s.store.ListOpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("failed to list open trades: %w", err)
	}

	for _, trade := range trades {
		if err := s.EvaluateTrade(ctx, trade); err != nil {
			s.logger.WithError(err).Warn("historical scan skipped",
				"trade_id", trade.ID, "ticker", trade.Ticker, "timeframe", trade.Timeframe)
		}
	}
	return nil
}

// EvaluateTrade fetches candles from the trade's baseline and applies the
// first detected event. A trigger is applied and the remaining candles are
// rescanned in the same pass, so a trade that triggered and then stopped
// out inside the window closes correctly.
func (s *Service) EvaluateTrade(ctx context.Context, trade *database.TradeRecord) error {
	if trade == nil || trade.IsTerminal() {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	candles, err := s.provider.CandlesSince(callCtx, trade.Ticker, trade.Timeframe, trade.BaselineTime())
	if err != nil {
		return fmt.Errorf("candle history unavailable: %w", err)
	}

	event := s.scanner.Scan(trade, candles)
	if event == nil {
		return nil
	}

	if event.Reason == ReasonTriggerHit {
		if err := s.applyTrigger(ctx, trade, event); err != nil {
			return err
		}
		// The triggering candle itself may have run through the stop or
		// target; rescan the remainder of the window as an active trade.
		event = s.scanner.Scan(trade, candles)
		if event == nil {
			return nil
		}
	}

	return s.applyExit(ctx, trade, event)
}

func (s *Service) applyTrigger(ctx context.Context, trade *database.TradeRecord, event *ExitEvent) error {
	hit := event.Time
	trade.Status = database.StatusActive
	trade.TriggerHitTime = &hit
	if err := s.store.UpdateTrade(ctx, trade); err != nil {
		return fmt.Errorf("failed to activate trade %s: %w", trade.ID, err)
	}

	s.logger.Info("trade triggered",
		"trade_id", trade.ID, "ticker", trade.Ticker, "timeframe", trade.Timeframe,
		"entry_price", trade.EntryPrice, "trigger_time", hit.Format(time.RFC3339))

	s.publish(events.TradeTriggered, trade, event)
	return nil
}

func (s *Service) applyExit(ctx context.Context, trade *database.TradeRecord, event *ExitEvent) error {
	status := database.StatusStopHit
	if event.Reason == ReasonProfitTargetHit {
		status = database.StatusProfitHit
	}

	closePrice := event.Price
	closedAt := event.Time
	pnl, pnlPercent := realizedPnL(trade, closePrice)

	trade.Status = status
	trade.ClosePrice = &closePrice
	trade.ClosedAt = &closedAt
	trade.PnL = &pnl
	trade.PnLPercent = &pnlPercent

	if err := s.store.UpdateTrade(ctx, trade); err != nil {
		return fmt.Errorf("failed to close trade %s: %w", trade.ID, err)
	}

	// The position no longer exists; stale context must not survive it.
	if s.cache != nil {
		if err := s.cache.ClearTradeContext(ctx, trade.Ticker, trade.Timeframe); err != nil {
			s.logger.WithError(err).Warn("failed to clear trade context",
				"ticker", trade.Ticker, "timeframe", trade.Timeframe)
		}
	}

	s.logger.Info("trade closed by replay",
		"trade_id", trade.ID, "ticker", trade.Ticker, "timeframe", trade.Timeframe,
		"reason", event.Reason, "price", event.Price, "pnl", pnl)

	s.publish(events.TradeClosed, trade, event)
	return nil
}

func (s *Service) publish(eventType events.Type, trade *database.TradeRecord, event *ExitEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		Type: eventType,
		Data: map[string]interface{}{
			"trade":  trade,
			"reason": event.Reason,
			"price":  event.Price,
			"time":   event.Time,
		},
	})
}

// realizedPnL computes entry-vs-close P&L in quote terms per unit and as
// a percentage of the entry.
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
