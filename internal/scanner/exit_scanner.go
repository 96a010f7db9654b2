// Package scanner replays candle history to detect trigger and exit
// events that an instantaneous price check would miss: a stop can be
// swept by an intrabar excursion even when the latest price is back on
// the right side of it.
package scanner

import (
	"time"

	"chart-advisor/internal/database"
	"chart-advisor/internal/market"
)

// Exit event reasons.
const (
	ReasonTriggerHit      = "TRIGGER_HIT"
	ReasonStopLossHit     = "STOP_LOSS_HIT"
	ReasonProfitTargetHit = "PROFIT_TARGET_HIT"
)

// Sell-breakout trigger rules. The evidence on how a sell breakout entry
// should trigger is inconsistent, so the comparison is an explicit
// configuration instead of a guess.
const (
	SellBreakoutTriggerLowBelowEntry  = "low_below_entry"  // observed behavior, default
	SellBreakoutTriggerHighAboveEntry = "high_above_entry" // breakout-specific alternative
)

// DefaultGracePeriod excludes candles formed right around the trade's own
// creation from evaluation.
const DefaultGracePeriod = 60 * time.Second

// ExitEvent describes a trigger or exit found during replay. A nil
// *ExitEvent from Scan means "still open" and must never be read as an
// implicit maintain signal downstream.
type ExitEvent struct {
	Reason string    `json:"reason"` // TRIGGER_HIT, STOP_LOSS_HIT, PROFIT_TARGET_HIT
	Price  float64   `json:"price"`  // the level that was breached, not the candle extreme
	Time   time.Time `json:"time"`
}

// Config holds scanner tunables.
type Config struct {
	GracePeriod time.Duration
	// SellBreakoutTrigger selects the trigger comparison for sell trades
	// with a breakout strategy type.
	SellBreakoutTrigger string
}

// Scanner evaluates trades against candle history.
type Scanner struct {
	cfg Config
}

// NewScanner creates a scanner. Zero-value config fields get defaults.
func NewScanner(cfg Config) *Scanner {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.SellBreakoutTrigger == "" {
		cfg.SellBreakoutTrigger = SellBreakoutTriggerLowBelowEntry
	}
	return &Scanner{cfg: cfg}
}

// Scan replays the candles against the trade and returns the first
// qualifying event, or nil when the trade is still open.
//
// Candles must be chronological. Only candles after the trade's baseline
// checkpoint (trigger time, else creation time) and outside the creation
// grace period are evaluated. Boundaries are inclusive. When one candle
// satisfies both stop and target on an active trade, the stop wins: the
// conservative assumption is that the adverse path occurred first.
func (s *Scanner) Scan(trade *database.TradeRecord, candles []market.Candle) *ExitEvent {
	if trade == nil || trade.IsTerminal() {
		return nil
	}

	baseline := trade.BaselineTime()
	graceEnd := trade.CreatedAt.Add(s.cfg.GracePeriod)

	for i := range candles {
		candle := &candles[i]
		if candle.OpenTime.Before(baseline) || candle.OpenTime.Before(graceEnd) {
			continue
		}

		switch trade.Status {
		case database.StatusWaiting:
			if s.triggerHit(trade, candle) {
				return &ExitEvent{Reason: ReasonTriggerHit, Price: trade.EntryPrice, Time: candle.OpenTime}
			}
		case database.StatusActive:
			if event := exitHit(trade, candle); event != nil {
				return event
			}
		}
	}
	return nil
}

// triggerHit evaluates the waiting->active condition for one candle.
func (s *Scanner) triggerHit(trade *database.TradeRecord, candle *market.Candle) bool {
	breakout := trade.StrategyType == "breakout"

	if trade.Action == database.ActionBuy {
		if breakout {
			return candle.High >= trade.EntryPrice
		}
		return candle.Low <= trade.EntryPrice
	}

	// sell
	if breakout && s.cfg.SellBreakoutTrigger == SellBreakoutTriggerHighAboveEntry {
		return candle.High >= trade.EntryPrice
	}
	return candle.Low <= trade.EntryPrice
}

// exitHit evaluates an active trade against one candle, stop first.
func exitHit(trade *database.TradeRecord, candle *market.Candle) *ExitEvent {
	if trade.Action == database.ActionBuy {
		if candle.Low <= trade.StopLoss {
			return &ExitEvent{Reason: ReasonStopLossHit, Price: trade.StopLoss, Time: candle.OpenTime}
		}
		if candle.High >= trade.TargetPrice {
			return &ExitEvent{Reason: ReasonProfitTargetHit, Price: trade.TargetPrice, Time: candle.OpenTime}
		}
		return nil
	}

	if candle.High >= trade.StopLoss {
		return &ExitEvent{Reason: ReasonStopLossHit, Price: trade.StopLoss, Time: candle.OpenTime}
	}
	if candle.Low <= trade.TargetPrice {
		return &ExitEvent{Reason: ReasonProfitTargetHit, Price: trade.TargetPrice, Time: candle.OpenTime}
	}
	return nil
}
