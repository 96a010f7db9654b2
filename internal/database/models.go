package database

import (
	"time"
)

// Trade action constants
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
)

// Trade status constants. A record moves waiting -> active on trigger,
// then to exactly one terminal status. Terminal records are immutable
// except for reads.
const (
	StatusWaiting    = "waiting"
	StatusActive     = "active"
	StatusProfitHit  = "profit_hit"
	StatusStopHit    = "stop_hit"
	StatusAIClosed   = "ai_closed"
	StatusUserClosed = "user_closed"
)

// TradeRecord is one position candidate per (ticker, timeframe) pair.
// At most one non-terminal record may exist per pair; records on
// different timeframes are fully independent.
type TradeRecord struct {
	ID             string     `json:"id"`
	Ticker         string     `json:"ticker"`
	Timeframe      string     `json:"timeframe"`
	Status         string     `json:"status"`
	Action         string     `json:"action"` // buy or sell
	StrategyType   string     `json:"strategy_type,omitempty"`
	EntryPrice     float64    `json:"entry_price"`
	TargetPrice    float64    `json:"target_price"`
	StopLoss       float64    `json:"stop_loss"`
	StopLossMethod string     `json:"stop_loss_method,omitempty"`
	TriggerHitTime *time.Time `json:"trigger_hit_time,omitempty"`
	ClosePrice     *float64   `json:"close_price,omitempty"`
	PnL            *float64   `json:"pnl,omitempty"`
	PnLPercent     *float64   `json:"pnl_percent,omitempty"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	AnalysisID     string     `json:"analysis_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the record reached a final status.
func (t *TradeRecord) IsTerminal() bool {
	switch t.Status {
	case StatusProfitHit, StatusStopHit, StatusAIClosed, StatusUserClosed:
		return true
	}
	return false
}

// IsOpen reports whether the record is waiting or active.
func (t *TradeRecord) IsOpen() bool {
	return t.Status == StatusWaiting || t.Status == StatusActive
}

// BaselineTime is the checkpoint from which candle replay begins:
// trigger_hit_time when present, else created_at. Treating a missing
// trigger time as "nothing to scan" was the root cause of missed
// stop-loss detections, so the fallback is load-bearing.
func (t *TradeRecord) BaselineTime() time.Time {
	if t.TriggerHitTime != nil {
		return *t.TriggerHitTime
	}
	return t.CreatedAt
}
