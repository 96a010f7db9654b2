package analysis

import (
	"fmt"
	"math"
	"time"
)

// Recommendation action constants
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
	ActionHold = "hold"
	ActionWait = "wait"
)

// Strategy probability constants
const (
	ProbabilityLow    = "low"
	ProbabilityMedium = "medium"
	ProbabilityHigh   = "high"
)

// EntryStrategy is one AI-proposed way to enter a position. The embedded
// stop loss, when present, is the most reliable stop for this strategy.
type EntryStrategy struct {
	StrategyType string   `json:"strategy_type"`
	EntryPrice   float64  `json:"entry_price"`
	Probability  string   `json:"probability"` // low, medium, high
	StopLoss     *float64 `json:"stop_loss,omitempty"`
}

// StopLossLevel is one proposed stop with its rationale. StrategyType is
// optional; when set it explicitly ties the level to an entry strategy.
type StopLossLevel struct {
	Price        float64 `json:"price"`
	Reasoning    string  `json:"reasoning"`
	StrategyType string  `json:"strategy_type,omitempty"`
}

// RiskManagement groups the risk fields of an analysis.
type RiskManagement struct {
	StopLossLevels []StopLossLevel `json:"stop_loss_levels"`
}

// Recommendation is the model's trade recommendation. Prices are pointers
// because the model frequently omits them for hold/wait calls.
type Recommendation struct {
	Action      string   `json:"action"`
	EntryPrice  *float64 `json:"entry_price,omitempty"`
	TargetPrice *float64 `json:"target_price,omitempty"`
	StopLoss    *float64 `json:"stop_loss,omitempty"`
	Reasoning   string   `json:"reasoning,omitempty"`
}

// Result is one model output for a ticker/timeframe pair.
//
// ContextAssessment is deliberately untyped: the producing model sometimes
// returns null or a non-string value here, and the classifier must treat
// those as a fresh analysis rather than failing.
type Result struct {
	ID                     string          `json:"id"`
	Ticker                 string          `json:"ticker"`
	Timeframe              string          `json:"timeframe"`
	Timestamp              time.Time       `json:"timestamp"`
	CurrentPrice           float64         `json:"current_price"`
	ContextAssessment      interface{}     `json:"context_assessment"`
	PreviousPositionStatus string          `json:"previous_position_status,omitempty"`
	Recommendation         *Recommendation `json:"recommendation,omitempty"`
	EntryStrategies        []EntryStrategy `json:"entry_strategies,omitempty"`
	RiskManagement         RiskManagement  `json:"risk_management"`
}

// AssessmentText extracts the assessment as a string. The second return
// value is false when the field is absent, null, or not a string.
func (r *Result) AssessmentText() (string, bool) {
	s, ok := r.ContextAssessment.(string)
	return s, ok
}

// ValidateRecommendation checks whether the recommendation carries enough
// well-formed data to open a position. It returns nil for an actionable
// buy/sell recommendation and a descriptive error otherwise. Callers
// degrade a validation error to a no-op decision; it is never fatal.
func (r *Result) ValidateRecommendation() error {
	rec := r.Recommendation
	if rec == nil {
		return fmt.Errorf("analysis has no recommendation")
	}
	if rec.Action != ActionBuy && rec.Action != ActionSell {
		return fmt.Errorf("recommendation action %q is not actionable", rec.Action)
	}
	if err := validPrice("entry_price", rec.EntryPrice); err != nil {
		return err
	}
	if err := validPrice("target_price", rec.TargetPrice); err != nil {
		return err
	}
	// The stop loss may instead come from the selected entry strategy, so
	// it is only validated here when present.
	if rec.StopLoss != nil {
		if err := validPrice("stop_loss", rec.StopLoss); err != nil {
			return err
		}
	}
	return nil
}

// IsActionable reports whether the recommendation can open a position.
func (r *Result) IsActionable() bool {
	return r.ValidateRecommendation() == nil
}

func validPrice(field string, p *float64) error {
	if p == nil {
		return fmt.Errorf("recommendation missing %s", field)
	}
	if *p <= 0 || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return fmt.Errorf("recommendation %s %v is not a valid price", field, *p)
	}
	return nil
}
