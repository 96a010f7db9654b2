// Package strategy picks the best AI-proposed entry strategy and resolves
// its stop loss through a layered fallback chain. Every resolution reports
// which method produced the stop, so monitoring can flag the unreliable
// paths.
package strategy

import (
	"fmt"
	"sort"
	"strings"

	"chart-advisor/internal/analysis"

	"github.com/rs/zerolog"
)

// Stop-loss resolution provenance tags, ordered from most to least
// reliable. index_fallback and first_available are defect-prone and are
// logged whenever taken.
const (
	MethodStrategyEmbedded    = "strategy_embedded"
	MethodStrategyTypeMatched = "strategy_type_matched"
	MethodReasoningMatched    = "reasoning_matched"
	MethodIndexFallback       = "index_fallback"
	MethodFirstAvailable      = "first_available"
	MethodNone                = "none"
)

// Strategy type constants used by the trigger rules downstream.
const (
	TypeBreakout = "breakout"
	TypePullback = "pullback"
)

// Selection is the outcome of strategy selection: the chosen strategy, its
// position in the original array (before ranking), and the resolved stop.
type Selection struct {
	Strategy       analysis.EntryStrategy `json:"strategy"`
	OriginalIndex  int                    `json:"original_index"`
	StopLoss       *float64               `json:"stop_loss,omitempty"`
	StopLossMethod string                 `json:"stop_loss_method"`
}

// Selector ranks entry strategies and correlates stop losses.
type Selector struct {
	logger zerolog.Logger
}

// NewSelector creates a Selector. The logger receives warning events when
// an unreliable stop-loss resolution path is taken.
func NewSelector(logger zerolog.Logger) *Selector {
	return &Selector{logger: logger}
}

// Select ranks the analysis' entry strategies by probability (stable sort,
// so array order breaks ties) and resolves the winner's stop loss.
func (s *Selector) Select(result *analysis.Result) (*Selection, error) {
	if len(result.EntryStrategies) == 0 {
		return nil, fmt.Errorf("analysis for %s %s has no entry strategies", result.Ticker, result.Timeframe)
	}

	type indexed struct {
		strategy analysis.EntryStrategy
		index    int
	}
	ranked := make([]indexed, len(result.EntryStrategies))
	for i, st := range result.EntryStrategies {
		ranked[i] = indexed{strategy: st, index: i}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return probabilityRank(ranked[a].strategy.Probability) > probabilityRank(ranked[b].strategy.Probability)
	})

	sel := &Selection{
		Strategy:      ranked[0].strategy,
		OriginalIndex: ranked[0].index,
	}
	s.resolveStopLoss(sel, result)
	return sel, nil
}

// resolveStopLoss walks the fallback chain and records which layer fired.
func (s *Selector) resolveStopLoss(sel *Selection, result *analysis.Result) {
	levels := result.RiskManagement.StopLossLevels
	strategyType := strings.ToLower(sel.Strategy.StrategyType)

	// Layer 1: the selected strategy carries its own stop.
	if sel.Strategy.StopLoss != nil {
		sel.StopLoss = sel.Strategy.StopLoss
		sel.StopLossMethod = MethodStrategyEmbedded
		return
	}

	// Layer 2: a stop level explicitly tagged with this strategy type.
	for i := range levels {
		if levels[i].StrategyType != "" && strings.EqualFold(levels[i].StrategyType, sel.Strategy.StrategyType) {
			sel.StopLoss = &levels[i].Price
			sel.StopLossMethod = MethodStrategyTypeMatched
			return
		}
	}

	// Layer 3: a stop level whose reasoning mentions the strategy type.
	if strategyType != "" {
		for i := range levels {
			if strings.Contains(strings.ToLower(levels[i].Reasoning), strategyType) {
				sel.StopLoss = &levels[i].Price
				sel.StopLossMethod = MethodReasoningMatched
				return
			}
		}
	}

	// Layer 4: positional correlation on the pre-sort index. Array order
	// is not a reliable link between strategies and stops; this is the
	// path that once applied the wrong strategy's stop, so it is always
	// surfaced to monitoring.
	if sel.OriginalIndex < len(levels) {
		sel.StopLoss = &levels[sel.OriginalIndex].Price
		sel.StopLossMethod = MethodIndexFallback
		s.logger.Warn().
			Str("ticker", result.Ticker).
			Str("timeframe", result.Timeframe).
			Str("strategy_type", sel.Strategy.StrategyType).
			Int("index", sel.OriginalIndex).
			Float64("stop_loss", levels[sel.OriginalIndex].Price).
			Msg("stop loss resolved by index fallback, correlation unverified")
		return
	}

	// Layer 5: last resort, take whatever stop exists.
	if len(levels) > 0 {
		sel.StopLoss = &levels[0].Price
		sel.StopLossMethod = MethodFirstAvailable
		s.logger.Error().
			Str("ticker", result.Ticker).
			Str("timeframe", result.Timeframe).
			Str("strategy_type", sel.Strategy.StrategyType).
			Float64("stop_loss", levels[0].Price).
			Msg("stop loss resolved by first available level, no correlation")
		return
	}

	sel.StopLossMethod = MethodNone
}

// IsUnreliableMethod reports whether the given provenance tag came from a
// fallback path that monitoring should alert on.
func IsUnreliableMethod(method string) bool {
	return method == MethodIndexFallback || method == MethodFirstAvailable
}

func probabilityRank(p string) int {
	switch strings.ToLower(p) {
	case analysis.ProbabilityHigh:
		return 3
	case analysis.ProbabilityMedium:
		return 2
	case analysis.ProbabilityLow:
		return 1
	default:
		return 0
	}
}
