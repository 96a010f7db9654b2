package logging

// Domain logger contexts. These mirror the structured fields the dashboard
// and monitoring expect on each subsystem's log lines.

// ReconcileContext creates a logger context for reconciliation cycles.
func ReconcileContext(ticker, timeframe, intent string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"ticker":    ticker,
		"timeframe": timeframe,
		"intent":    intent,
	}).WithComponent("reconciler")
}

// ScanContext creates a logger context for historical exit scans.
func ScanContext(tradeID, ticker, timeframe string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"trade_id":  tradeID,
		"ticker":    ticker,
		"timeframe": timeframe,
	}).WithComponent("exit_scanner")
}

// StrategyContext creates a logger context for strategy selection.
func StrategyContext(ticker, timeframe, strategyType, stopMethod string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"ticker":           ticker,
		"timeframe":        timeframe,
		"strategy_type":    strategyType,
		"stop_loss_method": stopMethod,
	}).WithComponent("strategy")
}

// ProtectionContext creates a logger context for the delete guard.
func ProtectionContext(tradeID string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"trade_id": tradeID,
	}).WithComponent("protection")
}

// CleanupContext creates a logger context for the stale-trade sweep.
func CleanupContext(tradeID, ticker, timeframe string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"trade_id":  tradeID,
		"ticker":    ticker,
		"timeframe": timeframe,
	}).WithComponent("cleanup")
}

// ProducerContext creates a logger context for analysis producer calls.
func ProducerContext(ticker, timeframe string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"ticker":    ticker,
		"timeframe": timeframe,
	}).WithComponent("producer")
}
