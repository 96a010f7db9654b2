package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Repository provides data access methods backed by PostgreSQL.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// TRADE RECORDS
// ============================================================================

const tradeColumns = `id, ticker, timeframe, status, action, strategy_type, entry_price,
	target_price, stop_loss, stop_loss_method, trigger_hit_time, close_price,
	pnl, pnl_percent, closed_at, analysis_id, created_at, updated_at`

// CreateTrade inserts a new trade record.
func (r *Repository) CreateTrade(ctx context.Context, trade *TradeRecord) error {
	query := `
		INSERT INTO trade_records (id, ticker, timeframe, status, action, strategy_type,
			entry_price, target_price, stop_loss, stop_loss_method, analysis_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		trade.ID, trade.Ticker, trade.Timeframe, trade.Status, trade.Action, nullStr(trade.StrategyType),
		trade.EntryPrice, trade.TargetPrice, trade.StopLoss, nullStr(trade.StopLossMethod), nullStr(trade.AnalysisID),
	).Scan(&trade.CreatedAt, &trade.UpdatedAt)
}

// UpdateTrade updates a mutable trade record. Terminal records are never
// updated; callers transition into a terminal status at most once.
func (r *Repository) UpdateTrade(ctx context.Context, trade *TradeRecord) error {
	query := `
		UPDATE trade_records
		SET status = $2, trigger_hit_time = $3, close_price = $4, pnl = $5,
			pnl_percent = $6, closed_at = $7, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(
		ctx, query,
		trade.ID, trade.Status, trade.TriggerHitTime, trade.ClosePrice,
		trade.PnL, trade.PnLPercent, trade.ClosedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %s not found", trade.ID)
	}
	return nil
}

// DeleteTrade hard-deletes a trade record.
func (r *Repository) DeleteTrade(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM trade_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %s not found", id)
	}
	return nil
}

// GetTradeByID retrieves a trade record by id, or nil when absent.
func (r *Repository) GetTradeByID(ctx context.Context, id string) (*TradeRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM trade_records WHERE id = $1`, tradeColumns)
	trade, err := scanTrade(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return trade, err
}

// GetOpenTrade returns the single non-terminal record for the pair, or nil.
func (r *Repository) GetOpenTrade(ctx context.Context, ticker, timeframe string) (*TradeRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trade_records
		WHERE ticker = $1 AND timeframe = $2 AND status IN ('waiting', 'active')
		ORDER BY created_at DESC
		LIMIT 1
	`, tradeColumns)
	trade, err := scanTrade(r.db.Pool.QueryRow(ctx, query, ticker, timeframe))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return trade, err
}

// ListOpenTrades returns all waiting/active records across pairs.
func (r *Repository) ListOpenTrades(ctx context.Context) ([]*TradeRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trade_records
		WHERE status IN ('waiting', 'active')
		ORDER BY created_at
	`, tradeColumns)
	return r.queryTrades(ctx, query)
}

// ListTrades returns the most recent records for a pair.
func (r *Repository) ListTrades(ctx context.Context, ticker, timeframe string, limit int) ([]*TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM trade_records
		WHERE ticker = $1 AND timeframe = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, tradeColumns)
	return r.queryTrades(ctx, query, ticker, timeframe, limit)
}

// ListStaleWaiting returns waiting records created before the cutoff.
func (r *Repository) ListStaleWaiting(ctx context.Context, cutoff time.Time) ([]*TradeRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trade_records
		WHERE status = 'waiting' AND created_at < $1
		ORDER BY created_at
	`, tradeColumns)
	return r.queryTrades(ctx, query, cutoff)
}

func (r *Repository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*TradeRecord, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*TradeRecord
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (*TradeRecord, error) {
	trade := &TradeRecord{}
	var strategyType, stopLossMethod, analysisID *string
	err := row.Scan(
		&trade.ID, &trade.Ticker, &trade.Timeframe, &trade.Status, &trade.Action,
		&strategyType, &trade.EntryPrice, &trade.TargetPrice, &trade.StopLoss,
		&stopLossMethod, &trade.TriggerHitTime, &trade.ClosePrice,
		&trade.PnL, &trade.PnLPercent, &trade.ClosedAt, &analysisID,
		&trade.CreatedAt, &trade.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if strategyType != nil {
		trade.StrategyType = *strategyType
	}
	if stopLossMethod != nil {
		trade.StopLossMethod = *stopLossMethod
	}
	if analysisID != nil {
		trade.AnalysisID = *analysisID
	}
	return trade, nil
}

// ============================================================================
// ANALYSIS RESULTS
// ============================================================================

// SaveAnalysis stores one raw analysis payload for dashboard history.
func (r *Repository) SaveAnalysis(ctx context.Context, id, ticker, timeframe string, analyzedAt time.Time, currentPrice float64, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis payload: %w", err)
	}
	query := `
		INSERT INTO analysis_results (id, ticker, timeframe, analyzed_at, current_price, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = r.db.Pool.Exec(ctx, query, id, ticker, timeframe, analyzedAt, currentPrice, data)
	return err
}

// GetLatestAnalysis returns the most recent stored payload for a pair.
func (r *Repository) GetLatestAnalysis(ctx context.Context, ticker, timeframe string) (json.RawMessage, error) {
	query := `
		SELECT payload FROM analysis_results
		WHERE ticker = $1 AND timeframe = $2
		ORDER BY analyzed_at DESC
		LIMIT 1
	`
	var payload json.RawMessage
	err := r.db.Pool.QueryRow(ctx, query, ticker, timeframe).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return payload, err
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
