package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Printf("Successfully connected to PostgreSQL database: %s", cfg.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Println("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Println("Running database migrations...")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS trade_records (
			id UUID PRIMARY KEY,
			ticker VARCHAR(20) NOT NULL,
			timeframe VARCHAR(10) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'waiting',
			action VARCHAR(4) NOT NULL,
			strategy_type VARCHAR(40),
			entry_price DECIMAL(20, 8) NOT NULL,
			target_price DECIMAL(20, 8) NOT NULL,
			stop_loss DECIMAL(20, 8) NOT NULL,
			stop_loss_method VARCHAR(40),
			trigger_hit_time TIMESTAMP,
			close_price DECIMAL(20, 8),
			pnl DECIMAL(20, 8),
			pnl_percent DECIMAL(10, 4),
			closed_at TIMESTAMP,
			analysis_id VARCHAR(64),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_records_pair ON trade_records(ticker, timeframe)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_records_status ON trade_records(status)`,
		// Enforces the at-most-one-open-record-per-pair invariant at the
		// storage layer as well as in the reconciler.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_trade_records_open_pair
			ON trade_records(ticker, timeframe)
			WHERE status IN ('waiting', 'active')`,

		`CREATE TABLE IF NOT EXISTS analysis_results (
			id VARCHAR(64) PRIMARY KEY,
			ticker VARCHAR(20) NOT NULL,
			timeframe VARCHAR(10) NOT NULL,
			analyzed_at TIMESTAMP NOT NULL,
			current_price DECIMAL(20, 8),
			payload JSONB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_results_pair ON analysis_results(ticker, timeframe, analyzed_at DESC)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}
