// replay-exits runs one historical exit scan over the open trades and
// applies any trigger/stop/target transitions it finds. Useful after
// downtime, when the periodic scanner was not running to observe price.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"chart-advisor/config"
	"chart-advisor/internal/cache"
	"chart-advisor/internal/database"
	"chart-advisor/internal/logging"
	"chart-advisor/internal/market"
	"chart-advisor/internal/scanner"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		ticker    = flag.String("ticker", "", "only scan this ticker")
		timeframe = flag.String("timeframe", "", "only scan this timeframe (requires -ticker)")
		dryRun    = flag.Bool("dry-run", false, "report events without applying them")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.SetDefault(logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Component:  "replay-exits",
	}))

	if !cfg.DatabaseConfig.Enabled {
		log.Fatal("replay-exits requires a configured database")
	}

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Name,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := database.NewRepository(db)

	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
	}
	contexts := cache.NewTradeContextCache(redisClient)

	candles := market.NewClient(cfg.MarketConfig.BaseURL,
		time.Duration(cfg.MarketConfig.TimeoutSecs)*time.Second)

	sc := scanner.NewScanner(scanner.Config{
		GracePeriod:         cfg.ScannerConfig.GracePeriod,
		SellBreakoutTrigger: cfg.ScannerConfig.SellBreakoutTrigger,
	})

	ctx := context.Background()

	trades, err := selectTrades(ctx, repo, *ticker, *timeframe)
	if err != nil {
		log.Fatalf("Failed to list trades: %v", err)
	}
	if len(trades) == 0 {
		fmt.Println("No open trades to scan.")
		return
	}

	if *dryRun {
		reportOnly(ctx, sc, candles, trades)
		return
	}

	svc := scanner.NewService(sc, repo, candles, contexts, nil, 30*time.Second)
	applied := 0
	for _, trade := range trades {
		before := trade.Status
		if err := svc.EvaluateTrade(ctx, trade); err != nil {
			fmt.Fprintf(os.Stderr, "%s %s/%s: scan failed: %v\n", trade.ID, trade.Ticker, trade.Timeframe, err)
			continue
		}
		if trade.Status != before {
			applied++
			fmt.Printf("%s %s/%s: %s -> %s\n", trade.ID, trade.Ticker, trade.Timeframe, before, trade.Status)
		}
	}
	fmt.Printf("Scanned %d trades, applied %d transitions.\n", len(trades), applied)
}

func selectTrades(ctx context.Context, repo *database.Repository, ticker, timeframe string) ([]*database.TradeRecord, error) {
	if ticker != "" && timeframe != "" {
		trade, err := repo.GetOpenTrade(ctx, ticker, timeframe)
		if err != nil || trade == nil {
			return nil, err
		}
		return []*database.TradeRecord{trade}, nil
	}

	trades, err := repo.ListOpenTrades(ctx)
	if err != nil {
		return nil, err
	}
	if ticker == "" {
		return trades, nil
	}

	filtered := trades[:0]
	for _, trade := range trades {
		if trade.Ticker == ticker {
			filtered = append(filtered, trade)
		}
	}
	return filtered, nil
}

func reportOnly(ctx context.Context, sc *scanner.Scanner, candles market.CandleProvider, trades []*database.TradeRecord) {
	found := 0
	for _, trade := range trades {
		history, err := candles.CandlesSince(ctx, trade.Ticker, trade.Timeframe, trade.BaselineTime())
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %s/%s: candles unavailable: %v\n", trade.ID, trade.Ticker, trade.Timeframe, err)
			continue
		}
		if event := sc.Scan(trade, history); event != nil {
			found++
			fmt.Printf("%s %s/%s (%s): %s at %.8g on %s\n",
				trade.ID, trade.Ticker, trade.Timeframe, trade.Status,
				event.Reason, event.Price, event.Time.Format(time.RFC3339))
		}
	}
	fmt.Printf("Dry run: %d of %d open trades have pending events.\n", found, len(trades))
}
