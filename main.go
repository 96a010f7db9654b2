package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chart-advisor/config"
	"chart-advisor/internal/analysis"
	"chart-advisor/internal/api"
	"chart-advisor/internal/cache"
	"chart-advisor/internal/cleanup"
	"chart-advisor/internal/database"
	"chart-advisor/internal/events"
	"chart-advisor/internal/logging"
	"chart-advisor/internal/market"
	"chart-advisor/internal/producer"
	"chart-advisor/internal/protection"
	"chart-advisor/internal/reconciler"
	"chart-advisor/internal/scanner"
	"chart-advisor/internal/strategy"
	"chart-advisor/internal/vault"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// Local development reads .env; a missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Component:  "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Event bus feeds the websocket trade feed and internal listeners.
	eventBus := events.NewBus()

	// Persistence: Postgres when configured, in-memory otherwise.
	var (
		store    database.TradeStore
		analyses api.AnalysisStore
	)
	if cfg.DatabaseConfig.Enabled {
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

		if err := db.RunMigrations(ctx); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		repo := database.NewRepository(db)
		store = repo
		analyses = repo
	} else {
		logger.Warn("Database disabled, using in-memory trade store")
		store = database.NewMemoryTradeStore()
	}

	// Trade context cache: redis with in-memory fallback.
	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		})
	}
	contexts := cache.NewTradeContextCache(redisClient)

	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Fatalf("Failed to initialize vault client: %v", err)
	}

	// Candle history for the exit scanner, last price for user closes.
	candles := market.NewClient(cfg.MarketConfig.BaseURL,
		time.Duration(cfg.MarketConfig.TimeoutSecs)*time.Second)

	registry := protection.NewRegistry(cfg.ReconcilerConfig.ProtectionTTL)

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	selector := strategy.NewSelector(zlog)

	rec := reconciler.New(
		store,
		analysis.NewIntentClassifier(),
		selector,
		registry,
		contexts,
		eventBus,
		cfg.ReconcilerConfig.OpTimeout,
	)

	// The producer poller requests fresh analyses for the watched pairs and
	// runs them through the reconciler; analyses can also arrive over the
	// HTTP API directly.
	if cfg.ProducerConfig.Enabled {
		producerClient := producer.NewClient(cfg.ProducerConfig, vaultClient, contexts)
		poller := producer.NewPoller(producerClient, rec,
			producer.ParsePairs(cfg.ProducerConfig.WatchPairs), cfg.ProducerConfig.PollInterval)
		go poller.Run(ctx)
		logger.Info("Analysis producer polling enabled",
			"base_url", cfg.ProducerConfig.BaseURL,
			"pairs", len(cfg.ProducerConfig.WatchPairs))
	}

	// Historical exit scanner loop.
	if cfg.ScannerConfig.Enabled {
		sc := scanner.NewScanner(scanner.Config{
			GracePeriod:         cfg.ScannerConfig.GracePeriod,
			SellBreakoutTrigger: cfg.ScannerConfig.SellBreakoutTrigger,
		})
		scanService := scanner.NewService(sc, store, candles, contexts, eventBus, 15*time.Second)

		go func() {
			ticker := time.NewTicker(cfg.ScannerConfig.ScanInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := scanService.EvaluateOpenTrades(ctx); err != nil {
						logger.WithError(err).Error("exit scan sweep failed")
					}
				}
			}
		}()
		logger.Info("Exit scanner started", "interval", cfg.ScannerConfig.ScanInterval.String())
	}

	// Stale waiting-trade cleanup.
	if cfg.CleanupConfig.Enabled {
		sweeper := cleanup.NewSweeper(store, registry, eventBus, cleanup.Config{
			MaxAge:   cfg.CleanupConfig.MaxAge,
			Schedule: cfg.CleanupConfig.Schedule,
		})
		if err := sweeper.Start(ctx); err != nil {
			log.Fatalf("Failed to start cleanup sweeper: %v", err)
		}
		defer sweeper.Stop()
	}

	server := api.NewServer(cfg.ServerConfig, store, analyses, rec, registry, candles, contexts, eventBus)

	logger.Info("Reconciliation engine started",
		"port", cfg.ServerConfig.Port,
		"protection_ttl", registry.TTL().String())

	if err := server.Start(ctx); err != nil {
		log.Fatalf("API server error: %v", err)
	}

	logger.Info("Shutdown complete")
}
