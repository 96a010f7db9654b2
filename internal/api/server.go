package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"chart-advisor/config"
	"chart-advisor/internal/database"
	"chart-advisor/internal/events"
	"chart-advisor/internal/logging"
	"chart-advisor/internal/market"
	"chart-advisor/internal/protection"
	"chart-advisor/internal/reconciler"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RateLimiter provides simple in-memory rate limiting per client IP
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// AnalysisStore persists raw analysis payloads for audit and replay.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, id, ticker, timeframe string, analyzedAt time.Time, currentPrice float64, payload interface{}) error
	GetLatestAnalysis(ctx context.Context, ticker, timeframe string) (json.RawMessage, error)
}

// Server is the HTTP surface of the reconciliation engine.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      config.ServerConfig
	store       database.TradeStore
	analyses    AnalysisStore
	rec         *reconciler.Reconciler
	registry    *protection.Registry
	provider    market.CandleProvider
	cache       ContextClearer
	eventBus    *events.Bus
	rateLimiter *RateLimiter
	hub         *WSHub
	logger      *logging.Logger
}

// ContextClearer removes the cached trade context for a pair.
type ContextClearer interface {
	ClearTradeContext(ctx context.Context, ticker, timeframe string) error
}

// NewServer creates the API server. analyses, provider, cache and eventBus
// may be nil.
func NewServer(
	cfg config.ServerConfig,
	store database.TradeStore,
	analyses AnalysisStore,
	rec *reconciler.Reconciler,
	registry *protection.Registry,
	provider market.CandleProvider,
	cache ContextClearer,
	eventBus *events.Bus,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "" || cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 100
	}
	window := time.Duration(cfg.RateWindowSecs) * time.Second
	if window <= 0 {
		window = time.Minute
	}

	server := &Server{
		router:      router,
		config:      cfg,
		store:       store,
		analyses:    analyses,
		rec:         rec,
		registry:    registry,
		provider:    provider,
		cache:       cache,
		eventBus:    eventBus,
		rateLimiter: NewRateLimiter(limit, window),
		logger:      logging.WithComponent("api"),
	}

	server.hub = InitWebSocket(eventBus)
	server.setupRoutes()

	return server
}

// rateLimitMiddleware limits requests per client IP.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws/trades", s.handleWebSocket)

	v1 := s.router.Group("/api/v1")
	v1.Use(s.rateLimitMiddleware())
	{
		v1.POST("/reconcile/:ticker/:timeframe", s.handleReconcile)
		v1.GET("/trades", s.handleListTrades)
		v1.GET("/trades/active", s.handleActiveTrades)
		v1.GET("/trades/:id", s.handleGetTrade)
		v1.POST("/trades/:id/close", s.handleUserClose)
		v1.GET("/protection", s.handleProtectionStatus)
		v1.GET("/analysis/:ticker/:timeframe", s.handleLatestAnalysis)
	}
}

// Start runs the HTTP server until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(s.config.ShutdownTimeout)*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
