// Package cache stores the trade context that is handed back to the
// analysis producer with each request: the open position's entry, target
// and stop for a (ticker, timeframe) pair. Context is stored in Redis so
// it survives restarts, with an in-memory fallback so the engine keeps
// working when Redis is unavailable.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// tradeContextKeyPrefix is the prefix for context keys.
	// Format: advisor:context:{ticker}:{timeframe}
	tradeContextKeyPrefix = "advisor:context"

	// tradeContextTTL bounds how long a context can linger if a clear is
	// ever missed. Normal operation clears contexts explicitly on close.
	tradeContextTTL = 7 * 24 * time.Hour
)

// TradeContext is the position summary exposed to the analysis producer.
type TradeContext struct {
	TradeID        string     `json:"trade_id"`
	Ticker         string     `json:"ticker"`
	Timeframe      string     `json:"timeframe"`
	Status         string     `json:"status"`
	Action         string     `json:"action"`
	EntryPrice     float64    `json:"entry_price"`
	TargetPrice    float64    `json:"target_price"`
	StopLoss       float64    `json:"stop_loss"`
	TriggerHitTime *time.Time `json:"trigger_hit_time,omitempty"`
	SavedAt        time.Time  `json:"saved_at"`
}

// TradeContextCache stores per-pair trade context in Redis with an
// in-memory fallback when Redis is unavailable.
type TradeContextCache struct {
	client         *redis.Client
	memory         map[string]*TradeContext
	mu             sync.RWMutex
	redisAvailable atomic.Bool
}

// NewTradeContextCache creates the cache. A nil client means memory-only
// mode.
func NewTradeContextCache(client *redis.Client) *TradeContextCache {
	c := &TradeContextCache{
		client: client,
		memory: make(map[string]*TradeContext),
	}
	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c.redisAvailable.Store(client.Ping(ctx).Err() == nil)
	}
	return c
}

// SaveTradeContext stores the context for the pair.
func (c *TradeContextCache) SaveTradeContext(ctx context.Context, tc *TradeContext) error {
	tc.SavedAt = time.Now()

	c.mu.Lock()
	c.memory[pairKey(tc.Ticker, tc.Timeframe)] = tc
	c.mu.Unlock()

	if c.client == nil || !c.redisAvailable.Load() {
		return nil
	}

	data, err := json.Marshal(tc)
	if err != nil {
		return fmt.Errorf("failed to marshal trade context: %w", err)
	}
	if err := c.client.Set(ctx, redisKey(tc.Ticker, tc.Timeframe), data, tradeContextTTL).Err(); err != nil {
		c.redisAvailable.Store(false)
		return fmt.Errorf("failed to save trade context to redis: %w", err)
	}
	return nil
}

// GetTradeContext returns the context for the pair, or nil when none
// exists. A missing context is a normal condition (no open position),
// never an error.
func (c *TradeContextCache) GetTradeContext(ctx context.Context, ticker, timeframe string) (*TradeContext, error) {
	if c.client != nil && c.redisAvailable.Load() {
		data, err := c.client.Get(ctx, redisKey(ticker, timeframe)).Bytes()
		switch {
		case err == redis.Nil:
			return nil, nil
		case err != nil:
			c.redisAvailable.Store(false)
			// fall through to the memory copy
		default:
			var tc TradeContext
			if err := json.Unmarshal(data, &tc); err != nil {
				return nil, fmt.Errorf("corrupt trade context for %s %s: %w", ticker, timeframe, err)
			}
			return &tc, nil
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	tc, ok := c.memory[pairKey(ticker, timeframe)]
	if !ok {
		return nil, nil
	}
	copied := *tc
	return &copied, nil
}

// ClearTradeContext removes the context for the pair. Called the moment a
// trade closes so stale entry/stop data is never echoed back as if the
// position were still live.
func (c *TradeContextCache) ClearTradeContext(ctx context.Context, ticker, timeframe string) error {
	c.mu.Lock()
	delete(c.memory, pairKey(ticker, timeframe))
	c.mu.Unlock()

	if c.client == nil || !c.redisAvailable.Load() {
		return nil
	}
	if err := c.client.Del(ctx, redisKey(ticker, timeframe)).Err(); err != nil {
		c.redisAvailable.Store(false)
		return fmt.Errorf("failed to clear trade context in redis: %w", err)
	}
	return nil
}

func pairKey(ticker, timeframe string) string {
	return ticker + ":" + timeframe
}

func redisKey(ticker, timeframe string) string {
	return fmt.Sprintf("%s:%s:%s", tradeContextKeyPrefix, ticker, timeframe)
}
