package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryTradeStore is an in-memory TradeStore used by tests and by the
// engine when no database is configured. It enforces the same
// one-open-record-per-pair invariant as the unique index in Postgres.
type MemoryTradeStore struct {
	mu     sync.RWMutex
	trades map[string]*TradeRecord
}

// NewMemoryTradeStore creates an empty in-memory store.
func NewMemoryTradeStore() *MemoryTradeStore {
	return &MemoryTradeStore{trades: make(map[string]*TradeRecord)}
}

// CreateTrade inserts a record, refusing a second open record for the pair.
func (s *MemoryTradeStore) CreateTrade(ctx context.Context, trade *TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.trades {
		if existing.Ticker == trade.Ticker && existing.Timeframe == trade.Timeframe && existing.IsOpen() {
			return fmt.Errorf("open trade already exists for %s %s", trade.Ticker, trade.Timeframe)
		}
	}

	now := time.Now()
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = now
	}
	trade.UpdatedAt = now

	copied := *trade
	s.trades[trade.ID] = &copied
	return nil
}

func (s *MemoryTradeStore) GetTradeByID(ctx context.Context, id string) (*TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trade, ok := s.trades[id]
	if !ok {
		return nil, nil
	}
	copied := *trade
	return &copied, nil
}

func (s *MemoryTradeStore) UpdateTrade(ctx context.Context, trade *TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trades[trade.ID]; !ok {
		return fmt.Errorf("trade %s not found", trade.ID)
	}
	trade.UpdatedAt = time.Now()
	copied := *trade
	s.trades[trade.ID] = &copied
	return nil
}

func (s *MemoryTradeStore) DeleteTrade(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trades[id]; !ok {
		return fmt.Errorf("trade %s not found", id)
	}
	delete(s.trades, id)
	return nil
}

func (s *MemoryTradeStore) GetOpenTrade(ctx context.Context, ticker, timeframe string) (*TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, trade := range s.trades {
		if trade.Ticker == ticker && trade.Timeframe == timeframe && trade.IsOpen() {
			copied := *trade
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *MemoryTradeStore) ListOpenTrades(ctx context.Context) ([]*TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var trades []*TradeRecord
	for _, trade := range s.trades {
		if trade.IsOpen() {
			copied := *trade
			trades = append(trades, &copied)
		}
	}
	sortByCreation(trades)
	return trades, nil
}

func (s *MemoryTradeStore) ListTrades(ctx context.Context, ticker, timeframe string, limit int) ([]*TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var trades []*TradeRecord
	for _, trade := range s.trades {
		if trade.Ticker == ticker && trade.Timeframe == timeframe {
			copied := *trade
			trades = append(trades, &copied)
		}
	}
	sortByCreation(trades)
	// newest first, capped
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	return trades, nil
}

func (s *MemoryTradeStore) ListStaleWaiting(ctx context.Context, cutoff time.Time) ([]*TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var trades []*TradeRecord
	for _, trade := range s.trades {
		if trade.Status == StatusWaiting && trade.CreatedAt.Before(cutoff) {
			copied := *trade
			trades = append(trades, &copied)
		}
	}
	sortByCreation(trades)
	return trades, nil
}

func sortByCreation(trades []*TradeRecord) {
	sort.Slice(trades, func(i, j int) bool {
		return trades[i].CreatedAt.Before(trades[j].CreatedAt)
	})
}
