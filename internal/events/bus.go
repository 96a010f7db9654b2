package events

import (
	"sync"
	"time"
)

// Type identifies a system event.
type Type string

const (
	TradeCreated     Type = "TRADE_CREATED"
	TradeTriggered   Type = "TRADE_TRIGGERED"
	TradeClosed      Type = "TRADE_CLOSED"
	TradeMaintained  Type = "TRADE_MAINTAINED"
	ReconcileDone    Type = "RECONCILE_DONE"
	AnalysisReceived Type = "ANALYSIS_RECEIVED"
	CleanupBlocked   Type = "CLEANUP_BLOCKED"
	CleanupDeleted   Type = "CLEANUP_DELETED"
)

// Event is one system event with its payload.
type Event struct {
	Type      Type                   `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber handles events.
type Subscriber func(Event)

// Bus is an in-process publish/subscribe event bus. Subscribers run in
// their own goroutines so a slow consumer never blocks a publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[Type][]Subscriber),
	}
}

// Subscribe registers a subscriber for one event type.
func (b *Bus) Subscribe(eventType Type, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
}

// SubscribeAll registers a subscriber for every event.
func (b *Bus) SubscribeAll(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, sub)
}

// Publish delivers the event to all matching subscribers.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}
