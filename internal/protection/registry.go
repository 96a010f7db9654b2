// Package protection implements a time-windowed delete guard for trade
// records. A record id registered here cannot be deleted until its window
// expires. This closes a race observed in production where a cleanup pass,
// scoped to remove a stale record, also deleted the brand-new replacement
// created in the same reconcile operation.
package protection

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTTL is the production protection window. Documentation once said
// 30 seconds while the enforced behavior was 5 minutes; 5 minutes is the
// explicit, configurable choice.
const DefaultTTL = 5 * time.Minute

// ErrProtected is returned when a delete is attempted inside the window.
type ErrProtected struct {
	TradeID   string
	ExpiresAt time.Time
}

func (e *ErrProtected) Error() string {
	return fmt.Sprintf("trade %s is protected from deletion until %s", e.TradeID, e.ExpiresAt.Format(time.RFC3339))
}

// Entry is one protected trade id with its registration time.
type Entry struct {
	TradeID   string    `json:"trade_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Registry is the process-wide protection list. It is explicitly
// constructed and injected (never a package singleton) so tests and
// concurrent callers can isolate it. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

// NewRegistry creates a registry with the given protection window.
// A non-positive ttl falls back to DefaultTTL.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Add registers a trade id. Re-adding an id refreshes its window.
func (r *Registry) Add(tradeID string, createdAt time.Time) {
	if tradeID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[tradeID] = Entry{
		TradeID:   tradeID,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(r.ttl),
	}
}

// IsProtected reports whether the id is inside its protection window.
// Expired entries are evicted lazily on lookup.
func (r *Registry) IsProtected(tradeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[tradeID]
	if !ok {
		return false
	}
	if !r.now().Before(entry.ExpiresAt) {
		delete(r.entries, tradeID)
		return false
	}
	return true
}

// Guard is the delete-path check: it returns an *ErrProtected describing
// why the delete was refused, or nil when the id may be deleted. Callers
// must never silently drop the refusal.
func (r *Registry) Guard(tradeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[tradeID]
	if !ok {
		return nil
	}
	if !r.now().Before(entry.ExpiresAt) {
		delete(r.entries, tradeID)
		return nil
	}
	return &ErrProtected{TradeID: tradeID, ExpiresAt: entry.ExpiresAt}
}

// ListActive returns all unexpired entries, evicting expired ones.
func (r *Registry) ListActive() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	active := make([]Entry, 0, len(r.entries))
	for id, entry := range r.entries {
		if now.Before(entry.ExpiresAt) {
			active = append(active, entry)
		} else {
			delete(r.entries, id)
		}
	}
	return active
}

// ClearAll removes every entry. Used for tests and controlled resets.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]Entry)
}

// TTL returns the configured protection window.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}
