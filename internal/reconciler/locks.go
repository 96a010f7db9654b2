package reconciler

import (
	"sync"
)

// pairLocks serializes reconciliation per (ticker, timeframe) key. Two
// concurrent analyses for the same pair could otherwise both decide to
// create and violate the one-open-record invariant. Locks are created on
// first use and kept for the process lifetime; the key space is bounded
// by the watched pairs.
type pairLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for the key and returns its unlock function.
func (p *pairLocks) lock(key string) func() {
	p.mu.Lock()
	m, ok := p.locks[key]
	if !ok {
		m = &sync.Mutex{}
		p.locks[key] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}
