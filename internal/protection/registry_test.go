package protection

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDeleteBlockedInsideWindow(t *testing.T) {
	r := NewRegistry(5 * time.Minute)
	created := time.Now()
	r.Add("trade-1", created)

	if !r.IsProtected("trade-1") {
		t.Fatal("trade-1 should be protected immediately after Add")
	}

	err := r.Guard("trade-1")
	if err == nil {
		t.Fatal("Guard should refuse a delete inside the window")
	}
	var protected *ErrProtected
	if !errors.As(err, &protected) {
		t.Fatalf("expected *ErrProtected, got %T", err)
	}
	if protected.TradeID != "trade-1" {
		t.Errorf("error names trade %s, want trade-1", protected.TradeID)
	}
}

func TestDeleteAllowedAfterExpiry(t *testing.T) {
	r := NewRegistry(5 * time.Minute)
	created := time.Now()
	r.Add("trade-1", created)

	// Move the clock past the window.
	r.now = func() time.Time { return created.Add(5*time.Minute + time.Second) }

	if r.IsProtected("trade-1") {
		t.Error("protection should expire after the TTL")
	}
	if err := r.Guard("trade-1"); err != nil {
		t.Errorf("Guard should allow delete after expiry, got %v", err)
	}
	// Lazy eviction removed the entry.
	if len(r.ListActive()) != 0 {
		t.Error("expired entry should have been evicted")
	}
}

func TestUnknownIDIsNotProtected(t *testing.T) {
	r := NewRegistry(0)
	if r.IsProtected("nope") {
		t.Error("unknown id must not be protected")
	}
	if err := r.Guard("nope"); err != nil {
		t.Errorf("Guard on unknown id should be nil, got %v", err)
	}
}

func TestReAddRefreshesWindow(t *testing.T) {
	r := NewRegistry(time.Minute)
	start := time.Now()
	r.Add("trade-1", start)
	r.Add("trade-1", start.Add(30*time.Second))

	r.now = func() time.Time { return start.Add(70 * time.Second) }
	if !r.IsProtected("trade-1") {
		t.Error("re-added entry should use the refreshed window")
	}
}

func TestListActiveAndClearAll(t *testing.T) {
	r := NewRegistry(time.Minute)
	now := time.Now()
	r.Add("a", now)
	r.Add("b", now)

	if got := len(r.ListActive()); got != 2 {
		t.Errorf("expected 2 active entries, got %d", got)
	}

	r.ClearAll()
	if got := len(r.ListActive()); got != 0 {
		t.Errorf("expected 0 after ClearAll, got %d", got)
	}
}

// TestConcurrentAddCheck exercises the registry from multiple goroutines;
// creation and the cleanup pass run in different execution contexts.
func TestConcurrentAddCheck(t *testing.T) {
	r := NewRegistry(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			r.Add("trade", time.Now())
		}(i)
		go func(n int) {
			defer wg.Done()
			r.IsProtected("trade")
			r.ListActive()
		}(i)
	}
	wg.Wait()

	if !r.IsProtected("trade") {
		t.Error("trade should end up protected")
	}
}
