package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chart-advisor/config"
	"chart-advisor/internal/analysis"
	"chart-advisor/internal/database"
	"chart-advisor/internal/protection"
	"chart-advisor/internal/reconciler"
	"chart-advisor/internal/strategy"

	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T) (*Server, *database.MemoryTradeStore, *protection.Registry) {
	t.Helper()
	store := database.NewMemoryTradeStore()
	registry := protection.NewRegistry(5 * time.Minute)
	rec := reconciler.New(
		store,
		analysis.NewIntentClassifier(),
		strategy.NewSelector(zerolog.Nop()),
		registry,
		nil,
		nil,
		5*time.Second,
	)
	srv := NewServer(config.ServerConfig{Port: 0, RateLimit: 1000, RateWindowSecs: 60},
		store, nil, rec, registry, nil, nil, nil)
	return srv, store, registry
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := doRequest(t, srv, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestReconcileEndpointCreatesTrade(t *testing.T) {
	srv, store, _ := newTestServer(t)

	entry, target, stop := 118000.0, 124000.0, 115500.0
	payload := analysis.Result{
		ID:           "a-1",
		CurrentPrice: entry,
		Recommendation: &analysis.Recommendation{
			Action: analysis.ActionBuy, EntryPrice: &entry, TargetPrice: &target, StopLoss: &stop,
		},
	}

	w := doRequest(t, srv, http.MethodPost, "/api/v1/reconcile/BTCUSD/1h", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result reconciler.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Success || result.ActionType != reconciler.ActionCreateNew {
		t.Fatalf("unexpected result: %+v", result)
	}

	open, _ := store.GetOpenTrade(context.Background(), "BTCUSD", "1h")
	if open == nil || open.EntryPrice != entry {
		t.Errorf("trade not persisted: %+v", open)
	}
}

func TestReconcileEndpointRejectsBadPayload(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconcile/BTCUSD/1h", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", w.Code)
	}
}

func TestUserCloseWithExplicitPrice(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	trigger := time.Now().Add(-time.Hour)
	err := store.CreateTrade(ctx, &database.TradeRecord{
		ID: "t-1", Ticker: "ETHUSD", Timeframe: "1h",
		Status: database.StatusActive, Action: database.ActionBuy,
		EntryPrice: 3000, TargetPrice: 3300, StopLoss: 2850,
		TriggerHitTime: &trigger, CreatedAt: time.Now().Add(-2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := doRequest(t, srv, http.MethodPost, "/api/v1/trades/t-1/close", map[string]float64{"close_price": 3100})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	got, _ := store.GetTradeByID(ctx, "t-1")
	if got.Status != database.StatusUserClosed {
		t.Errorf("expected user_closed, got %s", got.Status)
	}
	if got.PnL == nil || *got.PnL != 100 {
		t.Errorf("expected PnL 100, got %v", got.PnL)
	}

	// A second close is a conflict, never a double mutation.
	w = doRequest(t, srv, http.MethodPost, "/api/v1/trades/t-1/close", map[string]float64{"close_price": 3200})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on re-close, got %d", w.Code)
	}
}

func TestUserCloseUnknownTrade(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := doRequest(t, srv, http.MethodPost, "/api/v1/trades/missing/close", map[string]float64{"close_price": 1})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestProtectionStatusEndpoint(t *testing.T) {
	srv, _, registry := newTestServer(t)
	registry.Add("t-99", time.Now())

	w := doRequest(t, srv, http.MethodGet, "/api/v1/protection", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Count   int                `json:"count"`
		Entries []protection.Entry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || resp.Entries[0].TradeID != "t-99" {
		t.Errorf("unexpected protection listing: %+v", resp)
	}
}

func TestListTradesRequiresPair(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := doRequest(t, srv, http.MethodGet, "/api/v1/trades", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without ticker/timeframe, got %d", w.Code)
	}
}
