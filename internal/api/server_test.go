package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"zonechain-engine/internal/auth"
	"zonechain-engine/internal/chain"
	"zonechain-engine/internal/decision"
	"zonechain-engine/internal/events"
	"zonechain-engine/internal/exchange"
	"zonechain-engine/internal/market"
	"zonechain-engine/internal/scheduler"
)

type stubClient struct {
	balanceErr error
}

func (s stubClient) CurrentPrice(ctx context.Context, symbol string) (float64, error) { return 0, nil }
func (s stubClient) LotStep(ctx context.Context, symbol string) (float64, error)      { return 0, nil }
func (s stubClient) Balance(ctx context.Context, asset string) (exchange.Balance, error) {
	if s.balanceErr != nil {
		return exchange.Balance{}, s.balanceErr
	}
	return exchange.Balance{Asset: asset, Total: 100, Available: 40}, nil
}
func (s stubClient) Order(ctx context.Context, symbol string, side exchange.Side, qty float64, reduceOnly bool) error {
	return nil
}
func (s stubClient) Positions(ctx context.Context) ([]exchange.Position, error)         { return nil, nil }
func (s stubClient) SetLeverage(ctx context.Context, symbol string, leverage int) error { return nil }
func (s stubClient) ServerTimeOffset(ctx context.Context) (int64, error)                { return 0, nil }
func (s stubClient) CloseAllPositions(ctx context.Context) error                        { return nil }

type emptySource struct{}

func (emptySource) Fetch(ctx context.Context, symbol, interval string, limit int) ([]market.Candlestick, error) {
	return nil, nil
}

func newTestServer(t *testing.T, authManager *auth.Manager) (*Server, *chain.Store, *scheduler.Scheduler) {
	t.Helper()
	bus := events.New()
	store := chain.New(10, 5, bus)
	mapper := decision.New(stubClient{}, bus, 0.01)
	sched := scheduler.New(scheduler.Config{Watchlist: []string{"ETHUSDT"}, Interval: "15m", Limit: 500, SymbolCapacity: 10}, emptySource{}, store, mapper, bus)
	t.Cleanup(sched.Stop)
	server := New(store, sched, stubClient{}, bus, authManager, 1, "*")
	return server, store, sched
}

func do(server *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	server.engine.ServeHTTP(w, req)
	return w
}

func TestHealthCheckTracksSchedulerState(t *testing.T) {
	server, _, sched := newTestServer(t, nil)

	w := do(server, http.MethodGet, "/trades/health-check", "", nil)
	if w.Code != http.StatusOK || w.Body.String() != "status: DOWN" {
		t.Fatalf("expected DOWN before start, got %d %q", w.Code, w.Body.String())
	}

	if w := do(server, http.MethodPost, "/trades/start", "", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 from start, got %d", w.Code)
	}
	w = do(server, http.MethodGet, "/trades/health-check", "", nil)
	if w.Body.String() != "status: UP" {
		t.Fatalf("expected UP after start, got %q", w.Body.String())
	}

	if w := do(server, http.MethodPost, "/trades/stop", "", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 from stop, got %d", w.Code)
	}
	if sched.IsActive() {
		t.Fatal("expected scheduler inactive after stop route")
	}
}

func TestChainLastReturns404WithoutChain(t *testing.T) {
	server, _, _ := newTestServer(t, nil)
	w := do(server, http.MethodGet, "/trades/chain/last?symbol=BTCUSDT", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a symbol with no chain, got %d", w.Code)
	}
}

func TestChainLastReturnsTailTrade(t *testing.T) {
	server, store, _ := newTestServer(t, nil)
	store.TryAppend("BTCUSDT", market.Trade{Symbol: "BTCUSDT", CurrentPrice: "100"})
	w := do(server, http.MethodGet, "/trades/chain/last?symbol=BTCUSDT", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "BTCUSDT") {
		t.Fatalf("expected tail trade in body, got %s", w.Body.String())
	}
}

func TestChainSnapshotValidates(t *testing.T) {
	server, store, _ := newTestServer(t, nil)
	store.TryAppend("BTCUSDT", market.Trade{Symbol: "BTCUSDT", CurrentPrice: "100"})
	w := do(server, http.MethodGet, "/trades/chain", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for an untampered chain, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "previous_hash") {
		t.Fatalf("expected serialized blocks in body, got %s", w.Body.String())
	}
}

func TestOrderOpenRejectsInvalidSide(t *testing.T) {
	server, _, _ := newTestServer(t, nil)
	w := do(server, http.MethodPost, "/trades/order/open", `{"side":"HOLD","symbol":"BTCUSDT","quantity":1}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an invalid side, got %d", w.Code)
	}
}

func TestOrderOpenDispatchesValidSide(t *testing.T) {
	server, _, _ := newTestServer(t, nil)
	w := do(server, http.MethodPost, "/trades/order/open", `{"side":"BUY","symbol":"BTCUSDT","quantity":1}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for a valid BUY order, got %d", w.Code)
	}
}

func TestOrderCloseSucceeds(t *testing.T) {
	server, _, _ := newTestServer(t, nil)
	w := do(server, http.MethodPost, "/trades/order/close", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 closing all positions, got %d", w.Code)
	}
}

func TestLeverageSucceeds(t *testing.T) {
	server, _, _ := newTestServer(t, nil)
	w := do(server, http.MethodPut, "/trades/leverage?symbol=BTCUSDT", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 setting leverage, got %d", w.Code)
	}
}

func TestBalanceReturnsUSDT(t *testing.T) {
	server, _, _ := newTestServer(t, nil)
	w := do(server, http.MethodGet, "/trades/balance", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "USDT") {
		t.Fatalf("expected USDT balance in body, got %s", w.Body.String())
	}
}

func TestAuthGuardRejectsMissingToken(t *testing.T) {
	manager := auth.NewManager("test-secret", "")
	server, _, _ := newTestServer(t, manager)

	w := do(server, http.MethodPost, "/trades/start", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a bearer token, got %d", w.Code)
	}

	// Read-only routes stay open even with auth enabled.
	w = do(server, http.MethodGet, "/trades/health-check", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected health-check to remain open, got %d", w.Code)
	}
}

func TestAuthGuardAcceptsValidToken(t *testing.T) {
	manager := auth.NewManager("test-secret", "")
	server, _, sched := newTestServer(t, manager)

	token, err := manager.IssueToken("operator", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error minting token: %v", err)
	}
	w := do(server, http.MethodPost, "/trades/start", "", map[string]string{"Authorization": "Bearer " + token})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with a valid bearer token, got %d", w.Code)
	}
	if !sched.IsActive() {
		t.Fatal("expected scheduler started through the guarded route")
	}
}
