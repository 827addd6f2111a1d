package scheduler

import (
	"context"
	"testing"
	"time"

	"zonechain-engine/internal/chain"
	"zonechain-engine/internal/decision"
	"zonechain-engine/internal/events"
	"zonechain-engine/internal/exchange"
	"zonechain-engine/internal/market"
)

// emptySource always returns no candles, enough to exercise Start/Stop
// without a live exchange connection.
type emptySource struct{}

func (emptySource) Fetch(ctx context.Context, symbol, interval string, limit int) ([]market.Candlestick, error) {
	return nil, nil
}

type noopClient struct{}

func (noopClient) CurrentPrice(ctx context.Context, symbol string) (float64, error) { return 0, nil }
func (noopClient) LotStep(ctx context.Context, symbol string) (float64, error)      { return 0, nil }
func (noopClient) Balance(ctx context.Context, asset string) (exchange.Balance, error) {
	return exchange.Balance{}, nil
}
func (noopClient) Order(ctx context.Context, symbol string, side exchange.Side, qty float64, reduceOnly bool) error {
	return nil
}
func (noopClient) Positions(ctx context.Context) ([]exchange.Position, error)         { return nil, nil }
func (noopClient) SetLeverage(ctx context.Context, symbol string, leverage int) error { return nil }
func (noopClient) ServerTimeOffset(ctx context.Context) (int64, error)                { return 0, nil }
func (noopClient) CloseAllPositions(ctx context.Context) error                        { return nil }

func TestSchedulerStartStopIdempotent(t *testing.T) {
	bus := events.New()
	store := chain.New(10, 1, bus)
	mapper := decision.New(noopClient{}, bus, 0.01)
	sched := New(Config{Watchlist: []string{"ETHUSDT"}, Interval: "15m", Limit: 500, SymbolCapacity: 10}, emptySource{}, store, mapper, bus)

	sched.Start()
	sched.Start() // idempotent
	if !sched.IsActive() {
		t.Fatal("expected scheduler to be active after Start")
	}

	sched.Stop()
	if sched.IsActive() {
		t.Fatal("expected scheduler to be inactive after Stop")
	}
	sched.Stop() // idempotent
}

func TestSchedulerPublishesLifecycleEvents(t *testing.T) {
	bus := events.New()
	var started, stopped bool
	bus.Subscribe(func(e events.Event) {
		switch e.Kind {
		case events.SchedulerStarted:
			started = true
		case events.SchedulerStopped:
			stopped = true
		}
	})
	store := chain.New(10, 1, bus)
	mapper := decision.New(noopClient{}, bus, 0.01)
	sched := New(Config{Watchlist: []string{"ETHUSDT"}, Interval: "15m", Limit: 500, SymbolCapacity: 10}, emptySource{}, store, mapper, bus)

	sched.Start()
	time.Sleep(10 * time.Millisecond)
	sched.Stop()

	if !started || !stopped {
		t.Fatalf("expected both lifecycle events, got started=%v stopped=%v", started, stopped)
	}
}
