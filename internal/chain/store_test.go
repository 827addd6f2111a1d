package chain

import (
	"testing"

	"zonechain-engine/internal/events"
	"zonechain-engine/internal/market"
)

func tradeWithStatus(status *market.TradeStatus) market.Trade {
	return market.Trade{Symbol: "BTCUSDT", CurrentPrice: "100", Status: status}
}

func statusOf(s market.TradeStatus) *market.TradeStatus { return &s }

func TestTryAppendAdmitsFirstBlock(t *testing.T) {
	store := New(10, 5, nil)
	if !store.TryAppend("BTCUSDT", tradeWithStatus(nil)) {
		t.Fatal("expected first admission to succeed")
	}
	if store.Count() != 1 {
		t.Fatalf("expected 1 live chain, got %d", store.Count())
	}
	tail := store.Tail("BTCUSDT")
	if tail == nil {
		t.Fatal("expected a tail trade")
	}
}

func TestTryAppendRejectsIdenticalStatusIncludingNoneEqualsNone(t *testing.T) {
	store := New(10, 5, nil)
	if !store.TryAppend("BTCUSDT", tradeWithStatus(nil)) {
		t.Fatal("expected first admission to succeed")
	}
	if store.TryAppend("BTCUSDT", tradeWithStatus(nil)) {
		t.Fatal("expected second None-status admission to be rejected as a duplicate")
	}
	if store.TryAppend("BTCUSDT", tradeWithStatus(statusOf(market.StatusInZone7))) == false {
		t.Fatal("expected a differing status to be admitted")
	}
}

func TestTryAppendRejectsOnSymbolCapacity(t *testing.T) {
	store := New(1, 5, nil)
	if !store.TryAppend("BTCUSDT", tradeWithStatus(nil)) {
		t.Fatal("expected first symbol to be admitted")
	}
	if store.TryAppend("ETHUSDT", tradeWithStatus(nil)) {
		t.Fatal("expected second symbol to be rejected once symbol capacity is reached")
	}
}

func TestTryAppendTrimsToChainCapacity(t *testing.T) {
	store := New(10, 2, nil)
	statuses := []*market.TradeStatus{nil, statusOf(market.StatusInZone7), statusOf(market.StatusOutZone5), statusOf(market.StatusInZone3)}
	for _, s := range statuses {
		store.TryAppend("BTCUSDT", tradeWithStatus(s))
	}
	all := store.All()
	if len(all["BTCUSDT"]) != 2 {
		t.Fatalf("expected chain trimmed to capacity 2, got %d", len(all["BTCUSDT"]))
	}
}

func TestValidateDetectsTamperedHash(t *testing.T) {
	store := New(10, 5, nil)
	store.TryAppend("BTCUSDT", tradeWithStatus(nil))
	store.TryAppend("BTCUSDT", tradeWithStatus(statusOf(market.StatusInZone7)))
	if !store.Validate("BTCUSDT") {
		t.Fatal("expected a freshly built chain to validate")
	}

	// Mutate the store's internal chain directly (same package) to simulate
	// tampering, since All() deliberately returns copies.
	store.chains["BTCUSDT"][0] = market.TradeBlock{
		Index:        store.chains["BTCUSDT"][0].Index,
		Timestamp:    store.chains["BTCUSDT"][0].Timestamp,
		Trade:        store.chains["BTCUSDT"][0].Trade,
		PreviousHash: store.chains["BTCUSDT"][0].PreviousHash,
		Hash:         "tampered",
	}
	if store.Validate("BTCUSDT") {
		t.Fatal("expected tampered hash to fail validation")
	}
}

func TestValidateVacuouslyTrueForMissingSymbol(t *testing.T) {
	store := New(10, 5, nil)
	if !store.Validate("NOSUCHSYMBOL") {
		t.Fatal("expected an absent chain to validate vacuously")
	}
}

func TestDropRemovesChainAndPublishesEvent(t *testing.T) {
	bus := events.New()
	var gotDropped bool
	bus.Subscribe(func(e events.Event) {
		if e.Kind == events.ChainDropped && e.Symbol == "BTCUSDT" {
			gotDropped = true
		}
	})
	store := New(10, 5, bus)
	store.TryAppend("BTCUSDT", tradeWithStatus(nil))
	store.Drop("BTCUSDT")
	if store.Count() != 0 {
		t.Fatalf("expected chain removed, count=%d", store.Count())
	}
	if !gotDropped {
		t.Fatal("expected a ChainDropped event to be published")
	}
}

func TestTryAppendPublishesChainAdmitted(t *testing.T) {
	bus := events.New()
	var gotAdmitted bool
	bus.Subscribe(func(e events.Event) {
		if e.Kind == events.ChainAdmitted && e.Symbol == "BTCUSDT" {
			gotAdmitted = true
		}
	})
	store := New(10, 5, bus)
	store.TryAppend("BTCUSDT", tradeWithStatus(nil))
	if !gotAdmitted {
		t.Fatal("expected a ChainAdmitted event to be published")
	}
}

func TestValidateAllFalseWhenAnyChainInvalid(t *testing.T) {
	store := New(10, 5, nil)
	store.TryAppend("BTCUSDT", tradeWithStatus(nil))
	store.TryAppend("ETHUSDT", tradeWithStatus(nil))
	if !store.ValidateAll() {
		t.Fatal("expected two freshly built chains to validate")
	}

	store.chains["ETHUSDT"][0].Hash = "tampered"
	if store.ValidateAll() {
		t.Fatal("expected ValidateAll to fail once one chain has a tampered hash")
	}
}
