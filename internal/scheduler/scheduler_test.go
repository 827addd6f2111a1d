package scheduler

import (
	"testing"

	"zonechain-engine/internal/market"
)

func statusOf(s market.TradeStatus) *market.TradeStatus { return &s }

func zonedTrade(bias market.Bias, price string) market.Trade {
	return market.Trade{
		Bias:         bias,
		CurrentPrice: price,
		Zone7:        "110",
		Zone6:        "105",
		Zone2:        "95",
		Zone1:        "90",
	}
}

func TestEntryFilterPassesBullishBelowZone1(t *testing.T) {
	trade := zonedTrade(market.Bullish, "85")
	if !entryFilterPasses(trade) {
		t.Fatal("expected entry filter to pass for bullish price at/below zone 1")
	}
}

func TestEntryFilterPassesBullishBetweenZone6And7(t *testing.T) {
	trade := zonedTrade(market.Bullish, "108")
	if !entryFilterPasses(trade) {
		t.Fatal("expected entry filter to pass for bullish price between zone 6 and zone 7")
	}
}

func TestEntryFilterRejectsBullishMidRange(t *testing.T) {
	trade := zonedTrade(market.Bullish, "100")
	if entryFilterPasses(trade) {
		t.Fatal("expected entry filter to reject a bullish price in the mid-range")
	}
}

func TestEntryFilterPassesBearishBelowZone2(t *testing.T) {
	trade := zonedTrade(market.Bearish, "90")
	if !entryFilterPasses(trade) {
		t.Fatal("expected entry filter to pass for bearish price at/below zone 2")
	}
}

func TestEntryFilterRejectsNoBias(t *testing.T) {
	trade := zonedTrade(market.NoBias, "85")
	if entryFilterPasses(trade) {
		t.Fatal("expected entry filter to reject a NoBias trade")
	}
}

func TestEntryFilterRejectsMalformedZone(t *testing.T) {
	trade := zonedTrade(market.Bullish, "85")
	trade.Zone1 = "garbage"
	if entryFilterPasses(trade) {
		t.Fatal("expected entry filter to reject an unparseable zone level")
	}
}

func TestShouldPruneTerminalOutZone(t *testing.T) {
	status := market.StatusOutZone5
	trade := market.Trade{Bias: market.Bullish, Status: &status}
	if !shouldPrune(trade, nil) {
		t.Fatal("expected OutZone5/Bullish to prune regardless of prior")
	}

	bearStatus := market.StatusOutZone3
	bearTrade := market.Trade{Bias: market.Bearish, Status: &bearStatus}
	if !shouldPrune(bearTrade, nil) {
		t.Fatal("expected OutZone3/Bearish to prune regardless of prior")
	}
}

func TestShouldPruneLongZone3ToPrepareZone1(t *testing.T) {
	prior := market.Trade{Status: statusOf(market.StatusLongZone3)}
	trade := market.Trade{Bias: market.Bullish, Status: statusOf(market.StatusPrepareZone1)}
	if !shouldPrune(trade, &prior) {
		t.Fatal("expected LongZone3 -> PrepareZone1 transition to prune")
	}
}

func TestShouldPruneShortZone5ToPrepareZone7(t *testing.T) {
	prior := market.Trade{Status: statusOf(market.StatusShortZone5)}
	trade := market.Trade{Bias: market.Bearish, Status: statusOf(market.StatusPrepareZone7)}
	if !shouldPrune(trade, &prior) {
		t.Fatal("expected ShortZone5 -> PrepareZone7 transition to prune")
	}
}

func TestShouldPruneTargetLongZone7ToNone(t *testing.T) {
	prior := market.Trade{Status: statusOf(market.StatusTargetLongZone7)}
	trade := market.Trade{Bias: market.Bullish, Status: nil}
	if !shouldPrune(trade, &prior) {
		t.Fatal("expected TargetLongZone7 -> None transition to prune")
	}
}

func TestShouldPruneTargetShortZone1ToNone(t *testing.T) {
	prior := market.Trade{Status: statusOf(market.StatusTargetShortZone1)}
	trade := market.Trade{Bias: market.Bearish, Status: nil}
	if !shouldPrune(trade, &prior) {
		t.Fatal("expected TargetShortZone1 -> None transition to prune")
	}
}

func TestShouldPruneFalseWithNoPriorAndNonTerminalStatus(t *testing.T) {
	trade := market.Trade{Bias: market.Bullish, Status: statusOf(market.StatusInZone7)}
	if shouldPrune(trade, nil) {
		t.Fatal("expected no pruning without a prior and a non-terminal status")
	}
}

func TestShouldPruneFalseWhenUnrelatedTransition(t *testing.T) {
	prior := market.Trade{Status: statusOf(market.StatusInZone7)}
	trade := market.Trade{Bias: market.Bullish, Status: statusOf(market.StatusInZone3)}
	if shouldPrune(trade, &prior) {
		t.Fatal("expected no pruning for an unrelated status transition")
	}
}
