// Package market defines the wire and domain types shared by the candle
// source, classifier, status engine and chain store: candlesticks, bias,
// trade status and the Trade record itself.
package market

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Candlestick is one OHLCV sample. Prices are carried as decimal strings so
// the classifier is the only place that loses exchange precision.
type Candlestick struct {
	OpenTime         int64  `json:"open_time"`
	CloseTime        int64  `json:"close_time"`
	OpenPrice        string `json:"open_price"`
	HighPrice        string `json:"high_price"`
	LowPrice         string `json:"low_price"`
	ClosePrice       string `json:"close_price"`
	Volume           string `json:"volume"`
	QuoteAssetVolume string `json:"quote_asset_volume"`
	NumberOfTrades   int64  `json:"number_of_trades"`
	TakerBuyBase     string `json:"taker_buy_base"`
	TakerBuyQuote    string `json:"taker_buy_quote"`
}

// Bias is the derived market direction: the sign of cma-oma.
type Bias string

const (
	Bullish Bias = "BULLISH"
	Bearish Bias = "BEARISH"
	NoBias  Bias = "NONE"
)

// TradeStatus is a vertex in the per-symbol state machine.
type TradeStatus string

const (
	// Bullish side.
	StatusInZone7          TradeStatus = "IN_ZONE_7"
	StatusOutZone5         TradeStatus = "OUT_ZONE_5"
	StatusPrepareZone1     TradeStatus = "PREPARE_ZONE_1"
	StatusInZone3          TradeStatus = "IN_ZONE_3"
	StatusPrepareZone1Long TradeStatus = "PREPARE_ZONE_1_LONG"
	StatusLongZone3        TradeStatus = "LONG_ZONE_3"
	StatusTargetLongZone7  TradeStatus = "TARGET_LONG_ZONE_7"

	// Bearish side.
	StatusInZone1           TradeStatus = "IN_ZONE_1"
	StatusOutZone3          TradeStatus = "OUT_ZONE_3"
	StatusPrepareZone7      TradeStatus = "PREPARE_ZONE_7"
	StatusInZone5           TradeStatus = "IN_ZONE_5"
	StatusPrepareZone7Short TradeStatus = "PREPARE_ZONE_7_SHORT"
	StatusShortZone5        TradeStatus = "SHORT_ZONE_5"
	StatusTargetShortZone1  TradeStatus = "TARGET_SHORT_ZONE_1"
)

// Trade is the classifier's output: a snapshot of a symbol's zone partition,
// bias and (if seeded) state-machine status. Status is a pointer so its
// absence ("None") is representable; it is encoded as JSON null for hashing
// and for the API.
type Trade struct {
	Symbol       string       `json:"symbol"`
	CurrentPrice string       `json:"current_price"`
	CMA          string       `json:"cma"`
	OMA          string       `json:"oma"`
	Bias         Bias         `json:"bias"`
	Status       *TradeStatus `json:"status"`
	ZoneMin      string       `json:"zone_min"`
	Zone1        string       `json:"zone_1"`
	Zone2        string       `json:"zone_2"`
	Zone3        string       `json:"zone_3"`
	Zone4        string       `json:"zone_4"`
	Zone5        string       `json:"zone_5"`
	Zone6        string       `json:"zone_6"`
	Zone7        string       `json:"zone_7"`
	ZoneMax      string       `json:"zone_max"`
	Of           int          `json:"of"`
}

// StatusEqual treats two absent statuses as equal to each other, matching
// the admission rule's "None equals None" requirement.
func StatusEqual(a, b *TradeStatus) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// canonicalFieldOrder pins the field order used for hashing, independent of
// Go struct tag order or any future field additions to Trade's JSON tag.
var canonicalFieldOrder = []string{
	"symbol", "current_price", "cma", "oma", "bias", "status",
	"zone_min", "zone_1", "zone_2", "zone_3", "zone_4", "zone_5", "zone_6", "zone_7", "zone_max",
	"of",
}

// CanonicalJSON renders the Trade in the single byte-exact encoding the
// chain store hashes over: fixed field order, no whitespace, absent status
// as JSON null. The encoding only has to stay stable within one process
// lifetime; the chain is never persisted or exchanged.
func (t Trade) CanonicalJSON() []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range canonicalFieldOrder {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%q:", field)
		switch field {
		case "symbol":
			writeJSONString(&buf, t.Symbol)
		case "current_price":
			writeJSONString(&buf, t.CurrentPrice)
		case "cma":
			writeJSONString(&buf, t.CMA)
		case "oma":
			writeJSONString(&buf, t.OMA)
		case "bias":
			writeJSONString(&buf, string(t.Bias))
		case "status":
			if t.Status == nil {
				buf.WriteString("null")
			} else {
				writeJSONString(&buf, string(*t.Status))
			}
		case "zone_max":
			writeJSONString(&buf, t.ZoneMax)
		case "zone_7":
			writeJSONString(&buf, t.Zone7)
		case "zone_6":
			writeJSONString(&buf, t.Zone6)
		case "zone_5":
			writeJSONString(&buf, t.Zone5)
		case "zone_4":
			writeJSONString(&buf, t.Zone4)
		case "zone_3":
			writeJSONString(&buf, t.Zone3)
		case "zone_2":
			writeJSONString(&buf, t.Zone2)
		case "zone_1":
			writeJSONString(&buf, t.Zone1)
		case "zone_min":
			writeJSONString(&buf, t.ZoneMin)
		case "of":
			fmt.Fprintf(&buf, "%d", t.Of)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}
