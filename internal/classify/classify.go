// Package classify turns a candle sequence and a reference sequence into a
// Trade record: moving averages, bias, the log-spaced zone partition and
// current price.
package classify

import (
	"fmt"
	"math"
	"strconv"

	"zonechain-engine/internal/logging"
	"zonechain-engine/internal/market"
	"zonechain-engine/internal/tradestate"
)

// minSamples is the precondition both the subject sequence and the
// reference sequence must clear before any statistic is trusted.
const minSamples = 271

// referenceTailOffset and referenceHeadWindow bound the CMA/OMA windows on
// the reference sequence.
const (
	referenceTailOffset = 71
	referenceHeadWindow = 200
)

// zoneWindowOffset trims the same leading 71 samples from the subject
// sequence before deriving the high/low range and current price.
const zoneWindowOffset = 71

// Classify produces the Trade for symbol given its own candles and the
// shared reference sequence (the scheduler always fetches BTCUSDT for it,
// whatever the watchlist), then seeds
// status by consulting prior, the tail Trade of that symbol's chain (nil if
// the chain does not yet exist).
func Classify(symbol string, candles, reference []market.Candlestick, prior *market.Trade) (market.Trade, error) {
	log := logging.ClassifyContext(symbol, len(candles))

	if len(candles) < minSamples || len(reference) < minSamples {
		log.Debug("insufficient history, returning neutral trade")
		return neutralTrade(symbol, len(candles)), nil
	}

	cma, err := meanClose(reference[referenceTailOffset:])
	if err != nil {
		return market.Trade{}, fmt.Errorf("classify %s: cma: %w", symbol, err)
	}
	oma, err := meanClose(reference[:referenceHeadWindow])
	if err != nil {
		return market.Trade{}, fmt.Errorf("classify %s: oma: %w", symbol, err)
	}

	bias := deriveBias(cma, oma)

	window := candles[zoneWindowOffset:]
	maxHigh, minLow, err := highLowRange(window)
	if err != nil {
		return market.Trade{}, fmt.Errorf("classify %s: zone range: %w", symbol, err)
	}
	currentPrice, err := latestClose(window)
	if err != nil {
		return market.Trade{}, fmt.Errorf("classify %s: current price: %w", symbol, err)
	}

	zones := partitionZones(minLow, maxHigh)

	trade := market.Trade{
		Symbol:       symbol,
		CurrentPrice: formatPrice(currentPrice),
		CMA:          formatPrice(cma),
		OMA:          formatPrice(oma),
		Bias:         bias,
		Status:       nil,
		ZoneMin:      formatPrice(zones.min),
		Zone1:        formatPrice(zones.z1),
		Zone2:        formatPrice(zones.z2),
		Zone3:        formatPrice(zones.z3),
		Zone4:        formatPrice(zones.z4),
		Zone5:        formatPrice(zones.z5),
		Zone6:        formatPrice(zones.z6),
		Zone7:        formatPrice(zones.z7),
		ZoneMax:      formatPrice(zones.max),
		Of:           len(candles),
	}

	if prior != nil && prior.Bias == bias {
		trade.Status = tradestate.NextStatus(trade, *prior)
	}

	return trade, nil
}

func neutralTrade(symbol string, sampleCount int) market.Trade {
	const zero = "0.0"
	return market.Trade{
		Symbol:       symbol,
		CurrentPrice: zero,
		CMA:          zero,
		OMA:          zero,
		Bias:         market.NoBias,
		Status:       nil,
		ZoneMin:      zero,
		Zone1:        zero,
		Zone2:        zero,
		Zone3:        zero,
		Zone4:        zero,
		Zone5:        zero,
		Zone6:        zero,
		Zone7:        zero,
		ZoneMax:      zero,
		Of:           sampleCount,
	}
}

func deriveBias(cma, oma float64) market.Bias {
	switch {
	case cma > oma:
		return market.Bullish
	case cma < oma:
		return market.Bearish
	default:
		return market.NoBias
	}
}

func meanClose(candles []market.Candlestick) (float64, error) {
	if len(candles) == 0 {
		return 0, fmt.Errorf("empty window")
	}
	var sum float64
	for _, c := range candles {
		v, err := strconv.ParseFloat(c.ClosePrice, 64)
		if err != nil {
			return 0, fmt.Errorf("close_price %q: %w", c.ClosePrice, err)
		}
		sum += v
	}
	return sum / float64(len(candles)), nil
}

func highLowRange(candles []market.Candlestick) (maxHigh, minLow float64, err error) {
	if len(candles) == 0 {
		return 0, 0, fmt.Errorf("empty window")
	}
	maxHigh = math.Inf(-1)
	minLow = math.Inf(1)
	for _, c := range candles {
		high, err := strconv.ParseFloat(c.HighPrice, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("high_price %q: %w", c.HighPrice, err)
		}
		low, err := strconv.ParseFloat(c.LowPrice, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("low_price %q: %w", c.LowPrice, err)
		}
		if high > maxHigh {
			maxHigh = high
		}
		if low < minLow {
			minLow = low
		}
	}
	return maxHigh, minLow, nil
}

// latestClose returns the close_price of the candle with the greatest
// close_time, per the classifier's current-price rule.
func latestClose(candles []market.Candlestick) (float64, error) {
	if len(candles) == 0 {
		return 0, fmt.Errorf("empty window")
	}
	best := candles[0]
	for _, c := range candles[1:] {
		if c.CloseTime > best.CloseTime {
			best = c
		}
	}
	return strconv.ParseFloat(best.ClosePrice, 64)
}

type zoneSet struct {
	min, z1, z2, z3, z4, z5, z6, z7, max float64
}

// partitionZones recursively bisects [min, max] in log space: L4 is the
// midpoint, L2/L6 the midpoints of each half, L1/L3/L5/L7 the midpoints of
// those quarters.
func partitionZones(min, max float64) zoneSet {
	lnMin := math.Log(min)
	lnMax := math.Log(max)

	l4 := (lnMin + lnMax) / 2
	l2 := (lnMin + l4) / 2
	l6 := (lnMax + l4) / 2
	l1 := (lnMin + l2) / 2
	l3 := (l2 + l4) / 2
	l5 := (l6 + l4) / 2
	l7 := (lnMax + l6) / 2

	return zoneSet{
		min: min,
		z1:  math.Exp(l1),
		z2:  math.Exp(l2),
		z3:  math.Exp(l3),
		z4:  math.Exp(l4),
		z5:  math.Exp(l5),
		z6:  math.Exp(l6),
		z7:  math.Exp(l7),
		max: max,
	}
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}
