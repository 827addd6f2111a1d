// Package tradestate computes the next TradeStatus for a newly classified
// Trade given the prior Trade for its symbol, by walking a first-match
// transition table.
package tradestate

import (
	"strconv"

	"zonechain-engine/internal/market"
)

// NextStatus returns the next status for new given prior, or nil if no rule
// matches or the bias changed. Callers (the classifier) must already have
// confirmed new.Bias == prior.Bias before calling; this is re-checked here
// as a defensive boundary since it is cheap and the contract depends on it.
func NextStatus(new, prior market.Trade) *market.TradeStatus {
	if new.Bias != prior.Bias {
		return nil
	}

	price, err := strconv.ParseFloat(new.CurrentPrice, 64)
	if err != nil {
		return nil
	}
	zones, err := parseZones(new)
	if err != nil {
		return nil
	}

	var table []transition
	switch new.Bias {
	case market.Bullish:
		table = bullishTransitions
	case market.Bearish:
		table = bearishTransitions
	default:
		return nil
	}

	for _, t := range table {
		if !market.StatusEqual(prior.Status, t.prior) {
			continue
		}
		if t.condition(price, zones) {
			if t.next == "" {
				return nil
			}
			return status(t.next)
		}
	}
	return nil
}

type zoneLevels struct {
	z1, z2, z3, z4, z5, z6, z7 float64
}

func parseZones(t market.Trade) (zoneLevels, error) {
	var z zoneLevels
	var err error
	if z.z1, err = strconv.ParseFloat(t.Zone1, 64); err != nil {
		return z, err
	}
	if z.z2, err = strconv.ParseFloat(t.Zone2, 64); err != nil {
		return z, err
	}
	if z.z3, err = strconv.ParseFloat(t.Zone3, 64); err != nil {
		return z, err
	}
	if z.z4, err = strconv.ParseFloat(t.Zone4, 64); err != nil {
		return z, err
	}
	if z.z5, err = strconv.ParseFloat(t.Zone5, 64); err != nil {
		return z, err
	}
	if z.z6, err = strconv.ParseFloat(t.Zone6, 64); err != nil {
		return z, err
	}
	if z.z7, err = strconv.ParseFloat(t.Zone7, 64); err != nil {
		return z, err
	}
	return z, nil
}

// transition is one row of a state table: prior status (nil means "no prior
// status"), a price-vs-zone predicate, and the resulting status.
type transition struct {
	prior     *market.TradeStatus
	condition func(price float64, z zoneLevels) bool
	next      market.TradeStatus
}

func status(s market.TradeStatus) *market.TradeStatus { return &s }

// bullishTransitions is evaluated first-match-in-order; row order encodes
// the precedence the table depends on (e.g. InZone7 appears twice).
var bullishTransitions = []transition{
	{nil, func(p float64, z zoneLevels) bool { return p >= z.z7 }, market.StatusInZone7},
	{status(market.StatusInZone7), func(p float64, z zoneLevels) bool { return p > z.z5 }, market.StatusInZone7},
	{nil, func(p float64, z zoneLevels) bool { return p <= z.z1 }, market.StatusPrepareZone1},
	{status(market.StatusPrepareZone1), func(p float64, z zoneLevels) bool { return p < z.z3 }, market.StatusPrepareZone1},
	{status(market.StatusOutZone5), func(p float64, z zoneLevels) bool { return p >= z.z7 }, market.StatusInZone7},
	{status(market.StatusInZone7), func(p float64, z zoneLevels) bool { return p <= z.z5 }, market.StatusOutZone5},
	{status(market.StatusOutZone5), func(p float64, z zoneLevels) bool { return p <= z.z1 }, market.StatusPrepareZone1},
	{status(market.StatusPrepareZone1), func(p float64, z zoneLevels) bool { return p >= z.z3 }, market.StatusInZone3},
	{status(market.StatusInZone3), func(p float64, z zoneLevels) bool { return p <= z.z1 }, market.StatusPrepareZone1Long},
	{status(market.StatusPrepareZone1Long), func(p float64, z zoneLevels) bool { return p >= z.z3 }, market.StatusLongZone3},
	{status(market.StatusLongZone3), func(p float64, z zoneLevels) bool { return p <= z.z1 }, market.StatusPrepareZone1},
	{status(market.StatusLongZone3), func(p float64, z zoneLevels) bool { return p >= z.z7 }, market.StatusTargetLongZone7},
	{status(market.StatusTargetLongZone7), func(p float64, z zoneLevels) bool { return p > z.z6 }, market.StatusTargetLongZone7},
	{status(market.StatusTargetLongZone7), func(p float64, z zoneLevels) bool { return p <= z.z6 }, ""},
	{status(market.StatusInZone3), func(p float64, z zoneLevels) bool { return p >= z.z7 }, market.StatusInZone7},
}

// bearishTransitions mirrors the bullish table: z1/z3/z7 swap roles with
// z7/z5/z1, boundaries used are z1, z2, z3, z5, z7 per the glossary.
var bearishTransitions = []transition{
	{nil, func(p float64, z zoneLevels) bool { return p <= z.z1 }, market.StatusInZone1},
	{status(market.StatusInZone1), func(p float64, z zoneLevels) bool { return p < z.z3 }, market.StatusInZone1},
	{nil, func(p float64, z zoneLevels) bool { return p >= z.z7 }, market.StatusPrepareZone7},
	{status(market.StatusPrepareZone7), func(p float64, z zoneLevels) bool { return p > z.z5 }, market.StatusPrepareZone7},
	{status(market.StatusOutZone3), func(p float64, z zoneLevels) bool { return p <= z.z1 }, market.StatusInZone1},
	{status(market.StatusInZone1), func(p float64, z zoneLevels) bool { return p >= z.z3 }, market.StatusOutZone3},
	{status(market.StatusOutZone3), func(p float64, z zoneLevels) bool { return p >= z.z7 }, market.StatusPrepareZone7},
	{status(market.StatusPrepareZone7), func(p float64, z zoneLevels) bool { return p <= z.z5 }, market.StatusInZone5},
	{status(market.StatusInZone5), func(p float64, z zoneLevels) bool { return p >= z.z7 }, market.StatusPrepareZone7Short},
	{status(market.StatusPrepareZone7Short), func(p float64, z zoneLevels) bool { return p <= z.z5 }, market.StatusShortZone5},
	{status(market.StatusShortZone5), func(p float64, z zoneLevels) bool { return p >= z.z7 }, market.StatusPrepareZone7},
	{status(market.StatusShortZone5), func(p float64, z zoneLevels) bool { return p <= z.z1 }, market.StatusTargetShortZone1},
	{status(market.StatusTargetShortZone1), func(p float64, z zoneLevels) bool { return p < z.z2 }, market.StatusTargetShortZone1},
	{status(market.StatusTargetShortZone1), func(p float64, z zoneLevels) bool { return p >= z.z2 }, ""},
	{status(market.StatusInZone5), func(p float64, z zoneLevels) bool { return p <= z.z1 }, market.StatusInZone1},
}
