// Package decision maps a trade's (bias, status) to an exchange intent and
// dispatches it fire-and-forget.
package decision

import (
	"context"

	"zonechain-engine/internal/events"
	"zonechain-engine/internal/exchange"
	"zonechain-engine/internal/logging"
	"zonechain-engine/internal/market"
)

// intent is the concrete exchange action resolved from (bias, status).
type intent int

const (
	noop intent = iota
	openLong
	openShort
	flattenLeverage1
	flattenLeverage2
)

// Leverage used by the "close all" intents, per the intent table.
const (
	defaultLeverage  = 1
	cautiousLeverage = 2
)

// Mapper dispatches decisions against an exchange.Client, configured with
// the order quantity to use for market-open intents.
type Mapper struct {
	client   exchange.Client
	bus      *events.Bus
	orderQty float64
}

// New builds a Mapper. orderQty is the fixed quantity used for every
// market-open intent; lot-size rounding is the exchange client's concern.
func New(client exchange.Client, bus *events.Bus, orderQty float64) *Mapper {
	return &Mapper{client: client, bus: bus, orderQty: orderQty}
}

// Decide resolves trade's intent and dispatches it in a new goroutine;
// Decide itself never blocks on the exchange call. Failures are logged, not
// returned; the chain already records the decision point.
func (m *Mapper) Decide(ctx context.Context, trade market.Trade) {
	in := resolveIntent(trade.Bias, trade.Status)
	if in == noop {
		return
	}

	symbol := trade.Symbol
	status := ""
	if trade.Status != nil {
		status = string(*trade.Status)
	}
	log := logging.DecisionContext(symbol, string(trade.Bias), status)

	// Dispatches survive scheduler cancellation: stopping the loop must not
	// abort an exchange call already in flight.
	ctx = context.WithoutCancel(ctx)

	go func() {
		var err error
		switch in {
		case openLong:
			err = m.client.Order(ctx, symbol, exchange.Buy, m.orderQty, false)
		case openShort:
			err = m.client.Order(ctx, symbol, exchange.Sell, m.orderQty, false)
		case flattenLeverage1:
			err = m.flatten(ctx, symbol, defaultLeverage)
		case flattenLeverage2:
			err = m.flatten(ctx, symbol, cautiousLeverage)
		}

		if err != nil {
			log.WithError(err).Warn("decision dispatch failed")
		} else {
			log.Info("decision dispatched")
		}
		m.publish(symbol, in, err)
	}()
}

func (m *Mapper) flatten(ctx context.Context, symbol string, leverage int) error {
	if err := m.client.SetLeverage(ctx, symbol, leverage); err != nil {
		return err
	}
	return m.client.CloseAllPositions(ctx)
}

func (m *Mapper) publish(symbol string, in intent, err error) {
	if m.bus == nil {
		return
	}
	evt := events.Event{Kind: events.DecisionDispatched, Symbol: symbol, Intent: in.String()}
	if err != nil {
		evt.Err = err.Error()
	}
	m.bus.Publish(evt)
}

func (i intent) String() string {
	switch i {
	case openLong:
		return "open_long"
	case openShort:
		return "open_short"
	case flattenLeverage1:
		return "flatten_leverage_1"
	case flattenLeverage2:
		return "flatten_leverage_2"
	default:
		return "noop"
	}
}

// resolveIntent implements the (bias, status) -> intent table exactly.
func resolveIntent(bias market.Bias, status *market.TradeStatus) intent {
	if status == nil {
		return flattenLeverage1
	}
	s := *status

	switch bias {
	case market.Bullish:
		switch s {
		case market.StatusInZone7, market.StatusInZone3, market.StatusLongZone3:
			return openLong
		case market.StatusOutZone5, market.StatusPrepareZone1, market.StatusTargetLongZone7:
			return flattenLeverage1
		case market.StatusPrepareZone1Long:
			return flattenLeverage2
		}
	case market.Bearish:
		switch s {
		case market.StatusInZone1, market.StatusInZone5, market.StatusShortZone5:
			return openShort
		case market.StatusOutZone3, market.StatusPrepareZone7, market.StatusTargetShortZone1:
			return flattenLeverage1
		case market.StatusPrepareZone7Short:
			return flattenLeverage2
		}
	}
	return noop
}
