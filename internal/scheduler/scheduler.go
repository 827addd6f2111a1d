// Package scheduler drives the engine's periodic loop: each tick fans out
// candle fetches for the watchlist, classifies the results, admits them to
// the chain store and dispatches decisions.
package scheduler

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"zonechain-engine/internal/candles"
	"zonechain-engine/internal/chain"
	"zonechain-engine/internal/classify"
	"zonechain-engine/internal/decision"
	"zonechain-engine/internal/events"
	"zonechain-engine/internal/logging"
	"zonechain-engine/internal/market"
)

// TickPeriod is the scheduler's fixed cadence.
const TickPeriod = 50 * time.Second

// ReferenceSymbol is the shared reference sequence every classify call uses
// for its moving averages, coupling every symbol's bias to BTC.
const ReferenceSymbol = "BTCUSDT"

// Config bundles the scheduler's tunables, sourced from the loaded
// configuration.
type Config struct {
	Watchlist      []string
	Interval       string
	Limit          int
	SymbolCapacity int
}

// Scheduler drives ticks against a candle Source, a chain Store and a
// decision Mapper. The zero value is not usable; use New.
type Scheduler struct {
	cfg    Config
	source candles.Source
	store  *chain.Store
	decide *decision.Mapper
	bus    *events.Bus

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Scheduler. bus may be nil.
func New(cfg Config, source candles.Source, store *chain.Store, decide *decision.Mapper, bus *events.Bus) *Scheduler {
	return &Scheduler{cfg: cfg, source: source, store: store, decide: decide, bus: bus}
}

// Start begins the periodic loop in a background goroutine. It is
// idempotent while already active.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.active = true

	s.wg.Add(1)
	go s.run(ctx)

	if s.bus != nil {
		s.bus.Publish(events.Event{Kind: events.SchedulerStarted})
	}
	logging.Default().WithComponent("scheduler").Info("scheduler started")
}

// Stop requests cooperative cancellation at the next suspension point. An
// in-flight tick may finish its current fetch but abandons further work;
// fire-and-forget decision dispatches already spawned are not cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.active = false
	s.mu.Unlock()

	s.wg.Wait()

	if s.bus != nil {
		s.bus.Publish(events.Event{Kind: events.SchedulerStopped})
	}
	logging.Default().WithComponent("scheduler").Info("scheduler stopped")
}

// IsActive reports whether the loop is currently running.
func (s *Scheduler) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(TickPeriod)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// fetchResult pairs a watchlist symbol with its own candles, ready for
// classification once the shared reference sequence is also in hand.
type fetchResult struct {
	symbol  string
	candles []market.Candlestick
}

func (s *Scheduler) tick(ctx context.Context) {
	tickID := uuid.New().String()
	log := logging.SchedulerContext(tickID, len(s.cfg.Watchlist))
	log.Debug("tick starting")

	active := make(map[string]bool)
	for _, sym := range s.store.Symbols() {
		active[sym] = true
	}

	reference, results := s.fanOutFetch(ctx)
	if ctx.Err() != nil {
		return
	}
	if reference == nil {
		log.Warn("reference fetch failed, skipping tick")
		return
	}

	trades := make(map[string]market.Trade, len(results))
	for _, r := range results {
		prior := s.store.Tail(r.symbol)
		trade, err := classify.Classify(r.symbol, r.candles, reference, prior)
		if err != nil {
			log.WithError(err).WithField("symbol", r.symbol).Warn("classify failed")
			continue
		}
		trades[r.symbol] = trade
	}

	// Admit active symbols first.
	for symbol := range active {
		trade, ok := trades[symbol]
		if !ok {
			continue
		}
		s.admitAndDecide(ctx, symbol, trade)
	}

	// Promote candidates: symbols not yet active, passing the entry filter.
	candidates := make([]string, 0)
	for symbol, trade := range trades {
		if active[symbol] {
			continue
		}
		if entryFilterPasses(trade) {
			candidates = append(candidates, symbol)
		}
	}
	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	for _, symbol := range candidates {
		if s.store.Count() == s.cfg.SymbolCapacity {
			break
		}
		s.admitAndDecide(ctx, symbol, trades[symbol])
	}

	log.Debug("tick complete")
}

// fanOutFetch concurrently fetches the reference sequence and every
// watchlist symbol's own candles. Per-symbol failures are dropped, not
// fatal to the tick; a failed reference fetch aborts the whole tick since
// every classify call depends on it.
func (s *Scheduler) fanOutFetch(ctx context.Context) ([]market.Candlestick, []fetchResult) {
	var wg sync.WaitGroup
	var mu sync.Mutex

	var reference []market.Candlestick
	results := make([]fetchResult, 0, len(s.cfg.Watchlist))

	wg.Add(1)
	go func() {
		defer wg.Done()
		c, err := s.source.Fetch(ctx, ReferenceSymbol, s.cfg.Interval, s.cfg.Limit)
		if err != nil {
			logging.Default().WithComponent("scheduler").WithError(err).Warn("reference fetch failed")
			return
		}
		mu.Lock()
		reference = c
		mu.Unlock()
	}()

	for _, symbol := range s.cfg.Watchlist {
		symbol := symbol
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := s.source.Fetch(ctx, symbol, s.cfg.Interval, s.cfg.Limit)
			if err != nil {
				logging.Default().WithComponent("scheduler").WithField("symbol", symbol).WithError(err).Debug("symbol fetch failed")
				return
			}
			mu.Lock()
			results = append(results, fetchResult{symbol: symbol, candles: c})
			mu.Unlock()
		}()
	}

	wg.Wait()
	return reference, results
}

func (s *Scheduler) admitAndDecide(ctx context.Context, symbol string, trade market.Trade) {
	prior := s.store.Tail(symbol)
	if !s.store.TryAppend(symbol, trade) {
		return
	}
	if shouldPrune(trade, prior) {
		s.store.Drop(symbol)
	}
	s.decide.Decide(ctx, trade)
}

// entryFilterPasses reports whether a not-yet-active symbol's trade sits in
// an entry band worth promoting: near the bottom of the range, or in the
// zone 6..7 band.
func entryFilterPasses(trade market.Trade) bool {
	price, err := strconv.ParseFloat(trade.CurrentPrice, 64)
	if err != nil {
		return false
	}
	z1, err1 := strconv.ParseFloat(trade.Zone1, 64)
	z2, err2 := strconv.ParseFloat(trade.Zone2, 64)
	z6, err3 := strconv.ParseFloat(trade.Zone6, 64)
	z7, err4 := strconv.ParseFloat(trade.Zone7, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return false
	}

	switch trade.Bias {
	case market.Bullish:
		return price <= z1 || (price > z6 && price <= z7)
	case market.Bearish:
		return price <= z2 || (price > z6 && price <= z7)
	default:
		return false
	}
}

// shouldPrune implements the pruning rule: the terminal-out-zone case, plus
// the four admitted-status transitions between prior (the tail before this
// admission) and trade (the just-admitted status).
func shouldPrune(trade market.Trade, prior *market.Trade) bool {
	if trade.Status != nil {
		switch *trade.Status {
		case market.StatusOutZone5:
			if trade.Bias == market.Bullish {
				return true
			}
		case market.StatusOutZone3:
			if trade.Bias == market.Bearish {
				return true
			}
		}
	}

	if prior == nil || prior.Status == nil {
		return false
	}
	switch {
	case trade.Bias == market.Bullish && *prior.Status == market.StatusLongZone3 && trade.Status != nil && *trade.Status == market.StatusPrepareZone1:
		return true
	case trade.Bias == market.Bearish && *prior.Status == market.StatusShortZone5 && trade.Status != nil && *trade.Status == market.StatusPrepareZone7:
		return true
	case trade.Bias == market.Bullish && *prior.Status == market.StatusTargetLongZone7 && trade.Status == nil:
		return true
	case trade.Bias == market.Bearish && *prior.Status == market.StatusTargetShortZone1 && trade.Status == nil:
		return true
	}
	return false
}
