// Package chain implements the chain store: a process-wide mapping from
// symbol to an append-only hash chain of TradeBlocks, its admission rule,
// integrity validator and capacity bounds.
package chain

import (
	"sync"
	"time"

	"zonechain-engine/internal/events"
	"zonechain-engine/internal/logging"
	"zonechain-engine/internal/market"
)

// Store is the chain map guarded by a single exclusive lock covering the
// full TryAppend/Drop sequence. One mutex per collection; no reader/writer
// split at this scale.
type Store struct {
	mu             sync.Mutex
	chains         map[string][]market.TradeBlock
	symbolCapacity int
	chainCapacity  int
	bus            *events.Bus
	now            func() time.Time
}

// New builds a Store bounded by symbolCapacity live chains and chainCapacity
// blocks per chain. bus may be nil, in which case admission/drop events are
// not published.
func New(symbolCapacity, chainCapacity int, bus *events.Bus) *Store {
	return &Store{
		chains:         make(map[string][]market.TradeBlock),
		symbolCapacity: symbolCapacity,
		chainCapacity:  chainCapacity,
		bus:            bus,
		now:            time.Now,
	}
}

// TryAppend admits trade onto symbol's chain, creating the chain lazily if
// absent. It returns false without mutation when the symbol map is already
// at capacity, when a new chain cannot be created, or when trade's status
// equals the tail block's status (absent-status-equals-absent included).
func (s *Store) TryAppend(symbol string, trade market.Trade) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logging.ChainContext(symbol, uint64(len(s.chains[symbol])))

	chain, exists := s.chains[symbol]
	if !exists {
		if len(s.chains) >= s.symbolCapacity {
			log.Debug("symbol capacity reached, rejecting new chain")
			return false
		}
	}

	previousHash := market.GenesisPreviousHash
	if len(chain) > 0 {
		tail := chain[len(chain)-1]
		if market.StatusEqual(tail.Trade.Status, trade.Status) {
			log.Debug("admission rejected: status unchanged")
			return false
		}
		previousHash = tail.Hash
	}

	block := market.NewTradeBlock(uint64(len(chain)), s.now().Unix(), trade, previousHash)
	chain = append(chain, block)

	if len(chain) > s.chainCapacity {
		chain = chain[len(chain)-s.chainCapacity:]
	}
	s.chains[symbol] = chain

	log.Info("block admitted")
	s.publish(events.ChainAdmitted, symbol, block)
	return true
}

// Tail returns the trade of symbol's last block, or nil if the chain does
// not exist or is empty.
func (s *Store) Tail(symbol string) *market.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain, ok := s.chains[symbol]
	if !ok || len(chain) == 0 {
		return nil
	}
	trade := chain[len(chain)-1].Trade
	return &trade
}

// Symbols returns the live set of symbols with a chain, used to route
// admitted symbols to the decision mapper and to distinguish active symbols
// from promotion candidates each tick.
func (s *Store) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.chains))
	for symbol := range s.chains {
		out = append(out, symbol)
	}
	return out
}

// Count returns the number of live chains.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chains)
}

// Drop removes symbol's whole chain, the only destructive operation besides
// process exit.
func (s *Store) Drop(symbol string) {
	s.mu.Lock()
	chain, existed := s.chains[symbol]
	delete(s.chains, symbol)
	s.mu.Unlock()

	if !existed {
		return
	}
	logging.ChainContext(symbol, uint64(len(chain))).Info("chain dropped")
	s.publish(events.ChainDropped, symbol, market.TradeBlock{})
}

// Validate checks symbol's chain for hash-chain integrity: every
// non-genesis block's previous_hash must equal its predecessor's hash, and
// every block's hash must recompute to its stored hash. A symbol with no
// chain validates true (vacuously).
func (s *Store) Validate(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return validateChain(s.chains[symbol])
}

func validateChain(chain []market.TradeBlock) bool {
	for i, block := range chain {
		if block.Hash != block.ComputeHash() {
			return false
		}
		if i == 0 {
			continue
		}
		if block.PreviousHash != chain[i-1].Hash {
			return false
		}
	}
	return true
}

// All returns a snapshot of every chain, keyed by symbol, for inspection
// endpoints. The returned slices are copies; mutating them does not affect
// the store.
func (s *Store) All() map[string][]market.TradeBlock {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]market.TradeBlock, len(s.chains))
	for symbol, chain := range s.chains {
		cp := make([]market.TradeBlock, len(chain))
		copy(cp, chain)
		out[symbol] = cp
	}
	return out
}

// ValidateAll reports whether every live chain passes Validate, used by the
// chain-inspection endpoint to decide between 200 and 500.
func (s *Store) ValidateAll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chain := range s.chains {
		if !validateChain(chain) {
			return false
		}
	}
	return true
}

func (s *Store) publish(kind events.Kind, symbol string, block market.TradeBlock) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		Kind:   kind,
		Symbol: symbol,
		Block:  block,
	})
}
