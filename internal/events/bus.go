// Package events implements an in-process publish/subscribe fan-out of
// chain, decision and scheduler lifecycle events, consumed by the live feed
// hub and by the audit mirror.
package events

import (
	"sync"

	"zonechain-engine/internal/market"
)

// Kind enumerates the fixed set of event types the bus carries.
type Kind string

const (
	ChainAdmitted      Kind = "chain_admitted"
	ChainDropped       Kind = "chain_dropped"
	DecisionDispatched Kind = "decision_dispatched"
	SchedulerStarted   Kind = "scheduler_started"
	SchedulerStopped   Kind = "scheduler_stopped"
)

// Event is the payload fanned out to subscribers. Fields not relevant to a
// given Kind are left zero.
type Event struct {
	Kind   Kind              `json:"kind"`
	Symbol string            `json:"symbol,omitempty"`
	Block  market.TradeBlock `json:"block,omitempty"`
	Intent string            `json:"intent,omitempty"`
	Err    string            `json:"error,omitempty"`
}

// Subscriber receives published events. It must not block; slow consumers
// hand off to their own buffered channel or goroutine (the live feed hub
// does this per-client).
type Subscriber func(Event)

// Bus is a process-wide fan-out point. The zero value is not usable; use
// New.
type Bus struct {
	mu          sync.RWMutex
	subscribers []Subscriber
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers sub to receive every future Publish call.
func (b *Bus) Subscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, sub)
}

// Publish fans evt out to every subscriber synchronously, in the calling
// goroutine. Subscribers are expected to return quickly; the bus applies no
// timeout of its own.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		sub(evt)
	}
}
