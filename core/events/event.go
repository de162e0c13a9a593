package events

import "tokenledger/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (receipts, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Collector accumulates events in order; the engine drains one per receipt.
type Collector struct {
	collected []*types.Event
}

// Emit implements the Emitter interface.
func (c *Collector) Emit(e Event) {
	if e == nil {
		return
	}
	c.collected = append(c.collected, e.Event())
}

// Drain returns and clears the collected events.
func (c *Collector) Drain() []*types.Event {
	out := c.collected
	c.collected = nil
	if out == nil {
		out = []*types.Event{}
	}
	return out
}
