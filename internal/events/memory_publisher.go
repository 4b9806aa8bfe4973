package events

import (
	"sync"
	"time"
)

// MemoryPublisher records events in memory. Used by tests and as the
// fallback when NATS is not configured.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []SettlementEvent
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(event SettlementEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *MemoryPublisher) Close() {}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []SettlementEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SettlementEvent, len(p.events))
	copy(out, p.events)
	return out
}

// ByName returns the published events with the given name.
func (p *MemoryPublisher) ByName(name string) []SettlementEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []SettlementEvent
	for _, e := range p.events {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}
