// Package events carries lifecycle events from the download and chat
// subsystems to interested observers (logs, tests, future push channels).
package events

import "sync"

// Event is a lifecycle event. Minimal and stable: name + model id and
// optional fields via key/values.
type Event struct {
	Name    string
	ModelID string
	Fields  map[string]any
}

// Publisher receives events. Implementations should be lightweight and
// non-blocking; Publish must not panic.
type Publisher interface {
	Publish(Event)
}

// Noop drops events; the default when callers pass nil.
type Noop struct{}

func (Noop) Publish(Event) {}

// Memory stores events in-memory for tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory { return &Memory{} }

func (p *Memory) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *Memory) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Named returns the stored events with the given name.
func (p *Memory) Named(name string) []Event {
	var out []Event
	for _, e := range p.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
