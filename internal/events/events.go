package events

import (
	"sync"

	"github.com/craftlink/craftlink/internal/domain"
)

// Sink receives events. Publish must not block the caller.
type Sink interface {
	Publish(event domain.Event)
}

// Fanout delivers each event to every attached sink
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewFanout creates a fanout over the given sinks
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Attach adds a sink
func (f *Fanout) Attach(s Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

// Publish implements Sink
func (f *Fanout) Publish(event domain.Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.sinks {
		s.Publish(event)
	}
}

// Recorder keeps every published event; used by tests and the CLI
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

// Publish implements Sink
func (r *Recorder) Publish(event domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// OfType returns the recorded events with the given type
func (r *Recorder) OfType(eventType string) []domain.Event {
	var out []domain.Event
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
