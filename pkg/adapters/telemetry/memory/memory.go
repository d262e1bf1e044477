// Package memory provides an in-memory telemetry sink for testing.
package memory

import (
	"context"
	"sync"

	"github.com/troupelab/troupe/pkg/domain"
)

// Sink records every event it receives.
type Sink struct {
	mu     sync.RWMutex
	events []domain.Event
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{}
}

// Notify appends the event to the recorded list.
func (s *Sink) Notify(ctx context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of all recorded events in delivery order.
func (s *Sink) Events() []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByType returns the recorded events matching the given type.
func (s *Sink) ByType(t domain.EventType) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
