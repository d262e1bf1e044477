package telemetry

import (
	"context"
	"sync"

	"github.com/troupelab/troupe/pkg/domain"
	"github.com/troupelab/troupe/pkg/ports"
)

// Fanout delivers every event to each wrapped sink. Delivery stays
// best-effort: the first error is returned for logging but does not stop the
// remaining sinks.
type Fanout struct {
	sinks []ports.TelemetrySink
}

// NewFanout combines sinks into one.
func NewFanout(sinks ...ports.TelemetrySink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Notify forwards the event to every sink.
func (f *Fanout) Notify(ctx context.Context, ev domain.Event) error {
	var first error
	for _, s := range f.sinks {
		if err := s.Notify(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Broadcaster is a TelemetrySink that fans events out to live subscribers.
// Slow subscribers lose events rather than block delivery.
type Broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan domain.Event
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan domain.Event)}
}

// Notify delivers the event to every subscriber without blocking.
func (b *Broadcaster) Notify(ctx context.Context, ev domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe registers a buffered subscription. The returned cancel func must
// be called to release it.
func (b *Broadcaster) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
	return ch, cancel
}
