package application

import (
	"sync"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
)

const defaultEventBuffer = 64

// EventBus fans redraw hints out to subscribers. Publishing never blocks: a
// subscriber that falls behind loses events and is expected to re-read the
// model snapshot.
type EventBus struct {
	clock ports.Clock

	mu     sync.Mutex
	subs   map[int]chan domain.Event
	nextID int
	closed bool
}

func NewEventBus(clock ports.Clock) *EventBus {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &EventBus{clock: clock, subs: make(map[int]chan domain.Event)}
}

// Subscribe returns the event channel and a function that unsubscribes and
// closes it.
func (b *EventBus) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	ch := make(chan domain.Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

func (b *EventBus) Publish(event domain.Event) {
	if b == nil {
		return
	}
	if event.At.IsZero() {
		event.At = b.clock.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
