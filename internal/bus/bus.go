package bus

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Bus is an in-process publish/subscribe event bus. Subscribers register a
// kind prefix ("hub.", "conn.") and receive every event whose Kind starts
// with that prefix. Delivery is non-blocking: an event is dropped for a
// subscriber whose channel is full.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscriber
	nextID  int
	dropped atomic.Uint64
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// Subscription is a live registration on the bus. Events arrive on C until
// Cancel is called.
type Subscription struct {
	C      <-chan Event
	cancel func()
}

// Cancel removes the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.cancel()
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Publish delivers evt to every matching subscriber without blocking.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber for events whose Kind starts with prefix.
// buf is the channel capacity; slow consumers lose events rather than stall
// publishers.
func (b *Bus) Subscribe(prefix string, buf int) *Subscription {
	ch := make(chan Event, buf)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = &subscriber{prefix: prefix, ch: ch}
	b.mu.Unlock()

	var once sync.Once
	return &Subscription{
		C: ch,
		cancel: func() {
			once.Do(func() {
				b.mu.Lock()
				delete(b.subs, id)
				b.mu.Unlock()
			})
		},
	}
}

// Dropped reports how many events were discarded due to full subscriber
// channels since the bus was created.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
