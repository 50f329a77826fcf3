package notify

import (
	"sync"

	"github.com/petriage/petriage/internal/eventbus"
)

// Bus is the in-process Dispatcher. Events fan out to topic-scoped
// subscribers and to firehose subscribers watching every topic.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]*eventbus.TypedBus[Event]
	all    *eventbus.TypedBus[Event]
	closed bool
}

func NewBus() *Bus {
	return &Bus{
		topics: map[string]*eventbus.TypedBus[Event]{},
		all:    eventbus.NewTyped[Event](),
	}
}

// Publish delivers the event to topic and firehose subscribers without
// blocking.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	tb := b.topics[e.Topic]
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}
	b.all.Publish(e)
	if tb != nil {
		tb.Publish(e)
	}
}

// Watch subscribes to a single topic channel. On a closed bus the returned
// channel is already closed.
func (b *Bus) Watch(topic string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}
	tb, ok := b.topics[topic]
	if !ok {
		tb = eventbus.NewTyped[Event]()
		b.topics[topic] = tb
	}
	return tb.Subscribe()
}

// WatchAll subscribes to every topic.
func (b *Bus) WatchAll() <-chan Event {
	return b.all.Subscribe()
}

// Close closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.all.Close()
	for _, tb := range b.topics {
		tb.Close()
	}
	b.topics = map[string]*eventbus.TypedBus[Event]{}
}
