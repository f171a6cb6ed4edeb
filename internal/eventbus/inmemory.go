package eventbus

import (
	"context"
	"sync"

	"collabcore/internal/model"
)

// InMemory is the default EventBus: a registry of handler funcs invoked
// synchronously, in publish order: events emitted to the event bus are
// emitted in the same order as the state changes that produced them. It
// is the bus used by every core test and by any single-process
// deployment that doesn't need Kafka.
type InMemory struct {
	mu       sync.RWMutex
	handlers map[int]func(model.Event)
	nextID   int
}

// NewInMemory returns an empty in-memory bus.
func NewInMemory() *InMemory {
	return &InMemory{handlers: make(map[int]func(model.Event))}
}

func (b *InMemory) Publish(_ context.Context, evt model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.handlers {
		h(evt)
	}
}

func (b *InMemory) Subscribe(handler func(model.Event)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}
