// Package eventbus dispatches change events with asaskevich/EventBus.
package eventbus

import (
	"sync"

	"github.com/asaskevich/EventBus"
	"github.com/pkg/errors"

	"github.com/trezcool/evalua/core"
)

// Bus delivers events synchronously: handlers run on the publisher's goroutine.
type Bus struct {
	bus EventBus.Bus

	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]core.EventHandler // {topic: {id: handler}}
}

var _ core.EventBus = (*Bus)(nil)

func New() *Bus {
	return &Bus{
		bus:  EventBus.New(),
		subs: make(map[string]map[uint64]core.EventHandler),
	}
}

// Publish sends `ev` to the subscribers of its topic, then to the subscribers of core.TopicAll.
func (b *Bus) Publish(ev core.Event) {
	if ev.Topic == "" {
		return
	}
	b.bus.Publish(ev.Topic, ev)
	if ev.Topic != core.TopicAll {
		b.bus.Publish(core.TopicAll, ev)
	}
}

func (b *Bus) Subscribe(topic string, handler core.EventHandler) (func(), error) {
	if topic == "" {
		return nil, errors.New("eventbus: empty topic")
	}
	if handler == nil {
		return nil, errors.New("eventbus: nil handler")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	handlers, ok := b.subs[topic]
	if !ok {
		// one EventBus callback per topic; it fans out to the registered handlers
		if err := b.bus.Subscribe(topic, b.dispatcher(topic)); err != nil {
			return nil, errors.Wrapf(err, "eventbus: subscribing to %q", topic)
		}
		handlers = make(map[uint64]core.EventHandler)
		b.subs[topic] = handlers
	}
	b.nextID++
	id := b.nextID
	handlers[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[topic], id)
		})
	}, nil
}

// Subscribers returns the number of handlers registered for `topic`.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *Bus) dispatcher(topic string) func(core.Event) {
	return func(ev core.Event) {
		b.mu.RLock()
		handlers := make([]core.EventHandler, 0, len(b.subs[topic]))
		for _, h := range b.subs[topic] {
			handlers = append(handlers, h)
		}
		b.mu.RUnlock()

		for _, h := range handlers {
			h(ev)
		}
	}
}
