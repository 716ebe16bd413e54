package core

import "time"

// TopicAll receives every published Event.
const TopicAll = "*"

// Event notifies subscribers that entities changed and cached views must be refreshed.
type Event struct {
	Topic  string    `json:"topic"` // eg. "staff.created"
	Entity string    `json:"entity"`
	IDs    []string  `json:"ids,omitempty"`
	At     time.Time `json:"at"`
}

// NewEvent returns an Event for `entity` with the topic "<entity>.<action>".
func NewEvent(entity, action string, ids ...string) Event {
	return Event{
		Topic:  entity + "." + action,
		Entity: entity,
		IDs:    ids,
		At:     time.Now().UTC(),
	}
}

type (
	// EventHandler must not block: it runs on the publisher's goroutine.
	EventHandler func(Event)

	// EventBus is any service that can dispatch change events.
	EventBus interface {
		Publish(ev Event)
		// Subscribe registers `handler` for `topic` (or TopicAll); the returned func unsubscribes it.
		Subscribe(topic string, handler EventHandler) (func(), error)
	}
)

type nopBus struct{}

func (nopBus) Publish(Event) {}

func (nopBus) Subscribe(string, EventHandler) (func(), error) { return func() {}, nil }

// NopEventBus discards every event.
var NopEventBus EventBus = nopBus{}
