// Package eventbus carries run requests and results between the playground and its workers.
package eventbus

import (
	"context"

	"github.com/dukex/playground/pkg/events"
)

// Event is any message of the run protocol.
type Event interface {
	GetType() events.EventType
}

// EventPublisher sends an event. key partitions the stream; runs use the row id so the results
// of one row stay ordered.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber routes decoded events to one handler per event type. Handlers are registered
// before Subscribe.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
