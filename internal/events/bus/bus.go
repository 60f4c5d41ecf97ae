// Package bus provides the event bus abstraction used to distribute
// conversation events between components and processes.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope published on the bus
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates a new event envelope
func NewEvent(eventType, source string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventHandler is called for each event delivered to a subscription
type EventHandler func(event *Event)

// Subscription represents an active subscription
type Subscription interface {
	Unsubscribe() error
}

// EventBus is the interface for publishing and subscribing to events
type EventBus interface {
	// Publish publishes an event to a subject
	Publish(ctx context.Context, subject string, event *Event) error

	// Subscribe subscribes to a subject; wildcards are supported
	Subscribe(subject string, handler EventHandler) (Subscription, error)

	// QueueSubscribe subscribes as part of a queue group so each event is
	// delivered to one member
	QueueSubscribe(subject, queue string, handler EventHandler) (Subscription, error)

	// Request performs a request/reply exchange
	Request(ctx context.Context, subject string, event *Event, timeout time.Duration) (*Event, error)

	// Close closes the bus connection
	Close()

	// IsConnected reports whether the bus is connected
	IsConnected() bool
}
