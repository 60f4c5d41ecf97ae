package bus

import (
	"context"
	"errors"
	"time"
)

// NoopEventBus discards all events. Used when no NATS URL is configured so
// the rest of the service can publish unconditionally.
type NoopEventBus struct{}

var _ EventBus = (*NoopEventBus)(nil)

// NewNoopEventBus creates a bus that discards everything
func NewNoopEventBus() *NoopEventBus {
	return &NoopEventBus{}
}

func (b *NoopEventBus) Publish(ctx context.Context, subject string, event *Event) error {
	return nil
}

func (b *NoopEventBus) Subscribe(subject string, handler EventHandler) (Subscription, error) {
	return noopSubscription{}, nil
}

func (b *NoopEventBus) QueueSubscribe(subject, queue string, handler EventHandler) (Subscription, error) {
	return noopSubscription{}, nil
}

func (b *NoopEventBus) Request(ctx context.Context, subject string, event *Event, timeout time.Duration) (*Event, error) {
	return nil, errors.New("request not supported on noop event bus")
}

func (b *NoopEventBus) Close() {}

func (b *NoopEventBus) IsConnected() bool {
	return false
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() error { return nil }
