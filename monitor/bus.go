// Package monitor distributes and persists engine events. It allows
// components to publish and subscribe to run events, enabling decoupled
// communication between the execution engine and observers such as loggers,
// progress displays, and the event database.
package monitor

import "github.com/strand-labs/toolflow"

// EventBus distributes events to subscribers.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(event toolflow.Event)

	// Subscribe registers a subscriber for a specific run.
	// Returns a Subscription that must be closed when done.
	Subscribe(runID string) Subscription

	// SubscribeAll registers a subscriber that receives events from all runs.
	// Returns a Subscription that must be closed when done.
	SubscribeAll() Subscription

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// Subscription receives events.
type Subscription interface {
	// Events returns a channel of events for this subscription.
	Events() <-chan toolflow.Event

	// Close unsubscribes and releases resources.
	Close() error
}
