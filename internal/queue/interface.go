package queue

import (
	"context"
)

// MessageInterface is implemented by delivered events so handlers can be
// tested against mock deliveries.
type MessageInterface interface {
	Ack() error
	Nack(requeue bool) error
	GetEvent() *GeofenceEvent
}

// EventQueue carries geofence boundary events from the monitoring process to
// the background trigger process.
type EventQueue interface {
	// Publish adds an event to the queue.
	Publish(ctx context.Context, event *GeofenceEvent) error

	// Consume returns a channel of events from the queue.
	// The caller is responsible for acknowledging each message.
	// Prefetch controls how many unacknowledged messages the consumer holds;
	// the trigger process uses 1 so crossings are handled strictly in order.
	// The returned channels close when the context is cancelled or the
	// connection is lost.
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)

	// Close closes the queue connection.
	Close() error

	// HealthCheck verifies the queue connection is healthy.
	HealthCheck(ctx context.Context) error
}
