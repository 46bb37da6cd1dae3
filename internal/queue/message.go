package queue

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message wraps a GeofenceEvent with its RabbitMQ delivery information.
type Message struct {
	Event       *GeofenceEvent
	DeliveryTag uint64
	Channel     *amqp.Channel
}

// Ack acknowledges the message.
func (m *Message) Ack() error {
	return m.Channel.Ack(m.DeliveryTag, false)
}

// Nack negatively acknowledges the message.
func (m *Message) Nack(requeue bool) error {
	return m.Channel.Nack(m.DeliveryTag, false, requeue)
}

// GetEvent returns the delivered event.
func (m *Message) GetEvent() *GeofenceEvent {
	return m.Event
}

var _ MessageInterface = (*Message)(nil)
