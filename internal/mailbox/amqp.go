package mailbox

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPDirectory implements Directory over RabbitMQ. A mailbox is an
// auto-delete queue on the default exchange: Register declares and consumes
// it, Lookup resolves the name with a passive declare, and Send publishes
// with the mailbox name as routing key. Both processes reach the same broker,
// which is what makes the names process-wide.
type AMQPDirectory struct {
	conn *amqp.Connection

	mu            sync.Mutex
	registrations map[string]*amqpRegistration
}

type amqpRegistration struct {
	channel *amqp.Channel
	stream  chan []byte
}

// NewAMQPDirectory connects to the broker and returns an empty directory.
func NewAMQPDirectory(amqpURL string) (*AMQPDirectory, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return &AMQPDirectory{
		conn:          conn,
		registrations: make(map[string]*amqpRegistration),
	}, nil
}

// Register declares the mailbox queue and starts consuming it.
func (d *AMQPDirectory) Register(ctx context.Context, name string) (Receiver, error) {
	ch, err := d.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		name,
		false, // durable, mailboxes are ephemeral
		true,  // auto-delete
		false, // exclusive, the other process must be able to publish
		false, // no-wait
		nil,
	); err != nil {
		if closeErr := ch.Close(); closeErr != nil {
			_ = closeErr
		}
		return nil, fmt.Errorf("failed to declare mailbox %q: %w", name, err)
	}

	deliveries, err := ch.Consume(
		name,
		"",   // consumer tag
		true, // auto-ack, redelivery is useless for a one-shot handshake
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		if closeErr := ch.Close(); closeErr != nil {
			_ = closeErr
		}
		return nil, fmt.Errorf("failed to consume mailbox %q: %w", name, err)
	}

	reg := &amqpRegistration{
		channel: ch,
		stream:  make(chan []byte, memoryMailboxBuffer),
	}

	go func() {
		defer close(reg.stream)
		for delivery := range deliveries {
			select {
			case reg.stream <- delivery.Body:
			default:
				// Receiver not draining; drop rather than block the consumer.
			}
		}
	}()

	d.mu.Lock()
	d.registrations[name] = reg
	d.mu.Unlock()

	return reg, nil
}

// Lookup resolves name to a sender, or ErrMailboxNotFound when no side has
// the queue declared. The passive declare needs a throwaway channel: the
// broker closes the channel on a failed passive declare.
func (d *AMQPDirectory) Lookup(ctx context.Context, name string) (Sender, error) {
	probe, err := d.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := probe.QueueDeclarePassive(name, false, true, false, false, nil); err != nil {
		return nil, ErrMailboxNotFound
	}
	if err := probe.Close(); err != nil {
		_ = err
	}

	return &amqpSender{dir: d, name: name}, nil
}

// Unregister deletes the mailbox queue and stops its consumer.
func (d *AMQPDirectory) Unregister(ctx context.Context, name string) error {
	d.mu.Lock()
	reg, exists := d.registrations[name]
	delete(d.registrations, name)
	d.mu.Unlock()

	if !exists {
		return nil
	}

	if _, err := reg.channel.QueueDelete(name, false, false, false); err != nil {
		if closeErr := reg.channel.Close(); closeErr != nil {
			_ = closeErr
		}
		return fmt.Errorf("failed to delete mailbox %q: %w", name, err)
	}
	if err := reg.channel.Close(); err != nil {
		return fmt.Errorf("failed to close mailbox channel: %w", err)
	}
	return nil
}

// Close tears down every registration and the broker connection.
func (d *AMQPDirectory) Close() error {
	d.mu.Lock()
	for name, reg := range d.registrations {
		if _, err := reg.channel.QueueDelete(name, false, false, false); err != nil {
			_ = err
		}
		if err := reg.channel.Close(); err != nil {
			_ = err
		}
	}
	d.registrations = make(map[string]*amqpRegistration)
	d.mu.Unlock()

	return d.conn.Close()
}

func (r *amqpRegistration) Messages() <-chan []byte {
	return r.stream
}

type amqpSender struct {
	dir  *AMQPDirectory
	name string
}

// Send publishes to the mailbox queue via the default exchange. A mailbox
// deleted between Lookup and Send silently drops the message; the handshake
// contract tolerates that.
func (s *amqpSender) Send(ctx context.Context, payload []byte) error {
	ch, err := s.dir.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer func() {
		if closeErr := ch.Close(); closeErr != nil {
			_ = closeErr
		}
	}()

	err = ch.PublishWithContext(
		ctx,
		"",     // default exchange
		s.name, // routing key = queue name
		false,  // mandatory
		false,  // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        payload,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to send to mailbox %q: %w", s.name, err)
	}
	return nil
}

var _ Directory = (*AMQPDirectory)(nil)
