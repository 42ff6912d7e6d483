package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AttemptHeader counts deliveries of a message across republishes.
const AttemptHeader = "x-attempt"

// Message is a queued payload.
type Message struct {
	ID      string
	Body    []byte
	Attempt int
}

// Delivery is a received message awaiting settlement. Exactly one of Ack or
// DeadLetter must be called.
type Delivery struct {
	Message
	ack        func() error
	deadLetter func() error
}

func (d Delivery) Ack() error        { return d.ack() }
func (d Delivery) DeadLetter() error { return d.deadLetter() }

// NewDelivery builds a Delivery from settlement callbacks.
func NewDelivery(msg Message, ack, deadLetter func() error) Delivery {
	return Delivery{Message: msg, ack: ack, deadLetter: deadLetter}
}

// Queue is a durable work queue with a dead-letter side.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context, prefetch int) (<-chan Delivery, error)
	Close() error
}

// Broker is a RabbitMQ-backed Queue on the default exchange.
type Broker struct {
	conn       *amqp091.Connection
	mu         sync.Mutex
	pub        *amqp091.Channel
	queue      string
	deadLetter string
	logger     *zap.Logger
}

// Dial connects and declares the work queue and its dead-letter queue.
// Rejected messages are routed to deadLetter by the broker.
func Dial(url, queue, deadLetter string, logger *zap.Logger) (*Broker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if _, err := ch.QueueDeclare(deadLetter, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}
	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp091.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": deadLetter,
		},
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &Broker{
		conn:       conn,
		pub:        ch,
		queue:      queue,
		deadLetter: deadLetter,
		logger:     logger.Named("MQ"),
	}, nil
}

func (b *Broker) Publish(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Attempt < 1 {
		msg.Attempt = 1
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.pub.PublishWithContext(
		pubCtx,
		"",      // exchange
		b.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    msg.ID,
			Timestamp:    time.Now(),
			Headers:      amqp091.Table{AttemptHeader: int32(msg.Attempt)},
			Body:         msg.Body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Consume opens a dedicated channel with the given prefetch and manual acks.
// The returned channel closes when ctx ends or the broker connection drops.
func (b *Broker) Consume(ctx context.Context, prefetch int) (<-chan Delivery, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if prefetch < 1 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}
	msgs, err := ch.Consume(
		b.queue, // queue
		"",      // consumer
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					b.logger.Warn("consumer channel closed")
					return
				}
				delivery := d
				msg := Message{ID: d.MessageId, Body: d.Body, Attempt: attemptOf(d.Headers)}
				select {
				case out <- NewDelivery(msg,
					func() error { return delivery.Ack(false) },
					func() error { return delivery.Nack(false, false) },
				):
				case <-ctx.Done():
					_ = delivery.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pub != nil {
		_ = b.pub.Close()
	}
	return b.conn.Close()
}

func attemptOf(headers amqp091.Table) int {
	switch v := headers[AttemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	}
	return 1
}
