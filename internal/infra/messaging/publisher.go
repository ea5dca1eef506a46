package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"trivia-service/internal/domain"
)

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher forwards notifications as JSON to a durable queue. Notify never blocks: events
// are buffered and published by Run, and dropped with a warning when the buffer is full.
type Publisher struct {
	channel Channel
	queue   string
	log     *slog.Logger
	events  chan domain.Notification
}

const publishBuffer = 256

func NewPublisher(channel Channel, queue string, log *slog.Logger) (*Publisher, error) {
	if log == nil {
		log = slog.Default()
	}
	if _, err := channel.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	return &Publisher{
		channel: channel,
		queue:   queue,
		log:     log,
		events:  make(chan domain.Notification, publishBuffer),
	}, nil
}

func (p *Publisher) Notify(_ context.Context, n domain.Notification) {
	select {
	case p.events <- n:
	default:
		p.log.Warn("notification dropped, publish buffer full", "kind", n.Kind, "session", n.SessionID)
	}
}

// Run publishes buffered notifications until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case n := <-p.events:
			if err := p.publish(ctx, n); err != nil {
				p.log.Error("publish notification", "kind", n.Kind, "session", n.SessionID, "err", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Publisher) publish(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.channel.PublishWithContext(
		ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         string(n.Kind),
			MessageId:    n.SessionID,
			Body:         body,
			Timestamp:    n.SentAt,
		},
	)
}

// Connection owns the broker connection and its channel.
type Connection struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func Dial(url string) (*Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return &Connection{conn: conn, channel: channel}, nil
}

func (c *Connection) Channel() *amqp.Channel {
	return c.channel
}

func (c *Connection) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
