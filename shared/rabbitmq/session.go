package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel the clients use.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Session is one broker connection.
type Session interface {
	Channel() (Channel, error)
	Close() error
}

// Dialer opens a new Session. Every publish, declare and consume loop
// iteration dials its own session, so a broken channel never leaks into
// another operation.
type Dialer func(ctx context.Context) (Session, error)

type amqpSession struct {
	conn *amqp.Connection
}

func (s *amqpSession) Channel() (Channel, error) {
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *amqpSession) Close() error {
	return s.conn.Close()
}

// DialAMQP returns a Dialer connecting to the broker described by cfg.
func DialAMQP(cfg Config) Dialer {
	return func(ctx context.Context) (Session, error) {
		amqpConfig := amqp.Config{
			Heartbeat: cfg.Heartbeat,
			Locale:    "en_US",
		}
		if cfg.ConnectionTimeout > 0 {
			amqpConfig.Dial = amqp.DefaultDial(cfg.ConnectionTimeout)
		}

		conn, err := amqp.DialConfig(cfg.URL(), amqpConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		return &amqpSession{conn: conn}, nil
	}
}

// connector owns the dial logic shared by Publisher and Consumer.
type connector struct {
	dial   Dialer
	logger *slog.Logger
}

// withChannel dials a session, opens a channel, runs fn and tears both down.
func (c *connector) withChannel(ctx context.Context, fn func(Channel) error) error {
	session, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer c.closeSession(ctx, session)

	ch, err := session.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer func() {
		if err := ch.Close(); err != nil {
			c.logger.DebugContext(ctx, "Failed to close RabbitMQ channel", slog.Any("error", err))
		}
	}()

	return fn(ch)
}

func (c *connector) closeSession(ctx context.Context, session Session) {
	if err := session.Close(); err != nil {
		c.logger.DebugContext(ctx, "Failed to close RabbitMQ connection", slog.Any("error", err))
	}
}

// DeclareDeadLetter declares a durable queue that receives expired or
// rejected messages. messageTTL is in seconds. Declaring an existing queue
// with the same arguments is a no-op on the broker.
func (c *connector) DeclareDeadLetter(ctx context.Context, routingKey, queueName string, messageTTL int, exchange string, maxPriority int) error {
	if maxPriority <= 0 {
		maxPriority = defaultMaxPriority
	}

	args := amqp.Table{
		"x-message-ttl":             int32(messageTTL * 1000),
		"x-dead-letter-exchange":    exchange,
		"x-dead-letter-routing-key": routingKey,
		"x-max-priority":            int32(maxPriority),
	}

	err := c.withChannel(ctx, func(ch Channel) error {
		_, err := ch.QueueDeclare(
			queueName, // name
			true,      // durable
			false,     // auto-delete
			false,     // exclusive
			false,     // no-wait
			args,      // arguments
		)
		return err
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to declare dead-letter queue",
			slog.String("queue", queueName),
			slog.String("routing_key", routingKey),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to declare dead-letter queue %q: %w", queueName, err)
	}

	c.logger.InfoContext(ctx, "Dead-letter queue declared",
		slog.String("queue", queueName),
		slog.String("routing_key", routingKey),
		slog.Int("message_ttl", messageTTL),
	)
	return nil
}
