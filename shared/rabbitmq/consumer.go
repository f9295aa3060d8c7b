package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cuongbtq/image-tasks/shared/correlation"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDeliveriesClosed is reported when the broker closes the delivery
// channel, usually because the connection dropped.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// Handler processes one decoded message. A nil return acks the delivery,
// an error nacks it.
type Handler[T any] func(ctx context.Context, msg Envelope[T]) error

// Consumer receives messages from one queue. It has no publish capability.
type Consumer struct {
	connector
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
}

// ConsumerOption customizes a Consumer.
type ConsumerOption func(*Consumer)

// WithConsumerDialer replaces the AMQP dialer.
func WithConsumerDialer(d Dialer) ConsumerOption {
	return func(c *Consumer) { c.dial = d }
}

// WithConsumerSleep replaces the wait used before restarting the consume loop.
func WithConsumerSleep(sleep func(ctx context.Context, d time.Duration) error) ConsumerOption {
	return func(c *Consumer) { c.sleep = sleep }
}

// NewConsumer creates a Consumer from cfg.
func NewConsumer(cfg Config, logger *slog.Logger, opts ...ConsumerOption) (*Consumer, error) {
	if err := cfg.validateConsumer(); err != nil {
		return nil, fmt.Errorf("invalid consumer config: %w", err)
	}

	c := &Consumer{
		connector: connector{dial: DialAMQP(cfg), logger: logger},
		cfg:       cfg,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// QueueName returns the consumed queue.
func (c *Consumer) QueueName() string {
	return c.cfg.QueueName
}

// Consume runs the consume loop for c until ctx is cancelled. Connection
// and channel failures are logged and the loop restarts after the
// configured error timeout, for as long as the process lives.
//
// Deliveries that cannot be decoded into Envelope[T] are acked and dropped.
// Decoded messages are passed to handler with the envelope's trace id in
// the context; handler success acks, handler failure or panic nacks.
func Consume[T any](ctx context.Context, c *Consumer, tag string, handler Handler[T]) error {
	for {
		c.logger.InfoContext(ctx, "Starting queue consumption",
			slog.String("queue", c.cfg.QueueName),
			slog.String("consumer_tag", tag),
		)

		err := consumeOnce(ctx, c, tag, handler)
		if ctx.Err() != nil {
			c.logger.InfoContext(ctx, "Queue consumption stopped",
				slog.String("queue", c.cfg.QueueName),
				slog.String("consumer_tag", tag),
			)
			return nil
		}

		c.logger.ErrorContext(ctx, "Connection or consume error, restarting",
			slog.String("queue", c.cfg.QueueName),
			slog.Duration("retry_after", c.cfg.errorTimeout()),
			slog.Any("error", err),
		)

		if err := c.sleep(ctx, c.cfg.errorTimeout()); err != nil {
			return nil
		}
	}
}

// queueArgs are the work queue arguments. With dead-lettering configured a
// nack without requeue moves the message to the dead-letter queue.
func (c *Consumer) queueArgs() amqp.Table {
	args := amqp.Table{"x-max-priority": int32(c.cfg.maxPriority())}
	if c.cfg.DeadLetterRoutingKey != "" {
		args["x-dead-letter-exchange"] = c.cfg.DeadLetterExchange
		args["x-dead-letter-routing-key"] = c.cfg.DeadLetterRoutingKey
	}
	return args
}

// DeclareDeadLetterQueue declares queueName as the dead-letter queue of the
// consumed queue. Messages expire from it after messageTTL seconds and are
// routed back to the consumed queue through the default exchange.
func (c *Consumer) DeclareDeadLetterQueue(ctx context.Context, queueName string, messageTTL int) error {
	return c.DeclareDeadLetter(ctx, c.cfg.QueueName, queueName, messageTTL, "", c.cfg.maxPriority())
}

func consumeOnce[T any](ctx context.Context, c *Consumer, tag string, handler Handler[T]) error {
	return c.withChannel(ctx, func(ch Channel) error {
		// one unacked message per consumer
		if err := ch.Qos(1, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}

		_, err := ch.QueueDeclare(
			c.cfg.QueueName, // name
			true,            // durable
			false,           // auto-delete
			false,           // exclusive
			false,           // no-wait
			c.queueArgs(),
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue: %w", err)
		}

		deliveries, err := ch.Consume(
			c.cfg.QueueName, // queue
			tag,             // consumer tag
			false,           // auto-ack
			false,           // exclusive
			false,           // no-local
			false,           // no-wait
			nil,             // args
		)
		if err != nil {
			return fmt.Errorf("failed to consume messages: %w", err)
		}

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case delivery, ok := <-deliveries:
				if !ok {
					return ErrDeliveriesClosed
				}
				dispatch(ctx, c, delivery, handler)
			}
		}
	})
}

func dispatch[T any](ctx context.Context, c *Consumer, delivery amqp.Delivery, handler Handler[T]) {
	env, err := decodeEnvelope[T](delivery.Body)
	if err != nil {
		c.logger.WarnContext(ctx, "Message does not match the expected format",
			slog.String("body", string(delivery.Body)),
			slog.Any("error", err),
		)
		c.ack(ctx, delivery)
		return
	}

	// a claimed message runs to completion even when shutdown starts
	msgCtx := correlation.WithID(context.WithoutCancel(ctx), env.TraceID)

	if err := runHandler(msgCtx, env, handler); err != nil {
		c.logger.ErrorContext(msgCtx, "Message handling failed",
			slog.String("body", string(delivery.Body)),
			slog.Bool("requeue", c.cfg.RequeueOnFailure),
			slog.Any("error", err),
		)
		if nackErr := delivery.Nack(false, c.cfg.RequeueOnFailure); nackErr != nil {
			c.logger.ErrorContext(msgCtx, "Failed to NACK message",
				slog.Uint64("delivery_tag", delivery.DeliveryTag),
				slog.Any("error", nackErr),
			)
		}
		return
	}

	c.ack(msgCtx, delivery)
}

func runHandler[T any](ctx context.Context, env Envelope[T], handler Handler[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return handler(ctx, env)
}

func (c *Consumer) ack(ctx context.Context, delivery amqp.Delivery) {
	if err := delivery.Ack(false); err != nil {
		c.logger.ErrorContext(ctx, "Failed to ACK message",
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
			slog.Any("error", err),
		)
	}
}
