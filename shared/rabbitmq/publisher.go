package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const contentTypeJSON = "application/json"

// ttlCarrier is implemented by Envelope to expose its TTL without knowing T.
type ttlCarrier interface {
	ttlSeconds() int
}

// Publisher sends messages. It has no consume capability.
type Publisher struct {
	connector
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
}

// PublisherOption customizes a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherDialer replaces the AMQP dialer.
func WithPublisherDialer(d Dialer) PublisherOption {
	return func(p *Publisher) { p.dial = d }
}

// WithPublisherSleep replaces the wait used between publish retries.
func WithPublisherSleep(sleep func(ctx context.Context, d time.Duration) error) PublisherOption {
	return func(p *Publisher) { p.sleep = sleep }
}

// NewPublisher creates a Publisher from cfg.
func NewPublisher(cfg Config, logger *slog.Logger, opts ...PublisherOption) (*Publisher, error) {
	if err := cfg.validatePublisher(); err != nil {
		return nil, fmt.Errorf("invalid publisher config: %w", err)
	}

	p := &Publisher{
		connector: connector{dial: DialAMQP(cfg), logger: logger},
		cfg:       cfg,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish sends message as a persistent delivery. Empty target and exchange
// fall back to the configured routing key and exchange. It reports false on
// any failure after logging it; the caller decides how to compensate.
func (p *Publisher) Publish(ctx context.Context, message any, target, exchange string) bool {
	target, exchange = p.route(target, exchange)

	publishing, err := p.makePublishing(message)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to encode message",
			slog.String("exchange", exchange),
			slog.String("publish_to", target),
			slog.Any("error", err),
		)
		return false
	}

	retries := max(p.cfg.PublishRetries, 0)
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		lastErr = p.withChannel(ctx, func(ch Channel) error {
			return ch.PublishWithContext(ctx, exchange, target, false, false, publishing)
		})
		if lastErr == nil {
			p.logger.InfoContext(ctx, "Message published",
				slog.String("exchange", exchange),
				slog.String("publish_to", target),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		if attempt < retries {
			delay := p.backoff(attempt)
			p.logger.WarnContext(ctx, "Failed to publish message, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_retries", retries),
				slog.Duration("retry_after", delay),
				slog.Any("error", lastErr),
			)
			if err := p.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}
	}

	p.logger.ErrorContext(ctx, "Failed to publish message",
		slog.String("exchange", exchange),
		slog.String("publish_to", target),
		slog.String("body", string(publishing.Body)),
		slog.Any("error", lastErr),
	)
	return false
}

// PublishBatch sends all messages over one channel. Any failure reports
// false; messages sent before the failure stay on the broker.
func (p *Publisher) PublishBatch(ctx context.Context, messages []any, target, exchange string) bool {
	target, exchange = p.route(target, exchange)

	sent := 0
	err := p.withChannel(ctx, func(ch Channel) error {
		for _, message := range messages {
			publishing, err := p.makePublishing(message)
			if err != nil {
				return err
			}
			if err := ch.PublishWithContext(ctx, exchange, target, false, false, publishing); err != nil {
				return err
			}
			sent++
		}
		return nil
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish messages",
			slog.String("exchange", exchange),
			slog.String("publish_to", target),
			slog.Int("total", len(messages)),
			slog.Int("sent", sent),
			slog.Any("error", err),
		)
		return false
	}

	p.logger.InfoContext(ctx, "Messages published",
		slog.String("exchange", exchange),
		slog.String("publish_to", target),
		slog.Int("count", sent),
	)
	return true
}

func (p *Publisher) route(target, exchange string) (string, string) {
	if target == "" {
		target = p.cfg.RoutingKey
	}
	if exchange == "" {
		exchange = p.cfg.Exchange
	}
	return target, exchange
}

func (p *Publisher) makePublishing(message any) (amqp.Publishing, error) {
	body, err := json.Marshal(message)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal message: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  contentTypeJSON,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		ReplyTo:      p.cfg.ReplyTo,
	}
	if tc, ok := message.(ttlCarrier); ok && tc.ttlSeconds() > 0 {
		publishing.Expiration = strconv.Itoa(tc.ttlSeconds() * 1000)
	}
	return publishing, nil
}

func (p *Publisher) backoff(attempt int) time.Duration {
	base := p.cfg.PublishRetryDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	mult := p.cfg.PublishBackoffMult
	if mult <= 0 {
		mult = 2.0
	}

	delay := float64(base)
	for i := 0; i < attempt; i++ {
		delay *= mult
	}
	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
