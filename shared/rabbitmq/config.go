package rabbitmq

import (
	"fmt"
	"net/url"
	"time"
)

const (
	defaultErrorTimeout = 10 * time.Second
	defaultMaxPriority  = 5
)

// Config holds every RabbitMQ setting used by publishers and consumers.
// Publishers read the exchange/routing fields, consumers the queue fields.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string

	// publishing
	Exchange           string
	RoutingKey         string
	ReplyTo            string
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64

	// consuming
	QueueName        string
	MaxPriority      int
	ErrorTimeout     time.Duration
	RequeueOnFailure bool
	ConsumerTag      string

	// dead-lettering of the work queue; an empty routing key disables it
	DeadLetterExchange   string
	DeadLetterRoutingKey string

	Heartbeat         time.Duration
	ConnectionTimeout time.Duration
}

// URL returns the AMQP connection URL.
func (c Config) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.VHost,
	}
	return u.String()
}

func (c Config) errorTimeout() time.Duration {
	if c.ErrorTimeout <= 0 {
		return defaultErrorTimeout
	}
	return c.ErrorTimeout
}

func (c Config) maxPriority() int {
	if c.MaxPriority <= 0 {
		return defaultMaxPriority
	}
	return c.MaxPriority
}

func (c Config) validatePublisher() error {
	if c.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}
	if c.RoutingKey == "" && c.Exchange == "" {
		return fmt.Errorf("rabbitmq publisher needs a routing key or an exchange")
	}
	return nil
}

func (c Config) validateConsumer() error {
	if c.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}
	if c.QueueName == "" {
		return fmt.Errorf("rabbitmq consumer needs a queue name")
	}
	return nil
}
