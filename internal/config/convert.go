package config

import (
	"github.com/cuongbtq/image-tasks/internal/cache"
	"github.com/cuongbtq/image-tasks/internal/filestore"
	"github.com/cuongbtq/image-tasks/shared/database"
	"github.com/cuongbtq/image-tasks/shared/rabbitmq"
)

// ClientConfig converts the section into a database client config
func (c *DatabaseConfig) ClientConfig() *database.Config {
	return &database.Config{
		Driver:          c.Driver,
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Database:        c.Database,
		SSLMode:         c.SSLMode,
		Path:            c.Path,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

// BrokerConfig converts the section into the flat broker config used by
// both publishers and consumers
func (c *RabbitMQConfig) BrokerConfig() rabbitmq.Config {
	cfg := rabbitmq.Config{
		Host:               c.Host,
		Port:               c.Port,
		User:               c.User,
		Password:           c.Password,
		VHost:              c.VHost,
		Exchange:           c.Exchange,
		RoutingKey:         c.RoutingKey,
		ReplyTo:            c.ReplyTo,
		PublishRetries:     c.Publish.RetryAttempts,
		PublishRetryDelay:  c.Publish.RetryInterval,
		PublishBackoffMult: c.Publish.BackoffMultiplier,
		QueueName:          c.QueueName,
		MaxPriority:        c.MaxPriority,
		ErrorTimeout:       c.ErrorTimeout,
		RequeueOnFailure:   c.RequeueOnFailure,
		Heartbeat:          c.Connection.Heartbeat,
		ConnectionTimeout:  c.Connection.ConnectionTimeout,
	}

	if dl := c.DeadLetter; dl.Enabled {
		cfg.DeadLetterExchange = dl.Exchange
		cfg.DeadLetterRoutingKey = dl.deadLetterKey()
	}
	return cfg
}

// ClientConfig converts the section into a file service client config
func (c *FileServiceConfig) ClientConfig() filestore.Config {
	return filestore.Config{
		BaseURL:    c.BaseURL,
		Timeout:    c.Timeout,
		UploadPath: c.UploadPath,
	}
}

// CacheConfig converts the section into a task cache config
func (c *RedisConfig) CacheConfig() cache.Config {
	return cache.Config{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		TTL:      c.TTL,
	}
}
