package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	RabbitMQ    RabbitMQConfig    `yaml:"rabbitmq"`
	FileService FileServiceConfig `yaml:"file_service"`
	Redis       RedisConfig       `yaml:"redis"`
	Logging     LoggingConfig     `yaml:"logging"`
	App         AppConfig         `yaml:"app"`
	Worker      WorkerConfig      `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration. Driver is one of
// postgres (default), mysql or sqlite3; sqlite3 only needs Path.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	Path            string        `yaml:"path"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig is the single broker section shared by the publishing API
// service and the consuming worker service.
type RabbitMQConfig struct {
	Host             string           `yaml:"host"`
	Port             int              `yaml:"port"`
	User             string           `yaml:"user"`
	Password         string           `yaml:"password"`
	VHost            string           `yaml:"vhost"`
	Exchange         string           `yaml:"exchange"`
	RoutingKey       string           `yaml:"routing_key"`
	ReplyTo          string           `yaml:"reply_to"`
	QueueName        string           `yaml:"queue_name"`
	MaxPriority      int              `yaml:"max_priority"`
	ErrorTimeout     time.Duration    `yaml:"error_timeout"`
	RequeueOnFailure bool             `yaml:"requeue_on_failure"`
	Connection       ConnectionConfig `yaml:"connection"`
	Publish          PublishConfig    `yaml:"publish"`
	DeadLetter       DeadLetterConfig `yaml:"dead_letter"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// DeadLetterConfig describes the queue failed deliveries are parked in.
// Parked messages return to the work queue after MessageTTL seconds.
// RoutingKey defaults to QueueName.
type DeadLetterConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
	MessageTTL int    `yaml:"message_ttl"`
}

func (d DeadLetterConfig) deadLetterKey() string {
	if d.RoutingKey != "" {
		return d.RoutingKey
	}
	return d.QueueName
}

// FileServiceConfig locates the remote file storage service
type FileServiceConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	UploadPath string        `yaml:"upload_path"`
}

// RedisConfig configures the optional task cache
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	ID              string        `yaml:"id"`
	Concurrency     int           `yaml:"concurrency"`
	ScratchDir      string        `yaml:"scratch_dir"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if err := validatePort("server", c.Server.Port); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateBroker(); err != nil {
		return err
	}

	if c.RabbitMQ.RoutingKey == "" {
		return fmt.Errorf("rabbitmq routing_key is required")
	}

	if c.RabbitMQ.Publish.RetryAttempts < 0 {
		return fmt.Errorf("rabbitmq publish retry_attempts must not be negative")
	}

	if c.FileService.BaseURL == "" {
		return fmt.Errorf("file_service base_url is required")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateBroker(); err != nil {
		return err
	}

	if c.RabbitMQ.QueueName == "" {
		return fmt.Errorf("rabbitmq queue_name is required")
	}

	if dl := c.RabbitMQ.DeadLetter; dl.Enabled {
		if dl.QueueName == "" {
			return fmt.Errorf("rabbitmq dead_letter queue_name is required when enabled")
		}
		if dl.MessageTTL <= 0 {
			return fmt.Errorf("rabbitmq dead_letter message_ttl must be greater than 0")
		}
		if c.RabbitMQ.RequeueOnFailure {
			return fmt.Errorf("rabbitmq requeue_on_failure must be false when dead_letter is enabled")
		}
	}

	if c.FileService.BaseURL == "" {
		return fmt.Errorf("file_service base_url is required")
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite3")
		}
		return nil
	case "", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if err := validatePort("database", c.Database.Port); err != nil {
		return err
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateBroker() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	return validatePort("rabbitmq", c.RabbitMQ.Port)
}

func validatePort(name string, port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("invalid %s port: %d (must be between %d and %d)", name, port, MinPort, MaxPort)
	}
	return nil
}
