// Package cache keeps a short-lived copy of task rows in Redis so status
// polling does not hit the database. The database stays authoritative.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/image-tasks/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "task:"
	defaultTTL = 10 * time.Minute
)

// ErrMiss is returned when the task is not cached.
var ErrMiss = errors.New("cache miss")

// Config holds Redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// TaskCache stores tasks as JSON under task:<id>.
type TaskCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*TaskCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &TaskCache{client: client, ttl: ttl}, nil
}

func key(taskID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, taskID)
}

// Get returns the cached task or ErrMiss.
func (c *TaskCache) Get(ctx context.Context, taskID int64) (*domain.Task, error) {
	data, err := c.client.Get(ctx, key(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached task: %w", err)
	}

	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to decode cached task: %w", err)
	}
	return &task, nil
}

// Set caches task for the configured TTL.
func (c *TaskCache) Set(ctx context.Context, task *domain.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	return c.client.Set(ctx, key(task.ID), data, c.ttl).Err()
}

// Add caches task only when no entry exists and reports whether it was
// stored. Readers filling the cache from the database use it so they never
// replace a newer row written by the worker.
func (c *TaskCache) Add(ctx context.Context, task *domain.Task) (bool, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return false, fmt.Errorf("failed to encode task: %w", err)
	}
	return c.client.SetNX(ctx, key(task.ID), data, c.ttl).Result()
}

// Delete drops the cached task.
func (c *TaskCache) Delete(ctx context.Context, taskID int64) error {
	return c.client.Del(ctx, key(taskID)).Err()
}

// Close closes the Redis client.
func (c *TaskCache) Close() error {
	return c.client.Close()
}
