// Package tasks creates image tasks and dispatches them to workers.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/image-tasks/internal/cache"
	"github.com/cuongbtq/image-tasks/internal/domain"
	"github.com/cuongbtq/image-tasks/shared/correlation"
	"github.com/cuongbtq/image-tasks/shared/logger"
	"github.com/cuongbtq/image-tasks/shared/rabbitmq"
)

// Store is the subset of the task store used on the producer side.
type Store interface {
	Create(ctx context.Context, task *domain.Task) error
	Delete(ctx context.Context, taskID int64) error
	Get(ctx context.Context, taskID int64) (*domain.Task, error)
	ListAll(ctx context.Context) ([]domain.Task, error)
}

// Publisher sends dispatch messages. It reports failure instead of
// returning an error.
type Publisher interface {
	Publish(ctx context.Context, message any, target, exchange string) bool
}

// FileLookup checks that a source file exists.
type FileLookup interface {
	Lookup(ctx context.Context, fileID int64) (*domain.FileInfo, error)
}

// Cache is an optional read-through cache for single task lookups.
type Cache interface {
	Get(ctx context.Context, taskID int64) (*domain.Task, error)
	Set(ctx context.Context, task *domain.Task) error
	Add(ctx context.Context, task *domain.Task) (bool, error)
	Delete(ctx context.Context, taskID int64) error
}

// Service implements task creation and queries
type Service struct {
	store     Store
	publisher Publisher
	files     FileLookup
	cache     Cache
	logger    *slog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithCache enables the task cache.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// NewService creates a new Service
func NewService(store Store, publisher Publisher, files FileLookup, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		publisher: publisher,
		files:     files,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTask validates the request, persists the task and dispatches it.
// A missing source file still produces a row, in ERROR, that is never
// dispatched. If dispatch fails the row is removed and ErrDispatchFailed
// is returned.
func (s *Service) CreateTask(ctx context.Context, fileID int64, operation map[string]any) (*domain.Task, error) {
	if fileID <= 0 {
		return nil, domain.NewValidationError("file_id", "must be a positive integer")
	}

	taskType, parameter, err := ParseOperation(operation)
	if err != nil {
		return nil, err
	}

	status := domain.TaskStatusNew
	if _, err := s.files.Lookup(ctx, fileID); err != nil {
		if !errors.Is(err, domain.ErrFileNotFound) {
			return nil, fmt.Errorf("failed to look up file %d: %w", fileID, err)
		}
		s.logger.WarnContext(ctx, "Source file not found, task recorded as failed",
			slog.Int64("file_id", fileID),
		)
		status = domain.TaskStatusError
	}

	task := &domain.Task{
		FileID:    fileID,
		TaskType:  taskType,
		Parameter: parameter,
		Status:    status,
		TraceID:   correlation.ID(ctx),
	}
	if err := s.store.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.InfoContext(ctx, "Task created",
		slog.Int64("task_id", task.ID),
		slog.Int64("file_id", fileID),
		slog.String("task_type", string(taskType)),
		slog.Int("parameter", parameter),
		slog.String("status", string(status)),
	)

	s.cacheTask(ctx, task)

	if status != domain.TaskStatusNew {
		return task, nil
	}

	msg := rabbitmq.NewEnvelope(ctx, domain.TaskRef{TaskID: task.ID})
	if s.publisher.Publish(ctx, msg, "", "") {
		return task, nil
	}

	s.logger.ErrorContext(ctx, "Failed to dispatch task, rolling back",
		slog.Int64("task_id", task.ID),
	)
	if err := s.store.Delete(ctx, task.ID); err != nil {
		logger.Critical(ctx, s.logger, "Failed to roll back undispatched task",
			slog.Int64("task_id", task.ID),
			slog.String("error", err.Error()),
		)
		return nil, domain.ErrDispatchFailed
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, task.ID); err != nil {
			s.logger.WarnContext(ctx, "Task cache delete failed",
				slog.Int64("task_id", task.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil, domain.ErrDispatchFailed
}

// GetTask returns one task, served from the cache when possible.
func (s *Service) GetTask(ctx context.Context, taskID int64) (*domain.Task, error) {
	if s.cache != nil {
		task, err := s.cache.Get(ctx, taskID)
		if err == nil {
			return task, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.WarnContext(ctx, "Task cache read failed",
				slog.Int64("task_id", taskID),
				slog.String("error", err.Error()),
			)
		}
	}

	task, err := s.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	// the worker may have cached a newer row since the store read
	if s.cache != nil {
		if _, err := s.cache.Add(ctx, task); err != nil {
			s.logger.WarnContext(ctx, "Task cache write failed",
				slog.Int64("task_id", task.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return task, nil
}

// ListTasks returns every task, newest first.
func (s *Service) ListTasks(ctx context.Context) ([]domain.Task, error) {
	return s.store.ListAll(ctx)
}

func (s *Service) cacheTask(ctx context.Context, task *domain.Task) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, task); err != nil {
		s.logger.WarnContext(ctx, "Task cache write failed",
			slog.Int64("task_id", task.ID),
			slog.String("error", err.Error()),
		)
	}
}
