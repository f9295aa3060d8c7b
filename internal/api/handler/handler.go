package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/image-tasks/internal/domain"
)

// TaskService is what the HTTP layer needs from the task service
type TaskService interface {
	CreateTask(ctx context.Context, fileID int64, operation map[string]any) (*domain.Task, error)
	GetTask(ctx context.Context, taskID int64) (*domain.Task, error)
	ListTasks(ctx context.Context) ([]domain.Task, error)
}

// HealthChecker reports whether a backing dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers. Health is
// optional.
type Dependencies struct {
	Logger  *slog.Logger
	Service TaskService
	Health  HealthChecker
}

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	logger  *slog.Logger
	service TaskService
}

// NewTaskHandler creates a new TaskHandler instance
func NewTaskHandler(deps *Dependencies) *TaskHandler {
	return &TaskHandler{
		logger:  deps.Logger,
		service: deps.Service,
	}
}
