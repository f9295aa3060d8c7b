package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cuongbtq/image-tasks/internal/api/dto"
	"github.com/cuongbtq/image-tasks/internal/domain"
	"github.com/gin-gonic/gin"
)

// CreateTask handles POST /api/v1/processing/:file_id
// The body is the operation map, e.g. {"scale": 50} or {"rotate": 90}.
func (h *TaskHandler) CreateTask(c *gin.Context) {
	ctx := c.Request.Context()

	fileID, err := strconv.ParseInt(c.Param("file_id"), 10, 64)
	if err != nil {
		h.logger.WarnContext(ctx, "Invalid file_id", slog.String("file_id", c.Param("file_id")))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "file_id must be an integer", Field: "file_id"})
		return
	}

	var operation map[string]any
	if err := c.ShouldBindJSON(&operation); err != nil {
		h.logger.WarnContext(ctx, "Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	task, err := h.service.CreateTask(ctx, fileID, operation)
	if err != nil {
		h.writeError(c, "Failed to create task", err)
		return
	}

	c.JSON(http.StatusCreated, dto.FromTask(task))
}

// GetTask handles GET /api/v1/tasks/:task_id
func (h *TaskHandler) GetTask(c *gin.Context) {
	ctx := c.Request.Context()

	taskID, err := strconv.ParseInt(c.Param("task_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "task_id must be an integer", Field: "task_id"})
		return
	}

	task, err := h.service.GetTask(ctx, taskID)
	if err != nil {
		h.writeError(c, "Failed to get task", err)
		return
	}

	c.JSON(http.StatusOK, dto.FromTask(task))
}

// ListTasks handles GET /api/v1/tasks
// Returns every task, newest first.
func (h *TaskHandler) ListTasks(c *gin.Context) {
	tasks, err := h.service.ListTasks(c.Request.Context())
	if err != nil {
		h.writeError(c, "Failed to list tasks", err)
		return
	}

	resp := dto.ListTasksResponse{Tasks: make([]dto.TaskDTO, len(tasks))}
	for i := range tasks {
		resp.Tasks[i] = dto.FromTask(&tasks[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *TaskHandler) writeError(c *gin.Context, msg string, err error) {
	ctx := c.Request.Context()

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: verr.Message, Field: verr.Field})
	case errors.Is(err, domain.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "task not found"})
	case errors.Is(err, domain.ErrDispatchFailed):
		h.logger.ErrorContext(ctx, msg, slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "task could not be dispatched, try again later"})
	default:
		h.logger.ErrorContext(ctx, msg, slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: msg})
	}
}
