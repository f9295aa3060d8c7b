package dto

import (
	"time"

	"github.com/cuongbtq/image-tasks/internal/domain"
)

type TaskDTO struct {
	TaskID          int64  `json:"task_id"`
	FileID          int64  `json:"file_id"`
	TaskType        string `json:"task_type"`
	Parameter       int    `json:"parameter"`
	Status          string `json:"status"`
	ProcessedFileID int64  `json:"processed_file_id"`
	TraceID         string `json:"trace_id"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

type ListTasksResponse struct {
	Tasks []TaskDTO `json:"tasks"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// FromTask converts a domain task to its API representation
func FromTask(t *domain.Task) TaskDTO {
	return TaskDTO{
		TaskID:          t.ID,
		FileID:          t.FileID,
		TaskType:        string(t.TaskType),
		Parameter:       t.Parameter,
		Status:          string(t.Status),
		ProcessedFileID: t.ProcessedFileID,
		TraceID:         t.TraceID,
		CreatedAt:       t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       t.UpdatedAt.Format(time.RFC3339),
	}
}
