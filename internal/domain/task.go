package domain

import (
	"errors"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Task statuses. DONE and ERROR are terminal.
const (
	TaskStatusNew        TaskStatus = "NEW"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusDone       TaskStatus = "DONE"
	TaskStatusError      TaskStatus = "ERROR"
)

// IsTerminal reports whether no further transition is allowed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusError
}

// TaskType is the requested image operation.
type TaskType string

const (
	TaskTypeScale  TaskType = "SCALE"
	TaskTypeRotate TaskType = "ROTATE"
)

// Task is one persisted image processing request.
type Task struct {
	ID              int64      `db:"id" json:"task_id"`
	FileID          int64      `db:"file_id" json:"file_id"`
	TaskType        TaskType   `db:"task_type" json:"task_type"`
	Parameter       int        `db:"parameter" json:"parameter"`
	Status          TaskStatus `db:"status" json:"status"`
	ProcessedFileID int64      `db:"processed_file_id" json:"processed_file_id"`
	TraceID         string     `db:"trace_id" json:"trace_id"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// TaskRef is the dispatch message payload. Workers re-read everything else
// from the store.
type TaskRef struct {
	TaskID int64 `json:"task_id"`
}

// Validate rejects references that can never match a row.
func (r TaskRef) Validate() error {
	if r.TaskID <= 0 {
		return errors.New("task_id must be a positive integer")
	}
	return nil
}

// FileInfo describes a file known to the file service.
type FileInfo struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Extension string `json:"extension"`
}
