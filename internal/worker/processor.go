package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/cuongbtq/image-tasks/internal/domain"
	"github.com/cuongbtq/image-tasks/shared/logger"
	"github.com/cuongbtq/image-tasks/shared/rabbitmq"
)

// HandleMessage processes one dispatch message. A nil return acks the
// message: that covers tasks that are already finished or unknown and tasks
// that ended in ERROR. An error is returned only when the task was not
// brought to a terminal status and may be claimed again.
func (w *Worker) HandleMessage(ctx context.Context, msg rabbitmq.Envelope[domain.TaskRef]) error {
	taskID := msg.Payload.TaskID

	task, err := w.store.Claim(ctx, taskID)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to claim task",
			slog.Int64("task_id", taskID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to claim task %d: %w", taskID, err)
	}
	if task == nil {
		w.logger.InfoContext(ctx, "Task not found",
			slog.Int64("task_id", taskID),
		)
		return nil
	}

	w.logger.InfoContext(ctx, "Processing task",
		slog.Int64("task_id", task.ID),
		slog.String("task_type", string(task.TaskType)),
		slog.Int("parameter", task.Parameter),
	)
	w.cacheTask(ctx, task)

	fileID, err := w.process(ctx, task)
	if err != nil {
		w.logger.ErrorContext(ctx, "Task processing failed",
			slog.Int64("task_id", task.ID),
			slog.String("error", err.Error()),
		)
		return w.finalize(ctx, task.ID, domain.TaskStatusError, 0)
	}

	return w.finalize(ctx, task.ID, domain.TaskStatusDone, fileID)
}

// process downloads the source file, transforms it and uploads the result.
// The result is staged under a per-task scratch directory that is always
// removed.
func (w *Worker) process(ctx context.Context, task *domain.Task) (fileID int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processing panic: %v\n%s", r, debug.Stack())
		}
	}()

	info, err := w.files.Lookup(ctx, task.FileID)
	if err != nil {
		return 0, fmt.Errorf("failed to look up file %d: %w", task.FileID, err)
	}

	dir, err := os.MkdirTemp(w.scratchDir, "task-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	src, err := w.files.Download(ctx, info.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to download file %d: %w", info.ID, err)
	}

	out, err := w.transform(src, info.Extension, task.TaskType, task.Parameter)
	if err != nil {
		return 0, fmt.Errorf("failed to transform image: %w", err)
	}

	name := fmt.Sprintf("%s_%d%s", info.Name, task.ID, info.Extension)
	outPath := filepath.Join(dir, name)
	if err := os.WriteFile(outPath, out, 0o600); err != nil {
		return 0, fmt.Errorf("failed to write result file: %w", err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open result file: %w", err)
	}
	defer f.Close()

	fileID, err = w.files.Upload(ctx, name, f)
	if err != nil {
		return 0, fmt.Errorf("failed to upload result: %w", err)
	}

	w.logger.InfoContext(ctx, "Result uploaded",
		slog.Int64("task_id", task.ID),
		slog.Int64("processed_file_id", fileID),
		slog.String("name", name),
	)
	return fileID, nil
}

// finalize records the terminal status. A failed DONE write falls back to
// ERROR; if that fails too the task stays PROCESSING and the message is
// nacked so the task can be claimed again.
func (w *Worker) finalize(ctx context.Context, taskID int64, status domain.TaskStatus, fileID int64) error {
	task, err := w.store.Finish(ctx, taskID, status, fileID)
	if errors.Is(err, domain.ErrInvalidTransition) {
		w.logger.WarnContext(ctx, "Task already finished elsewhere",
			slog.Int64("task_id", taskID),
			slog.String("error", err.Error()),
		)
		w.evictTask(ctx, taskID)
		return nil
	}
	if err != nil && status == domain.TaskStatusDone {
		w.logger.ErrorContext(ctx, "Failed to mark task done, marking as failed",
			slog.Int64("task_id", taskID),
			slog.Int64("processed_file_id", fileID),
			slog.String("error", err.Error()),
		)
		status = domain.TaskStatusError
		task, err = w.store.Finish(ctx, taskID, status, 0)
	}
	if err != nil {
		logger.Critical(ctx, w.logger, "Failed to finalize task, left in PROCESSING",
			slog.Int64("task_id", taskID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to finalize task %d: %w", taskID, err)
	}
	if task == nil {
		w.logger.WarnContext(ctx, "Task vanished before finalize",
			slog.Int64("task_id", taskID),
		)
		w.evictTask(ctx, taskID)
		return nil
	}

	w.logger.InfoContext(ctx, "Task completed",
		slog.Int64("task_id", taskID),
		slog.String("status", string(task.Status)),
		slog.Int64("processed_file_id", task.ProcessedFileID),
	)
	w.cacheTask(ctx, task)
	return nil
}

func (w *Worker) cacheTask(ctx context.Context, task *domain.Task) {
	if w.cache == nil {
		return
	}
	if err := w.cache.Set(ctx, task); err != nil {
		w.logger.WarnContext(ctx, "Task cache write failed",
			slog.Int64("task_id", task.ID),
			slog.String("error", err.Error()),
		)
	}
}

// evictTask drops the cached row when this worker no longer knows the
// current one.
func (w *Worker) evictTask(ctx context.Context, taskID int64) {
	if w.cache == nil {
		return
	}
	if err := w.cache.Delete(ctx, taskID); err != nil {
		w.logger.WarnContext(ctx, "Task cache delete failed",
			slog.Int64("task_id", taskID),
			slog.String("error", err.Error()),
		)
	}
}
