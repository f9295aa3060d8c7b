package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/image-tasks/internal/domain"
	"github.com/cuongbtq/image-tasks/shared/database"
	"github.com/jmoiron/sqlx"
)

const taskColumns = `id, file_id, task_type, parameter, status, processed_file_id, trace_id, created_at, updated_at`

// Storage persists tasks. Claim and Finish serialize on the row lock taken
// inside their transaction, so concurrent worker processes never interleave
// on one row.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// forUpdate returns the row lock clause for the driver. SQLite locks the
// whole database for a write transaction and has no FOR UPDATE.
func (s *Storage) forUpdate() string {
	if s.db.DriverName() == database.DriverSQLite {
		return ""
	}
	return " FOR UPDATE"
}

// Create inserts task and fills in its id and timestamps. Only NEW and ERROR
// are accepted as initial statuses.
func (s *Storage) Create(ctx context.Context, task *domain.Task) error {
	if task.Status != domain.TaskStatusNew && task.Status != domain.TaskStatusError {
		return fmt.Errorf("%w: cannot create task in status %s", domain.ErrInvalidTransition, task.Status)
	}

	now := s.now()
	task.CreatedAt = now
	task.UpdatedAt = now

	args := []any{task.FileID, task.TaskType, task.Parameter, task.Status, task.ProcessedFileID, task.TraceID, task.CreatedAt, task.UpdatedAt}
	query := `
		INSERT INTO tasks (file_id, task_type, parameter, status, processed_file_id, trace_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	if s.db.DriverName() == database.DriverPostgres {
		if err := s.db.QueryRowxContext(ctx, s.db.Rebind(query+` RETURNING id`), args...).Scan(&task.ID); err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
	} else {
		res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
		if err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		if task.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read task id: %w", err)
		}
	}

	s.logger.InfoContext(ctx, "Task created",
		slog.Int64("task_id", task.ID),
		slog.Int64("file_id", task.FileID),
		slog.String("status", string(task.Status)),
	)
	return nil
}

// Claim moves a NEW or PROCESSING task to PROCESSING and returns the
// refreshed row. PROCESSING is matched so a task whose previous claim never
// finished can be picked up again. A nil task with a nil error means there
// is nothing to do: the id is unknown or the task is already terminal.
func (s *Storage) Claim(ctx context.Context, taskID int64) (*domain.Task, error) {
	var claimed *domain.Task

	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var task domain.Task
		query := tx.Rebind(`SELECT ` + taskColumns + ` FROM tasks WHERE id = ? AND status IN (?, ?) LIMIT 1` + s.forUpdate())
		err := tx.GetContext(ctx, &task, query, taskID, domain.TaskStatusNew, domain.TaskStatusProcessing)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to select task: %w", err)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`),
			domain.TaskStatusProcessing, s.now(), taskID); err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}

		if err := tx.GetContext(ctx, &task, tx.Rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), taskID); err != nil {
			return fmt.Errorf("failed to reload task: %w", err)
		}
		claimed = &task
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim task %d: %w", taskID, err)
	}

	if claimed != nil {
		s.logger.InfoContext(ctx, "Task claimed",
			slog.Int64("task_id", taskID),
			slog.String("task_type", string(claimed.TaskType)),
		)
	}
	return claimed, nil
}

// Finish moves a PROCESSING task to DONE or ERROR with the produced file id.
// It returns nil when the row no longer exists and ErrInvalidTransition when
// the row is not PROCESSING.
func (s *Storage) Finish(ctx context.Context, taskID int64, status domain.TaskStatus, processedFileID int64) (*domain.Task, error) {
	if !status.IsTerminal() {
		return nil, fmt.Errorf("%w: finish requires DONE or ERROR, got %s", domain.ErrInvalidTransition, status)
	}

	var finished *domain.Task

	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var current domain.TaskStatus
		err := tx.GetContext(ctx, &current, tx.Rebind(`SELECT status FROM tasks WHERE id = ?`+s.forUpdate()), taskID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to lock task: %w", err)
		}
		if current != domain.TaskStatusProcessing {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, status)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE tasks SET status = ?, processed_file_id = ?, updated_at = ? WHERE id = ?`),
			status, processedFileID, s.now(), taskID); err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}

		var task domain.Task
		if err := tx.GetContext(ctx, &task, tx.Rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), taskID); err != nil {
			return fmt.Errorf("failed to reload task: %w", err)
		}
		finished = &task
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finish task %d: %w", taskID, err)
	}

	if finished == nil {
		s.logger.WarnContext(ctx, "Task vanished before finish", slog.Int64("task_id", taskID))
		return nil, nil
	}

	s.logger.InfoContext(ctx, "Task finished",
		slog.Int64("task_id", taskID),
		slog.String("status", string(status)),
		slog.Int64("processed_file_id", processedFileID),
	)
	return finished, nil
}

// Delete removes a task row. Used only to compensate a failed dispatch.
func (s *Storage) Delete(ctx context.Context, taskID int64) error {
	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM tasks WHERE id = ?`), taskID)
		if err != nil {
			return fmt.Errorf("failed to delete task %d: %w", taskID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return domain.ErrTaskNotFound
		}
		return nil
	})
}

// Get returns the task with the given id or ErrTaskNotFound.
func (s *Storage) Get(ctx context.Context, taskID int64) (*domain.Task, error) {
	var task domain.Task
	err := s.db.GetContext(ctx, &task, s.db.Rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// ListAll returns every task, newest first.
func (s *Storage) ListAll(ctx context.Context) ([]domain.Task, error) {
	tasks := []domain.Task{}
	err := s.db.SelectContext(ctx, &tasks, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}
