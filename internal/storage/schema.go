package storage

import (
	"context"
	"fmt"

	"github.com/cuongbtq/image-tasks/shared/database"
	"github.com/jmoiron/sqlx"
)

var schemas = map[string]string{
	database.DriverPostgres: `
	CREATE TABLE IF NOT EXISTS tasks (
		id BIGSERIAL PRIMARY KEY,
		file_id BIGINT NOT NULL,
		task_type VARCHAR(16) NOT NULL,
		parameter INTEGER NOT NULL,
		status VARCHAR(16) NOT NULL,
		processed_file_id BIGINT NOT NULL DEFAULT 0,
		trace_id VARCHAR(64) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	database.DriverMySQL: `
	CREATE TABLE IF NOT EXISTS tasks (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		file_id BIGINT NOT NULL,
		task_type VARCHAR(16) NOT NULL,
		parameter INT NOT NULL,
		status VARCHAR(16) NOT NULL,
		processed_file_id BIGINT NOT NULL DEFAULT 0,
		trace_id VARCHAR(64) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL
	)`,
	database.DriverSQLite: `
	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL,
		task_type TEXT NOT NULL,
		parameter INTEGER NOT NULL,
		status TEXT NOT NULL,
		processed_file_id INTEGER NOT NULL DEFAULT 0,
		trace_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
}

// Migrate creates the tasks table if it does not exist.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	schema, ok := schemas[db.DriverName()]
	if !ok {
		return fmt.Errorf("no schema for driver %q", db.DriverName())
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tasks table: %w", err)
	}
	return nil
}
