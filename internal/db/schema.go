package db

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	readingsTable  = "sensor_readings"
	errorLogsTable = "error_logs"
)

// schemaStatements are idempotent. The (ts, sensor_id) index serves the range
// query the dashboard issues on every load.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sensor_readings (
		id BIGSERIAL PRIMARY KEY,
		sensor_id TEXT NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		value DOUBLE PRECISION,
		status TEXT NOT NULL CHECK (status IN ('online', 'offline'))
	)`,
	`CREATE INDEX IF NOT EXISTS sensor_readings_ts_sensor_idx ON sensor_readings (ts, sensor_id)`,
	`CREATE INDEX IF NOT EXISTS sensor_readings_latest_idx ON sensor_readings (sensor_id, ts DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS error_logs (
		id BIGSERIAL PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL,
		source TEXT NOT NULL,
		message TEXT NOT NULL,
		details JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS error_logs_ts_desc_idx ON error_logs (ts DESC)`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// PersistenceError reports a failed write of readings or error log entries.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
