package db

import (
	"context"
	"database/sql"
	"fmt"

	"sensorpipe/internal/model"
)

// ErrorLogStore is the durable sink for adapter and pipeline failures.
type ErrorLogStore struct {
	db    *sql.DB
	stats *InsertStats
}

func NewErrorLogStore(db *sql.DB, stats *InsertStats) *ErrorLogStore {
	return &ErrorLogStore{db: db, stats: stats}
}

// Append writes one entry.
func (s *ErrorLogStore) Append(ctx context.Context, entry model.ErrorLogEntry) error {
	raw, err := model.MarshalDetails(entry.Details)
	if err != nil {
		return &PersistenceError{Op: "append error log", Err: fmt.Errorf("marshal details: %w", err)}
	}

	var details any
	if raw != nil {
		details = string(raw)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+errorLogsTable+` (ts, source, message, details) VALUES ($1,$2,$3,$4)`,
		entry.Timestamp, entry.Source, entry.Message, details,
	)
	if err != nil {
		return &PersistenceError{Op: "append error log", Err: err}
	}
	s.stats.AddErrorLogs(1)
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *ErrorLogStore) Recent(ctx context.Context, limit int) ([]model.ErrorLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, source, message, details FROM `+errorLogsTable+` ORDER BY ts DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query error logs: %w", err)
	}
	defer rows.Close()

	entries := []model.ErrorLogEntry{}
	for rows.Next() {
		var (
			e   model.ErrorLogEntry
			raw []byte
		)
		if err := rows.Scan(&e.Timestamp, &e.Source, &e.Message, &raw); err != nil {
			return nil, fmt.Errorf("scan error log: %w", err)
		}
		if e.Details, err = model.UnmarshalDetails(raw); err != nil {
			return nil, fmt.Errorf("decode error log details: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate error logs: %w", err)
	}
	return entries, nil
}
