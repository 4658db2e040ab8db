package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"sensorpipe/internal/model"
)

// ReadingStore is the append-only time-series store.
type ReadingStore struct {
	db    *sql.DB
	stats *InsertStats
}

func NewReadingStore(db *sql.DB, stats *InsertStats) *ReadingStore {
	return &ReadingStore{db: db, stats: stats}
}

// InsertReadings appends readings in one multi-row insert and returns how many were written.
func (s *ReadingStore) InsertReadings(ctx context.Context, readings []model.Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(readingsTable)
	b.WriteString(" (sensor_id, ts, value, status) VALUES ")

	args := make([]any, 0, len(readings)*4)
	for i, r := range readings {
		if !r.Status.Valid() {
			return 0, &PersistenceError{Op: "insert readings", Err: fmt.Errorf("reading %d: invalid status %q", i, r.Status)}
		}
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d)", len(args)+1, len(args)+2, len(args)+3, len(args)+4)

		var value any
		if r.Value != nil {
			value = *r.Value
		}
		args = append(args, r.SensorID, r.Timestamp, value, string(r.Status))
	}

	res, err := s.db.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, &PersistenceError{Op: "insert readings", Err: err}
	}

	n := len(readings)
	if affected, err := res.RowsAffected(); err == nil {
		n = int(affected)
	}
	s.stats.AddReadings(n)
	return n, nil
}

// LatestPerSensor returns the newest reading of every sensor ever seen, ordered by sensor_id.
// On equal timestamps the most recently inserted row wins.
func (s *ReadingStore) LatestPerSensor(ctx context.Context) ([]model.Reading, error) {
	const query = `SELECT DISTINCT ON (sensor_id) sensor_id, ts, value, status FROM ` + readingsTable +
		` ORDER BY sensor_id, ts DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query latest readings: %w", err)
	}
	return scanReadings(rows)
}

// RangeQuery selects readings with Start <= ts <= End. Nil bounds are open; empty Sensors is unfiltered.
// A positive Limit keeps only the newest Limit matches.
type RangeQuery struct {
	Start   *time.Time
	End     *time.Time
	Sensors []string
	Limit   int
}

// Range returns matching readings ascending by timestamp, insertion order breaking ties.
func (s *ReadingStore) Range(ctx context.Context, q RangeQuery) ([]model.Reading, error) {
	var (
		b     strings.Builder
		conds []string
		args  []any
	)
	if q.Start != nil {
		args = append(args, *q.Start)
		conds = append(conds, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if q.End != nil {
		args = append(args, *q.End)
		conds = append(conds, fmt.Sprintf("ts <= $%d", len(args)))
	}
	if len(q.Sensors) > 0 {
		placeholders := make([]string, len(q.Sensors))
		for i, id := range q.Sensors {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conds = append(conds, "sensor_id IN ("+strings.Join(placeholders, ",")+")")
	}

	b.WriteString("SELECT sensor_id, ts, value, status FROM ")
	if q.Limit > 0 {
		b.WriteString("(SELECT id, sensor_id, ts, value, status FROM ")
	}
	b.WriteString(readingsTable)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " ORDER BY ts DESC, id DESC LIMIT $%d) AS newest", len(args))
	}
	b.WriteString(" ORDER BY ts ASC, id ASC")

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query readings range: %w", err)
	}
	return scanReadings(rows)
}

func scanReadings(rows *sql.Rows) ([]model.Reading, error) {
	defer rows.Close()

	readings := []model.Reading{}
	for rows.Next() {
		var (
			r      model.Reading
			value  sql.NullFloat64
			status string
		)
		if err := rows.Scan(&r.SensorID, &r.Timestamp, &value, &status); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		if value.Valid {
			r.Value = model.Float(value.Float64)
		}
		r.Status = model.Status(status)
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return readings, nil
}
