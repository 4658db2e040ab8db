package model

import (
	"fmt"
	"time"
)

// Status reports whether the upstream device was reachable in a cycle.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusOnline || s == StatusOffline
}

// Reading is the canonical unit of sensor data.
// A nil Value means no measurement was obtained in the cycle; it is not zero.
type Reading struct {
	SensorID  string    `json:"sensor_id"`
	Timestamp time.Time `json:"timestamp"`
	Value     *float64  `json:"value"`
	Status    Status    `json:"status"`
}

// HasValue reports whether a measurement is present.
func (r Reading) HasValue() bool { return r.Value != nil }

// FormatValue renders the value for display, e.g. "21.5°C", or "—" when absent.
func (r Reading) FormatValue() string {
	if r.Value == nil {
		return "—"
	}
	return fmt.Sprintf("%.1f°C", *r.Value)
}

// Float returns a pointer to v, for building Readings.
func Float(v float64) *float64 { return &v }

// Offline builds a Reading with no value and offline status.
func Offline(sensorID string, at time.Time) Reading {
	return Reading{SensorID: sensorID, Timestamp: at, Status: StatusOffline}
}

// ErrorLogEntry is an append-only record of an adapter or pipeline failure.
type ErrorLogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// Batch is the set of Readings produced by one ingestion cycle. It is never persisted as a unit.
type Batch []Reading

// SensorIDs returns the distinct sensor IDs in the batch, in first-seen order.
func (b Batch) SensorIDs() []string {
	seen := make(map[string]bool, len(b))
	var out []string
	for _, r := range b {
		if !seen[r.SensorID] {
			seen[r.SensorID] = true
			out = append(out, r.SensorID)
		}
	}
	return out
}
