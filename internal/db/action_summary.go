package db

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// InsertStats keeps track of insert counts. A nil *InsertStats ignores updates.
type InsertStats struct {
	sync.Mutex
	ReadingCount  int
	ErrorLogCount int
}

func NewInsertStats() *InsertStats {
	return &InsertStats{}
}

// StartSummaryLogger logs the counters every interval until ctx is done.
func (s *InsertStats) StartSummaryLogger(ctx context.Context, interval time.Duration, logger *zap.SugaredLogger) {
	if s == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				readings, errorLogs := s.Snapshot()
				logger.Infow("insert summary", "readings", readings, "error_logs", errorLogs)
			}
		}
	}()
}

// AddReadings increments the persisted readings counter.
func (s *InsertStats) AddReadings(n int) {
	if s == nil {
		return
	}
	s.Lock()
	s.ReadingCount += n
	s.Unlock()
}

// AddErrorLogs increments the error log counter.
func (s *InsertStats) AddErrorLogs(n int) {
	if s == nil {
		return
	}
	s.Lock()
	s.ErrorLogCount += n
	s.Unlock()
}

// Snapshot returns the current counters.
func (s *InsertStats) Snapshot() (readings, errorLogs int) {
	if s == nil {
		return 0, 0
	}
	s.Lock()
	defer s.Unlock()
	return s.ReadingCount, s.ErrorLogCount
}
