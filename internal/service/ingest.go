package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sensorpipe/internal/metrics"
	"sensorpipe/internal/model"
	"sensorpipe/internal/source"
)

// ErrBusy is returned when a cycle is requested while another is running.
var ErrBusy = errors.New("ingestion cycle already in progress")

// PipelineSource is the error log source for failures outside any adapter.
const PipelineSource = "ingest"

type ReadingWriter interface {
	InsertReadings(ctx context.Context, readings []model.Reading) (int, error)
}

type ErrorLogWriter interface {
	Append(ctx context.Context, entry model.ErrorLogEntry) error
}

// CycleResult summarizes one ingestion cycle.
type CycleResult struct {
	CycleID        string
	PersistedCount int
	// Failed lists the fail-closed sources that contributed nothing.
	Failed []string
	// Offline lists the fail-open sources that were replaced by offline readings.
	Offline []string
}

// Reconciler runs every registered adapter once per cycle and persists the union of their output.
type Reconciler struct {
	registry *source.Registry
	readings ReadingWriter
	errorLog ErrorLogWriter
	metrics  *metrics.Ingest
	logger   *zap.SugaredLogger
	timeout  time.Duration
	now      func() time.Time

	running atomic.Bool
}

func NewReconciler(registry *source.Registry, readings ReadingWriter, errorLog ErrorLogWriter, m *metrics.Ingest, logger *zap.SugaredLogger, timeout time.Duration) *Reconciler {
	return &Reconciler{
		registry: registry,
		readings: readings,
		errorLog: errorLog,
		metrics:  m,
		logger:   logger,
		timeout:  timeout,
		now:      time.Now,
	}
}

// WithClock overrides the clock used for fallback readings and error log timestamps.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// RunCycle polls all adapters concurrently and persists the resulting batch.
// Adapter failures never fail the cycle; only a failed batch insert does.
func (r *Reconciler) RunCycle(ctx context.Context) (CycleResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		r.metrics.Busy()
		return CycleResult{}, ErrBusy
	}
	defer r.running.Store(false)

	start := time.Now()
	res := CycleResult{CycleID: uuid.NewString()}
	log := r.logger.With("cycle_id", res.CycleID)
	defer func() { r.metrics.ObserveCycle(time.Since(start)) }()

	adapters := r.registry.Adapters()
	outcomes := make([]source.Outcome, len(adapters))

	var wg sync.WaitGroup
	for i, a := range adapters {
		wg.Add(1)
		go func(i int, a source.Adapter) {
			defer wg.Done()
			outcomes[i] = source.Run(ctx, a, r.timeout, r.now)
		}(i, a)
	}
	wg.Wait()

	var batch model.Batch
	for _, out := range outcomes {
		r.metrics.ObservePoll(out.Source, out.Elapsed)

		switch {
		case out.Err != nil:
			r.metrics.AdapterFailed(out.Source)
			res.Failed = append(res.Failed, out.Source)
			log.Errorw("adapter failed", "source", out.Source, "error", out.Err, "elapsed", out.Elapsed)
			r.logFailure(ctx, log, out.Source, out.Err, res.CycleID)
			continue
		case out.Absorbed != nil:
			r.metrics.AdapterFailed(out.Source)
			r.metrics.OfflineEmitted(out.Source, len(out.Readings))
			res.Offline = append(res.Offline, out.Source)
			log.Warnw("adapter unavailable, recording offline", "source", out.Source, "error", out.Absorbed)
		default:
			log.Debugw("adapter polled", "source", out.Source, "readings", len(out.Readings), "elapsed", out.Elapsed)
		}
		batch = append(batch, out.Readings...)
	}

	if len(batch) == 0 {
		log.Infow("ingestion cycle finished", "persisted", 0, "failed", res.Failed)
		return res, nil
	}

	n, err := r.readings.InsertReadings(ctx, batch)
	if err != nil {
		log.Errorw("failed to persist batch", "error", err, "readings", len(batch), "sensors", batch.SensorIDs())
		r.logFailure(ctx, log, PipelineSource, err, res.CycleID)
		return res, err
	}
	res.PersistedCount = n
	r.metrics.Persisted(n)

	log.Infow("ingestion cycle finished", "persisted", n, "failed", res.Failed, "offline", res.Offline, "elapsed", time.Since(start))
	return res, nil
}

// logFailure writes an error log entry. The sink may itself be down, so its
// failure only reaches process output.
func (r *Reconciler) logFailure(ctx context.Context, log *zap.SugaredLogger, src string, cause error, cycleID string) {
	details := map[string]any{"cycle_id": cycleID}
	var upErr *source.UpstreamError
	if errors.As(cause, &upErr) {
		details["op"] = upErr.Op
	}

	entry := model.ErrorLogEntry{
		Timestamp: r.now(),
		Source:    src,
		Message:   cause.Error(),
		Details:   details,
	}
	if err := r.errorLog.Append(context.WithoutCancel(ctx), entry); err != nil {
		log.Errorw("failed to write error log entry", "error", err, "source", src, "message", entry.Message)
		return
	}
	r.metrics.ErrorLogged()
}
