package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Ingest holds the collectors updated by ingestion cycles. A nil *Ingest is a no-op.
type Ingest struct {
	persisted     prometheus.Counter
	adapterErrors *prometheus.CounterVec
	offline       *prometheus.CounterVec
	errorLogs     prometheus.Counter
	busy          prometheus.Counter
	cycleSeconds  prometheus.Histogram
	adapterSecs   *prometheus.HistogramVec
}

// NewIngest creates the collectors and registers them on reg.
func NewIngest(reg prometheus.Registerer) *Ingest {
	m := &Ingest{
		persisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorpipe_readings_persisted_total",
			Help: "Readings written to the time-series store.",
		}),
		adapterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorpipe_adapter_failures_total",
			Help: "Failed polls per source, including ones replaced by offline readings.",
		}, []string{"source"}),
		offline: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorpipe_offline_readings_total",
			Help: "Synthetic offline readings emitted for failed fail-open sources.",
		}, []string{"source"}),
		errorLogs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorpipe_error_logs_total",
			Help: "Entries appended to the error log.",
		}),
		busy: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorpipe_cycles_rejected_busy_total",
			Help: "Ingestion triggers rejected because a cycle was already running.",
		}),
		cycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sensorpipe_cycle_duration_seconds",
			Help:    "Wall time of one ingestion cycle.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		adapterSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sensorpipe_adapter_poll_seconds",
			Help:    "Poll latency per source.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"source"}),
	}
	if reg != nil {
		reg.MustRegister(m.persisted, m.adapterErrors, m.offline, m.errorLogs, m.busy, m.cycleSeconds, m.adapterSecs)
	}
	return m
}

func (m *Ingest) Persisted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.persisted.Add(float64(n))
}

func (m *Ingest) AdapterFailed(source string) {
	if m == nil {
		return
	}
	m.adapterErrors.WithLabelValues(source).Inc()
}

func (m *Ingest) OfflineEmitted(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.offline.WithLabelValues(source).Add(float64(n))
}

func (m *Ingest) ErrorLogged() {
	if m == nil {
		return
	}
	m.errorLogs.Inc()
}

func (m *Ingest) Busy() {
	if m == nil {
		return
	}
	m.busy.Inc()
}

func (m *Ingest) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleSeconds.Observe(d.Seconds())
}

func (m *Ingest) ObservePoll(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.adapterSecs.WithLabelValues(source).Observe(d.Seconds())
}

// PersistedCounter exposes the persisted readings counter for assertions.
func (m *Ingest) PersistedCounter() prometheus.Counter { return m.persisted }

// BusyCounter exposes the busy rejection counter for assertions.
func (m *Ingest) BusyCounter() prometheus.Counter { return m.busy }
