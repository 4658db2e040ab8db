package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sensorpipe/internal/config"
	"sensorpipe/internal/db"
	"sensorpipe/internal/metrics"
	"sensorpipe/internal/model"
	"sensorpipe/internal/source"
	"sensorpipe/pkg/narodmon"
	"sensorpipe/pkg/tuya"
)

var cycleNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type memReadings struct {
	mu    sync.Mutex
	rows  []model.Reading
	err   error
	calls int
}

func (m *memReadings) InsertReadings(ctx context.Context, readings []model.Reading) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	m.rows = append(m.rows, readings...)
	return len(readings), nil
}

type memErrorLog struct {
	mu      sync.Mutex
	entries []model.ErrorLogEntry
	err     error
}

func (m *memErrorLog) Append(ctx context.Context, entry model.ErrorLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

type fakeTuya struct {
	status    []tuya.Device
	statusErr error
	values    []tuya.Device
}

func (f *fakeTuya) DeviceOnlineStatus(ctx context.Context, ids []string) ([]tuya.Device, error) {
	return f.status, f.statusErr
}

func (f *fakeTuya) DeviceStatus(ctx context.Context, ids []string) ([]tuya.Device, error) {
	return f.values, nil
}

// hangingNarodmon blocks until the poll context expires.
type hangingNarodmon struct{}

func (hangingNarodmon) SensorsValues(ctx context.Context, ids ...string) ([]narodmon.Sensor, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type okNarodmon struct{}

func (okNarodmon) SensorsValues(ctx context.Context, ids ...string) ([]narodmon.Sensor, error) {
	return []narodmon.Sensor{{ID: 37687, Value: 4.5, Time: cycleNow.Add(-time.Minute).Unix()}}, nil
}

type blockingAdapter struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingAdapter) Name() string                 { return "blocking" }
func (b *blockingAdapter) Policy() source.FailurePolicy { return source.FailClosed }
func (b *blockingAdapter) Poll(ctx context.Context) ([]model.Reading, error) {
	close(b.started)
	<-b.release
	return nil, nil
}

func boolPtr(v bool) *bool { return &v }

func tempStatus(raw string) []tuya.StatusEntry {
	return []tuya.StatusEntry{{Code: "va_temperature", Value: jsoniter.RawMessage(raw)}}
}

func threeDevices() *fakeTuya {
	return &fakeTuya{
		status: []tuya.Device{
			{ID: "d1", IsOnline: boolPtr(true)},
			{ID: "d2", IsOnline: boolPtr(true)},
			{ID: "d3", IsOnline: boolPtr(true)},
		},
		values: []tuya.Device{
			{ID: "d1", Status: tempStatus("215")},
			{ID: "d2", Status: tempStatus("190")},
			{ID: "d3", Status: tempStatus("230")},
		},
	}
}

func newReconciler(t *testing.T, tc source.TuyaAPI, nc source.NarodmonAPI, rw ReadingWriter, el ErrorLogWriter, m *metrics.Ingest) *Reconciler {
	t.Helper()
	names := config.ParseSensorNames("d1:Bedroom,d2:Kitchen,37687:City")
	logger := zap.NewNop().Sugar()
	clock := func() time.Time { return cycleNow }

	registry, err := source.NewRegistry(
		source.NewTuyaAdapter(tc, []string{"d1", "d2", "d3"}, names, logger).WithClock(clock),
		source.NewNarodmonAdapter(nc, "37687", names),
	)
	require.NoError(t, err)
	return NewReconciler(registry, rw, el, m, logger, 50*time.Millisecond).WithClock(clock)
}

func TestRunCycleTuyaOkNarodmonTimeout(t *testing.T) {
	rw, el := &memReadings{}, &memErrorLog{}
	m := metrics.NewIngest(prometheus.NewRegistry())
	r := newReconciler(t, threeDevices(), hangingNarodmon{}, rw, el, m)

	res, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, res.CycleID)
	require.Equal(t, 4, res.PersistedCount)
	require.Empty(t, res.Failed)
	require.Equal(t, []string{source.NarodmonSourceName}, res.Offline)
	require.Empty(t, el.entries)

	bySensor := map[string]model.Reading{}
	for _, r := range rw.rows {
		bySensor[r.SensorID] = r
	}
	require.Len(t, bySensor, 4)
	require.Equal(t, 21.5, *bySensor["Bedroom"].Value)
	require.Equal(t, 19.0, *bySensor["Kitchen"].Value)
	require.Equal(t, 23.0, *bySensor["d3"].Value)
	require.Equal(t, model.Offline("City", cycleNow), bySensor["City"])

	require.Equal(t, float64(4), testutil.ToFloat64(m.PersistedCounter()))
}

func TestRunCycleStatusFailureIsLoggedAndIsolated(t *testing.T) {
	rw, el := &memReadings{}, &memErrorLog{}
	tc := threeDevices()
	tc.statusErr = tuya.ErrNoResult
	r := newReconciler(t, tc, okNarodmon{}, rw, el, nil)

	res, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.PersistedCount)
	require.Equal(t, []string{source.TuyaSourceName}, res.Failed)

	require.Len(t, rw.rows, 1)
	require.Equal(t, "City", rw.rows[0].SensorID)
	require.Equal(t, model.StatusOnline, rw.rows[0].Status)

	require.Len(t, el.entries, 1)
	entry := el.entries[0]
	require.Equal(t, source.TuyaSourceName, entry.Source)
	require.Equal(t, cycleNow, entry.Timestamp)
	require.Equal(t, "status", entry.Details["op"])
	require.Equal(t, res.CycleID, entry.Details["cycle_id"])
	require.Contains(t, entry.Message, tuya.ErrNoResult.Error())
}

func TestRunCyclePersistedEqualsSumOfOutputs(t *testing.T) {
	rw, el := &memReadings{}, &memErrorLog{}
	r := newReconciler(t, threeDevices(), okNarodmon{}, rw, el, nil)

	res, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, res.PersistedCount)
	require.Len(t, rw.rows, 4)
	require.Empty(t, res.Failed)
	require.Empty(t, res.Offline)
}

func TestRunCycleInsertFailureWritesPipelineEntry(t *testing.T) {
	insertErr := &db.PersistenceError{Op: "insert readings", Err: errors.New("connection reset")}
	rw, el := &memReadings{err: insertErr}, &memErrorLog{}
	r := newReconciler(t, threeDevices(), okNarodmon{}, rw, el, nil)

	_, err := r.RunCycle(context.Background())
	var perr *db.PersistenceError
	require.ErrorAs(t, err, &perr)

	require.Len(t, el.entries, 1)
	require.Equal(t, PipelineSource, el.entries[0].Source)
}

func TestRunCycleErrorLogFailureDoesNotFailCycle(t *testing.T) {
	rw, el := &memReadings{}, &memErrorLog{err: errors.New("sink down")}
	tc := threeDevices()
	tc.statusErr = errors.New("dial tcp: refused")
	r := newReconciler(t, tc, okNarodmon{}, rw, el, nil)

	res, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.PersistedCount)
}

func TestRunCycleEmptyBatchSkipsInsert(t *testing.T) {
	rw, el := &memReadings{}, &memErrorLog{}
	tc := &fakeTuya{statusErr: errors.New("boom")}
	names := config.ParseSensorNames("")
	registry, err := source.NewRegistry(source.NewTuyaAdapter(tc, nil, names, zap.NewNop().Sugar()))
	require.NoError(t, err)

	res, err := NewReconciler(registry, rw, el, nil, zap.NewNop().Sugar(), time.Second).RunCycle(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.PersistedCount)
	require.Zero(t, rw.calls)
	require.Len(t, el.entries, 1)
}

func TestRunCycleRejectsOverlap(t *testing.T) {
	blocker := &blockingAdapter{started: make(chan struct{}), release: make(chan struct{})}
	registry, err := source.NewRegistry(blocker)
	require.NoError(t, err)
	m := metrics.NewIngest(prometheus.NewRegistry())
	r := NewReconciler(registry, &memReadings{}, &memErrorLog{}, m, zap.NewNop().Sugar(), 0)

	done := make(chan error, 1)
	go func() {
		_, err := r.RunCycle(context.Background())
		done <- err
	}()
	<-blocker.started

	_, err = r.RunCycle(context.Background())
	require.ErrorIs(t, err, ErrBusy)
	require.Equal(t, float64(1), testutil.ToFloat64(m.BusyCounter()))

	close(blocker.release)
	require.NoError(t, <-done)

	// the flag is released once the first cycle returns
	blocker2 := &blockingAdapter{started: make(chan struct{}), release: make(chan struct{})}
	close(blocker2.release)
	registry2, _ := source.NewRegistry(blocker2)
	r.registry = registry2
	_, err = r.RunCycle(context.Background())
	require.NoError(t, err)
}
