package source

import (
	"context"
	"time"

	"sensorpipe/internal/config"
	"sensorpipe/internal/model"
	"sensorpipe/pkg/tuya"

	"go.uber.org/zap"
)

const (
	TuyaSourceName = "Tuya API"

	// Tuya reports temperature in fixed-point tenths of a degree.
	tuyaTemperatureCode    = "va_temperature"
	tuyaTemperatureDivisor = 10.0
)

// TuyaAPI is the subset of the proxy client the adapter needs.
type TuyaAPI interface {
	DeviceOnlineStatus(ctx context.Context, deviceIDs []string) ([]tuya.Device, error)
	DeviceStatus(ctx context.Context, deviceIDs []string) ([]tuya.Device, error)
}

// TuyaAdapter polls a batch of devices: online status first, then values.
type TuyaAdapter struct {
	client    TuyaAPI
	deviceIDs []string
	names     config.SensorNames
	now       func() time.Time
	logger    *zap.SugaredLogger
}

func NewTuyaAdapter(client TuyaAPI, deviceIDs []string, names config.SensorNames, logger *zap.SugaredLogger) *TuyaAdapter {
	return &TuyaAdapter{
		client:    client,
		deviceIDs: append([]string(nil), deviceIDs...),
		names:     names,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock overrides the ingestion clock.
func (a *TuyaAdapter) WithClock(now func() time.Time) *TuyaAdapter {
	a.now = now
	return a
}

func (a *TuyaAdapter) Name() string          { return TuyaSourceName }
func (a *TuyaAdapter) Policy() FailurePolicy { return FailClosed }

// Poll emits one reading per device that reports a temperature data point.
// All readings share the same ingestion timestamp. Devices missing from the
// status response are offline.
func (a *TuyaAdapter) Poll(ctx context.Context) ([]model.Reading, error) {
	statusDevices, err := a.client.DeviceOnlineStatus(ctx, a.deviceIDs)
	if err != nil {
		return nil, &UpstreamError{Source: a.Name(), Op: "status", Err: err}
	}

	online := make(map[string]bool, len(statusDevices))
	for _, d := range statusDevices {
		if d.ID != "" {
			online[d.ID] = d.Online()
		}
	}

	valueDevices, err := a.client.DeviceStatus(ctx, a.deviceIDs)
	if err != nil {
		return nil, &UpstreamError{Source: a.Name(), Op: "values", Err: err}
	}

	now := a.now()
	readings := make([]model.Reading, 0, len(valueDevices))
	for _, d := range valueDevices {
		entry, ok := d.Find(tuyaTemperatureCode)
		if !ok {
			continue
		}
		var raw model.StringFloat64
		if err := entry.Decode(&raw); err != nil {
			a.logger.Warnw("skipping non-numeric temperature", "device", d.ID, "value", string(entry.Value), "error", err)
			continue
		}

		status := model.StatusOffline
		if online[d.ID] {
			status = model.StatusOnline
		}

		readings = append(readings, model.Reading{
			SensorID:  a.names.Resolve(d.ID),
			Timestamp: now,
			Value:     model.Float(raw.Float64() / tuyaTemperatureDivisor),
			Status:    status,
		})
	}

	return readings, nil
}

var _ Adapter = (*TuyaAdapter)(nil)
