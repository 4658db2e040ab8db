package source

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"sensorpipe/internal/config"
	"sensorpipe/internal/model"
	"sensorpipe/pkg/narodmon"
)

const NarodmonSourceName = "Narodmon API"

// NarodmonAPI is the subset of the narodmon client the adapter needs.
type NarodmonAPI interface {
	SensorsValues(ctx context.Context, sensorIDs ...string) ([]narodmon.Sensor, error)
}

// NarodmonAdapter polls one physical sensor. The upstream is its own clock,
// and an unreachable sensor is reported as an offline reading.
type NarodmonAdapter struct {
	client   NarodmonAPI
	sensorID string
	names    config.SensorNames
}

func NewNarodmonAdapter(client NarodmonAPI, sensorID string, names config.SensorNames) *NarodmonAdapter {
	return &NarodmonAdapter{client: client, sensorID: sensorID, names: names}
}

func (a *NarodmonAdapter) Name() string          { return NarodmonSourceName }
func (a *NarodmonAdapter) Policy() FailurePolicy { return FailOpenOffline }

// SensorName is the canonical sensor ID this adapter writes.
func (a *NarodmonAdapter) SensorName() string { return a.names.Resolve(a.sensorID) }

func (a *NarodmonAdapter) Poll(ctx context.Context) ([]model.Reading, error) {
	sensors, err := a.client.SensorsValues(ctx, a.sensorID)
	if err != nil {
		return nil, &UpstreamError{Source: a.Name(), Op: "sensors", Err: err}
	}
	if len(sensors) == 0 {
		return nil, &UpstreamError{Source: a.Name(), Op: "sensors", Err: narodmon.ErrNoSensors}
	}

	sensor := sensors[0]
	if want, err := strconv.ParseInt(a.sensorID, 10, 64); err == nil {
		for _, s := range sensors {
			if s.ID == want {
				sensor = s
				break
			}
		}
	}
	if sensor.Time <= 0 {
		return nil, &UpstreamError{Source: a.Name(), Op: "sensors", Err: fmt.Errorf("sensor %d has no timestamp", sensor.ID)}
	}

	return []model.Reading{{
		SensorID:  a.SensorName(),
		Timestamp: sensor.ReportedAt(),
		Value:     model.Float(sensor.Value),
		Status:    model.StatusOnline,
	}}, nil
}

// Fallback returns the single offline reading emitted when the sensor is unreachable.
func (a *NarodmonAdapter) Fallback(now time.Time) []model.Reading {
	return []model.Reading{model.Offline(a.SensorName(), now)}
}

var (
	_ Adapter         = (*NarodmonAdapter)(nil)
	_ OfflineFallback = (*NarodmonAdapter)(nil)
)
