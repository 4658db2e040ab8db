package narodmon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSensorsValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "sensorsValues", q.Get("cmd"))
		require.Equal(t, "37687", q.Get("sensors"))
		require.Equal(t, "uuid-1", q.Get("uuid"))
		require.Equal(t, "key-1", q.Get("api_key"))
		_, _ = w.Write([]byte(`{"sensors":[{"id":37687,"type":1,"value":-4.2,"time":1700000000}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-1", "uuid-1", srv.Client())
	sensors, err := c.SensorsValues(context.Background(), "37687")
	require.NoError(t, err)
	require.Len(t, sensors, 1)
	require.Equal(t, -4.2, sensors[0].Value)
	require.Equal(t, time.Unix(1700000000, 0).UTC(), sensors[0].ReportedAt())
}

func TestSensorsValuesEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sensors":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k", "u", nil).SensorsValues(context.Background(), "1")
	require.True(t, errors.Is(err, ErrNoSensors))
}

func TestSensorsValuesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"api_key invalid","errno":401}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k", "u", nil).SensorsValues(context.Background(), "1")
	require.ErrorContains(t, err, "api_key invalid")
}

func TestSensorsValuesMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k", "u", nil).SensorsValues(context.Background(), "1")
	require.ErrorContains(t, err, "failed to decode response")
}
