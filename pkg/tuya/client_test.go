package tuya

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
)

func TestDeviceOnlineStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.Equal(t, "request", r.URL.Query().Get("action"))
		require.Equal(t, "/v2.0/cloud/thing/batch?device_ids=a,b", r.URL.Query().Get("path"))
		require.Equal(t, "GET", r.URL.Query().Get("method"))
		_, _ = w.Write([]byte(`{"success":true,"result":{"result":[{"id":"a","is_online":true},{"id":"b"}]}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", srv.Client())
	devices, err := c.DeviceOnlineStatus(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, devices, 2)
	require.True(t, devices[0].Online())
	require.False(t, devices[1].Online())
}

func TestDeviceStatusFindsCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1.0/iot-03/devices/status?device_ids=a", r.URL.Query().Get("path"))
		_, _ = w.Write([]byte(`{"success":true,"result":{"result":[{"id":"a","status":[{"code":"battery","value":"high"},{"code":"va_temperature","value":215}]}]}}`))
	}))
	defer srv.Close()

	devices, err := NewClient(srv.URL, "key", nil).DeviceStatus(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Len(t, devices, 1)

	entry, ok := devices[0].Find("va_temperature")
	require.True(t, ok)
	require.Equal(t, "215", string(entry.Value))

	var temp float64
	require.NoError(t, entry.Decode(&temp))
	require.Equal(t, 215.0, temp)

	battery, ok := devices[0].Find("battery")
	require.True(t, ok)
	require.ErrorIs(t, StatusEntry{Code: "x"}.Decode(&temp), ErrNoValue)
	require.ErrorIs(t, StatusEntry{Code: "x", Value: jsoniter.RawMessage("null")}.Decode(&temp), ErrNoValue)
	require.Error(t, battery.Decode(&temp))

	_, ok = devices[0].Find("humidity")
	require.False(t, ok)
}

func TestRequestWithoutUsableResult(t *testing.T) {
	for name, body := range map[string]string{
		"unsuccessful":   `{"success":false,"message":"sign invalid"}`,
		"missing result": `{"success":true}`,
		"null list":      `{"success":true,"result":{"result":null}}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "key", nil).DeviceOnlineStatus(context.Background(), []string{"a"})
			require.True(t, errors.Is(err, ErrNoResult), "got %v", err)
		})
	}
}

func TestRequestHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "key", nil).DeviceStatus(context.Background(), []string{"a"})
	require.ErrorContains(t, err, "unexpected status 502")
}

func TestEmptyResultListIsUsable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"result":{"result":[]}}`))
	}))
	defer srv.Close()

	devices, err := NewClient(srv.URL, "key", nil).DeviceStatus(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Empty(t, devices)
}
