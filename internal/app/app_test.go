package app

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sensorpipe/internal/config"
	"sensorpipe/internal/source"
)

func TestNewSourceRegistry(t *testing.T) {
	cfg := &config.Config{
		TuyaBaseURL:      "http://tuya.invalid",
		TuyaAPIKey:       "k",
		TuyaDeviceIDs:    []string{"d1"},
		NarodmonBaseURL:  "http://narodmon.invalid",
		NarodmonKey:      "k",
		NarodmonUUID:     "u",
		NarodmonSensorID: "37687",
		SensorNames:      config.ParseSensorNames("d1:Bedroom,37687:City"),
	}

	registry, err := NewSourceRegistry(cfg, http.DefaultClient, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.Equal(t, 2, registry.Len())

	adapters := registry.Adapters()
	require.Equal(t, source.TuyaSourceName, adapters[0].Name())
	require.Equal(t, source.FailClosed, adapters[0].Policy())
	require.Equal(t, source.NarodmonSourceName, adapters[1].Name())
	require.Equal(t, source.FailOpenOffline, adapters[1].Policy())
}

func TestRunHTTPServerStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunHTTPServer(ctx, addr, http.NotFoundHandler(), zap.NewNop().Sugar())
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNotFound
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
