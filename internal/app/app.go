package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"sensorpipe/internal/api"
	"sensorpipe/internal/auth"
	"sensorpipe/internal/config"
	"sensorpipe/internal/db"
	"sensorpipe/internal/metrics"
	"sensorpipe/internal/service"
	"sensorpipe/internal/source"
	"sensorpipe/pkg/narodmon"
	"sensorpipe/pkg/tuya"
)

const (
	summaryInterval   = 30 * time.Minute
	reconnectInterval = 30 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// NewSourceRegistry builds the upstream clients and registers one adapter per upstream.
func NewSourceRegistry(cfg *config.Config, httpClient *http.Client, logger *zap.SugaredLogger) (*source.Registry, error) {
	tuyaClient := tuya.NewClient(cfg.TuyaBaseURL, cfg.TuyaAPIKey, httpClient)
	narodmonClient := narodmon.NewClient(cfg.NarodmonBaseURL, cfg.NarodmonKey, cfg.NarodmonUUID, httpClient)

	return source.NewRegistry(
		source.NewTuyaAdapter(tuyaClient, cfg.TuyaDeviceIDs, cfg.SensorNames, logger.Named("tuya")),
		source.NewNarodmonAdapter(narodmonClient, cfg.NarodmonSensorID, cfg.SensorNames),
	)
}

// Run wires storage, ingestion and the HTTP surface, and blocks until ctx is canceled.
func Run(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) error {
	// --- Initialize DBManager ---
	dbMgr, err := db.NewDBManager(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create DBManager: %w", err)
	}
	defer dbMgr.Shutdown()
	dbMgr.StartAutoReconnect(ctx, reconnectInterval)

	if err := db.EnsureSchema(ctx, dbMgr.SQL()); err != nil {
		return err
	}

	// Start insert summary monitor
	stats := db.NewInsertStats()
	stats.StartSummaryLogger(ctx, summaryInterval, logger)

	readings := db.NewReadingStore(dbMgr.SQL(), stats)
	errorLog := db.NewErrorLogStore(dbMgr.SQL(), stats)

	registry, err := NewSourceRegistry(cfg, &http.Client{}, logger)
	if err != nil {
		return err
	}

	ingestMetrics := metrics.NewIngest(prometheus.DefaultRegisterer)
	reconciler := service.NewReconciler(registry, readings, errorLog, ingestMetrics, logger.Named("ingest"), cfg.AdapterTimeout)

	triggerDone := make(chan struct{})
	if cfg.KafkaEnabled() {
		go func() {
			defer close(triggerDone)
			if err := StartTriggerApp(ctx, cfg, reconciler, logger.Named("kafka")); err != nil {
				logger.Errorw("Kafka trigger not started", "error", err)
			}
		}()
	} else {
		close(triggerDone)
	}

	server := api.NewServer(api.Deps{
		Ingest:      reconciler,
		Readings:    readings,
		Errors:      errorLog,
		DB:          dbMgr,
		Sessions:    auth.NewSessions(cfg.JWTSecret, cfg.AppPassword, cfg.CookieSecure),
		WebhookKey:  cfg.WebhookKey,
		SensorOrder: cfg.SensorNames.Names(),
		Location:    cfg.ChartLocation,
		Gatherer:    prometheus.DefaultGatherer,
		Logger:      logger.Named("http"),
	})

	err = RunHTTPServer(ctx, cfg.HTTPAddr, server, logger)

	select {
	case <-triggerDone:
	case <-time.After(shutdownTimeout):
		logger.Warn("timeout waiting for Kafka trigger to stop")
	}
	return err
}

// StartTriggerApp consumes the trigger topic until ctx is canceled.
func StartTriggerApp(ctx context.Context, cfg *config.Config, runner service.CycleRunner, logger *zap.SugaredLogger) error {
	tlsConfig, err := cfg.CreateKafkaTLSConfig()
	if err != nil {
		return err
	}

	// Kafka Reader Setup
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.KafkaBrokers,
		Topic:             cfg.KafkaTopic,
		GroupID:           "sensorpipe-ingest-trigger",
		StartOffset:       kafka.LastOffset,
		ReadLagInterval:   -1,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		Dialer: &kafka.Dialer{
			Timeout: 10 * time.Second,
			TLS:     tlsConfig,
		},
	})
	defer reader.Close()

	service.NewTriggerConsumer(runner, logger).Start(ctx, reader)
	logger.Info("Kafka trigger consumer stopped")
	return nil
}

// RunHTTPServer serves handler on addr and shuts down gracefully when ctx is canceled.
func RunHTTPServer(ctx context.Context, addr string, handler http.Handler, logger *zap.SugaredLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("starting HTTP server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("HTTP server stopped gracefully")
	return nil
}
