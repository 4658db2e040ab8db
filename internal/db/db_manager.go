package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"sensorpipe/internal/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// DBManager owns the shared Postgres pool and a database/sql handle on top of it.
type DBManager struct {
	pool         *pgxpool.Pool
	sqlDB        *sql.DB
	mu           sync.RWMutex
	shutdownChan chan struct{}
	wg           sync.WaitGroup
	logger       *zap.SugaredLogger
	shutdownOnce sync.Once
}

var ErrShuttingDown = errors.New("database manager is shutting down")

func NewDBManager(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*DBManager, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// Disable prepared statements to avoid the "prepared statement already exists" error
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	tlsConfig, err := cfg.CreatePostgresTLSConfig()
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		poolConfig.ConnConfig.TLSConfig = tlsConfig
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	return &DBManager{
		pool:         pool,
		sqlDB:        stdlib.OpenDBFromPool(pool),
		shutdownChan: make(chan struct{}),
		logger:       logger,
	}, nil
}

func (d *DBManager) Pool() *pgxpool.Pool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pool
}

// SQL returns the database/sql handle backed by the pool.
func (d *DBManager) SQL() *sql.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sqlDB
}

// StartAutoReconnect periodically pings the database and logs its health.
func (d *DBManager) StartAutoReconnect(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-d.shutdownChan:
				d.logger.Info("auto-reconnect stopped: shutdown signal received")
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.Ping(ctx); err != nil {
					d.logger.Errorw("DB ping failed", "error", err)
				} else {
					d.logger.Debug("DB ping successful")
				}
			}
		}
	}()
}

// Shutdown gracefully stops the DBManager
func (d *DBManager) Shutdown() {
	d.shutdownOnce.Do(func() {
		d.logger.Info("initiating DBManager graceful shutdown")

		close(d.shutdownChan)
		d.wg.Wait()

		d.mu.Lock()
		if d.sqlDB != nil {
			if err := d.sqlDB.Close(); err != nil {
				d.logger.Warnw("closing sql handle", "error", err)
			}
		}
		if d.pool != nil {
			d.pool.Close()
			d.logger.Info("database connection pool closed")
		}
		d.mu.Unlock()

		d.logger.Info("DBManager shutdown completed")
	})
}

// IsShuttingDown returns true if shutdown has been initiated
func (d *DBManager) IsShuttingDown() bool {
	select {
	case <-d.shutdownChan:
		return true
	default:
		return false
	}
}

// Ping fails once shutdown has started so readiness checks drain traffic.
func (d *DBManager) Ping(ctx context.Context) error {
	if d.IsShuttingDown() {
		return ErrShuttingDown
	}
	return d.Pool().Ping(ctx)
}
