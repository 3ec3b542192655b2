// Package dbpool constructs and manages the shared Postgres connection pool
// and optional Redis cache-store connection, with retry-on-connect, health
// probing, and pool statistics.
package dbpool

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/llm-observatory-storage/internal/config"
)

// Manager multiplexes the pooled async Postgres connection and the optional
// Redis cache-store connection. It is the sole owner of both resources for
// the lifetime of the process.
type Manager struct {
	pool     *pgxpool.Pool
	cache    *redis.Client
	dsn      string
	retry    config.RetryConfig
	minConns int32
	maxConns int32
	logger   *logrus.Logger
}

// New constructs a Manager, applying retry-on-connect for the Postgres pool
// per cfg.Retry. Cache-store connection failure is logged but non-fatal;
// the Manager continues with a nil cache, and Cache() callers must handle
// that degraded state themselves.
func New(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*Manager, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Connection.URL())
	if err != nil {
		return nil, fmt.Errorf("dbpool: parsing pool config: %w", err)
	}
	poolCfg.MaxConns = cfg.Pool.MaxConnections
	poolCfg.MinConns = cfg.Pool.MinConnections
	poolCfg.MaxConnLifetime = cfg.Pool.MaxLifetimeDuration()
	poolCfg.MaxConnIdleTime = cfg.Pool.IdleTimeoutDuration()
	poolCfg.ConnConfig.ConnectTimeout = cfg.Pool.ConnectTimeoutDuration()

	var pool *pgxpool.Pool
	for attempt := 0; attempt < cfg.Retry.MaxAttempts; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, cfg.Pool.ConnectTimeoutDuration())
			err = pool.Ping(pingCtx)
			cancel()
			if err == nil {
				break
			}
			pool.Close()
		}
		logger.WithFields(logrus.Fields{"attempt": attempt + 1, "max_attempts": cfg.Retry.MaxAttempts}).
			WithError(err).Warn("dbpool: connect attempt failed, retrying")
		if attempt < cfg.Retry.MaxAttempts-1 {
			time.Sleep(cfg.Retry.DelayForAttempt(attempt))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("dbpool: exhausted %d connect attempts: %w", cfg.Retry.MaxAttempts, err)
	}

	m := &Manager{
		pool:     pool,
		dsn:      cfg.Connection.URL(),
		retry:    cfg.Retry,
		minConns: cfg.Pool.MinConnections,
		maxConns: cfg.Pool.MaxConnections,
		logger:   logger,
	}

	if cfg.Cache.Enabled() {
		opts, parseErr := redis.ParseURL(cfg.Cache.URL)
		if parseErr != nil {
			logger.WithError(parseErr).Warn("dbpool: invalid REDIS_URL, continuing without cache")
		} else {
			opts.PoolSize = cfg.Cache.PoolSize
			client := redis.NewClient(opts)
			pingCtx, cancel := context.WithTimeout(ctx, cfg.Cache.Timeout())
			pingErr := client.Ping(pingCtx).Err()
			cancel()
			if pingErr != nil {
				logger.WithError(pingErr).Warn("dbpool: cache-store unreachable, continuing without cache")
				_ = client.Close()
			} else {
				m.cache = client
			}
		}
	}

	return m, nil
}

// Pool returns the shared pooled connection pool.
func (m *Manager) Pool() *pgxpool.Pool { return m.pool }

// Cache returns the Redis client, or nil if no cache store is configured or
// reachable.
func (m *Manager) Cache() *redis.Client { return m.cache }

// RawConn opens a fresh, dedicated connection outside the pool for the
// lifetime of a single bulk-copy operation. The caller must Close() it when
// done.
func (m *Manager) RawConn(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, m.dsn)
	if err != nil {
		return nil, fmt.Errorf("dbpool: opening raw connection: %w", err)
	}
	return conn, nil
}

// Stats is a point-in-time snapshot of pool utilization.
type Stats struct {
	Size           int32
	Idle           int32
	Active         int32
	Max            int32
	Min            int32
	UtilizationPct float64
	NearCapacity   bool
}

// Stats returns the current pool statistics.
func (m *Manager) Stats() Stats {
	s := m.pool.Stat()
	util := 0.0
	if m.maxConns > 0 {
		util = float64(s.AcquiredConns()) / float64(m.maxConns) * 100
	}
	return Stats{
		Size:           s.TotalConns(),
		Idle:           s.IdleConns(),
		Active:         s.AcquiredConns(),
		Max:            m.maxConns,
		Min:            m.minConns,
		UtilizationPct: util,
		NearCapacity:   util > 80,
	}
}

// Close gracefully closes the pool and cache-store connection.
func (m *Manager) Close() {
	m.pool.Close()
	if m.cache != nil {
		_ = m.cache.Close()
	}
}
