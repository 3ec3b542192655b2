package dbpool

import (
	"context"
	"time"
)

// ProbeResult captures the outcome of a single round-trip health check.
type ProbeResult struct {
	Healthy   bool          `json:"healthy"`
	LatencyMs int64         `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
}

// ProbeDB issues a trivial round-trip query against Postgres and reports its
// latency.
func (m *Manager) ProbeDB(ctx context.Context) ProbeResult {
	start := time.Now()
	var one int
	err := m.pool.QueryRow(ctx, "SELECT 1").Scan(&one)
	latency := time.Since(start)
	if err != nil {
		return ProbeResult{Healthy: false, LatencyMs: latency.Milliseconds(), Error: err.Error()}
	}
	return ProbeResult{Healthy: true, LatencyMs: latency.Milliseconds()}
}

// ProbeCache issues a PING against the cache store, if configured. A nil
// cache is reported healthy (the spec treats a missing cache store as
// non-fatal degraded-mode, not an unhealthy condition).
func (m *Manager) ProbeCache(ctx context.Context) ProbeResult {
	if m.cache == nil {
		return ProbeResult{Healthy: true}
	}
	start := time.Now()
	err := m.cache.Ping(ctx).Err()
	latency := time.Since(start)
	if err != nil {
		return ProbeResult{Healthy: false, LatencyMs: latency.Milliseconds(), Error: err.Error()}
	}
	return ProbeResult{Healthy: true, LatencyMs: latency.Milliseconds()}
}

// HealthReport is the comprehensive health summary served by GET /health.
type HealthReport struct {
	Status string      `json:"status"`
	DB     ProbeResult `json:"db"`
	Cache  ProbeResult `json:"cache"`
	Pool   Stats       `json:"pool"`
}

// Health composes a HealthReport from the current DB/cache probes and pool
// statistics.
func (m *Manager) Health(ctx context.Context) HealthReport {
	db := m.ProbeDB(ctx)
	cache := m.ProbeCache(ctx)
	status := "healthy"
	if !db.Healthy || !cache.Healthy {
		status = "unhealthy"
	}
	return HealthReport{Status: status, DB: db, Cache: cache, Pool: m.Stats()}
}
