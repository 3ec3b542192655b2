package writer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iota-uz/llm-observatory-storage/internal/config"
	"github.com/iota-uz/llm-observatory-storage/internal/writer"
)

func defaultRetryConfig() config.RetryConfig {
	return config.RetryConfig{MaxAttempts: 3, InitialDelayMs: 100, MaxDelayMs: 5000, BackoffMultiplier: 2}
}

func TestDefaultConfig(t *testing.T) {
	cfg := writer.DefaultConfig()
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.FlushInterval)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, 0, cfg.BulkCopyThreshold)
}

func TestTraceWriter_StatsStartsZero(t *testing.T) {
	w := writer.NewTraceWriter(nil, nil, writer.DefaultConfig(), defaultRetryConfig(), nil, nil)
	stats := w.Stats()
	assert.Zero(t, stats.TracesWritten)
	assert.Zero(t, stats.SpansWritten)
	assert.Zero(t, stats.EventsWritten)
	assert.Zero(t, stats.Retries)
	assert.Zero(t, stats.WriteFailures)
}
