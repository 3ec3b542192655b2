package writer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/llm-observatory-storage/internal/apperror"
	"github.com/iota-uz/llm-observatory-storage/internal/config"
)

// retryDelay computes the writer-level backoff for a retryable failure at
// attempt k (0-indexed): initial_delay * 2^(k+1) milliseconds, capped by the
// policy's max delay.
func retryDelay(cfg config.RetryConfig, attempt int) time.Duration {
	ms := float64(cfg.InitialDelayMs) * float64(uint64(1)<<(attempt+1))
	if max := float64(cfg.MaxDelayMs); ms > max {
		ms = max
	}
	return time.Duration(ms) * time.Millisecond
}

// withRetry executes op, retrying on a retryable apperror up to
// cfg.MaxAttempts times with exponential backoff. attempt is 0-indexed; a
// failure is retried only while attempt < cfg.MaxAttempts.
func withRetry(ctx context.Context, cfg config.RetryConfig, stats *statsBox, logger *logrus.Logger, op func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !apperror.Retryable(err) || attempt >= cfg.MaxAttempts {
			stats.addFailure()
			return err
		}

		delay := retryDelay(cfg, attempt)
		logger.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"delay":   delay,
		}).WithError(err).Warn("writer: retryable failure, retrying")
		stats.addRetry()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
