package writer

import "time"

// Config governs a buffered writer's batching behavior. The retry policy
// itself is inherited from config.RetryConfig (§4.1), not duplicated here.
type Config struct {
	BatchSize      int
	FlushInterval  time.Duration
	MaxConcurrency int

	// BulkCopyThreshold is the flush-batch size at or above which a writer
	// prefers the bulk-copy path (C4) over parameterized batch-insert, when
	// a raw connection factory is available. The default of 0 means "always
	// prefer bulk-copy" — any non-empty flush qualifies. A writer without a
	// raw connection factory configured always uses batch-insert regardless
	// of this value, and a writer whose raw connection factory fails to
	// open a connection at flush time falls back to batch-insert for that
	// flush.
	BulkCopyThreshold int
}

// DefaultConfig returns the writer defaults: batch_size=100,
// flush_interval=5s, max_concurrency=4, bulk_copy_threshold=0 (always
// prefer bulk-copy).
func DefaultConfig() Config {
	return Config{
		BatchSize:         100,
		FlushInterval:     5 * time.Second,
		MaxConcurrency:    4,
		BulkCopyThreshold: 0,
	}
}
