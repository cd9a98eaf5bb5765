package wal

import (
	"time"

	"github.com/okian/leaderboard/pkg/logger"
)

// Default batching configuration constants.
const (
	defaultBatchSize     = 256
	defaultFlushInterval = 10 * time.Millisecond // upper bound on commit latency under light load
	defaultRingSize      = defaultBatchSize * 8
)

// Option configures a WAL at construction time.
type Option func(*WAL)

// WithBatchSize caps the number of records a single fsync covers.
func WithBatchSize(n int) Option {
	return func(w *WAL) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithFlushInterval bounds how long an append can wait for a batch to
// fill before it is flushed anyway. Keeps commit latency bounded under
// light load.
func WithFlushInterval(d time.Duration) Option {
	return func(w *WAL) {
		if d > 0 {
			w.flushInterval = d
		}
	}
}

// WithRingSize sets the capacity of the bounded append queue. Once
// full, Append returns ErrQueueFull instead of growing unbounded.
func WithRingSize(n int) Option {
	return func(w *WAL) {
		if n > 0 {
			w.ringSize = n
		}
	}
}

// WithLogger attaches a logger used to report skipped, truncated
// trailing records during replay.
func WithLogger(l logger.Logger) Option {
	return func(w *WAL) {
		if l != nil {
			w.logger = l
		}
	}
}
