// Package dedupe guards score submissions against duplicate processing.
package dedupe

// Option applies a configuration option to the in-memory idempotency guard.
type Option func(*inMemoryDeduper)

// WithMaxSize sets the maximum number of idempotency keys to keep in memory.
// If maxSize > 0: bounded mode that evicts the oldest key when full.
// If maxSize <= 0: unbounded mode (no eviction, no size limit).
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = maxSize
	}
}
