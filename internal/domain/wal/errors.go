// Package wal implements the per-game write-ahead log: a durable,
// append-only, newline-delimited record of accepted score updates.
package wal

import "errors"

// Sentinel kinds for WAL errors. Callers should use errors.Is against
// these, not string matching.
var (
	// ErrClosed is returned by Append/Checkpoint once the WAL has been closed.
	ErrClosed = errors.New("wal: closed")

	// ErrQueueFull indicates the group-commit ring is saturated; the
	// caller should surface this as a retryable, 503-class failure.
	ErrQueueFull = errors.New("wal: append queue full")

	// ErrCorruptCheckpoint indicates a checkpoint file failed its
	// integrity check; Replay returns it and recovery of the shard
	// fails rather than continuing from the WAL alone.
	ErrCorruptCheckpoint = errors.New("wal: corrupt checkpoint")
)
