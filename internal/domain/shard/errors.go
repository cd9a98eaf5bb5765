// Package shard implements the per-game shard: the unit that owns one
// game's ranking index and write-ahead log, and mediates every read and
// write against them.
package shard

import "errors"

// Sentinel kinds for shard errors. Callers should use errors.Is against
// these, not string matching.
var (
	// ErrNotReady is returned when a shard is still recovering from its
	// checkpoint and WAL and cannot yet serve reads or writes.
	ErrNotReady = errors.New("shard: not ready")

	// ErrNotFound indicates the requested user has no entry in the
	// shard's ranking index.
	ErrNotFound = errors.New("shard: user not found")

	// ErrInvalidInput indicates a submission failed validation before
	// it reached the write-ahead log.
	ErrInvalidInput = errors.New("shard: invalid input")

	// ErrClosed is returned once a shard has been closed.
	ErrClosed = errors.New("shard: closed")
)
