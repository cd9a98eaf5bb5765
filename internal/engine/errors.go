// Package engine hosts the shard registry: the process-wide map from
// game_id to its shard, and the sole authority over shard lifecycle.
package engine

import "errors"

// Sentinel kinds for registry errors. Callers should use errors.Is
// against these, not string matching.
var (
	// ErrInvalidGameID indicates an empty or otherwise unusable game_id.
	ErrInvalidGameID = errors.New("engine: invalid game_id")

	// ErrClosed is returned once the registry has been shut down.
	ErrClosed = errors.New("engine: closed")
)
