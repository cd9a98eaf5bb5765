package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/internal/domain/shard"
	"github.com/okian/leaderboard/pkg/logger"
	"github.com/okian/leaderboard/pkg/metrics"
)

// shardEntry lazily constructs and recovers exactly one shard: the
// first caller for a game_id pays the cost of opening its WAL and
// replaying it, every concurrent or later caller waits on (or reuses)
// that same result. A construction failure evicts the entry so the
// next call gets a clean retry instead of a permanently poisoned slot.
type shardEntry struct {
	once  sync.Once
	shard *shard.Shard
	err   error
}

// Registry is the process-wide map from game_id to its shard. It is
// the sole owner of shard lifecycle: shards are created here, recovered
// here, and closed here. Nothing outside the registry opens a shard's
// write-ahead log directly.
type Registry struct {
	dataDir   string
	shardOpts []shard.Option

	mu     sync.RWMutex
	shards map[string]*shardEntry
	closed bool

	logger logger.Logger
}

// New constructs a registry rooted at dataDir. Shards are constructed
// lazily, on first reference, not eagerly at startup.
func New(dataDir string, opts ...shard.Option) *Registry {
	return &Registry{
		dataDir:   dataDir,
		shardOpts: opts,
		shards:    make(map[string]*shardEntry),
		logger:    logger.Get().Named("engine"),
	}
}

// Shard returns the shard for gameID, constructing and recovering it
// on first reference. Concurrent callers for the same gameID block on
// the same construction rather than racing to open the same WAL file
// twice.
func (r *Registry) Shard(ctx context.Context, gameID string) (*shard.Shard, error) {
	if gameID == "" {
		return nil, ErrInvalidGameID
	}

	r.mu.RLock()
	closed := r.closed
	e, ok := r.shards[gameID]
	r.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	if !ok {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrClosed
		}
		if e, ok = r.shards[gameID]; !ok {
			e = &shardEntry{}
			r.shards[gameID] = e
		}
		r.mu.Unlock()
	}

	e.once.Do(func() {
		s, err := shard.New(gameID, r.dataDir, r.shardOpts...)
		if err != nil {
			e.err = fmt.Errorf("engine: construct shard %s: %w", gameID, err)
			return
		}
		if err := s.Recover(ctx); err != nil {
			e.err = fmt.Errorf("engine: recover shard %s: %w", gameID, err)
			_ = s.Close()
			return
		}
		e.shard = s
		r.logger.Info(ctx, "shard ready", logger.String("game_id", gameID))
		metrics.UpdateShardCount(r.shardCount())
	})

	if e.err != nil {
		r.evict(gameID, e)
		return nil, e.err
	}
	return e.shard, nil
}

// evict removes a failed construction attempt so the next lookup for
// gameID starts fresh instead of replaying the cached error forever.
func (r *Registry) evict(gameID string, failed *shardEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.shards[gameID]; ok && cur == failed {
		delete(r.shards, gameID)
	}
}

func (r *Registry) shardCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.shards)
}

// ShardCount returns the number of shards constructed so far.
func (r *Registry) ShardCount() int {
	return r.shardCount()
}

// UpdateScore resolves entry.GameID to its shard, lazily recovering it
// if this is the shard's first use, and applies the update. This
// satisfies the worker pool's Updater interface, making the registry
// the ingestion pipeline's routing layer.
func (r *Registry) UpdateScore(ctx context.Context, entry model.ScoreSubmission) error {
	s, err := r.Shard(ctx, entry.GameID)
	if err != nil {
		return err
	}
	return s.UpdateScore(ctx, entry.UserID, entry.Score, entry.TS)
}

// CheckpointAll compacts every currently-constructed shard's
// write-ahead log. Shards never referenced are left untouched — there
// is nothing to compact.
func (r *Registry) CheckpointAll(ctx context.Context) error {
	r.mu.RLock()
	entries := make([]*shardEntry, 0, len(r.shards))
	for _, e := range r.shards {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var firstErr error
	for _, e := range entries {
		if e.shard == nil {
			continue
		}
		if err := e.shard.Checkpoint(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close shuts down every constructed shard and stops the registry from
// accepting new lookups.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	entries := make([]*shardEntry, 0, len(r.shards))
	for _, e := range r.shards {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	var firstErr error
	for _, e := range entries {
		if e.shard == nil {
			continue
		}
		if err := e.shard.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
