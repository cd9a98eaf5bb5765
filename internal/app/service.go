// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/okian/leaderboard/internal/adapters/mq/queue"
	workerpool "github.com/okian/leaderboard/internal/adapters/mq/worker"
	"github.com/okian/leaderboard/internal/domain/dedupe"
	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/internal/domain/shard"
	"github.com/okian/leaderboard/internal/domain/types"
	"github.com/okian/leaderboard/internal/domain/wal"
	"github.com/okian/leaderboard/internal/engine"
	"github.com/okian/leaderboard/pkg/logger"
	"github.com/okian/leaderboard/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultWorkerMultiplier = 2
	defaultQueueSize        = 100_000
	defaultDedupeSize       = 500_000
	defaultDataDir          = "./data"
	defaultWALBatchSize     = 256
	defaultScoreMin         = 0
	defaultScoreMax         = 1_000_000_000
)

// Service implements the API dependencies for the leaderboard system:
// idempotency guard, bounded event queue, worker pool, and the shard
// registry those workers apply updates against.
type Service struct {
	mu sync.RWMutex

	registry   *engine.Registry
	deduper    dedupe.Deduper
	eventQueue eventqueue.Queue
	workerPool *workerpool.Pool

	workerCount   int
	queueSize     int
	dedupeSize    int
	dataDir       string
	walBatchSize  int
	walFlushMS    int
	scoreMin      int64
	scoreMax      int64

	started bool
	stopCh  chan struct{}

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the idempotency cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithDataDir sets the root directory for per-game WAL and checkpoint files.
func WithDataDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.dataDir = dir
		}
	}
}

// WithWALBatchSize caps the number of records a single fsync covers.
func WithWALBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.walBatchSize = n
		}
	}
}

// WithWALFlushIntervalMS bounds how long a WAL append can wait for a
// batch to fill before it is flushed anyway.
func WithWALFlushIntervalMS(ms int) Option {
	return func(s *Service) {
		if ms > 0 {
			s.walFlushMS = ms
		}
	}
}

// WithScoreRange bounds accepted submitted scores.
func WithScoreRange(minScore, maxScore int64) Option {
	return func(s *Service) {
		if maxScore >= minScore {
			s.scoreMin = minScore
			s.scoreMax = maxScore
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:  runtime.NumCPU() * defaultWorkerMultiplier,
		queueSize:    defaultQueueSize,
		dedupeSize:   defaultDedupeSize,
		dataDir:      defaultDataDir,
		walBatchSize: defaultWALBatchSize,
		scoreMin:     defaultScoreMin,
		scoreMax:     defaultScoreMax,
		stopCh:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting leaderboard service...")

	shardOpts := []shard.Option{
		shard.WithScoreRange(s.scoreMin, s.scoreMax),
		shard.WithLogger(s.logger),
	}
	if s.walBatchSize > 0 || s.walFlushMS > 0 {
		var walOpts []wal.Option
		if s.walBatchSize > 0 {
			walOpts = append(walOpts, wal.WithBatchSize(s.walBatchSize))
		}
		if s.walFlushMS > 0 {
			walOpts = append(walOpts, wal.WithFlushInterval(time.Duration(s.walFlushMS)*time.Millisecond))
		}
		shardOpts = append(shardOpts, shard.WithWALOptions(walOpts...))
	}

	s.registry = engine.New(s.dataDir, shardOpts...)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)

	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.registry)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "leaderboard service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping leaderboard service...")

	if s.workerPool != nil {
		_ = s.workerPool.Shutdown(ctx)
	}

	if s.registry != nil {
		if err := s.registry.Close(); err != nil {
			s.logger.Error(ctx, "error closing shard registry", logger.Error(err))
		}
	}

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	s.started = false
	s.logger.Info(ctx, "leaderboard service stopped")
}

// SubmitScore validates idempotency and enqueues a score submission for
// asynchronous ingestion. It returns true if the submission was newly
// accepted onto the queue, false if it was a duplicate retry or the
// queue rejected it under backpressure.
func (s *Service) SubmitScore(ctx context.Context, submission model.ScoreSubmission) (bool, error) {
	if submission.GameID == "" || submission.UserID == "" {
		return false, fmt.Errorf("game_id and user_id are required")
	}
	if submission.TS.IsZero() {
		submission.TS = time.Now()
	}

	key := submission.IdempotencyKey()
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordScoreDuplicate()
		s.logger.Debug(ctx, "duplicate submission ignored",
			logger.String("game_id", submission.GameID),
			logger.String("user_id", submission.UserID),
		)
		return false, nil
	}

	if !s.eventQueue.Enqueue(ctx, submission) {
		s.deduper.Unrecord(ctx, key)
		return false, ErrQueueFull
	}

	return true, nil
}

// TopK returns the top k leaderboard rows for gameID.
func (s *Service) TopK(ctx context.Context, gameID string, k int) ([]types.LeaderboardRow, error) {
	sh, err := s.registry.Shard(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return sh.TopK(ctx, k)
}

// Rank returns the rank and score for userID within gameID.
func (s *Service) Rank(ctx context.Context, gameID, userID string) (types.LeaderboardRow, error) {
	sh, err := s.registry.Shard(ctx, gameID)
	if err != nil {
		return types.LeaderboardRow{}, err
	}

	rank, err := sh.RankOf(ctx, userID)
	if err != nil {
		return types.LeaderboardRow{}, err
	}
	score, err := sh.ScoreOf(ctx, userID)
	if err != nil {
		return types.LeaderboardRow{}, err
	}

	return types.LeaderboardRow{Rank: rank, UserID: userID, Score: score}, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		queueLen := s.eventQueue.Len(ctx)
		stats["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)
		stats["shard_count"] = s.registry.ShardCount()
	}

	return stats
}

// CheckpointAll compacts the write-ahead log of every constructed shard.
func (s *Service) CheckpointAll(ctx context.Context) error {
	s.mu.RLock()
	registry := s.registry
	s.mu.RUnlock()
	if registry == nil {
		return nil
	}
	return registry.CheckpointAll(ctx)
}

// Size returns the current number of entries in the idempotency cache.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}
