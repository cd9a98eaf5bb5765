package shard

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/leaderboard/internal/domain/skiplist"
	"github.com/okian/leaderboard/internal/domain/types"
	"github.com/okian/leaderboard/internal/domain/wal"
	"github.com/okian/leaderboard/pkg/logger"
	"github.com/okian/leaderboard/pkg/metrics"
)

// state values for Shard.state.
const (
	stateRecovering int32 = iota
	stateReady
	stateClosed
)

// Shard owns one game's ranking index and write-ahead log. It is the
// sole path through which that game's data is read or mutated: writes
// go validate -> WAL append -> index upsert, in that order, so a
// crash between the WAL fsync and the index update is repaired by
// replaying the WAL on the next recovery. Reads pass straight through
// to the index once the shard is ready.
//
// A Shard is constructed not-ready; the owner (the engine registry)
// must call Recover exactly once before routing traffic to it.
type Shard struct {
	gameID string

	index *skiplist.Index
	idxMu sync.RWMutex

	log *wal.WAL

	state atomic.Int32

	scoreMin     int64
	scoreMax     int64
	rangeChecked bool

	walOpts []wal.Option
	logger  logger.Logger
}

// New constructs a shard for gameID rooted at dataDir. The write-ahead
// log file is opened (and created if missing) immediately, but the
// shard does not accept traffic until Recover succeeds.
func New(gameID, dataDir string, opts ...Option) (*Shard, error) {
	s := &Shard{
		gameID: gameID,
		index:  skiplist.New(),
		logger: logger.Get().Named("shard"),
	}
	for _, opt := range opts {
		opt(s)
	}

	path := filepath.Join(dataDir, gameID+".wal")
	w, err := wal.Open(path, append([]wal.Option{wal.WithLogger(s.logger)}, s.walOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("shard %s: open wal: %w", gameID, err)
	}
	s.log = w

	return s, nil
}

// Recover replays the shard's checkpoint and write-ahead log into the
// in-memory index and flips the shard to ready. It must be called
// exactly once, before any read or write is routed to the shard.
func (s *Shard) Recover(ctx context.Context) error {
	start := time.Now()

	records, err := s.log.Replay(ctx)
	if err != nil {
		return fmt.Errorf("shard %s: replay: %w", s.gameID, err)
	}

	s.idxMu.Lock()
	for _, rec := range records {
		s.index.Upsert(rec.UserID, rec.Score)
	}
	count := s.index.Len()
	s.idxMu.Unlock()

	s.state.Store(stateReady)

	metrics.RecordWALRecoveryDuration(s.gameID, float64(time.Since(start).Milliseconds()))
	metrics.UpdateWALRecoveredRecords(s.gameID, len(records))
	metrics.UpdateShardRecordCount(s.gameID, count)

	s.logger.Info(ctx, "shard recovered",
		logger.String("game_id", s.gameID),
		logger.Int("records", count),
	)
	return nil
}

func (s *Shard) checkReady() error {
	switch s.state.Load() {
	case stateReady:
		return nil
	case stateClosed:
		return ErrClosed
	default:
		return ErrNotReady
	}
}

// validate applies shard-local input checks ahead of the write-ahead
// log append. userID must be non-empty; the score, if a range was
// configured, must fall within it.
func (s *Shard) validate(userID string, score int64) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user_id", ErrInvalidInput)
	}
	if s.rangeChecked && (score < s.scoreMin || score > s.scoreMax) {
		return fmt.Errorf("%w: score %d outside [%d, %d]", ErrInvalidInput, score, s.scoreMin, s.scoreMax)
	}
	return nil
}

// UpdateScore validates, durably appends, then applies a score update.
// The submitted score is authoritative: there is no scoring transform
// applied here. ts is the caller's acceptance timestamp; a zero value
// defaults to the time UpdateScore is called. The index upsert runs
// from inside the WAL's single writer goroutine, as the apply callback
// passed to Append, so that two goroutines racing to update the same
// user_id observe the update in WAL-commit order rather than whatever
// order they happen to re-acquire idxMu in.
func (s *Shard) UpdateScore(ctx context.Context, userID string, score int64, ts time.Time) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	if err := s.validate(userID, score); err != nil {
		return err
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	apply := func() {
		start := time.Now()
		s.idxMu.Lock()
		s.index.Upsert(userID, score)
		count := s.index.Len()
		s.idxMu.Unlock()
		metrics.RecordIndexUpsertLatency(s.gameID, float64(time.Since(start).Milliseconds()))
		metrics.UpdateShardRecordCount(s.gameID, count)

		s.logger.Debug(ctx, "score applied",
			logger.String("game_id", s.gameID),
			logger.String("user_id", userID),
			logger.Int64("score", score),
		)
	}

	if err := s.log.Append(ctx, wal.Record{UserID: userID, Score: score, CTime: ts}, apply); err != nil {
		return fmt.Errorf("shard %s: append: %w", s.gameID, err)
	}

	return nil
}

// TopK returns the k highest-ranked rows in descending score order,
// with ties broken by ascending user_id.
func (s *Shard) TopK(ctx context.Context, k int) ([]types.LeaderboardRow, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	if k < 0 {
		return nil, fmt.Errorf("%w: k must be non-negative, got %d", ErrInvalidInput, k)
	}

	start := time.Now()
	s.idxMu.RLock()
	rows := s.index.TopK(k)
	s.idxMu.RUnlock()
	metrics.RecordIndexQueryLatency(s.gameID, "top_k", float64(time.Since(start).Milliseconds()))

	out := make([]types.LeaderboardRow, len(rows))
	for i, r := range rows {
		out[i] = types.LeaderboardRow{Rank: r.Rank, UserID: r.UserID, Score: r.Score}
	}
	return out, nil
}

// RankOf returns userID's 1-based rank, or ErrNotFound if the user has
// no entry.
func (s *Shard) RankOf(ctx context.Context, userID string) (int, error) {
	if err := s.checkReady(); err != nil {
		return 0, err
	}

	start := time.Now()
	s.idxMu.RLock()
	rank, ok := s.index.RankOf(userID)
	s.idxMu.RUnlock()
	metrics.RecordIndexQueryLatency(s.gameID, "rank_of", float64(time.Since(start).Milliseconds()))

	if !ok {
		return 0, ErrNotFound
	}
	return rank, nil
}

// ScoreOf returns userID's current score, or ErrNotFound if the user
// has no entry.
func (s *Shard) ScoreOf(ctx context.Context, userID string) (int64, error) {
	if err := s.checkReady(); err != nil {
		return 0, err
	}

	start := time.Now()
	s.idxMu.RLock()
	score, ok := s.index.ScoreOf(userID)
	s.idxMu.RUnlock()
	metrics.RecordIndexQueryLatency(s.gameID, "score_of", float64(time.Since(start).Milliseconds()))

	if !ok {
		return 0, ErrNotFound
	}
	return score, nil
}

// Checkpoint compacts the current index state into the write-ahead
// log's checkpoint file and truncates the live log. It requires a
// consistent snapshot of the index, so it briefly holds the read lock
// while copying scores out.
func (s *Shard) Checkpoint(ctx context.Context) error {
	if err := s.checkReady(); err != nil {
		return err
	}

	s.idxMu.RLock()
	rows := s.index.TopK(s.index.Len())
	s.idxMu.RUnlock()

	snapshot := make(map[string]int64, len(rows))
	for _, r := range rows {
		snapshot[r.UserID] = r.Score
	}

	if err := s.log.Checkpoint(ctx, snapshot); err != nil {
		return fmt.Errorf("shard %s: checkpoint: %w", s.gameID, err)
	}
	return nil
}

// Close stops accepting traffic and closes the underlying write-ahead
// log.
func (s *Shard) Close() error {
	s.state.Store(stateClosed)
	if err := s.log.Close(); err != nil {
		return fmt.Errorf("shard %s: close wal: %w", s.gameID, err)
	}
	return nil
}
