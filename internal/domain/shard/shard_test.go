package shard

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestShard_NotReadyBeforeRecover(t *testing.T) {
	s, err := New("game-1", t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.UpdateScore(ctx, "u1", 10, time.Time{}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady before recovery, got %v", err)
	}
	if _, err := s.TopK(ctx, 5); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady before recovery, got %v", err)
	}
}

func TestShard_RecoverEmpty(t *testing.T) {
	ctx := context.Background()
	s, err := New("game-1", t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	rows, err := s.TopK(ctx, 10)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty leaderboard, got %d rows", len(rows))
	}
}

func TestShard_WriteThenRead(t *testing.T) {
	ctx := context.Background()
	s, err := New("game-1", t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	if err := s.UpdateScore(ctx, "alice", 100, time.Time{}); err != nil {
		t.Fatalf("UpdateScore alice: %v", err)
	}
	if err := s.UpdateScore(ctx, "bob", 200, time.Time{}); err != nil {
		t.Fatalf("UpdateScore bob: %v", err)
	}

	rows, err := s.TopK(ctx, 10)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].UserID != "bob" || rows[0].Rank != 1 {
		t.Fatalf("expected bob rank 1, got %+v", rows[0])
	}
	if rows[1].UserID != "alice" || rows[1].Rank != 2 {
		t.Fatalf("expected alice rank 2, got %+v", rows[1])
	}

	rank, err := s.RankOf(ctx, "alice")
	if err != nil {
		t.Fatalf("RankOf: %v", err)
	}
	if rank != 2 {
		t.Fatalf("expected rank 2, got %d", rank)
	}

	score, err := s.ScoreOf(ctx, "bob")
	if err != nil {
		t.Fatalf("ScoreOf: %v", err)
	}
	if score != 200 {
		t.Fatalf("expected score 200, got %d", score)
	}
}

func TestShard_ScoreOfMissingUser(t *testing.T) {
	ctx := context.Background()
	s, err := New("game-1", t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	if _, err := s.ScoreOf(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.RankOf(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestShard_ValidatesEmptyUserID(t *testing.T) {
	ctx := context.Background()
	s, err := New("game-1", t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	if err := s.UpdateScore(ctx, "", 10, time.Time{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestShard_TopKRejectsNegativeK(t *testing.T) {
	ctx := context.Background()
	s, err := New("game-1", t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	if _, err := s.TopK(ctx, -1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative k, got %v", err)
	}
}

func TestShard_ScoreRangeValidation(t *testing.T) {
	ctx := context.Background()
	s, err := New("game-1", t.TempDir(), WithScoreRange(0, 1000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	if err := s.UpdateScore(ctx, "alice", 1500, time.Time{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for out-of-range score, got %v", err)
	}
	if err := s.UpdateScore(ctx, "alice", 500, time.Time{}); err != nil {
		t.Fatalf("expected in-range score to succeed, got %v", err)
	}
}

func TestShard_RecoverReplaysAfterRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s1, err := New("game-1", dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s1.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if err := s1.UpdateScore(ctx, "alice", 100, time.Time{}); err != nil {
		t.Fatalf("UpdateScore: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := New("game-1", dir)
	if err != nil {
		t.Fatalf("New (reopen): %v", err)
	}
	defer s2.Close()
	if err := s2.Recover(ctx); err != nil {
		t.Fatalf("Recover (reopen): %v", err)
	}

	score, err := s2.ScoreOf(ctx, "alice")
	if err != nil {
		t.Fatalf("ScoreOf after recovery: %v", err)
	}
	if score != 100 {
		t.Fatalf("expected recovered score 100, got %d", score)
	}
}

func TestShard_CheckpointCompactsWAL(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := New("game-1", dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if err := s.UpdateScore(ctx, "alice", 100, time.Time{}); err != nil {
		t.Fatalf("UpdateScore: %v", err)
	}
	if err := s.Checkpoint(ctx); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	score, err := s.ScoreOf(ctx, "alice")
	if err != nil {
		t.Fatalf("ScoreOf: %v", err)
	}
	if score != 100 {
		t.Fatalf("expected score 100 to survive checkpoint, got %d", score)
	}
}

func TestShard_ClosedRejectsOperations(t *testing.T) {
	ctx := context.Background()
	s, err := New("game-1", t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := s.UpdateScore(ctx, "alice", 10, time.Time{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
