package wal

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rec := Record{UserID: "alice", Score: 42, CTime: time.UnixMilli(1_700_000_000_000)}

	var buf bytes.Buffer
	encodeInto(&buf, rec)
	line := strings.TrimSuffix(buf.String(), "\n")

	got, ok := decodeLine(line)
	if !ok {
		t.Fatalf("decodeLine failed on %q", line)
	}
	if got.UserID != rec.UserID || got.Score != rec.Score || !got.CTime.Equal(rec.CTime) {
		t.Errorf("round trip mismatch: got %+v want %+v", got, rec)
	}
}

func TestEncodeDecodeEscapesDelimiters(t *testing.T) {
	cases := []string{
		"tab\tinside",
		"newline\ninside",
		"backslash\\inside",
		"mixed\t\n\\all-three",
	}

	for _, userID := range cases {
		rec := Record{UserID: userID, Score: 7, CTime: time.UnixMilli(1000)}

		var buf bytes.Buffer
		encodeInto(&buf, rec)
		encoded := buf.String()

		if strings.Count(strings.TrimSuffix(encoded, "\n"), "\n") != 0 {
			t.Fatalf("encoded line for %q must not contain a raw newline: %q", userID, encoded)
		}

		line := strings.TrimSuffix(encoded, "\n")
		got, ok := decodeLine(line)
		if !ok {
			t.Fatalf("decodeLine failed for user_id %q, line %q", userID, line)
		}
		if got.UserID != userID {
			t.Errorf("user_id round trip failed: got %q want %q", got.UserID, userID)
		}
		if got.Score != rec.Score {
			t.Errorf("score round trip failed for %q: got %d want %d", userID, got.Score, rec.Score)
		}
	}
}

func TestEscapeUnescapeIdentity(t *testing.T) {
	inputs := []string{"", "plain", "a\tb\nc\\d", strings.Repeat("\\", 5)}
	for _, in := range inputs {
		if got := unescape(escape(in)); got != in {
			t.Errorf("escape/unescape not idempotent for %q: got %q", in, got)
		}
	}
}

func TestDecodeLineRejectsMalformedInput(t *testing.T) {
	cases := []string{
		"",
		"only-two\tfields",
		"user\tnot-a-number\t1000",
		"user\t10\tnot-a-number",
		"user\t10", // truncated tail, missing ctime field
	}
	for _, line := range cases {
		if _, ok := decodeLine(line); ok {
			t.Errorf("expected decodeLine to reject %q", line)
		}
	}
}

func TestReplayFileTruncatedTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "game.wal")

	var buf bytes.Buffer
	encodeInto(&buf, Record{UserID: "alice", Score: 10, CTime: time.UnixMilli(1000)})
	encodeInto(&buf, Record{UserID: "bob", Score: 20, CTime: time.UnixMilli(2000)})
	buf.WriteString("carol\t30") // truncated: crash mid-append, no ctime field or newline

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w := &WAL{}
	recs, err := w.replayFile(path)
	if err != nil {
		t.Fatalf("replayFile: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 well-formed records, got %d: %+v", len(recs), recs)
	}
	if recs[0].UserID != "alice" || recs[1].UserID != "bob" {
		t.Errorf("unexpected records: %+v", recs)
	}
}

func TestReplayFileMissingFile(t *testing.T) {
	w := &WAL{}
	recs, err := w.replayFile(filepath.Join(t.TempDir(), "does-not-exist.wal"))
	if err != nil {
		t.Fatalf("expected no error for a missing file, got %v", err)
	}
	if recs != nil {
		t.Errorf("expected nil records for a missing file, got %v", recs)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "game.wal")

	w, err := Open(path, WithFlushInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := w.Append(ctx, Record{UserID: "alice", Score: 10, CTime: time.Now()}, nil); err != nil {
		t.Fatalf("Append alice: %v", err)
	}
	if err := w.Append(ctx, Record{UserID: "bob", Score: 20, CTime: time.Now()}, nil); err != nil {
		t.Fatalf("Append bob: %v", err)
	}

	snapshot := map[string]int64{"alice": 10, "bob": 20}
	if err := w.Checkpoint(ctx, snapshot); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat live WAL: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("expected live WAL truncated to empty after checkpoint, size=%d", info.Size())
	}
	if _, err := os.Stat(w.checkpointPath); err != nil {
		t.Fatalf("expected checkpoint file to exist: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening and replaying must recover the checkpointed state even
	// though the live WAL file is now empty.
	w2, err := Open(path)
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	defer w2.Close()

	recs, err := w2.Replay(ctx)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	got := make(map[string]int64, len(recs))
	for _, r := range recs {
		got[r.UserID] = r.Score
	}
	if got["alice"] != 10 || got["bob"] != 20 || len(got) != 2 {
		t.Fatalf("unexpected replay result: %+v", got)
	}
}

func TestReplayBlocksOnCorruptCheckpoint(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "game.wal")

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	// A checkpoint is only ever produced whole via doCheckpoint's
	// write-fsync-rename sequence, so any line that fails to decode
	// here signals real corruption rather than a crash-mid-write tail.
	if err := os.WriteFile(w.checkpointPath, []byte("garbage\tnot-a-number\t1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile checkpoint: %v", err)
	}

	if _, err := w.Replay(ctx); !errors.Is(err, ErrCorruptCheckpoint) {
		t.Fatalf("expected ErrCorruptCheckpoint, got %v", err)
	}
}

func TestReplayNoCheckpointIsNotAnError(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "game.wal")

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	if err := w.Append(ctx, Record{UserID: "alice", Score: 5, CTime: time.Now()}, nil); err != nil {
		t.Fatalf("Append: %v", err)
	}

	recs, err := w.Replay(ctx)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(recs) != 1 || recs[0].UserID != "alice" {
		t.Fatalf("unexpected replay result: %+v", recs)
	}
}

func TestAppendInvokesApplyInCommitOrder(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "game.wal")

	w, err := Open(path, WithBatchSize(1))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			apply := func() {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
			}
			if err := w.Append(ctx, Record{UserID: "user", Score: int64(i), CTime: time.Now()}, apply); err != nil {
				t.Errorf("Append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 20 {
		t.Fatalf("expected 20 apply calls, got %d", len(order))
	}

	recs, err := w.replayFile(path)
	if err != nil {
		t.Fatalf("replayFile: %v", err)
	}
	if len(recs) != len(order) {
		t.Fatalf("expected %d records in the log, got %d", len(order), len(recs))
	}
	for i, rec := range recs {
		if rec.Score != int64(order[i]) {
			t.Errorf("apply call %d ran for append %d, but log position %d holds append %d", i, order[i], i, rec.Score)
		}
	}
}

func TestAppendReturnsErrClosedAfterClose(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "game.wal")

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := w.Append(ctx, Record{UserID: "alice", Score: 1, CTime: time.Now()}, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
