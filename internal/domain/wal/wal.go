package wal

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/leaderboard/pkg/logger"
	"github.com/okian/leaderboard/pkg/metrics"
)

// Record is a single durable WAL entry: the accepted (user_id, score)
// pair plus the acceptance timestamp. game_id is implied by the file
// and never stored.
type Record struct {
	UserID string
	Score  int64
	CTime  time.Time
}

// appendRequest is one caller's pending record, waiting on the group
// commit to cover it with a durable fsync. apply, if set, is invoked
// by the writer goroutine immediately after a successful commit and
// before any waiter is woken, so that callers racing to update the
// same key from different goroutines observe updates in WAL-commit
// order rather than whatever order their own goroutines happen to
// re-acquire an external lock in.
type appendRequest struct {
	rec    Record
	apply  func()
	respCh chan error
}

// checkpointRequest asks the run loop to pause new commits, compact
// the current state into a snapshot file, and truncate the live WAL.
type checkpointRequest struct {
	snapshot map[string]int64
	respCh   chan error
}

// WAL is a single game's write-ahead log: one append-only file, one
// logical serialized writer (a dedicated goroutine draining a bounded
// request channel), group-committing batches with a single fsync per
// batch. Modeled on a classic single-writer WAL with a group commit
// stage sitting in front of the durability boundary.
type WAL struct {
	path           string
	checkpointPath string

	file *os.File

	reqCh       chan *appendRequest
	checkpoints chan *checkpointRequest
	stopCh      chan struct{}
	doneCh      chan struct{}

	batchSize     int
	flushInterval time.Duration
	ringSize      int

	closed atomic.Bool
	mu     sync.Mutex // guards file handle swap during checkpoint/close

	logger logger.Logger
}

// Open opens (creating if necessary) the WAL file at path and starts
// its group-commit writer goroutine. The parent directory is created
// if missing.
func Open(path string, opts ...Option) (*WAL, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create data dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}

	w := &WAL{
		path:           path,
		checkpointPath: strings.TrimSuffix(path, filepath.Ext(path)) + ".checkpoint",
		file:           f,
		batchSize:      defaultBatchSize,
		flushInterval:  defaultFlushInterval,
		ringSize:       defaultRingSize,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
		checkpoints:    make(chan *checkpointRequest),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.reqCh = make(chan *appendRequest, w.ringSize)

	go w.run()
	return w, nil
}

// Append durably records rec, then invokes apply from within the WAL's
// single writer goroutine before returning. apply may be nil if the
// caller has no in-memory state to update. It returns only after the
// fsync covering rec's bytes (and apply, if any) has completed. Once
// accepted onto the internal queue, the append is not cancellable: ctx
// cancellation before acceptance aborts the call, but cancellation
// afterward has no effect — the record will still be committed (or the
// whole append will fail atomically for every request in its batch).
func (w *WAL) Append(ctx context.Context, rec Record, apply func()) error {
	if w.closed.Load() {
		return ErrClosed
	}

	req := &appendRequest{rec: rec, apply: apply, respCh: make(chan error, 1)}
	select {
	case w.reqCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	default:
		metrics.RecordWALQueueFull()
		return ErrQueueFull
	}

	return <-req.respCh
}

// run is the WAL's single logical writer: it owns the file handle and
// is the only goroutine that writes to it, batching concurrent
// appenders and issuing one fsync per batch.
func (w *WAL) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]*appendRequest, 0, w.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.commit(batch)
		batch = batch[:0]
	}

	drainPending := func() {
		for {
			select {
			case req := <-w.reqCh:
				batch = append(batch, req)
			default:
				flush()
				return
			}
		}
	}

	for {
		select {
		case req := <-w.reqCh:
			batch = append(batch, req)
			if len(batch) >= w.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case cp := <-w.checkpoints:
			// Barrier: drain everything already queued so the snapshot
			// reflects every acknowledged write before this point.
			drainPending()
			cp.respCh <- w.doCheckpoint(cp.snapshot)
		case <-w.stopCh:
			drainPending()
			return
		}
	}
}

// commit serializes and writes a batch in one contiguous write, issues
// a single fsync, then wakes every waiter with the shared outcome.
func (w *WAL) commit(batch []*appendRequest) {
	var buf bytes.Buffer
	for _, r := range batch {
		encodeInto(&buf, r.rec)
	}

	start := time.Now()
	_, err := w.file.Write(buf.Bytes())
	if err == nil {
		err = w.file.Sync()
	}
	metrics.RecordWALCommitLatency(float64(time.Since(start).Milliseconds()))
	metrics.RecordWALBatchSize(len(batch))

	if err == nil {
		for _, r := range batch {
			if r.apply != nil {
				r.apply()
			}
		}
	}

	for _, r := range batch {
		r.respCh <- err
	}
}

// encodeInto appends the wire form of rec to buf:
// "<user_id>\t<score>\t<ctime_epoch_millis>\n", escaping any delimiter
// characters that might appear in user_id.
func encodeInto(buf *bytes.Buffer, rec Record) {
	buf.WriteString(escape(rec.UserID))
	buf.WriteByte('\t')
	buf.WriteString(strconv.FormatInt(rec.Score, 10))
	buf.WriteByte('\t')
	buf.WriteString(strconv.FormatInt(rec.CTime.UnixMilli(), 10))
	buf.WriteByte('\n')
}

// escape guards against a user_id containing the record delimiter or
// the newline that terminates it, by backslash-escaping both plus the
// escape character itself.
func escape(s string) string {
	if !strings.ContainsAny(s, "\t\n\\") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// unescape reverses escape.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			case 't':
				b.WriteByte('\t')
				i++
				continue
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Replay reads the checkpoint (if present) and the live WAL file, in
// that order, and returns every record. Malformed trailing records in
// the live WAL — the signature of a crash mid-write — are skipped with
// a logged warning rather than aborting recovery. A missing WAL file
// yields an empty tail. A checkpoint that fails its integrity check is
// fatal to recovery: it may be silently missing records, so falling
// back to a replay that ignores it could resurrect stale scores for
// every user compacted into it.
func (w *WAL) Replay(ctx context.Context) ([]Record, error) {
	var out []Record

	snap, err := w.loadCheckpoint()
	if err != nil {
		return nil, fmt.Errorf("shard checkpoint: %w", err)
	}
	for userID, score := range snap {
		out = append(out, Record{UserID: userID, Score: score})
	}

	tail, err := w.replayFile(w.path)
	if err != nil {
		return nil, err
	}
	out = append(out, tail...)
	return out, nil
}

// replayFile scans a single newline-delimited WAL file, tolerating a
// truncated trailing record.
func (w *WAL) replayFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wal: open %s for replay: %w", path, err)
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		rec, ok := decodeLine(line)
		if !ok {
			if w.logger != nil {
				w.logger.Warn(context.Background(), "skipping malformed WAL record", logger.String("line", line))
			}
			continue
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("wal: scan %s: %w", path, err)
	}
	return out, nil
}

// decodeLine parses one WAL record line, tolerating unescaped-delimiter
// or truncated tails by rejecting anything that doesn't cleanly split
// into exactly three fields with a parseable score and ctime.
func decodeLine(line string) (Record, bool) {
	parts := strings.Split(line, "\t")
	if len(parts) != 3 {
		return Record{}, false
	}
	score, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Record{}, false
	}
	millis, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Record{}, false
	}
	return Record{
		UserID: unescape(parts[0]),
		Score:  score,
		CTime:  time.UnixMilli(millis),
	}, true
}

// Checkpoint compacts snapshot (the caller's current user->score view)
// into a durable checkpoint file, then truncates the live WAL. The
// operation is atomic from an external observer's perspective: the
// temp file is written, fsynced, and renamed into place before the WAL
// is truncated, so a crash at any point leaves either the old WAL
// intact or the new checkpoint plus an empty WAL — never a half state.
func (w *WAL) Checkpoint(ctx context.Context, snapshot map[string]int64) error {
	if w.closed.Load() {
		return ErrClosed
	}
	req := &checkpointRequest{snapshot: snapshot, respCh: make(chan error, 1)}
	select {
	case w.checkpoints <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.respCh
}

func (w *WAL) doCheckpoint(snapshot map[string]int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tmpPath := w.checkpointPath + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("wal: create checkpoint tmp: %w", err)
	}

	var buf bytes.Buffer
	for userID, score := range snapshot {
		encodeInto(&buf, Record{UserID: userID, Score: score, CTime: time.Time{}})
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("wal: write checkpoint tmp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("wal: fsync checkpoint tmp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("wal: close checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, w.checkpointPath); err != nil {
		return fmt.Errorf("wal: rename checkpoint into place: %w", err)
	}
	if dir, err := os.Open(filepath.Dir(w.checkpointPath)); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}

	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("wal: truncate live wal: %w", err)
	}
	if _, err := w.file.Seek(0, 0); err != nil {
		return fmt.Errorf("wal: seek live wal: %w", err)
	}

	metrics.IncrementWALCheckpointCount()
	return nil
}

// loadCheckpoint loads and validates the checkpoint file if present.
// A nil, nil return means no checkpoint exists yet (not an error).
//
// Unlike the live WAL's tail, a checkpoint is written whole, fsynced,
// and renamed into place by doCheckpoint before it is ever read back —
// it should never contain a malformed line. Any line that fails to
// decode here is therefore treated as a genuine integrity failure
// (disk corruption, truncated copy, foreign contents), not a benign
// crash-mid-write tail, and reported as ErrCorruptCheckpoint.
func (w *WAL) loadCheckpoint() (map[string]int64, error) {
	f, err := os.Open(w.checkpointPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open checkpoint %s: %w", w.checkpointPath, err)
	}
	defer f.Close()

	snap := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		rec, ok := decodeLine(line)
		if !ok {
			return nil, fmt.Errorf("%w: malformed record in %s", ErrCorruptCheckpoint, w.checkpointPath)
		}
		snap[rec.UserID] = rec.Score
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", ErrCorruptCheckpoint, w.checkpointPath, err)
	}
	return snap, nil
}

// Close stops the writer goroutine, flushing any buffered batch, and
// closes the underlying file.
func (w *WAL) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
