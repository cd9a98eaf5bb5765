package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/okian/leaderboard/pkg/logger"
)

// client wraps http.Client with a fixed timeout and JSON helpers.
type client struct {
	http *http.Client
	base string
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		http: &http.Client{Timeout: timeout},
		base: baseURL,
	}
}

func (c *client) postJSON(ctx context.Context, path string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if out != nil && len(data) > 0 {
		_ = json.Unmarshal(data, out)
	}
	return resp.StatusCode, nil
}

func (c *client) getJSON(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if out != nil && len(data) > 0 {
		_ = json.Unmarshal(data, out)
	}
	return resp.StatusCode, nil
}

// submitScores fans a submission list out across cfg.Workers goroutines,
// recording accept/duplicate/backpressure/failure counts in st.
func submitScores(ctx context.Context, cfg *Config, c *client, submissions []scoreRequest, st *stats) {
	work := make(chan scoreRequest, cfg.Workers*2)

	log := logger.Get().Named("loadgen")
	done := make(chan struct{})
	for i := 0; i < cfg.Workers; i++ {
		go func() {
			for req := range work {
				submitOne(ctx, c, req, st)
				if cfg.Verbose {
					log.Info(ctx, "score submitted",
						logger.String("user_id", req.UserID),
						logger.Int64("score", req.Score))
				}
			}
			done <- struct{}{}
		}()
	}

	for _, s := range submissions {
		work <- s
	}
	close(work)

	for i := 0; i < cfg.Workers; i++ {
		<-done
	}
}

func submitOne(ctx context.Context, c *client, req scoreRequest, st *stats) {
	atomic.AddInt64(&st.submitted, 1)

	var ack ackResponse
	status, err := c.postJSON(ctx, "/leaderboard/v1/score", req, &ack)
	switch {
	case err != nil:
		atomic.AddInt64(&st.failed, 1)
	case status == http.StatusServiceUnavailable:
		atomic.AddInt64(&st.rejected, 1)
	case status == http.StatusAccepted:
		atomic.AddInt64(&st.accepted, 1)
	case status == http.StatusOK && ack.Duplicate:
		atomic.AddInt64(&st.duplicate, 1)
	default:
		atomic.AddInt64(&st.failed, 1)
	}
}
