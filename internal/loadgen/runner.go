package loadgen

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/leaderboard/pkg/logger"
)

// Run drives a full load cycle: health check, submission fan-out, a
// leaderboard read-back, and a final ordering check.
func Run(ctx context.Context, cfg *Config) error {
	log := logger.Get().Named("loadgen")
	st := &stats{startedAt: time.Now()}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "checking service health")
	if status, err := c.getJSON(ctx, "/healthz", nil); err != nil || status != http.StatusOK {
		return fmt.Errorf("service health check failed: status=%d err=%v", status, err)
	}

	userIDs := generateUserIDs(cfg.NumUsers)
	submissions := make([]scoreRequest, 0, cfg.NumUsers*cfg.SubmitPerUsr)
	for round := 0; round < cfg.SubmitPerUsr; round++ {
		for i, userID := range userIDs {
			submissions = append(submissions, scoreRequest{
				GameID:          cfg.GameID,
				UserID:          userID,
				Score:           generateScore(),
				ClientRequestID: fmt.Sprintf("%s-%d-%d", userID, round, i),
			})
		}
	}

	log.Info(ctx, "submitting scores",
		logger.Int("submissions", len(submissions)),
		logger.Int("workers", cfg.Workers),
		logger.String("game_id", cfg.GameID))

	submitScores(ctx, cfg, c, submissions, st)
	st.finishedAt = time.Now()

	log.Info(ctx, "submission complete",
		logger.Int("submitted", int(st.submitted)),
		logger.Int("accepted", int(st.accepted)),
		logger.Int("duplicate", int(st.duplicate)),
		logger.Int("rejected_backpressure", int(st.rejected)),
		logger.Int("failed", int(st.failed)),
		logger.String("duration", st.finishedAt.Sub(st.startedAt).String()))

	if err := verifyLeaderboard(ctx, c, cfg); err != nil {
		return fmt.Errorf("leaderboard verification failed: %w", err)
	}

	log.Info(ctx, "load run finished successfully")
	return nil
}

// verifyLeaderboard fetches the top of the leaderboard and checks that
// rows are returned in non-increasing score order.
func verifyLeaderboard(ctx context.Context, c *client, cfg *Config) error {
	var rows []leaderboardRow
	status, err := c.getJSON(ctx, fmt.Sprintf("/leaderboard/v1/leaderboard/%s?limit=%d", cfg.GameID, cfg.TopN), &rows)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("unexpected status %d", status)
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Score > rows[i-1].Score {
			return fmt.Errorf("leaderboard out of order at rank %d: %d > %d", rows[i].Rank, rows[i].Score, rows[i-1].Score)
		}
	}
	return nil
}
