// Package loadgen drives concurrent score submissions against a running
// leaderboard service to exercise the ingestion pipeline end to end,
// including its backpressure behavior under a saturated queue.
package loadgen

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL      string        // base URL of the service, e.g. http://localhost:9080
	GameID       string        // game_id all generated submissions target
	NumUsers     int           // number of distinct user_ids to generate
	SubmitPerUsr int           // score submissions per user
	Workers      int           // number of concurrent submit workers
	Timeout      time.Duration // HTTP request timeout
	TopN         int           // number of leaderboard entries to fetch when verifying
	Verbose      bool          // enable verbose per-request logging
}

// scoreRequest mirrors the wire schema for POST /leaderboard/v1/score.
type scoreRequest struct {
	GameID          string `json:"game_id"`
	UserID          string `json:"user_id"`
	Score           int64  `json:"score"`
	ClientRequestID string `json:"client_request_id"`
}

// ackResponse mirrors the response body for POST /leaderboard/v1/score.
type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// leaderboardRow mirrors a single entry returned by the leaderboard endpoint.
type leaderboardRow struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Score  int64  `json:"score"`
}

// stats accumulates run statistics, updated with atomic counters in http.go.
type stats struct {
	submitted  int64
	accepted   int64
	duplicate  int64
	rejected   int64
	failed     int64
	startedAt  time.Time
	finishedAt time.Time
}
