// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// SubmitScore validates idempotency and enqueues a submission for
	// asynchronous ingestion. Returns true if newly accepted.
	SubmitScore(ctx context.Context, submission model.ScoreSubmission) (bool, error)

	// TopK returns the k highest-ranked rows for a game.
	TopK(ctx context.Context, gameID string, k int) ([]types.LeaderboardRow, error)

	// Rank returns the rank and score for a single user within a game.
	Rank(ctx context.Context, gameID, userID string) (types.LeaderboardRow, error)
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.LeaderboardRow

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	scoreHandler       *ScoreHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxTopK int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		scoreHandler:       NewScoreHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxTopK),
		rankHandler:        NewRankHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux, deps Dependencies) {
	_ = ctx
	_ = deps
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /leaderboard/v1/score", MetricsMiddleware(s.scoreHandler.HandlePostScore, "score"))
	mux.HandleFunc("GET /leaderboard/v1/leaderboard/{game_id}", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /leaderboard/v1/rank/{game_id}/{user_id}", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
}

// scoreRequest mirrors the wire schema for POST /leaderboard/v1/score.
type scoreRequest struct {
	GameID          string `json:"game_id"`
	UserID          string `json:"user_id"`
	Score           int64  `json:"score"`
	ClientRequestID string `json:"client_request_id"`
}

func (req scoreRequest) validate() error {
	switch {
	case strings.TrimSpace(req.GameID) == "":
		return fmt.Errorf("%w: missing game_id", ErrBadRequest)
	case strings.TrimSpace(req.UserID) == "":
		return fmt.Errorf("%w: missing user_id", ErrBadRequest)
	}
	return nil
}

func (req scoreRequest) toSubmission() model.ScoreSubmission {
	return model.ScoreSubmission{
		GameID:          req.GameID,
		UserID:          req.UserID,
		Score:           req.Score,
		ClientRequestID: req.ClientRequestID,
	}
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// isNotFound translates upstream not-found sentinels to a 404 response.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}
