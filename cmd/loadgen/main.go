package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/leaderboard/internal/loadgen"
	"github.com/okian/leaderboard/pkg/logger"
)

const (
	defaultUsers      = 1000
	defaultRounds     = 5
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultTimeout    = 5 * time.Second
	defaultTopN       = 50
	defaultRunTimeout = 5 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		gameID   = flag.String("game", "loadtest", "game_id all submissions target")
		users    = flag.Int("users", defaultUsers, "Number of distinct user_ids to generate")
		rounds   = flag.Int("rounds", defaultRounds, "Score submissions per user")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submit workers")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		topN     = flag.Int("top", defaultTopN, "Number of leaderboard entries to verify")
		verbose  = flag.Bool("verbose", false, "Enable verbose logging")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := &loadgen.Config{
		BaseURL:      *baseURL,
		GameID:       *gameID,
		NumUsers:     *users,
		SubmitPerUsr: *rounds,
		Workers:      *workers,
		Timeout:      *timeout,
		TopN:         *topN,
		Verbose:      *verbose,
	}

	if err := loadgen.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("load run failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
