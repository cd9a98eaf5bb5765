package loadgen

import "os"

// ShowHelp prints usage information for the load generator.
func ShowHelp() {
	os.Stdout.WriteString(`leaderboard load generator
==========================

Drives concurrent score submissions against a running leaderboard
service to exercise the ingestion pipeline, including its backpressure
behavior under a saturated queue.

Usage:
  go run cmd/loadgen/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -game string
        game_id all submissions target (default "loadtest")
  -users int
        Number of distinct user_ids to generate (default 1000)
  -rounds int
        Score submissions per user (default 5)
  -workers int
        Number of concurrent submit workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 5s)
  -top int
        Number of leaderboard entries to verify (default 50)
  -verbose
        Enable verbose logging
  -help
        Show this help message
`)
}
