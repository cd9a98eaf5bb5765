package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	service "github.com/okian/leaderboard/internal/app"
	"github.com/okian/leaderboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service with full integration", t, func() {
		svc := service.New(
			service.WithWorkerCount(2),
			service.WithQueueSize(1000),
			service.WithDedupeSize(500),
			service.WithDataDir(t.TempDir()),
		)
		defer svc.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		Convey("When starting the service", func() {
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
			})

			Convey("And the service should be running", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
			})
		})

		Convey("When processing submissions end-to-end", func() {
			err := svc.Start(ctx)
			So(err, ShouldBeNil)
			time.Sleep(100 * time.Millisecond)

			Convey("And submitting scores for multiple users", func() {
				submissions := []model.ScoreSubmission{
					{GameID: "game-1", UserID: "user-1", Score: 85, ClientRequestID: "s-1"},
					{GameID: "game-1", UserID: "user-2", Score: 90, ClientRequestID: "s-2"},
					{GameID: "game-1", UserID: "user-3", Score: 95, ClientRequestID: "s-3"},
				}

				for _, s := range submissions {
					accepted, err := svc.SubmitScore(ctx, s)
					So(err, ShouldBeNil)
					So(accepted, ShouldBeTrue)
				}

				time.Sleep(500 * time.Millisecond)

				Convey("Then the leaderboard should reflect the updates", func() {
					rows, err := svc.TopK(ctx, "game-1", 10)
					So(err, ShouldBeNil)
					So(len(rows), ShouldBeGreaterThan, 0)

					for i := 1; i < len(rows); i++ {
						So(rows[i-1].Score, ShouldBeGreaterThanOrEqualTo, rows[i].Score)
					}
				})

				Convey("And a duplicate submission should be ignored", func() {
					accepted, err := svc.SubmitScore(ctx, submissions[0])
					So(err, ShouldBeNil)
					So(accepted, ShouldBeFalse)
				})

				Convey("And individual ranks should be available", func() {
					row, err := svc.Rank(ctx, "game-1", "user-3")
					So(err, ShouldBeNil)
					So(row.UserID, ShouldEqual, "user-3")
					So(row.Score, ShouldEqual, 95)
					So(row.Rank, ShouldBeGreaterThan, 0)
				})
			})
		})

		Convey("When handling high-volume submissions", func() {
			err := svc.Start(ctx)
			So(err, ShouldBeNil)
			time.Sleep(100 * time.Millisecond)

			Convey("And submitting many scores concurrently", func() {
				const numSubmissions = 100
				successCount := 0
				for i := 0; i < numSubmissions; i++ {
					sub := model.ScoreSubmission{
						GameID:          "game-bulk",
						UserID:          fmt.Sprintf("user-%d", i%10),
						Score:           int64(50 + i%50),
						ClientRequestID: fmt.Sprintf("bulk-%d", i),
					}
					if accepted, err := svc.SubmitScore(ctx, sub); err == nil && accepted {
						successCount++
					}
				}

				Convey("Then most submissions should be accepted", func() {
					So(successCount, ShouldBeGreaterThan, numSubmissions/2)
				})

				time.Sleep(1 * time.Second)

				Convey("And the leaderboard should reflect multiple users", func() {
					rows, err := svc.TopK(ctx, "game-bulk", 20)
					So(err, ShouldBeNil)
					So(len(rows), ShouldBeGreaterThan, 0)

					userIDs := make(map[string]bool)
					for _, row := range rows {
						userIDs[row.UserID] = true
					}
					So(len(userIDs), ShouldBeGreaterThan, 1)
				})
			})
		})

		Convey("When handling service lifecycle", func() {
			Convey("And starting and stopping multiple times", func() {
				err := svc.Start(ctx)
				So(err, ShouldBeNil)
				time.Sleep(100 * time.Millisecond)

				svc.Stop()
				time.Sleep(100 * time.Millisecond)

				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, false)
			})
		})
	})
}

func TestServiceConcurrency(t *testing.T) {
	Convey("Given a service with concurrent operations", t, func() {
		svc := service.New(
			service.WithWorkerCount(4),
			service.WithQueueSize(2000),
			service.WithDedupeSize(1000),
			service.WithDataDir(t.TempDir()),
		)
		defer svc.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := svc.Start(ctx)
		So(err, ShouldBeNil)
		time.Sleep(100 * time.Millisecond)

		Convey("When multiple goroutines submit scores concurrently", func() {
			const numGoroutines = 10
			const submissionsPerGoroutine = 50
			done := make(chan bool, numGoroutines)

			for i := 0; i < numGoroutines; i++ {
				go func(goroutineID int) {
					for j := 0; j < submissionsPerGoroutine; j++ {
						sub := model.ScoreSubmission{
							GameID:          "game-concurrent",
							UserID:          fmt.Sprintf("user-%d", goroutineID),
							Score:           int64(50 + j),
							ClientRequestID: fmt.Sprintf("concurrent-%d-%d", goroutineID, j),
						}
						_, _ = svc.SubmitScore(ctx, sub)
					}
					done <- true
				}(i)
			}

			for i := 0; i < numGoroutines; i++ {
				<-done
			}

			time.Sleep(2 * time.Second)

			Convey("Then all submissions should be reflected", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)

				rows, err := svc.TopK(ctx, "game-concurrent", 100)
				So(err, ShouldBeNil)
				So(len(rows), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When multiple goroutines query the leaderboard concurrently", func() {
			_, _ = svc.SubmitScore(ctx, model.ScoreSubmission{GameID: "game-read", UserID: "seed", Score: 1, ClientRequestID: "seed-1"})
			time.Sleep(100 * time.Millisecond)

			const numGoroutines = 20
			done := make(chan bool, numGoroutines)
			errs := make(chan error, numGoroutines*10)

			for i := 0; i < numGoroutines; i++ {
				go func() {
					for j := 0; j < 10; j++ {
						rows, err := svc.TopK(ctx, "game-read", 10)
						if err != nil {
							errs <- err
							continue
						}
						if len(rows) > 0 {
							if _, err := svc.Rank(ctx, "game-read", rows[0].UserID); err != nil {
								errs <- err
							}
						}
					}
					done <- true
				}()
			}

			for i := 0; i < numGoroutines; i++ {
				<-done
			}

			Convey("Then all queries should succeed", func() {
				select {
				case err := <-errs:
					So(err, ShouldBeNil)
				default:
					So(true, ShouldBeTrue)
				}
			})
		})
	})
}

func TestServiceErrorHandling(t *testing.T) {
	Convey("Given a service with error conditions", t, func() {
		svc := service.New(
			service.WithWorkerCount(1),
			service.WithQueueSize(10),
			service.WithDedupeSize(5),
			service.WithDataDir(t.TempDir()),
		)
		defer svc.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := svc.Start(ctx)
		So(err, ShouldBeNil)
		time.Sleep(100 * time.Millisecond)

		Convey("When submitting beyond queue capacity", func() {
			successCount := 0
			for i := 0; i < 40; i++ {
				sub := model.ScoreSubmission{
					GameID:          "game-backpressure",
					UserID:          fmt.Sprintf("user-%d", i),
					Score:           int64(50 + i),
					ClientRequestID: fmt.Sprintf("backpressure-%d", i),
				}
				if accepted, err := svc.SubmitScore(ctx, sub); err == nil && accepted {
					successCount++
				}
			}

			Convey("Then some submissions should be rejected due to backpressure", func() {
				So(successCount, ShouldBeLessThanOrEqualTo, 40)
			})
		})

		Convey("When querying a non-existent game", func() {
			_, err := svc.Rank(ctx, "no-such-game", "ghost")

			Convey("Then it should return an error", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestServicePerformance(t *testing.T) {
	Convey("Given a service for performance testing", t, func() {
		svc := service.New(
			service.WithWorkerCount(8),
			service.WithQueueSize(10000),
			service.WithDedupeSize(5000),
			service.WithDataDir(t.TempDir()),
		)
		defer svc.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := svc.Start(ctx)
		So(err, ShouldBeNil)
		time.Sleep(100 * time.Millisecond)

		Convey("When processing a large number of submissions", func() {
			const numSubmissions = 1000
			start := time.Now()

			for i := 0; i < numSubmissions; i++ {
				sub := model.ScoreSubmission{
					GameID:          "game-perf",
					UserID:          fmt.Sprintf("user-%d", i%100),
					Score:           int64(50 + i%50),
					ClientRequestID: fmt.Sprintf("perf-%d", i),
				}
				_, _ = svc.SubmitScore(ctx, sub)
			}

			submitTime := time.Since(start)
			time.Sleep(2 * time.Second)

			Convey("Then submitting should be fast", func() {
				So(submitTime, ShouldBeLessThan, 5*time.Second)
			})

			Convey("And leaderboard queries should be fast", func() {
				start := time.Now()
				rows, err := svc.TopK(ctx, "game-perf", 100)
				queryTime := time.Since(start)

				So(err, ShouldBeNil)
				So(len(rows), ShouldBeGreaterThan, 0)
				So(queryTime, ShouldBeLessThan, 100*time.Millisecond)
			})

			Convey("And rank queries should be fast", func() {
				start := time.Now()
				row, err := svc.Rank(ctx, "game-perf", "user-0")
				queryTime := time.Since(start)

				So(err, ShouldBeNil)
				So(row.UserID, ShouldEqual, "user-0")
				So(queryTime, ShouldBeLessThan, 100*time.Millisecond)
			})
		})
	})
}
