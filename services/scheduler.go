// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartRescueSweep recomputes rescue windows of running matches every interval, covering
// pointer changes written by other tools. Callers own Shutdown of the returned scheduler.
func (s *RescueService) StartRescueSweep(interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()

			n, err := s.SweepInProgressMatches(ctx)
			if err != nil {
				log.Printf("[Scheduler] rescue sweep error: %v", err)
				return
			}
			if n > 0 {
				log.Printf("[Scheduler] rescue windows recomputed for %d running matches", n)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	return sched, nil
}
