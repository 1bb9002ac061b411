// Package scheduler drives the Sync Manager on a fixed tick, the way
// the teacher's internal/task/scheduler.TaskReminderScheduler drives
// reminder checks: run once immediately, then again every interval,
// until Stop is called.
package scheduler

import (
	"context"
	"time"

	syncusecase "github.com/syncorch/syncd/internal/syncmanager/usecase"
	"github.com/syncorch/syncd/pkg/logging"
)

// Scheduler ticks the Sync Manager's DiscoverAndSyncAll on a fixed
// interval.
type Scheduler struct {
	manager  *syncusecase.Manager
	interval time.Duration
	log      *logging.Logger
	stopChan chan struct{}
}

func New(manager *syncusecase.Manager, interval time.Duration) *Scheduler {
	return &Scheduler{
		manager:  manager,
		interval: interval,
		log:      logging.New("SyncScheduler"),
		stopChan: make(chan struct{}),
	}
}

// Start runs DiscoverAndSyncAll immediately, then on every tick, until
// Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Printf("starting sync scheduler (interval: %s)", s.interval)

	go func() {
		s.manager.DiscoverAndSyncAll(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.manager.DiscoverAndSyncAll(ctx)
			case <-ctx.Done():
				s.log.Printf("sync scheduler stopped: %v", ctx.Err())
				return
			case <-s.stopChan:
				s.log.Printf("sync scheduler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	close(s.stopChan)
}
