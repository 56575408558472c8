// Package scheduler runs periodic background jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps cron-based jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New returns a stopped scheduler evaluating schedules in loc.
func New(loc *time.Location, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc), cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
	}
}

// ScheduleInterval registers job to run every interval. Each run gets a
// context bounded by timeout. Overlapping runs are skipped.
func (s *Scheduler) ScheduleInterval(name string, interval, timeout time.Duration, job func(ctx context.Context) error) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	schedule := fmt.Sprintf("@every %ds", seconds)
	return s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		started := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error("scheduled job failed", slog.String("job", name), slog.String("error", err.Error()))
			return
		}
		s.logger.Debug("scheduled job done", slog.String("job", name), slog.Duration("took", time.Since(started)))
	})
}

// Start runs the scheduled jobs in the background until Stop.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
