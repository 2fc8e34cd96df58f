// Package scheduler runs the full harvest cycle on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job represents a scheduled task
type Job func(ctx context.Context) error

// jobTimeout bounds a single run of any job.
const jobTimeout = 30 * time.Minute

// Scheduler manages periodic tasks
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]cron.EntryID
	baseCtx context.Context
	logger  *zap.Logger
}

// New creates a new scheduler. Every job run gets a context derived from
// ctx, so cancelling it aborts in-flight jobs.
func New(ctx context.Context, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		jobs:    make(map[string]cron.EntryID),
		baseCtx: ctx,
		logger:  logger,
	}
}

// AddJob adds a job with a cron schedule
// schedule format: "0 */6 * * *" (every six hours)
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(s.baseCtx, jobTimeout)
		defer cancel()

		s.logger.Info("starting job", zap.String("job", name))
		start := time.Now()

		if err := job(ctx); err != nil {
			s.logger.Error("job failed", zap.String("job", name), zap.Error(err))
		} else {
			s.logger.Info("job completed",
				zap.String("job", name),
				zap.Duration("took", time.Since(start)))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}

	s.jobs[name] = entryID
	s.logger.Info("job scheduled", zap.String("job", name), zap.String("schedule", schedule))
	return nil
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and returns a context that closes once running
// jobs have drained.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
