// Package worker runs periodic background jobs.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one run of a periodic task.
type Job func(ctx context.Context) error

// Scheduler runs jobs on cron schedules. A run that is still going when its
// next tick comes is not started again.
type Scheduler struct {
	c   *cron.Cron
	log *slog.Logger
	ctx context.Context
}

func NewScheduler(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}

	l := cronLogger{log: log.With("component", "scheduler")}

	return &Scheduler{
		c: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		log: l.log,
		ctx: context.Background(),
	}
}

// Add registers job under name. spec accepts cron expressions and
// descriptors such as "@every 1m".
func (s *Scheduler) Add(name, spec string, job Job) error {
	const op = "worker.Scheduler.Add"

	_, err := s.c.AddFunc(spec, func() {
		start := time.Now()
		if err := job(s.ctx); err != nil {
			s.log.Error("job failed", "job", name, "err", err)
			return
		}
		s.log.Debug("job done", "job", name, "took", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, name, err)
	}

	return nil
}

// Run starts the schedule and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.c.Start()

	<-ctx.Done()

	<-s.c.Stop().Done()

	return nil
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append([]any{"err", err}, keysAndValues...)...)
}
