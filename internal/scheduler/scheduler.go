// Package scheduler runs the background sweeps that close out abandoned
// passes. Tasks tick on an interval with a little jitter so replicas sharing
// a database do not sweep in lockstep.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// Task is a named recurring job.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Runner drives one task on its schedule until the context ends.
type Runner struct {
	task     Task
	interval time.Duration
	jitter   time.Duration
	logger   *slog.Logger
}

func NewRunner(task Task, interval, jitter time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{task: task, interval: interval, jitter: jitter, logger: logger}
}

// Run blocks until ctx is cancelled. A failing tick is logged and the
// schedule continues; the sweep is idempotent so the next tick catches up.
func (r *Runner) Run(ctx context.Context) error {
	timer := time.NewTimer(r.next())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if err := r.task.Run(ctx); err != nil {
				r.logger.ErrorContext(ctx, "scheduled task failed",
					"task", r.task.Name,
					"error", err,
				)
			}
			timer.Reset(r.next())
		}
	}
}

func (r *Runner) next() time.Duration {
	d := r.interval
	if r.jitter > 0 {
		d += time.Duration(rand.Int63n(int64(r.jitter)))
	}
	return d
}
