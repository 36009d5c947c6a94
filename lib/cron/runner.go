// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/evannetwork/smartagent/lib/clock"
)

// Job is one execution of a scheduled task.
type Job func(ctx context.Context) error

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Name identifies the job in log output.
	Name string

	Schedule Schedule
	Job      Job
	Clock    clock.Clock

	// Logger receives job failures. Nil means slog.Default().
	Logger *slog.Logger
}

// Runner executes a Job immediately and then at every schedule
// occurrence. Failures and panics are logged and never stop the loop.
type Runner struct {
	name     string
	schedule Schedule
	job      Job
	clock    clock.Clock
	logger   *slog.Logger
}

// NewRunner validates the configuration and returns a Runner.
func NewRunner(config RunnerConfig) (*Runner, error) {
	if config.Job == nil {
		return nil, errors.New("cron: runner requires a job")
	}
	if config.Clock == nil {
		return nil, errors.New("cron: runner requires a clock")
	}
	if config.Schedule.minutes == 0 {
		return nil, errors.New("cron: runner requires a parsed schedule")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		name:     config.Name,
		schedule: config.Schedule,
		job:      config.Job,
		clock:    config.Clock,
		logger:   logger.With("job", config.Name, "schedule", config.Schedule.String()),
	}, nil
}

// Run blocks until ctx is cancelled. Jobs run on the calling
// goroutine, so a run always completes before the next one is
// scheduled. The next occurrence is computed from the time a run
// finishes; occurrences that elapsed during a run are skipped.
func (r *Runner) Run(ctx context.Context) error {
	for {
		r.runOnce(ctx)

		now := r.clock.Now()
		next, err := r.schedule.Next(now)
		if err != nil {
			return err
		}
		r.logger.Debug("next run scheduled", "at", next)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(next.Sub(now)):
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("scheduled job panicked", "panic", fmt.Sprint(recovered))
		}
	}()
	if err := r.job(ctx); err != nil {
		r.logger.Error("scheduled job failed", "error", err)
	}
}
