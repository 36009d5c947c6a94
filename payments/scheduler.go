// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/evannetwork/smartagent/lib/clock"
	"github.com/evannetwork/smartagent/lib/cron"
)

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Agent string

	// Schedule is a five-field cron expression evaluated in UTC.
	Schedule string

	Manager *Manager

	// Timeout bounds one check. Zero means unbounded.
	Timeout time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Scheduler runs a Manager's check immediately and then on every
// schedule occurrence. Checks never overlap, and a failed check is
// logged without affecting later ones.
type Scheduler struct {
	runner *cron.Runner
}

// NewScheduler parses the schedule and returns a Scheduler.
func NewScheduler(config SchedulerConfig) (*Scheduler, error) {
	if config.Manager == nil {
		return nil, errors.New("payments: scheduler requires a manager")
	}
	schedule, err := cron.Parse(config.Schedule)
	if err != nil {
		return nil, fmt.Errorf("payments: schedule for agent %q: %w", config.Agent, err)
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	manager := config.Manager
	timeout := config.Timeout
	runner, err := cron.NewRunner(cron.RunnerConfig{
		Name:     "payment-check",
		Schedule: schedule,
		Clock:    clk,
		Logger:   logger.With("agent", config.Agent),
		Job: func(ctx context.Context) error {
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return manager.CheckChannels(ctx)
		},
	})
	if err != nil {
		return nil, err
	}
	return &Scheduler{runner: runner}, nil
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	return s.runner.Run(ctx)
}
