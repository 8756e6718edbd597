/**
 * @description
 * Cron scheduler setup for the loan and goal sweeps.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/hearthpay/ledger-service/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.LoanSweepSchedule, s.jobs.ProcessLoanSweep); err != nil {
		s.logger.Error("failed to schedule loan sweep job", "error", err)
	} else {
		s.logger.Info("scheduled loan sweep job", "schedule", s.config.LoanSweepSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.GoalDeadlineSchedule, s.jobs.ProcessGoalDeadlines); err != nil {
		s.logger.Error("failed to schedule goal deadline job", "error", err)
	} else {
		s.logger.Info("scheduled goal deadline job", "schedule", s.config.GoalDeadlineSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
