/**
 * @description
 * Scheduled job implementations: the loan payment sweep and the savings
 * goal deadline sweep. Every step is status-conditioned in the store, so
 * an overlapping or repeated run converges on the same state.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/hearthpay/ledger-service/internal/domain"
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	svc    *Service
	logger *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(svc *Service, logger *slog.Logger) *Jobs {
	return &Jobs{svc: svc, logger: logger}
}

// ProcessLoanSweep marks scheduled payments missed once they are past due
// by more than the grace period, and defaults any loan whose trailing run
// of consecutive missed payments reaches the configured threshold.
func (j *Jobs) ProcessLoanSweep() {
	j.logger.Info("starting loan payment sweep")
	ctx := context.Background()

	cutoff := time.Now().AddDate(0, 0, -j.svc.graceDays)
	payments, err := j.svc.repo.FindOverdueScheduledPayments(ctx, cutoff)
	if err != nil {
		j.logger.Error("failed to find overdue payments", "error", err)
		return
	}
	if len(payments) == 0 {
		j.logger.Info("no overdue payments to process")
		return
	}
	j.logger.Info("found overdue payments", "count", len(payments))

	for _, payment := range payments {
		marked, err := j.svc.repo.MarkPaymentMissed(ctx, payment.ID)
		if err != nil {
			j.logger.Error("failed to mark payment missed", "payment_id", payment.ID, "error", err)
			continue
		}
		if !marked {
			// A concurrent run or a repayment already moved this row.
			continue
		}
		j.logger.Info("marked payment missed", "payment_id", payment.ID, "loan_id", payment.LoanID, "due_date", payment.DueDate)

		missed, err := j.svc.repo.CountTrailingMissedPayments(ctx, payment.LoanID)
		if err != nil {
			j.logger.Error("failed to count missed payments", "loan_id", payment.LoanID, "error", err)
			continue
		}
		if missed < j.svc.defaultAfter {
			continue
		}

		defaulted, err := j.svc.repo.MarkLoanDefaulted(ctx, payment.LoanID)
		if err != nil {
			j.logger.Error("failed to default loan", "loan_id", payment.LoanID, "error", err)
			continue
		}
		if !defaulted {
			continue
		}
		j.logger.Info("loan defaulted", "loan_id", payment.LoanID, "consecutive_missed", missed)

		loan, err := j.svc.repo.FindLoanByID(ctx, payment.LoanID)
		if err != nil {
			j.logger.Error("failed to load defaulted loan", "loan_id", payment.LoanID, "error", err)
			continue
		}
		j.svc.recordTrustEvent(ctx, loan.BorrowerID, loan.FamilyID,
			domain.EventLoanDefaulted, domain.DeltaLoanDefaulted)
	}

	j.logger.Info("loan payment sweep finished")
}

// ProcessGoalDeadlines cancels active savings goals whose deadline passed
// without the target being reached.
func (j *Jobs) ProcessGoalDeadlines() {
	j.logger.Info("starting goal deadline sweep")
	ctx := context.Background()

	goals, err := j.svc.repo.FindActiveGoalsPastDeadline(ctx, time.Now())
	if err != nil {
		j.logger.Error("failed to find expired goals", "error", err)
		return
	}
	if len(goals) == 0 {
		j.logger.Info("no expired goals to process")
		return
	}
	j.logger.Info("found expired goals", "count", len(goals))

	for _, goal := range goals {
		if _, err := j.svc.repo.CancelGoal(ctx, goal.ID); err != nil {
			j.logger.Error("failed to cancel expired goal", "goal_id", goal.ID, "error", err)
			continue
		}
		j.logger.Info("cancelled expired goal", "goal_id", goal.ID, "user_id", goal.UserID)
	}

	j.logger.Info("goal deadline sweep finished")
}
