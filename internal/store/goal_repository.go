/**
 * @description
 * PostgreSQL implementation of savings goals. Progress updates are
 * status-conditioned so a goal completes exactly once; goal-tagged transfer
 * contributions share the journal transaction via addGoalProgressInTx.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/hearthpay/ledger-service/internal/domain"
)

const goalColumns = `id, user_id, account_id, name, target_amount, current_amount, deadline, status, completed_at, created_at, updated_at`

func scanGoal(row pgx.Row) (*domain.SavingsGoal, error) {
	var g domain.SavingsGoal
	err := row.Scan(
		&g.ID, &g.UserID, &g.AccountID, &g.Name, &g.TargetAmount, &g.CurrentAmount,
		&g.Deadline, &g.Status, &g.CompletedAt, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrGoalNotFound
		}
		return nil, err
	}
	return &g, nil
}

// CreateGoal stores a new active goal.
func (r *PostgresRepository) CreateGoal(ctx context.Context, goal *domain.SavingsGoal) error {
	query := `
		INSERT INTO savings_goals (id, user_id, account_id, name, target_amount, current_amount, deadline, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		goal.ID, goal.UserID, goal.AccountID, goal.Name, goal.TargetAmount, goal.Deadline, domain.GoalActive,
	).Scan(&goal.CreatedAt, &goal.UpdatedAt)
}

// FindGoalByID retrieves one goal.
func (r *PostgresRepository) FindGoalByID(ctx context.Context, goalID uuid.UUID) (*domain.SavingsGoal, error) {
	return scanGoal(r.db.QueryRow(ctx, `SELECT `+goalColumns+` FROM savings_goals WHERE id = $1`, goalID))
}

// ListGoalsByUser returns a user's goals, newest first.
func (r *PostgresRepository) ListGoalsByUser(ctx context.Context, userID uuid.UUID) ([]domain.SavingsGoal, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+goalColumns+` FROM savings_goals WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []domain.SavingsGoal
	for rows.Next() {
		var g domain.SavingsGoal
		if err := rows.Scan(&g.ID, &g.UserID, &g.AccountID, &g.Name, &g.TargetAmount, &g.CurrentAmount, &g.Deadline, &g.Status, &g.CompletedAt, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// UpdateGoalProgress sets the goal's current amount and completes it when
// the target is reached. Updating an already-completed goal is a no-op that
// returns the goal unchanged, so replayed updates emit nothing twice.
func (r *PostgresRepository) UpdateGoalProgress(ctx context.Context, goalID uuid.UUID, newCurrentAmount int64) (*GoalProgressResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	goal, err := scanGoal(tx.QueryRow(ctx,
		`SELECT `+goalColumns+` FROM savings_goals WHERE id = $1 FOR UPDATE`, goalID))
	if err != nil {
		return nil, err
	}
	if goal.Status != domain.GoalActive {
		return &GoalProgressResult{Goal: goal, CompletedNow: false}, nil
	}

	status := domain.GoalActive
	var completedAt *time.Time
	completedNow := false
	if newCurrentAmount >= goal.TargetAmount {
		status = domain.GoalCompleted
		now := time.Now()
		completedAt = &now
		completedNow = true
	}

	updated, err := scanGoal(tx.QueryRow(ctx,
		`UPDATE savings_goals SET current_amount = $1, status = $2, completed_at = $3, updated_at = NOW()
		 WHERE id = $4
		 RETURNING `+goalColumns,
		newCurrentAmount, status, completedAt, goalID,
	))
	if err != nil {
		return nil, wrapTxErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapTxErr(err)
	}
	return &GoalProgressResult{Goal: updated, CompletedNow: completedNow}, nil
}

// addGoalProgressInTx increments a goal's progress inside an open journal
// transaction. Inactive goals are left untouched.
func addGoalProgressInTx(ctx context.Context, tx pgx.Tx, goalID uuid.UUID, delta int64) (*domain.SavingsGoal, bool, error) {
	goal, err := scanGoal(tx.QueryRow(ctx,
		`SELECT `+goalColumns+` FROM savings_goals WHERE id = $1 FOR UPDATE`, goalID))
	if err != nil {
		return nil, false, err
	}
	if goal.Status != domain.GoalActive {
		return goal, false, nil
	}

	newAmount := goal.CurrentAmount + delta
	status := domain.GoalActive
	var completedAt *time.Time
	completedNow := false
	if newAmount >= goal.TargetAmount {
		status = domain.GoalCompleted
		now := time.Now()
		completedAt = &now
		completedNow = true
	}

	updated, err := scanGoal(tx.QueryRow(ctx,
		`UPDATE savings_goals SET current_amount = $1, status = $2, completed_at = $3, updated_at = NOW()
		 WHERE id = $4
		 RETURNING `+goalColumns,
		newAmount, status, completedAt, goalID,
	))
	if err != nil {
		return nil, false, err
	}
	return updated, completedNow, nil
}

// CancelGoal flips active -> cancelled. History is retained.
func (r *PostgresRepository) CancelGoal(ctx context.Context, goalID uuid.UUID) (*domain.SavingsGoal, error) {
	goal, err := scanGoal(r.db.QueryRow(ctx,
		`UPDATE savings_goals SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3
		 RETURNING `+goalColumns,
		domain.GoalCancelled, goalID, domain.GoalActive,
	))
	if err == ErrGoalNotFound {
		if _, findErr := r.FindGoalByID(ctx, goalID); findErr != nil {
			return nil, findErr
		}
		return nil, ErrInvalidStateTransition
	}
	return goal, err
}

// FindActiveGoalsPastDeadline returns active goals whose deadline passed,
// for the scheduled deadline check.
func (r *PostgresRepository) FindActiveGoalsPastDeadline(ctx context.Context, now time.Time) ([]domain.SavingsGoal, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+goalColumns+` FROM savings_goals WHERE status = $1 AND deadline IS NOT NULL AND deadline < $2`,
		domain.GoalActive, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []domain.SavingsGoal
	for rows.Next() {
		var g domain.SavingsGoal
		if err := rows.Scan(&g.ID, &g.UserID, &g.AccountID, &g.Name, &g.TargetAmount, &g.CurrentAmount, &g.Deadline, &g.Status, &g.CompletedAt, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}
