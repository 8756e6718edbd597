/**
 * @description
 * PostgreSQL implementation of trust-score persistence: the append-only
 * event log, the current clamped factor values, and the immutable snapshot
 * history. Appending an event and adjusting its factor commit together;
 * snapshots are insert-only so readers never see shared mutable state.
 */

package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/hearthpay/ledger-service/internal/domain"
)

var factorColumn = map[string]string{
	domain.FactorLoanRepayment:      "loan_repayment",
	domain.FactorSavingsConsistency: "savings_consistency",
	domain.FactorChoreCompletion:    "chore_completion",
	domain.FactorBudgetAdherence:    "budget_adherence",
	domain.FactorGivingBehavior:     "giving_behavior",
	domain.FactorAccountAge:         "account_age",
	domain.FactorParentEndorsements: "parent_endorsements",
}

// AppendTrustEvent inserts the event and applies the clamped delta to the
// mapped factor in one transaction.
func (r *PostgresRepository) AppendTrustEvent(ctx context.Context, event *domain.TrustScoreEvent, factor string) error {
	column, ok := factorColumn[factor]
	if !ok {
		return fmt.Errorf("unknown trust factor %q", factor)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO trust_score_events (id, user_id, family_id, event_type, point_delta, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 RETURNING created_at`,
		event.ID, event.UserID, event.FamilyID, event.EventType, event.PointDelta,
	).Scan(&event.CreatedAt)
	if err != nil {
		return wrapTxErr(err)
	}

	// LEAST/GREATEST clamp the factor to [0,100] in place.
	query := fmt.Sprintf(
		`UPDATE trust_factors SET %s = LEAST(100, GREATEST(0, %s + $1)), updated_at = NOW() WHERE user_id = $2`,
		column, column,
	)
	result, err := tx.Exec(ctx, query, event.PointDelta, event.UserID)
	if err != nil {
		return wrapTxErr(err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapTxErr(err)
	}
	return nil
}

// GetTrustFactors returns the current factor values for a user.
func (r *PostgresRepository) GetTrustFactors(ctx context.Context, userID uuid.UUID) (*domain.TrustFactors, error) {
	var f domain.TrustFactors
	query := `
		SELECT user_id, loan_repayment, savings_consistency, chore_completion, budget_adherence, giving_behavior, account_age, parent_endorsements, updated_at
		FROM trust_factors WHERE user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&f.UserID, &f.LoanRepayment, &f.SavingsConsistency, &f.ChoreCompletion,
		&f.BudgetAdherence, &f.GivingBehavior, &f.AccountAge, &f.ParentEndorsements, &f.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &f, nil
}

const snapshotColumns = `id, user_id, loan_repayment, savings_consistency, chore_completion, budget_adherence, giving_behavior, account_age, parent_endorsements, score, computed_at`

func scanSnapshot(row pgx.Row) (*domain.TrustScore, error) {
	var s domain.TrustScore
	err := row.Scan(
		&s.ID, &s.UserID,
		&s.Factors.LoanRepayment, &s.Factors.SavingsConsistency, &s.Factors.ChoreCompletion,
		&s.Factors.BudgetAdherence, &s.Factors.GivingBehavior, &s.Factors.AccountAge,
		&s.Factors.ParentEndorsements, &s.Score, &s.ComputedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	s.Factors.UserID = s.UserID
	return &s, nil
}

// InsertTrustSnapshot stores one immutable recompute result.
func (r *PostgresRepository) InsertTrustSnapshot(ctx context.Context, snapshot *domain.TrustScore) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO trust_scores (id, user_id, loan_repayment, savings_consistency, chore_completion, budget_adherence, giving_behavior, account_age, parent_endorsements, score, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		 RETURNING computed_at`,
		snapshot.ID, snapshot.UserID,
		snapshot.Factors.LoanRepayment, snapshot.Factors.SavingsConsistency, snapshot.Factors.ChoreCompletion,
		snapshot.Factors.BudgetAdherence, snapshot.Factors.GivingBehavior, snapshot.Factors.AccountAge,
		snapshot.Factors.ParentEndorsements, snapshot.Score,
	).Scan(&snapshot.ComputedAt)
}

// LatestTrustSnapshot returns the most recent snapshot for a user.
func (r *PostgresRepository) LatestTrustSnapshot(ctx context.Context, userID uuid.UUID) (*domain.TrustScore, error) {
	return scanSnapshot(r.db.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM trust_scores WHERE user_id = $1 ORDER BY computed_at DESC LIMIT 1`,
		userID,
	))
}

// ListTrustSnapshots returns snapshot history, most recent first.
func (r *PostgresRepository) ListTrustSnapshots(ctx context.Context, userID uuid.UUID, limit int) ([]domain.TrustScore, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+snapshotColumns+` FROM trust_scores WHERE user_id = $1 ORDER BY computed_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []domain.TrustScore
	for rows.Next() {
		var s domain.TrustScore
		if err := rows.Scan(&s.ID, &s.UserID, &s.Factors.LoanRepayment, &s.Factors.SavingsConsistency, &s.Factors.ChoreCompletion, &s.Factors.BudgetAdherence, &s.Factors.GivingBehavior, &s.Factors.AccountAge, &s.Factors.ParentEndorsements, &s.Score, &s.ComputedAt); err != nil {
			return nil, err
		}
		s.Factors.UserID = s.UserID
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// ListTrustEventsByUser returns events newest first, optionally filtered by
// event type. Used by the streak scan and the factor-breakdown endpoint;
// offset lets callers page through logs longer than one fetch.
func (r *PostgresRepository) ListTrustEventsByUser(ctx context.Context, userID uuid.UUID, eventType string, limit, offset int) ([]domain.TrustScoreEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, user_id, family_id, event_type, point_delta, created_at FROM trust_score_events WHERE user_id = $1`
	args := []any{userID}
	if eventType != "" {
		query += ` AND event_type = $2`
		args = append(args, eventType)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.TrustScoreEvent
	for rows.Next() {
		var e domain.TrustScoreEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.FamilyID, &e.EventType, &e.PointDelta, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
