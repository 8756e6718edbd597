/**
 * @description
 * PostgreSQL implementation of the chore marketplace. State transitions are
 * status-conditioned UPDATEs so a lost race surfaces as an invalid
 * transition instead of silently clobbering concurrent work; approval and
 * payout commit as one transaction.
 */

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/hearthpay/ledger-service/internal/domain"
)

const choreColumns = `id, family_id, creator_id, title, description, payout, assignee_id, status, due_date, completed_at, approved_at, created_at, updated_at`

func scanChore(row pgx.Row) (*domain.Chore, error) {
	var c domain.Chore
	err := row.Scan(
		&c.ID, &c.FamilyID, &c.CreatorID, &c.Title, &c.Description, &c.Payout,
		&c.AssigneeID, &c.Status, &c.DueDate, &c.CompletedAt, &c.ApprovedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrChoreNotFound
		}
		return nil, err
	}
	return &c, nil
}

// CreateChore posts a new open chore.
func (r *PostgresRepository) CreateChore(ctx context.Context, chore *domain.Chore) error {
	query := `
		INSERT INTO chores (id, family_id, creator_id, title, description, payout, status, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		chore.ID, chore.FamilyID, chore.CreatorID, chore.Title, chore.Description,
		chore.Payout, domain.ChoreOpen, chore.DueDate,
	).Scan(&chore.CreatedAt, &chore.UpdatedAt)
}

// FindChoreByID retrieves one chore.
func (r *PostgresRepository) FindChoreByID(ctx context.Context, choreID uuid.UUID) (*domain.Chore, error) {
	return scanChore(r.db.QueryRow(ctx, `SELECT `+choreColumns+` FROM chores WHERE id = $1`, choreID))
}

// ListChoresByFamily returns a family's chores, optionally filtered by status.
func (r *PostgresRepository) ListChoresByFamily(ctx context.Context, familyID uuid.UUID, status string) ([]domain.Chore, error) {
	query := `SELECT ` + choreColumns + ` FROM chores WHERE family_id = $1`
	args := []any{familyID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChores(rows)
}

// ListChoresByAssignee returns chores claimed by a kid, newest first.
func (r *PostgresRepository) ListChoresByAssignee(ctx context.Context, assigneeID uuid.UUID) ([]domain.Chore, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+choreColumns+` FROM chores WHERE assignee_id = $1 ORDER BY created_at DESC`, assigneeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChores(rows)
}

func collectChores(rows pgx.Rows) ([]domain.Chore, error) {
	var chores []domain.Chore
	for rows.Next() {
		var c domain.Chore
		if err := rows.Scan(&c.ID, &c.FamilyID, &c.CreatorID, &c.Title, &c.Description, &c.Payout, &c.AssigneeID, &c.Status, &c.DueDate, &c.CompletedAt, &c.ApprovedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		chores = append(chores, c)
	}
	return chores, rows.Err()
}

// ClaimChore moves open -> claimed and records the assignee. Losing the race
// to another claimant yields ErrInvalidStateTransition.
func (r *PostgresRepository) ClaimChore(ctx context.Context, choreID, assigneeID uuid.UUID) (*domain.Chore, error) {
	chore, err := scanChore(r.db.QueryRow(ctx,
		`UPDATE chores SET status = $1, assignee_id = $2, updated_at = NOW()
		 WHERE id = $3 AND status = $4 AND assignee_id IS NULL
		 RETURNING `+choreColumns,
		domain.ChoreClaimed, assigneeID, choreID, domain.ChoreOpen,
	))
	if err == ErrChoreNotFound {
		// Distinguish a genuinely missing chore from a lost race.
		if _, findErr := r.FindChoreByID(ctx, choreID); findErr != nil {
			return nil, findErr
		}
		return nil, ErrInvalidStateTransition
	}
	return chore, err
}

// MarkChoreDone moves claimed -> pending_approval, only for the assignee.
func (r *PostgresRepository) MarkChoreDone(ctx context.Context, choreID, assigneeID uuid.UUID) (*domain.Chore, error) {
	chore, err := scanChore(r.db.QueryRow(ctx,
		`UPDATE chores SET status = $1, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $2 AND status = $3 AND assignee_id = $4
		 RETURNING `+choreColumns,
		domain.ChorePendingApproval, choreID, domain.ChoreClaimed, assigneeID,
	))
	if err == ErrChoreNotFound {
		if _, findErr := r.FindChoreByID(ctx, choreID); findErr != nil {
			return nil, findErr
		}
		return nil, ErrInvalidStateTransition
	}
	return chore, err
}

// ApproveChoreAtomic advances pending_approval through completed to paid and
// posts the payout entry in one transaction. A chore is never observable as
// completed without the transfer, nor paid without ledger history.
func (r *PostgresRepository) ApproveChoreAtomic(ctx context.Context, params ChorePayoutParams) (*domain.Chore, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	chore, err := scanChore(tx.QueryRow(ctx,
		`SELECT `+choreColumns+` FROM chores WHERE id = $1 FOR UPDATE`, params.ChoreID))
	if err != nil {
		return nil, err
	}
	if chore.Status != domain.ChorePendingApproval {
		return nil, ErrInvalidStateTransition
	}

	rows, err := tx.Query(ctx,
		`SELECT id FROM ledger_accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		[]uuid.UUID{params.SourceAccountID, params.DestinationAccountID},
	)
	if err != nil {
		return nil, wrapTxErr(err)
	}
	locked := 0
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		locked++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapTxErr(err)
	}
	if locked != 2 {
		return nil, ErrAccountNotFound
	}

	balance, err := balanceInTx(ctx, tx, params.SourceAccountID, time.Now())
	if err != nil {
		return nil, err
	}
	if balance < params.Payout {
		return nil, ErrInsufficientFunds
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO journal_entries (id, source_account_id, destination_account_id, amount, category, description, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		uuid.New(), params.SourceAccountID, params.DestinationAccountID, params.Payout,
		domain.CategoryChorePayout, fmt.Sprintf("Chore payout: %s", chore.Title), domain.EntryPosted,
	)
	if err != nil {
		return nil, wrapTxErr(err)
	}

	updated, err := scanChore(tx.QueryRow(ctx,
		`UPDATE chores SET status = $1, approved_at = $2, updated_at = NOW()
		 WHERE id = $3 AND status = $4
		 RETURNING `+choreColumns,
		domain.ChorePaid, params.ApprovedAt, params.ChoreID, domain.ChorePendingApproval,
	))
	if err == ErrChoreNotFound {
		return nil, ErrInvalidStateTransition
	}
	if err != nil {
		return nil, wrapTxErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapTxErr(err)
	}
	return updated, nil
}

// RejectChore returns pending_approval -> open and clears the assignee.
func (r *PostgresRepository) RejectChore(ctx context.Context, choreID uuid.UUID) (*domain.Chore, error) {
	chore, err := scanChore(r.db.QueryRow(ctx,
		`UPDATE chores SET status = $1, assignee_id = NULL, completed_at = NULL, updated_at = NOW()
		 WHERE id = $2 AND status = $3
		 RETURNING `+choreColumns,
		domain.ChoreOpen, choreID, domain.ChorePendingApproval,
	))
	if err == ErrChoreNotFound {
		if _, findErr := r.FindChoreByID(ctx, choreID); findErr != nil {
			return nil, findErr
		}
		return nil, ErrInvalidStateTransition
	}
	return chore, err
}
