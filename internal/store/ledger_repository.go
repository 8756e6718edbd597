/**
 * @description
 * PostgreSQL implementation of the journal: atomic double-entry transfers
 * with idempotency-key replay, rolling-window spend-limit enforcement,
 * reversal entries, and the balance/period folds every other component
 * builds on.
 *
 * @notes
 * - Balances are derived, never stored: credit sum minus debit sum over the
 *   journal. The transfer transaction locks both account rows in ascending
 *   id order so concurrent debits of one account serialize and cannot
 *   jointly break a balance or limit constraint.
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

const entryColumns = `id, source_account_id, destination_account_id, amount, category, description, idempotency_key, goal_id, status, created_at`

func scanEntry(row pgx.Row) (*domain.JournalEntry, error) {
	var e domain.JournalEntry
	err := row.Scan(
		&e.ID, &e.SourceAccountID, &e.DestinationAccountID, &e.Amount,
		&e.Category, &e.Description, &e.IdempotencyKey, &e.GoalID, &e.Status, &e.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &e, nil
}

// FindEntryByID retrieves one journal entry.
func (r *PostgresRepository) FindEntryByID(ctx context.Context, entryID uuid.UUID) (*domain.JournalEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE id = $1`
	return scanEntry(r.db.QueryRow(ctx, query, entryID))
}

// FindEntryByIdempotencyKey returns the entry previously posted under the
// given key, used to absorb webhook replays.
func (r *PostgresRepository) FindEntryByIdempotencyKey(ctx context.Context, key string) (*domain.JournalEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE idempotency_key = $1`
	return scanEntry(r.db.QueryRow(ctx, query, key))
}

// PostTransfer posts one journal entry as a single atomic unit: lock the
// involved accounts, re-check balance and limits under the lock, insert the
// entry, and apply any tagged goal contribution.
func (r *PostgresRepository) PostTransfer(ctx context.Context, params TransferParams) (*TransferResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Idempotency-key replay resolves to the prior entry with no new write.
	if params.IdempotencyKey != nil {
		prior, err := scanEntry(tx.QueryRow(ctx,
			`SELECT `+entryColumns+` FROM journal_entries WHERE idempotency_key = $1`, *params.IdempotencyKey))
		if err == nil {
			return &TransferResult{Entry: prior, Replayed: true}, nil
		}
		if err != ErrEntryNotFound {
			return nil, err
		}
	}

	// 2. Lock both account rows in ascending id order to avoid deadlocks
	// between concurrent transfers touching the same pair.
	lockQuery := `SELECT id FROM ledger_accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	ids := []uuid.UUID{params.SourceAccountID, params.DestinationAccountID}
	rows, err := tx.Query(ctx, lockQuery, ids)
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

	now := time.Now()

	// 3. Balance check under the lock unless the source may overdraw
	// (external-funds account only).
	if !params.AllowOverdraft {
		balance, err := balanceInTx(ctx, tx, params.SourceAccountID, now)
		if err != nil {
			return nil, err
		}
		if balance < params.Amount {
			return nil, ErrInsufficientFunds
		}
	}

	// 4. Rolling-window spend limits for card purchases, also under the lock.
	if params.EnforceLimits {
		if err := checkLimitsInTx(ctx, tx, params.SourceAccountID, params.Amount, now); err != nil {
			return nil, err
		}
	}

	// 5. Insert the entry.
	entry := &domain.JournalEntry{
		ID:                   uuid.New(),
		SourceAccountID:      params.SourceAccountID,
		DestinationAccountID: params.DestinationAccountID,
		Amount:               params.Amount,
		Category:             params.Category,
		Description:          params.Description,
		IdempotencyKey:       params.IdempotencyKey,
		GoalID:               params.GoalID,
		Status:               domain.EntryPosted,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO journal_entries (id, source_account_id, destination_account_id, amount, category, description, idempotency_key, goal_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		 RETURNING created_at`,
		entry.ID, entry.SourceAccountID, entry.DestinationAccountID, entry.Amount,
		entry.Category, entry.Description, entry.IdempotencyKey, entry.GoalID, entry.Status,
	).Scan(&entry.CreatedAt)
	if err != nil {
		// A concurrent webhook replay can race past the lookup in step 1;
		// the unique index on idempotency_key makes the loser resolve to
		// the winner's entry.
		if isUniqueViolation(err) && params.IdempotencyKey != nil {
			tx.Rollback(ctx)
			prior, findErr := r.FindEntryByIdempotencyKey(ctx, *params.IdempotencyKey)
			if findErr != nil {
				return nil, findErr
			}
			return &TransferResult{Entry: prior, Replayed: true}, nil
		}
		return nil, wrapTxErr(err)
	}

	result := &TransferResult{Entry: entry}

	// 6. A goal-tagged contribution advances the bound goal inside the same
	// transaction so the entry and the progress commit together.
	if params.GoalID != nil {
		goal, completedNow, err := addGoalProgressInTx(ctx, tx, *params.GoalID, params.Amount)
		if err != nil && err != ErrGoalNotFound {
			return nil, err
		}
		if completedNow {
			result.GoalCompleted = goal
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapTxErr(err)
	}
	return result, nil
}

// balanceInTx folds the journal for one account inside an open transaction.
func balanceInTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, asOf time.Time) (int64, error) {
	var balance int64
	query := `
		SELECT COALESCE((SELECT SUM(amount) FROM journal_entries WHERE destination_account_id = $1 AND created_at <= $2), 0)
		     - COALESCE((SELECT SUM(amount) FROM journal_entries WHERE source_account_id = $1 AND created_at <= $2), 0)
	`
	if err := tx.QueryRow(ctx, query, accountID, asOf).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// checkLimitsInTx evaluates the source account's configured rolling-window
// limits against the pending debit.
func checkLimitsInTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, now time.Time) error {
	var account domain.LedgerAccount
	err := tx.QueryRow(ctx,
		`SELECT daily_limit, weekly_limit, monthly_limit FROM ledger_accounts WHERE id = $1`, accountID,
	).Scan(&account.DailyLimit, &account.WeeklyLimit, &account.MonthlyLimit)
	if err != nil {
		return err
	}

	for _, w := range account.SpendWindows() {
		var spent int64
		// Window sums scope to card purchases only: allowance, chore payouts,
		// and loan movements must not consume a kid's card spending cap.
		err := tx.QueryRow(ctx,
			`SELECT COALESCE(SUM(amount), 0) FROM journal_entries
			 WHERE source_account_id = $1 AND category = $2 AND created_at > $3`,
			accountID, domain.CategoryCardPurchase, now.Add(-w.Window),
		).Scan(&spent)
		if err != nil {
			return err
		}
		if w.Exceeds(spent, amount) {
			return ErrLimitExceeded
		}
	}
	return nil
}

// ReverseEntry posts the opposite movement and marks the original entry
// reversed. The status condition makes a second reversal attempt fail
// rather than double-reverse.
func (r *PostgresRepository) ReverseEntry(ctx context.Context, entryID uuid.UUID, description string) (*domain.JournalEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	original, err := scanEntry(tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE id = $1 FOR UPDATE`, entryID))
	if err != nil {
		return nil, err
	}

	result, err := tx.Exec(ctx,
		`UPDATE journal_entries SET status = $1 WHERE id = $2 AND status = $3`,
		domain.EntryReversed, entryID, domain.EntryPosted,
	)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected() == 0 {
		return nil, ErrInvalidStateTransition
	}

	reversal := &domain.JournalEntry{
		ID:                   uuid.New(),
		SourceAccountID:      original.DestinationAccountID,
		DestinationAccountID: original.SourceAccountID,
		Amount:               original.Amount,
		Category:             domain.CategoryReversal,
		Description:          description,
		Status:               domain.EntryPosted,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO journal_entries (id, source_account_id, destination_account_id, amount, category, description, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 RETURNING created_at`,
		reversal.ID, reversal.SourceAccountID, reversal.DestinationAccountID,
		reversal.Amount, reversal.Category, reversal.Description, reversal.Status,
	).Scan(&reversal.CreatedAt)
	if err != nil {
		return nil, wrapTxErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapTxErr(err)
	}
	return reversal, nil
}

// AccountBalance folds entries up to asOf (default now).
func (r *PostgresRepository) AccountBalance(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (int64, error) {
	at := time.Now()
	if asOf != nil {
		at = *asOf
	}
	var balance int64
	query := `
		SELECT COALESCE((SELECT SUM(amount) FROM journal_entries WHERE destination_account_id = $1 AND created_at <= $2), 0)
		     - COALESCE((SELECT SUM(amount) FROM journal_entries WHERE source_account_id = $1 AND created_at <= $2), 0)
	`
	if err := r.db.QueryRow(ctx, query, accountID, at).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// PeriodFlow sums inbound or outbound entries in [start, end), used for
// spend-limit evaluation and reporting.
func (r *PostgresRepository) PeriodFlow(ctx context.Context, accountID uuid.UUID, start, end time.Time, direction domain.FlowDirection) (int64, error) {
	column := "destination_account_id"
	if direction == domain.FlowOutbound {
		column = "source_account_id"
	}
	var total int64
	query := fmt.Sprintf(
		`SELECT COALESCE(SUM(amount), 0) FROM journal_entries WHERE %s = $1 AND created_at >= $2 AND created_at < $3`,
		column,
	)
	if err := r.db.QueryRow(ctx, query, accountID, start, end).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// ListEntriesByAccount returns entries touching the account, newest first.
func (r *PostgresRepository) ListEntriesByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.JournalEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `
		SELECT ` + entryColumns + `
		FROM journal_entries
		WHERE source_account_id = $1 OR destination_account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var e domain.JournalEntry
		if err := rows.Scan(&e.ID, &e.SourceAccountID, &e.DestinationAccountID, &e.Amount, &e.Category, &e.Description, &e.IdempotencyKey, &e.GoalID, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
