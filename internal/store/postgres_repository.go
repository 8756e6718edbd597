/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface for users, families, and bucket accounts, plus the shared
 * connection plumbing used by the ledger, loan, chore, trust, and goal
 * repositories in this package.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/hearthpay/ledger-service/internal/domain"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrFamilyNotFound         = errors.New("family not found")
	ErrAccountNotFound        = errors.New("account not found")
	ErrEntryNotFound          = errors.New("journal entry not found")
	ErrLoanNotFound           = errors.New("loan not found")
	ErrPaymentNotFound        = errors.New("loan payment not found")
	ErrChoreNotFound          = errors.New("chore not found")
	ErrGoalNotFound           = errors.New("savings goal not found")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrLimitExceeded          = errors.New("spend limit exceeded")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrSerializationConflict  = errors.New("serialization conflict")
)

// PostgresRepository is the concrete implementation of the Repository
// interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// isSerializationFailure reports whether the error is a transient conflict
// (serialization failure or deadlock) worth retrying in the app layer.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// isUniqueViolation reports whether the error is a unique-constraint breach.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// wrapTxErr normalizes transient transaction failures into the retryable
// sentinel while preserving everything else.
func wrapTxErr(err error) error {
	if isSerializationFailure(err) {
		return ErrSerializationConflict
	}
	return err
}

// FindUserByExternalID resolves the internal user from an identity-provider
// subject id carried in a validated JWT.
func (r *PostgresRepository) FindUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, external_id, family_id, role, display_name, date_of_birth, created_at FROM users WHERE external_id = $1`
	err := r.db.QueryRow(ctx, query, externalID).Scan(
		&user.ID, &user.ExternalID, &user.FamilyID, &user.Role, &user.DisplayName, &user.DateOfBirth, &user.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByID retrieves a user by their internal id.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, external_id, family_id, role, display_name, date_of_birth, created_at FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&user.ID, &user.ExternalID, &user.FamilyID, &user.Role, &user.DisplayName, &user.DateOfBirth, &user.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindFamilyByID retrieves a family by id.
func (r *PostgresRepository) FindFamilyByID(ctx context.Context, familyID uuid.UUID) (*domain.Family, error) {
	var f domain.Family
	query := `
		SELECT id, name, join_code, owner_user_id, spend_percent, save_percent, give_percent, invest_percent, created_at
		FROM families WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, familyID).Scan(
		&f.ID, &f.Name, &f.JoinCode, &f.OwnerUserID,
		&f.SpendPercent, &f.SavePercent, &f.GivePercent, &f.InvestPercent, &f.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrFamilyNotFound
		}
		return nil, err
	}
	return &f, nil
}

// FindFamilyByJoinCode retrieves a family by its invite code.
func (r *PostgresRepository) FindFamilyByJoinCode(ctx context.Context, joinCode string) (*domain.Family, error) {
	var f domain.Family
	query := `
		SELECT id, name, join_code, owner_user_id, spend_percent, save_percent, give_percent, invest_percent, created_at
		FROM families WHERE join_code = $1
	`
	err := r.db.QueryRow(ctx, query, joinCode).Scan(
		&f.ID, &f.Name, &f.JoinCode, &f.OwnerUserID,
		&f.SpendPercent, &f.SavePercent, &f.GivePercent, &f.InvestPercent, &f.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrFamilyNotFound
		}
		return nil, err
	}
	return &f, nil
}

// CreateFamily inserts a new family plus its virtual external-funds account.
// The join code carries a unique index; collisions surface so the caller can
// regenerate and retry.
func (r *PostgresRepository) CreateFamily(ctx context.Context, family *domain.Family) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO families (id, name, join_code, owner_user_id, spend_percent, save_percent, give_percent, invest_percent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, query,
		family.ID, family.Name, family.JoinCode, family.OwnerUserID,
		family.SpendPercent, family.SavePercent, family.GivePercent, family.InvestPercent,
	).Scan(&family.CreatedAt)
	if err != nil {
		return err
	}

	externalQuery := `
		INSERT INTO ledger_accounts (id, user_id, family_id, bucket, created_at)
		VALUES ($1, NULL, $2, $3, NOW())
	`
	if _, err := tx.Exec(ctx, externalQuery, uuid.New(), family.ID, domain.BucketExternal); err != nil {
		return fmt.Errorf("failed to create external-funds account: %w", err)
	}

	return tx.Commit(ctx)
}

// ProvisionMember attaches a user to a family and creates the four bucket
// accounts plus the seeded trust state in one transaction. Re-provisioning a
// member who already holds bucket accounts is rejected.
func (r *PostgresRepository) ProvisionMember(ctx context.Context, userID, familyID uuid.UUID, role string) ([]domain.LedgerAccount, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx,
		`UPDATE users SET family_id = $1, role = $2 WHERE id = $3 AND family_id IS NULL`,
		familyID, role, userID,
	)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected() == 0 {
		return nil, ErrInvalidStateTransition
	}

	accounts := make([]domain.LedgerAccount, 0, 4)
	for _, bucket := range domain.UserBuckets() {
		account := domain.LedgerAccount{
			ID:       uuid.New(),
			UserID:   &userID,
			FamilyID: familyID,
			Bucket:   bucket,
		}
		err := tx.QueryRow(ctx,
			`INSERT INTO ledger_accounts (id, user_id, family_id, bucket, created_at)
			 VALUES ($1, $2, $3, $4, NOW()) RETURNING created_at`,
			account.ID, userID, familyID, bucket,
		).Scan(&account.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s bucket: %w", bucket, err)
		}
		accounts = append(accounts, account)
	}

	// Seed trust factors at 50 and an explicit 500 starting snapshot. The
	// fixed starting point is deliberate; it does not come from the formula.
	seed := domain.SeedFactorValue
	_, err = tx.Exec(ctx,
		`INSERT INTO trust_factors (user_id, loan_repayment, savings_consistency, chore_completion, budget_adherence, giving_behavior, account_age, parent_endorsements, updated_at)
		 VALUES ($1, $2, $2, $2, $2, $2, $2, $2, NOW())`,
		userID, seed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to seed trust factors: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO trust_scores (id, user_id, loan_repayment, savings_consistency, chore_completion, budget_adherence, giving_behavior, account_age, parent_endorsements, score, computed_at)
		 VALUES ($1, $2, $3, $3, $3, $3, $3, $3, $3, $4, NOW())`,
		uuid.New(), userID, seed, domain.SeedScore,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to seed trust snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapTxErr(err)
	}
	return accounts, nil
}

// FindAccountByID retrieves one bucket account.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.LedgerAccount, error) {
	var a domain.LedgerAccount
	query := `
		SELECT id, user_id, family_id, bucket, daily_limit, weekly_limit, monthly_limit, created_at
		FROM ledger_accounts WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&a.ID, &a.UserID, &a.FamilyID, &a.Bucket, &a.DailyLimit, &a.WeeklyLimit, &a.MonthlyLimit, &a.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// FindAccountsByUserID retrieves all bucket accounts owned by a user.
func (r *PostgresRepository) FindAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.LedgerAccount, error) {
	query := `
		SELECT id, user_id, family_id, bucket, daily_limit, weekly_limit, monthly_limit, created_at
		FROM ledger_accounts WHERE user_id = $1 ORDER BY bucket
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.LedgerAccount
	for rows.Next() {
		var a domain.LedgerAccount
		if err := rows.Scan(&a.ID, &a.UserID, &a.FamilyID, &a.Bucket, &a.DailyLimit, &a.WeeklyLimit, &a.MonthlyLimit, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// FindUserBucketAccount retrieves one specific bucket for a user.
func (r *PostgresRepository) FindUserBucketAccount(ctx context.Context, userID uuid.UUID, bucket string) (*domain.LedgerAccount, error) {
	var a domain.LedgerAccount
	query := `
		SELECT id, user_id, family_id, bucket, daily_limit, weekly_limit, monthly_limit, created_at
		FROM ledger_accounts WHERE user_id = $1 AND bucket = $2
	`
	err := r.db.QueryRow(ctx, query, userID, bucket).Scan(
		&a.ID, &a.UserID, &a.FamilyID, &a.Bucket, &a.DailyLimit, &a.WeeklyLimit, &a.MonthlyLimit, &a.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// FindExternalAccount retrieves a family's virtual external-funds account.
func (r *PostgresRepository) FindExternalAccount(ctx context.Context, familyID uuid.UUID) (*domain.LedgerAccount, error) {
	var a domain.LedgerAccount
	query := `
		SELECT id, user_id, family_id, bucket, daily_limit, weekly_limit, monthly_limit, created_at
		FROM ledger_accounts WHERE family_id = $1 AND bucket = $2
	`
	err := r.db.QueryRow(ctx, query, familyID, domain.BucketExternal).Scan(
		&a.ID, &a.UserID, &a.FamilyID, &a.Bucket, &a.DailyLimit, &a.WeeklyLimit, &a.MonthlyLimit, &a.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// UpdateAccountLimits sets the rolling spend limits on an account. Nil
// clears the corresponding window.
func (r *PostgresRepository) UpdateAccountLimits(ctx context.Context, accountID uuid.UUID, daily, weekly, monthly *int64) error {
	result, err := r.db.Exec(ctx,
		`UPDATE ledger_accounts SET daily_limit = $1, weekly_limit = $2, monthly_limit = $3 WHERE id = $4`,
		daily, weekly, monthly, accountID,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
