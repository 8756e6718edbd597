/**
 * @description
 * PostgreSQL implementation of loan persistence: creation, the atomic
 * approval (principal disbursement + schedule + status flip in one
 * transaction), repayment application, and the sweep queries that detect
 * missed payments and defaults.
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

const loanColumns = `id, family_id, lender_id, borrower_id, principal, annual_rate, term_weeks, weekly_payment, status, remaining_balance, next_payment_due, created_at, updated_at`

func scanLoan(row pgx.Row) (*domain.Loan, error) {
	var l domain.Loan
	err := row.Scan(
		&l.ID, &l.FamilyID, &l.LenderID, &l.BorrowerID, &l.Principal, &l.AnnualRate,
		&l.TermWeeks, &l.WeeklyPayment, &l.Status, &l.RemainingBalance, &l.NextPaymentDue,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	return &l, nil
}

// CreateLoan stores a pending loan. No ledger effect until approval.
func (r *PostgresRepository) CreateLoan(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (id, family_id, lender_id, borrower_id, principal, annual_rate, term_weeks, weekly_payment, status, remaining_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $5, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		loan.ID, loan.FamilyID, loan.LenderID, loan.BorrowerID,
		loan.Principal, loan.AnnualRate, loan.TermWeeks, domain.LoanPending,
	).Scan(&loan.CreatedAt, &loan.UpdatedAt)
}

// FindLoanByID retrieves one loan.
func (r *PostgresRepository) FindLoanByID(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	return scanLoan(r.db.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, loanID))
}

func (r *PostgresRepository) listLoans(ctx context.Context, query string, arg any) ([]domain.Loan, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []domain.Loan
	for rows.Next() {
		var l domain.Loan
		if err := rows.Scan(&l.ID, &l.FamilyID, &l.LenderID, &l.BorrowerID, &l.Principal, &l.AnnualRate, &l.TermWeeks, &l.WeeklyPayment, &l.Status, &l.RemainingBalance, &l.NextPaymentDue, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

// ListLoansByBorrower returns a kid's loans, newest first.
func (r *PostgresRepository) ListLoansByBorrower(ctx context.Context, borrowerID uuid.UUID) ([]domain.Loan, error) {
	return r.listLoans(ctx, `SELECT `+loanColumns+` FROM loans WHERE borrower_id = $1 ORDER BY created_at DESC`, borrowerID)
}

// ListLoansByLender returns a parent's issued loans, newest first.
func (r *PostgresRepository) ListLoansByLender(ctx context.Context, lenderID uuid.UUID) ([]domain.Loan, error) {
	return r.listLoans(ctx, `SELECT `+loanColumns+` FROM loans WHERE lender_id = $1 ORDER BY created_at DESC`, lenderID)
}

const paymentColumns = `id, loan_id, sequence, due_date, principal_portion, interest_portion, paid_date, on_time, status`

// ListPaymentsByLoan returns the full schedule ordered by sequence.
func (r *PostgresRepository) ListPaymentsByLoan(ctx context.Context, loanID uuid.UUID) ([]domain.LoanPayment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+paymentColumns+` FROM loan_payments WHERE loan_id = $1 ORDER BY sequence`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.LoanPayment
	for rows.Next() {
		var p domain.LoanPayment
		if err := rows.Scan(&p.ID, &p.LoanID, &p.Sequence, &p.DueDate, &p.PrincipalPortion, &p.InterestPortion, &p.PaidDate, &p.OnTime, &p.Status); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// FindPaymentByID retrieves one schedule row.
func (r *PostgresRepository) FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.LoanPayment, error) {
	var p domain.LoanPayment
	err := r.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM loan_payments WHERE id = $1`, paymentID,
	).Scan(&p.ID, &p.LoanID, &p.Sequence, &p.DueDate, &p.PrincipalPortion, &p.InterestPortion, &p.PaidDate, &p.OnTime, &p.Status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// NextScheduledPayment returns the earliest unpaid schedule row.
func (r *PostgresRepository) NextScheduledPayment(ctx context.Context, loanID uuid.UUID) (*domain.LoanPayment, error) {
	var p domain.LoanPayment
	err := r.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM loan_payments WHERE loan_id = $1 AND status = $2 ORDER BY sequence LIMIT 1`,
		loanID, domain.PaymentScheduled,
	).Scan(&p.ID, &p.LoanID, &p.Sequence, &p.DueDate, &p.PrincipalPortion, &p.InterestPortion, &p.PaidDate, &p.OnTime, &p.Status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ApproveLoanAtomic performs the full approval as one transaction:
//  1. lock lender and borrower accounts and verify lender funds
//  2. post the principal disbursement entry
//  3. insert the amortization schedule
//  4. flip the loan pending -> active, conditioned on it still being pending
//
// Any failure (including insufficient lender funds) aborts the whole unit:
// no schedule rows and no status change persist.
func (r *PostgresRepository) ApproveLoanAtomic(ctx context.Context, loanID uuid.UUID, payments []domain.LoanPayment, weeklyPayment int64, lenderAccountID, borrowerAccountID uuid.UUID) error {
	if len(payments) == 0 {
		return fmt.Errorf("empty schedule for loan %s", loanID)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	loan, err := scanLoan(tx.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, loanID))
	if err != nil {
		return err
	}
	if loan.Status != domain.LoanPending {
		return ErrInvalidStateTransition
	}

	rows, err := tx.Query(ctx,
		`SELECT id FROM ledger_accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		[]uuid.UUID{lenderAccountID, borrowerAccountID},
	)
	if err != nil {
		return wrapTxErr(err)
	}
	locked := 0
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		locked++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return wrapTxErr(err)
	}
	if locked != 2 {
		return ErrAccountNotFound
	}

	balance, err := balanceInTx(ctx, tx, lenderAccountID, time.Now())
	if err != nil {
		return err
	}
	if balance < loan.Principal {
		return ErrInsufficientFunds
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO journal_entries (id, source_account_id, destination_account_id, amount, category, description, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		uuid.New(), lenderAccountID, borrowerAccountID, loan.Principal,
		domain.CategoryLoanDisbursement, fmt.Sprintf("Loan disbursement %s", loanID), domain.EntryPosted,
	)
	if err != nil {
		return wrapTxErr(err)
	}

	for _, p := range payments {
		_, err = tx.Exec(ctx,
			`INSERT INTO loan_payments (id, loan_id, sequence, due_date, principal_portion, interest_portion, on_time, status)
			 VALUES ($1, $2, $3, $4, $5, $6, false, $7)`,
			p.ID, loanID, p.Sequence, p.DueDate, p.PrincipalPortion, p.InterestPortion, domain.PaymentScheduled,
		)
		if err != nil {
			return wrapTxErr(err)
		}
	}

	result, err := tx.Exec(ctx,
		`UPDATE loans SET status = $1, weekly_payment = $2, next_payment_due = $3, updated_at = NOW()
		 WHERE id = $4 AND status = $5`,
		domain.LoanActive, weeklyPayment, payments[0].DueDate, loanID, domain.LoanPending,
	)
	if err != nil {
		return wrapTxErr(err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidStateTransition
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapTxErr(err)
	}
	return nil
}

// RejectLoan flips a pending loan to rejected. No ledger effect.
func (r *PostgresRepository) RejectLoan(ctx context.Context, loanID uuid.UUID) error {
	result, err := r.db.Exec(ctx,
		`UPDATE loans SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		domain.LoanRejected, loanID, domain.LoanPending,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidStateTransition
	}
	return nil
}

// RecordLoanPaymentAtomic applies one repayment as a single unit: transfer
// the payment amount borrower -> lender, mark the schedule row paid, reduce
// the remaining balance by the principal portion, and flip the loan to paid
// when the balance reaches zero.
func (r *PostgresRepository) RecordLoanPaymentAtomic(ctx context.Context, params LoanPaymentParams) (*LoanPaymentResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	loan, err := scanLoan(tx.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, params.LoanID))
	if err != nil {
		return nil, err
	}
	if loan.Status != domain.LoanActive {
		return nil, ErrInvalidStateTransition
	}

	rows, err := tx.Query(ctx,
		`SELECT id FROM ledger_accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		[]uuid.UUID{params.BorrowerAccountID, params.LenderAccountID},
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

	balance, err := balanceInTx(ctx, tx, params.BorrowerAccountID, time.Now())
	if err != nil {
		return nil, err
	}
	if balance < params.Amount {
		return nil, ErrInsufficientFunds
	}

	entry := &domain.JournalEntry{
		ID:                   uuid.New(),
		SourceAccountID:      params.BorrowerAccountID,
		DestinationAccountID: params.LenderAccountID,
		Amount:               params.Amount,
		Category:             domain.CategoryLoanPayment,
		Description:          fmt.Sprintf("Loan payment on %s", params.LoanID),
		Status:               domain.EntryPosted,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO journal_entries (id, source_account_id, destination_account_id, amount, category, description, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 RETURNING created_at`,
		entry.ID, entry.SourceAccountID, entry.DestinationAccountID, entry.Amount,
		entry.Category, entry.Description, entry.Status,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return nil, wrapTxErr(err)
	}

	// Mark the schedule row paid; the status condition keeps a replayed
	// request from paying the same row twice.
	status := domain.PaymentPaid
	if !params.OnTime {
		status = domain.PaymentLate
	}
	result, err := tx.Exec(ctx,
		`UPDATE loan_payments SET status = $1, paid_date = $2, on_time = $3
		 WHERE id = $4 AND status IN ($5, $6)`,
		status, params.PaidAt, params.OnTime, params.PaymentID, domain.PaymentScheduled, domain.PaymentMissed,
	)
	if err != nil {
		return nil, wrapTxErr(err)
	}
	if result.RowsAffected() == 0 {
		return nil, ErrInvalidStateTransition
	}

	remaining := loan.RemainingBalance - params.PrincipalPortion
	if remaining < 0 {
		remaining = 0
	}
	newStatus := loan.Status
	if remaining == 0 {
		newStatus = domain.LoanPaid
	}

	var nextDue *time.Time
	err = tx.QueryRow(ctx,
		`SELECT due_date FROM loan_payments WHERE loan_id = $1 AND status = $2 ORDER BY sequence LIMIT 1`,
		params.LoanID, domain.PaymentScheduled,
	).Scan(&nextDue)
	if err != nil && err != pgx.ErrNoRows {
		return nil, err
	}

	updated, err := scanLoan(tx.QueryRow(ctx,
		`UPDATE loans SET remaining_balance = $1, status = $2, next_payment_due = $3, updated_at = NOW()
		 WHERE id = $4
		 RETURNING `+loanColumns,
		remaining, newStatus, nextDue, params.LoanID,
	))
	if err != nil {
		return nil, wrapTxErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapTxErr(err)
	}
	return &LoanPaymentResult{Loan: updated, Entry: entry}, nil
}

// FindOverdueScheduledPayments returns schedule rows still marked scheduled
// whose due date fell before the cutoff, for the sweep.
func (r *PostgresRepository) FindOverdueScheduledPayments(ctx context.Context, cutoff time.Time) ([]domain.LoanPayment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+paymentColumns+`
		 FROM loan_payments p
		 WHERE p.status = $1 AND p.due_date < $2
		   AND EXISTS (SELECT 1 FROM loans l WHERE l.id = p.loan_id AND l.status = $3)
		 ORDER BY p.due_date`,
		domain.PaymentScheduled, cutoff, domain.LoanActive,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.LoanPayment
	for rows.Next() {
		var p domain.LoanPayment
		if err := rows.Scan(&p.ID, &p.LoanID, &p.Sequence, &p.DueDate, &p.PrincipalPortion, &p.InterestPortion, &p.PaidDate, &p.OnTime, &p.Status); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// MarkPaymentMissed flips one scheduled payment to missed. Returns false
// when another sweep run already processed it.
func (r *PostgresRepository) MarkPaymentMissed(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	result, err := r.db.Exec(ctx,
		`UPDATE loan_payments SET status = $1 WHERE id = $2 AND status = $3`,
		domain.PaymentMissed, paymentID, domain.PaymentScheduled,
	)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// CountTrailingMissedPayments counts consecutive missed payments ending at
// the latest processed schedule row for the loan.
func (r *PostgresRepository) CountTrailingMissedPayments(ctx context.Context, loanID uuid.UUID) (int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT status FROM loan_payments WHERE loan_id = $1 AND status <> $2 ORDER BY sequence DESC`,
		loanID, domain.PaymentScheduled,
	)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return 0, err
		}
		if status != domain.PaymentMissed {
			break
		}
		count++
	}
	return count, rows.Err()
}

// MarkLoanDefaulted flips an active loan to defaulted. Returns false when a
// previous sweep already defaulted it, keeping the sweep idempotent.
func (r *PostgresRepository) MarkLoanDefaulted(ctx context.Context, loanID uuid.UUID) (bool, error) {
	result, err := r.db.Exec(ctx,
		`UPDATE loans SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		domain.LoanDefaulted, loanID, domain.LoanActive,
	)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}
