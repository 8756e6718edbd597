/**
 * @description
 * Loan Engine: parent-issued loans with simple-interest amortization.
 * Approval disburses principal, persists the schedule, and activates the
 * loan as one atomic unit; repayments move money back and feed the trust
 * engine; the scheduled sweep detects missed payments and defaults.
 */

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hearthpay/ledger-service/internal/domain"
	"github.com/hearthpay/ledger-service/internal/store"
)

// CreateLoan validates terms and stores a pending loan. No money moves
// until a parent approves.
func (s *Service) CreateLoan(ctx context.Context, caller *domain.User, borrowerID uuid.UUID, principal int64, annualRate float64, termWeeks int) (*domain.Loan, error) {
	if principal <= 0 {
		return nil, fmt.Errorf("%w: principal must be positive", ErrValidation)
	}
	if annualRate < 0 || annualRate > 1 {
		return nil, fmt.Errorf("%w: annual rate must be in [0,1]", ErrValidation)
	}
	if termWeeks <= 0 || termWeeks > 260 {
		return nil, fmt.Errorf("%w: term must be between 1 and 260 weeks", ErrValidation)
	}
	if !caller.IsParent() {
		return nil, ErrUnauthorized
	}

	borrower, err := s.repo.FindUserByID(ctx, borrowerID)
	if err != nil {
		return nil, err
	}
	if caller.FamilyID == nil || borrower.FamilyID == nil || *caller.FamilyID != *borrower.FamilyID {
		return nil, fmt.Errorf("%w: lender and borrower must share a family", ErrValidation)
	}

	loan := &domain.Loan{
		ID:               uuid.New(),
		FamilyID:         *caller.FamilyID,
		LenderID:         caller.ID,
		BorrowerID:       borrowerID,
		Principal:        principal,
		AnnualRate:       annualRate,
		TermWeeks:        termWeeks,
		Status:           domain.LoanPending,
		RemainingBalance: principal,
	}
	if err := s.repo.CreateLoan(ctx, loan); err != nil {
		return nil, err
	}
	return loan, nil
}

// ApproveLoan generates the amortization schedule, transfers principal from
// the lender's spend bucket to the borrower's spend bucket, and flips the
// loan active. The whole approval aborts on any failure, including
// insufficient lender funds: no schedule and no status change persist.
func (s *Service) ApproveLoan(ctx context.Context, caller *domain.User, loanID uuid.UUID) (*domain.Loan, error) {
	loan, err := s.repo.FindLoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if caller.ID != loan.LenderID {
		return nil, ErrUnauthorized
	}
	if !domain.LoanTransitionAllowed(loan.Status, domain.LoanActive) {
		return nil, store.ErrInvalidStateTransition
	}

	lenderAccount, err := s.repo.FindUserBucketAccount(ctx, loan.LenderID, domain.BucketSpend)
	if err != nil {
		return nil, err
	}
	borrowerAccount, err := s.repo.FindUserBucketAccount(ctx, loan.BorrowerID, domain.BucketSpend)
	if err != nil {
		return nil, err
	}

	payments, weeklyPayment := domain.BuildSchedule(loan.ID, loan.Principal, loan.AnnualRate, loan.TermWeeks, time.Now())

	err = withConflictRetry(func() error {
		return s.repo.ApproveLoanAtomic(ctx, loan.ID, payments, weeklyPayment, lenderAccount.ID, borrowerAccount.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindLoanByID(ctx, loanID)
}

// RejectLoan flips a pending loan to rejected with no ledger effect.
func (s *Service) RejectLoan(ctx context.Context, caller *domain.User, loanID uuid.UUID) (*domain.Loan, error) {
	loan, err := s.repo.FindLoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if caller.ID != loan.LenderID {
		return nil, ErrUnauthorized
	}
	if err := s.repo.RejectLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return s.repo.FindLoanByID(ctx, loanID)
}

// RecordLoanPayment applies the next scheduled payment: moves the payment
// amount from the borrower's spend bucket to the lender's spend bucket,
// marks the schedule row, reduces the remaining balance by the principal
// portion, and emits the matching trust events.
func (s *Service) RecordLoanPayment(ctx context.Context, caller *domain.User, loanID uuid.UUID) (*store.LoanPaymentResult, error) {
	loan, err := s.repo.FindLoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if caller.ID != loan.BorrowerID && caller.ID != loan.LenderID {
		return nil, ErrUnauthorized
	}
	if loan.Status != domain.LoanActive {
		return nil, store.ErrInvalidStateTransition
	}

	payment, err := s.repo.NextScheduledPayment(ctx, loanID)
	if err != nil {
		if err == store.ErrPaymentNotFound {
			return nil, store.ErrInvalidStateTransition
		}
		return nil, err
	}

	borrowerAccount, err := s.repo.FindUserBucketAccount(ctx, loan.BorrowerID, domain.BucketSpend)
	if err != nil {
		return nil, err
	}
	lenderAccount, err := s.repo.FindUserBucketAccount(ctx, loan.LenderID, domain.BucketSpend)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	onTime := !now.After(payment.DueDate)
	params := store.LoanPaymentParams{
		LoanID:            loanID,
		PaymentID:         payment.ID,
		Amount:            payment.PrincipalPortion + payment.InterestPortion,
		PrincipalPortion:  payment.PrincipalPortion,
		BorrowerAccountID: borrowerAccount.ID,
		LenderAccountID:   lenderAccount.ID,
		PaidAt:            now,
		OnTime:            onTime,
	}

	var result *store.LoanPaymentResult
	err = withConflictRetry(func() error {
		var txErr error
		result, txErr = s.repo.RecordLoanPaymentAtomic(ctx, params)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	if onTime {
		s.recordTrustEvent(ctx, loan.BorrowerID, loan.FamilyID, domain.EventLoanPaymentOnTime, domain.DeltaLoanPaymentOnTime)
	} else {
		s.recordTrustEvent(ctx, loan.BorrowerID, loan.FamilyID, domain.EventLoanPaymentLate, domain.DeltaLoanPaymentLate)
	}

	// A fully-repaid loan earns a bonus; ahead of the final due date earns
	// the larger early-payoff bonus.
	if result.Loan.Status == domain.LoanPaid {
		payments, err := s.repo.ListPaymentsByLoan(ctx, loanID)
		if err == nil && len(payments) > 0 {
			finalDue := payments[len(payments)-1].DueDate
			if now.Before(finalDue) {
				s.recordTrustEvent(ctx, loan.BorrowerID, loan.FamilyID, domain.EventLoanPaidEarly, domain.DeltaLoanPaidEarly)
			} else {
				s.recordTrustEvent(ctx, loan.BorrowerID, loan.FamilyID, domain.EventLoanFullyRepaid, domain.DeltaLoanFullyRepaid)
			}
		}
	}
	return result, nil
}

// LoanByID returns a loan visible to the caller.
func (s *Service) LoanByID(ctx context.Context, caller *domain.User, loanID uuid.UUID) (*domain.Loan, error) {
	loan, err := s.repo.FindLoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if caller.ID != loan.BorrowerID && caller.ID != loan.LenderID {
		return nil, ErrUnauthorized
	}
	return loan, nil
}

// LoansForUser returns loans where the user is borrower or lender.
func (s *Service) LoansForUser(ctx context.Context, user *domain.User) ([]domain.Loan, error) {
	if user.IsParent() {
		return s.repo.ListLoansByLender(ctx, user.ID)
	}
	return s.repo.ListLoansByBorrower(ctx, user.ID)
}

// LoanSchedule returns the payment schedule for a loan the caller can see.
func (s *Service) LoanSchedule(ctx context.Context, caller *domain.User, loanID uuid.UUID) ([]domain.LoanPayment, error) {
	if _, err := s.LoanByID(ctx, caller, loanID); err != nil {
		return nil, err
	}
	return s.repo.ListPaymentsByLoan(ctx, loanID)
}
