/**
 * @description
 * This file defines the loan domain models and the amortization math for
 * parent-issued loans. Schedule generation is pure so it can be exercised
 * without a database: simple interest, equal weekly payments rounded to the
 * cent, with the final payment absorbing the rounding remainder so that
 * cumulative payments equal principal plus interest exactly.
 */

package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Loan statuses. Transitions are fixed: pending->active, pending->rejected,
// active->paid, active->defaulted. Everything else is rejected.
const (
	LoanPending   = "pending"
	LoanActive    = "active"
	LoanPaid      = "paid"
	LoanRejected  = "rejected"
	LoanDefaulted = "defaulted"
)

// LoanPayment statuses.
const (
	PaymentScheduled = "scheduled"
	PaymentPaid      = "paid"
	PaymentLate      = "late"
	PaymentMissed    = "missed"
)

var loanTransitions = map[string][]string{
	LoanPending: {LoanActive, LoanRejected},
	LoanActive:  {LoanPaid, LoanDefaulted},
}

// LoanTransitionAllowed reports whether a loan may move from one status to
// another according to the fixed transition table.
func LoanTransitionAllowed(from, to string) bool {
	for _, next := range loanTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Loan represents a parent-issued loan to a kid in the same family.
type Loan struct {
	ID               uuid.UUID  `json:"id"`
	FamilyID         uuid.UUID  `json:"family_id"`
	LenderID         uuid.UUID  `json:"lender_id"`
	BorrowerID       uuid.UUID  `json:"borrower_id"`
	Principal        int64      `json:"principal"` // in cents
	AnnualRate       float64    `json:"annual_rate"`
	TermWeeks        int        `json:"term_weeks"`
	WeeklyPayment    int64      `json:"weekly_payment"` // in cents
	Status           string     `json:"status"`
	RemainingBalance int64      `json:"remaining_balance"` // principal outstanding, in cents
	NextPaymentDue   *time.Time `json:"next_payment_due,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// LoanPayment is one row of a loan's amortization schedule.
type LoanPayment struct {
	ID               uuid.UUID  `json:"id"`
	LoanID           uuid.UUID  `json:"loan_id"`
	Sequence         int        `json:"sequence"`
	DueDate          time.Time  `json:"due_date"`
	PrincipalPortion int64      `json:"principal_portion"` // in cents
	InterestPortion  int64      `json:"interest_portion"`  // in cents
	PaidDate         *time.Time `json:"paid_date,omitempty"`
	OnTime           bool       `json:"on_time"`
	Status           string     `json:"status"`
}

// TotalInterest computes simple interest in cents for a loan's terms:
// principal x annualRate x termWeeks / 52, rounded to the cent.
func TotalInterest(principal int64, annualRate float64, termWeeks int) int64 {
	return int64(math.Round(float64(principal) * annualRate * float64(termWeeks) / 52.0))
}

// BuildSchedule generates the full amortization schedule for a loan starting
// one week after start. The first termWeeks-1 payments are the rounded weekly
// payment; the final payment absorbs the remainder so the schedule sums to
// principal + interest exactly. Principal and interest portions are split the
// same way: a rounded per-week interest slice with the last row taking up the
// slack.
func BuildSchedule(loanID uuid.UUID, principal int64, annualRate float64, termWeeks int, start time.Time) (payments []LoanPayment, weeklyPayment int64) {
	interest := TotalInterest(principal, annualRate, termWeeks)
	total := principal + interest
	weeklyPayment = int64(math.Round(float64(total) / float64(termWeeks)))
	weeklyInterest := int64(math.Round(float64(interest) / float64(termWeeks)))

	payments = make([]LoanPayment, 0, termWeeks)
	var paidSoFar, interestSoFar int64
	for i := 1; i <= termWeeks; i++ {
		amount := weeklyPayment
		interestPortion := weeklyInterest
		if i == termWeeks {
			amount = total - paidSoFar
			interestPortion = interest - interestSoFar
		}
		payments = append(payments, LoanPayment{
			ID:               uuid.New(),
			LoanID:           loanID,
			Sequence:         i,
			DueDate:          start.AddDate(0, 0, 7*i),
			PrincipalPortion: amount - interestPortion,
			InterestPortion:  interestPortion,
			Status:           PaymentScheduled,
		})
		paidSoFar += amount
		interestSoFar += interestPortion
	}
	return payments, weeklyPayment
}
