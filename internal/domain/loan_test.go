package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTotalInterestSimple(t *testing.T) {
	// $100.00 at 5% over 10 weeks: 10000 * 0.05 * 10 / 52 = 96.15 -> 96 cents.
	got := TotalInterest(10000, 0.05, 10)
	if got != 96 {
		t.Fatalf("expected 96 cents interest, got %d", got)
	}
}

func TestBuildScheduleSumsExactly(t *testing.T) {
	loanID := uuid.New()
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	payments, weekly := BuildSchedule(loanID, 10000, 0.05, 10, start)

	if weekly != 1010 {
		t.Fatalf("expected weekly payment of 1010 cents, got %d", weekly)
	}
	if len(payments) != 10 {
		t.Fatalf("expected 10 payments, got %d", len(payments))
	}

	var totalPaid, totalPrincipal, totalInterest int64
	for i, p := range payments {
		totalPaid += p.PrincipalPortion + p.InterestPortion
		totalPrincipal += p.PrincipalPortion
		totalInterest += p.InterestPortion
		if p.Sequence != i+1 {
			t.Fatalf("payment %d has sequence %d", i, p.Sequence)
		}
		if p.Status != PaymentScheduled {
			t.Fatalf("payment %d not scheduled: %s", i, p.Status)
		}
		wantDue := start.AddDate(0, 0, 7*(i+1))
		if !p.DueDate.Equal(wantDue) {
			t.Fatalf("payment %d due %v, want %v", i, p.DueDate, wantDue)
		}
	}

	// Cumulative payments must equal principal + interest exactly ($100.96).
	if totalPaid != 10096 {
		t.Fatalf("expected cumulative payments of 10096 cents, got %d", totalPaid)
	}
	if totalPrincipal != 10000 {
		t.Fatalf("expected principal portions to sum to 10000, got %d", totalPrincipal)
	}
	if totalInterest != 96 {
		t.Fatalf("expected interest portions to sum to 96, got %d", totalInterest)
	}

	// Final payment absorbs the rounding remainder: 10096 - 9*1010 = 1006.
	last := payments[9]
	if last.PrincipalPortion+last.InterestPortion != 1006 {
		t.Fatalf("expected final payment of 1006 cents, got %d", last.PrincipalPortion+last.InterestPortion)
	}
}

func TestBuildScheduleZeroRate(t *testing.T) {
	payments, weekly := BuildSchedule(uuid.New(), 5200, 0, 4, time.Now())
	if weekly != 1300 {
		t.Fatalf("expected weekly payment of 1300, got %d", weekly)
	}
	for _, p := range payments {
		if p.InterestPortion != 0 {
			t.Fatalf("expected zero interest portion, got %d", p.InterestPortion)
		}
	}
}

func TestLoanTransitionTable(t *testing.T) {
	allowed := [][2]string{
		{LoanPending, LoanActive},
		{LoanPending, LoanRejected},
		{LoanActive, LoanPaid},
		{LoanActive, LoanDefaulted},
	}
	for _, tr := range allowed {
		if !LoanTransitionAllowed(tr[0], tr[1]) {
			t.Errorf("expected %s -> %s to be allowed", tr[0], tr[1])
		}
	}

	forbidden := [][2]string{
		{LoanPending, LoanPaid},
		{LoanPending, LoanDefaulted},
		{LoanRejected, LoanActive},
		{LoanPaid, LoanActive},
		{LoanDefaulted, LoanActive},
		{LoanActive, LoanPending},
	}
	for _, tr := range forbidden {
		if LoanTransitionAllowed(tr[0], tr[1]) {
			t.Errorf("expected %s -> %s to be rejected", tr[0], tr[1])
		}
	}
}
