package domain

import "testing"

func TestChoreTransitionTable(t *testing.T) {
	allowed := [][2]string{
		{ChoreOpen, ChoreClaimed},
		{ChoreClaimed, ChorePendingApproval},
		{ChorePendingApproval, ChoreCompleted},
		{ChorePendingApproval, ChoreOpen},
		{ChoreCompleted, ChorePaid},
	}
	for _, tr := range allowed {
		if !ChoreTransitionAllowed(tr[0], tr[1]) {
			t.Errorf("expected %s -> %s to be allowed", tr[0], tr[1])
		}
	}

	// No transition may skip a state.
	forbidden := [][2]string{
		{ChoreOpen, ChorePendingApproval},
		{ChoreOpen, ChorePaid},
		{ChoreClaimed, ChoreCompleted},
		{ChoreClaimed, ChoreOpen},
		{ChorePendingApproval, ChorePaid},
		{ChorePaid, ChoreOpen},
		{ChoreCompleted, ChoreOpen},
	}
	for _, tr := range forbidden {
		if ChoreTransitionAllowed(tr[0], tr[1]) {
			t.Errorf("expected %s -> %s to be rejected", tr[0], tr[1])
		}
	}
}

func TestFamilyAllocationValid(t *testing.T) {
	f := Family{SpendPercent: 40, SavePercent: 30, GivePercent: 10, InvestPercent: 20}
	if !f.AllocationValid() {
		t.Fatal("expected 40/30/10/20 to be valid")
	}
	f.InvestPercent = 25
	if f.AllocationValid() {
		t.Fatal("expected 40/30/10/25 to be invalid")
	}
}
