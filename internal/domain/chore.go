// Package domain chore models: the marketplace turns completed housework
// into ledger payouts and trust events via a fixed state machine.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Chore statuses. open->claimed->pending_approval->completed->paid is the
// happy path; a parent may send pending_approval back to open (rejection).
// The completed->paid hop is collapsed into the atomic approval step so a
// chore is never observable as completed without its payout entry.
const (
	ChoreOpen            = "open"
	ChoreClaimed         = "claimed"
	ChorePendingApproval = "pending_approval"
	ChoreCompleted       = "completed"
	ChorePaid            = "paid"
)

var choreTransitions = map[string][]string{
	ChoreOpen:            {ChoreClaimed},
	ChoreClaimed:         {ChorePendingApproval},
	ChorePendingApproval: {ChoreCompleted, ChoreOpen},
	ChoreCompleted:       {ChorePaid},
}

// ChoreTransitionAllowed reports whether a chore may move between the two
// statuses according to the fixed transition table.
func ChoreTransitionAllowed(from, to string) bool {
	for _, next := range choreTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Chore is a unit of paid housework posted by a parent.
type Chore struct {
	ID          uuid.UUID  `json:"id"`
	FamilyID    uuid.UUID  `json:"family_id"`
	CreatorID   uuid.UUID  `json:"creator_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Payout      int64      `json:"payout"` // in cents
	AssigneeID  *uuid.UUID `json:"assignee_id,omitempty"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
