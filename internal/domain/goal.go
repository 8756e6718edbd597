package domain

import (
	"time"

	"github.com/google/uuid"
)

// Savings goal statuses. active->completed and active->cancelled are the
// only transitions; both end states are terminal and history is retained.
const (
	GoalActive    = "active"
	GoalCompleted = "completed"
	GoalCancelled = "cancelled"
)

// SavingsGoal binds a target amount to one of the user's bucket accounts.
// Progress may be driven explicitly or by inbound transfers tagged with the
// goal's id; both converge to the same completed state.
type SavingsGoal struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	AccountID     uuid.UUID  `json:"account_id"`
	Name          string     `json:"name"`
	TargetAmount  int64      `json:"target_amount"`  // in cents
	CurrentAmount int64      `json:"current_amount"` // in cents
	Deadline      *time.Time `json:"deadline,omitempty"`
	Status        string     `json:"status"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
