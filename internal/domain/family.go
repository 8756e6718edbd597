/**
 * @description
 * This file defines the family and user domain models for the ledger-service.
 * A family is the trust boundary for every money movement in the system: all
 * four bucket accounts, loans, chores, and trust scores hang off a family and
 * its members.
 *
 * @notes
 * - Bucket allocation percentages are whole integers and must sum to 100.
 * - All monetary values in this service are `int64` minor currency units
 *   (cents) to avoid floating-point inaccuracies with financial data.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// User roles within a family.
const (
	RoleParent = "parent"
	RoleKid    = "kid"
)

// Family represents a household. Created once per owning parent; the join
// code is regenerated on collision.
type Family struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	JoinCode    string    `json:"join_code"`
	OwnerUserID uuid.UUID `json:"owner_user_id"`
	// Default bucket allocation percentages applied to inbound funding.
	SpendPercent  int       `json:"spend_percent"`
	SavePercent   int       `json:"save_percent"`
	GivePercent   int       `json:"give_percent"`
	InvestPercent int       `json:"invest_percent"`
	CreatedAt     time.Time `json:"created_at"`
}

// AllocationValid reports whether the family's bucket split sums to 100.
func (f Family) AllocationValid() bool {
	return f.SpendPercent+f.SavePercent+f.GivePercent+f.InvestPercent == 100
}

// User represents a member of the platform. FamilyID is nil until the user
// has joined a family.
type User struct {
	ID          uuid.UUID  `json:"id"`
	ExternalID  string     `json:"external_id"` // identity-provider subject id
	FamilyID    *uuid.UUID `json:"family_id,omitempty"`
	Role        string     `json:"role"` // 'parent' or 'kid'
	DisplayName string     `json:"display_name"`
	DateOfBirth time.Time  `json:"date_of_birth"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsParent reports whether the user holds the parent role.
func (u User) IsParent() bool { return u.Role == RoleParent }
