/**
 * @description
 * This file defines the core ledger domain models: bucket accounts and the
 * append-only journal of double-entry transfers. Every other component of the
 * service moves value exclusively by posting journal entries.
 *
 * @notes
 * - An account's balance is never stored as truth; it is the fold of journal
 *   entries (destination credits minus source debits). The store may cache a
 *   running total but must keep it inside the same transaction as the write.
 * - Amounts are `int64` minor currency units (cents).
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Bucket kinds. Exactly four bucket accounts are provisioned per user at
// family-join time, one of each kind. The external kind marks a family's
// virtual external-funds account used by funding and withdrawal webhooks;
// it is the only account allowed to violate the zero-sum invariant.
const (
	BucketSpend    = "spend"
	BucketSave     = "save"
	BucketGive     = "give"
	BucketInvest   = "invest"
	BucketExternal = "external"
)

// Journal entry statuses.
const (
	EntryPosted   = "posted"
	EntryReversed = "reversed"
)

// Journal entry categories used by the core flows.
const (
	CategoryAllowance        = "allowance"
	CategoryCardPurchase     = "card_purchase"
	CategoryChorePayout      = "chore_payout"
	CategoryExternalFunding  = "external_funding"
	CategoryExternalWithdraw = "external_withdrawal"
	CategoryGoalContribution = "goal_contribution"
	CategoryLoanDisbursement = "loan_disbursement"
	CategoryLoanPayment      = "loan_payment"
	CategoryReversal         = "reversal"
	CategoryTransfer         = "transfer"
)

// UserBuckets returns the four bucket kinds provisioned for every member.
func UserBuckets() []string {
	return []string{BucketSpend, BucketSave, BucketGive, BucketInvest}
}

// LedgerAccount is a purpose-tagged money bucket owned by a single user.
// The external-funds account has no owning user (UserID is nil).
type LedgerAccount struct {
	ID       uuid.UUID  `json:"id"`
	UserID   *uuid.UUID `json:"user_id,omitempty"`
	FamilyID uuid.UUID  `json:"family_id"`
	Bucket   string     `json:"bucket"`
	// Optional spend limits in cents, evaluated over rolling windows for
	// card-purchase debits. Nil means no limit for that window.
	DailyLimit   *int64    `json:"daily_limit,omitempty"`
	WeeklyLimit  *int64    `json:"weekly_limit,omitempty"`
	MonthlyLimit *int64    `json:"monthly_limit,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsExternal reports whether the account is a family's virtual
// external-funds account.
func (a LedgerAccount) IsExternal() bool { return a.Bucket == BucketExternal }

// JournalEntry is an immutable record of value moving from one account to
// another. Once posted it never changes except for an explicit reversing
// entry, which marks the original reversed and posts the opposite movement.
type JournalEntry struct {
	ID                   uuid.UUID  `json:"id"`
	SourceAccountID      uuid.UUID  `json:"source_account_id"`
	DestinationAccountID uuid.UUID  `json:"destination_account_id"`
	Amount               int64      `json:"amount"` // in cents, always positive
	Category             string     `json:"category"`
	Description          string     `json:"description"`
	IdempotencyKey       *string    `json:"idempotency_key,omitempty"`
	GoalID               *uuid.UUID `json:"goal_id,omitempty"`
	Status               string     `json:"status"`
	CreatedAt            time.Time  `json:"created_at"`
}

// TransferRequest carries the parameters of a single double-entry transfer.
type TransferRequest struct {
	SourceAccountID      uuid.UUID  `json:"source_account_id"`
	DestinationAccountID uuid.UUID  `json:"destination_account_id"`
	Amount               int64      `json:"amount"` // in cents
	Category             string     `json:"category"`
	Description          string     `json:"description"`
	IdempotencyKey       *string    `json:"idempotency_key,omitempty"`
	GoalID               *uuid.UUID `json:"goal_id,omitempty"`
}

// FlowDirection selects inbound or outbound entries for period folds.
type FlowDirection string

const (
	FlowInbound  FlowDirection = "inbound"
	FlowOutbound FlowDirection = "outbound"
)

// Spend-limit windows, evaluated as rolling durations ending now.
const (
	LimitWindowDay   = 24 * time.Hour
	LimitWindowWeek  = 7 * 24 * time.Hour
	LimitWindowMonth = 30 * 24 * time.Hour
)

// SpendWindow is one configured rolling spend-limit window on an account.
type SpendWindow struct {
	Limit  int64
	Window time.Duration
}

// Exceeds reports whether posting amount on top of what the window has
// already absorbed crosses the cap. Spending exactly up to the cap is
// allowed.
func (w SpendWindow) Exceeds(spent, amount int64) bool {
	return spent+amount > w.Limit
}

// SpendWindows returns the account's configured limit windows. Unset limits
// contribute no window.
func (a LedgerAccount) SpendWindows() []SpendWindow {
	var windows []SpendWindow
	if a.DailyLimit != nil {
		windows = append(windows, SpendWindow{Limit: *a.DailyLimit, Window: LimitWindowDay})
	}
	if a.WeeklyLimit != nil {
		windows = append(windows, SpendWindow{Limit: *a.WeeklyLimit, Window: LimitWindowWeek})
	}
	if a.MonthlyLimit != nil {
		windows = append(windows, SpendWindow{Limit: *a.MonthlyLimit, Window: LimitWindowMonth})
	}
	return windows
}

// NetBalance folds journal entries to one account's balance: credits to the
// account minus debits from it. This is the in-memory reference for the
// store's SQL fold, and the definition under which every two-sided entry
// conserves the total across accounts.
func NetBalance(accountID uuid.UUID, entries []JournalEntry) int64 {
	var balance int64
	for _, e := range entries {
		if e.DestinationAccountID == accountID {
			balance += e.Amount
		}
		if e.SourceAccountID == accountID {
			balance -= e.Amount
		}
	}
	return balance
}
