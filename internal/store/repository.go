/**
 * @description
 * This file defines the `Repository` interface: the contract for all data
 * access required by the ledger-service. The interface decouples business
 * logic from PostgreSQL so the app layer can be tested against stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hearthpay/ledger-service/internal/domain"
)

// TransferParams carries everything the store needs to post one journal
// entry atomically, including whether spend limits apply to the debit.
type TransferParams struct {
	SourceAccountID      uuid.UUID
	DestinationAccountID uuid.UUID
	Amount               int64
	Category             string
	Description          string
	IdempotencyKey       *string
	GoalID               *uuid.UUID
	// EnforceLimits turns on rolling-window spend-limit evaluation against
	// the source account (card purchases only).
	EnforceLimits bool
	// AllowOverdraft skips the source balance check. Only the virtual
	// external-funds account may overdraw.
	AllowOverdraft bool
}

// TransferResult reports the posted entry plus any savings goal the entry
// completed as a side effect of a tagged contribution.
type TransferResult struct {
	Entry         *domain.JournalEntry
	Replayed      bool // true when an idempotency key resolved to a prior entry
	GoalCompleted *domain.SavingsGoal
}

// LoanPaymentParams carries one repayment application.
type LoanPaymentParams struct {
	LoanID            uuid.UUID
	PaymentID         uuid.UUID
	Amount            int64
	PrincipalPortion  int64
	BorrowerAccountID uuid.UUID
	LenderAccountID   uuid.UUID
	PaidAt            time.Time
	OnTime            bool
}

// LoanPaymentResult reports the applied payment and resulting loan state.
type LoanPaymentResult struct {
	Loan  *domain.Loan
	Entry *domain.JournalEntry
}

// ChorePayoutParams carries the atomic approval + payout of a chore.
type ChorePayoutParams struct {
	ChoreID              uuid.UUID
	SourceAccountID      uuid.UUID
	DestinationAccountID uuid.UUID
	Payout               int64
	ApprovedAt           time.Time
}

// GoalProgressResult reports the goal after a progress update and whether
// this particular update completed it.
type GoalProgressResult struct {
	Goal         *domain.SavingsGoal
	CompletedNow bool
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// User, family, and account methods
	FindUserByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	FindFamilyByID(ctx context.Context, familyID uuid.UUID) (*domain.Family, error)
	FindFamilyByJoinCode(ctx context.Context, joinCode string) (*domain.Family, error)
	CreateFamily(ctx context.Context, family *domain.Family) error
	// ProvisionMember attaches a user to a family, creates the four bucket
	// accounts, and seeds trust factors and the initial score snapshot, all
	// in one transaction.
	ProvisionMember(ctx context.Context, userID, familyID uuid.UUID, role string) ([]domain.LedgerAccount, error)
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.LedgerAccount, error)
	FindAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.LedgerAccount, error)
	FindUserBucketAccount(ctx context.Context, userID uuid.UUID, bucket string) (*domain.LedgerAccount, error)
	FindExternalAccount(ctx context.Context, familyID uuid.UUID) (*domain.LedgerAccount, error)
	UpdateAccountLimits(ctx context.Context, accountID uuid.UUID, daily, weekly, monthly *int64) error

	// Ledger methods
	FindEntryByID(ctx context.Context, entryID uuid.UUID) (*domain.JournalEntry, error)
	FindEntryByIdempotencyKey(ctx context.Context, key string) (*domain.JournalEntry, error)
	PostTransfer(ctx context.Context, params TransferParams) (*TransferResult, error)
	ReverseEntry(ctx context.Context, entryID uuid.UUID, description string) (*domain.JournalEntry, error)
	AccountBalance(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (int64, error)
	PeriodFlow(ctx context.Context, accountID uuid.UUID, start, end time.Time, direction domain.FlowDirection) (int64, error)
	ListEntriesByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.JournalEntry, error)

	// Loan methods
	CreateLoan(ctx context.Context, loan *domain.Loan) error
	FindLoanByID(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error)
	ListLoansByBorrower(ctx context.Context, borrowerID uuid.UUID) ([]domain.Loan, error)
	ListLoansByLender(ctx context.Context, lenderID uuid.UUID) ([]domain.Loan, error)
	ListPaymentsByLoan(ctx context.Context, loanID uuid.UUID) ([]domain.LoanPayment, error)
	// ApproveLoanAtomic moves principal from lender to borrower, persists the
	// schedule, and flips the loan active in one transaction. The whole
	// approval aborts when the transfer fails.
	ApproveLoanAtomic(ctx context.Context, loanID uuid.UUID, payments []domain.LoanPayment, weeklyPayment int64, lenderAccountID, borrowerAccountID uuid.UUID) error
	RejectLoan(ctx context.Context, loanID uuid.UUID) error
	RecordLoanPaymentAtomic(ctx context.Context, params LoanPaymentParams) (*LoanPaymentResult, error)
	FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.LoanPayment, error)
	NextScheduledPayment(ctx context.Context, loanID uuid.UUID) (*domain.LoanPayment, error)
	// Sweep support. MarkPaymentMissed is status-conditioned so re-running
	// the sweep is a no-op for already-processed payments.
	FindOverdueScheduledPayments(ctx context.Context, cutoff time.Time) ([]domain.LoanPayment, error)
	MarkPaymentMissed(ctx context.Context, paymentID uuid.UUID) (bool, error)
	CountTrailingMissedPayments(ctx context.Context, loanID uuid.UUID) (int, error)
	MarkLoanDefaulted(ctx context.Context, loanID uuid.UUID) (bool, error)

	// Chore methods
	CreateChore(ctx context.Context, chore *domain.Chore) error
	FindChoreByID(ctx context.Context, choreID uuid.UUID) (*domain.Chore, error)
	ListChoresByFamily(ctx context.Context, familyID uuid.UUID, status string) ([]domain.Chore, error)
	ListChoresByAssignee(ctx context.Context, assigneeID uuid.UUID) ([]domain.Chore, error)
	ClaimChore(ctx context.Context, choreID, assigneeID uuid.UUID) (*domain.Chore, error)
	MarkChoreDone(ctx context.Context, choreID, assigneeID uuid.UUID) (*domain.Chore, error)
	// ApproveChoreAtomic flips pending_approval through completed to paid and
	// posts the payout entry in one transaction.
	ApproveChoreAtomic(ctx context.Context, params ChorePayoutParams) (*domain.Chore, error)
	RejectChore(ctx context.Context, choreID uuid.UUID) (*domain.Chore, error)

	// Trust methods
	AppendTrustEvent(ctx context.Context, event *domain.TrustScoreEvent, factor string) error
	GetTrustFactors(ctx context.Context, userID uuid.UUID) (*domain.TrustFactors, error)
	InsertTrustSnapshot(ctx context.Context, snapshot *domain.TrustScore) error
	LatestTrustSnapshot(ctx context.Context, userID uuid.UUID) (*domain.TrustScore, error)
	ListTrustSnapshots(ctx context.Context, userID uuid.UUID, limit int) ([]domain.TrustScore, error)
	ListTrustEventsByUser(ctx context.Context, userID uuid.UUID, eventType string, limit, offset int) ([]domain.TrustScoreEvent, error)

	// Savings goal methods
	CreateGoal(ctx context.Context, goal *domain.SavingsGoal) error
	FindGoalByID(ctx context.Context, goalID uuid.UUID) (*domain.SavingsGoal, error)
	ListGoalsByUser(ctx context.Context, userID uuid.UUID) ([]domain.SavingsGoal, error)
	UpdateGoalProgress(ctx context.Context, goalID uuid.UUID, newCurrentAmount int64) (*GoalProgressResult, error)
	CancelGoal(ctx context.Context, goalID uuid.UUID) (*domain.SavingsGoal, error)
	FindActiveGoalsPastDeadline(ctx context.Context, now time.Time) ([]domain.SavingsGoal, error)
}
