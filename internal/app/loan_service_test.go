package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hearthpay/ledger-service/internal/domain"
	"github.com/hearthpay/ledger-service/internal/store"
)

type loanRepoStub struct {
	store.Repository

	loan     *domain.Loan
	borrower *domain.User
	buckets  map[uuid.UUID]*domain.LedgerAccount
	payments []domain.LoanPayment

	createdLoan *domain.Loan

	approveCalled bool
	approveErr    error
	schedule      []domain.LoanPayment

	paymentResult *store.LoanPaymentResult
	paymentParams store.LoanPaymentParams

	trustEvents []string
}

func (s *loanRepoStub) CreateLoan(ctx context.Context, loan *domain.Loan) error {
	s.createdLoan = loan
	return nil
}

func (s *loanRepoStub) FindLoanByID(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	if s.loan == nil || s.loan.ID != loanID {
		return nil, store.ErrLoanNotFound
	}
	return s.loan, nil
}

func (s *loanRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	if s.borrower == nil || s.borrower.ID != userID {
		return nil, store.ErrUserNotFound
	}
	return s.borrower, nil
}

func (s *loanRepoStub) FindUserBucketAccount(ctx context.Context, userID uuid.UUID, bucket string) (*domain.LedgerAccount, error) {
	account, ok := s.buckets[userID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return account, nil
}

func (s *loanRepoStub) ApproveLoanAtomic(ctx context.Context, loanID uuid.UUID, payments []domain.LoanPayment, weeklyPayment int64, lenderAccountID, borrowerAccountID uuid.UUID) error {
	if s.approveErr != nil {
		return s.approveErr
	}
	s.approveCalled = true
	s.schedule = payments
	s.loan.Status = domain.LoanActive
	s.loan.WeeklyPayment = weeklyPayment
	return nil
}

func (s *loanRepoStub) NextScheduledPayment(ctx context.Context, loanID uuid.UUID) (*domain.LoanPayment, error) {
	for i := range s.payments {
		if s.payments[i].Status == domain.PaymentScheduled {
			return &s.payments[i], nil
		}
	}
	return nil, store.ErrPaymentNotFound
}

func (s *loanRepoStub) RecordLoanPaymentAtomic(ctx context.Context, params store.LoanPaymentParams) (*store.LoanPaymentResult, error) {
	s.paymentParams = params
	return s.paymentResult, nil
}

func (s *loanRepoStub) ListPaymentsByLoan(ctx context.Context, loanID uuid.UUID) ([]domain.LoanPayment, error) {
	return s.payments, nil
}

func (s *loanRepoStub) AppendTrustEvent(ctx context.Context, event *domain.TrustScoreEvent, factor string) error {
	s.trustEvents = append(s.trustEvents, event.EventType)
	return nil
}

func (s *loanRepoStub) GetTrustFactors(ctx context.Context, userID uuid.UUID) (*domain.TrustFactors, error) {
	return &domain.TrustFactors{UserID: userID}, nil
}

func (s *loanRepoStub) InsertTrustSnapshot(ctx context.Context, snapshot *domain.TrustScore) error {
	return nil
}

func newLoanFixture() (*loanRepoStub, *domain.User, *domain.User) {
	familyID := uuid.New()
	lender := &domain.User{ID: uuid.New(), FamilyID: &familyID, Role: domain.RoleParent}
	borrower := &domain.User{ID: uuid.New(), FamilyID: &familyID, Role: domain.RoleKid}

	repo := &loanRepoStub{
		borrower: borrower,
		loan: &domain.Loan{
			ID:               uuid.New(),
			FamilyID:         familyID,
			LenderID:         lender.ID,
			BorrowerID:       borrower.ID,
			Principal:        10000,
			AnnualRate:       0.05,
			TermWeeks:        10,
			Status:           domain.LoanPending,
			RemainingBalance: 10000,
		},
		buckets: map[uuid.UUID]*domain.LedgerAccount{
			lender.ID:   {ID: uuid.New(), FamilyID: familyID, UserID: &lender.ID, Bucket: domain.BucketSpend},
			borrower.ID: {ID: uuid.New(), FamilyID: familyID, UserID: &borrower.ID, Bucket: domain.BucketSpend},
		},
	}
	return repo, lender, borrower
}

func TestCreateLoan_ValidatesTerms(t *testing.T) {
	repo, lender, borrower := newLoanFixture()
	svc := NewService(repo, nil, nil, 3, 2)

	cases := []struct {
		name      string
		principal int64
		rate      float64
		weeks     int
	}{
		{"zero principal", 0, 0.05, 10},
		{"negative principal", -100, 0.05, 10},
		{"negative rate", 1000, -0.1, 10},
		{"rate above one", 1000, 1.5, 10},
		{"zero term", 1000, 0.05, 0},
		{"term too long", 1000, 0.05, 300},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateLoan(context.Background(), lender, borrower.ID, tc.principal, tc.rate, tc.weeks)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateLoan_KidCannotLend(t *testing.T) {
	repo, _, borrower := newLoanFixture()
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.CreateLoan(context.Background(), borrower, borrower.ID, 1000, 0.05, 10)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected authorization failure, got %v", err)
	}
}

func TestCreateLoan_StartsPendingWithFullBalance(t *testing.T) {
	repo, lender, borrower := newLoanFixture()
	svc := NewService(repo, nil, nil, 3, 2)

	loan, err := svc.CreateLoan(context.Background(), lender, borrower.ID, 5000, 0.04, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loan.Status != domain.LoanPending {
		t.Fatalf("expected pending status, got %s", loan.Status)
	}
	if loan.RemainingBalance != 5000 {
		t.Fatalf("expected remaining balance to equal principal, got %d", loan.RemainingBalance)
	}
	if repo.createdLoan == nil {
		t.Fatal("expected loan persisted")
	}
}

func TestApproveLoan_OnlyLenderMayApprove(t *testing.T) {
	repo, _, borrower := newLoanFixture()
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.ApproveLoan(context.Background(), borrower, repo.loan.ID)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected authorization failure, got %v", err)
	}
	if repo.approveCalled {
		t.Fatal("expected no approval side effects")
	}
}

func TestApproveLoan_BuildsScheduleAndActivates(t *testing.T) {
	repo, lender, _ := newLoanFixture()
	svc := NewService(repo, nil, nil, 3, 2)

	loan, err := svc.ApproveLoan(context.Background(), lender, repo.loan.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repo.approveCalled {
		t.Fatal("expected atomic approval call")
	}
	if loan.Status != domain.LoanActive {
		t.Fatalf("expected active loan, got %s", loan.Status)
	}
	if len(repo.schedule) != 10 {
		t.Fatalf("expected 10 schedule rows, got %d", len(repo.schedule))
	}
	// 10000 at 5% over 10 weeks: 96 interest, 1010 weekly, final 1006.
	if loan.WeeklyPayment != 1010 {
		t.Fatalf("expected weekly payment 1010, got %d", loan.WeeklyPayment)
	}
	final := repo.schedule[len(repo.schedule)-1]
	if final.PrincipalPortion+final.InterestPortion != 1006 {
		t.Fatalf("expected final payment 1006, got %d", final.PrincipalPortion+final.InterestPortion)
	}
}

func TestApproveLoan_RejectedLoanCannotActivate(t *testing.T) {
	repo, lender, _ := newLoanFixture()
	repo.loan.Status = domain.LoanRejected
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.ApproveLoan(context.Background(), lender, repo.loan.ID)
	if !errors.Is(err, store.ErrInvalidStateTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestApproveLoan_InsufficientFundsAbortsWholeApproval(t *testing.T) {
	repo, lender, _ := newLoanFixture()
	repo.approveErr = store.ErrInsufficientFunds
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.ApproveLoan(context.Background(), lender, repo.loan.ID)
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if repo.loan.Status != domain.LoanPending {
		t.Fatalf("expected loan left pending, got %s", repo.loan.Status)
	}
}

func TestRecordLoanPayment_OnTimeRecordsPositiveEvent(t *testing.T) {
	repo, _, borrower := newLoanFixture()
	repo.loan.Status = domain.LoanActive
	repo.payments = []domain.LoanPayment{
		{ID: uuid.New(), LoanID: repo.loan.ID, Sequence: 1, DueDate: time.Now().AddDate(0, 0, 3), PrincipalPortion: 1000, InterestPortion: 10, Status: domain.PaymentScheduled},
	}
	repo.paymentResult = &store.LoanPaymentResult{
		Loan:  &domain.Loan{ID: repo.loan.ID, Status: domain.LoanActive, RemainingBalance: 9000},
		Entry: &domain.JournalEntry{ID: uuid.New(), Amount: 1010},
	}
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.RecordLoanPayment(context.Background(), borrower, repo.loan.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repo.paymentParams.OnTime {
		t.Fatal("expected on-time payment")
	}
	if repo.paymentParams.Amount != 1010 {
		t.Fatalf("expected payment amount 1010, got %d", repo.paymentParams.Amount)
	}
	if len(repo.trustEvents) != 1 || repo.trustEvents[0] != domain.EventLoanPaymentOnTime {
		t.Fatalf("expected on-time trust event, got %v", repo.trustEvents)
	}
}

func TestRecordLoanPayment_LateRecordsNegativeEvent(t *testing.T) {
	repo, _, borrower := newLoanFixture()
	repo.loan.Status = domain.LoanActive
	repo.payments = []domain.LoanPayment{
		{ID: uuid.New(), LoanID: repo.loan.ID, Sequence: 1, DueDate: time.Now().AddDate(0, 0, -2), PrincipalPortion: 1000, InterestPortion: 10, Status: domain.PaymentScheduled},
	}
	repo.paymentResult = &store.LoanPaymentResult{
		Loan:  &domain.Loan{ID: repo.loan.ID, Status: domain.LoanActive, RemainingBalance: 9000},
		Entry: &domain.JournalEntry{ID: uuid.New(), Amount: 1010},
	}
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.RecordLoanPayment(context.Background(), borrower, repo.loan.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.paymentParams.OnTime {
		t.Fatal("expected late payment")
	}
	if len(repo.trustEvents) != 1 || repo.trustEvents[0] != domain.EventLoanPaymentLate {
		t.Fatalf("expected late trust event, got %v", repo.trustEvents)
	}
}

func TestRecordLoanPayment_FinalPaymentEmitsPayoffBonus(t *testing.T) {
	repo, _, borrower := newLoanFixture()
	repo.loan.Status = domain.LoanActive
	repo.payments = []domain.LoanPayment{
		{ID: uuid.New(), LoanID: repo.loan.ID, Sequence: 1, DueDate: time.Now().AddDate(0, 0, 3), PrincipalPortion: 1000, InterestPortion: 6, Status: domain.PaymentScheduled},
	}
	repo.paymentResult = &store.LoanPaymentResult{
		Loan:  &domain.Loan{ID: repo.loan.ID, Status: domain.LoanPaid, RemainingBalance: 0},
		Entry: &domain.JournalEntry{ID: uuid.New(), Amount: 1006},
	}
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.RecordLoanPayment(context.Background(), borrower, repo.loan.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Paid before the final due date: on-time event plus the early-payoff bonus.
	if len(repo.trustEvents) != 2 {
		t.Fatalf("expected two trust events, got %v", repo.trustEvents)
	}
	if repo.trustEvents[1] != domain.EventLoanPaidEarly {
		t.Fatalf("expected early payoff bonus, got %s", repo.trustEvents[1])
	}
}

func TestRecordLoanPayment_StrangerCannotPay(t *testing.T) {
	repo, _, _ := newLoanFixture()
	repo.loan.Status = domain.LoanActive
	familyID := uuid.New()
	stranger := &domain.User{ID: uuid.New(), FamilyID: &familyID, Role: domain.RoleKid}
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.RecordLoanPayment(context.Background(), stranger, repo.loan.ID)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected authorization failure, got %v", err)
	}
}

func TestRecordLoanPayment_InactiveLoanRejected(t *testing.T) {
	repo, _, borrower := newLoanFixture()
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.RecordLoanPayment(context.Background(), borrower, repo.loan.ID)
	if !errors.Is(err, store.ErrInvalidStateTransition) {
		t.Fatalf("expected invalid transition for pending loan, got %v", err)
	}
}
