package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hearthpay/ledger-service/internal/domain"
	"github.com/hearthpay/ledger-service/internal/store"
)

type transferRepoStub struct {
	store.Repository

	accounts map[uuid.UUID]*domain.LedgerAccount

	postCalls  int
	lastParams store.TransferParams
	postResult *store.TransferResult
	postErr    error

	trustEvents []string
	factors     domain.TrustFactors
}

func (s *transferRepoStub) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.LedgerAccount, error) {
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return account, nil
}

func (s *transferRepoStub) PostTransfer(ctx context.Context, params store.TransferParams) (*store.TransferResult, error) {
	s.postCalls++
	s.lastParams = params
	if s.postErr != nil {
		return nil, s.postErr
	}
	return s.postResult, nil
}

func (s *transferRepoStub) AppendTrustEvent(ctx context.Context, event *domain.TrustScoreEvent, factor string) error {
	s.trustEvents = append(s.trustEvents, event.EventType)
	return nil
}

func (s *transferRepoStub) GetTrustFactors(ctx context.Context, userID uuid.UUID) (*domain.TrustFactors, error) {
	f := s.factors
	f.UserID = userID
	return &f, nil
}

func (s *transferRepoStub) InsertTrustSnapshot(ctx context.Context, snapshot *domain.TrustScore) error {
	return nil
}

type publisherStub struct {
	published []string
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.published = append(p.published, routingKey)
	return nil
}

func (p *publisherStub) Close() {}

func newTransferFixture() (*transferRepoStub, *domain.User, *domain.User, uuid.UUID, uuid.UUID) {
	familyID := uuid.New()
	parent := &domain.User{ID: uuid.New(), FamilyID: &familyID, Role: domain.RoleParent}
	kid := &domain.User{ID: uuid.New(), FamilyID: &familyID, Role: domain.RoleKid}

	kidSpend := uuid.New()
	kidSave := uuid.New()

	repo := &transferRepoStub{
		accounts: map[uuid.UUID]*domain.LedgerAccount{
			kidSpend: {ID: kidSpend, FamilyID: familyID, UserID: &kid.ID, Bucket: domain.BucketSpend},
			kidSave:  {ID: kidSave, FamilyID: familyID, UserID: &kid.ID, Bucket: domain.BucketSave},
		},
	}
	repo.postResult = &store.TransferResult{
		Entry: &domain.JournalEntry{ID: uuid.New(), SourceAccountID: kidSpend, DestinationAccountID: kidSave, Amount: 500},
	}
	return repo, parent, kid, kidSpend, kidSave
}

func TestTransfer_RejectsNonPositiveAmount(t *testing.T) {
	repo, _, kid, src, dst := newTransferFixture()
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.Transfer(context.Background(), kid, domain.TransferRequest{
		SourceAccountID:      src,
		DestinationAccountID: dst,
		Amount:               0,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if repo.postCalls != 0 {
		t.Fatal("expected no posting for invalid amount")
	}
}

func TestTransfer_RejectsSameAccount(t *testing.T) {
	repo, _, kid, src, _ := newTransferFixture()
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.Transfer(context.Background(), kid, domain.TransferRequest{
		SourceAccountID:      src,
		DestinationAccountID: src,
		Amount:               100,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTransfer_RejectsCrossFamily(t *testing.T) {
	repo, _, kid, src, _ := newTransferFixture()
	otherFamily := uuid.New()
	otherUser := uuid.New()
	foreign := uuid.New()
	repo.accounts[foreign] = &domain.LedgerAccount{ID: foreign, FamilyID: otherFamily, UserID: &otherUser, Bucket: domain.BucketSpend}
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.Transfer(context.Background(), kid, domain.TransferRequest{
		SourceAccountID:      src,
		DestinationAccountID: foreign,
		Amount:               100,
	})
	if !errors.Is(err, ErrCrossFamily) {
		t.Fatalf("expected cross-family rejection, got %v", err)
	}
}

func TestTransfer_RejectsCrossUserForPlainCategory(t *testing.T) {
	repo, parent, kid, src, _ := newTransferFixture()
	parentSpend := uuid.New()
	repo.accounts[parentSpend] = &domain.LedgerAccount{ID: parentSpend, FamilyID: *kid.FamilyID, UserID: &parent.ID, Bucket: domain.BucketSpend}
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.Transfer(context.Background(), kid, domain.TransferRequest{
		SourceAccountID:      src,
		DestinationAccountID: parentSpend,
		Amount:               100,
		Category:             domain.CategoryTransfer,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for cross-user transfer, got %v", err)
	}
}

func TestTransfer_AllowsAllowanceAcrossUsers(t *testing.T) {
	repo, parent, kid, _, _ := newTransferFixture()
	parentSpend := uuid.New()
	repo.accounts[parentSpend] = &domain.LedgerAccount{ID: parentSpend, FamilyID: *kid.FamilyID, UserID: &parent.ID, Bucket: domain.BucketSpend}
	kidSpend := repo.postResult.Entry.SourceAccountID
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.Transfer(context.Background(), parent, domain.TransferRequest{
		SourceAccountID:      parentSpend,
		DestinationAccountID: kidSpend,
		Amount:               1000,
		Category:             domain.CategoryAllowance,
	})
	if err != nil {
		t.Fatalf("expected allowance to post, got %v", err)
	}
	if repo.postCalls != 1 {
		t.Fatalf("expected one posting, got %d", repo.postCalls)
	}
}

func TestTransfer_KidCannotDebitAnotherUsersAccount(t *testing.T) {
	repo, parent, kid, _, _ := newTransferFixture()
	parentSpend := uuid.New()
	repo.accounts[parentSpend] = &domain.LedgerAccount{ID: parentSpend, FamilyID: *kid.FamilyID, UserID: &parent.ID, Bucket: domain.BucketSpend}
	kidSpend := repo.postResult.Entry.SourceAccountID
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.Transfer(context.Background(), kid, domain.TransferRequest{
		SourceAccountID:      parentSpend,
		DestinationAccountID: kidSpend,
		Amount:               1000,
		Category:             domain.CategoryAllowance,
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected authorization failure, got %v", err)
	}
}

func TestTransfer_ParentCanDebitKidAccount(t *testing.T) {
	repo, parent, _, src, dst := newTransferFixture()
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.Transfer(context.Background(), parent, domain.TransferRequest{
		SourceAccountID:      src,
		DestinationAccountID: dst,
		Amount:               100,
	})
	if err != nil {
		t.Fatalf("expected parent to move kid funds, got %v", err)
	}
}

func TestTransfer_CardPurchaseEnforcesLimits(t *testing.T) {
	repo, _, kid, src, dst := newTransferFixture()
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.Transfer(context.Background(), kid, domain.TransferRequest{
		SourceAccountID:      src,
		DestinationAccountID: dst,
		Amount:               100,
		Category:             domain.CategoryCardPurchase,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repo.lastParams.EnforceLimits {
		t.Fatal("expected limit enforcement for card purchase")
	}
	if repo.lastParams.AllowOverdraft {
		t.Fatal("did not expect overdraft for a bucket source")
	}
}

func TestTransfer_ExternalSourceMayOverdraw(t *testing.T) {
	repo, parent, kid, _, _ := newTransferFixture()
	external := uuid.New()
	repo.accounts[external] = &domain.LedgerAccount{ID: external, FamilyID: *kid.FamilyID, Bucket: domain.BucketExternal}
	kidSpend := repo.postResult.Entry.SourceAccountID
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.Transfer(context.Background(), parent, domain.TransferRequest{
		SourceAccountID:      external,
		DestinationAccountID: kidSpend,
		Amount:               1000,
		Category:             domain.CategoryExternalFunding,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repo.lastParams.AllowOverdraft {
		t.Fatal("expected overdraft allowance for external source")
	}
}

func TestTransfer_ReplayDoesNotPublish(t *testing.T) {
	repo, _, kid, src, dst := newTransferFixture()
	repo.postResult.Replayed = true
	pub := &publisherStub{}
	svc := NewService(repo, nil, pub, 3, 2)

	result, err := svc.Transfer(context.Background(), kid, domain.TransferRequest{
		SourceAccountID:      src,
		DestinationAccountID: dst,
		Amount:               500,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Replayed {
		t.Fatal("expected replayed result")
	}
	if len(pub.published) != 0 {
		t.Fatalf("expected no events for replay, got %v", pub.published)
	}
}

func TestTransfer_GoalCompletionRecordsTrustEvent(t *testing.T) {
	repo, _, kid, src, dst := newTransferFixture()
	repo.postResult.GoalCompleted = &domain.SavingsGoal{ID: uuid.New(), UserID: kid.ID}
	pub := &publisherStub{}
	svc := NewService(repo, nil, pub, 3, 2)

	_, err := svc.Transfer(context.Background(), kid, domain.TransferRequest{
		SourceAccountID:      src,
		DestinationAccountID: dst,
		Amount:               500,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.trustEvents) != 1 || repo.trustEvents[0] != domain.EventSavingsGoalReached {
		t.Fatalf("expected savings_goal_reached event, got %v", repo.trustEvents)
	}
}

func TestTransfer_SerializationConflictSurfacesAfterRetries(t *testing.T) {
	repo, _, kid, src, dst := newTransferFixture()
	repo.postErr = store.ErrSerializationConflict
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.Transfer(context.Background(), kid, domain.TransferRequest{
		SourceAccountID:      src,
		DestinationAccountID: dst,
		Amount:               100,
	})
	if !errors.Is(err, store.ErrInvalidStateTransition) {
		t.Fatalf("expected conflict surfaced as invalid transition, got %v", err)
	}
	if repo.postCalls != maxConflictRetries {
		t.Fatalf("expected %d attempts, got %d", maxConflictRetries, repo.postCalls)
	}
}
