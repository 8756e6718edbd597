package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hearthpay/ledger-service/internal/domain"
	"github.com/hearthpay/ledger-service/internal/store"
)

type trustRepoStub struct {
	store.Repository

	users   map[uuid.UUID]*domain.User
	factors domain.TrustFactors

	appendedEvents  []domain.TrustScoreEvent
	appendedFactors []string
	snapshots       []domain.TrustScore
	latest          *domain.TrustScore
	events          []domain.TrustScoreEvent
}

func (s *trustRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

func (s *trustRepoStub) AppendTrustEvent(ctx context.Context, event *domain.TrustScoreEvent, factor string) error {
	s.appendedEvents = append(s.appendedEvents, *event)
	s.appendedFactors = append(s.appendedFactors, factor)
	return nil
}

func (s *trustRepoStub) GetTrustFactors(ctx context.Context, userID uuid.UUID) (*domain.TrustFactors, error) {
	f := s.factors
	f.UserID = userID
	return &f, nil
}

func (s *trustRepoStub) InsertTrustSnapshot(ctx context.Context, snapshot *domain.TrustScore) error {
	s.snapshots = append(s.snapshots, *snapshot)
	return nil
}

func (s *trustRepoStub) LatestTrustSnapshot(ctx context.Context, userID uuid.UUID) (*domain.TrustScore, error) {
	if s.latest == nil {
		return nil, store.ErrUserNotFound
	}
	return s.latest, nil
}

func (s *trustRepoStub) ListTrustEventsByUser(ctx context.Context, userID uuid.UUID, eventType string, limit, offset int) ([]domain.TrustScoreEvent, error) {
	if offset >= len(s.events) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.events) {
		end = len(s.events)
	}
	return s.events[offset:end], nil
}

func newTrustFixture() (*trustRepoStub, *domain.User, *domain.User) {
	familyID := uuid.New()
	parent := &domain.User{ID: uuid.New(), FamilyID: &familyID, Role: domain.RoleParent}
	kid := &domain.User{ID: uuid.New(), FamilyID: &familyID, Role: domain.RoleKid}

	repo := &trustRepoStub{
		users: map[uuid.UUID]*domain.User{
			parent.ID: parent,
			kid.ID:    kid,
		},
		factors: domain.TrustFactors{
			LoanRepayment:      50,
			SavingsConsistency: 50,
			ChoreCompletion:    50,
			BudgetAdherence:    50,
			GivingBehavior:     50,
			AccountAge:         50,
			ParentEndorsements: 50,
		},
	}
	return repo, parent, kid
}

func TestRecordTrustEvent_UnknownTypeRejected(t *testing.T) {
	repo, _, kid := newTrustFixture()
	svc := NewService(repo, nil, nil, 3, 2)

	_, err := svc.RecordTrustEvent(context.Background(), kid.ID, "made_the_bed", 5)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(repo.appendedEvents) != 0 {
		t.Fatal("expected no event appended")
	}
}

func TestRecordTrustEvent_MapsEventToFactorAndSnapshots(t *testing.T) {
	repo, _, kid := newTrustFixture()
	svc := NewService(repo, nil, nil, 3, 2)

	snapshot, err := svc.RecordTrustEvent(context.Background(), kid.ID, domain.EventChoreCompleted, domain.DeltaChoreCompleted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.appendedFactors) != 1 || repo.appendedFactors[0] != domain.FactorChoreCompletion {
		t.Fatalf("expected chore_completion factor, got %v", repo.appendedFactors)
	}
	if len(repo.snapshots) != 1 {
		t.Fatalf("expected one snapshot inserted, got %d", len(repo.snapshots))
	}
	// All factors at 50 fold to the midpoint: 300 + 50*5.5 = 575.
	if snapshot.Score != 575 {
		t.Fatalf("expected score 575, got %d", snapshot.Score)
	}
}

func TestRecordTrustEvent_PublishesEvent(t *testing.T) {
	repo, _, kid := newTrustFixture()
	pub := &publisherStub{}
	svc := NewService(repo, nil, pub, 3, 2)

	if _, err := svc.RecordTrustEvent(context.Background(), kid.ID, domain.EventGivingDonation, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.published) != 1 || pub.published[0] != "trust.event.recorded" {
		t.Fatalf("expected trust.event.recorded published, got %v", pub.published)
	}
}

func TestEndorseChild_ParentInFamilyOnly(t *testing.T) {
	repo, parent, kid := newTrustFixture()
	svc := NewService(repo, nil, nil, 3, 2)

	if _, err := svc.EndorseChild(context.Background(), kid, parent.ID, 5); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected kids barred from endorsing, got %v", err)
	}

	otherFamily := uuid.New()
	outsider := &domain.User{ID: uuid.New(), FamilyID: &otherFamily, Role: domain.RoleParent}
	if _, err := svc.EndorseChild(context.Background(), outsider, kid.ID, 5); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected cross-family endorsement rejected, got %v", err)
	}

	if _, err := svc.EndorseChild(context.Background(), parent, kid.ID, 50); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected oversized delta rejected, got %v", err)
	}

	if _, err := svc.EndorseChild(context.Background(), parent, kid.ID, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.appendedEvents) != 1 || repo.appendedEvents[0].EventType != domain.EventParentEndorsement {
		t.Fatalf("expected one endorsement event, got %v", repo.appendedEvents)
	}
}

func TestSavingStreak_CountsConsecutivePositiveDeltas(t *testing.T) {
	repo, _, kid := newTrustFixture()
	// Newest first: three positive weeks, then a broken week.
	repo.events = []domain.TrustScoreEvent{
		{EventType: domain.EventSavingsStreak, PointDelta: 2},
		{EventType: domain.EventSavingsStreak, PointDelta: 2},
		{EventType: domain.EventSavingsStreak, PointDelta: 2},
		{EventType: domain.EventSavingsStreak, PointDelta: -1},
		{EventType: domain.EventSavingsStreak, PointDelta: 2},
	}
	svc := NewService(repo, nil, nil, 3, 2)

	streak, err := svc.SavingStreak(context.Background(), kid.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if streak != 3 {
		t.Fatalf("expected streak of 3, got %d", streak)
	}
}

func TestSavingStreak_CountsPastOneFetchPage(t *testing.T) {
	repo, _, kid := newTrustFixture()
	// More consecutive positive weeks than one page of the scan holds.
	for i := 0; i < streakPageSize+37; i++ {
		repo.events = append(repo.events, domain.TrustScoreEvent{
			EventType:  domain.EventSavingsStreak,
			PointDelta: 2,
		})
	}
	repo.events = append(repo.events, domain.TrustScoreEvent{
		EventType:  domain.EventSavingsStreak,
		PointDelta: -1,
	})
	svc := NewService(repo, nil, nil, 3, 2)

	streak, err := svc.SavingStreak(context.Background(), kid.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if streak != streakPageSize+37 {
		t.Fatalf("expected streak %d, got %d", streakPageSize+37, streak)
	}
}

func TestTierInfo_MapsScoreToPerks(t *testing.T) {
	repo, _, kid := newTrustFixture()
	repo.latest = &domain.TrustScore{UserID: kid.ID, Score: 760}
	svc := NewService(repo, nil, nil, 3, 2)

	perks, err := svc.TierInfo(context.Background(), kid.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if perks.Tier != domain.TierExcellent {
		t.Fatalf("expected excellent tier at 760, got %s", perks.Tier)
	}
	if !perks.PrioritySupport {
		t.Fatal("expected priority support in the top tier")
	}
}
