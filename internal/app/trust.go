/**
 * @description
 * Trust Score Engine: folds the append-only behavioral event log into seven
 * weighted factors and immutable score snapshots. Events commute, so the
 * engine recomputes eagerly after every append without correctness risk;
 * readers take the most recent snapshot.
 */

package app

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/hearthpay/ledger-service/internal/domain"
)

// RecordTrustEvent appends a behavioral event for a user, applies the
// clamped delta to the mapped factor, and stores a fresh score snapshot.
func (s *Service) RecordTrustEvent(ctx context.Context, userID uuid.UUID, eventType string, pointDelta int) (*domain.TrustScore, error) {
	factor, ok := domain.EventFactor[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown trust event type %q", ErrValidation, eventType)
	}
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.FamilyID == nil {
		return nil, fmt.Errorf("%w: user has not joined a family", ErrValidation)
	}

	event := &domain.TrustScoreEvent{
		ID:         uuid.New(),
		UserID:     userID,
		FamilyID:   *user.FamilyID,
		EventType:  eventType,
		PointDelta: pointDelta,
	}
	if err := s.repo.AppendTrustEvent(ctx, event, factor); err != nil {
		return nil, err
	}

	s.publish(ctx, "trust.event.recorded", domain.TrustEventRecorded{
		UserID:     userID,
		EventType:  eventType,
		PointDelta: pointDelta,
		Timestamp:  event.CreatedAt,
	})

	return s.Recompute(ctx, userID)
}

// recordTrustEvent is the fire-and-forget form used by the money flows:
// the owning ledger transaction already committed, so a trust failure is
// logged rather than propagated.
func (s *Service) recordTrustEvent(ctx context.Context, userID, familyID uuid.UUID, eventType string, pointDelta int) {
	factor, ok := domain.EventFactor[eventType]
	if !ok {
		log.Printf("level=error component=trust msg=\"unknown event type\" event_type=%s", eventType)
		return
	}
	event := &domain.TrustScoreEvent{
		ID:         uuid.New(),
		UserID:     userID,
		FamilyID:   familyID,
		EventType:  eventType,
		PointDelta: pointDelta,
	}
	if err := s.repo.AppendTrustEvent(ctx, event, factor); err != nil {
		log.Printf("level=error component=trust msg=\"trust event append failed\" user_id=%s event_type=%s err=%v", userID, eventType, err)
		return
	}
	s.publish(ctx, "trust.event.recorded", domain.TrustEventRecorded{
		UserID:     userID,
		EventType:  eventType,
		PointDelta: pointDelta,
		Timestamp:  event.CreatedAt,
	})
	if _, err := s.Recompute(ctx, userID); err != nil {
		log.Printf("level=error component=trust msg=\"score recompute failed\" user_id=%s err=%v", userID, err)
	}
}

// Recompute folds the current factors into a new immutable snapshot.
func (s *Service) Recompute(ctx context.Context, userID uuid.UUID) (*domain.TrustScore, error) {
	factors, err := s.repo.GetTrustFactors(ctx, userID)
	if err != nil {
		return nil, err
	}
	snapshot := &domain.TrustScore{
		ID:      uuid.New(),
		UserID:  userID,
		Factors: *factors,
		Score:   domain.ComputeScore(*factors),
	}
	if err := s.repo.InsertTrustSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// CurrentScore returns the most recent snapshot for a user.
func (s *Service) CurrentScore(ctx context.Context, userID uuid.UUID) (*domain.TrustScore, error) {
	return s.repo.LatestTrustSnapshot(ctx, userID)
}

// ScoreHistory returns snapshot history for tier analytics, newest first.
func (s *Service) ScoreHistory(ctx context.Context, userID uuid.UUID, limit int) ([]domain.TrustScore, error) {
	return s.repo.ListTrustSnapshots(ctx, userID, limit)
}

// streakPageSize is the fetch size for the streak scan.
const streakPageSize = 500

// SavingStreak scans savings_streak events from most recent backward and
// counts consecutive positive deltas, stopping at the first non-positive
// entry or the end of the log. The scan pages so a streak longer than one
// fetch is still counted in full.
func (s *Service) SavingStreak(ctx context.Context, userID uuid.UUID) (int, error) {
	streak := 0
	for offset := 0; ; offset += streakPageSize {
		events, err := s.repo.ListTrustEventsByUser(ctx, userID, domain.EventSavingsStreak, streakPageSize, offset)
		if err != nil {
			return 0, err
		}
		for _, e := range events {
			if e.PointDelta <= 0 {
				return streak, nil
			}
			streak++
		}
		if len(events) < streakPageSize {
			return streak, nil
		}
	}
}

// TierInfo returns the caller's tier bracket and fixed perks based on the
// most recent snapshot.
func (s *Service) TierInfo(ctx context.Context, userID uuid.UUID) (*domain.TierPerks, error) {
	snapshot, err := s.repo.LatestTrustSnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	perks := domain.PerksForTier(domain.TierForScore(snapshot.Score))
	return &perks, nil
}

// EndorseChild records a parent endorsement for a kid in the same family.
func (s *Service) EndorseChild(ctx context.Context, caller *domain.User, kidID uuid.UUID, pointDelta int) (*domain.TrustScore, error) {
	if !caller.IsParent() {
		return nil, ErrUnauthorized
	}
	if pointDelta <= 0 || pointDelta > 10 {
		return nil, fmt.Errorf("%w: endorsement delta must be in (0,10]", ErrValidation)
	}
	kid, err := s.repo.FindUserByID(ctx, kidID)
	if err != nil {
		return nil, err
	}
	if kid.FamilyID == nil || caller.FamilyID == nil || *kid.FamilyID != *caller.FamilyID {
		return nil, ErrUnauthorized
	}
	return s.RecordTrustEvent(ctx, kidID, domain.EventParentEndorsement, pointDelta)
}

// TrustEvents returns a user's event log, newest first, optionally filtered
// by event type.
func (s *Service) TrustEvents(ctx context.Context, userID uuid.UUID, eventType string, limit int) ([]domain.TrustScoreEvent, error) {
	return s.repo.ListTrustEventsByUser(ctx, userID, eventType, limit, 0)
}
