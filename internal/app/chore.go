/**
 * @description
 * Chore Marketplace: turns completed housework into ledger payouts and
 * trust events. Transitions follow the fixed table in the domain package;
 * approval and payout commit as one atomic step.
 */

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hearthpay/ledger-service/internal/domain"
	"github.com/hearthpay/ledger-service/internal/store"
)

// CreateChore posts a new open chore. Parents only.
func (s *Service) CreateChore(ctx context.Context, caller *domain.User, title, description string, payout int64, dueDate *time.Time) (*domain.Chore, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title required", ErrValidation)
	}
	if payout <= 0 {
		return nil, fmt.Errorf("%w: payout must be positive", ErrValidation)
	}
	if !caller.IsParent() || caller.FamilyID == nil {
		return nil, ErrUnauthorized
	}

	chore := &domain.Chore{
		ID:          uuid.New(),
		FamilyID:    *caller.FamilyID,
		CreatorID:   caller.ID,
		Title:       title,
		Description: description,
		Payout:      payout,
		Status:      domain.ChoreOpen,
		DueDate:     dueDate,
	}
	if err := s.repo.CreateChore(ctx, chore); err != nil {
		return nil, err
	}
	return chore, nil
}

// ClaimChore moves open -> claimed for a kid in the chore's family. An
// already-claimed chore rejects the second claimant.
func (s *Service) ClaimChore(ctx context.Context, caller *domain.User, choreID uuid.UUID) (*domain.Chore, error) {
	chore, err := s.repo.FindChoreByID(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if caller.IsParent() {
		return nil, fmt.Errorf("%w: only kids may claim chores", ErrValidation)
	}
	if caller.FamilyID == nil || *caller.FamilyID != chore.FamilyID {
		return nil, ErrUnauthorized
	}

	var claimed *domain.Chore
	err = withConflictRetry(func() error {
		var txErr error
		claimed, txErr = s.repo.ClaimChore(ctx, choreID, caller.ID)
		return txErr
	})
	return claimed, err
}

// MarkChoreDone moves claimed -> pending_approval, assignee only.
func (s *Service) MarkChoreDone(ctx context.Context, caller *domain.User, choreID uuid.UUID) (*domain.Chore, error) {
	var chore *domain.Chore
	err := withConflictRetry(func() error {
		var txErr error
		chore, txErr = s.repo.MarkChoreDone(ctx, choreID, caller.ID)
		return txErr
	})
	return chore, err
}

// ApproveChore approves completed work and pays it out as one atomic step:
// the payout moves from the creator's spend bucket to the assignee's spend
// bucket and the chore lands in paid. A chore is never left completed
// without the transfer, nor paid without ledger history.
func (s *Service) ApproveChore(ctx context.Context, caller *domain.User, choreID uuid.UUID) (*domain.Chore, error) {
	chore, err := s.repo.FindChoreByID(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if !caller.IsParent() || caller.FamilyID == nil || *caller.FamilyID != chore.FamilyID {
		return nil, ErrUnauthorized
	}
	if !domain.ChoreTransitionAllowed(chore.Status, domain.ChoreCompleted) {
		return nil, store.ErrInvalidStateTransition
	}
	if chore.AssigneeID == nil {
		return nil, store.ErrInvalidStateTransition
	}

	source, err := s.repo.FindUserBucketAccount(ctx, chore.CreatorID, domain.BucketSpend)
	if err != nil {
		return nil, err
	}
	destination, err := s.repo.FindUserBucketAccount(ctx, *chore.AssigneeID, domain.BucketSpend)
	if err != nil {
		return nil, err
	}

	params := store.ChorePayoutParams{
		ChoreID:              choreID,
		SourceAccountID:      source.ID,
		DestinationAccountID: destination.ID,
		Payout:               chore.Payout,
		ApprovedAt:           time.Now(),
	}

	var paid *domain.Chore
	err = withConflictRetry(func() error {
		var txErr error
		paid, txErr = s.repo.ApproveChoreAtomic(ctx, params)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	s.recordTrustEvent(ctx, *chore.AssigneeID, chore.FamilyID, domain.EventChoreCompleted, domain.DeltaChoreCompleted)
	return paid, nil
}

// RejectChore returns pending_approval -> open and clears the assignee.
// No ledger effect.
func (s *Service) RejectChore(ctx context.Context, caller *domain.User, choreID uuid.UUID) (*domain.Chore, error) {
	chore, err := s.repo.FindChoreByID(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if !caller.IsParent() || caller.FamilyID == nil || *caller.FamilyID != chore.FamilyID {
		return nil, ErrUnauthorized
	}

	var rejected *domain.Chore
	err = withConflictRetry(func() error {
		var txErr error
		rejected, txErr = s.repo.RejectChore(ctx, choreID)
		return txErr
	})
	return rejected, err
}

// ChoresForFamily lists a family's chores, optionally filtered by status.
func (s *Service) ChoresForFamily(ctx context.Context, caller *domain.User, status string) ([]domain.Chore, error) {
	if caller.FamilyID == nil {
		return nil, fmt.Errorf("%w: user has not joined a family", ErrValidation)
	}
	return s.repo.ListChoresByFamily(ctx, *caller.FamilyID, status)
}

// ChoresForAssignee lists the chores a kid has claimed.
func (s *Service) ChoresForAssignee(ctx context.Context, assigneeID uuid.UUID) ([]domain.Chore, error) {
	return s.repo.ListChoresByAssignee(ctx, assigneeID)
}
