/**
 * @description
 * This file contains the core business logic for the ledger-service. The
 * `Service` struct orchestrates every movement of value, coordinating the
 * database repository, the card-platform client, and the message broker.
 *
 * Key features:
 * - Double-entry transfers with bucket-ownership validation, spend-limit
 *   enforcement, and idempotency-key replay absorption.
 * - Family provisioning: four bucket accounts plus the seeded trust state.
 * - Bounded retry on serialization conflicts before surfacing a conflict.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/cardclient, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hearthpay/ledger-service/internal/domain"
	"github.com/hearthpay/ledger-service/internal/store"
	"github.com/hearthpay/ledger-service/pkg/cardclient"
	"github.com/hearthpay/ledger-service/pkg/rabbitmq"
)

// EventExchange is the topic exchange all ledger-service events publish to.
const EventExchange = "hearthpay.events"

// Categories allowed to cross user boundaries within a family. Everything
// else must stay within one user's own buckets.
var crossUserCategories = map[string]bool{
	domain.CategoryAllowance:        true,
	domain.CategoryChorePayout:      true,
	domain.CategoryLoanDisbursement: true,
	domain.CategoryLoanPayment:      true,
	domain.CategoryExternalFunding:  true,
	domain.CategoryExternalWithdraw: true,
}

// Service provides the core business logic for the ledger and its
// dependent engines.
type Service struct {
	repo          store.Repository
	cardClient    *cardclient.Client
	eventProducer rabbitmq.Publisher
	graceDays     int
	defaultAfter  int
}

// NewService creates a new ledger service instance. graceDays is the loan
// sweep grace period; defaultAfter is the consecutive-miss count that
// defaults a loan.
func NewService(repo store.Repository, card *cardclient.Client, producer rabbitmq.Publisher, graceDays, defaultAfter int) *Service {
	if graceDays < 0 {
		graceDays = 0
	}
	if defaultAfter <= 0 {
		defaultAfter = 2
	}
	return &Service{
		repo:          repo,
		cardClient:    card,
		eventProducer: producer,
		graceDays:     graceDays,
		defaultAfter:  defaultAfter,
	}
}

// ResolveUser converts an identity-provider subject id from a validated JWT
// into the internal user record.
func (s *Service) ResolveUser(ctx context.Context, externalID string) (*domain.User, error) {
	return s.repo.FindUserByExternalID(ctx, externalID)
}

// publish sends an event if a producer is wired; event delivery is
// best-effort and never fails the owning operation.
func (s *Service) publish(ctx context.Context, routingKey string, body any) {
	if s.eventProducer == nil {
		return
	}
	if err := s.eventProducer.Publish(ctx, EventExchange, routingKey, body); err != nil {
		log.Printf("level=warn component=app msg=\"event publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}

// withConflictRetry runs fn up to maxConflictRetries times, retrying only
// on serialization conflicts, then surfaces the conflict as an invalid
// state transition per the propagation policy.
func withConflictRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = fn()
		if !errors.Is(err, store.ErrSerializationConflict) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", store.ErrInvalidStateTransition, ErrConflictRetryLimit)
}

// CreateFamily creates a family owned by the calling parent, retrying join
// code generation on collision, then provisions the owner as its first
// parent member.
func (s *Service) CreateFamily(ctx context.Context, ownerID uuid.UUID, name string, spend, save, give, invest int) (*domain.Family, error) {
	family := &domain.Family{
		ID:            uuid.New(),
		Name:          name,
		OwnerUserID:   ownerID,
		SpendPercent:  spend,
		SavePercent:   save,
		GivePercent:   give,
		InvestPercent: invest,
	}
	if name == "" || !family.AllocationValid() {
		return nil, fmt.Errorf("%w: family name required and bucket split must sum to 100", ErrValidation)
	}

	for attempt := 0; attempt < 5; attempt++ {
		family.JoinCode = newJoinCode()
		err := s.repo.CreateFamily(ctx, family)
		if err == nil {
			break
		}
		if attempt == 4 {
			return nil, fmt.Errorf("failed to create family: %w", err)
		}
		log.Printf("level=warn component=app msg=\"join code collision; regenerating\" family=%s", family.Name)
	}

	if _, err := s.repo.ProvisionMember(ctx, ownerID, family.ID, domain.RoleParent); err != nil {
		return nil, fmt.Errorf("failed to provision family owner: %w", err)
	}
	return family, nil
}

// JoinFamily attaches a user to a family and provisions the four bucket
// accounts plus the seeded trust state (explicit 500 score, factors at 50).
func (s *Service) JoinFamily(ctx context.Context, userID, familyID uuid.UUID, role string) ([]domain.LedgerAccount, error) {
	if role != domain.RoleParent && role != domain.RoleKid {
		return nil, fmt.Errorf("%w: role must be parent or kid", ErrValidation)
	}
	if _, err := s.repo.FindFamilyByID(ctx, familyID); err != nil {
		return nil, err
	}
	return s.repo.ProvisionMember(ctx, userID, familyID, role)
}

// JoinFamilyByCode resolves an invite code to its family and provisions the
// user as a member.
func (s *Service) JoinFamilyByCode(ctx context.Context, userID uuid.UUID, joinCode, role string) (*domain.Family, []domain.LedgerAccount, error) {
	if role != domain.RoleParent && role != domain.RoleKid {
		return nil, nil, fmt.Errorf("%w: role must be parent or kid", ErrValidation)
	}
	family, err := s.repo.FindFamilyByJoinCode(ctx, strings.ToUpper(strings.TrimSpace(joinCode)))
	if err != nil {
		return nil, nil, err
	}
	accounts, err := s.repo.ProvisionMember(ctx, userID, family.ID, role)
	if err != nil {
		return nil, nil, err
	}
	return family, accounts, nil
}

// newJoinCode returns an 8-character uppercase code.
func newJoinCode() string {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failure is unrecoverable for code generation; fall
		// back to a UUID-derived code.
		return uuid.New().String()[:8]
	}
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b)
}

// Transfer posts one double-entry transfer on behalf of the caller after
// validating ownership and bucket rules. Spend limits are enforced only for
// card purchases; idempotency-key replays return the prior entry.
func (s *Service) Transfer(ctx context.Context, caller *domain.User, req domain.TransferRequest) (*store.TransferResult, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if req.SourceAccountID == req.DestinationAccountID {
		return nil, fmt.Errorf("%w: source and destination must differ", ErrValidation)
	}

	source, err := s.repo.FindAccountByID(ctx, req.SourceAccountID)
	if err != nil {
		return nil, err
	}
	destination, err := s.repo.FindAccountByID(ctx, req.DestinationAccountID)
	if err != nil {
		return nil, err
	}

	if err := validateTransferPair(source, destination, req.Category); err != nil {
		return nil, err
	}
	if err := authorizeAccountAccess(caller, source); err != nil {
		return nil, err
	}

	category := req.Category
	if category == "" {
		category = domain.CategoryTransfer
	}

	params := store.TransferParams{
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		Amount:               req.Amount,
		Category:             category,
		Description:          req.Description,
		IdempotencyKey:       req.IdempotencyKey,
		GoalID:               req.GoalID,
		EnforceLimits:        category == domain.CategoryCardPurchase,
		AllowOverdraft:       source.IsExternal(),
	}

	var result *store.TransferResult
	err = withConflictRetry(func() error {
		var txErr error
		result, txErr = s.repo.PostTransfer(ctx, params)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		s.publish(ctx, "ledger.entry.posted", domain.EntryPostedEvent{
			EntryID:              result.Entry.ID,
			SourceAccountID:      result.Entry.SourceAccountID,
			DestinationAccountID: result.Entry.DestinationAccountID,
			Amount:               result.Entry.Amount,
			Category:             result.Entry.Category,
			Timestamp:            result.Entry.CreatedAt,
		})
	}

	// A goal completed by this contribution emits its trust event here,
	// after the journal transaction committed.
	if result.GoalCompleted != nil {
		s.recordTrustEvent(ctx, result.GoalCompleted.UserID, source.FamilyID,
			domain.EventSavingsGoalReached, domain.DeltaSavingsGoalReached)
	}
	return result, nil
}

// validateTransferPair enforces the bucket-ownership rules: no cross-family
// movement ever, and cross-user movement only for the loan/payout/funding
// categories.
func validateTransferPair(source, destination *domain.LedgerAccount, category string) error {
	if source.FamilyID != destination.FamilyID {
		return ErrCrossFamily
	}
	sameOwner := source.UserID != nil && destination.UserID != nil && *source.UserID == *destination.UserID
	if sameOwner {
		return nil
	}
	if source.IsExternal() || destination.IsExternal() {
		return nil
	}
	if !crossUserCategories[category] {
		return fmt.Errorf("%w: category %q may not cross user boundaries", ErrValidation, category)
	}
	return nil
}

// authorizeAccountAccess allows the account owner, and any parent in the
// account's family, to move money out of it.
func authorizeAccountAccess(caller *domain.User, account *domain.LedgerAccount) error {
	if caller == nil {
		return ErrUnauthorized
	}
	if account.UserID != nil && *account.UserID == caller.ID {
		return nil
	}
	if caller.IsParent() && caller.FamilyID != nil && *caller.FamilyID == account.FamilyID {
		return nil
	}
	return ErrUnauthorized
}

// Balance folds journal entries for an account up to asOf (default now).
func (s *Service) Balance(ctx context.Context, caller *domain.User, accountID uuid.UUID, asOf *time.Time) (int64, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if err := authorizeAccountAccess(caller, account); err != nil {
		return 0, err
	}
	return s.repo.AccountBalance(ctx, accountID, asOf)
}

// PeriodFlow sums inbound or outbound entries over a window for reporting.
func (s *Service) PeriodFlow(ctx context.Context, caller *domain.User, accountID uuid.UUID, start, end time.Time, direction domain.FlowDirection) (int64, error) {
	if !end.After(start) {
		return 0, fmt.Errorf("%w: end must follow start", ErrValidation)
	}
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if err := authorizeAccountAccess(caller, account); err != nil {
		return 0, err
	}
	return s.repo.PeriodFlow(ctx, accountID, start, end, direction)
}

// History returns an account's journal entries, newest first.
func (s *Service) History(ctx context.Context, caller *domain.User, accountID uuid.UUID, limit, offset int) ([]domain.JournalEntry, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := authorizeAccountAccess(caller, account); err != nil {
		return nil, err
	}
	return s.repo.ListEntriesByAccount(ctx, accountID, limit, offset)
}

// Accounts returns the caller's bucket accounts.
func (s *Service) Accounts(ctx context.Context, userID uuid.UUID) ([]domain.LedgerAccount, error) {
	return s.repo.FindAccountsByUserID(ctx, userID)
}

// SetSpendLimits configures rolling spend limits on a kid's account. Only a
// parent in the family may set limits.
func (s *Service) SetSpendLimits(ctx context.Context, caller *domain.User, accountID uuid.UUID, daily, weekly, monthly *int64) error {
	for _, limit := range []*int64{daily, weekly, monthly} {
		if limit != nil && *limit <= 0 {
			return fmt.Errorf("%w: limits must be positive", ErrValidation)
		}
	}
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !caller.IsParent() || caller.FamilyID == nil || *caller.FamilyID != account.FamilyID {
		return ErrUnauthorized
	}
	return s.repo.UpdateAccountLimits(ctx, accountID, daily, weekly, monthly)
}

// ReverseEntry posts a reversing entry for a posted journal entry. Parents
// only; the original must touch the caller's family.
func (s *Service) ReverseEntry(ctx context.Context, caller *domain.User, entryID uuid.UUID, reason string) (*domain.JournalEntry, error) {
	if !caller.IsParent() {
		return nil, ErrUnauthorized
	}
	original, err := s.repo.FindEntryByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	account, err := s.repo.FindAccountByID(ctx, original.SourceAccountID)
	if err != nil {
		return nil, err
	}
	if caller.FamilyID == nil || *caller.FamilyID != account.FamilyID {
		return nil, ErrUnauthorized
	}
	var reversal *domain.JournalEntry
	err = withConflictRetry(func() error {
		var txErr error
		reversal, txErr = s.repo.ReverseEntry(ctx, entryID, reason)
		return txErr
	})
	return reversal, err
}
