/**
 * @description
 * AMQP consumers for the card-issuing and bank-linking platforms. Card
 * settlements debit the cardholder's spend bucket against the family
 * external account; funding credits split inbound money across the four
 * buckets per the family allocation. Both flows key the journal on the
 * platform event id, so redelivered messages replay to the same entry.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hearthpay/ledger-service/internal/domain"
	"github.com/hearthpay/ledger-service/internal/store"
)

const consumerTimeout = 15 * time.Second

// CardSettlementConsumer applies settled card transactions to the ledger.
type CardSettlementConsumer struct {
	svc *Service
}

func NewCardSettlementConsumer(svc *Service) *CardSettlementConsumer {
	return &CardSettlementConsumer{svc: svc}
}

func (c *CardSettlementConsumer) HandleMessage(body []byte) bool {
	var event domain.CardSettlementEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("settlement-consumer: failed to unmarshal payload: %v", err)
		return true
	}
	if event.PlatformTransactionID == "" || event.Amount <= 0 {
		log.Printf("settlement-consumer: malformed event %+v", event)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), consumerTimeout)
	defer cancel()

	if err := c.svc.HandleCardSettlement(ctx, event); err != nil {
		if isTerminalLedgerError(err) {
			log.Printf("settlement-consumer: settlement %s rejected: %v; acknowledging", event.PlatformTransactionID, err)
			return true
		}
		log.Printf("settlement-consumer: processing error for settlement %s: %v", event.PlatformTransactionID, err)
		return false
	}
	return true
}

// HandleCardSettlement posts the settlement as a spend-bucket debit. The
// platform transaction id is the idempotency key, so a redelivered
// settlement returns the original entry. A limit or balance rejection
// records the spend_limit_exceeded trust event and is not retried.
func (s *Service) HandleCardSettlement(ctx context.Context, event domain.CardSettlementEvent) error {
	if s.cardClient != nil {
		verified, err := s.cardClient.VerifyTransaction(ctx, event.PlatformTransactionID)
		if err != nil {
			return fmt.Errorf("verify card transaction: %w", err)
		}
		if !verified {
			return fmt.Errorf("%w: card platform does not recognize transaction %s", ErrValidation, event.PlatformTransactionID)
		}
	}

	spend, err := s.repo.FindUserBucketAccount(ctx, event.CardholderUserID, domain.BucketSpend)
	if err != nil {
		return fmt.Errorf("lookup spend account: %w", err)
	}
	external, err := s.repo.FindExternalAccount(ctx, spend.FamilyID)
	if err != nil {
		return fmt.Errorf("lookup external account: %w", err)
	}

	key := event.PlatformTransactionID
	params := store.TransferParams{
		SourceAccountID:      spend.ID,
		DestinationAccountID: external.ID,
		Amount:               event.Amount,
		Category:             domain.CategoryCardPurchase,
		Description:          fmt.Sprintf("Card purchase at %s", event.MerchantName),
		IdempotencyKey:       &key,
		EnforceLimits:        true,
	}

	var result *store.TransferResult
	err = withConflictRetry(func() error {
		var txErr error
		result, txErr = s.repo.PostTransfer(ctx, params)
		return txErr
	})
	if errors.Is(err, store.ErrLimitExceeded) {
		s.recordTrustEvent(ctx, event.CardholderUserID, spend.FamilyID,
			domain.EventSpendLimitExceeded, domain.DeltaSpendLimitExceeded)
		return err
	}
	if err != nil {
		return err
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
	return nil
}

// FundingConsumer applies external funding and withdrawal events.
type FundingConsumer struct {
	svc *Service
}

func NewFundingConsumer(svc *Service) *FundingConsumer {
	return &FundingConsumer{svc: svc}
}

func (c *FundingConsumer) HandleMessage(body []byte) bool {
	var event domain.FundingEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("funding-consumer: failed to unmarshal payload: %v", err)
		return true
	}
	if event.PlatformEventID == "" || event.Amount <= 0 {
		log.Printf("funding-consumer: malformed event %+v", event)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), consumerTimeout)
	defer cancel()

	if err := c.svc.HandleFundingEvent(ctx, event); err != nil {
		if isTerminalLedgerError(err) {
			log.Printf("funding-consumer: funding %s rejected: %v; acknowledging", event.PlatformEventID, err)
			return true
		}
		log.Printf("funding-consumer: processing error for funding %s: %v", event.PlatformEventID, err)
		return false
	}
	return true
}

// HandleFundingEvent moves money between the family external account and a
// member's buckets. Credits are split across the four buckets per the
// family allocation, one journal entry per bucket, each keyed on the
// platform event id plus the bucket name. Debits come out of spend.
func (s *Service) HandleFundingEvent(ctx context.Context, event domain.FundingEvent) error {
	user, err := s.repo.FindUserByID(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if user.FamilyID == nil {
		return fmt.Errorf("%w: user %s has not joined a family", ErrValidation, event.UserID)
	}
	family, err := s.repo.FindFamilyByID(ctx, *user.FamilyID)
	if err != nil {
		return fmt.Errorf("lookup family: %w", err)
	}
	external, err := s.repo.FindExternalAccount(ctx, family.ID)
	if err != nil {
		return fmt.Errorf("lookup external account: %w", err)
	}

	switch event.Direction {
	case "credit":
		return s.applyFundingCredit(ctx, event, family, external)
	case "debit":
		return s.applyFundingDebit(ctx, event, external)
	default:
		return fmt.Errorf("%w: unknown funding direction %q", ErrValidation, event.Direction)
	}
}

func (s *Service) applyFundingCredit(ctx context.Context, event domain.FundingEvent, family *domain.Family, external *domain.LedgerAccount) error {
	splits := allocationSplit(event.Amount, family)
	for _, split := range splits {
		if split.amount == 0 {
			continue
		}
		destination, err := s.repo.FindUserBucketAccount(ctx, event.UserID, split.bucket)
		if err != nil {
			return fmt.Errorf("lookup %s account: %w", split.bucket, err)
		}
		key := fmt.Sprintf("%s:%s", event.PlatformEventID, split.bucket)
		params := store.TransferParams{
			SourceAccountID:      external.ID,
			DestinationAccountID: destination.ID,
			Amount:               split.amount,
			Category:             domain.CategoryExternalFunding,
			Description:          "External funding",
			IdempotencyKey:       &key,
			AllowOverdraft:       true,
		}
		err = withConflictRetry(func() error {
			_, txErr := s.repo.PostTransfer(ctx, params)
			return txErr
		})
		if err != nil {
			return fmt.Errorf("post %s funding leg: %w", split.bucket, err)
		}
	}
	return nil
}

func (s *Service) applyFundingDebit(ctx context.Context, event domain.FundingEvent, external *domain.LedgerAccount) error {
	spend, err := s.repo.FindUserBucketAccount(ctx, event.UserID, domain.BucketSpend)
	if err != nil {
		return fmt.Errorf("lookup spend account: %w", err)
	}
	key := event.PlatformEventID
	params := store.TransferParams{
		SourceAccountID:      spend.ID,
		DestinationAccountID: external.ID,
		Amount:               event.Amount,
		Category:             domain.CategoryExternalWithdraw,
		Description:          "External withdrawal",
		IdempotencyKey:       &key,
	}
	return withConflictRetry(func() error {
		_, txErr := s.repo.PostTransfer(ctx, params)
		return txErr
	})
}

type bucketSplit struct {
	bucket string
	amount int64
}

// allocationSplit divides an inbound amount across the four buckets by the
// family percentages. Integer division remainders land in spend so the
// legs always sum to the full amount.
func allocationSplit(amount int64, family *domain.Family) []bucketSplit {
	save := amount * int64(family.SavePercent) / 100
	give := amount * int64(family.GivePercent) / 100
	invest := amount * int64(family.InvestPercent) / 100
	spend := amount - save - give - invest
	return []bucketSplit{
		{domain.BucketSpend, spend},
		{domain.BucketSave, save},
		{domain.BucketGive, give},
		{domain.BucketInvest, invest},
	}
}

// isTerminalLedgerError reports whether redelivery cannot succeed: the
// money was rejected for a business reason, not a transient fault.
func isTerminalLedgerError(err error) bool {
	return errors.Is(err, store.ErrInsufficientFunds) ||
		errors.Is(err, store.ErrLimitExceeded) ||
		errors.Is(err, store.ErrAccountNotFound) ||
		errors.Is(err, store.ErrUserNotFound) ||
		errors.Is(err, store.ErrFamilyNotFound) ||
		errors.Is(err, ErrValidation)
}
