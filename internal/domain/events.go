/**
 * @description
 * This file defines the message payloads exchanged with collaborating
 * services over RabbitMQ: events the ledger-service publishes after commits,
 * and webhook-style events it consumes from the card-issuing and
 * bank-linking platforms.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntryPostedEvent is published after a journal entry commits.
type EntryPostedEvent struct {
	EntryID              uuid.UUID `json:"entry_id"`
	SourceAccountID      uuid.UUID `json:"source_account_id"`
	DestinationAccountID uuid.UUID `json:"destination_account_id"`
	Amount               int64     `json:"amount"`
	Category             string    `json:"category"`
	Timestamp            time.Time `json:"timestamp"`
}

// TrustEventRecorded is published after a trust event is appended.
type TrustEventRecorded struct {
	UserID     uuid.UUID `json:"user_id"`
	EventType  string    `json:"event_type"`
	PointDelta int       `json:"point_delta"`
	Timestamp  time.Time `json:"timestamp"`
}

// CardSettlementEvent is the payload the card-issuing platform posts when a
// card transaction settles. The platform-assigned transaction id doubles as
// the journal idempotency key so replays are absorbed.
type CardSettlementEvent struct {
	PlatformTransactionID string    `json:"platform_transaction_id"`
	CardholderUserID      uuid.UUID `json:"cardholder_user_id"`
	Amount                int64     `json:"amount"` // in cents
	MerchantName          string    `json:"merchant_name"`
	SettledAt             time.Time `json:"settled_at"`
}

// FundingEvent is the payload the bank-linking platform posts when external
// money lands (direction "credit") or is withdrawn (direction "debit").
type FundingEvent struct {
	PlatformEventID string    `json:"platform_event_id"`
	UserID          uuid.UUID `json:"user_id"`
	Amount          int64     `json:"amount"` // in cents
	Direction       string    `json:"direction"`
	OccurredAt      time.Time `json:"occurred_at"`
}
