/**
 * @description
 * This file defines the domain events emitted by the transaction-service's
 * aggregates. Every event carries a unique id, the time it occurred, and an
 * event type string that doubles as the RabbitMQ routing key, so consumers can
 * subscribe by exact type or by prefix (e.g. all "antifraud.*" events).
 *
 * @notes
 * - Events are immutable facts: once created they are never modified, only
 *   buffered on the aggregate and published after the aggregate is persisted.
 * - JSON field names use snake_case to match the payloads published by the
 *   other melodyhub services.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event type strings. The routing key of a published event is its event type.
const (
	EventTypeTransactionApproved  = "antifraud.transaction.approved"
	EventTypeFraudDetected        = "antifraud.fraud.detected"
	EventTypeTransactionValidated = "antifraud.transaction.validated"
	EventTypeSubscriptionUpgraded = "account.user.subscription.upgraded"
)

// Event is implemented by every domain event.
type Event interface {
	ID() uuid.UUID
	Type() string
	At() time.Time
}

// BaseEvent carries the envelope shared by all domain events.
type BaseEvent struct {
	EventID    uuid.UUID `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredOn time.Time `json:"occurred_on"`
}

func (e BaseEvent) ID() uuid.UUID { return e.EventID }
func (e BaseEvent) Type() string  { return e.EventType }
func (e BaseEvent) At() time.Time { return e.OccurredOn }

func newBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:    uuid.New(),
		EventType:  eventType,
		OccurredOn: time.Now().UTC(),
	}
}

// TransactionApprovedEvent is emitted when a transaction passes the anti-fraud
// check. The account context consumes it to upgrade the user's role.
type TransactionApprovedEvent struct {
	BaseEvent
	TransactionID    uuid.UUID        `json:"transaction_id"`
	UserID           uuid.UUID        `json:"user_id"`
	SubscriptionType SubscriptionType `json:"subscription_type"`
	NewUserRole      UserRole         `json:"new_user_role"`
}

// FraudDetectedEvent is emitted when a transaction is rejected. The violated
// rules list always contains at least the rejection reason.
type FraudDetectedEvent struct {
	BaseEvent
	TransactionID uuid.UUID `json:"transaction_id"`
	UserID        uuid.UUID `json:"user_id"`
	FraudReason   string    `json:"fraud_reason"`
	ViolatedRules []string  `json:"violated_rules"`
}

// TransactionValidatedEvent is the audit-trail record emitted once per
// transaction after its decision has been persisted, whether approved or not.
type TransactionValidatedEvent struct {
	BaseEvent
	TransactionID    uuid.UUID        `json:"transaction_id"`
	UserID           uuid.UUID        `json:"user_id"`
	Amount           decimal.Decimal  `json:"amount"`
	SubscriptionType SubscriptionType `json:"subscription_type"`
	IsValid          bool             `json:"is_valid"`
	FraudReason      *string          `json:"fraud_reason,omitempty"`
}

// UserSubscriptionUpgradedEvent is emitted by the User aggregate after its role
// has changed in reaction to an approved transaction.
type UserSubscriptionUpgradedEvent struct {
	BaseEvent
	UserID       uuid.UUID `json:"user_id"`
	PreviousRole UserRole  `json:"previous_role"`
	NewRole      UserRole  `json:"new_role"`
}
