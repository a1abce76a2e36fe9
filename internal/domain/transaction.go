/**
 * @description
 * This file defines the Transaction aggregate for the payment context. A
 * transaction represents one subscription-purchase attempt and owns its own
 * PENDING -> APPROVED/REJECTED state machine: no other component is allowed to
 * mutate its status. State transitions record domain events on the embedded
 * AggregateRoot buffer for publication after persistence.
 *
 * @notes
 * - Amounts use decimal.Decimal; subscription prices are exact decimal values
 *   and must never touch floating point.
 * - The amount is always the canonical price of the requested subscription
 *   type, resolved by the application layer, never taken from the client.
 */

package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidState marks an illegal aggregate state transition, such as
// approving a transaction that is no longer pending. It is a programmer-error
// class: fatal to the current request, never retried.
var ErrInvalidState = errors.New("invalid aggregate state")

// ErrUnknownSubscriptionType is returned when a requested plan does not exist
// in the subscription table.
var ErrUnknownSubscriptionType = errors.New("unknown subscription type")

// SubscriptionType identifies a purchasable subscription plan.
type SubscriptionType string

const (
	SubscriptionBasic   SubscriptionType = "BASIC"
	SubscriptionPremium SubscriptionType = "PREMIUM"
)

// subscriptionPlan couples a plan's canonical monthly price with the role it
// grants. Adding a plan means adding exactly one entry here.
type subscriptionPlan struct {
	MonthlyPrice decimal.Decimal
	GrantedRole  UserRole
}

var subscriptionPlans = map[SubscriptionType]subscriptionPlan{
	SubscriptionBasic:   {MonthlyPrice: decimal.RequireFromString("9.90"), GrantedRole: RoleBasic},
	SubscriptionPremium: {MonthlyPrice: decimal.RequireFromString("19.90"), GrantedRole: RolePremium},
}

// PriceForSubscription resolves the canonical monthly price of a plan.
func PriceForSubscription(subscriptionType SubscriptionType) (decimal.Decimal, error) {
	plan, ok := subscriptionPlans[subscriptionType]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnknownSubscriptionType, subscriptionType)
	}
	return plan.MonthlyPrice, nil
}

// RoleForSubscription resolves the role a plan grants on approval.
func RoleForSubscription(subscriptionType SubscriptionType) (UserRole, error) {
	plan, ok := subscriptionPlans[subscriptionType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSubscriptionType, subscriptionType)
	}
	return plan.GrantedRole, nil
}

// TransactionStatus is the lifecycle state of a transaction.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "PENDING"
	StatusApproved TransactionStatus = "APPROVED"
	StatusRejected TransactionStatus = "REJECTED"
)

// Transaction is the aggregate root of the payment context. It maps to the
// `transactions` table.
type Transaction struct {
	AggregateRoot

	ID               uuid.UUID         `json:"id"`
	UserID           uuid.UUID         `json:"user_id"`
	Amount           decimal.Decimal   `json:"amount"`
	SubscriptionType SubscriptionType  `json:"subscription_type"`
	CreditCardID     int64             `json:"credit_card_id"`
	Status           TransactionStatus `json:"status"`
	FraudReason      *string           `json:"fraud_reason,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// NewTransaction constructs a pending transaction with a fresh identity.
// The amount must be the plan's canonical price.
func NewTransaction(userID uuid.UUID, amount decimal.Decimal, subscriptionType SubscriptionType, creditCardID int64) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		ID:               uuid.New(),
		UserID:           userID,
		Amount:           amount,
		SubscriptionType: subscriptionType,
		CreditCardID:     creditCardID,
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Approve transitions the transaction to APPROVED and records a
// TransactionApprovedEvent carrying the role the user will be upgraded to.
// The role is decided by the caller from the subscription type; the aggregate
// only records it.
func (t *Transaction) Approve(newUserRole UserRole) error {
	if t.Status != StatusPending {
		return fmt.Errorf("%w: only pending transactions can be approved", ErrInvalidState)
	}
	t.Status = StatusApproved
	t.UpdatedAt = time.Now().UTC()

	t.Record(TransactionApprovedEvent{
		BaseEvent:        newBaseEvent(EventTypeTransactionApproved),
		TransactionID:    t.ID,
		UserID:           t.UserID,
		SubscriptionType: t.SubscriptionType,
		NewUserRole:      newUserRole,
	})
	return nil
}

// Reject transitions the transaction to REJECTED, stores the fraud reason and
// records a FraudDetectedEvent.
func (t *Transaction) Reject(reason string) error {
	if t.Status != StatusPending {
		return fmt.Errorf("%w: only pending transactions can be rejected", ErrInvalidState)
	}
	t.Status = StatusRejected
	t.FraudReason = &reason
	t.UpdatedAt = time.Now().UTC()

	t.Record(FraudDetectedEvent{
		BaseEvent:     newBaseEvent(EventTypeFraudDetected),
		TransactionID: t.ID,
		UserID:        t.UserID,
		FraudReason:   reason,
		ViolatedRules: []string{reason},
	})
	return nil
}

// RecordValidation records the audit-trail TransactionValidatedEvent. It never
// changes status and may be called regardless of the approve/reject outcome;
// the application layer calls it once, after the transaction is persisted.
func (t *Transaction) RecordValidation(isValid bool, reason *string) {
	t.Record(TransactionValidatedEvent{
		BaseEvent:        newBaseEvent(EventTypeTransactionValidated),
		TransactionID:    t.ID,
		UserID:           t.UserID,
		Amount:           t.Amount,
		SubscriptionType: t.SubscriptionType,
		IsValid:          isValid,
		FraudReason:      reason,
	})
}

// CreateTransactionRequest is the DTO for incoming purchase API requests. The
// amount is intentionally absent: clients cannot price their own subscription.
type CreateTransactionRequest struct {
	SubscriptionType SubscriptionType `json:"subscription_type"`
	CreditCardID     int64            `json:"credit_card_id"`
}
