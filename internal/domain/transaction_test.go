package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newPendingTransaction(t *testing.T) *Transaction {
	t.Helper()
	amount, err := PriceForSubscription(SubscriptionBasic)
	if err != nil {
		t.Fatalf("PriceForSubscription returned error: %v", err)
	}
	return NewTransaction(uuid.New(), amount, SubscriptionBasic, 42)
}

func TestNewTransaction_StartsPendingWithCanonicalPrice(t *testing.T) {
	tx := newPendingTransaction(t)

	if tx.Status != StatusPending {
		t.Fatalf("expected PENDING status, got %s", tx.Status)
	}
	if tx.ID == uuid.Nil {
		t.Fatal("expected a generated transaction id")
	}
	if !tx.Amount.Equal(decimal.RequireFromString("9.90")) {
		t.Fatalf("expected canonical BASIC price 9.90, got %s", tx.Amount)
	}
	if len(tx.PeekEvents()) != 0 {
		t.Fatal("expected no events before a transition")
	}
}

func TestApprove_TransitionsAndBuffersApprovedEvent(t *testing.T) {
	tx := newPendingTransaction(t)

	if err := tx.Approve(RoleBasic); err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if tx.Status != StatusApproved {
		t.Fatalf("expected APPROVED status, got %s", tx.Status)
	}

	events := tx.DrainEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 buffered event, got %d", len(events))
	}
	approved, ok := events[0].(TransactionApprovedEvent)
	if !ok {
		t.Fatalf("expected TransactionApprovedEvent, got %T", events[0])
	}
	if approved.Type() != EventTypeTransactionApproved {
		t.Fatalf("unexpected event type %q", approved.Type())
	}
	if approved.TransactionID != tx.ID || approved.UserID != tx.UserID {
		t.Fatal("approved event does not reference the transaction")
	}
	if approved.NewUserRole != RoleBasic {
		t.Fatalf("expected new role BASIC, got %s", approved.NewUserRole)
	}
}

func TestApprove_TwiceFailsAndKeepsTerminalState(t *testing.T) {
	tx := newPendingTransaction(t)
	if err := tx.Approve(RoleBasic); err != nil {
		t.Fatalf("first Approve returned error: %v", err)
	}

	err := tx.Approve(RoleBasic)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if tx.Status != StatusApproved {
		t.Fatalf("expected status to remain APPROVED, got %s", tx.Status)
	}
}

func TestReject_StoresReasonAndBuffersFraudEvent(t *testing.T) {
	tx := newPendingTransaction(t)

	if err := tx.Reject("duplicate transaction detected"); err != nil {
		t.Fatalf("Reject returned error: %v", err)
	}
	if tx.Status != StatusRejected {
		t.Fatalf("expected REJECTED status, got %s", tx.Status)
	}
	if tx.FraudReason == nil || *tx.FraudReason != "duplicate transaction detected" {
		t.Fatalf("expected stored fraud reason, got %v", tx.FraudReason)
	}

	events := tx.DrainEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 buffered event, got %d", len(events))
	}
	fraud, ok := events[0].(FraudDetectedEvent)
	if !ok {
		t.Fatalf("expected FraudDetectedEvent, got %T", events[0])
	}
	if fraud.FraudReason != "duplicate transaction detected" {
		t.Fatalf("unexpected fraud reason %q", fraud.FraudReason)
	}
	if len(fraud.ViolatedRules) == 0 || fraud.ViolatedRules[0] != fraud.FraudReason {
		t.Fatalf("expected violated rules to contain the reason, got %v", fraud.ViolatedRules)
	}
}

func TestApprove_AfterRejectFails(t *testing.T) {
	tx := newPendingTransaction(t)
	if err := tx.Reject("amount out of bounds"); err != nil {
		t.Fatalf("Reject returned error: %v", err)
	}

	if err := tx.Approve(RoleBasic); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if tx.Status != StatusRejected {
		t.Fatalf("expected terminal REJECTED status, got %s", tx.Status)
	}
}

func TestRecordValidation_AlwaysBuffersAuditEvent(t *testing.T) {
	tx := newPendingTransaction(t)
	if err := tx.Approve(RoleBasic); err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	tx.DrainEvents()

	tx.RecordValidation(true, nil)

	if tx.Status != StatusApproved {
		t.Fatalf("RecordValidation must not change status, got %s", tx.Status)
	}
	events := tx.DrainEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(events))
	}
	validated, ok := events[0].(TransactionValidatedEvent)
	if !ok {
		t.Fatalf("expected TransactionValidatedEvent, got %T", events[0])
	}
	if !validated.IsValid || validated.FraudReason != nil {
		t.Fatalf("expected a valid audit record, got valid=%t reason=%v", validated.IsValid, validated.FraudReason)
	}
	if !validated.Amount.Equal(tx.Amount) {
		t.Fatalf("expected audit amount %s, got %s", tx.Amount, validated.Amount)
	}
}

func TestSubscriptionTable_IsTotalOverKnownPlans(t *testing.T) {
	cases := []struct {
		subscriptionType SubscriptionType
		price            string
		role             UserRole
	}{
		{SubscriptionBasic, "9.90", RoleBasic},
		{SubscriptionPremium, "19.90", RolePremium},
	}
	for _, tc := range cases {
		price, err := PriceForSubscription(tc.subscriptionType)
		if err != nil {
			t.Fatalf("PriceForSubscription(%s) returned error: %v", tc.subscriptionType, err)
		}
		if !price.Equal(decimal.RequireFromString(tc.price)) {
			t.Fatalf("expected %s price %s, got %s", tc.subscriptionType, tc.price, price)
		}
		role, err := RoleForSubscription(tc.subscriptionType)
		if err != nil {
			t.Fatalf("RoleForSubscription(%s) returned error: %v", tc.subscriptionType, err)
		}
		if role != tc.role {
			t.Fatalf("expected %s role %s, got %s", tc.subscriptionType, tc.role, role)
		}
	}
}

func TestSubscriptionTable_RejectsUnknownPlan(t *testing.T) {
	if _, err := PriceForSubscription("GOLD"); !errors.Is(err, ErrUnknownSubscriptionType) {
		t.Fatalf("expected ErrUnknownSubscriptionType, got %v", err)
	}
	if _, err := RoleForSubscription("GOLD"); !errors.Is(err, ErrUnknownSubscriptionType) {
		t.Fatalf("expected ErrUnknownSubscriptionType, got %v", err)
	}
}
