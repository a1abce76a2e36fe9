package antifraud

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/melodyhub/transaction-service/internal/domain"
)

// evaluationTime is pinned so the velocity/daily windows and the card expiry
// boundary are deterministic.
var evaluationTime = time.Date(2026, time.August, 15, 10, 30, 0, 0, time.UTC)

type lookupStub struct {
	recentCount    int64
	duplicateCount int64
	dailyCount     int64
	approved       []domain.Transaction
	card           *domain.CreditCard

	historyErr error
	cardErr    error
}

func (s *lookupStub) CountTransactionsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	if s.historyErr != nil {
		return 0, s.historyErr
	}
	// The daily-cap query starts at midnight; the velocity query uses a
	// short trailing window.
	if since.Hour() == 0 && since.Minute() == 0 && since.Second() == 0 {
		return s.dailyCount, nil
	}
	return s.recentCount, nil
}

func (s *lookupStub) CountMatchingTransactionsSince(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, subscriptionType domain.SubscriptionType, since time.Time) (int64, error) {
	return s.duplicateCount, nil
}

func (s *lookupStub) FindApprovedTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	return s.approved, nil
}

func (s *lookupStub) FindCreditCardByID(ctx context.Context, creditCardID int64) (*domain.CreditCard, error) {
	if s.cardErr != nil {
		return nil, s.cardErr
	}
	if s.card == nil {
		return nil, ErrCreditCardNotFound
	}
	return s.card, nil
}

func testLimits() Limits {
	return Limits{
		MaxAmount:          decimal.RequireFromString("100.00"),
		VelocityWindow:     2 * time.Minute,
		VelocityThreshold:  3,
		DuplicateWindow:    2 * time.Minute,
		DuplicateThreshold: 2,
		DailyCap:           5,
	}
}

func newTestEngine(stub *lookupStub) *Engine {
	engine := NewEngine(stub, stub, testLimits())
	engine.now = func() time.Time { return evaluationTime }
	return engine
}

// cleanTransaction builds a candidate that passes every rule against a stub
// with an active, current, user-owned card and no history.
func cleanTransaction(userID uuid.UUID) *domain.Transaction {
	return domain.NewTransaction(userID, decimal.RequireFromString("9.90"), domain.SubscriptionBasic, 42)
}

func cleanStub(userID uuid.UUID) *lookupStub {
	return &lookupStub{
		card: &domain.CreditCard{
			ID:              42,
			UserID:          userID,
			ExpirationMonth: 12,
			ExpirationYear:  2030,
			Status:          domain.CardActive,
		},
	}
}

func mustEvaluate(t *testing.T, engine *Engine, tx *domain.Transaction) Verdict {
	t.Helper()
	verdict, err := engine.Evaluate(context.Background(), tx)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	return verdict
}

func assertRejected(t *testing.T, verdict Verdict, reasonFragment string) {
	t.Helper()
	if verdict.IsValid {
		t.Fatal("expected an invalid verdict")
	}
	if verdict.Reason == nil {
		t.Fatal("expected a rejection reason")
	}
	if !strings.Contains(*verdict.Reason, reasonFragment) {
		t.Fatalf("expected reason containing %q, got %q", reasonFragment, *verdict.Reason)
	}
}

func TestEvaluate_AllRulesPass(t *testing.T) {
	userID := uuid.New()
	verdict := mustEvaluate(t, newTestEngine(cleanStub(userID)), cleanTransaction(userID))

	if !verdict.IsValid {
		t.Fatalf("expected a valid verdict, got reason %v", verdict.Reason)
	}
	if verdict.Reason != nil {
		t.Fatalf("expected no reason on a valid verdict, got %q", *verdict.Reason)
	}
}

func TestEvaluate_NonPositiveAmountRejected(t *testing.T) {
	userID := uuid.New()
	for _, amount := range []string{"0", "-1.00"} {
		tx := domain.NewTransaction(userID, decimal.RequireFromString(amount), domain.SubscriptionBasic, 42)
		verdict := mustEvaluate(t, newTestEngine(cleanStub(userID)), tx)
		assertRejected(t, verdict, "must be positive")
	}
}

func TestEvaluate_AmountAboveCeilingRejected(t *testing.T) {
	userID := uuid.New()
	tx := domain.NewTransaction(userID, decimal.RequireFromString("100.01"), domain.SubscriptionPremium, 42)
	verdict := mustEvaluate(t, newTestEngine(cleanStub(userID)), tx)
	assertRejected(t, verdict, "exceeds the allowed limit")
}

func TestEvaluate_AmountAtCeilingPasses(t *testing.T) {
	userID := uuid.New()
	tx := domain.NewTransaction(userID, decimal.RequireFromString("100.00"), domain.SubscriptionPremium, 42)
	verdict := mustEvaluate(t, newTestEngine(cleanStub(userID)), tx)
	if !verdict.IsValid {
		t.Fatalf("amount equal to the ceiling must pass, got reason %v", verdict.Reason)
	}
}

func TestEvaluate_VelocityThresholdBoundary(t *testing.T) {
	userID := uuid.New()

	belowThreshold := cleanStub(userID)
	belowThreshold.recentCount = 2 // threshold - 1
	verdict := mustEvaluate(t, newTestEngine(belowThreshold), cleanTransaction(userID))
	if !verdict.IsValid {
		t.Fatalf("threshold-1 recent transactions must pass, got reason %v", verdict.Reason)
	}

	atThreshold := cleanStub(userID)
	atThreshold.recentCount = 3
	verdict = mustEvaluate(t, newTestEngine(atThreshold), cleanTransaction(userID))
	assertRejected(t, verdict, "high transaction frequency")
}

func TestEvaluate_DuplicateThresholdBoundary(t *testing.T) {
	userID := uuid.New()

	belowThreshold := cleanStub(userID)
	belowThreshold.duplicateCount = 1
	verdict := mustEvaluate(t, newTestEngine(belowThreshold), cleanTransaction(userID))
	if !verdict.IsValid {
		t.Fatalf("threshold-1 duplicates must pass, got reason %v", verdict.Reason)
	}

	atThreshold := cleanStub(userID)
	atThreshold.duplicateCount = 2
	verdict = mustEvaluate(t, newTestEngine(atThreshold), cleanTransaction(userID))
	assertRejected(t, verdict, "duplicate transaction")
}

func TestEvaluate_DailyCapRejected(t *testing.T) {
	userID := uuid.New()
	stub := cleanStub(userID)
	stub.dailyCount = 5
	verdict := mustEvaluate(t, newTestEngine(stub), cleanTransaction(userID))
	assertRejected(t, verdict, "daily transaction limit")
}

func TestEvaluate_MissingCardIsRuleFailureNotError(t *testing.T) {
	userID := uuid.New()
	stub := cleanStub(userID)
	stub.card = nil
	verdict := mustEvaluate(t, newTestEngine(stub), cleanTransaction(userID))
	assertRejected(t, verdict, "credit card not found")
}

func TestEvaluate_InactiveCardRejected(t *testing.T) {
	userID := uuid.New()
	stub := cleanStub(userID)
	stub.card.Status = domain.CardInactive
	verdict := mustEvaluate(t, newTestEngine(stub), cleanTransaction(userID))
	assertRejected(t, verdict, "not active")
}

func TestEvaluate_ExpiredCardRejected(t *testing.T) {
	userID := uuid.New()
	stub := cleanStub(userID)
	stub.card.ExpirationMonth = 7
	stub.card.ExpirationYear = 2026
	verdict := mustEvaluate(t, newTestEngine(stub), cleanTransaction(userID))
	assertRejected(t, verdict, "expired")
}

func TestEvaluate_CardExpiringThisMonthPasses(t *testing.T) {
	userID := uuid.New()
	stub := cleanStub(userID)
	stub.card.ExpirationMonth = int(evaluationTime.Month())
	stub.card.ExpirationYear = evaluationTime.Year()
	verdict := mustEvaluate(t, newTestEngine(stub), cleanTransaction(userID))
	if !verdict.IsValid {
		t.Fatalf("a card expiring this month must pass, got reason %v", verdict.Reason)
	}
}

func TestEvaluate_ForeignCardRejected(t *testing.T) {
	userID := uuid.New()
	stub := cleanStub(userID)
	stub.card.UserID = uuid.New()
	verdict := mustEvaluate(t, newTestEngine(stub), cleanTransaction(userID))
	assertRejected(t, verdict, "does not belong")
}

func TestEvaluate_ExistingApprovedTransactionRejected(t *testing.T) {
	userID := uuid.New()
	stub := cleanStub(userID)
	stub.approved = []domain.Transaction{{ID: uuid.New(), UserID: userID, Status: domain.StatusApproved}}
	verdict := mustEvaluate(t, newTestEngine(stub), cleanTransaction(userID))
	assertRejected(t, verdict, "already has an approved")
}

// Rule order is a design commitment: when several rules would fail, the
// earliest one's reason wins.
func TestEvaluate_RuleOrderDeterminesReportedReason(t *testing.T) {
	userID := uuid.New()

	// Everything is wrong at once: no card, saturated counts, prior plan.
	stub := &lookupStub{
		recentCount:    10,
		duplicateCount: 10,
		dailyCount:     10,
		approved:       []domain.Transaction{{ID: uuid.New(), UserID: userID, Status: domain.StatusApproved}},
	}

	// Negative amount outranks them all.
	tx := domain.NewTransaction(userID, decimal.RequireFromString("-5.00"), domain.SubscriptionBasic, 42)
	verdict := mustEvaluate(t, newTestEngine(stub), tx)
	assertRejected(t, verdict, "must be positive")

	// A positive amount over the ceiling reports the ceiling, not velocity.
	tx = domain.NewTransaction(userID, decimal.RequireFromString("250.00"), domain.SubscriptionBasic, 42)
	verdict = mustEvaluate(t, newTestEngine(stub), tx)
	assertRejected(t, verdict, "exceeds the allowed limit")

	// Within bounds, velocity outranks the duplicate and card rules.
	tx = domain.NewTransaction(userID, decimal.RequireFromString("9.90"), domain.SubscriptionBasic, 42)
	verdict = mustEvaluate(t, newTestEngine(stub), tx)
	assertRejected(t, verdict, "high transaction frequency")
}

func TestEvaluate_LookupFailureIsAnError(t *testing.T) {
	userID := uuid.New()
	stub := cleanStub(userID)
	stub.historyErr = errors.New("connection reset")

	_, err := newTestEngine(stub).Evaluate(context.Background(), cleanTransaction(userID))
	if err == nil {
		t.Fatal("expected an error for a failing lookup")
	}

	cardStub := cleanStub(userID)
	cardStub.cardErr = errors.New("connection reset")
	_, err = newTestEngine(cardStub).Evaluate(context.Background(), cleanTransaction(userID))
	if err == nil {
		t.Fatal("expected an error for a failing card lookup")
	}
}
