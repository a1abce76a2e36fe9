/**
 * @description
 * This file implements the anti-fraud rule engine. The engine inspects a
 * candidate transaction together with read-only lookups (recent transaction
 * history, credit card state) and returns a verdict. It never mutates the
 * transaction or anything it looks up.
 *
 * Rules run in a fixed priority order and evaluation stops at the first
 * failure; when several rules would fail, the earliest one's reason is the one
 * reported. Tests pin this order.
 *
 * @notes
 * - A missing or unusable credit card is a rule failure, not an error. The
 *   only errors returned are I/O failures from the lookups themselves.
 * - All thresholds come from configuration; nothing is hard-coded.
 */

package antifraud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/melodyhub/transaction-service/internal/domain"
)

// ErrCreditCardNotFound is returned by CardLookup implementations when no card
// exists for the given id. The engine translates it into a rule failure.
var ErrCreditCardNotFound = errors.New("credit card not found")

// Verdict is the engine's decision. Reason is set iff the verdict is invalid.
type Verdict struct {
	IsValid bool
	Reason  *string
}

func valid() Verdict { return Verdict{IsValid: true} }

func invalid(reason string) Verdict {
	return Verdict{IsValid: false, Reason: &reason}
}

// HistoryLookup provides the read-only transaction history queries the
// velocity, duplicate, daily-cap and single-active-plan rules need.
type HistoryLookup interface {
	CountTransactionsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)
	CountMatchingTransactionsSince(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, subscriptionType domain.SubscriptionType, since time.Time) (int64, error)
	FindApprovedTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error)
}

// CardLookup fetches the credit card referenced by a transaction.
type CardLookup interface {
	FindCreditCardByID(ctx context.Context, creditCardID int64) (*domain.CreditCard, error)
}

// Limits holds the externally tunable rule thresholds.
type Limits struct {
	MaxAmount          decimal.Decimal
	VelocityWindow     time.Duration
	VelocityThreshold  int64
	DuplicateWindow    time.Duration
	DuplicateThreshold int64
	DailyCap           int64
}

// Engine evaluates the anti-fraud rules against a candidate transaction.
type Engine struct {
	history HistoryLookup
	cards   CardLookup
	limits  Limits

	// now is swapped in tests to pin window and expiry boundaries.
	now func() time.Time
}

// NewEngine creates a rule engine with the given lookups and limits.
func NewEngine(history HistoryLookup, cards CardLookup, limits Limits) *Engine {
	return &Engine{
		history: history,
		cards:   cards,
		limits:  limits,
		now:     time.Now,
	}
}

// Evaluate runs all rules in priority order against the candidate transaction
// and returns the first failure, or a valid verdict when every rule passes.
// The returned error is non-nil only for lookup I/O failures.
func (e *Engine) Evaluate(ctx context.Context, tx *domain.Transaction) (Verdict, error) {
	now := e.now().UTC()

	// Rule 1: the amount must be strictly positive.
	if !tx.Amount.IsPositive() {
		return invalid("transaction amount must be positive"), nil
	}

	// Rule 2: the amount must not exceed the policy ceiling.
	if tx.Amount.GreaterThan(e.limits.MaxAmount) {
		return invalid(fmt.Sprintf("transaction amount exceeds the allowed limit of %s", e.limits.MaxAmount.StringFixed(2))), nil
	}

	// Rule 3: velocity. Too many transactions inside the trailing window.
	windowStart := now.Add(-e.limits.VelocityWindow)
	recentCount, err := e.history.CountTransactionsSince(ctx, tx.UserID, windowStart)
	if err != nil {
		return Verdict{}, fmt.Errorf("count recent transactions: %w", err)
	}
	if recentCount >= e.limits.VelocityThreshold {
		return invalid(fmt.Sprintf("high transaction frequency detected: %d or more transactions within %s", e.limits.VelocityThreshold, e.limits.VelocityWindow)), nil
	}

	// Rule 4: duplicate. Same user, amount and plan inside the window.
	duplicateStart := now.Add(-e.limits.DuplicateWindow)
	duplicateCount, err := e.history.CountMatchingTransactionsSince(ctx, tx.UserID, tx.Amount, tx.SubscriptionType, duplicateStart)
	if err != nil {
		return Verdict{}, fmt.Errorf("count duplicate transactions: %w", err)
	}
	if duplicateCount >= e.limits.DuplicateThreshold {
		return invalid("duplicate transaction detected for the same amount and subscription type"), nil
	}

	// Rule 5: daily cap, counted from the start of the current calendar day.
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	todayCount, err := e.history.CountTransactionsSince(ctx, tx.UserID, dayStart)
	if err != nil {
		return Verdict{}, fmt.Errorf("count daily transactions: %w", err)
	}
	if todayCount >= e.limits.DailyCap {
		return invalid(fmt.Sprintf("daily transaction limit exceeded (maximum %d per day)", e.limits.DailyCap)), nil
	}

	// Rules 6-9: credit card existence, state, expiry and ownership.
	card, err := e.cards.FindCreditCardByID(ctx, tx.CreditCardID)
	if err != nil {
		if errors.Is(err, ErrCreditCardNotFound) {
			return invalid("credit card not found"), nil
		}
		return Verdict{}, fmt.Errorf("fetch credit card: %w", err)
	}
	if !card.IsActive() {
		return invalid("credit card is not active"), nil
	}
	if card.IsExpired(now) {
		return invalid("credit card is expired"), nil
	}
	if card.UserID != tx.UserID {
		return invalid("credit card does not belong to the transaction user"), nil
	}

	// Rule 10: single active plan. Any prior approved transaction blocks a
	// new purchase.
	approved, err := e.history.FindApprovedTransactionsByUserID(ctx, tx.UserID)
	if err != nil {
		return Verdict{}, fmt.Errorf("list approved transactions: %w", err)
	}
	if len(approved) > 0 {
		return invalid("user already has an approved subscription transaction"), nil
	}

	return valid(), nil
}
