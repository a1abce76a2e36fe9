/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the transaction-service needs. Keeping an interface between the
 * business logic and PostgreSQL lets the application and anti-fraud layers be
 * tested against in-memory stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal: Identity and money types.
 * - internal/domain: The service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/melodyhub/transaction-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
// Its read-only history and card methods also satisfy the anti-fraud engine's
// HistoryLookup and CardLookup interfaces.
type Repository interface {
	// User methods
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	UpdateUserRole(ctx context.Context, userID uuid.UUID, role domain.UserRole, updatedAt time.Time) error

	// Transaction methods
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	FindTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error)

	// Read-only history lookups for the anti-fraud rules
	CountTransactionsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)
	CountMatchingTransactionsSince(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, subscriptionType domain.SubscriptionType, since time.Time) (int64, error)
	FindApprovedTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error)

	// Credit card methods
	FindCreditCardByID(ctx context.Context, creditCardID int64) (*domain.CreditCard, error)
}
