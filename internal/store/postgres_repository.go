/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains the SQL for the transactions, users and credit_cards
 * tables, including the time-windowed count queries the anti-fraud rules read.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver.
 * - internal/domain: Domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/melodyhub/transaction-service/internal/antifraud"
	"github.com/melodyhub/transaction-service/internal/domain"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// PostgresRepository is the pgx-backed implementation of Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindUserByID retrieves a user by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, name, email, role, created_at, updated_at FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&user.ID, &user.Name, &user.Email, &user.Role, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateUserRole persists a role change made by the User aggregate.
func (r *PostgresRepository) UpdateUserRole(ctx context.Context, userID uuid.UUID, role domain.UserRole, updatedAt time.Time) error {
	query := `UPDATE users SET role = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, userID, role, updatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateTransaction inserts a transaction with its decided status. The id is
// assigned by the aggregate, never by the database.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, user_id, amount, subscription_type, credit_card_id, status, fraud_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		tx.ID, tx.UserID, tx.Amount.String(), tx.SubscriptionType, tx.CreditCardID,
		tx.Status, tx.FraudReason, tx.CreatedAt, tx.UpdatedAt,
	)
	return err
}

// FindTransactionByID retrieves a transaction by its ID.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	query := `
		SELECT id, user_id, amount::text, subscription_type, credit_card_id, status, fraud_reason, created_at, updated_at
		FROM transactions WHERE id = $1
	`
	tx, err := scanTransaction(r.db.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

// FindTransactionsByUserID lists a user's transactions, newest first.
func (r *PostgresRepository) FindTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	query := `
		SELECT id, user_id, amount::text, subscription_type, credit_card_id, status, fraud_reason, created_at, updated_at
		FROM transactions WHERE user_id = $1 ORDER BY created_at DESC
	`
	return r.queryTransactions(ctx, query, userID)
}

// CountTransactionsSince counts a user's transactions created at or after the
// given instant. Used by the velocity and daily-cap rules.
func (r *PostgresRepository) CountTransactionsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM transactions WHERE user_id = $1 AND created_at >= $2`
	if err := r.db.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CountMatchingTransactionsSince counts a user's transactions with the same
// amount and subscription type inside the window. Used by the duplicate rule.
func (r *PostgresRepository) CountMatchingTransactionsSince(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, subscriptionType domain.SubscriptionType, since time.Time) (int64, error) {
	var count int64
	query := `
		SELECT COUNT(*) FROM transactions
		WHERE user_id = $1 AND amount = $2::numeric AND subscription_type = $3 AND created_at >= $4
	`
	if err := r.db.QueryRow(ctx, query, userID, amount.String(), subscriptionType, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// FindApprovedTransactionsByUserID lists a user's approved transactions.
// Used by the single-active-plan rule.
func (r *PostgresRepository) FindApprovedTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	query := `
		SELECT id, user_id, amount::text, subscription_type, credit_card_id, status, fraud_reason, created_at, updated_at
		FROM transactions WHERE user_id = $1 AND status = 'APPROVED' ORDER BY created_at DESC
	`
	return r.queryTransactions(ctx, query, userID)
}

// FindCreditCardByID retrieves a stored card by its ID.
func (r *PostgresRepository) FindCreditCardByID(ctx context.Context, creditCardID int64) (*domain.CreditCard, error) {
	var card domain.CreditCard
	query := `
		SELECT id, user_id, card_number, card_holder_name, expiration_month, expiration_year, status, brand
		FROM credit_cards WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, creditCardID).Scan(
		&card.ID, &card.UserID, &card.CardNumber, &card.CardHolderName,
		&card.ExpirationMonth, &card.ExpirationYear, &card.Status, &card.Brand,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, antifraud.ErrCreditCardNotFound
		}
		return nil, err
	}
	return &card, nil
}

func (r *PostgresRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	return transactions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var amountText string
	err := row.Scan(
		&tx.ID, &tx.UserID, &amountText, &tx.SubscriptionType, &tx.CreditCardID,
		&tx.Status, &tx.FraudReason, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(amountText)
	if err != nil {
		return nil, err
	}
	tx.Amount = amount
	return &tx, nil
}
