/**
 * @description
 * This file contains the core business logic for the transaction-service. The
 * `Service` struct orchestrates a subscription purchase end to end: it
 * resolves the plan's canonical price, runs the anti-fraud rule engine,
 * drives the Transaction aggregate through its single state transition,
 * persists the result, and publishes the aggregate's buffered events.
 *
 * Key ordering guarantees:
 * - The decision events are drained before persistence but published only
 *   after the insert succeeds; if persistence fails nothing is published.
 * - The validation audit event is recorded after persistence, so it always
 *   references a durable transaction, and is published after the decision
 *   event.
 * - A publish failure after persistence is a delivery fault: it is logged
 *   with the unsent events and never rolled back into the transaction record.
 *
 * @dependencies
 * - context, errors, fmt, log: Standard Go libraries.
 * - github.com/google/uuid: For identity handling.
 * - internal/antifraud, internal/domain, internal/store: Rule engine, domain models, data access.
 * - pkg/rabbitmq: Event publication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/melodyhub/transaction-service/internal/antifraud"
	"github.com/melodyhub/transaction-service/internal/domain"
	"github.com/melodyhub/transaction-service/internal/store"
	"github.com/melodyhub/transaction-service/pkg/rabbitmq"
)

// Service provides the core business logic for subscription transactions.
type Service struct {
	repo     store.Repository
	engine   *antifraud.Engine
	producer rabbitmq.Publisher
}

// NewService creates a new transaction service instance.
func NewService(repo store.Repository, engine *antifraud.Engine, producer rabbitmq.Publisher) *Service {
	return &Service{
		repo:     repo,
		engine:   engine,
		producer: producer,
	}
}

// CreateTransaction handles one subscription-purchase attempt. A rejected
// transaction is a successful call: the caller receives the persisted
// transaction with status REJECTED and a reason. Errors are reserved for
// unknown users/plans and infrastructure failures.
func (s *Service) CreateTransaction(ctx context.Context, userID uuid.UUID, req domain.CreateTransactionRequest) (*domain.Transaction, error) {
	// The price always comes from the subscription table, never the client.
	amount, err := domain.PriceForSubscription(req.SubscriptionType)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.FindUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	tx := domain.NewTransaction(userID, amount, req.SubscriptionType, req.CreditCardID)

	verdict, err := s.engine.Evaluate(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("anti-fraud evaluation: %w", err)
	}

	if verdict.IsValid {
		newRole, err := domain.RoleForSubscription(req.SubscriptionType)
		if err != nil {
			return nil, err
		}
		if err := tx.Approve(newRole); err != nil {
			return nil, err
		}
	} else {
		if err := tx.Reject(*verdict.Reason); err != nil {
			return nil, err
		}
		log.Printf("level=info component=transaction_service msg=\"transaction rejected\" transaction_id=%s user_id=%s reason=%q", tx.ID, userID, *verdict.Reason)
	}

	// Capture the decision event before the durability gate. It is only
	// published once the insert below succeeds.
	decisionEvents := tx.DrainEvents()

	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("persist transaction: %w", err)
	}

	// The audit record is produced against the persisted instance so it
	// always carries a durable identity.
	tx.RecordValidation(verdict.IsValid, verdict.Reason)
	auditEvents := tx.DrainEvents()

	s.publishEvents(ctx, tx.ID, append(decisionEvents, auditEvents...))

	return tx, nil
}

// GetTransactionByID returns a single transaction.
func (s *Service) GetTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	return s.repo.FindTransactionByID(ctx, transactionID)
}

// ListTransactionsByUserID returns a user's transactions, newest first.
func (s *Service) ListTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	return s.repo.FindTransactionsByUserID(ctx, userID)
}

// publishEvents delivers the drained events in order. The transaction is
// already durable here, so a publish failure is surfaced as a delivery fault
// in the logs and left to the producer's retry policy; it never mutates the
// transaction.
func (s *Service) publishEvents(ctx context.Context, transactionID uuid.UUID, events []domain.Event) {
	if len(events) == 0 {
		return
	}
	if err := s.producer.PublishAll(ctx, toPublisherEvents(events)); err != nil {
		log.Printf("level=error component=transaction_service msg=\"event delivery fault after persistence\" transaction_id=%s err=%v", transactionID, err)
	}
}

func toPublisherEvents(events []domain.Event) []rabbitmq.Event {
	published := make([]rabbitmq.Event, len(events))
	for i, event := range events {
		published[i] = event
	}
	return published
}
