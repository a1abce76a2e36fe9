/**
 * @description
 * This file implements the account-context consumer that reacts to approved
 * transactions. It is deliberately separate from the orchestration service:
 * the transaction decision and the user's role upgrade are different
 * aggregates in different consistency boundaries, connected only by the
 * published event. The upgrade is eventually consistent with the approval.
 *
 * Processing per message: claim the event id in the dedupe store, load the
 * User aggregate, run its upgrade transition, persist, then drain and publish
 * the aggregate's own UserSubscriptionUpgraded event. A failed attempt
 * releases the claim before nacking, so the redelivery is processed rather
 * than skipped as a duplicate.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/melodyhub/transaction-service/internal/domain"
	"github.com/melodyhub/transaction-service/internal/store"
	"github.com/melodyhub/transaction-service/pkg/rabbitmq"
)

// EventDeduper records processed event ids and releases claims whose
// processing attempt failed. Satisfied by *EventDedupe.
type EventDeduper interface {
	MarkProcessed(ctx context.Context, eventID uuid.UUID) (alreadySeen bool, err error)
	Release(ctx context.Context, eventID uuid.UUID) error
}

// SubscriptionUpgradeConsumer applies role upgrades in reaction to
// TransactionApproved events.
type SubscriptionUpgradeConsumer struct {
	repo     store.Repository
	producer rabbitmq.Publisher
	dedupe   EventDeduper
}

// NewSubscriptionUpgradeConsumer creates the consumer. dedupe may be nil, in
// which case redeliveries are applied again (at-least-once semantics).
func NewSubscriptionUpgradeConsumer(repo store.Repository, producer rabbitmq.Publisher, dedupe EventDeduper) *SubscriptionUpgradeConsumer {
	return &SubscriptionUpgradeConsumer{repo: repo, producer: producer, dedupe: dedupe}
}

// HandleMessage is the queue binding entry point. Returning true acks the
// message; false nacks it for redelivery. Permanently unprocessable messages
// (malformed payloads, unknown users) are logged and acked so they cannot
// poison the queue.
func (c *SubscriptionUpgradeConsumer) HandleMessage(body []byte) bool {
	var event domain.TransactionApprovedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=upgrade_consumer msg=\"failed to unmarshal approved event\" err=%v", err)
		return true
	}

	if event.EventID == uuid.Nil || event.UserID == uuid.Nil {
		log.Printf("level=error component=upgrade_consumer msg=\"approved event missing identity\" event_id=%s user_id=%s", event.EventID, event.UserID)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.processEvent(ctx, event); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			log.Printf("level=error component=upgrade_consumer msg=\"cannot upgrade missing user\" event_id=%s user_id=%s transaction_id=%s", event.EventID, event.UserID, event.TransactionID)
			return true
		}
		log.Printf("level=error component=upgrade_consumer msg=\"processing error\" event_id=%s user_id=%s err=%v", event.EventID, event.UserID, err)
		return false
	}

	return true
}

func (c *SubscriptionUpgradeConsumer) processEvent(ctx context.Context, event domain.TransactionApprovedEvent) error {
	if c.dedupe != nil {
		alreadySeen, err := c.dedupe.MarkProcessed(ctx, event.EventID)
		if err != nil {
			return fmt.Errorf("dedupe check: %w", err)
		}
		if alreadySeen {
			log.Printf("level=info component=upgrade_consumer msg=\"duplicate delivery skipped\" event_id=%s user_id=%s", event.EventID, event.UserID)
			return nil
		}
	}

	if err := c.applyUpgrade(ctx, event); err != nil {
		// The claim must not outlive a failed attempt, or the redelivery
		// would be skipped and the upgrade lost.
		c.releaseClaim(ctx, event.EventID)
		return err
	}
	return nil
}

func (c *SubscriptionUpgradeConsumer) applyUpgrade(ctx context.Context, event domain.TransactionApprovedEvent) error {
	user, err := c.repo.FindUserByID(ctx, event.UserID)
	if err != nil {
		return err
	}

	if err := user.UpgradeSubscription(event.NewUserRole); err != nil {
		return fmt.Errorf("upgrade user %s: %w", user.ID, err)
	}

	if err := c.repo.UpdateUserRole(ctx, user.ID, user.Role, user.UpdatedAt); err != nil {
		return fmt.Errorf("persist role change: %w", err)
	}

	log.Printf("level=info component=upgrade_consumer msg=\"subscription upgraded\" user_id=%s new_role=%s transaction_id=%s", user.ID, user.Role, event.TransactionID)

	// The role change is durable at this point; a publish failure is a
	// delivery fault, not a reason to retry the upgrade.
	if err := c.producer.PublishAll(ctx, toPublisherEvents(user.DrainEvents())); err != nil {
		log.Printf("level=error component=upgrade_consumer msg=\"event delivery fault after persistence\" user_id=%s err=%v", user.ID, err)
	}

	return nil
}

func (c *SubscriptionUpgradeConsumer) releaseClaim(ctx context.Context, eventID uuid.UUID) {
	if c.dedupe == nil {
		return
	}
	if err := c.dedupe.Release(ctx, eventID); err != nil {
		log.Printf("level=error component=upgrade_consumer msg=\"dedupe claim release failed\" event_id=%s err=%v", eventID, err)
	}
}
