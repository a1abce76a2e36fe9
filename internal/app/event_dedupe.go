/**
 * @description
 * This file implements the Redis-backed dedupe store the upgrade consumer uses
 * to make at-least-once delivery idempotent. Processed event ids are recorded
 * with SETNX under a TTL; a redelivered event id is recognized and dropped
 * instead of upgrading the user a second time. A claim only stands for a
 * successful attempt: when processing fails after the claim, the consumer
 * releases it so the redelivery is processed instead of skipped.
 */

package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventDedupe records processed event ids. A nil *EventDedupe is a valid
// no-op instance: every event is treated as unseen (at-least-once semantics).
type EventDedupe struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewEventDedupe creates a dedupe store with the given key prefix and TTL.
func NewEventDedupe(client redis.UniversalClient, prefix string, ttl time.Duration) *EventDedupe {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "melodyhub:events:processed"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &EventDedupe{
		client: client,
		prefix: trimmedPrefix,
		ttl:    ttl,
	}
}

// MarkProcessed records the event id and reports whether it had already been
// processed. The claim and the check are one atomic SETNX, so two concurrent
// deliveries of the same event cannot both proceed.
func (d *EventDedupe) MarkProcessed(ctx context.Context, eventID uuid.UUID) (alreadySeen bool, err error) {
	if d == nil || d.client == nil {
		return false, nil
	}

	claimed, err := d.client.SetNX(ctx, d.key(eventID), 1, d.ttl).Result()
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// Release drops a previously claimed event id so a redelivery can be processed
// again. Called when processing fails after the claim; without it the failed
// attempt would be the only one that ever runs.
func (d *EventDedupe) Release(ctx context.Context, eventID uuid.UUID) error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Del(ctx, d.key(eventID)).Err()
}

func (d *EventDedupe) key(eventID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", d.prefix, eventID)
}
