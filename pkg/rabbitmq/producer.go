/**
 * @description
 * This package provides the RabbitMQ producer that publishes domain events to
 * the melodyhub topic exchange. The routing key of every message is the
 * event's type string, so consumers can bind by exact type or by prefix.
 *
 * @dependencies
 * - context, encoding/json, time: Standard Go libraries.
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */

package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// Event is the minimal surface the producer needs from a domain event: a
// unique id for logging and a type string used as the routing key.
type Event interface {
	ID() uuid.UUID
	Type() string
}

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	PublishAll(ctx context.Context, events []Event) error
	Close()
}

// PublishError reports a failed batch publish: which event failed and which
// events were not yet sent when the batch aborted.
type PublishError struct {
	Failed Event
	Unsent []Event
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s (%s) failed, %d event(s) not sent: %v",
		e.Failed.Type(), e.Failed.ID(), len(e.Unsent), e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// EventProducer holds the RabbitMQ connection and channel for publishing.
// It is stateless between calls and assumes nothing about broker-side
// ordering beyond sequential single-channel submission.
type EventProducer struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

// FallbackProducer is a minimal no-op publisher used when RabbitMQ is
// unavailable at startup so the API can still serve traffic.
type FallbackProducer struct{}

func (p *FallbackProducer) Publish(ctx context.Context, event Event) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"publish skipped\" event_type=%s event_id=%s", event.Type(), event.ID())
	return nil
}

func (p *FallbackProducer) PublishAll(ctx context.Context, events []Event) error {
	for _, event := range events {
		_ = p.Publish(ctx, event)
	}
	return nil
}

func (p *FallbackProducer) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer connects to RabbitMQ and returns a producer bound to the
// given topic exchange.
func NewEventProducer(amqpURL, exchange string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	// Bounded dial timeout so startup does not hang indefinitely.
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch, exchange: exchange}, nil
}

// Publish sends one event to the exchange with its type as the routing key.
// Publish failures propagate to the caller; retry and dead-letter policy are
// the caller's decision, never a silent swallow here.
func (p *EventProducer) Publish(ctx context.Context, event Event) error {
	routingKey := event.Type()

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID(), err)
	}

	if err := p.ensureExchange(); err != nil {
		return err
	}

	log.Printf("level=info component=rabbitmq_producer msg=\"publishing domain event\" event_type=%s event_id=%s", routingKey, event.ID())

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			MessageId:   event.ID().String(),
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		// One-shot retry: reopen the channel and try again.
		log.Printf("level=warn component=rabbitmq_producer msg=\"publish failed; reopening channel\" event_type=%s err=%v", routingKey, err)
		if p.conn != nil {
			if ch, chErr := p.conn.Channel(); chErr == nil {
				p.channel = ch
				if exErr := p.ensureExchange(); exErr == nil {
					if retryErr := p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
						ContentType: "application/json",
						MessageId:   event.ID().String(),
						Timestamp:   time.Now(),
						Body:        body,
					}); retryErr == nil {
						return nil
					}
				}
			}
		}
		return err
	}
	return nil
}

// PublishAll publishes events sequentially, preserving their order. The batch
// aborts on the first failure; the returned PublishError names the failed
// event and every event that was not yet sent.
func (p *EventProducer) PublishAll(ctx context.Context, events []Event) error {
	for i, event := range events {
		if err := p.Publish(ctx, event); err != nil {
			return &PublishError{Failed: event, Unsent: events[i+1:], Err: err}
		}
	}
	return nil
}

func (p *EventProducer) ensureExchange() error {
	return p.channel.ExchangeDeclare(
		p.exchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
