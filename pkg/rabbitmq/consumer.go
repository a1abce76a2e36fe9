/**
 * @description
 * This file implements the consuming side of the event pipeline. A Consumer
 * binds one durable queue to a set of routing patterns on the melodyhub topic
 * exchange and dispatches each delivery to the handler whose pattern matches
 * the event type. Because the producer uses the event type as the routing key,
 * a binding can name one exact type ("antifraud.transaction.approved") or a
 * whole family of events with topic wildcards ("antifraud.*", "account.#").
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */

package rabbitmq

import (
	"fmt"
	"log"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one delivery body. Returning true acks the message; false
// nacks it with requeue, so implementations must tolerate redelivery.
type Handler func(body []byte) bool

// Consumer dispatches deliveries from a durable queue to per-pattern handlers.
type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewConsumer(amqpURL string) (*Consumer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.Dial(cleanURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Consumer{conn: conn, ch: ch}, nil
}

// ConsumeWithBindings declares the exchange and queue, binds the queue to every
// routing pattern, and starts a goroutine dispatching deliveries to the
// matching handlers. Delivery is at-least-once.
func (c *Consumer) ConsumeWithBindings(exchange, queueName string, bindings map[string]Handler) error {
	if len(bindings) == 0 {
		return fmt.Errorf("no bindings provided")
	}

	if err := c.ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	q, err := c.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}

	handlers := make(map[string]Handler, len(bindings))
	for pattern, handler := range bindings {
		if handler == nil {
			continue
		}
		if err := c.ch.QueueBind(q.Name, pattern, exchange, false, nil); err != nil {
			return err
		}
		handlers[pattern] = handler
	}

	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go dispatch(msgs, handlers)
	return nil
}

func dispatch(msgs <-chan amqp.Delivery, handlers map[string]Handler) {
	for d := range msgs {
		handler := resolveHandler(handlers, d.RoutingKey)
		if handler == nil {
			log.Printf("level=warn component=rabbitmq_consumer msg=\"no handler matches routing key; dropping\" routing_key=%s", d.RoutingKey)
			d.Ack(false)
			continue
		}
		if handler(d.Body) {
			d.Ack(false)
		} else {
			log.Printf("level=warn component=rabbitmq_consumer msg=\"handler failed; re-queuing\" routing_key=%s", d.RoutingKey)
			d.Nack(false, true)
		}
	}
}

// resolveHandler picks the handler for a routing key. An exact pattern wins;
// otherwise wildcard patterns are tried in unspecified order.
func resolveHandler(handlers map[string]Handler, routingKey string) Handler {
	if handler, ok := handlers[routingKey]; ok {
		return handler
	}
	for pattern, handler := range handlers {
		if matchTopic(pattern, routingKey) {
			return handler
		}
	}
	return nil
}

// matchTopic reports whether a topic binding pattern matches a routing key
// under AMQP topic semantics: "*" matches exactly one dot-separated word and
// "#" matches zero or more words.
func matchTopic(pattern, routingKey string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(routingKey, "."))
}

func matchWords(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}
	switch pattern[0] {
	case "#":
		if matchWords(pattern[1:], key) {
			return true
		}
		return len(key) > 0 && matchWords(pattern, key[1:])
	case "*":
		return len(key) > 0 && matchWords(pattern[1:], key[1:])
	default:
		return len(key) > 0 && pattern[0] == key[0] && matchWords(pattern[1:], key[1:])
	}
}

func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
