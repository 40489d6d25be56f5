/**
 * @description
 * This package provides the message bus substrate shared by all services.
 * It wraps a RabbitMQ connection and channel behind an explicitly owned,
 * injectable handle: each service dials its own Bus instances (one for
 * consuming, one for publishing) and passes them to its components at
 * construction time.
 *
 * Topology: one durable topic exchange for live traffic and one for
 * dead-letters. Queues declared with dead-lettering enabled get a
 * companion "<queue>.dlq" bound to the dead-letter exchange under the
 * same routing keys. A handler failure nacks the message without
 * requeueing it, which routes it to the DLQ; there is no automatic
 * redrive.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 * - github.com/google/uuid: Message ids.
 */
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Delivery is one inbound message with its envelope headers decoded.
type Delivery struct {
	Body           []byte
	MessageID      string
	RoutingKey     string
	EventType      string
	EventVersion   string
	OccurredAt     int64
	CorrelationID  string
	IdempotencyKey string
}

// Handler processes one delivery. A nil return acks the message; a non-nil
// return nacks it without requeue, routing it to the dead-letter queue.
type Handler func(ctx context.Context, d Delivery) error

// PublishHeaders carries the envelope metadata stamped onto every message.
type PublishHeaders struct {
	EventType      string
	EventVersion   string
	OccurredAt     int64
	CorrelationID  string
	IdempotencyKey string
}

// Bus owns a single connection and channel against one exchange pair.
type Bus struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	dlx      string
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", fmt.Errorf("invalid AMQP scheme: %s", parsed.Scheme)
	}
	return clean, nil
}

// Dial connects to RabbitMQ and declares the live and dead-letter topic
// exchanges, both durable.
func Dial(amqpURL, exchange, dlx string) (*Bus, error) {
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}

	// Bounded dial timeout so startup does not hang indefinitely.
	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	for _, name := range []string{exchange, dlx} {
		if err := ch.ExchangeDeclare(name, "topic", true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}

	return &Bus{conn: conn, ch: ch, exchange: exchange, dlx: dlx}, nil
}

// DeclareQueue declares a durable queue bound to every routing key in
// routingKeys. With deadLetter enabled it also declares "<queue>.dlq" on the
// dead-letter exchange under the same keys, and failed messages are routed
// there via the queue's x-dead-letter-exchange argument. prefetch bounds the
// number of unacknowledged deliveries in flight on this channel.
func (b *Bus) DeclareQueue(queue string, routingKeys []string, deadLetter bool, prefetch int) error {
	if len(routingKeys) == 0 {
		return errors.New("no routing keys provided")
	}

	var args amqp.Table
	if deadLetter {
		args = amqp.Table{"x-dead-letter-exchange": b.dlx}
	}

	if _, err := b.ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	for _, rk := range routingKeys {
		if err := b.ch.QueueBind(queue, rk, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", queue, rk, err)
		}
	}

	if deadLetter {
		dlq := queue + ".dlq"
		if _, err := b.ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", dlq, err)
		}
		for _, rk := range routingKeys {
			if err := b.ch.QueueBind(dlq, rk, b.dlx, false, nil); err != nil {
				return fmt.Errorf("bind %s to %s: %w", dlq, rk, err)
			}
		}
	}

	if prefetch > 0 {
		if err := b.ch.Qos(prefetch, 0, false); err != nil {
			return fmt.Errorf("set prefetch on %s: %w", queue, err)
		}
	}
	return nil
}

// Publish writes one persistent message to the live exchange.
func (b *Bus) Publish(ctx context.Context, routingKey string, body []byte, h PublishHeaders) error {
	headers := amqp.Table{
		"event-type":    h.EventType,
		"event-version": h.EventVersion,
		"occurred-at":   h.OccurredAt,
	}
	if h.CorrelationID != "" {
		headers["correlation-id"] = h.CorrelationID
	}
	if h.IdempotencyKey != "" {
		headers["idempotency-key"] = h.IdempotencyKey
	}

	return b.ch.PublishWithContext(ctx,
		b.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Headers:      headers,
			Body:         body,
		},
	)
}

// Consume starts one worker goroutine draining the queue. Messages are
// delivered to the handler one at a time up to the channel prefetch; the
// worker stops when ctx is canceled or the channel closes.
func (b *Bus) Consume(ctx context.Context, queue string, handler Handler) error {
	msgs, err := b.ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Printf("level=info component=rabbitmq msg=\"consumer stopping\" queue=%s", queue)
				return
			case d, ok := <-msgs:
				if !ok {
					log.Printf("level=warn component=rabbitmq msg=\"delivery channel closed\" queue=%s", queue)
					return
				}
				del := toDelivery(d)
				if err := handler(ctx, del); err != nil {
					log.Printf("level=error component=rabbitmq msg=\"handler failed; dead-lettering\" queue=%s routing_key=%s event_type=%s err=%v",
						queue, del.RoutingKey, del.EventType, err)
					if nackErr := d.Nack(false, false); nackErr != nil {
						log.Printf("level=error component=rabbitmq msg=\"nack failed\" queue=%s err=%v", queue, nackErr)
					}
					continue
				}
				if ackErr := d.Ack(false); ackErr != nil {
					log.Printf("level=error component=rabbitmq msg=\"ack failed\" queue=%s err=%v", queue, ackErr)
				}
			}
		}
	}()

	return nil
}

// Close releases the channel and connection.
func (b *Bus) Close() {
	if b.ch != nil {
		b.ch.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}

func toDelivery(d amqp.Delivery) Delivery {
	return Delivery{
		Body:           d.Body,
		MessageID:      d.MessageId,
		RoutingKey:     d.RoutingKey,
		EventType:      headerString(d.Headers, "event-type"),
		EventVersion:   headerString(d.Headers, "event-version"),
		OccurredAt:     headerInt64(d.Headers, "occurred-at"),
		CorrelationID:  headerString(d.Headers, "correlation-id"),
		IdempotencyKey: headerString(d.Headers, "idempotency-key"),
	}
}

func headerString(t amqp.Table, key string) string {
	if t == nil {
		return ""
	}
	if v, ok := t[key].(string); ok {
		return v
	}
	return ""
}

func headerInt64(t amqp.Table, key string) int64 {
	if t == nil {
		return 0
	}
	switch v := t[key].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
