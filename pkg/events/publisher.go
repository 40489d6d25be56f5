package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IvanTran0101/ibanking-tuition/pkg/rabbitmq"
)

// Meta carries tracing metadata propagated from the triggering inbound event.
type Meta struct {
	CorrelationID  string
	IdempotencyKey string
}

// MetaFrom lifts the tracing headers off an inbound delivery so outbound
// events stay correlated to the same saga instance.
func MetaFrom(d rabbitmq.Delivery) Meta {
	return Meta{CorrelationID: d.CorrelationID, IdempotencyKey: d.IdempotencyKey}
}

// Publisher is the interface components publish domain events through.
type Publisher interface {
	Publish(ctx context.Context, routingKey, eventType string, payload any, meta Meta) error
}

type transport interface {
	Publish(ctx context.Context, routingKey string, body []byte, h rabbitmq.PublishHeaders) error
}

// BusPublisher stamps the standard envelope headers onto every publish:
// event-type, event-version, occurred-at (epoch millis), and the propagated
// correlation-id / idempotency-key.
type BusPublisher struct {
	bus transport
}

func NewPublisher(bus *rabbitmq.Bus) *BusPublisher {
	return &BusPublisher{bus: bus}
}

func (p *BusPublisher) Publish(ctx context.Context, routingKey, eventType string, payload any, meta Meta) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return p.bus.Publish(ctx, routingKey, body, rabbitmq.PublishHeaders{
		EventType:      eventType,
		EventVersion:   Version,
		OccurredAt:     time.Now().UnixMilli(),
		CorrelationID:  meta.CorrelationID,
		IdempotencyKey: meta.IdempotencyKey,
	})
}
