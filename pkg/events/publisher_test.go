package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IvanTran0101/ibanking-tuition/pkg/rabbitmq"
)

type transportStub struct {
	routingKey string
	body       []byte
	headers    rabbitmq.PublishHeaders
	calls      int
}

func (s *transportStub) Publish(ctx context.Context, routingKey string, body []byte, h rabbitmq.PublishHeaders) error {
	s.calls++
	s.routingKey = routingKey
	s.body = body
	s.headers = h
	return nil
}

func TestPublishStampsEnvelopeHeaders(t *testing.T) {
	stub := &transportStub{}
	pub := &BusPublisher{bus: stub}

	payload := BalanceHeld{UserID: "u-1", Amount: 80, PaymentID: "p-1", Email: "u@example.edu"}
	meta := Meta{CorrelationID: "c-1", IdempotencyKey: "p-1"}

	if err := pub.Publish(context.Background(), RKBalanceHeld, EventTypeBalanceHeld, payload, meta); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 1 {
		t.Fatalf("expected one publish, got %d", stub.calls)
	}
	if stub.routingKey != "balance.v1.held" {
		t.Fatalf("expected routing key balance.v1.held, got %q", stub.routingKey)
	}
	if stub.headers.EventType != "balance_held" || stub.headers.EventVersion != "v1" {
		t.Fatalf("expected envelope type/version, got %+v", stub.headers)
	}
	if stub.headers.OccurredAt == 0 {
		t.Fatal("expected occurred-at to be stamped")
	}
	if stub.headers.CorrelationID != "c-1" || stub.headers.IdempotencyKey != "p-1" {
		t.Fatalf("expected meta propagation, got %+v", stub.headers)
	}

	var got BalanceHeld
	if err := json.Unmarshal(stub.body, &got); err != nil {
		t.Fatalf("body is not valid json: %v", err)
	}
	if got != payload {
		t.Fatalf("expected payload round-trip, got %+v", got)
	}
}

func TestMetaFromDelivery(t *testing.T) {
	d := rabbitmq.Delivery{CorrelationID: "c-9", IdempotencyKey: "p-9"}
	meta := MetaFrom(d)
	if meta.CorrelationID != "c-9" || meta.IdempotencyKey != "p-9" {
		t.Fatalf("expected headers lifted, got %+v", meta)
	}
}
