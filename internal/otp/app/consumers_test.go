package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/IvanTran0101/ibanking-tuition/pkg/events"
	"github.com/IvanTran0101/ibanking-tuition/pkg/rabbitmq"
)

type publishedEvent struct {
	routingKey string
	eventType  string
	payload    any
	meta       events.Meta
}

type publisherStub struct {
	published []publishedEvent
	err       error
}

func (s *publisherStub) Publish(ctx context.Context, routingKey, eventType string, payload any, meta events.Meta) error {
	s.published = append(s.published, publishedEvent{routingKey, eventType, payload, meta})
	return s.err
}

type mailerStub struct {
	to      []string
	bodies  []string
	sendErr error
}

func (s *mailerStub) Send(ctx context.Context, to, subject, body string) error {
	s.to = append(s.to, to)
	s.bodies = append(s.bodies, body)
	return s.sendErr
}

func processingDelivery(body string) rabbitmq.Delivery {
	return rabbitmq.Delivery{
		Body:          []byte(body),
		EventType:     events.EventTypePaymentProcessing,
		CorrelationID: "c-1",
	}
}

func TestHandleProcessingIssuesChallengeAndMailsCode(t *testing.T) {
	st := newMemoryStore()
	pub := &publisherStub{}
	m := &mailerStub{}
	c := NewPaymentConsumer(st, pub, m, 6, 5*time.Minute)

	d := processingDelivery(`{"payment_id":"p-1","user_id":"u-1","tuition_id":"t-1","amount":1000000,"email":"u@example.edu"}`)
	if err := c.HandleMessage(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, ok := st.records["p-1"]
	if !ok {
		t.Fatal("expected a stored challenge record")
	}
	if len(rec.Code) != 6 || strings.Trim(rec.Code, "0123456789") != "" {
		t.Fatalf("expected a 6-digit code, got %q", rec.Code)
	}
	if len(m.to) != 1 || m.to[0] != "u@example.edu" {
		t.Fatalf("expected one mail to the user, got %+v", m.to)
	}
	if !strings.Contains(m.bodies[0], rec.Code) {
		t.Fatal("expected the code in the mail body")
	}

	if len(pub.published) != 1 || pub.published[0].eventType != events.EventTypeOTPGenerated {
		t.Fatalf("expected one otp_generated, got %+v", pub.published)
	}
	gen := pub.published[0].payload.(events.OTPGenerated)
	if gen.PaymentID != "p-1" || gen.Amount != 1_000_000 {
		t.Fatalf("unexpected payload %+v", gen)
	}
}

func TestHandleProcessingReplayDoesNotReissue(t *testing.T) {
	st := newMemoryStore()
	pub := &publisherStub{}
	m := &mailerStub{}
	c := NewPaymentConsumer(st, pub, m, 6, 5*time.Minute)

	d := processingDelivery(`{"payment_id":"p-1","user_id":"u-1","amount":500,"email":"u@example.edu"}`)
	if err := c.HandleMessage(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := st.records["p-1"].Code

	if err := c.HandleMessage(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.records["p-1"].Code != first {
		t.Fatal("expected the original code to survive the replay")
	}
	if len(m.to) != 1 {
		t.Fatalf("expected one mail, got %d", len(m.to))
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected one otp_generated, got %d", len(pub.published))
	}
}

func TestHandleProcessingMailFailureStillPublishes(t *testing.T) {
	st := newMemoryStore()
	pub := &publisherStub{}
	m := &mailerStub{sendErr: context.DeadlineExceeded}
	c := NewPaymentConsumer(st, pub, m, 6, 5*time.Minute)

	d := processingDelivery(`{"payment_id":"p-1","user_id":"u-1","amount":500,"email":"u@example.edu"}`)
	if err := c.HandleMessage(context.Background(), d); err != nil {
		t.Fatalf("mail failure must not dead-letter, got %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected one otp_generated, got %d", len(pub.published))
	}
}

func TestHandleProcessingDropsInvalidPayload(t *testing.T) {
	st := newMemoryStore()
	c := NewPaymentConsumer(st, &publisherStub{}, &mailerStub{}, 6, 5*time.Minute)

	d := processingDelivery(`{"payment_id":"p-1","amount":0}`)
	if err := c.HandleMessage(context.Background(), d); err != nil {
		t.Fatalf("validation failure must ack, got %v", err)
	}
	if len(st.records) != 0 {
		t.Fatal("expected no challenge for invalid payload")
	}
}

func TestGenerateCodeLengthAndCharset(t *testing.T) {
	code, err := generateCode(6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(code) != 6 || strings.Trim(code, "0123456789") != "" {
		t.Fatalf("expected 6 digits, got %q", code)
	}
}
