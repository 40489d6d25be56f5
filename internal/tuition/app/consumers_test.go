package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IvanTran0101/ibanking-tuition/internal/tuition/domain"
	"github.com/IvanTran0101/ibanking-tuition/internal/tuition/store"
	"github.com/IvanTran0101/ibanking-tuition/pkg/events"
	"github.com/IvanTran0101/ibanking-tuition/pkg/rabbitmq"
)

type repoStub struct {
	store.Repository

	lockTuition *domain.Tuition
	lockErr     error
	lockCalls   int

	captureTuition *domain.Tuition
	captureErr     error

	releaseTuition *domain.Tuition
	releaseErr     error
}

func (s *repoStub) LockTuition(ctx context.Context, studentID, tuitionID, paymentID string, amount float64, expiresAt time.Time) (*domain.Tuition, error) {
	s.lockCalls++
	return s.lockTuition, s.lockErr
}

func (s *repoStub) CaptureTuition(ctx context.Context, paymentID string) (*domain.Tuition, error) {
	return s.captureTuition, s.captureErr
}

func (s *repoStub) ReleaseTuition(ctx context.Context, paymentID string) (*domain.Tuition, error) {
	return s.releaseTuition, s.releaseErr
}

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

func initiatedDelivery(t *testing.T, p events.PaymentInitiated) rabbitmq.Delivery {
	t.Helper()
	body, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return rabbitmq.Delivery{
		Body:          body,
		EventType:     events.EventTypePaymentInitiated,
		CorrelationID: "c-1",
	}
}

func TestHandleInitiatedLocksAndPublishesTuitionLocked(t *testing.T) {
	expires := time.Now().UTC().Add(15 * time.Minute)
	repo := &repoStub{
		lockTuition: &domain.Tuition{
			TuitionID: "t-1", StudentID: "s-1", TermNo: "2025A",
			AmountDue: 1_000_000, Status: domain.TuitionLocked,
			PaymentID: "p-1", ExpiresAt: &expires,
		},
	}
	pub := &publisherStub{}
	c := NewPaymentConsumer(repo, pub, 15*time.Minute)

	d := initiatedDelivery(t, events.PaymentInitiated{
		PaymentID: "p-1", UserID: "u-1", StudentID: "s-1", TuitionID: "t-1", Amount: 1_000_000,
	})
	if err := c.HandleMessage(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected one event, got %d", len(pub.published))
	}
	got := pub.published[0]
	if got.routingKey != events.RKTuitionLocked || got.eventType != events.EventTypeTuitionLocked {
		t.Fatalf("expected tuition_locked, got %s/%s", got.routingKey, got.eventType)
	}
	locked := got.payload.(events.TuitionLocked)
	if locked.PaymentID != "p-1" || locked.Status != "LOCKED" || locked.AmountDue != 1_000_000 {
		t.Fatalf("unexpected payload %+v", locked)
	}
	if got.meta.CorrelationID != "c-1" {
		t.Fatalf("expected correlation id propagation, got %+v", got.meta)
	}
}

func TestHandleInitiatedTuitionNotFound(t *testing.T) {
	repo := &repoStub{lockErr: store.ErrTuitionNotFound}
	pub := &publisherStub{}
	c := NewPaymentConsumer(repo, pub, 15*time.Minute)

	d := initiatedDelivery(t, events.PaymentInitiated{
		PaymentID: "p-2", UserID: "u-1", StudentID: "s-1", TuitionID: "ghost", Amount: 500,
	})
	if err := c.HandleMessage(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	failed := pub.published[0].payload.(events.TuitionLockFailed)
	if failed.ReasonCode != events.ReasonTuitionNotFound {
		t.Fatalf("expected tuition_not_found, got %q", failed.ReasonCode)
	}
	if failed.Status != "NOT_FOUND" || failed.PaymentID != "p-2" {
		t.Fatalf("unexpected payload %+v", failed)
	}
}

func TestHandleInitiatedForeignLockPublishesInvalidStatus(t *testing.T) {
	repo := &repoStub{
		lockTuition: &domain.Tuition{
			TuitionID: "t-1", StudentID: "s-1", TermNo: "2025A",
			AmountDue: 500, Status: domain.TuitionLocked, PaymentID: "p-other",
		},
		lockErr: store.ErrInvalidStatus,
	}
	pub := &publisherStub{}
	c := NewPaymentConsumer(repo, pub, 15*time.Minute)

	d := initiatedDelivery(t, events.PaymentInitiated{
		PaymentID: "p-3", UserID: "u-1", StudentID: "s-1", TuitionID: "t-1", Amount: 500,
	})
	if err := c.HandleMessage(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	failed := pub.published[0].payload.(events.TuitionLockFailed)
	if failed.ReasonCode != events.ReasonInvalidStatus {
		t.Fatalf("expected invalid_status, got %q", failed.ReasonCode)
	}
	if failed.Status != "LOCKED" {
		t.Fatalf("expected the actual row status in the event, got %q", failed.Status)
	}
}

func TestHandleInitiatedOwnLockReplayIsSilentNoop(t *testing.T) {
	repo := &repoStub{
		lockTuition: &domain.Tuition{
			TuitionID: "t-1", StudentID: "s-1",
			AmountDue: 500, Status: domain.TuitionLocked, PaymentID: "p-4",
		},
		lockErr: store.ErrInvalidStatus,
	}
	pub := &publisherStub{}
	c := NewPaymentConsumer(repo, pub, 15*time.Minute)

	d := initiatedDelivery(t, events.PaymentInitiated{
		PaymentID: "p-4", UserID: "u-1", StudentID: "s-1", TuitionID: "t-1", Amount: 500,
	})
	if err := c.HandleMessage(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.published) != 0 {
		t.Fatalf("expected no events on replay of own lock, got %d", len(pub.published))
	}
}

func TestHandleInitiatedAmountMismatch(t *testing.T) {
	repo := &repoStub{
		lockTuition: &domain.Tuition{
			TuitionID: "t-1", StudentID: "s-1", TermNo: "2025A",
			AmountDue: 1_000_000, Status: domain.TuitionUnlocked,
		},
		lockErr: store.ErrAmountMismatch,
	}
	pub := &publisherStub{}
	c := NewPaymentConsumer(repo, pub, 15*time.Minute)

	d := initiatedDelivery(t, events.PaymentInitiated{
		PaymentID: "p-5", UserID: "u-1", StudentID: "s-1", TuitionID: "t-1", Amount: 999_999,
	})
	if err := c.HandleMessage(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	failed := pub.published[0].payload.(events.TuitionLockFailed)
	if failed.ReasonCode != events.ReasonAmountMismatch {
		t.Fatalf("expected amount_mismatch, got %q", failed.ReasonCode)
	}
	if failed.AmountDue != 1_000_000 {
		t.Fatalf("expected the row's amount_due in the event, got %v", failed.AmountDue)
	}
}

func TestHandleInitiatedLockRace(t *testing.T) {
	repo := &repoStub{
		lockTuition: &domain.Tuition{
			TuitionID: "t-1", StudentID: "s-1", AmountDue: 500, Status: domain.TuitionUnlocked,
		},
		lockErr: store.ErrLockRace,
	}
	pub := &publisherStub{}
	c := NewPaymentConsumer(repo, pub, 15*time.Minute)

	d := initiatedDelivery(t, events.PaymentInitiated{
		PaymentID: "p-6", UserID: "u-1", StudentID: "s-1", TuitionID: "t-1", Amount: 500,
	})
	if err := c.HandleMessage(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	failed := pub.published[0].payload.(events.TuitionLockFailed)
	if failed.ReasonCode != events.ReasonLockRace {
		t.Fatalf("expected lock_race, got %q", failed.ReasonCode)
	}
}

func TestHandleInitiatedInfraFailureDeadLetters(t *testing.T) {
	repo := &repoStub{lockErr: errors.New("connection refused")}
	c := NewPaymentConsumer(repo, &publisherStub{}, 15*time.Minute)

	d := initiatedDelivery(t, events.PaymentInitiated{
		PaymentID: "p-7", UserID: "u-1", StudentID: "s-1", TuitionID: "t-1", Amount: 500,
	})
	if err := c.HandleMessage(context.Background(), d); err == nil {
		t.Fatal("expected infra error to propagate for dead-lettering")
	}
}

func TestHandleInitiatedDropsInvalidPayload(t *testing.T) {
	repo := &repoStub{}
	c := NewPaymentConsumer(repo, &publisherStub{}, 15*time.Minute)

	d := rabbitmq.Delivery{
		Body:      []byte(`{"payment_id":"p-1","amount":-5}`),
		EventType: events.EventTypePaymentInitiated,
	}
	if err := c.HandleMessage(context.Background(), d); err != nil {
		t.Fatalf("validation failure must ack, got %v", err)
	}
	if repo.lockCalls != 0 {
		t.Fatal("expected no lock attempt for invalid payload")
	}
}

func TestHandleAuthorizedCapturesAndPublishesTuitionUpdated(t *testing.T) {
	repo := &repoStub{
		captureTuition: &domain.Tuition{
			TuitionID: "t-1", StudentID: "s-1", TermNo: "2025A",
			AmountDue: 1_000_000, Status: domain.TuitionPaid, PaymentID: "p-1",
		},
	}
	pub := &publisherStub{}
	c := NewPaymentConsumer(repo, pub, 15*time.Minute)

	d := rabbitmq.Delivery{
		Body:      []byte(`{"payment_id":"p-1"}`),
		EventType: events.EventTypePaymentAuthorized,
	}
	if err := c.HandleMessage(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	updated := pub.published[0].payload.(events.TuitionUpdated)
	if updated.Status != "PAID" || updated.AmountDue != 1_000_000 {
		t.Fatalf("unexpected payload %+v", updated)
	}
}

func TestHandleAuthorizedDuplicateCaptureIsNoop(t *testing.T) {
	repo := &repoStub{captureErr: store.ErrTuitionNotLocked}
	pub := &publisherStub{}
	c := NewPaymentConsumer(repo, pub, 15*time.Minute)

	d := rabbitmq.Delivery{
		Body:      []byte(`{"payment_id":"p-1"}`),
		EventType: events.EventTypePaymentAuthorized,
	}
	if err := c.HandleMessage(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.published) != 0 {
		t.Fatal("expected no event for duplicate capture")
	}
}

func TestHandleUnauthorizedReleasesAndPublishesTuitionUnlocked(t *testing.T) {
	repo := &repoStub{
		releaseTuition: &domain.Tuition{
			TuitionID: "t-1", StudentID: "s-1", TermNo: "2025A",
			AmountDue: 1_000_000, Status: domain.TuitionUnlocked,
		},
	}
	pub := &publisherStub{}
	c := NewPaymentConsumer(repo, pub, 15*time.Minute)

	d := rabbitmq.Delivery{
		Body:      []byte(`{"payment_id":"p-1","reason_code":"otp_expired"}`),
		EventType: events.EventTypePaymentUnauthorized,
	}
	if err := c.HandleMessage(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	unlocked := pub.published[0].payload.(events.TuitionUnlocked)
	if unlocked.Status != "UNLOCKED" || unlocked.ReasonCode != "otp_expired" {
		t.Fatalf("unexpected payload %+v", unlocked)
	}
}

func TestHandleMessageIgnoresUnknownEventType(t *testing.T) {
	repo := &repoStub{}
	pub := &publisherStub{}
	c := NewPaymentConsumer(repo, pub, 15*time.Minute)

	d := rabbitmq.Delivery{Body: []byte(`{}`), EventType: "something_else"}
	if err := c.HandleMessage(context.Background(), d); err != nil {
		t.Fatalf("unknown event type must be a no-op, got %v", err)
	}
	if len(pub.published) != 0 || repo.lockCalls != 0 {
		t.Fatal("expected nothing to happen")
	}
}
