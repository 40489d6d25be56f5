package app

import (
	"context"
	"testing"
	"time"

	"github.com/IvanTran0101/ibanking-tuition/internal/otp/domain"
	"github.com/IvanTran0101/ibanking-tuition/internal/otp/store"
	"github.com/IvanTran0101/ibanking-tuition/pkg/events"
)

type memoryStore struct {
	records  map[string]domain.Record
	attempts map[string]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]domain.Record{}, attempts: map[string]int64{}}
}

func (s *memoryStore) PutIfAbsent(ctx context.Context, rec domain.Record, ttl time.Duration) (bool, error) {
	if _, ok := s.records[rec.PaymentID]; ok {
		return false, nil
	}
	s.records[rec.PaymentID] = rec
	return true, nil
}

func (s *memoryStore) Find(ctx context.Context, paymentID string) (*domain.Record, error) {
	rec, ok := s.records[paymentID]
	if !ok {
		return nil, store.ErrOTPNotFound
	}
	return &rec, nil
}

func (s *memoryStore) Delete(ctx context.Context, paymentID string) error {
	delete(s.records, paymentID)
	delete(s.attempts, paymentID)
	return nil
}

func (s *memoryStore) IncrementAttempts(ctx context.Context, paymentID string, ttl time.Duration) (int64, error) {
	s.attempts[paymentID]++
	return s.attempts[paymentID], nil
}

func seededStore(t *testing.T) *memoryStore {
	t.Helper()
	st := newMemoryStore()
	st.records["p-1"] = domain.Record{
		PaymentID: "p-1", Code: "123456", UserID: "u-1", TuitionID: "t-1",
		Amount: 1_000_000, Email: "u@example.edu",
		ExpiresAt: time.Now().UTC().Add(5 * time.Minute),
	}
	return st
}

func TestVerifyMatchConsumesRecordAndPublishesSucceed(t *testing.T) {
	st := seededStore(t)
	pub := &publisherStub{}
	v := NewVerifier(st, pub, 3, AttemptPolicyOnMismatch, 5*time.Minute)

	res, err := v.Verify(context.Background(), "p-1", "123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != VerifySucceeded {
		t.Fatalf("expected succeeded, got %s", res.Outcome)
	}
	if len(pub.published) != 1 || pub.published[0].eventType != events.EventTypeOTPSucceed {
		t.Fatalf("expected one otp_succeed, got %+v", pub.published)
	}
	succeed := pub.published[0].payload.(events.OTPSucceed)
	if succeed.PaymentID != "p-1" || succeed.TuitionID != "t-1" || succeed.Amount != 1_000_000 {
		t.Fatalf("unexpected payload %+v", succeed)
	}
	if _, ok := st.records["p-1"]; ok {
		t.Fatal("expected record to be consumed on success")
	}
}

func TestVerifyWrongCodeCountsAttemptsAndReportsRemaining(t *testing.T) {
	st := seededStore(t)
	pub := &publisherStub{}
	v := NewVerifier(st, pub, 3, AttemptPolicyOnMismatch, 5*time.Minute)

	res, err := v.Verify(context.Background(), "p-1", "000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != VerifyInvalidCode || res.AttemptsRemaining != 2 {
		t.Fatalf("expected invalid_code with 2 remaining, got %+v", res)
	}
	if len(pub.published) != 0 {
		t.Fatal("expected no event on a plain mismatch")
	}
}

func TestVerifyThreeWrongCodesExhaustsBudget(t *testing.T) {
	st := seededStore(t)
	pub := &publisherStub{}
	v := NewVerifier(st, pub, 3, AttemptPolicyOnMismatch, 5*time.Minute)

	for i := 0; i < 2; i++ {
		res, err := v.Verify(context.Background(), "p-1", "000000")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Outcome != VerifyInvalidCode {
			t.Fatalf("attempt %d: expected invalid_code, got %s", i+1, res.Outcome)
		}
	}

	res, err := v.Verify(context.Background(), "p-1", "000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != VerifyMaxAttempts {
		t.Fatalf("expected max_attempts on the third wrong code, got %s", res.Outcome)
	}
	if len(pub.published) != 1 || pub.published[0].eventType != events.EventTypeOTPExpired {
		t.Fatalf("expected one otp_expired, got %+v", pub.published)
	}
	expired := pub.published[0].payload.(events.OTPExpired)
	if expired.ReasonCode != events.ReasonMaxAttemptsExceeded {
		t.Fatalf("expected max_attempts_exceeded, got %q", expired.ReasonCode)
	}

	// The record was consumed, so even the right code is now rejected.
	res, err = v.Verify(context.Background(), "p-1", "123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != VerifyNotFound {
		t.Fatalf("expected not_found after exhaustion, got %s", res.Outcome)
	}
}

func TestVerifyUnknownPaymentIsNotFound(t *testing.T) {
	v := NewVerifier(newMemoryStore(), &publisherStub{}, 3, AttemptPolicyOnMismatch, 5*time.Minute)

	res, err := v.Verify(context.Background(), "ghost", "123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != VerifyNotFound {
		t.Fatalf("expected not_found, got %s", res.Outcome)
	}
}

func TestVerifyBeforeComparePolicyBurnsAttemptOnSuccessPath(t *testing.T) {
	st := seededStore(t)
	pub := &publisherStub{}
	v := NewVerifier(st, pub, 3, AttemptPolicyBeforeCompare, 5*time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := v.Verify(context.Background(), "p-1", "000000"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// The fourth submission exceeds the budget before the code is compared,
	// so even the right code expires the challenge.
	res, err := v.Verify(context.Background(), "p-1", "123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != VerifyMaxAttempts {
		t.Fatalf("expected max_attempts, got %s", res.Outcome)
	}
}
