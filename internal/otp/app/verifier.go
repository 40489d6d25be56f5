package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"time"

	"github.com/IvanTran0101/ibanking-tuition/internal/otp/store"
	"github.com/IvanTran0101/ibanking-tuition/pkg/events"
)

// Attempt counting policies. The default counts an attempt only when the
// submitted code is wrong; before_compare burns an attempt on every submission
// including the successful one.
const (
	AttemptPolicyOnMismatch    = "on_mismatch"
	AttemptPolicyBeforeCompare = "before_compare"
)

// VerifyOutcome classifies one verification attempt.
type VerifyOutcome string

const (
	VerifySucceeded   VerifyOutcome = "succeeded"
	VerifyNotFound    VerifyOutcome = "not_found"
	VerifyInvalidCode VerifyOutcome = "invalid_code"
	VerifyMaxAttempts VerifyOutcome = "max_attempts"
)

// VerifyResult carries the outcome of one submission. AttemptsRemaining is
// meaningful only for VerifyInvalidCode.
type VerifyResult struct {
	Outcome           VerifyOutcome
	AttemptsRemaining int64
}

// Verifier checks submitted codes against the stored challenge and settles
// the authorization: otp_succeed on a match, otp_expired once the attempt
// budget is burned. The record is consumed in both terminal cases, so a
// later submission for the same payment sees not_found.
type Verifier struct {
	store         store.Store
	publisher     events.Publisher
	maxAttempts   int64
	attemptPolicy string
	ttl           time.Duration
}

func NewVerifier(st store.Store, publisher events.Publisher, maxAttempts int64, attemptPolicy string, ttl time.Duration) *Verifier {
	if attemptPolicy == "" {
		attemptPolicy = AttemptPolicyOnMismatch
	}
	return &Verifier{store: st, publisher: publisher, maxAttempts: maxAttempts, attemptPolicy: attemptPolicy, ttl: ttl}
}

func (v *Verifier) Verify(ctx context.Context, paymentID, code string) (VerifyResult, error) {
	rec, err := v.store.Find(ctx, paymentID)
	if errors.Is(err, store.ErrOTPNotFound) {
		return VerifyResult{Outcome: VerifyNotFound}, nil
	}
	if err != nil {
		return VerifyResult{}, err
	}

	if v.attemptPolicy == AttemptPolicyBeforeCompare {
		n, err := v.store.IncrementAttempts(ctx, paymentID, v.ttl)
		if err != nil {
			return VerifyResult{}, err
		}
		if n > v.maxAttempts {
			return v.expire(ctx, paymentID, rec.UserID, rec.TuitionID, rec.Amount)
		}
	}

	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		if v.attemptPolicy == AttemptPolicyBeforeCompare {
			return VerifyResult{Outcome: VerifyInvalidCode}, nil
		}
		n, err := v.store.IncrementAttempts(ctx, paymentID, v.ttl)
		if err != nil {
			return VerifyResult{}, err
		}
		if n >= v.maxAttempts {
			return v.expire(ctx, paymentID, rec.UserID, rec.TuitionID, rec.Amount)
		}
		return VerifyResult{Outcome: VerifyInvalidCode, AttemptsRemaining: v.maxAttempts - n}, nil
	}

	if err := v.store.Delete(ctx, paymentID); err != nil {
		return VerifyResult{}, err
	}
	log.Printf("level=info component=otp_verifier msg=\"otp verified\" payment_id=%s user_id=%s", paymentID, rec.UserID)
	if err := v.publisher.Publish(ctx, events.RKOTPSucceed, events.EventTypeOTPSucceed, events.OTPSucceed{
		PaymentID: paymentID,
		UserID:    rec.UserID,
		TuitionID: rec.TuitionID,
		Amount:    rec.Amount,
	}, events.Meta{CorrelationID: paymentID}); err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{Outcome: VerifySucceeded}, nil
}

func (v *Verifier) expire(ctx context.Context, paymentID, userID, tuitionID string, amount float64) (VerifyResult, error) {
	if err := v.store.Delete(ctx, paymentID); err != nil {
		return VerifyResult{}, err
	}
	log.Printf("level=warn component=otp_verifier msg=\"attempt budget exhausted\" payment_id=%s user_id=%s", paymentID, userID)
	if err := v.publisher.Publish(ctx, events.RKOTPExpired, events.EventTypeOTPExpired, events.OTPExpired{
		PaymentID:     paymentID,
		UserID:        userID,
		TuitionID:     tuitionID,
		Amount:        amount,
		ReasonCode:    events.ReasonMaxAttemptsExceeded,
		ReasonMessage: "too many invalid codes submitted",
	}, events.Meta{CorrelationID: paymentID}); err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{Outcome: VerifyMaxAttempts}, nil
}
