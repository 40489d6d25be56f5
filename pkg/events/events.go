// Package events defines the wire contract shared by every service: the
// routing keys and event types carried on the bus, the typed payloads, and
// the envelope-stamping publisher.
package events

// Version is the envelope event-version stamped on every publish.
const Version = "v1"

// Event types carried in the event-type envelope header. Consumers dispatch
// on these and treat unrecognized values as a no-op.
const (
	EventTypePaymentInitiated    = "payment_initiated"
	EventTypePaymentProcessing   = "payment_processing"
	EventTypePaymentAuthorized   = "payment_authorized"
	EventTypePaymentUnauthorized = "payment_unauthorized"
	EventTypePaymentCompleted    = "payment_completed"
	EventTypePaymentCanceled     = "payment_canceled"

	EventTypeBalanceHeld       = "balance_held"
	EventTypeBalanceHoldFailed = "balance_hold_failed"
	EventTypeBalanceUpdated    = "balance_updated"
	EventTypeBalanceReleased   = "balance_released"

	EventTypeTuitionLocked     = "tuition_locked"
	EventTypeTuitionLockFailed = "tuition_lock_failed"
	EventTypeTuitionUpdated    = "tuition_updated"
	EventTypeTuitionUnlocked   = "tuition_unlocked"

	EventTypeOTPGenerated = "otp_generated"
	EventTypeOTPSucceed   = "otp_succeed"
	EventTypeOTPExpired   = "otp_expired"
)

// Routing keys on the topic exchange.
const (
	RKPaymentInitiated    = "payment.v1.initiated"
	RKPaymentProcessing   = "payment.v1.processing"
	RKPaymentAuthorized   = "payment.v1.authorized"
	RKPaymentUnauthorized = "payment.v1.unauthorized"
	RKPaymentCompleted    = "payment.v1.completed"
	RKPaymentCanceled     = "payment.v1.canceled"

	RKBalanceHeld       = "balance.v1.held"
	RKBalanceHoldFailed = "balance.v1.hold_failed"
	RKBalanceUpdated    = "balance.v1.updated"
	RKBalanceReleased   = "balance.v1.released"

	RKTuitionLocked     = "tuition.v1.locked"
	RKTuitionLockFailed = "tuition.v1.lock_failed"
	RKTuitionUpdated    = "tuition.v1.updated"
	RKTuitionUnlocked   = "tuition.v1.unlocked"

	RKOTPGenerated = "otp.v1.generated"
	RKOTPSucceed   = "otp.v1.succeed"
	RKOTPExpired   = "otp.v1.expired"
)

// Failure reason codes carried by *_failed and *_expired events.
const (
	ReasonUserNotFound        = "user_not_found"
	ReasonInsufficientFunds   = "insufficient_funds"
	ReasonTuitionNotFound     = "tuition_not_found"
	ReasonInvalidStatus       = "invalid_status"
	ReasonAmountMismatch      = "amount_mismatch"
	ReasonLockRace            = "lock_race"
	ReasonMaxAttemptsExceeded = "max_attempts_exceeded"
	ReasonOTPExpired          = "otp_expired"
	ReasonCanceled            = "canceled"
	ReasonUnauthorized        = "unauthorized"
)
