package domain

import "time"

// Intent statuses. An intent is the durable in-flight state of one saga
// instance; it is deleted once the outcome lands in the payments ledger.
const (
	IntentPending      = "PENDING"
	IntentAuthorized   = "AUTHORIZED"
	IntentUnauthorized = "UNAUTHORIZED"
)

// Ledger statuses for finalized payments.
const (
	PaymentCompleted = "COMPLETED"
	PaymentCanceled  = "CANCELED"
)

// PaymentIntent aggregates the custodian confirmations for one payment. The
// boolean flags are monotonic: once set they never clear, so replays cannot
// walk the saga backwards.
type PaymentIntent struct {
	PaymentID string
	UserID    string
	TuitionID string
	Email     string
	Term      string
	Amount    float64

	AccountHeld    bool
	TuitionLocked  bool
	ProcessingSent bool
	AccountDone    bool
	TuitionDone    bool
	ReleaseDone    bool
	UnlockDone     bool

	Status    string
	CreatedAt time.Time
}
