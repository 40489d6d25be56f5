package store

import (
	"context"

	"github.com/IvanTran0101/ibanking-tuition/internal/payment/domain"
)

// IntentPatch is one event's contribution to the intent. Boolean fields only
// ever raise flags; string and numeric fields fill identity columns that are
// still empty. A zero-value field leaves the column untouched.
type IntentPatch struct {
	AccountHeld   bool
	TuitionLocked bool
	AccountDone   bool
	TuitionDone   bool
	ReleaseDone   bool
	UnlockDone    bool

	Status string

	UserID    string
	TuitionID string
	Email     string
	Term      string
	Amount    float64
}

// Transition reports what the applied patch changed, decided under the row
// lock so concurrent handlers cannot both claim the same edge.
type Transition struct {
	// Intent is the merged state after the patch. Nil when the payment was
	// already finalized.
	Intent *domain.PaymentIntent

	// PriorStatus is the status before the patch was applied.
	PriorStatus string

	// AlreadyFinalized means a payments ledger row exists; the patch was
	// discarded and no new intent row was created.
	AlreadyFinalized bool

	// StartProcessing is true exactly once per payment: the patch completed
	// the held+locked pair while the intent was still PENDING.
	StartProcessing bool

	// Completed is true exactly once per payment: the patch completed the
	// captured pair on an AUTHORIZED intent and the COMPLETED ledger row
	// was written.
	Completed bool

	// Canceled is true exactly once per payment: the patch completed the
	// compensated pair on an UNAUTHORIZED intent and the CANCELED ledger
	// row was written.
	Canceled bool
}

// Repository owns the saga aggregation state machine. Apply runs the whole
// update-then-check cycle in one transaction: upsert the intent, merge the
// patch under FOR UPDATE, then decide which edges fired.
type Repository interface {
	Apply(ctx context.Context, paymentID string, patch IntentPatch) (*Transition, error)
}
