package domain

import "time"

// TuitionStatus is the lifecycle of a tuition record: UNLOCKED → LOCKED →
// PAID, with LOCKED → UNLOCKED on release.
type TuitionStatus string

const (
	TuitionUnlocked TuitionStatus = "UNLOCKED"
	TuitionLocked   TuitionStatus = "LOCKED"
	TuitionPaid     TuitionStatus = "PAID"
)

// AmountEpsilon bounds the tolerated difference between the requested amount
// and amount_due when locking (floating settlement amounts).
const AmountEpsilon = 0.01

// Tuition is one billable tuition record. PaymentID and ExpiresAt are set
// while a lock is in place and cleared on release. A captured (PAID) record
// keeps amount_due at its pre-payment value for reporting.
type Tuition struct {
	TuitionID string
	StudentID string
	TermNo    string
	AmountDue float64
	Status    TuitionStatus
	PaymentID string
	ExpiresAt *time.Time
}
