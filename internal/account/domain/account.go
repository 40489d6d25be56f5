package domain

import "time"

// HoldStatus is the lifecycle of a balance hold. HELD is the only
// non-terminal status; CAPTURED and RELEASED are terminal and kept for audit.
type HoldStatus string

const (
	HoldHeld     HoldStatus = "HELD"
	HoldCaptured HoldStatus = "CAPTURED"
	HoldReleased HoldStatus = "RELEASED"
)

// BalanceHold is a temporary reservation against a user's balance pending
// the payment outcome. At most one non-terminal hold exists per payment_id.
type BalanceHold struct {
	HoldID    string
	UserID    string
	Amount    float64
	Status    HoldStatus
	PaymentID string
	ExpiresAt time.Time
}

// Account is a user's balance row.
type Account struct {
	UserID  string
	Email   string
	Balance float64
}
