package domain

import "time"

// Record is the short-lived authorization challenge for one payment. It is
// stored in Redis with a TTL so expiry needs no reaper. The code never leaves
// the OTP service except through the mailer.
type Record struct {
	PaymentID string    `json:"payment_id"`
	Code      string    `json:"code"`
	UserID    string    `json:"user_id"`
	TuitionID string    `json:"tuition_id"`
	Amount    float64   `json:"amount"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}
