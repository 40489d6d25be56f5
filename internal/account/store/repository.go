package store

import (
	"context"
	"errors"
	"time"

	"github.com/IvanTran0101/ibanking-tuition/internal/account/domain"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicateHold     = errors.New("hold already exists for payment")
	ErrHoldNotHeld       = errors.New("hold is absent or not in HELD status")
)

// Repository owns the hold state machine. Every method runs as a single
// transaction with the account or hold row locked exclusively from the read
// that determines the decision through the write that encodes it.
type Repository interface {
	// ReserveHold checks available funds and inserts a HELD hold. It returns
	// the account email alongside the hold so handlers can enrich events
	// without a second query. Business rejections come back as
	// ErrUserNotFound, ErrDuplicateHold or ErrInsufficientFunds.
	ReserveHold(ctx context.Context, userID, paymentID string, amount float64, expiresAt time.Time) (*domain.BalanceHold, string, error)

	// CaptureHold debits the balance by the hold amount and marks the hold
	// CAPTURED. ErrHoldNotHeld signals a duplicate-safe no-op.
	CaptureHold(ctx context.Context, paymentID string) (*domain.BalanceHold, string, error)

	// ReleaseHold marks the hold RELEASED, balance untouched. ErrHoldNotHeld
	// signals a duplicate-safe no-op.
	ReleaseHold(ctx context.Context, paymentID string) (*domain.BalanceHold, string, error)

	// FindAccount backs the read-only internal lookup endpoint.
	FindAccount(ctx context.Context, userID string) (*domain.Account, error)
}
