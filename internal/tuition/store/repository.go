package store

import (
	"context"
	"errors"
	"time"

	"github.com/IvanTran0101/ibanking-tuition/internal/tuition/domain"
)

var (
	ErrTuitionNotFound  = errors.New("tuition record not found")
	ErrInvalidStatus    = errors.New("tuition is not in a lockable status")
	ErrAmountMismatch   = errors.New("requested amount does not match amount due")
	ErrLockRace         = errors.New("lost the lock race on the tuition record")
	ErrTuitionNotLocked = errors.New("tuition is absent or not in LOCKED status")
)

// Repository owns the tuition lock state machine, with the same
// lock-read-decide-write discipline as the account store. Business
// rejections return the tuition record alongside the sentinel error so
// handlers can build failure events from the current row.
type Repository interface {
	// LockTuition transitions UNLOCKED → LOCKED, guarded by a conditional
	// update on status so two interleaved reservations cannot both win.
	LockTuition(ctx context.Context, studentID, tuitionID, paymentID string, amount float64, expiresAt time.Time) (*domain.Tuition, error)

	// CaptureTuition transitions LOCKED → PAID for the record locked by
	// paymentID. ErrTuitionNotLocked signals a duplicate-safe no-op.
	CaptureTuition(ctx context.Context, paymentID string) (*domain.Tuition, error)

	// ReleaseTuition reverts LOCKED → UNLOCKED, clearing the lock fields.
	// ErrTuitionNotLocked signals a duplicate-safe no-op.
	ReleaseTuition(ctx context.Context, paymentID string) (*domain.Tuition, error)
}
