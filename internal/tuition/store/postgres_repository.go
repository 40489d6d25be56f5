package store

import (
	"context"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IvanTran0101/ibanking-tuition/internal/tuition/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) LockTuition(ctx context.Context, studentID, tuitionID, paymentID string, amount float64, expiresAt time.Time) (*domain.Tuition, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var t domain.Tuition
	err = tx.QueryRow(ctx, `
		SELECT tuition_id, student_id, term_no, amount_due, status, COALESCE(payment_id, ''), expires_at
		FROM tuitions
		WHERE tuition_id = $1 AND student_id = $2
		FOR UPDATE
	`, tuitionID, studentID).Scan(&t.TuitionID, &t.StudentID, &t.TermNo, &t.AmountDue, &t.Status, &t.PaymentID, &t.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTuitionNotFound
		}
		return nil, err
	}

	if t.Status != domain.TuitionUnlocked {
		// A replayed payment_initiated finds its own lock here; callers
		// distinguish that from a foreign lock via the stored payment_id.
		return &t, ErrInvalidStatus
	}
	if math.Abs(t.AmountDue-amount) > domain.AmountEpsilon {
		return &t, ErrAmountMismatch
	}

	// The status guard in the same update closes the race window between
	// two handlers that both observed UNLOCKED.
	tag, err := tx.Exec(ctx, `
		UPDATE tuitions
		SET status = 'LOCKED', payment_id = $1, expires_at = $2
		WHERE tuition_id = $3 AND student_id = $4 AND status = 'UNLOCKED'
	`, paymentID, expiresAt, tuitionID, studentID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return &t, ErrLockRace
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	t.Status = domain.TuitionLocked
	t.PaymentID = paymentID
	t.ExpiresAt = &expiresAt
	return &t, nil
}

func (r *PostgresRepository) CaptureTuition(ctx context.Context, paymentID string) (*domain.Tuition, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t, err := lockByPayment(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.TuitionLocked {
		return nil, ErrTuitionNotLocked
	}

	// amount_due stays at the pre-payment value for reporting.
	_, err = tx.Exec(ctx, "UPDATE tuitions SET status = 'PAID' WHERE tuition_id = $1", t.TuitionID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	t.Status = domain.TuitionPaid
	return t, nil
}

func (r *PostgresRepository) ReleaseTuition(ctx context.Context, paymentID string) (*domain.Tuition, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t, err := lockByPayment(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.TuitionLocked {
		return nil, ErrTuitionNotLocked
	}

	_, err = tx.Exec(ctx, `
		UPDATE tuitions
		SET status = 'UNLOCKED', payment_id = NULL, expires_at = NULL
		WHERE tuition_id = $1 AND status = 'LOCKED'
	`, t.TuitionID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	t.Status = domain.TuitionUnlocked
	t.PaymentID = ""
	t.ExpiresAt = nil
	return t, nil
}

func lockByPayment(ctx context.Context, tx pgx.Tx, paymentID string) (*domain.Tuition, error) {
	var t domain.Tuition
	err := tx.QueryRow(ctx, `
		SELECT tuition_id, student_id, term_no, amount_due, status, COALESCE(payment_id, ''), expires_at
		FROM tuitions
		WHERE payment_id = $1
		FOR UPDATE
	`, paymentID).Scan(&t.TuitionID, &t.StudentID, &t.TermNo, &t.AmountDue, &t.Status, &t.PaymentID, &t.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTuitionNotLocked
		}
		return nil, err
	}
	return &t, nil
}
