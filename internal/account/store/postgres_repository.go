/**
 * @description
 * This file provides the PostgreSQL implementation of the account-service
 * `Repository` interface. The row-level exclusive lock taken by
 * SELECT ... FOR UPDATE is the sole serialization mechanism preventing two
 * concurrent attempts on the same balance from double-spending, so every
 * state transition acquires it before the read that decides and holds it
 * until the write that commits the decision.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IvanTran0101/ibanking-tuition/internal/account/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ReserveHold(ctx context.Context, userID, paymentID string, amount float64, expiresAt time.Time) (*domain.BalanceHold, string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, "", err
	}
	defer tx.Rollback(ctx)

	var account domain.Account
	err = tx.QueryRow(ctx,
		"SELECT user_id, email, balance FROM accounts WHERE user_id = $1 FOR UPDATE",
		userID,
	).Scan(&account.UserID, &account.Email, &account.Balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, "", ErrUserNotFound
		}
		return nil, "", err
	}

	// Idempotent replay: an existing hold for this payment means the
	// reservation was already processed, whatever its current status.
	var existing string
	err = tx.QueryRow(ctx, "SELECT status FROM holds WHERE payment_id = $1", paymentID).Scan(&existing)
	if err == nil {
		return nil, account.Email, ErrDuplicateHold
	}
	if err != pgx.ErrNoRows {
		return nil, "", err
	}

	var sumHeld float64
	err = tx.QueryRow(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM holds WHERE user_id = $1 AND status = 'HELD'",
		userID,
	).Scan(&sumHeld)
	if err != nil {
		return nil, "", err
	}

	if account.Balance-amount-sumHeld < 0 {
		return nil, account.Email, ErrInsufficientFunds
	}

	hold := &domain.BalanceHold{
		HoldID:    uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Status:    domain.HoldHeld,
		PaymentID: paymentID,
		ExpiresAt: expiresAt,
	}
	_, err = tx.Exec(ctx,
		"INSERT INTO holds (hold_id, user_id, amount, status, payment_id, expires_at) VALUES ($1, $2, $3, $4, $5, $6)",
		hold.HoldID, hold.UserID, hold.Amount, hold.Status, hold.PaymentID, hold.ExpiresAt,
	)
	if err != nil {
		// payment_id is UNIQUE; a concurrent replica winning the insert race
		// is the same replay case as the existence check above.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, account.Email, ErrDuplicateHold
		}
		return nil, "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", err
	}
	return hold, account.Email, nil
}

func (r *PostgresRepository) CaptureHold(ctx context.Context, paymentID string) (*domain.BalanceHold, string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, "", err
	}
	defer tx.Rollback(ctx)

	hold, err := lockHold(ctx, tx, paymentID)
	if err != nil {
		return nil, "", err
	}
	if hold.Status != domain.HoldHeld {
		return nil, "", ErrHoldNotHeld
	}

	var email string
	err = tx.QueryRow(ctx,
		"UPDATE accounts SET balance = balance - $1 WHERE user_id = $2 RETURNING email",
		hold.Amount, hold.UserID,
	).Scan(&email)
	if err != nil {
		return nil, "", err
	}
	_, err = tx.Exec(ctx, "UPDATE holds SET status = 'CAPTURED' WHERE payment_id = $1", paymentID)
	if err != nil {
		return nil, "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", err
	}
	hold.Status = domain.HoldCaptured
	return hold, email, nil
}

func (r *PostgresRepository) ReleaseHold(ctx context.Context, paymentID string) (*domain.BalanceHold, string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, "", err
	}
	defer tx.Rollback(ctx)

	hold, err := lockHold(ctx, tx, paymentID)
	if err != nil {
		return nil, "", err
	}
	if hold.Status != domain.HoldHeld {
		return nil, "", ErrHoldNotHeld
	}

	_, err = tx.Exec(ctx, "UPDATE holds SET status = 'RELEASED' WHERE payment_id = $1", paymentID)
	if err != nil {
		return nil, "", err
	}

	var email string
	err = tx.QueryRow(ctx, "SELECT email FROM accounts WHERE user_id = $1", hold.UserID).Scan(&email)
	if err != nil && err != pgx.ErrNoRows {
		return nil, "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", err
	}
	hold.Status = domain.HoldReleased
	return hold, email, nil
}

func (r *PostgresRepository) FindAccount(ctx context.Context, userID string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.QueryRow(ctx,
		"SELECT user_id, email, balance FROM accounts WHERE user_id = $1",
		userID,
	).Scan(&account.UserID, &account.Email, &account.Balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &account, nil
}

func lockHold(ctx context.Context, tx pgx.Tx, paymentID string) (*domain.BalanceHold, error) {
	var hold domain.BalanceHold
	err := tx.QueryRow(ctx,
		"SELECT hold_id, user_id, amount, status, payment_id, expires_at FROM holds WHERE payment_id = $1 FOR UPDATE",
		paymentID,
	).Scan(&hold.HoldID, &hold.UserID, &hold.Amount, &hold.Status, &hold.PaymentID, &hold.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrHoldNotHeld
		}
		return nil, err
	}
	return &hold, nil
}
