package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IvanTran0101/ibanking-tuition/internal/payment/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Apply(ctx context.Context, paymentID string, patch IntentPatch) (*Transition, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// A ledger row means the saga already finished. Discarding the patch
	// here keeps duplicate terminal-phase events from resurrecting the
	// intent row.
	var ledgerStatus string
	err = tx.QueryRow(ctx, "SELECT status FROM payments WHERE payment_id = $1", paymentID).Scan(&ledgerStatus)
	if err == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return &Transition{AlreadyFinalized: true, PriorStatus: ledgerStatus}, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payment_intents (payment_id) VALUES ($1)
		ON CONFLICT (payment_id) DO NOTHING
	`, paymentID)
	if err != nil {
		return nil, err
	}

	var priorStatus string
	err = tx.QueryRow(ctx, "SELECT status FROM payment_intents WHERE payment_id = $1 FOR UPDATE", paymentID).Scan(&priorStatus)
	if err != nil {
		return nil, err
	}

	// Flags only ever go up, identity columns fill once, and the status
	// moves off PENDING at most once so the first authorization decision
	// wins over any replayed contrary decision.
	cur := domain.PaymentIntent{PaymentID: paymentID}
	err = tx.QueryRow(ctx, `
		UPDATE payment_intents SET
			account_held   = account_held   OR $2,
			tuition_locked = tuition_locked OR $3,
			account_done   = account_done   OR $4,
			tuition_done   = tuition_done   OR $5,
			release_done   = release_done   OR $6,
			unlock_done    = unlock_done    OR $7,
			status     = CASE WHEN $8 <> '' AND status = 'PENDING' THEN $8 ELSE status END,
			user_id    = CASE WHEN user_id = ''    THEN $9  ELSE user_id END,
			tuition_id = CASE WHEN tuition_id = '' THEN $10 ELSE tuition_id END,
			email      = CASE WHEN email = ''      THEN $11 ELSE email END,
			term       = CASE WHEN term = ''       THEN $12 ELSE term END,
			amount     = CASE WHEN amount = 0      THEN $13 ELSE amount END
		WHERE payment_id = $1
		RETURNING user_id, tuition_id, email, term, amount,
			account_held, tuition_locked, processing_sent,
			account_done, tuition_done, release_done, unlock_done,
			status, created_at
	`, paymentID,
		patch.AccountHeld, patch.TuitionLocked, patch.AccountDone, patch.TuitionDone,
		patch.ReleaseDone, patch.UnlockDone, patch.Status,
		patch.UserID, patch.TuitionID, patch.Email, patch.Term, patch.Amount,
	).Scan(&cur.UserID, &cur.TuitionID, &cur.Email, &cur.Term, &cur.Amount,
		&cur.AccountHeld, &cur.TuitionLocked, &cur.ProcessingSent,
		&cur.AccountDone, &cur.TuitionDone, &cur.ReleaseDone, &cur.UnlockDone,
		&cur.Status, &cur.CreatedAt)
	if err != nil {
		return nil, err
	}

	tr := &Transition{Intent: &cur, PriorStatus: priorStatus}

	if cur.AccountHeld && cur.TuitionLocked && cur.Status == domain.IntentPending && !cur.ProcessingSent {
		tag, err := tx.Exec(ctx, `
			UPDATE payment_intents SET processing_sent = TRUE
			WHERE payment_id = $1 AND processing_sent = FALSE
		`, paymentID)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 1 {
			cur.ProcessingSent = true
			tr.StartProcessing = true
		}
	}

	switch {
	case cur.Status == domain.IntentAuthorized && cur.AccountDone && cur.TuitionDone:
		if err := r.finalize(ctx, tx, tr, domain.PaymentCompleted); err != nil {
			return nil, err
		}
	case cur.Status == domain.IntentUnauthorized && cur.ReleaseDone && cur.UnlockDone:
		if err := r.finalize(ctx, tx, tr, domain.PaymentCanceled); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return tr, nil
}

// finalize writes the ledger row and retires the intent. The unique ledger
// insert is the commit point: only the transaction that wins it reports the
// terminal transition.
func (r *PostgresRepository) finalize(ctx context.Context, tx pgx.Tx, tr *Transition, ledgerStatus string) error {
	tag, err := tx.Exec(ctx, `
		INSERT INTO payments (payment_id, user_id, tuition_id, amount, status, completed_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (payment_id) DO NOTHING
	`, tr.Intent.PaymentID, tr.Intent.UserID, tr.Intent.TuitionID, tr.Intent.Amount, ledgerStatus)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		if ledgerStatus == domain.PaymentCompleted {
			tr.Completed = true
		} else {
			tr.Canceled = true
		}
	}
	_, err = tx.Exec(ctx, "DELETE FROM payment_intents WHERE payment_id = $1", tr.Intent.PaymentID)
	return err
}
