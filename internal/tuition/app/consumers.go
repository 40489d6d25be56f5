package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/IvanTran0101/ibanking-tuition/internal/tuition/domain"
	"github.com/IvanTran0101/ibanking-tuition/internal/tuition/store"
	"github.com/IvanTran0101/ibanking-tuition/pkg/events"
	"github.com/IvanTran0101/ibanking-tuition/pkg/rabbitmq"
)

// PaymentConsumer reacts to saga commands on the tuition queue and drives
// the lock state machine: lock on payment_initiated, capture on
// payment_authorized, release on payment_unauthorized.
type PaymentConsumer struct {
	repo      store.Repository
	publisher events.Publisher
	lockTTL   time.Duration
}

func NewPaymentConsumer(repo store.Repository, publisher events.Publisher, lockTTL time.Duration) *PaymentConsumer {
	return &PaymentConsumer{repo: repo, publisher: publisher, lockTTL: lockTTL}
}

func (c *PaymentConsumer) HandleMessage(ctx context.Context, d rabbitmq.Delivery) error {
	switch d.EventType {
	case events.EventTypePaymentInitiated:
		return c.handleInitiated(ctx, d)
	case events.EventTypePaymentAuthorized:
		return c.handleAuthorized(ctx, d)
	case events.EventTypePaymentUnauthorized:
		return c.handleUnauthorized(ctx, d)
	default:
		log.Printf("level=debug component=tuition_consumer msg=\"ignoring event\" event_type=%s", d.EventType)
		return nil
	}
}

func (c *PaymentConsumer) handleInitiated(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.PaymentInitiated
	if err := json.Unmarshal(d.Body, &p); err != nil {
		log.Printf("level=warn component=tuition_consumer msg=\"dropping malformed payload\" event_type=%s err=%v", d.EventType, err)
		return nil
	}
	if err := p.Validate(); err != nil {
		log.Printf("level=warn component=tuition_consumer msg=\"dropping invalid payload\" event_type=%s err=%v", d.EventType, err)
		return nil
	}

	meta := events.MetaFrom(d)
	expiresAt := time.Now().UTC().Add(c.lockTTL)

	t, err := c.repo.LockTuition(ctx, p.StudentID, p.TuitionID, p.PaymentID, p.Amount, expiresAt)
	switch {
	case errors.Is(err, store.ErrTuitionNotFound):
		return c.publishLockFailed(ctx, p, nil, events.ReasonTuitionNotFound, "tuition record not found", meta)
	case errors.Is(err, store.ErrInvalidStatus):
		if t.PaymentID == p.PaymentID {
			log.Printf("level=info component=tuition_consumer msg=\"tuition already locked by this payment; replay\" payment_id=%s", p.PaymentID)
			return nil
		}
		return c.publishLockFailed(ctx, p, t, events.ReasonInvalidStatus,
			fmt.Sprintf("tuition status is %s, cannot lock", t.Status), meta)
	case errors.Is(err, store.ErrAmountMismatch):
		return c.publishLockFailed(ctx, p, t, events.ReasonAmountMismatch,
			fmt.Sprintf("amount mismatch: expected %.2f, got %.2f", t.AmountDue, p.Amount), meta)
	case errors.Is(err, store.ErrLockRace):
		return c.publishLockFailed(ctx, p, t, events.ReasonLockRace, "lost the lock race", meta)
	case err != nil:
		return err
	}

	log.Printf("level=info component=tuition_consumer msg=\"tuition locked\" payment_id=%s tuition_id=%s", p.PaymentID, t.TuitionID)
	return c.publisher.Publish(ctx, events.RKTuitionLocked, events.EventTypeTuitionLocked, events.TuitionLocked{
		StudentID: t.StudentID,
		TuitionID: t.TuitionID,
		TermNo:    t.TermNo,
		AmountDue: t.AmountDue,
		Status:    string(t.Status),
		PaymentID: p.PaymentID,
	}, meta)
}

func (c *PaymentConsumer) publishLockFailed(ctx context.Context, p events.PaymentInitiated, t *domain.Tuition, reason, message string, meta events.Meta) error {
	failed := events.TuitionLockFailed{
		StudentID:     p.StudentID,
		TuitionID:     p.TuitionID,
		AmountDue:     p.Amount,
		Status:        "NOT_FOUND",
		PaymentID:     p.PaymentID,
		ReasonCode:    reason,
		ReasonMessage: message,
	}
	if t != nil {
		failed.TermNo = t.TermNo
		failed.AmountDue = t.AmountDue
		failed.Status = string(t.Status)
	}
	log.Printf("level=info component=tuition_consumer msg=\"tuition lock rejected\" payment_id=%s reason=%s", p.PaymentID, reason)
	return c.publisher.Publish(ctx, events.RKTuitionLockFailed, events.EventTypeTuitionLockFailed, failed, meta)
}

func (c *PaymentConsumer) handleAuthorized(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.PaymentAuthorized
	if err := json.Unmarshal(d.Body, &p); err != nil {
		log.Printf("level=warn component=tuition_consumer msg=\"dropping malformed payload\" event_type=%s err=%v", d.EventType, err)
		return nil
	}
	if err := p.Validate(); err != nil {
		log.Printf("level=warn component=tuition_consumer msg=\"dropping invalid payload\" event_type=%s err=%v", d.EventType, err)
		return nil
	}

	t, err := c.repo.CaptureTuition(ctx, p.PaymentID)
	if errors.Is(err, store.ErrTuitionNotLocked) {
		log.Printf("level=info component=tuition_consumer msg=\"capture no-op\" payment_id=%s", p.PaymentID)
		return nil
	}
	if err != nil {
		return err
	}

	log.Printf("level=info component=tuition_consumer msg=\"tuition paid\" payment_id=%s tuition_id=%s", p.PaymentID, t.TuitionID)
	return c.publisher.Publish(ctx, events.RKTuitionUpdated, events.EventTypeTuitionUpdated, events.TuitionUpdated{
		StudentID: t.StudentID,
		TuitionID: t.TuitionID,
		TermNo:    t.TermNo,
		AmountDue: t.AmountDue,
		Status:    string(t.Status),
		PaymentID: p.PaymentID,
	}, events.MetaFrom(d))
}

func (c *PaymentConsumer) handleUnauthorized(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.PaymentUnauthorized
	if err := json.Unmarshal(d.Body, &p); err != nil {
		log.Printf("level=warn component=tuition_consumer msg=\"dropping malformed payload\" event_type=%s err=%v", d.EventType, err)
		return nil
	}
	if err := p.Validate(); err != nil {
		log.Printf("level=warn component=tuition_consumer msg=\"dropping invalid payload\" event_type=%s err=%v", d.EventType, err)
		return nil
	}

	t, err := c.repo.ReleaseTuition(ctx, p.PaymentID)
	if errors.Is(err, store.ErrTuitionNotLocked) {
		log.Printf("level=info component=tuition_consumer msg=\"release no-op\" payment_id=%s", p.PaymentID)
		return nil
	}
	if err != nil {
		return err
	}

	reasonCode := p.ReasonCode
	if reasonCode == "" {
		reasonCode = events.ReasonUnauthorized
	}
	log.Printf("level=info component=tuition_consumer msg=\"tuition unlocked\" payment_id=%s tuition_id=%s", p.PaymentID, t.TuitionID)
	return c.publisher.Publish(ctx, events.RKTuitionUnlocked, events.EventTypeTuitionUnlocked, events.TuitionUnlocked{
		StudentID:     t.StudentID,
		TuitionID:     t.TuitionID,
		TermNo:        t.TermNo,
		AmountDue:     t.AmountDue,
		Status:        string(t.Status),
		PaymentID:     p.PaymentID,
		ReasonCode:    reasonCode,
		ReasonMessage: p.ReasonMessage,
	}, events.MetaFrom(d))
}
