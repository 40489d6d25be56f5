package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/IvanTran0101/ibanking-tuition/internal/account/store"
	"github.com/IvanTran0101/ibanking-tuition/pkg/events"
	"github.com/IvanTran0101/ibanking-tuition/pkg/rabbitmq"
)

// PaymentConsumer reacts to saga commands on the account queue and drives
// the hold state machine: reserve on payment_initiated, capture on
// payment_authorized, release on payment_unauthorized.
type PaymentConsumer struct {
	repo      store.Repository
	publisher events.Publisher
	holdTTL   time.Duration
}

func NewPaymentConsumer(repo store.Repository, publisher events.Publisher, holdTTL time.Duration) *PaymentConsumer {
	return &PaymentConsumer{repo: repo, publisher: publisher, holdTTL: holdTTL}
}

// HandleMessage dispatches on the event-type envelope header. An unknown
// type is acked as a no-op; a returned error dead-letters the message.
func (c *PaymentConsumer) HandleMessage(ctx context.Context, d rabbitmq.Delivery) error {
	switch d.EventType {
	case events.EventTypePaymentInitiated:
		return c.handleInitiated(ctx, d)
	case events.EventTypePaymentAuthorized:
		return c.handleAuthorized(ctx, d)
	case events.EventTypePaymentUnauthorized:
		return c.handleUnauthorized(ctx, d)
	default:
		log.Printf("level=debug component=account_consumer msg=\"ignoring event\" event_type=%s", d.EventType)
		return nil
	}
}

func (c *PaymentConsumer) handleInitiated(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.PaymentInitiated
	if err := json.Unmarshal(d.Body, &p); err != nil {
		log.Printf("level=warn component=account_consumer msg=\"dropping malformed payload\" event_type=%s err=%v", d.EventType, err)
		return nil
	}
	if err := p.Validate(); err != nil {
		log.Printf("level=warn component=account_consumer msg=\"dropping invalid payload\" event_type=%s err=%v", d.EventType, err)
		return nil
	}

	meta := events.MetaFrom(d)
	expiresAt := time.Now().UTC().Add(c.holdTTL)

	hold, email, err := c.repo.ReserveHold(ctx, p.UserID, p.PaymentID, p.Amount, expiresAt)
	switch {
	case errors.Is(err, store.ErrDuplicateHold):
		log.Printf("level=info component=account_consumer msg=\"hold already reserved; replay\" payment_id=%s", p.PaymentID)
		return nil
	case errors.Is(err, store.ErrUserNotFound):
		return c.publishHoldFailed(ctx, p, events.ReasonUserNotFound, meta)
	case errors.Is(err, store.ErrInsufficientFunds):
		return c.publishHoldFailed(ctx, p, events.ReasonInsufficientFunds, meta)
	case err != nil:
		return err
	}

	log.Printf("level=info component=account_consumer msg=\"balance held\" payment_id=%s user_id=%s amount=%.2f", p.PaymentID, p.UserID, p.Amount)
	return c.publisher.Publish(ctx, events.RKBalanceHeld, events.EventTypeBalanceHeld, events.BalanceHeld{
		UserID:    hold.UserID,
		Amount:    hold.Amount,
		PaymentID: hold.PaymentID,
		Email:     email,
	}, meta)
}

func (c *PaymentConsumer) publishHoldFailed(ctx context.Context, p events.PaymentInitiated, reason string, meta events.Meta) error {
	log.Printf("level=info component=account_consumer msg=\"balance hold rejected\" payment_id=%s reason=%s", p.PaymentID, reason)
	return c.publisher.Publish(ctx, events.RKBalanceHoldFailed, events.EventTypeBalanceHoldFailed, events.BalanceHoldFailed{
		UserID:        p.UserID,
		Amount:        p.Amount,
		PaymentID:     p.PaymentID,
		ReasonCode:    reason,
		ReasonMessage: reason,
	}, meta)
}

func (c *PaymentConsumer) handleAuthorized(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.PaymentAuthorized
	if err := json.Unmarshal(d.Body, &p); err != nil {
		log.Printf("level=warn component=account_consumer msg=\"dropping malformed payload\" event_type=%s err=%v", d.EventType, err)
		return nil
	}
	if err := p.Validate(); err != nil {
		log.Printf("level=warn component=account_consumer msg=\"dropping invalid payload\" event_type=%s err=%v", d.EventType, err)
		return nil
	}

	hold, email, err := c.repo.CaptureHold(ctx, p.PaymentID)
	if errors.Is(err, store.ErrHoldNotHeld) {
		log.Printf("level=info component=account_consumer msg=\"capture no-op\" payment_id=%s", p.PaymentID)
		return nil
	}
	if err != nil {
		return err
	}

	log.Printf("level=info component=account_consumer msg=\"balance captured\" payment_id=%s user_id=%s amount=%.2f", p.PaymentID, hold.UserID, hold.Amount)
	return c.publisher.Publish(ctx, events.RKBalanceUpdated, events.EventTypeBalanceUpdated, events.BalanceUpdated{
		UserID:    hold.UserID,
		Amount:    hold.Amount,
		PaymentID: hold.PaymentID,
		Email:     email,
	}, events.MetaFrom(d))
}

func (c *PaymentConsumer) handleUnauthorized(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.PaymentUnauthorized
	if err := json.Unmarshal(d.Body, &p); err != nil {
		log.Printf("level=warn component=account_consumer msg=\"dropping malformed payload\" event_type=%s err=%v", d.EventType, err)
		return nil
	}
	if err := p.Validate(); err != nil {
		log.Printf("level=warn component=account_consumer msg=\"dropping invalid payload\" event_type=%s err=%v", d.EventType, err)
		return nil
	}

	hold, email, err := c.repo.ReleaseHold(ctx, p.PaymentID)
	if errors.Is(err, store.ErrHoldNotHeld) {
		log.Printf("level=info component=account_consumer msg=\"release no-op\" payment_id=%s", p.PaymentID)
		return nil
	}
	if err != nil {
		return err
	}

	reasonCode := p.ReasonCode
	if reasonCode == "" {
		reasonCode = events.ReasonUnauthorized
	}
	log.Printf("level=info component=account_consumer msg=\"balance released\" payment_id=%s user_id=%s", p.PaymentID, hold.UserID)
	return c.publisher.Publish(ctx, events.RKBalanceReleased, events.EventTypeBalanceReleased, events.BalanceReleased{
		UserID:        hold.UserID,
		Amount:        hold.Amount,
		PaymentID:     hold.PaymentID,
		ReasonCode:    reasonCode,
		ReasonMessage: p.ReasonMessage,
		Email:         email,
	}, events.MetaFrom(d))
}
