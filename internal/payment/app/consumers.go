package app

import (
	"context"
	"encoding/json"
	"log"

	"github.com/IvanTran0101/ibanking-tuition/internal/payment/domain"
	"github.com/IvanTran0101/ibanking-tuition/internal/payment/store"
	"github.com/IvanTran0101/ibanking-tuition/pkg/events"
	"github.com/IvanTran0101/ibanking-tuition/pkg/rabbitmq"
)

// SagaConsumer aggregates custodian confirmations into the payment intent
// and emits the saga's coordination events. Every handler funnels through
// Repository.Apply, which decides each edge at most once under the row lock,
// so redelivered events cannot double-fire payment_processing or the
// terminal events.
type SagaConsumer struct {
	repo      store.Repository
	publisher events.Publisher
}

func NewSagaConsumer(repo store.Repository, publisher events.Publisher) *SagaConsumer {
	return &SagaConsumer{repo: repo, publisher: publisher}
}

func (c *SagaConsumer) HandleMessage(ctx context.Context, d rabbitmq.Delivery) error {
	switch d.EventType {
	case events.EventTypeBalanceHeld:
		return c.handleBalanceHeld(ctx, d)
	case events.EventTypeTuitionLocked:
		return c.handleTuitionLocked(ctx, d)
	case events.EventTypeBalanceHoldFailed:
		return c.handleBalanceHoldFailed(ctx, d)
	case events.EventTypeTuitionLockFailed:
		return c.handleTuitionLockFailed(ctx, d)
	case events.EventTypeOTPSucceed:
		return c.handleOTPSucceed(ctx, d)
	case events.EventTypeOTPExpired:
		return c.handleOTPExpired(ctx, d)
	case events.EventTypePaymentUnauthorized:
		return c.handleUnauthorized(ctx, d)
	case events.EventTypeBalanceUpdated:
		return c.handleBalanceUpdated(ctx, d)
	case events.EventTypeTuitionUpdated:
		return c.handleTuitionUpdated(ctx, d)
	case events.EventTypeBalanceReleased:
		return c.handleBalanceReleased(ctx, d)
	case events.EventTypeTuitionUnlocked:
		return c.handleTuitionUnlocked(ctx, d)
	default:
		log.Printf("level=debug component=payment_saga msg=\"ignoring event\" event_type=%s", d.EventType)
		return nil
	}
}

func (c *SagaConsumer) handleBalanceHeld(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.BalanceHeld
	if !decode(d, &p) {
		return nil
	}
	tr, err := c.repo.Apply(ctx, p.PaymentID, store.IntentPatch{
		AccountHeld: true,
		UserID:      p.UserID,
		Email:       p.Email,
		Amount:      p.Amount,
	})
	if err != nil {
		return err
	}
	return c.maybeStartProcessing(ctx, tr, events.MetaFrom(d))
}

func (c *SagaConsumer) handleTuitionLocked(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.TuitionLocked
	if !decode(d, &p) {
		return nil
	}
	tr, err := c.repo.Apply(ctx, p.PaymentID, store.IntentPatch{
		TuitionLocked: true,
		TuitionID:     p.TuitionID,
		Term:          p.TermNo,
		Amount:        p.AmountDue,
	})
	if err != nil {
		return err
	}
	return c.maybeStartProcessing(ctx, tr, events.MetaFrom(d))
}

// maybeStartProcessing fires payment_processing on the held+locked edge.
func (c *SagaConsumer) maybeStartProcessing(ctx context.Context, tr *store.Transition, meta events.Meta) error {
	if tr.AlreadyFinalized || !tr.StartProcessing {
		return nil
	}
	in := tr.Intent
	log.Printf("level=info component=payment_saga msg=\"both reservations in place\" payment_id=%s", in.PaymentID)
	return c.publisher.Publish(ctx, events.RKPaymentProcessing, events.EventTypePaymentProcessing, events.PaymentProcessing{
		PaymentID: in.PaymentID,
		UserID:    in.UserID,
		TuitionID: in.TuitionID,
		Amount:    in.Amount,
		Term:      in.Term,
		Email:     in.Email,
	}, meta)
}

func (c *SagaConsumer) handleBalanceHoldFailed(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.BalanceHoldFailed
	if !decode(d, &p) {
		return nil
	}
	// The account side never reserved, so there is nothing to release.
	tr, err := c.repo.Apply(ctx, p.PaymentID, store.IntentPatch{
		Status:      domain.IntentUnauthorized,
		ReleaseDone: true,
		UserID:      p.UserID,
		Amount:      p.Amount,
	})
	if err != nil {
		return err
	}
	return c.settleUnauthorized(ctx, tr, p.ReasonCode, p.ReasonMessage, events.MetaFrom(d))
}

func (c *SagaConsumer) handleTuitionLockFailed(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.TuitionLockFailed
	if !decode(d, &p) {
		return nil
	}
	// The tuition side never reserved, so there is nothing to unlock.
	tr, err := c.repo.Apply(ctx, p.PaymentID, store.IntentPatch{
		Status:     domain.IntentUnauthorized,
		UnlockDone: true,
		TuitionID:  p.TuitionID,
		Term:       p.TermNo,
	})
	if err != nil {
		return err
	}
	return c.settleUnauthorized(ctx, tr, p.ReasonCode, p.ReasonMessage, events.MetaFrom(d))
}

func (c *SagaConsumer) handleOTPSucceed(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.OTPSucceed
	if !decode(d, &p) {
		return nil
	}
	tr, err := c.repo.Apply(ctx, p.PaymentID, store.IntentPatch{
		Status:    domain.IntentAuthorized,
		UserID:    p.UserID,
		TuitionID: p.TuitionID,
		Amount:    p.Amount,
	})
	if err != nil {
		return err
	}
	if tr.AlreadyFinalized || tr.PriorStatus != domain.IntentPending {
		log.Printf("level=info component=payment_saga msg=\"authorization no-op\" payment_id=%s prior_status=%s", p.PaymentID, tr.PriorStatus)
		return nil
	}
	in := tr.Intent
	log.Printf("level=info component=payment_saga msg=\"payment authorized\" payment_id=%s user_id=%s", in.PaymentID, in.UserID)
	return c.publisher.Publish(ctx, events.RKPaymentAuthorized, events.EventTypePaymentAuthorized, events.PaymentAuthorized{
		PaymentID: in.PaymentID,
		UserID:    in.UserID,
		TuitionID: in.TuitionID,
		Amount:    in.Amount,
		Email:     in.Email,
	}, events.MetaFrom(d))
}

func (c *SagaConsumer) handleOTPExpired(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.OTPExpired
	if !decode(d, &p) {
		return nil
	}
	tr, err := c.repo.Apply(ctx, p.PaymentID, store.IntentPatch{
		Status:    domain.IntentUnauthorized,
		UserID:    p.UserID,
		TuitionID: p.TuitionID,
		Amount:    p.Amount,
	})
	if err != nil {
		return err
	}
	reason := p.ReasonCode
	if reason == "" {
		reason = events.ReasonOTPExpired
	}
	return c.settleUnauthorized(ctx, tr, reason, p.ReasonMessage, events.MetaFrom(d))
}

func (c *SagaConsumer) handleUnauthorized(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.PaymentUnauthorized
	if !decode(d, &p) {
		return nil
	}
	tr, err := c.repo.Apply(ctx, p.PaymentID, store.IntentPatch{
		Status: domain.IntentUnauthorized,
		UserID: p.UserID,
		Amount: p.Amount,
	})
	if err != nil {
		return err
	}
	// Re-emitting only on the PENDING edge keeps the consumed and published
	// payment_unauthorized from chasing each other in a loop.
	return c.settleUnauthorized(ctx, tr, p.ReasonCode, p.ReasonMessage, events.MetaFrom(d))
}

// settleUnauthorized fires payment_unauthorized on the PENDING edge and, when
// the patch also finished the compensation pair, the terminal cancel.
func (c *SagaConsumer) settleUnauthorized(ctx context.Context, tr *store.Transition, reason, message string, meta events.Meta) error {
	if tr.AlreadyFinalized {
		return nil
	}
	if reason == "" {
		reason = events.ReasonUnauthorized
	}
	in := tr.Intent
	if tr.PriorStatus == domain.IntentPending && in.Status == domain.IntentUnauthorized {
		log.Printf("level=info component=payment_saga msg=\"payment unauthorized\" payment_id=%s reason=%s", in.PaymentID, reason)
		if err := c.publisher.Publish(ctx, events.RKPaymentUnauthorized, events.EventTypePaymentUnauthorized, events.PaymentUnauthorized{
			PaymentID:     in.PaymentID,
			UserID:        in.UserID,
			TuitionID:     in.TuitionID,
			Amount:        in.Amount,
			ReasonCode:    reason,
			ReasonMessage: message,
			Email:         in.Email,
		}, meta); err != nil {
			return err
		}
	}
	return c.maybeCancel(ctx, tr, reason, message, meta)
}

func (c *SagaConsumer) handleBalanceUpdated(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.BalanceUpdated
	if !decode(d, &p) {
		return nil
	}
	tr, err := c.repo.Apply(ctx, p.PaymentID, store.IntentPatch{
		AccountDone: true,
		UserID:      p.UserID,
		Email:       p.Email,
		Amount:      p.Amount,
	})
	if err != nil {
		return err
	}
	return c.maybeComplete(ctx, tr, events.MetaFrom(d))
}

func (c *SagaConsumer) handleTuitionUpdated(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.TuitionUpdated
	if !decode(d, &p) {
		return nil
	}
	tr, err := c.repo.Apply(ctx, p.PaymentID, store.IntentPatch{
		TuitionDone: true,
		TuitionID:   p.TuitionID,
		Term:        p.TermNo,
	})
	if err != nil {
		return err
	}
	return c.maybeComplete(ctx, tr, events.MetaFrom(d))
}

func (c *SagaConsumer) maybeComplete(ctx context.Context, tr *store.Transition, meta events.Meta) error {
	if tr.AlreadyFinalized || !tr.Completed {
		return nil
	}
	in := tr.Intent
	log.Printf("level=info component=payment_saga msg=\"payment completed\" payment_id=%s user_id=%s amount=%.2f", in.PaymentID, in.UserID, in.Amount)
	return c.publisher.Publish(ctx, events.RKPaymentCompleted, events.EventTypePaymentCompleted, events.PaymentCompleted{
		PaymentID: in.PaymentID,
		UserID:    in.UserID,
		TuitionID: in.TuitionID,
		Amount:    in.Amount,
		Email:     in.Email,
	}, meta)
}

func (c *SagaConsumer) handleBalanceReleased(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.BalanceReleased
	if !decode(d, &p) {
		return nil
	}
	tr, err := c.repo.Apply(ctx, p.PaymentID, store.IntentPatch{
		ReleaseDone: true,
		UserID:      p.UserID,
		Email:       p.Email,
		Amount:      p.Amount,
	})
	if err != nil {
		return err
	}
	return c.maybeCancel(ctx, tr, p.ReasonCode, p.ReasonMessage, events.MetaFrom(d))
}

func (c *SagaConsumer) handleTuitionUnlocked(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.TuitionUnlocked
	if !decode(d, &p) {
		return nil
	}
	tr, err := c.repo.Apply(ctx, p.PaymentID, store.IntentPatch{
		UnlockDone: true,
		TuitionID:  p.TuitionID,
		Term:       p.TermNo,
	})
	if err != nil {
		return err
	}
	return c.maybeCancel(ctx, tr, p.ReasonCode, p.ReasonMessage, events.MetaFrom(d))
}

func (c *SagaConsumer) maybeCancel(ctx context.Context, tr *store.Transition, reason, message string, meta events.Meta) error {
	if tr.AlreadyFinalized || !tr.Canceled {
		return nil
	}
	if reason == "" {
		reason = events.ReasonCanceled
	}
	in := tr.Intent
	log.Printf("level=info component=payment_saga msg=\"payment canceled\" payment_id=%s reason=%s", in.PaymentID, reason)
	return c.publisher.Publish(ctx, events.RKPaymentCanceled, events.EventTypePaymentCanceled, events.PaymentCanceled{
		PaymentID:     in.PaymentID,
		UserID:        in.UserID,
		ReasonCode:    reason,
		ReasonMessage: message,
		Email:         in.Email,
	}, meta)
}

// decode unmarshals and validates the payload; a false return means the
// message was dropped at the boundary and must be acked.
func decode[T interface{ Validate() error }](d rabbitmq.Delivery, out *T) bool {
	if err := json.Unmarshal(d.Body, out); err != nil {
		log.Printf("level=warn component=payment_saga msg=\"dropping malformed payload\" event_type=%s err=%v", d.EventType, err)
		return false
	}
	if err := (*out).Validate(); err != nil {
		log.Printf("level=warn component=payment_saga msg=\"dropping invalid payload\" event_type=%s err=%v", d.EventType, err)
		return false
	}
	return true
}
