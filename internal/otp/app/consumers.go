package app

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/IvanTran0101/ibanking-tuition/internal/otp/domain"
	"github.com/IvanTran0101/ibanking-tuition/internal/otp/store"
	"github.com/IvanTran0101/ibanking-tuition/pkg/events"
	"github.com/IvanTran0101/ibanking-tuition/pkg/mailer"
	"github.com/IvanTran0101/ibanking-tuition/pkg/rabbitmq"
)

// PaymentConsumer issues an OTP challenge when the saga reports both
// reservations are in place. The code is stored with a TTL and mailed to the
// user; only the challenge metadata goes back on the bus.
type PaymentConsumer struct {
	store     store.Store
	publisher events.Publisher
	mailer    mailer.Mailer
	codeLen   int
	ttl       time.Duration
}

func NewPaymentConsumer(st store.Store, publisher events.Publisher, m mailer.Mailer, codeLen int, ttl time.Duration) *PaymentConsumer {
	return &PaymentConsumer{store: st, publisher: publisher, mailer: m, codeLen: codeLen, ttl: ttl}
}

func (c *PaymentConsumer) HandleMessage(ctx context.Context, d rabbitmq.Delivery) error {
	switch d.EventType {
	case events.EventTypePaymentProcessing:
		return c.handleProcessing(ctx, d)
	default:
		log.Printf("level=debug component=otp_consumer msg=\"ignoring event\" event_type=%s", d.EventType)
		return nil
	}
}

func (c *PaymentConsumer) handleProcessing(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.PaymentProcessing
	if err := json.Unmarshal(d.Body, &p); err != nil {
		log.Printf("level=warn component=otp_consumer msg=\"dropping malformed payload\" event_type=%s err=%v", d.EventType, err)
		return nil
	}
	if err := p.Validate(); err != nil {
		log.Printf("level=warn component=otp_consumer msg=\"dropping invalid payload\" event_type=%s err=%v", d.EventType, err)
		return nil
	}

	code, err := generateCode(c.codeLen)
	if err != nil {
		return err
	}

	rec := domain.Record{
		PaymentID: p.PaymentID,
		Code:      code,
		UserID:    p.UserID,
		TuitionID: p.TuitionID,
		Amount:    p.Amount,
		Email:     p.Email,
		ExpiresAt: time.Now().UTC().Add(c.ttl),
	}
	created, err := c.store.PutIfAbsent(ctx, rec, c.ttl)
	if err != nil {
		return err
	}
	if !created {
		log.Printf("level=info component=otp_consumer msg=\"challenge already issued; replay\" payment_id=%s", p.PaymentID)
		return nil
	}

	// Mail delivery is best-effort: the challenge is live either way and the
	// verify endpoint remains the source of truth.
	if p.Email == "" {
		log.Printf("level=warn component=otp_consumer msg=\"no email on payment; code not delivered\" payment_id=%s", p.PaymentID)
	} else if err := c.mailer.Send(ctx, p.Email, "Your tuition payment verification code",
		fmt.Sprintf("<p>Your verification code is <b>%s</b>. It expires in %d minutes.</p>", code, int(c.ttl.Minutes()))); err != nil {
		log.Printf("level=error component=otp_consumer msg=\"failed to send otp email\" payment_id=%s err=%v", p.PaymentID, err)
	}

	log.Printf("level=info component=otp_consumer msg=\"otp challenge issued\" payment_id=%s user_id=%s", p.PaymentID, p.UserID)
	return c.publisher.Publish(ctx, events.RKOTPGenerated, events.EventTypeOTPGenerated, events.OTPGenerated{
		PaymentID: p.PaymentID,
		UserID:    p.UserID,
		TuitionID: p.TuitionID,
		Amount:    p.Amount,
		ExpiresAt: rec.ExpiresAt.Format(time.RFC3339),
	}, events.MetaFrom(d))
}

func generateCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
