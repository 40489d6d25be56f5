package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/IvanTran0101/ibanking-tuition/pkg/events"
	"github.com/IvanTran0101/ibanking-tuition/pkg/mailer"
	"github.com/IvanTran0101/ibanking-tuition/pkg/rabbitmq"
)

// EmailLookup resolves a recipient when the event payload carries no usable
// address. Satisfied by accountclient.Client.
type EmailLookup interface {
	FindEmail(ctx context.Context, userID, correlationID string) (string, error)
}

// PaymentConsumer turns terminal saga events into user-facing email. Sending
// is best-effort: a failed send is logged and the message acked, because a
// notification is not worth recycling the whole payment through the DLQ.
type PaymentConsumer struct {
	mailer mailer.Mailer
	lookup EmailLookup
}

func NewPaymentConsumer(m mailer.Mailer, lookup EmailLookup) *PaymentConsumer {
	return &PaymentConsumer{mailer: m, lookup: lookup}
}

func (c *PaymentConsumer) HandleMessage(ctx context.Context, d rabbitmq.Delivery) error {
	switch d.EventType {
	case events.EventTypePaymentCompleted:
		return c.handleCompleted(ctx, d)
	case events.EventTypePaymentCanceled:
		return c.handleCanceled(ctx, d)
	default:
		log.Printf("level=debug component=notification_consumer msg=\"ignoring event\" event_type=%s", d.EventType)
		return nil
	}
}

func (c *PaymentConsumer) handleCompleted(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.PaymentCompleted
	if err := json.Unmarshal(d.Body, &p); err != nil {
		log.Printf("level=warn component=notification_consumer msg=\"dropping malformed payload\" event_type=%s err=%v", d.EventType, err)
		return nil
	}
	if err := p.Validate(); err != nil {
		log.Printf("level=warn component=notification_consumer msg=\"dropping invalid payload\" event_type=%s err=%v", d.EventType, err)
		return nil
	}

	email := c.resolveEmail(ctx, p.Email, p.UserID, d.CorrelationID)
	if email == "" {
		log.Printf("level=warn component=notification_consumer msg=\"no recipient for receipt\" payment_id=%s user_id=%s", p.PaymentID, p.UserID)
		return nil
	}

	body := fmt.Sprintf(
		"<p>Your tuition payment was successful.</p><p>Payment: %s<br>Tuition: %s<br>Amount: %.2f</p>",
		p.PaymentID, p.TuitionID, p.Amount)
	if err := c.mailer.Send(ctx, email, "Tuition payment receipt", body); err != nil {
		log.Printf("level=error component=notification_consumer msg=\"failed to send receipt\" payment_id=%s err=%v", p.PaymentID, err)
		return nil
	}
	log.Printf("level=info component=notification_consumer msg=\"receipt sent\" payment_id=%s", p.PaymentID)
	return nil
}

func (c *PaymentConsumer) handleCanceled(ctx context.Context, d rabbitmq.Delivery) error {
	var p events.PaymentCanceled
	if err := json.Unmarshal(d.Body, &p); err != nil {
		log.Printf("level=warn component=notification_consumer msg=\"dropping malformed payload\" event_type=%s err=%v", d.EventType, err)
		return nil
	}
	if err := p.Validate(); err != nil {
		log.Printf("level=warn component=notification_consumer msg=\"dropping invalid payload\" event_type=%s err=%v", d.EventType, err)
		return nil
	}

	email := c.resolveEmail(ctx, p.Email, p.UserID, d.CorrelationID)
	if email == "" {
		log.Printf("level=warn component=notification_consumer msg=\"no recipient for cancellation notice\" payment_id=%s user_id=%s", p.PaymentID, p.UserID)
		return nil
	}

	reason := p.ReasonCode
	if reason == "" {
		reason = events.ReasonCanceled
	}
	body := fmt.Sprintf(
		"<p>Your tuition payment was canceled and no money was taken.</p><p>Payment: %s<br>Reason: %s</p>",
		p.PaymentID, reason)
	if err := c.mailer.Send(ctx, email, "Tuition payment canceled", body); err != nil {
		log.Printf("level=error component=notification_consumer msg=\"failed to send cancellation notice\" payment_id=%s err=%v", p.PaymentID, err)
		return nil
	}
	log.Printf("level=info component=notification_consumer msg=\"cancellation notice sent\" payment_id=%s", p.PaymentID)
	return nil
}

func (c *PaymentConsumer) resolveEmail(ctx context.Context, payloadEmail, userID, correlationID string) string {
	if strings.Contains(payloadEmail, "@") {
		return payloadEmail
	}
	if c.lookup == nil || userID == "" {
		return ""
	}
	email, err := c.lookup.FindEmail(ctx, userID, correlationID)
	if err != nil {
		log.Printf("level=error component=notification_consumer msg=\"recipient lookup failed\" user_id=%s err=%v", userID, err)
		return ""
	}
	return email
}
