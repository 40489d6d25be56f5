package events

import (
	"errors"
	"fmt"
)

// Payload structs are validated at the consumption boundary: handlers
// unmarshal the body into the struct matching the event type and drop the
// message (acked, no error) when a required field is missing.

var errMissingField = errors.New("missing required field")

func required(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s", errMissingField, field)
	}
	return nil
}

// PaymentInitiated starts a saga instance for one tuition payment attempt.
type PaymentInitiated struct {
	PaymentID string  `json:"payment_id"`
	UserID    string  `json:"user_id"`
	StudentID string  `json:"student_id"`
	TuitionID string  `json:"tuition_id"`
	Amount    float64 `json:"amount"`
	Term      string  `json:"term,omitempty"`
	Email     string  `json:"email,omitempty"`
}

func (p PaymentInitiated) Validate() error {
	for field, value := range map[string]string{
		"payment_id": p.PaymentID,
		"user_id":    p.UserID,
		"student_id": p.StudentID,
		"tuition_id": p.TuitionID,
	} {
		if err := required(field, value); err != nil {
			return err
		}
	}
	if p.Amount <= 0 {
		return fmt.Errorf("%w: amount", errMissingField)
	}
	return nil
}

// PaymentProcessing tells the OTP authorizer both reservations are in place.
type PaymentProcessing struct {
	PaymentID string  `json:"payment_id"`
	UserID    string  `json:"user_id"`
	TuitionID string  `json:"tuition_id,omitempty"`
	Amount    float64 `json:"amount"`
	Term      string  `json:"term,omitempty"`
	Email     string  `json:"email,omitempty"`
}

func (p PaymentProcessing) Validate() error {
	if err := required("payment_id", p.PaymentID); err != nil {
		return err
	}
	if err := required("user_id", p.UserID); err != nil {
		return err
	}
	if p.Amount <= 0 {
		return fmt.Errorf("%w: amount", errMissingField)
	}
	return nil
}

// PaymentAuthorized drives capture on both custodians.
type PaymentAuthorized struct {
	PaymentID string  `json:"payment_id"`
	UserID    string  `json:"user_id,omitempty"`
	TuitionID string  `json:"tuition_id,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
	Email     string  `json:"email,omitempty"`
}

func (p PaymentAuthorized) Validate() error {
	return required("payment_id", p.PaymentID)
}

// PaymentUnauthorized drives release on both custodians.
type PaymentUnauthorized struct {
	PaymentID     string  `json:"payment_id"`
	UserID        string  `json:"user_id,omitempty"`
	TuitionID     string  `json:"tuition_id,omitempty"`
	Amount        float64 `json:"amount,omitempty"`
	ReasonCode    string  `json:"reason_code,omitempty"`
	ReasonMessage string  `json:"reason_message,omitempty"`
	Email         string  `json:"email,omitempty"`
}

func (p PaymentUnauthorized) Validate() error {
	return required("payment_id", p.PaymentID)
}

// PaymentCompleted is the saga's terminal commit event.
type PaymentCompleted struct {
	PaymentID string  `json:"payment_id"`
	UserID    string  `json:"user_id"`
	TuitionID string  `json:"tuition_id,omitempty"`
	Amount    float64 `json:"amount"`
	Email     string  `json:"email,omitempty"`
}

func (p PaymentCompleted) Validate() error {
	if err := required("payment_id", p.PaymentID); err != nil {
		return err
	}
	return required("user_id", p.UserID)
}

// PaymentCanceled is the saga's terminal compensation event.
type PaymentCanceled struct {
	PaymentID     string `json:"payment_id"`
	UserID        string `json:"user_id,omitempty"`
	ReasonCode    string `json:"reason_code,omitempty"`
	ReasonMessage string `json:"reason_message,omitempty"`
	Email         string `json:"email,omitempty"`
}

func (p PaymentCanceled) Validate() error {
	return required("payment_id", p.PaymentID)
}

// BalanceHeld confirms a hold was reserved against the user's balance.
type BalanceHeld struct {
	UserID    string  `json:"user_id"`
	Amount    float64 `json:"amount"`
	PaymentID string  `json:"payment_id"`
	Email     string  `json:"email,omitempty"`
}

func (p BalanceHeld) Validate() error {
	if err := required("payment_id", p.PaymentID); err != nil {
		return err
	}
	return required("user_id", p.UserID)
}

// BalanceHoldFailed reports a rejected reservation.
type BalanceHoldFailed struct {
	UserID        string  `json:"user_id"`
	Amount        float64 `json:"amount"`
	PaymentID     string  `json:"payment_id"`
	ReasonCode    string  `json:"reason_code"`
	ReasonMessage string  `json:"reason_message,omitempty"`
}

func (p BalanceHoldFailed) Validate() error {
	return required("payment_id", p.PaymentID)
}

// BalanceUpdated confirms a hold was captured and the balance debited.
type BalanceUpdated struct {
	UserID    string  `json:"user_id"`
	Amount    float64 `json:"amount"`
	PaymentID string  `json:"payment_id"`
	Email     string  `json:"email,omitempty"`
}

func (p BalanceUpdated) Validate() error {
	return required("payment_id", p.PaymentID)
}

// BalanceReleased confirms a hold was released without debiting.
type BalanceReleased struct {
	UserID        string  `json:"user_id"`
	Amount        float64 `json:"amount"`
	PaymentID     string  `json:"payment_id"`
	ReasonCode    string  `json:"reason_code,omitempty"`
	ReasonMessage string  `json:"reason_message,omitempty"`
	Email         string  `json:"email,omitempty"`
}

func (p BalanceReleased) Validate() error {
	return required("payment_id", p.PaymentID)
}

// TuitionLocked confirms the tuition record was reserved.
type TuitionLocked struct {
	StudentID string  `json:"student_id"`
	TuitionID string  `json:"tuition_id"`
	TermNo    string  `json:"term_no,omitempty"`
	AmountDue float64 `json:"amount_due"`
	Status    string  `json:"status"`
	PaymentID string  `json:"payment_id"`
}

func (p TuitionLocked) Validate() error {
	if err := required("payment_id", p.PaymentID); err != nil {
		return err
	}
	return required("tuition_id", p.TuitionID)
}

// TuitionLockFailed reports a rejected reservation.
type TuitionLockFailed struct {
	StudentID     string  `json:"student_id"`
	TuitionID     string  `json:"tuition_id"`
	TermNo        string  `json:"term_no,omitempty"`
	AmountDue     float64 `json:"amount_due"`
	Status        string  `json:"status,omitempty"`
	PaymentID     string  `json:"payment_id"`
	ReasonCode    string  `json:"reason_code"`
	ReasonMessage string  `json:"reason_message,omitempty"`
}

func (p TuitionLockFailed) Validate() error {
	return required("payment_id", p.PaymentID)
}

// TuitionUpdated confirms the lock was captured and the record marked paid.
type TuitionUpdated struct {
	StudentID string  `json:"student_id"`
	TuitionID string  `json:"tuition_id"`
	TermNo    string  `json:"term_no,omitempty"`
	AmountDue float64 `json:"amount_due"`
	Status    string  `json:"status"`
	PaymentID string  `json:"payment_id"`
}

func (p TuitionUpdated) Validate() error {
	return required("payment_id", p.PaymentID)
}

// TuitionUnlocked confirms a lock was reverted.
type TuitionUnlocked struct {
	StudentID     string  `json:"student_id"`
	TuitionID     string  `json:"tuition_id"`
	TermNo        string  `json:"term_no,omitempty"`
	AmountDue     float64 `json:"amount_due"`
	Status        string  `json:"status"`
	PaymentID     string  `json:"payment_id"`
	ReasonCode    string  `json:"reason_code,omitempty"`
	ReasonMessage string  `json:"reason_message,omitempty"`
}

func (p TuitionUnlocked) Validate() error {
	return required("payment_id", p.PaymentID)
}

// OTPGenerated announces a code was issued. The code itself is never placed
// on the bus.
type OTPGenerated struct {
	PaymentID string  `json:"payment_id"`
	UserID    string  `json:"user_id"`
	TuitionID string  `json:"tuition_id,omitempty"`
	Amount    float64 `json:"amount"`
	ExpiresAt string  `json:"expires_at"`
}

func (p OTPGenerated) Validate() error {
	if err := required("payment_id", p.PaymentID); err != nil {
		return err
	}
	return required("user_id", p.UserID)
}

// OTPSucceed reports a verified code; the payment may be authorized.
type OTPSucceed struct {
	PaymentID string  `json:"payment_id"`
	UserID    string  `json:"user_id"`
	TuitionID string  `json:"tuition_id"`
	Amount    float64 `json:"amount"`
}

func (p OTPSucceed) Validate() error {
	for field, value := range map[string]string{
		"payment_id": p.PaymentID,
		"user_id":    p.UserID,
		"tuition_id": p.TuitionID,
	} {
		if err := required(field, value); err != nil {
			return err
		}
	}
	if p.Amount <= 0 {
		return fmt.Errorf("%w: amount", errMissingField)
	}
	return nil
}

// OTPExpired reports a dead OTP record; the payment must be compensated.
type OTPExpired struct {
	PaymentID     string  `json:"payment_id"`
	UserID        string  `json:"user_id,omitempty"`
	TuitionID     string  `json:"tuition_id,omitempty"`
	Amount        float64 `json:"amount,omitempty"`
	ReasonCode    string  `json:"reason_code,omitempty"`
	ReasonMessage string  `json:"reason_message,omitempty"`
}

func (p OTPExpired) Validate() error {
	return required("payment_id", p.PaymentID)
}
