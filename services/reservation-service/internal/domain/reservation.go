// Package domain holds the Reservation aggregate and its state machine. The
// transition methods are pure in-memory operations so the machine can be
// tested without persistence or broker side effects.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the reservation lifecycle state.
type Status string

const (
	StatusPendingPayment    Status = "PENDING_PAYMENT"
	StatusPendingAcceptance Status = "PENDING_ACCEPTANCE"
	StatusConfirmed         Status = "CONFIRMED"
	StatusCompleted         Status = "COMPLETED"
	StatusCancelled         Status = "CANCELLED"
	StatusRejected          Status = "REJECTED"
)

var (
	// ErrStateConflict means the current status does not permit the
	// requested transition. Consumers treat it as a logged no-op; local
	// API callers get it back as a request failure.
	ErrStateConflict = errors.New("reservation: transition not permitted in current state")

	// ErrAlreadyApplied means the transition was applied earlier; a
	// duplicate delivery should be acknowledged without side effects.
	ErrAlreadyApplied = errors.New("reservation: transition already applied")

	ErrInvalidInput = errors.New("reservation: invalid input")
)

// Reservation is a booking between a guardian (care recipient side) and a
// caregiver. Status moves one-directionally; each timestamp is set at most
// once.
type Reservation struct {
	ID          string `gorm:"primaryKey"`
	GuardianID  string `gorm:"index"`
	CaregiverID string `gorm:"index"`
	Amount      int64
	Status      Status `gorm:"index"`

	// PaymentID links the payment that funded this reservation; set when
	// payment.completed is consumed.
	PaymentID string `gorm:"index"`

	CancelReason string

	AcceptedAt  *time.Time
	RejectedAt  *time.Time
	CancelledAt *time.Time
	CompletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New validates input and creates a reservation awaiting payment.
func New(guardianID, caregiverID string, amount int64) (*Reservation, error) {
	if guardianID == "" || caregiverID == "" {
		return nil, fmt.Errorf("%w: guardian and caregiver ids are required", ErrInvalidInput)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidInput, amount)
	}
	return &Reservation{
		ID:          uuid.NewString(),
		GuardianID:  guardianID,
		CaregiverID: caregiverID,
		Amount:      amount,
		Status:      StatusPendingPayment,
	}, nil
}

// IsAcceptable reports whether the caregiver may accept or reject.
func (r *Reservation) IsAcceptable() bool {
	return r.Status == StatusPendingAcceptance
}

// IsCancellable reports whether the guardian may still cancel.
func (r *Reservation) IsCancellable() bool {
	return r.Status == StatusPendingPayment || r.Status == StatusPendingAcceptance
}

// LinkPayment records the completed payment and advances to
// PENDING_ACCEPTANCE. Linking the same payment twice is a duplicate delivery;
// linking a different payment to an already-linked reservation is a conflict.
func (r *Reservation) LinkPayment(paymentID string) error {
	if paymentID == "" {
		return fmt.Errorf("%w: payment id is required", ErrInvalidInput)
	}
	if r.PaymentID == paymentID {
		return ErrAlreadyApplied
	}
	if r.PaymentID != "" {
		return fmt.Errorf("%w: payment %s already linked", ErrStateConflict, r.PaymentID)
	}
	if r.Status != StatusPendingPayment {
		return fmt.Errorf("%w: cannot link payment in %s", ErrStateConflict, r.Status)
	}
	r.PaymentID = paymentID
	r.Status = StatusPendingAcceptance
	return nil
}

// Accept confirms the reservation on behalf of the caregiver.
func (r *Reservation) Accept(now time.Time) error {
	if !r.IsAcceptable() {
		return fmt.Errorf("%w: accept requires %s, have %s", ErrStateConflict, StatusPendingAcceptance, r.Status)
	}
	r.Status = StatusConfirmed
	setOnce(&r.AcceptedAt, now)
	return nil
}

// Reject declines the reservation on behalf of the caregiver.
func (r *Reservation) Reject(now time.Time) error {
	if !r.IsAcceptable() {
		return fmt.Errorf("%w: reject requires %s, have %s", ErrStateConflict, StatusPendingAcceptance, r.Status)
	}
	r.Status = StatusRejected
	setOnce(&r.RejectedAt, now)
	return nil
}

// Cancel is the guardian-initiated cancellation, permitted only before the
// caregiver has confirmed.
func (r *Reservation) Cancel(reason string, now time.Time) error {
	if r.Status == StatusCancelled {
		return ErrAlreadyApplied
	}
	if !r.IsCancellable() {
		return fmt.Errorf("%w: cancel requires %s or %s, have %s",
			ErrStateConflict, StatusPendingPayment, StatusPendingAcceptance, r.Status)
	}
	r.Status = StatusCancelled
	r.CancelReason = reason
	setOnce(&r.CancelledAt, now)
	return nil
}

// CancelForPayment is the compensating transition consumed from
// payment.cancelled. It fires regardless of how far the happy path has
// progressed; only an already-cancelled reservation is a no-op.
func (r *Reservation) CancelForPayment(reason string, now time.Time) error {
	if r.Status == StatusCancelled {
		return ErrAlreadyApplied
	}
	r.Status = StatusCancelled
	r.CancelReason = reason
	setOnce(&r.CancelledAt, now)
	return nil
}

// Complete closes out a confirmed reservation after the care session.
func (r *Reservation) Complete(now time.Time) error {
	if r.Status != StatusConfirmed {
		return fmt.Errorf("%w: complete requires %s, have %s", ErrStateConflict, StatusConfirmed, r.Status)
	}
	r.Status = StatusCompleted
	setOnce(&r.CompletedAt, now)
	return nil
}

func setOnce(dst **time.Time, now time.Time) {
	if *dst == nil {
		t := now.UTC()
		*dst = &t
	}
}
