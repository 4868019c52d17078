// Package domain holds the Payment aggregate. A payment reaches exactly one
// terminal status (COMPLETED, CANCELLED or REFUNDED via COMPLETED) and a
// terminal status is never revisited.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusRefunded  Status = "REFUNDED"
)

var (
	ErrStateConflict  = errors.New("payment: transition not permitted in current state")
	ErrAlreadyApplied = errors.New("payment: transition already applied")
	ErrInvalidInput   = errors.New("payment: invalid input")
)

// Payment funds one reservation. GatewayRef is the charge reference at the
// external payment gateway.
type Payment struct {
	ID            string `gorm:"primaryKey"`
	ReservationID string `gorm:"index"`
	GuardianID    string `gorm:"index"`
	Amount        int64
	Method        string
	GatewayRef    string
	Status        Status `gorm:"index"`
	Reason        string

	CompletedAt *time.Time
	CancelledAt *time.Time
	RefundedAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New validates input and creates a pending payment.
func New(reservationID, guardianID string, amount int64, method string) (*Payment, error) {
	if reservationID == "" {
		return nil, fmt.Errorf("%w: reservation id is required", ErrInvalidInput)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidInput, amount)
	}
	return &Payment{
		ID:            uuid.NewString(),
		ReservationID: reservationID,
		GuardianID:    guardianID,
		Amount:        amount,
		Method:        method,
		Status:        StatusPending,
	}, nil
}

// IsTerminal reports whether the payment has reached a final status.
func (p *Payment) IsTerminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusCancelled || p.Status == StatusRefunded
}

// Complete marks a pending payment as captured.
func (p *Payment) Complete(now time.Time) error {
	if p.Status == StatusCompleted {
		return ErrAlreadyApplied
	}
	if p.Status != StatusPending {
		return fmt.Errorf("%w: complete requires %s, have %s", ErrStateConflict, StatusPending, p.Status)
	}
	p.Status = StatusCompleted
	setOnce(&p.CompletedAt, now)
	return nil
}

// Cancel voids a payment that was never captured.
func (p *Payment) Cancel(reason string, now time.Time) error {
	if p.Status == StatusCancelled {
		return ErrAlreadyApplied
	}
	if p.Status != StatusPending {
		return fmt.Errorf("%w: cancel requires %s, have %s", ErrStateConflict, StatusPending, p.Status)
	}
	p.Status = StatusCancelled
	p.Reason = reason
	setOnce(&p.CancelledAt, now)
	return nil
}

// Refund returns a captured payment to the guardian.
func (p *Payment) Refund(reason string, now time.Time) error {
	if p.Status == StatusRefunded {
		return ErrAlreadyApplied
	}
	if p.Status != StatusCompleted {
		return fmt.Errorf("%w: refund requires %s, have %s", ErrStateConflict, StatusCompleted, p.Status)
	}
	p.Status = StatusRefunded
	p.Reason = reason
	setOnce(&p.RefundedAt, now)
	return nil
}

func setOnce(dst **time.Time, now time.Time) {
	if *dst == nil {
		t := now.UTC()
		*dst = &t
	}
}
