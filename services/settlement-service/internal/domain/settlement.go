// Package domain holds caregiver earnings. Completed reservations accrue one
// entry each; a settlement rolls a caregiver's open accruals into a single
// payable amount.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidInput = errors.New("settlement: invalid input")

// Accrual is one completed reservation's worth of caregiver earnings. The
// reservation id is unique, so re-applying the same completion accrues
// nothing.
type Accrual struct {
	ID            string `gorm:"primaryKey"`
	ReservationID string `gorm:"uniqueIndex"`
	CaregiverID   string `gorm:"index"`
	Amount        int64
	SettlementID  string `gorm:"index"`

	CreatedAt time.Time
}

// NewAccrual validates input and creates an unsettled accrual.
func NewAccrual(reservationID, caregiverID string, amount int64) (*Accrual, error) {
	if reservationID == "" {
		return nil, fmt.Errorf("%w: reservation id is required", ErrInvalidInput)
	}
	if caregiverID == "" {
		return nil, fmt.Errorf("%w: caregiver id is required", ErrInvalidInput)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidInput, amount)
	}
	return &Accrual{
		ID:            uuid.NewString(),
		ReservationID: reservationID,
		CaregiverID:   caregiverID,
		Amount:        amount,
	}, nil
}

// Settlement is the payable sum of a caregiver's accruals for one period.
type Settlement struct {
	ID          string `gorm:"primaryKey"`
	CaregiverID string `gorm:"index"`
	Amount      int64
	Period      string `gorm:"index"`

	CreatedAt time.Time
}

// NewSettlement builds the settlement row for a batch of accruals.
func NewSettlement(caregiverID, period string, amount int64) (*Settlement, error) {
	if caregiverID == "" {
		return nil, fmt.Errorf("%w: caregiver id is required", ErrInvalidInput)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidInput, amount)
	}
	return &Settlement{
		ID:          uuid.NewString(),
		CaregiverID: caregiverID,
		Amount:      amount,
		Period:      period,
	}, nil
}
