// Package domain holds the Approval work item. One approval exists per
// reservation; the reservation id is the natural key.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusResolved Status = "RESOLVED"
)

var ErrInvalidInput = errors.New("approval: invalid input")

// Approval is a caregiver's pending decision for one reservation. It is a
// work-queue entry, not the source of truth for the reservation state.
type Approval struct {
	ID            string `gorm:"primaryKey"`
	ReservationID string `gorm:"uniqueIndex"`
	CaregiverID   string `gorm:"index"`
	GuardianID    string
	Status        Status `gorm:"index"`
	Resolution    string

	RequestedAt time.Time
	ResolvedAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New validates input and creates a pending approval.
func New(reservationID, caregiverID, guardianID string, now time.Time) (*Approval, error) {
	if reservationID == "" {
		return nil, fmt.Errorf("%w: reservation id is required", ErrInvalidInput)
	}
	if caregiverID == "" {
		return nil, fmt.Errorf("%w: caregiver id is required", ErrInvalidInput)
	}
	return &Approval{
		ID:            uuid.NewString(),
		ReservationID: reservationID,
		CaregiverID:   caregiverID,
		GuardianID:    guardianID,
		Status:        StatusPending,
		RequestedAt:   now.UTC(),
	}, nil
}

// Resolve closes the work item. Resolving twice keeps the first resolution.
func (a *Approval) Resolve(resolution string, now time.Time) {
	if a.Status == StatusResolved {
		return
	}
	a.Status = StatusResolved
	a.Resolution = resolution
	t := now.UTC()
	a.ResolvedAt = &t
}
