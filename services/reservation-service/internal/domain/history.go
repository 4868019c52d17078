package domain

import "time"

// History is an immutable snapshot of the reservation taken at the moment of
// a transition, written in the same transaction as the aggregate update.
// Rows are append-only and never updated or deleted.
type History struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	ReservationID string `gorm:"index"`
	Status        Status
	PaymentID     string
	Reason        string
	RecordedAt    time.Time `gorm:"index"`
}

// TableName keeps the append-only audit table name explicit.
func (History) TableName() string { return "reservation_histories" }

// Snapshot captures the reservation's current state.
func Snapshot(r *Reservation, now time.Time) History {
	return History{
		ReservationID: r.ID,
		Status:        r.Status,
		PaymentID:     r.PaymentID,
		Reason:        r.CancelReason,
		RecordedAt:    now.UTC(),
	}
}
