package domain

import "time"

// History is an append-only snapshot of the payment at each transition,
// written in the same transaction as the aggregate update.
type History struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	PaymentID  string `gorm:"index"`
	Status     Status
	GatewayRef string
	Reason     string
	RecordedAt time.Time `gorm:"index"`
}

func (History) TableName() string { return "payment_histories" }

// Snapshot captures the payment's current state.
func Snapshot(p *Payment, now time.Time) History {
	return History{
		PaymentID:  p.ID,
		Status:     p.Status,
		GatewayRef: p.GatewayRef,
		Reason:     p.Reason,
		RecordedAt: now.UTC(),
	}
}
