// Package domain holds the Notification record. The row is the durable
// artifact; delivery to the recipient's device is best effort on top of it.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	ID          string `gorm:"primaryKey"`
	RecipientID string `gorm:"index"`
	Title       string
	Body        string
	SourceTopic string `gorm:"index"`
	SourceEvent string

	DeliveredAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New records a notification that is about to be delivered.
func New(recipientID, title, body, sourceTopic, sourceEvent string) *Notification {
	return &Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Title:       title,
		Body:        body,
		SourceTopic: sourceTopic,
		SourceEvent: sourceEvent,
	}
}

// MarkDelivered stamps the delivery time once.
func (n *Notification) MarkDelivered(now time.Time) {
	if n.DeliveredAt == nil {
		t := now.UTC()
		n.DeliveredAt = &t
	}
}
