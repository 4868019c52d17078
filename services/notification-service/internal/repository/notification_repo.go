package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/Sparta-CareNest/carenest-backend/pkg/dedupe"
	"github.com/Sparta-CareNest/carenest-backend/services/notification-service/internal/domain"
)

// NotificationRepo persists notification records.
type NotificationRepo struct {
	db *gorm.DB
}

func NewNotificationRepo(db *gorm.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

func (r *NotificationRepo) Migrate() error {
	return r.db.AutoMigrate(&domain.Notification{})
}

// Save writes the record; dedupe keys passed as marks ride the same
// transaction, so the record and its idempotency claim commit atomically. A
// key already owned by another committer rolls back with dedupe.ErrDuplicate.
func (r *NotificationRepo) Save(ctx context.Context, n *domain.Notification, marks ...string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(n).Error; err != nil {
			return fmt.Errorf("save notification %s: %w", n.ID, err)
		}
		for _, key := range marks {
			won, err := dedupe.Mark(tx, key)
			if err != nil {
				return err
			}
			if !won {
				return dedupe.ErrDuplicate
			}
		}
		return nil
	})
	return err
}

// ByRecipient returns the recipient's notifications, newest first.
func (r *NotificationRepo) ByRecipient(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.Notification
	if err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list notifications for %s: %w", recipientID, err)
	}
	return out, nil
}
