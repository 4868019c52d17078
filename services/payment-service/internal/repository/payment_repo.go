package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Sparta-CareNest/carenest-backend/pkg/dedupe"
	"github.com/Sparta-CareNest/carenest-backend/services/payment-service/internal/domain"
)

// ErrNotFound is returned when no payment exists for the given id.
var ErrNotFound = errors.New("payment not found")

// PaymentRepo persists payments and their append-only history.
type PaymentRepo struct {
	db *gorm.DB
}

func NewPaymentRepo(db *gorm.DB) *PaymentRepo {
	return &PaymentRepo{db: db}
}

func (r *PaymentRepo) Migrate() error {
	return r.db.AutoMigrate(&domain.Payment{}, &domain.History{})
}

func (r *PaymentRepo) ByID(ctx context.Context, id string) (*domain.Payment, error) {
	var p domain.Payment
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load payment %s: %w", id, err)
	}
	return &p, nil
}

func (r *PaymentRepo) ByReservationID(ctx context.Context, reservationID string) (*domain.Payment, error) {
	var p domain.Payment
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		First(&p, "reservation_id = ?", reservationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: reservation %s", ErrNotFound, reservationID)
		}
		return nil, fmt.Errorf("load payment for reservation %s: %w", reservationID, err)
	}
	return &p, nil
}

// SaveWithHistory writes the aggregate row and a history snapshot in one
// transaction. Dedupe keys passed as marks are recorded in the same
// transaction; a key already owned by another committer rolls the whole write
// back with dedupe.ErrDuplicate.
func (r *PaymentRepo) SaveWithHistory(ctx context.Context, p *domain.Payment, marks ...string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(p).Error; err != nil {
			return fmt.Errorf("save payment %s: %w", p.ID, err)
		}
		h := domain.Snapshot(p, time.Now())
		if err := tx.Create(&h).Error; err != nil {
			return fmt.Errorf("append payment history %s: %w", p.ID, err)
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
}

// History returns the snapshots for one payment in recording order.
func (r *PaymentRepo) History(ctx context.Context, id string) ([]domain.History, error) {
	var out []domain.History
	if err := r.db.WithContext(ctx).
		Where("payment_id = ?", id).
		Order("recorded_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load payment history %s: %w", id, err)
	}
	return out, nil
}
