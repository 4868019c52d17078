package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Sparta-CareNest/carenest-backend/pkg/dedupe"
	"github.com/Sparta-CareNest/carenest-backend/services/reservation-service/internal/domain"
)

// ErrNotFound is returned when no reservation exists for the given id.
var ErrNotFound = errors.New("reservation not found")

// ReservationRepo persists reservations and their append-only history.
type ReservationRepo struct {
	db *gorm.DB
}

func NewReservationRepo(db *gorm.DB) *ReservationRepo {
	return &ReservationRepo{db: db}
}

func (r *ReservationRepo) Migrate() error {
	return r.db.AutoMigrate(&domain.Reservation{}, &domain.History{})
}

func (r *ReservationRepo) ByID(ctx context.Context, id string) (*domain.Reservation, error) {
	var res domain.Reservation
	if err := r.db.WithContext(ctx).First(&res, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load reservation %s: %w", id, err)
	}
	return &res, nil
}

// SaveWithHistory writes the aggregate row and a history snapshot in one
// transaction. The snapshot is taken after the transition, so replaying the
// history table yields every state the aggregate has been in. Dedupe keys
// passed as marks are recorded in the same transaction; if another committer
// already owns a key the whole write rolls back with dedupe.ErrDuplicate.
func (r *ReservationRepo) SaveWithHistory(ctx context.Context, res *domain.Reservation, marks ...string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(res).Error; err != nil {
			return fmt.Errorf("save reservation %s: %w", res.ID, err)
		}
		h := domain.Snapshot(res, time.Now())
		if err := tx.Create(&h).Error; err != nil {
			return fmt.Errorf("append reservation history %s: %w", res.ID, err)
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

// History returns the snapshots for one reservation in recording order.
func (r *ReservationRepo) History(ctx context.Context, id string) ([]domain.History, error) {
	var out []domain.History
	if err := r.db.WithContext(ctx).
		Where("reservation_id = ?", id).
		Order("recorded_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load reservation history %s: %w", id, err)
	}
	return out, nil
}
