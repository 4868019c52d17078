package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Sparta-CareNest/carenest-backend/services/caregiver-service/internal/domain"
)

// ErrNotFound is returned when no approval exists for the given reservation.
var ErrNotFound = errors.New("approval not found")

// ApprovalRepo persists caregiver approval work items.
type ApprovalRepo struct {
	db *gorm.DB
}

func NewApprovalRepo(db *gorm.DB) *ApprovalRepo {
	return &ApprovalRepo{db: db}
}

func (r *ApprovalRepo) Migrate() error {
	return r.db.AutoMigrate(&domain.Approval{})
}

// CreateIfAbsent inserts the approval unless one already exists for the same
// reservation. The unique index on reservation_id makes the insert the
// idempotency check; no separate read is needed.
func (r *ApprovalRepo) CreateIfAbsent(ctx context.Context, a *domain.Approval) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reservation_id"}},
			DoNothing: true,
		}).
		Create(a)
	if res.Error != nil {
		return false, fmt.Errorf("create approval for reservation %s: %w", a.ReservationID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *ApprovalRepo) ByReservationID(ctx context.Context, reservationID string) (*domain.Approval, error) {
	var a domain.Approval
	if err := r.db.WithContext(ctx).First(&a, "reservation_id = ?", reservationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: reservation %s", ErrNotFound, reservationID)
		}
		return nil, fmt.Errorf("load approval for reservation %s: %w", reservationID, err)
	}
	return &a, nil
}

// ListPending returns the caregiver's open work items, oldest first.
func (r *ApprovalRepo) ListPending(ctx context.Context, caregiverID string) ([]domain.Approval, error) {
	var out []domain.Approval
	if err := r.db.WithContext(ctx).
		Where("caregiver_id = ? AND status = ?", caregiverID, domain.StatusPending).
		Order("requested_at ASC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list pending approvals for %s: %w", caregiverID, err)
	}
	return out, nil
}

func (r *ApprovalRepo) Save(ctx context.Context, a *domain.Approval) error {
	if err := r.db.WithContext(ctx).Save(a).Error; err != nil {
		return fmt.Errorf("save approval %s: %w", a.ID, err)
	}
	return nil
}
