package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Sparta-CareNest/carenest-backend/services/settlement-service/internal/domain"
)

// ErrNotFound is returned when no settlement exists for the given id.
var ErrNotFound = errors.New("settlement not found")

// SettlementRepo persists accruals and settlements.
type SettlementRepo struct {
	db *gorm.DB
}

func NewSettlementRepo(db *gorm.DB) *SettlementRepo {
	return &SettlementRepo{db: db}
}

func (r *SettlementRepo) Migrate() error {
	return r.db.AutoMigrate(&domain.Accrual{}, &domain.Settlement{})
}

// CreateAccrualIfAbsent inserts the accrual unless the reservation already
// accrued. The unique index carries the idempotency.
func (r *SettlementRepo) CreateAccrualIfAbsent(ctx context.Context, a *domain.Accrual) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reservation_id"}},
			DoNothing: true,
		}).
		Create(a)
	if res.Error != nil {
		return false, fmt.Errorf("create accrual for reservation %s: %w", a.ReservationID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CaregiversWithUnsettled returns the caregivers that have open accruals.
func (r *SettlementRepo) CaregiversWithUnsettled(ctx context.Context) ([]string, error) {
	var out []string
	if err := r.db.WithContext(ctx).
		Model(&domain.Accrual{}).
		Where("settlement_id = ''").
		Distinct("caregiver_id").
		Pluck("caregiver_id", &out).Error; err != nil {
		return nil, fmt.Errorf("list caregivers with unsettled accruals: %w", err)
	}
	return out, nil
}

// Unsettled returns a caregiver's open accruals, oldest first.
func (r *SettlementRepo) Unsettled(ctx context.Context, caregiverID string) ([]domain.Accrual, error) {
	var out []domain.Accrual
	if err := r.db.WithContext(ctx).
		Where("caregiver_id = ? AND settlement_id = ''", caregiverID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list unsettled accruals for %s: %w", caregiverID, err)
	}
	return out, nil
}

// CreateSettlement writes the settlement and claims its accruals in one
// transaction. Claiming filters on settlement_id = '' so a concurrent run
// cannot settle the same accrual twice.
func (r *SettlementRepo) CreateSettlement(ctx context.Context, s *domain.Settlement, accrualIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(s).Error; err != nil {
			return fmt.Errorf("create settlement for %s: %w", s.CaregiverID, err)
		}
		res := tx.Model(&domain.Accrual{}).
			Where("id IN ? AND settlement_id = ''", accrualIDs).
			Update("settlement_id", s.ID)
		if res.Error != nil {
			return fmt.Errorf("claim accruals for settlement %s: %w", s.ID, res.Error)
		}
		if res.RowsAffected != int64(len(accrualIDs)) {
			return fmt.Errorf("settlement %s: claimed %d of %d accruals, concurrent run won", s.ID, res.RowsAffected, len(accrualIDs))
		}
		return nil
	})
}

func (r *SettlementRepo) ByID(ctx context.Context, id string) (*domain.Settlement, error) {
	var s domain.Settlement
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load settlement %s: %w", id, err)
	}
	return &s, nil
}

// ByCaregiver returns a caregiver's settlements, newest first.
func (r *SettlementRepo) ByCaregiver(ctx context.Context, caregiverID string) ([]domain.Settlement, error) {
	var out []domain.Settlement
	if err := r.db.WithContext(ctx).
		Where("caregiver_id = ?", caregiverID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list settlements for %s: %w", caregiverID, err)
	}
	return out, nil
}
