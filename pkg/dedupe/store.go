package dedupe

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the shared, database-backed guard. It reads the same
// processed_events table that Mark writes inside the repositories'
// transactions, so a positive Seen always reflects a committed application.
type Store struct {
	db *gorm.DB
}

// NewStore wraps the given database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the processed_events table.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Record{})
}

// Seen reports whether key was recorded by a committed application.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("dedupe_key = ?", key).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("dedupe lookup %s: %w", key, err)
	}
	return n > 0, nil
}

// Mark inserts the key on the given transaction handle. The primary-key
// constraint is the atomic check-and-set: the caller whose transaction
// commits first owns the key, every other committer gets admitted == false
// and must abort as a duplicate.
func Mark(tx *gorm.DB, key string) (bool, error) {
	rec := Record{DedupeKey: key, ProcessedAt: time.Now().UTC()}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return false, fmt.Errorf("dedupe mark %s: %w", key, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Sweep removes records applied before cutoff. Run it on a timer with the
// broker's retention window as the cutoff.
func (s *Store) Sweep(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("processed_at < ?", cutoff).
		Delete(&Record{})
	if res.Error != nil {
		return 0, fmt.Errorf("dedupe sweep: %w", res.Error)
	}
	return res.RowsAffected, nil
}
