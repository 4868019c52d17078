// Package dedupe implements the idempotency bookkeeping used by saga
// consumers to reject redelivered events. The business dedupe key is
// (aggregate id, event type): applying the same transition to the same
// aggregate twice is never legal, so an existing record for the key means a
// duplicate delivery.
//
// The record is written inside the same transaction as the state change it
// covers. A consumer therefore consults the guard before applying and relies
// on the primary-key constraint at commit time: if the process dies mid-way,
// nothing was recorded and the redelivery applies cleanly; if two consumers
// race, exactly one commit wins and the loser sees ErrDuplicate.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDuplicate is returned by repositories when the commit-time dedupe insert
// finds the key already recorded. The delivery was applied by someone else;
// the consumer acknowledges it without side effects.
var ErrDuplicate = errors.New("dedupe: event already applied")

// Guard answers whether a key has been recorded by a committed application.
// It is a pre-check only; the authoritative test is the insert that rides the
// state-changing transaction.
type Guard interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// Key builds the business idempotency key for an event applied to an
// aggregate.
func Key(aggregateID, eventType string) string {
	return fmt.Sprintf("%s:%s", aggregateID, eventType)
}

// Record is one applied key. Records may be swept once the broker's own
// retention window has passed, after which a legitimate redelivery is
// impossible.
type Record struct {
	DedupeKey   string    `gorm:"primaryKey;column:dedupe_key"`
	ProcessedAt time.Time `gorm:"index"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (Record) TableName() string { return "processed_events" }
