// Package service turns saga events into stored notifications. The record is
// written first; pushing it to the recipient is best effort and a failed push
// is never retried through the broker.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sparta-CareNest/carenest-backend/pkg/dedupe"
	"github.com/Sparta-CareNest/carenest-backend/pkg/events"
	"github.com/Sparta-CareNest/carenest-backend/pkg/mq"
	"github.com/Sparta-CareNest/carenest-backend/services/notification-service/internal/domain"
	"github.com/Sparta-CareNest/carenest-backend/services/notification-service/internal/notifier"
)

// Repository is the persistence surface the service needs. Dedupe keys passed
// as marks commit atomically with the record; a lost race surfaces as
// dedupe.ErrDuplicate.
type Repository interface {
	Save(ctx context.Context, n *domain.Notification, marks ...string) error
	ByRecipient(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
}

// NotificationService consumes saga events and fans them out to recipients.
type NotificationService struct {
	repo      Repository
	guard     dedupe.Guard
	deliverer notifier.Deliverer
	log       *slog.Logger
	now       func() time.Time
}

func NewNotificationService(repo Repository, guard dedupe.Guard, d notifier.Deliverer, log *slog.Logger) *NotificationService {
	if log == nil {
		log = slog.Default()
	}
	return &NotificationService{repo: repo, guard: guard, deliverer: d, log: log, now: time.Now}
}

// ListForRecipient returns the recipient's stored notifications.
func (s *NotificationService) ListForRecipient(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	return s.repo.ByRecipient(ctx, recipientID, limit)
}

// Apply routes one envelope to its message builder. Every notification is a
// per-event artifact, so the dedupe key is the event id.
func (s *NotificationService) Apply(ctx context.Context, topic events.Topic, env events.Envelope) mq.Outcome {
	recipientID, title, body, err := s.compose(topic, env)
	if err != nil {
		return mq.NonRetryable(err)
	}
	if recipientID == "" {
		s.log.Debug("no recipient for event, skipping",
			slog.String("topic", string(topic)),
			slog.String("event_id", env.EventID))
		return mq.Success()
	}

	key := dedupe.Key(env.EventID, env.EventType)
	seen, err := s.guard.Seen(ctx, key)
	if err != nil {
		return mq.Retryable(err)
	}
	if seen {
		s.log.Debug("duplicate delivery skipped",
			slog.String("dedupe_key", key))
		return mq.Success()
	}

	n := domain.New(recipientID, title, body, string(topic), env.EventID)
	if err := s.repo.Save(ctx, n, key); err != nil {
		if errors.Is(err, dedupe.ErrDuplicate) {
			s.log.Debug("lost dedupe race, delivery applied elsewhere",
				slog.String("dedupe_key", key))
			return mq.Success()
		}
		return mq.Retryable(err)
	}

	// Best effort from here on. A recipient without a live channel still has
	// the stored record.
	if err := s.deliverer.Deliver(ctx, recipientID, title, body); err != nil {
		if errors.Is(err, notifier.ErrNotConnected) {
			s.log.Debug("recipient not connected",
				slog.String("recipient_id", recipientID))
		} else {
			s.log.Warn("delivery failed",
				slog.String("recipient_id", recipientID),
				slog.String("err", err.Error()))
		}
		return mq.Success()
	}
	n.MarkDelivered(s.now())
	if err := s.repo.Save(ctx, n); err != nil {
		s.log.Warn("failed to stamp delivery time",
			slog.String("notification_id", n.ID),
			slog.String("err", err.Error()))
	}
	return mq.Success()
}

// compose builds the human message for one event.
func (s *NotificationService) compose(topic events.Topic, env events.Envelope) (recipientID, title, body string, err error) {
	switch topic {
	case events.TopicReservationCreated:
		rc, derr := events.Decode[events.ReservationCreated](env)
		if derr != nil {
			return "", "", "", derr
		}
		return rc.GuardianID, "Reservation received",
			fmt.Sprintf("Your reservation %s is awaiting payment (%d).", rc.ReservationID, rc.Amount), nil

	case events.TopicPaymentCompleted:
		pc, derr := events.Decode[events.PaymentCompleted](env)
		if derr != nil {
			return "", "", "", derr
		}
		return pc.GuardianID, "Payment completed",
			fmt.Sprintf("Payment of %d for reservation %s was received.", pc.Amount, pc.ReservationID), nil

	case events.TopicPaymentCancelled:
		pc, derr := events.Decode[events.PaymentCancelled](env)
		if derr != nil {
			return "", "", "", derr
		}
		title := "Payment cancelled"
		body := fmt.Sprintf("Payment for reservation %s was cancelled.", pc.ReservationID)
		if pc.Refunded {
			title = "Payment refunded"
			body = fmt.Sprintf("Payment of %d for reservation %s was refunded.", pc.Amount, pc.ReservationID)
		}
		if pc.Reason != "" {
			body += " Reason: " + pc.Reason
		}
		return pc.GuardianID, title, body, nil

	case events.TopicNotificationRequested:
		nr, derr := events.Decode[events.NotificationRequested](env)
		if derr != nil {
			return "", "", "", derr
		}
		if nr.RecipientID == "" {
			return "", "", "", fmt.Errorf("notification.requested %s: missing recipient id", env.EventID)
		}
		return nr.RecipientID, nr.Title, nr.Body, nil

	case events.TopicSettlementCreated:
		sc, derr := events.Decode[events.SettlementCreated](env)
		if derr != nil {
			return "", "", "", derr
		}
		return sc.CaregiverID, "Settlement issued",
			fmt.Sprintf("A settlement of %d for period %s has been created.", sc.Amount, sc.Period), nil

	default:
		return "", "", "", nil
	}
}
