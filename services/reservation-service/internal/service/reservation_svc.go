// Package service implements the reservation saga participant: local API
// operations on the aggregate plus the handlers applying remote payment
// events. Every mutation persists the aggregate and a history snapshot in one
// transaction and publishes only after that transaction commits.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Sparta-CareNest/carenest-backend/pkg/dedupe"
	"github.com/Sparta-CareNest/carenest-backend/pkg/events"
	"github.com/Sparta-CareNest/carenest-backend/pkg/mq"
	"github.com/Sparta-CareNest/carenest-backend/services/reservation-service/internal/domain"
)

// Repository is the persistence surface the service needs. Dedupe keys passed
// as marks commit atomically with the aggregate write; a lost race surfaces
// as dedupe.ErrDuplicate.
type Repository interface {
	ByID(ctx context.Context, id string) (*domain.Reservation, error)
	SaveWithHistory(ctx context.Context, r *domain.Reservation, marks ...string) error
	History(ctx context.Context, id string) ([]domain.History, error)
}

// Publisher sends domain events; the result future is observed by the
// publisher itself, callers never block on broker confirms.
type Publisher interface {
	Publish(ctx context.Context, topic events.Topic, key string, env events.Envelope) (*mq.PublishResult, error)
}

// ReservationService owns the Reservation state machine.
type ReservationService struct {
	repo  Repository
	guard dedupe.Guard
	pub   Publisher
	log   *slog.Logger
	now   func() time.Time
}

func NewReservationService(repo Repository, guard dedupe.Guard, pub Publisher, log *slog.Logger) *ReservationService {
	if log == nil {
		log = slog.Default()
	}
	return &ReservationService{repo: repo, guard: guard, pub: pub, log: log, now: time.Now}
}

// CreateInput is the local API request to book a caregiver.
type CreateInput struct {
	GuardianID  string
	CaregiverID string
	Amount      int64
}

// Create starts the saga: the reservation awaits payment, nothing else is
// published yet beyond the creation announcement for notification.
func (s *ReservationService) Create(ctx context.Context, in CreateInput) (*domain.Reservation, error) {
	r, err := domain.New(in.GuardianID, in.CaregiverID, in.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveWithHistory(ctx, r); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.TopicReservationCreated, r.ID, events.ReservationCreated{
		ReservationID: r.ID,
		GuardianID:    r.GuardianID,
		CaregiverID:   r.CaregiverID,
		Amount:        r.Amount,
	})
	return r, nil
}

// Get loads one reservation.
func (s *ReservationService) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	return s.repo.ByID(ctx, id)
}

// History lists the audit trail for one reservation.
func (s *ReservationService) History(ctx context.Context, id string) ([]domain.History, error) {
	return s.repo.History(ctx, id)
}

// Accept is the caregiver's confirmation of a paid reservation.
func (s *ReservationService) Accept(ctx context.Context, id string) (*domain.Reservation, error) {
	return s.transition(ctx, id, "", func(r *domain.Reservation) error {
		return r.Accept(s.now())
	})
}

// Reject is the caregiver's refusal of a paid reservation.
func (s *ReservationService) Reject(ctx context.Context, id string) (*domain.Reservation, error) {
	return s.transition(ctx, id, "", func(r *domain.Reservation) error {
		return r.Reject(s.now())
	})
}

// Complete closes out a confirmed reservation.
func (s *ReservationService) Complete(ctx context.Context, id string) (*domain.Reservation, error) {
	return s.transition(ctx, id, "", func(r *domain.Reservation) error {
		return r.Complete(s.now())
	})
}

// Cancel is the guardian-initiated cancellation. When a payment is already
// linked, reservation.cancelled is published so the payment participant can
// compensate.
func (s *ReservationService) Cancel(ctx context.Context, id, reason string) (*domain.Reservation, error) {
	r, err := s.repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.Cancel(reason, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.SaveWithHistory(ctx, r); err != nil {
		return nil, err
	}
	if r.PaymentID != "" {
		s.publishEvent(ctx, events.TopicReservationCancelled, r.ID, events.ReservationCancelled{
			ReservationID: r.ID,
			PaymentID:     r.PaymentID,
			Amount:        r.Amount,
			Reason:        reason,
		})
	}
	return r, nil
}

// transition applies a local-API state change and announces it.
func (s *ReservationService) transition(ctx context.Context, id, reason string, apply func(*domain.Reservation) error) (*domain.Reservation, error) {
	r, err := s.repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := r.Status
	if err := apply(r); err != nil {
		return nil, err
	}
	if err := s.repo.SaveWithHistory(ctx, r); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.TopicReservationStatusChanged, r.ID, events.ReservationStatusChanged{
		ReservationID:  r.ID,
		CaregiverID:    r.CaregiverID,
		Amount:         r.Amount,
		PreviousStatus: string(prev),
		NewStatus:      string(r.Status),
		Reason:         reason,
	})
	return r, nil
}

// ApplyPaymentCompleted consumes payment.completed: link the payment, move to
// PENDING_ACCEPTANCE and ask the caregiver side for approval.
func (s *ReservationService) ApplyPaymentCompleted(ctx context.Context, env events.Envelope) mq.Outcome {
	p, err := events.Decode[events.PaymentCompleted](env)
	if err != nil {
		return mq.NonRetryable(err)
	}
	if p.ReservationID == "" || p.PaymentID == "" {
		return mq.NonRetryablef("payment.completed %s: missing reservation or payment id", env.EventID)
	}

	key := dedupe.Key(p.ReservationID, env.EventType)
	seen, err := s.guard.Seen(ctx, key)
	if err != nil {
		return mq.Retryable(err)
	}
	if seen {
		s.log.Debug("duplicate delivery skipped",
			slog.String("dedupe_key", key),
			slog.String("event_id", env.EventID))
		return mq.Success()
	}

	r, err := s.repo.ByID(ctx, p.ReservationID)
	if err != nil {
		return mq.Retryable(err)
	}

	prev := r.Status
	switch err := r.LinkPayment(p.PaymentID); {
	case errors.Is(err, domain.ErrAlreadyApplied):
		s.log.Warn("payment already linked, skipping",
			slog.String("reservation_id", r.ID),
			slog.String("payment_id", p.PaymentID))
		return mq.Success()
	case errors.Is(err, domain.ErrStateConflict):
		s.log.Warn("payment.completed in conflicting state, skipping",
			slog.String("reservation_id", r.ID),
			slog.String("status", string(r.Status)),
			slog.String("err", err.Error()))
		return mq.Success()
	case errors.Is(err, domain.ErrInvalidInput):
		return mq.NonRetryable(err)
	case err != nil:
		return mq.Retryable(err)
	}

	if err := s.repo.SaveWithHistory(ctx, r, key); err != nil {
		if errors.Is(err, dedupe.ErrDuplicate) {
			s.log.Debug("lost dedupe race, delivery applied elsewhere",
				slog.String("dedupe_key", key))
			return mq.Success()
		}
		return mq.Retryable(err)
	}

	s.publishEvent(ctx, events.TopicReservationStatusChanged, r.ID, events.ReservationStatusChanged{
		ReservationID:  r.ID,
		CaregiverID:    r.CaregiverID,
		Amount:         r.Amount,
		PreviousStatus: string(prev),
		NewStatus:      string(r.Status),
	})
	s.publishEvent(ctx, events.TopicCaregiverAcceptRequested, r.ID, events.CaregiverAcceptRequested{
		ReservationID: r.ID,
		CaregiverID:   r.CaregiverID,
		GuardianID:    r.GuardianID,
	})
	return mq.Success()
}

// ApplyPaymentCancelled consumes payment.cancelled: the compensating
// transition. It fires regardless of how far the reservation has advanced;
// a reservation that is already cancelled short-circuits.
func (s *ReservationService) ApplyPaymentCancelled(ctx context.Context, env events.Envelope) mq.Outcome {
	p, err := events.Decode[events.PaymentCancelled](env)
	if err != nil {
		return mq.NonRetryable(err)
	}
	if p.ReservationID == "" {
		return mq.NonRetryablef("payment.cancelled %s: missing reservation id", env.EventID)
	}

	key := dedupe.Key(p.ReservationID, env.EventType)
	seen, err := s.guard.Seen(ctx, key)
	if err != nil {
		return mq.Retryable(err)
	}
	if seen {
		s.log.Debug("duplicate delivery skipped",
			slog.String("dedupe_key", key),
			slog.String("event_id", env.EventID))
		return mq.Success()
	}

	r, err := s.repo.ByID(ctx, p.ReservationID)
	if err != nil {
		return mq.Retryable(err)
	}

	prev := r.Status
	if err := r.CancelForPayment("payment cancelled upstream", s.now()); err != nil {
		if errors.Is(err, domain.ErrAlreadyApplied) {
			s.log.Debug("reservation already cancelled, compensation is a no-op",
				slog.String("reservation_id", r.ID))
			return mq.Success()
		}
		return mq.Retryable(err)
	}

	if err := s.repo.SaveWithHistory(ctx, r, key); err != nil {
		if errors.Is(err, dedupe.ErrDuplicate) {
			s.log.Debug("lost dedupe race, delivery applied elsewhere",
				slog.String("dedupe_key", key))
			return mq.Success()
		}
		return mq.Retryable(err)
	}

	s.publishEvent(ctx, events.TopicReservationStatusChanged, r.ID, events.ReservationStatusChanged{
		ReservationID:  r.ID,
		CaregiverID:    r.CaregiverID,
		Amount:         r.Amount,
		PreviousStatus: string(prev),
		NewStatus:      string(r.Status),
		Reason:         r.CancelReason,
	})
	return mq.Success()
}

// publishEvent publishes after the local transaction has committed. Failures
// are logged, never propagated: the committed state is the source of truth
// and a lost publish is an operational concern, not a caller error.
func (s *ReservationService) publishEvent(ctx context.Context, topic events.Topic, aggregateID string, payload any) {
	env, err := events.New(topic, aggregateID, payload)
	if err != nil {
		s.log.Error("build event failed",
			slog.String("topic", string(topic)),
			slog.String("aggregate_id", aggregateID),
			slog.String("err", err.Error()))
		return
	}
	if _, err := s.pub.Publish(ctx, topic, aggregateID, env); err != nil {
		s.log.Error("publish failed after commit",
			slog.String("topic", string(topic)),
			slog.String("aggregate_id", aggregateID),
			slog.String("err", err.Error()))
	}
}
