// Package service implements the payment saga participant. Local API calls
// drive the payment through the gateway; the reservation.cancelled consumer
// compensates payments whose reservation died. Every published payload is
// rebuilt from the aggregate's current state, never from request-scoped
// strings, so redelivered publishes stay consistent.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Sparta-CareNest/carenest-backend/pkg/dedupe"
	"github.com/Sparta-CareNest/carenest-backend/pkg/events"
	"github.com/Sparta-CareNest/carenest-backend/pkg/mq"
	"github.com/Sparta-CareNest/carenest-backend/services/payment-service/internal/domain"
	"github.com/Sparta-CareNest/carenest-backend/services/payment-service/internal/gateway"
)

// Repository is the persistence surface the service needs. Dedupe keys passed
// as marks commit atomically with the aggregate write; a lost race surfaces
// as dedupe.ErrDuplicate.
type Repository interface {
	ByID(ctx context.Context, id string) (*domain.Payment, error)
	ByReservationID(ctx context.Context, reservationID string) (*domain.Payment, error)
	SaveWithHistory(ctx context.Context, p *domain.Payment, marks ...string) error
	History(ctx context.Context, id string) ([]domain.History, error)
}

// Publisher sends domain events without blocking on broker confirms.
type Publisher interface {
	Publish(ctx context.Context, topic events.Topic, key string, env events.Envelope) (*mq.PublishResult, error)
}

// PaymentService owns the Payment state machine.
type PaymentService struct {
	repo  Repository
	guard dedupe.Guard
	gw    gateway.Gateway
	pub   Publisher
	log   *slog.Logger
	now   func() time.Time
}

func NewPaymentService(repo Repository, guard dedupe.Guard, gw gateway.Gateway, pub Publisher, log *slog.Logger) *PaymentService {
	if log == nil {
		log = slog.Default()
	}
	return &PaymentService{repo: repo, guard: guard, gw: gw, pub: pub, log: log, now: time.Now}
}

// PrepareInput is the local API request to authorize a charge.
type PrepareInput struct {
	ReservationID string
	GuardianID    string
	Amount        int64
	Method        string
	CardToken     string
}

// Prepare authorizes a charge at the gateway and records the pending payment.
// Nothing is published yet; the saga advances on Confirm.
func (s *PaymentService) Prepare(ctx context.Context, in PrepareInput) (*domain.Payment, error) {
	p, err := domain.New(in.ReservationID, in.GuardianID, in.Amount, in.Method)
	if err != nil {
		return nil, err
	}
	ref, err := s.gw.Prepare(ctx, gateway.PrepareRequest{
		ReservationID: in.ReservationID,
		Amount:        in.Amount,
		CardToken:     in.CardToken,
	})
	if err != nil {
		return nil, err
	}
	p.GatewayRef = ref
	if err := s.repo.SaveWithHistory(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get loads one payment.
func (s *PaymentService) Get(ctx context.Context, id string) (*domain.Payment, error) {
	return s.repo.ByID(ctx, id)
}

// History lists the audit trail for one payment.
func (s *PaymentService) History(ctx context.Context, id string) ([]domain.History, error) {
	return s.repo.History(ctx, id)
}

// Confirm captures the charge and completes the payment, announcing
// payment.completed to the rest of the saga.
func (s *PaymentService) Confirm(ctx context.Context, id string) (*domain.Payment, error) {
	p, err := s.repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gw.Confirm(ctx, p.GatewayRef); err != nil {
		return nil, err
	}
	if err := p.Complete(s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.SaveWithHistory(ctx, p); err != nil {
		return nil, err
	}
	s.publishCompleted(ctx, p)
	return p, nil
}

// Cancel voids a pending payment.
func (s *PaymentService) Cancel(ctx context.Context, id, reason string) (*domain.Payment, error) {
	p, err := s.repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gw.Cancel(ctx, p.GatewayRef); err != nil {
		return nil, err
	}
	if err := p.Cancel(reason, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.SaveWithHistory(ctx, p); err != nil {
		return nil, err
	}
	s.publishCancelled(ctx, p)
	return p, nil
}

// Refund returns a captured payment to the guardian.
func (s *PaymentService) Refund(ctx context.Context, id, reason string) (*domain.Payment, error) {
	p, err := s.repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gw.Refund(ctx, p.GatewayRef, p.Amount); err != nil {
		return nil, err
	}
	if err := p.Refund(reason, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.SaveWithHistory(ctx, p); err != nil {
		return nil, err
	}
	s.publishCancelled(ctx, p)
	return p, nil
}

// ApplyReservationCancelled consumes reservation.cancelled and compensates:
// a pending payment is voided, a captured one refunded, a terminal one left
// alone.
func (s *PaymentService) ApplyReservationCancelled(ctx context.Context, env events.Envelope) mq.Outcome {
	rc, err := events.Decode[events.ReservationCancelled](env)
	if err != nil {
		return mq.NonRetryable(err)
	}
	if rc.PaymentID == "" {
		return mq.NonRetryablef("reservation.cancelled %s: missing payment id", env.EventID)
	}

	key := dedupe.Key(rc.PaymentID, env.EventType)
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

	p, err := s.repo.ByID(ctx, rc.PaymentID)
	if err != nil {
		return mq.Retryable(err)
	}

	reason := rc.Reason
	if reason == "" {
		reason = "reservation cancelled"
	}

	// The gateway call sits outside the transaction, so a crash between a
	// successful gateway call and commit replays it on redelivery. Cancel
	// and Refund are idempotent on the gateway side.
	switch p.Status {
	case domain.StatusPending:
		if err := s.gw.Cancel(ctx, p.GatewayRef); err != nil {
			return s.classifyGatewayFailure(key, err)
		}
		if err := p.Cancel(reason, s.now()); err != nil {
			return mq.Retryable(err)
		}
	case domain.StatusCompleted:
		if err := s.gw.Refund(ctx, p.GatewayRef, p.Amount); err != nil {
			return s.classifyGatewayFailure(key, err)
		}
		if err := p.Refund(reason, s.now()); err != nil {
			return mq.Retryable(err)
		}
	default:
		s.log.Warn("compensation for terminal payment, skipping",
			slog.String("payment_id", p.ID),
			slog.String("status", string(p.Status)))
		return mq.Success()
	}

	if err := s.repo.SaveWithHistory(ctx, p, key); err != nil {
		if errors.Is(err, dedupe.ErrDuplicate) {
			s.log.Debug("lost dedupe race, delivery applied elsewhere",
				slog.String("dedupe_key", key))
			return mq.Success()
		}
		return mq.Retryable(err)
	}
	s.publishCancelled(ctx, p)
	return mq.Success()
}

func (s *PaymentService) classifyGatewayFailure(key string, err error) mq.Outcome {
	var ge *gateway.Error
	if errors.As(err, &ge) && !ge.Retryable {
		s.log.Error("gateway declined compensation",
			slog.String("dedupe_key", key),
			slog.String("code", ge.Code),
			slog.String("err", ge.Message))
		return mq.NonRetryable(err)
	}
	return mq.Retryable(err)
}

func (s *PaymentService) publishCompleted(ctx context.Context, p *domain.Payment) {
	s.publishEvent(ctx, events.TopicPaymentCompleted, p.ID, events.PaymentCompleted{
		PaymentID:     p.ID,
		ReservationID: p.ReservationID,
		GuardianID:    p.GuardianID,
		Amount:        p.Amount,
		Method:        p.Method,
	})
}

func (s *PaymentService) publishCancelled(ctx context.Context, p *domain.Payment) {
	s.publishEvent(ctx, events.TopicPaymentCancelled, p.ID, events.PaymentCancelled{
		PaymentID:     p.ID,
		ReservationID: p.ReservationID,
		GuardianID:    p.GuardianID,
		Amount:        p.Amount,
		Reason:        p.Reason,
		Refunded:      p.Status == domain.StatusRefunded,
	})
}

func (s *PaymentService) publishEvent(ctx context.Context, topic events.Topic, aggregateID string, payload any) {
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
