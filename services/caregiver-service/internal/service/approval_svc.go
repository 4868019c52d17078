// Package service maintains the caregiver's approval work queue. The queue
// fills from caregiver.accept-requested and drains when the reservation
// leaves the acceptance stage, so a restarted worker always sees the truth.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Sparta-CareNest/carenest-backend/pkg/events"
	"github.com/Sparta-CareNest/carenest-backend/pkg/mq"
	"github.com/Sparta-CareNest/carenest-backend/services/caregiver-service/internal/domain"
	"github.com/Sparta-CareNest/carenest-backend/services/caregiver-service/internal/repository"
)

// Repository is the persistence surface the service needs.
type Repository interface {
	CreateIfAbsent(ctx context.Context, a *domain.Approval) (bool, error)
	ByReservationID(ctx context.Context, reservationID string) (*domain.Approval, error)
	ListPending(ctx context.Context, caregiverID string) ([]domain.Approval, error)
	Save(ctx context.Context, a *domain.Approval) error
}

// ApprovalService owns the approval work queue.
type ApprovalService struct {
	repo Repository
	log  *slog.Logger
	now  func() time.Time
}

func NewApprovalService(repo Repository, log *slog.Logger) *ApprovalService {
	if log == nil {
		log = slog.Default()
	}
	return &ApprovalService{repo: repo, log: log, now: time.Now}
}

// ListPending returns the caregiver's open approvals, oldest first.
func (s *ApprovalService) ListPending(ctx context.Context, caregiverID string) ([]domain.Approval, error) {
	return s.repo.ListPending(ctx, caregiverID)
}

// ApplyAcceptRequested queues an approval for the caregiver. The unique
// reservation_id insert carries the idempotency, so no dedupe guard is needed
// here; a redelivered event inserts zero rows.
func (s *ApprovalService) ApplyAcceptRequested(ctx context.Context, env events.Envelope) mq.Outcome {
	req, err := events.Decode[events.CaregiverAcceptRequested](env)
	if err != nil {
		return mq.NonRetryable(err)
	}
	a, err := domain.New(req.ReservationID, req.CaregiverID, req.GuardianID, s.now())
	if err != nil {
		return mq.NonRetryable(err)
	}
	created, err := s.repo.CreateIfAbsent(ctx, a)
	if err != nil {
		return mq.Retryable(err)
	}
	if !created {
		s.log.Debug("approval already queued",
			slog.String("reservation_id", req.ReservationID),
			slog.String("event_id", env.EventID))
		return mq.Success()
	}
	s.log.Info("approval queued",
		slog.String("reservation_id", req.ReservationID),
		slog.String("caregiver_id", req.CaregiverID))
	return mq.Success()
}

// ApplyStatusChanged resolves the work item once the reservation moves past
// acceptance, whichever way the decision went.
func (s *ApprovalService) ApplyStatusChanged(ctx context.Context, env events.Envelope) mq.Outcome {
	sc, err := events.Decode[events.ReservationStatusChanged](env)
	if err != nil {
		return mq.NonRetryable(err)
	}
	if sc.PreviousStatus != "PENDING_ACCEPTANCE" {
		return mq.Success()
	}
	return s.resolve(ctx, sc.ReservationID, sc.NewStatus)
}

// ApplyCancelled resolves the work item when the reservation is cancelled
// before the caregiver ever decided.
func (s *ApprovalService) ApplyCancelled(ctx context.Context, env events.Envelope) mq.Outcome {
	rc, err := events.Decode[events.ReservationCancelled](env)
	if err != nil {
		return mq.NonRetryable(err)
	}
	return s.resolve(ctx, rc.ReservationID, "CANCELLED")
}

func (s *ApprovalService) resolve(ctx context.Context, reservationID, resolution string) mq.Outcome {
	a, err := s.repo.ByReservationID(ctx, reservationID)
	if err != nil {
		// The approval may never have been queued; cancellations can land
		// before caregiver.accept-requested did.
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Debug("no approval to resolve",
				slog.String("reservation_id", reservationID))
			return mq.Success()
		}
		return mq.Retryable(err)
	}
	if a.Status == domain.StatusResolved {
		return mq.Success()
	}
	a.Resolve(resolution, s.now())
	if err := s.repo.Save(ctx, a); err != nil {
		return mq.Retryable(err)
	}
	s.log.Info("approval resolved",
		slog.String("reservation_id", reservationID),
		slog.String("resolution", resolution))
	return mq.Success()
}
