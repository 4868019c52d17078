// Package service accrues caregiver earnings from completed reservations and
// periodically rolls them into settlements. Each settlement is announced via
// settlement.created for notification consumption.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Sparta-CareNest/carenest-backend/pkg/events"
	"github.com/Sparta-CareNest/carenest-backend/pkg/mq"
	"github.com/Sparta-CareNest/carenest-backend/services/settlement-service/internal/domain"
)

// Repository is the persistence surface the service needs.
type Repository interface {
	CreateAccrualIfAbsent(ctx context.Context, a *domain.Accrual) (bool, error)
	CaregiversWithUnsettled(ctx context.Context) ([]string, error)
	Unsettled(ctx context.Context, caregiverID string) ([]domain.Accrual, error)
	CreateSettlement(ctx context.Context, s *domain.Settlement, accrualIDs []string) error
	ByCaregiver(ctx context.Context, caregiverID string) ([]domain.Settlement, error)
}

// Publisher sends domain events without blocking on broker confirms.
type Publisher interface {
	Publish(ctx context.Context, topic events.Topic, key string, env events.Envelope) (*mq.PublishResult, error)
}

// SettlementService owns accruals and settlement runs.
type SettlementService struct {
	repo Repository
	pub  Publisher
	log  *slog.Logger
	now  func() time.Time
}

func NewSettlementService(repo Repository, pub Publisher, log *slog.Logger) *SettlementService {
	if log == nil {
		log = slog.Default()
	}
	return &SettlementService{repo: repo, pub: pub, log: log, now: time.Now}
}

// ApplyStatusChanged accrues earnings when a reservation completes. Other
// transitions are not the settlement service's business.
func (s *SettlementService) ApplyStatusChanged(ctx context.Context, env events.Envelope) mq.Outcome {
	sc, err := events.Decode[events.ReservationStatusChanged](env)
	if err != nil {
		return mq.NonRetryable(err)
	}
	if sc.NewStatus != "COMPLETED" {
		return mq.Success()
	}
	a, err := domain.NewAccrual(sc.ReservationID, sc.CaregiverID, sc.Amount)
	if err != nil {
		return mq.NonRetryable(err)
	}
	created, err := s.repo.CreateAccrualIfAbsent(ctx, a)
	if err != nil {
		return mq.Retryable(err)
	}
	if !created {
		s.log.Debug("reservation already accrued",
			slog.String("reservation_id", sc.ReservationID),
			slog.String("event_id", env.EventID))
		return mq.Success()
	}
	s.log.Info("earnings accrued",
		slog.String("reservation_id", sc.ReservationID),
		slog.String("caregiver_id", sc.CaregiverID),
		slog.Int64("amount", sc.Amount))
	return mq.Success()
}

// Create settles a caregiver's open accruals into one settlement and
// publishes settlement.created. With no open accruals it returns nil.
func (s *SettlementService) Create(ctx context.Context, caregiverID, period string) (*domain.Settlement, error) {
	accruals, err := s.repo.Unsettled(ctx, caregiverID)
	if err != nil {
		return nil, err
	}
	if len(accruals) == 0 {
		return nil, nil
	}

	var total int64
	ids := make([]string, 0, len(accruals))
	for _, a := range accruals {
		total += a.Amount
		ids = append(ids, a.ID)
	}

	st, err := domain.NewSettlement(caregiverID, period, total)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateSettlement(ctx, st, ids); err != nil {
		return nil, err
	}

	s.publishCreated(ctx, st, accruals[len(accruals)-1].ReservationID)
	return st, nil
}

// SettleDue runs one settlement pass over every caregiver with open accruals.
func (s *SettlementService) SettleDue(ctx context.Context) error {
	caregivers, err := s.repo.CaregiversWithUnsettled(ctx)
	if err != nil {
		return err
	}
	period := s.now().UTC().Format("2006-01")
	for _, cg := range caregivers {
		st, err := s.Create(ctx, cg, period)
		if err != nil {
			// One caregiver's failure must not abort the run; the next pass
			// picks their accruals up again.
			s.log.Error("settlement run failed for caregiver",
				slog.String("caregiver_id", cg),
				slog.String("err", err.Error()))
			continue
		}
		if st != nil {
			s.log.Info("settlement created",
				slog.String("settlement_id", st.ID),
				slog.String("caregiver_id", cg),
				slog.Int64("amount", st.Amount))
		}
	}
	return nil
}

// ListForCaregiver returns the caregiver's settlements.
func (s *SettlementService) ListForCaregiver(ctx context.Context, caregiverID string) ([]domain.Settlement, error) {
	return s.repo.ByCaregiver(ctx, caregiverID)
}

func (s *SettlementService) publishCreated(ctx context.Context, st *domain.Settlement, lastReservationID string) {
	env, err := events.New(events.TopicSettlementCreated, st.ID, events.SettlementCreated{
		SettlementID:  st.ID,
		CaregiverID:   st.CaregiverID,
		ReservationID: lastReservationID,
		Amount:        st.Amount,
		Period:        st.Period,
	})
	if err != nil {
		s.log.Error("build event failed",
			slog.String("topic", string(events.TopicSettlementCreated)),
			slog.String("settlement_id", st.ID),
			slog.String("err", err.Error()))
		return
	}
	if _, err := s.pub.Publish(ctx, events.TopicSettlementCreated, st.ID, env); err != nil {
		s.log.Error("publish failed after commit",
			slog.String("topic", string(events.TopicSettlementCreated)),
			slog.String("settlement_id", st.ID),
			slog.String("err", err.Error()))
	}
}
