package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sparta-CareNest/carenest-backend/pkg/events"
	"github.com/Sparta-CareNest/carenest-backend/pkg/mq"
	"github.com/Sparta-CareNest/carenest-backend/services/settlement-service/internal/domain"
)

type fakeRepo struct {
	accruals    map[string]*domain.Accrual // keyed by reservation id
	settlements []*domain.Settlement
	createErr   error
	settleErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{accruals: map[string]*domain.Accrual{}}
}

func (r *fakeRepo) CreateAccrualIfAbsent(_ context.Context, a *domain.Accrual) (bool, error) {
	if r.createErr != nil {
		return false, r.createErr
	}
	if _, ok := r.accruals[a.ReservationID]; ok {
		return false, nil
	}
	cp := *a
	r.accruals[a.ReservationID] = &cp
	return true, nil
}

func (r *fakeRepo) CaregiversWithUnsettled(_ context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, a := range r.accruals {
		if a.SettlementID == "" && !seen[a.CaregiverID] {
			seen[a.CaregiverID] = true
			out = append(out, a.CaregiverID)
		}
	}
	return out, nil
}

func (r *fakeRepo) Unsettled(_ context.Context, caregiverID string) ([]domain.Accrual, error) {
	var out []domain.Accrual
	for _, a := range r.accruals {
		if a.CaregiverID == caregiverID && a.SettlementID == "" {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeRepo) CreateSettlement(_ context.Context, s *domain.Settlement, accrualIDs []string) error {
	if r.settleErr != nil {
		return r.settleErr
	}
	cp := *s
	r.settlements = append(r.settlements, &cp)
	for _, id := range accrualIDs {
		for _, a := range r.accruals {
			if a.ID == id {
				a.SettlementID = s.ID
			}
		}
	}
	return nil
}

func (r *fakeRepo) ByCaregiver(_ context.Context, caregiverID string) ([]domain.Settlement, error) {
	var out []domain.Settlement
	for _, s := range r.settlements {
		if s.CaregiverID == caregiverID {
			out = append(out, *s)
		}
	}
	return out, nil
}

type published struct {
	topic events.Topic
	env   events.Envelope
}

type fakePublisher struct {
	sent []published
}

func (p *fakePublisher) Publish(_ context.Context, topic events.Topic, _ string, env events.Envelope) (*mq.PublishResult, error) {
	p.sent = append(p.sent, published{topic: topic, env: env})
	return mq.ResolvedResult(nil), nil
}

func completedEnvelope(t *testing.T, reservationID string, amount int64) events.Envelope {
	t.Helper()
	env, err := events.New(events.TopicReservationStatusChanged, reservationID, events.ReservationStatusChanged{
		ReservationID:  reservationID,
		CaregiverID:    "caregiver-1",
		Amount:         amount,
		PreviousStatus: "CONFIRMED",
		NewStatus:      "COMPLETED",
	})
	require.NoError(t, err)
	return env
}

func TestCompletedReservationAccrues(t *testing.T) {
	repo := newFakeRepo()
	svc := NewSettlementService(repo, &fakePublisher{}, nil)

	out := svc.ApplyStatusChanged(context.Background(), completedEnvelope(t, "res-1", 120000))
	require.Equal(t, mq.KindSuccess, out.Kind)

	require.Len(t, repo.accruals, 1)
	assert.Equal(t, int64(120000), repo.accruals["res-1"].Amount)
}

func TestNonCompletedTransitionAccruesNothing(t *testing.T) {
	repo := newFakeRepo()
	svc := NewSettlementService(repo, &fakePublisher{}, nil)

	env, err := events.New(events.TopicReservationStatusChanged, "res-1", events.ReservationStatusChanged{
		ReservationID:  "res-1",
		CaregiverID:    "caregiver-1",
		Amount:         120000,
		PreviousStatus: "PENDING_PAYMENT",
		NewStatus:      "PENDING_ACCEPTANCE",
	})
	require.NoError(t, err)

	out := svc.ApplyStatusChanged(context.Background(), env)
	assert.Equal(t, mq.KindSuccess, out.Kind)
	assert.Empty(t, repo.accruals)
}

func TestRedeliveredCompletionAccruesOnce(t *testing.T) {
	repo := newFakeRepo()
	svc := NewSettlementService(repo, &fakePublisher{}, nil)

	env := completedEnvelope(t, "res-1", 120000)
	require.Equal(t, mq.KindSuccess, svc.ApplyStatusChanged(context.Background(), env).Kind)
	require.Equal(t, mq.KindSuccess, svc.ApplyStatusChanged(context.Background(), env).Kind)

	assert.Len(t, repo.accruals, 1)
}

func TestCompletionWithoutCaregiverIsPoison(t *testing.T) {
	svc := NewSettlementService(newFakeRepo(), &fakePublisher{}, nil)

	env, err := events.New(events.TopicReservationStatusChanged, "res-1", events.ReservationStatusChanged{
		ReservationID:  "res-1",
		PreviousStatus: "CONFIRMED",
		NewStatus:      "COMPLETED",
	})
	require.NoError(t, err)

	out := svc.ApplyStatusChanged(context.Background(), env)
	assert.Equal(t, mq.KindNonRetryable, out.Kind)
}

func TestCreateRollsAccrualsIntoOneSettlement(t *testing.T) {
	repo := newFakeRepo()
	pub := &fakePublisher{}
	svc := NewSettlementService(repo, pub, nil)

	for i, amount := range []int64{120000, 95000, 40000} {
		env := completedEnvelope(t, fmt.Sprintf("res-%d", i+1), amount)
		require.Equal(t, mq.KindSuccess, svc.ApplyStatusChanged(context.Background(), env).Kind)
	}

	st, err := svc.Create(context.Background(), "caregiver-1", "2025-06")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, int64(255000), st.Amount)
	assert.Equal(t, "2025-06", st.Period)

	require.Len(t, pub.sent, 1)
	assert.Equal(t, events.TopicSettlementCreated, pub.sent[0].topic)
	sc, err := events.Decode[events.SettlementCreated](pub.sent[0].env)
	require.NoError(t, err)
	assert.Equal(t, st.ID, sc.SettlementID)
	assert.Equal(t, int64(255000), sc.Amount)

	// Everything is claimed; a second run finds nothing.
	st2, err := svc.Create(context.Background(), "caregiver-1", "2025-06")
	require.NoError(t, err)
	assert.Nil(t, st2)
	require.Len(t, pub.sent, 1)
}

func TestSettleDueCoversEveryCaregiver(t *testing.T) {
	repo := newFakeRepo()
	pub := &fakePublisher{}
	svc := NewSettlementService(repo, pub, nil)

	a1, err := domain.NewAccrual("res-1", "caregiver-1", 100)
	require.NoError(t, err)
	a2, err := domain.NewAccrual("res-2", "caregiver-2", 200)
	require.NoError(t, err)
	for _, a := range []*domain.Accrual{a1, a2} {
		_, err := repo.CreateAccrualIfAbsent(context.Background(), a)
		require.NoError(t, err)
	}

	require.NoError(t, svc.SettleDue(context.Background()))

	assert.Len(t, repo.settlements, 2)
	assert.Len(t, pub.sent, 2)
}

func TestTransientStoreFailureIsRetryable(t *testing.T) {
	repo := newFakeRepo()
	repo.createErr = errors.New("connection reset")
	svc := NewSettlementService(repo, &fakePublisher{}, nil)

	out := svc.ApplyStatusChanged(context.Background(), completedEnvelope(t, "res-1", 120000))
	assert.Equal(t, mq.KindRetryable, out.Kind)
}
