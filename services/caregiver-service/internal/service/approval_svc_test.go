package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sparta-CareNest/carenest-backend/pkg/events"
	"github.com/Sparta-CareNest/carenest-backend/pkg/mq"
	"github.com/Sparta-CareNest/carenest-backend/services/caregiver-service/internal/domain"
	"github.com/Sparta-CareNest/carenest-backend/services/caregiver-service/internal/repository"
)

type fakeRepo struct {
	byReservation map[string]*domain.Approval
	createErr     error
	saveErr       error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byReservation: map[string]*domain.Approval{}}
}

func (r *fakeRepo) CreateIfAbsent(_ context.Context, a *domain.Approval) (bool, error) {
	if r.createErr != nil {
		return false, r.createErr
	}
	if _, ok := r.byReservation[a.ReservationID]; ok {
		return false, nil
	}
	cp := *a
	r.byReservation[a.ReservationID] = &cp
	return true, nil
}

func (r *fakeRepo) ByReservationID(_ context.Context, reservationID string) (*domain.Approval, error) {
	a, ok := r.byReservation[reservationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) ListPending(_ context.Context, caregiverID string) ([]domain.Approval, error) {
	var out []domain.Approval
	for _, a := range r.byReservation {
		if a.CaregiverID == caregiverID && a.Status == domain.StatusPending {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeRepo) Save(_ context.Context, a *domain.Approval) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	cp := *a
	r.byReservation[a.ReservationID] = &cp
	return nil
}

func acceptRequested(t *testing.T, reservationID string) events.Envelope {
	t.Helper()
	env, err := events.New(events.TopicCaregiverAcceptRequested, reservationID, events.CaregiverAcceptRequested{
		ReservationID: reservationID,
		CaregiverID:   "caregiver-1",
		GuardianID:    "guardian-1",
	})
	require.NoError(t, err)
	return env
}

func statusChanged(t *testing.T, reservationID, from, to string) events.Envelope {
	t.Helper()
	env, err := events.New(events.TopicReservationStatusChanged, reservationID, events.ReservationStatusChanged{
		ReservationID:  reservationID,
		PreviousStatus: from,
		NewStatus:      to,
	})
	require.NoError(t, err)
	return env
}

func TestAcceptRequestedQueuesApproval(t *testing.T) {
	repo := newFakeRepo()
	svc := NewApprovalService(repo, nil)

	out := svc.ApplyAcceptRequested(context.Background(), acceptRequested(t, "res-1"))
	require.Equal(t, mq.KindSuccess, out.Kind)

	pending, err := svc.ListPending(context.Background(), "caregiver-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "res-1", pending[0].ReservationID)
	assert.Equal(t, domain.StatusPending, pending[0].Status)
}

func TestAcceptRequestedRedeliveryInsertsNothing(t *testing.T) {
	repo := newFakeRepo()
	svc := NewApprovalService(repo, nil)

	out := svc.ApplyAcceptRequested(context.Background(), acceptRequested(t, "res-1"))
	require.Equal(t, mq.KindSuccess, out.Kind)
	out = svc.ApplyAcceptRequested(context.Background(), acceptRequested(t, "res-1"))
	assert.Equal(t, mq.KindSuccess, out.Kind)

	pending, err := svc.ListPending(context.Background(), "caregiver-1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestAcceptRequestedMissingIDsIsPoison(t *testing.T) {
	svc := NewApprovalService(newFakeRepo(), nil)

	env, err := events.New(events.TopicCaregiverAcceptRequested, "res-1", events.CaregiverAcceptRequested{
		ReservationID: "res-1",
	})
	require.NoError(t, err)

	out := svc.ApplyAcceptRequested(context.Background(), env)
	assert.Equal(t, mq.KindNonRetryable, out.Kind)
}

func TestStatusChangedPastAcceptanceResolves(t *testing.T) {
	repo := newFakeRepo()
	svc := NewApprovalService(repo, nil)
	require.Equal(t, mq.KindSuccess,
		svc.ApplyAcceptRequested(context.Background(), acceptRequested(t, "res-1")).Kind)

	out := svc.ApplyStatusChanged(context.Background(), statusChanged(t, "res-1", "PENDING_ACCEPTANCE", "CONFIRMED"))
	require.Equal(t, mq.KindSuccess, out.Kind)

	pending, err := svc.ListPending(context.Background(), "caregiver-1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	a, err := repo.ByReservationID(context.Background(), "res-1")
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", a.Resolution)
	require.NotNil(t, a.ResolvedAt)
}

func TestUnrelatedStatusChangeLeavesQueueAlone(t *testing.T) {
	repo := newFakeRepo()
	svc := NewApprovalService(repo, nil)
	require.Equal(t, mq.KindSuccess,
		svc.ApplyAcceptRequested(context.Background(), acceptRequested(t, "res-1")).Kind)

	out := svc.ApplyStatusChanged(context.Background(), statusChanged(t, "res-1", "PENDING_PAYMENT", "PENDING_ACCEPTANCE"))
	require.Equal(t, mq.KindSuccess, out.Kind)

	pending, err := svc.ListPending(context.Background(), "caregiver-1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestCancelledBeforeQueueingIsNoop(t *testing.T) {
	svc := NewApprovalService(newFakeRepo(), nil)

	env, err := events.New(events.TopicReservationCancelled, "res-9", events.ReservationCancelled{
		ReservationID: "res-9",
	})
	require.NoError(t, err)

	out := svc.ApplyCancelled(context.Background(), env)
	assert.Equal(t, mq.KindSuccess, out.Kind)
}

func TestResolveTwiceKeepsFirstResolution(t *testing.T) {
	repo := newFakeRepo()
	svc := NewApprovalService(repo, nil)
	require.Equal(t, mq.KindSuccess,
		svc.ApplyAcceptRequested(context.Background(), acceptRequested(t, "res-1")).Kind)

	require.Equal(t, mq.KindSuccess,
		svc.ApplyStatusChanged(context.Background(), statusChanged(t, "res-1", "PENDING_ACCEPTANCE", "REJECTED")).Kind)
	require.Equal(t, mq.KindSuccess,
		svc.ApplyStatusChanged(context.Background(), statusChanged(t, "res-1", "PENDING_ACCEPTANCE", "CONFIRMED")).Kind)

	a, err := repo.ByReservationID(context.Background(), "res-1")
	require.NoError(t, err)
	assert.Equal(t, "REJECTED", a.Resolution)
}

func TestTransientStoreFailureIsRetryable(t *testing.T) {
	repo := newFakeRepo()
	repo.createErr = errors.New("connection reset")
	svc := NewApprovalService(repo, nil)

	out := svc.ApplyAcceptRequested(context.Background(), acceptRequested(t, "res-1"))
	assert.Equal(t, mq.KindRetryable, out.Kind)
}
