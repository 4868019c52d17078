package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sparta-CareNest/carenest-backend/services/reservation-service/internal/domain"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func pendingAcceptance(t *testing.T) *domain.Reservation {
	t.Helper()
	r, err := domain.New("guardian-1", "caregiver-1", 10000)
	require.NoError(t, err)
	require.NoError(t, r.LinkPayment("pay-1"))
	return r
}

func TestNewReservation(t *testing.T) {
	r, err := domain.New("guardian-1", "caregiver-1", 10000)
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, domain.StatusPendingPayment, r.Status)
	assert.Empty(t, r.PaymentID)
}

func TestNewReservationValidation(t *testing.T) {
	_, err := domain.New("", "caregiver-1", 100)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = domain.New("guardian-1", "caregiver-1", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLinkPayment(t *testing.T) {
	r, _ := domain.New("guardian-1", "caregiver-1", 10000)

	require.NoError(t, r.LinkPayment("pay-1"))
	assert.Equal(t, domain.StatusPendingAcceptance, r.Status)
	assert.Equal(t, "pay-1", r.PaymentID)
}

// Applying the same payment.completed twice must converge to the same state.
func TestLinkPaymentDuplicateDelivery(t *testing.T) {
	r := pendingAcceptance(t)

	err := r.LinkPayment("pay-1")
	assert.ErrorIs(t, err, domain.ErrAlreadyApplied)
	assert.Equal(t, domain.StatusPendingAcceptance, r.Status)
	assert.Equal(t, "pay-1", r.PaymentID)
}

func TestLinkPaymentDifferentPaymentConflicts(t *testing.T) {
	r := pendingAcceptance(t)

	err := r.LinkPayment("pay-2")
	assert.ErrorIs(t, err, domain.ErrStateConflict)
	assert.Equal(t, "pay-1", r.PaymentID, "original link must survive")
}

func TestAcceptFromPendingAcceptance(t *testing.T) {
	r := pendingAcceptance(t)

	require.NoError(t, r.Accept(now))
	assert.Equal(t, domain.StatusConfirmed, r.Status)
	require.NotNil(t, r.AcceptedAt)
	assert.Equal(t, now, *r.AcceptedAt)
}

// acceptedAt is set at most once even if a later transition passes a new time.
func TestAcceptedAtSetOnce(t *testing.T) {
	r := pendingAcceptance(t)
	require.NoError(t, r.Accept(now))
	first := *r.AcceptedAt

	err := r.Accept(now.Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrStateConflict)
	assert.Equal(t, first, *r.AcceptedAt)
}

func TestRejectOnlyFromPendingAcceptance(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) *domain.Reservation
		wantErr error
	}{
		{
			name: "pending payment",
			setup: func(t *testing.T) *domain.Reservation {
				r, _ := domain.New("g", "c", 100)
				return r
			},
			wantErr: domain.ErrStateConflict,
		},
		{
			name:  "pending acceptance",
			setup: pendingAcceptance,
		},
		{
			name: "confirmed",
			setup: func(t *testing.T) *domain.Reservation {
				r := pendingAcceptance(t)
				require.NoError(t, r.Accept(now))
				return r
			},
			wantErr: domain.ErrStateConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.setup(t)
			before := r.Status
			err := r.Reject(now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, r.Status, "failed reject must never silently change status")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.StatusRejected, r.Status)
			assert.NotNil(t, r.RejectedAt)
		})
	}
}

func TestGuardianCancelWindows(t *testing.T) {
	t.Run("from pending payment", func(t *testing.T) {
		r, _ := domain.New("g", "c", 100)
		require.NoError(t, r.Cancel("changed plans", now))
		assert.Equal(t, domain.StatusCancelled, r.Status)
		assert.Equal(t, "changed plans", r.CancelReason)
	})

	t.Run("from pending acceptance", func(t *testing.T) {
		r := pendingAcceptance(t)
		require.NoError(t, r.Cancel("changed plans", now))
		assert.Equal(t, domain.StatusCancelled, r.Status)
	})

	t.Run("not from confirmed", func(t *testing.T) {
		r := pendingAcceptance(t)
		require.NoError(t, r.Accept(now))
		err := r.Cancel("too late", now)
		assert.ErrorIs(t, err, domain.ErrStateConflict)
		assert.Equal(t, domain.StatusConfirmed, r.Status)
	})

	t.Run("already cancelled is a no-op", func(t *testing.T) {
		r, _ := domain.New("g", "c", 100)
		require.NoError(t, r.Cancel("first", now))
		err := r.Cancel("second", now)
		assert.ErrorIs(t, err, domain.ErrAlreadyApplied)
		assert.Equal(t, "first", r.CancelReason)
	})
}

// The payment-side compensation fires no matter how far the happy path got.
func TestCancelForPaymentFromConfirmed(t *testing.T) {
	r := pendingAcceptance(t)
	require.NoError(t, r.Accept(now))

	require.NoError(t, r.CancelForPayment("payment cancelled upstream", now))
	assert.Equal(t, domain.StatusCancelled, r.Status)
	assert.Equal(t, "payment cancelled upstream", r.CancelReason)
	assert.NotNil(t, r.CancelledAt)
}

func TestCancelForPaymentIdempotent(t *testing.T) {
	r := pendingAcceptance(t)
	require.NoError(t, r.Cancel("guardian cancelled", now))
	first := *r.CancelledAt

	err := r.CancelForPayment("payment cancelled upstream", now.Add(time.Minute))
	assert.ErrorIs(t, err, domain.ErrAlreadyApplied)
	assert.Equal(t, "guardian cancelled", r.CancelReason)
	assert.Equal(t, first, *r.CancelledAt)
}

func TestComplete(t *testing.T) {
	r := pendingAcceptance(t)
	require.NoError(t, r.Accept(now))

	require.NoError(t, r.Complete(now.Add(2*time.Hour)))
	assert.Equal(t, domain.StatusCompleted, r.Status)
	require.NotNil(t, r.CompletedAt)

	err := r.Complete(now.Add(3 * time.Hour))
	assert.ErrorIs(t, err, domain.ErrStateConflict)
}

func TestSnapshot(t *testing.T) {
	r := pendingAcceptance(t)
	h := domain.Snapshot(r, now)
	assert.Equal(t, r.ID, h.ReservationID)
	assert.Equal(t, domain.StatusPendingAcceptance, h.Status)
	assert.Equal(t, "pay-1", h.PaymentID)
	assert.Equal(t, now, h.RecordedAt)
}
