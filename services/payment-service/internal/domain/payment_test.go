package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newPending(t *testing.T) *Payment {
	t.Helper()
	p, err := New("res-1", "guardian-1", 120000, "card")
	require.NoError(t, err)
	return p
}

func TestNewValidatesInput(t *testing.T) {
	_, err := New("", "guardian-1", 100, "card")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = New("res-1", "guardian-1", 0, "card")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = New("res-1", "guardian-1", -5, "card")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCompleteFromPending(t *testing.T) {
	p := newPending(t)
	require.NoError(t, p.Complete(now))
	assert.Equal(t, StatusCompleted, p.Status)
	require.NotNil(t, p.CompletedAt)
	assert.Equal(t, now, *p.CompletedAt)
	assert.True(t, p.IsTerminal())
}

func TestCompleteTwiceIsAlreadyApplied(t *testing.T) {
	p := newPending(t)
	require.NoError(t, p.Complete(now))
	assert.ErrorIs(t, p.Complete(now.Add(time.Minute)), ErrAlreadyApplied)
	assert.Equal(t, now, *p.CompletedAt)
}

func TestCancelOnlyFromPending(t *testing.T) {
	p := newPending(t)
	require.NoError(t, p.Cancel("guardian changed mind", now))
	assert.Equal(t, StatusCancelled, p.Status)
	assert.Equal(t, "guardian changed mind", p.Reason)

	captured := newPending(t)
	require.NoError(t, captured.Complete(now))
	assert.ErrorIs(t, captured.Cancel("too late", now), ErrStateConflict)
}

func TestRefundOnlyFromCompleted(t *testing.T) {
	p := newPending(t)
	assert.ErrorIs(t, p.Refund("nothing captured", now), ErrStateConflict)

	require.NoError(t, p.Complete(now))
	require.NoError(t, p.Refund("reservation cancelled", now.Add(time.Hour)))
	assert.Equal(t, StatusRefunded, p.Status)
	require.NotNil(t, p.RefundedAt)

	assert.ErrorIs(t, p.Refund("again", now), ErrAlreadyApplied)
}

func TestTerminalStatusesNeverRevisited(t *testing.T) {
	cancelled := newPending(t)
	require.NoError(t, cancelled.Cancel("void", now))
	assert.ErrorIs(t, cancelled.Complete(now), ErrStateConflict)
	assert.ErrorIs(t, cancelled.Refund("no", now), ErrStateConflict)

	refunded := newPending(t)
	require.NoError(t, refunded.Complete(now))
	require.NoError(t, refunded.Refund("comp", now))
	assert.ErrorIs(t, refunded.Complete(now), ErrStateConflict)
	assert.ErrorIs(t, refunded.Cancel("no", now), ErrStateConflict)
}
