package mq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Sparta-CareNest/carenest-backend/pkg/config"
)

func TestBackoffSchedule(t *testing.T) {
	p := RetryPolicy{
		MaxRetries:     5,
		InitialBackoff: 100 * time.Millisecond,
		Multiplier:     2.0,
		MaxBackoff:     time.Second,
	}

	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 800*time.Millisecond, p.Backoff(4))
	// Capped at MaxBackoff from here on.
	assert.Equal(t, time.Second, p.Backoff(5))
	assert.Equal(t, time.Second, p.Backoff(6))
}

func TestBackoffInitialAboveCap(t *testing.T) {
	p := RetryPolicy{InitialBackoff: time.Minute, Multiplier: 2, MaxBackoff: time.Second}
	assert.Equal(t, time.Second, p.Backoff(1))
}

func TestPolicyFromConfig(t *testing.T) {
	cfg := config.Saga{
		MaxRetries:        7,
		InitialBackoff:    250 * time.Millisecond,
		BackoffMultiplier: 1.5,
		MaxBackoff:        5 * time.Second,
	}
	p := PolicyFromConfig(cfg)
	assert.Equal(t, 7, p.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, p.InitialBackoff)
	assert.Equal(t, 1.5, p.Multiplier)
	assert.Equal(t, 5*time.Second, p.MaxBackoff)
}
