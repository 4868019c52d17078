package mq

import (
	"time"

	"github.com/Sparta-CareNest/carenest-backend/pkg/config"
)

// RetryPolicy bounds how often a retryable handler failure is reattempted and
// how long to wait between attempts.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt. A
	// failing handler therefore runs MaxRetries+1 times in total.
	MaxRetries int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// Multiplier grows the delay after each retry.
	Multiplier float64

	// MaxBackoff caps the delay.
	MaxBackoff time.Duration
}

// DefaultRetryPolicy matches the configuration defaults.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:     3,
	InitialBackoff: 500 * time.Millisecond,
	Multiplier:     2.0,
	MaxBackoff:     10 * time.Second,
}

// PolicyFromConfig lifts the shared saga configuration into a policy.
func PolicyFromConfig(cfg config.Saga) RetryPolicy {
	return RetryPolicy{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		Multiplier:     cfg.BackoffMultiplier,
		MaxBackoff:     cfg.MaxBackoff,
	}
}

// Backoff returns the delay before retry number retry (1-based).
func (p RetryPolicy) Backoff(retry int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < retry; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}
