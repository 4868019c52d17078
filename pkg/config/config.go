// Package config holds the shared saga configuration. It is loaded once per
// service binary and passed down; consumer and publisher construction never
// re-reads the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Saga carries the broker endpoint and the retry/dead-letter policy shared by
// every participant.
type Saga struct {
	// Broker
	RabbitURL string `envconfig:"RABBIT_URL" required:"true"`
	Exchange  string `envconfig:"SAGA_EXCHANGE" default:"carenest.saga"`
	GroupID   string `envconfig:"CONSUMER_GROUP_ID" default:""`

	// Retry & dead-letter policy
	MaxRetries        int           `envconfig:"MAX_RETRIES" default:"3"`
	InitialBackoff    time.Duration `envconfig:"INITIAL_BACKOFF" default:"500ms"`
	BackoffMultiplier float64       `envconfig:"BACKOFF_MULTIPLIER" default:"2.0"`
	MaxBackoff        time.Duration `envconfig:"MAX_BACKOFF" default:"10s"`
	DeadLetterSuffix  string        `envconfig:"DEAD_LETTER_SUFFIX" default:".dlq"`

	// Consumer resources
	Prefetch    int `envconfig:"CONSUMER_PREFETCH" default:"8"`
	Concurrency int `envconfig:"CONSUMER_CONCURRENCY" default:"4"`

	// Timeouts for outbound calls; a hung dependency must not stall the
	// queue behind it.
	HandlerTimeout        time.Duration `envconfig:"HANDLER_TIMEOUT" default:"30s"`
	PublishConfirmTimeout time.Duration `envconfig:"PUBLISH_CONFIRM_TIMEOUT" default:"5s"`
}

// App is the per-service configuration: the shared saga block plus service
// local settings.
type App struct {
	Saga

	PGReservationDSN  string `envconfig:"PG_RESERVATION_DSN"`
	PGPaymentDSN      string `envconfig:"PG_PAYMENT_DSN"`
	PGCaregiverDSN    string `envconfig:"PG_CAREGIVER_DSN"`
	PGNotificationDSN string `envconfig:"PG_NOTIFICATION_DSN"`
	PGSettlementDSN   string `envconfig:"PG_SETTLEMENT_DSN"`

	// Payment gateway (Omise)
	OmisePublicKey string `envconfig:"OMISE_PUBLIC_KEY"`
	OmiseSecretKey string `envconfig:"OMISE_SECRET_KEY"`

	// How often the settlement service rolls accrued earnings into
	// settlements.
	SettleInterval time.Duration `envconfig:"SETTLE_INTERVAL" default:"24h"`
}

// Load reads configuration from the environment and validates the saga block.
func Load() (App, error) {
	var c App
	if err := envconfig.Process("", &c); err != nil {
		return App{}, err
	}
	if err := c.Saga.Validate(); err != nil {
		return App{}, err
	}
	return c, nil
}

// Validate rejects values the retry policy cannot work with.
func (s Saga) Validate() error {
	if s.MaxRetries < 0 {
		return fmt.Errorf("config: MAX_RETRIES must be >= 0, got %d", s.MaxRetries)
	}
	if s.InitialBackoff <= 0 {
		return fmt.Errorf("config: INITIAL_BACKOFF must be positive, got %s", s.InitialBackoff)
	}
	if s.BackoffMultiplier < 1 {
		return fmt.Errorf("config: BACKOFF_MULTIPLIER must be >= 1, got %g", s.BackoffMultiplier)
	}
	if s.MaxBackoff < s.InitialBackoff {
		return fmt.Errorf("config: MAX_BACKOFF %s is below INITIAL_BACKOFF %s", s.MaxBackoff, s.InitialBackoff)
	}
	if s.Concurrency <= 0 {
		return fmt.Errorf("config: CONSUMER_CONCURRENCY must be positive, got %d", s.Concurrency)
	}
	return nil
}
