// Package gateway abstracts the external payment processor. The saga only
// needs prepare/confirm/cancel/refund returning success or a structured
// failure; the wire protocol behind those calls is not its concern.
package gateway

import "context"

// Error is a structured gateway failure. Retryable marks transient
// conditions (timeouts, 5xx) as opposed to declines.
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	if e.Code != "" {
		return "gateway: " + e.Code + ": " + e.Message
	}
	return "gateway: " + e.Message
}

// PrepareRequest describes the charge to authorize.
type PrepareRequest struct {
	ReservationID string
	Amount        int64
	Currency      string
	CardToken     string
}

// Gateway is the payment processor surface used by the payment participant.
type Gateway interface {
	// Prepare authorizes a charge and returns the processor's reference.
	Prepare(ctx context.Context, req PrepareRequest) (string, error)

	// Confirm captures a prepared charge.
	Confirm(ctx context.Context, ref string) error

	// Cancel voids a prepared, uncaptured charge.
	Cancel(ctx context.Context, ref string) error

	// Refund returns amount of a captured charge.
	Refund(ctx context.Context, ref string, amount int64) error
}
