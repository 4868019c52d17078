package mq

import "fmt"

// OutcomeKind classifies the result of a consumer handler.
type OutcomeKind int

const (
	// KindSuccess means the event was applied (or deliberately skipped,
	// e.g. duplicate delivery or state-conflict no-op).
	KindSuccess OutcomeKind = iota

	// KindRetryable means a transient failure: timeouts, temporary
	// unavailability of a downstream dependency.
	KindRetryable

	// KindNonRetryable means retrying cannot help: malformed payload,
	// unknown event shape. Routed straight to the dead-letter topic.
	KindNonRetryable
)

func (k OutcomeKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRetryable:
		return "retryable"
	case KindNonRetryable:
		return "non_retryable"
	default:
		return "unknown"
	}
}

// Outcome is returned by handlers instead of a bare error, so the retry and
// dead-letter policy never has to inspect error types.
type Outcome struct {
	Kind   OutcomeKind
	Reason error
}

// Success reports a handled delivery.
func Success() Outcome { return Outcome{Kind: KindSuccess} }

// Retryable reports a transient failure worth retrying with backoff.
func Retryable(reason error) Outcome { return Outcome{Kind: KindRetryable, Reason: reason} }

// NonRetryable reports a poison message that must go straight to dead-letter.
func NonRetryable(reason error) Outcome { return Outcome{Kind: KindNonRetryable, Reason: reason} }

// Retryablef is shorthand for Retryable with a formatted reason.
func Retryablef(format string, args ...any) Outcome {
	return Retryable(fmt.Errorf(format, args...))
}

// NonRetryablef is shorthand for NonRetryable with a formatted reason.
func NonRetryablef(format string, args ...any) Outcome {
	return NonRetryable(fmt.Errorf(format, args...))
}

func (o Outcome) reason() string {
	if o.Reason == nil {
		return ""
	}
	return o.Reason.Error()
}
