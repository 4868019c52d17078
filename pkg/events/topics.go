package events

// Topic is a broker routing key. The set of topics is closed: every topic a
// service publishes or subscribes to must be listed here, there is no dynamic
// topic creation at runtime.
type Topic string

const (
	TopicReservationCreated       Topic = "reservation.created"
	TopicReservationStatusChanged Topic = "reservation.status-changed"
	TopicReservationCancelled     Topic = "reservation.cancelled"

	TopicPaymentCompleted Topic = "payment.completed"
	TopicPaymentCancelled Topic = "payment.cancelled"

	TopicCaregiverAcceptRequested Topic = "caregiver.accept-requested"
	TopicNotificationRequested    Topic = "notification.requested"
	TopicSettlementCreated        Topic = "settlement.created"
)

// DefaultDeadLetterSuffix is appended to a source topic to derive its
// dead-letter topic.
const DefaultDeadLetterSuffix = ".dlq"

var registry = map[Topic]struct{}{
	TopicReservationCreated:       {},
	TopicReservationStatusChanged: {},
	TopicReservationCancelled:     {},
	TopicPaymentCompleted:         {},
	TopicPaymentCancelled:         {},
	TopicCaregiverAcceptRequested: {},
	TopicNotificationRequested:    {},
	TopicSettlementCreated:        {},
}

// Registered reports whether t is part of the closed topic set.
func Registered(t Topic) bool {
	_, ok := registry[t]
	return ok
}

// Topics returns every registered topic.
func Topics() []Topic {
	out := make([]Topic, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	return out
}

// DeadLetter derives the dead-letter topic for a source topic. An empty
// suffix falls back to DefaultDeadLetterSuffix.
func DeadLetter(t Topic, suffix string) Topic {
	if suffix == "" {
		suffix = DefaultDeadLetterSuffix
	}
	return t + Topic(suffix)
}

func (t Topic) String() string { return string(t) }
