// Package events defines the canonical domain event envelope, the typed
// payloads carried by each event, and the closed registry of broker topics
// used by the saga choreography.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrUnregisteredTopic is returned when an envelope is built for a topic that
// is not part of the registry.
var ErrUnregisteredTopic = errors.New("events: topic not registered")

// Envelope is the wire shape of every domain event. Once published an
// envelope is never mutated; redelivery and dead-letter routing carry the
// identical bytes. Consumers must tolerate unknown fields and treat missing
// optional payload fields as not-yet-known.
type Envelope struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// New builds an envelope for a registered topic with a fresh event id and the
// current UTC timestamp.
func New(topic Topic, aggregateID string, payload any) (Envelope, error) {
	if !Registered(topic) {
		return Envelope{}, fmt.Errorf("%w: %s", ErrUnregisteredTopic, topic)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	return Envelope{
		EventID:     uuid.NewString(),
		EventType:   string(topic),
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		Payload:     raw,
	}, nil
}

// Decode unmarshals the envelope payload into T.
func Decode[T any](env Envelope) (T, error) {
	var t T
	if err := json.Unmarshal(env.Payload, &t); err != nil {
		var zero T
		return zero, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	return t, nil
}

// Unmarshal decodes raw broker bytes into an envelope.
func Unmarshal(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Marshal serialises the envelope for the broker.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
