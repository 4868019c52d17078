// Package mq wraps the AMQP broker: an outbound publisher with asynchronous
// delivery confirms and a consumer runner that applies the retry and
// dead-letter policy around every handler.
//
// Topics map to routing keys on one shared topic exchange. The delivery key
// of every message is the aggregate id, so all events for one aggregate are
// routed identically and consumed in publish order; ordering across
// aggregates is never guaranteed.
package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Sparta-CareNest/carenest-backend/pkg/config"
	"github.com/Sparta-CareNest/carenest-backend/pkg/events"
)

// Publisher sends domain events to the saga exchange. Publishes do not block
// on broker confirmation: the caller gets a PublishResult immediately and the
// confirm outcome is logged in the background. A failed publish is never
// retried here; the caller's local transaction has already committed, so the
// failure is surfaced through logs for manual reconciliation.
type Publisher struct {
	conn           *amqp.Connection
	ch             *amqp.Channel
	exchange       string
	confirmTimeout time.Duration
	log            *slog.Logger
}

// NewPublisher dials the broker, opens a confirm-mode channel and declares
// the saga topic exchange.
func NewPublisher(cfg config.Saga, log *slog.Logger) (*Publisher, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{
		conn:           conn,
		ch:             ch,
		exchange:       cfg.Exchange,
		confirmTimeout: cfg.PublishConfirmTimeout,
		log:            log,
	}, nil
}

// PublishResult is the future for one publish. Done is closed once the broker
// confirm (or its timeout) resolves; Err is valid after that.
type PublishResult struct {
	done chan struct{}
	err  error
}

// Done signals confirm resolution.
func (r *PublishResult) Done() <-chan struct{} { return r.done }

// Err returns the confirm failure, if any. Only meaningful after Done.
func (r *PublishResult) Err() error { return r.err }

// ResolvedResult builds an already-resolved result. Intended for fakes in
// tests and for synchronous publisher implementations.
func ResolvedResult(err error) *PublishResult {
	r := &PublishResult{done: make(chan struct{}), err: err}
	close(r.done)
	return r
}

// Publish sends env to topic with key as the delivery key (always the
// aggregate id). The returned result resolves asynchronously.
func (p *Publisher) Publish(ctx context.Context, topic events.Topic, key string, env events.Envelope) (*PublishResult, error) {
	if !events.Registered(topic) {
		return nil, fmt.Errorf("%w: %s", events.ErrUnregisteredTopic, topic)
	}
	body, err := env.Marshal()
	if err != nil {
		return nil, err
	}

	dc, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, string(topic), false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.EventID,
		CorrelationId: key,
		Timestamp:     env.OccurredAt,
		Body:          body,
		Headers:       amqp.Table{"x-aggregate-id": key},
	})
	if err != nil {
		p.log.Error("publish failed",
			slog.String("topic", string(topic)),
			slog.String("aggregate_id", key),
			slog.String("err", err.Error()))
		return nil, fmt.Errorf("publish %s: %w", topic, err)
	}

	res := &PublishResult{done: make(chan struct{})}
	go p.awaitConfirm(topic, key, env.EventID, dc, res)
	return res, nil
}

func (p *Publisher) awaitConfirm(topic events.Topic, key, eventID string, dc *amqp.DeferredConfirmation, res *PublishResult) {
	defer close(res.done)

	ctx, cancel := context.WithTimeout(context.Background(), p.confirmTimeout)
	defer cancel()

	acked, err := dc.WaitContext(ctx)
	switch {
	case err != nil:
		res.err = fmt.Errorf("confirm %s: %w", topic, err)
		p.log.Error("publish confirm timed out",
			slog.String("topic", string(topic)),
			slog.String("aggregate_id", key),
			slog.String("event_id", eventID),
			slog.String("err", err.Error()))
	case !acked:
		res.err = fmt.Errorf("publish %s: broker nack", topic)
		p.log.Error("publish nacked by broker",
			slog.String("topic", string(topic)),
			slog.String("aggregate_id", key),
			slog.String("event_id", eventID))
	default:
		p.log.Debug("publish confirmed",
			slog.String("topic", string(topic)),
			slog.String("aggregate_id", key),
			slog.String("event_id", eventID),
			slog.Uint64("delivery_tag", dc.DeliveryTag))
	}
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
