package mq

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Sparta-CareNest/carenest-backend/pkg/config"
	"github.com/Sparta-CareNest/carenest-backend/pkg/events"
)

// Delivery is one inbound message, decoupled from the AMQP types so handlers
// and tests never touch the broker client directly.
type Delivery struct {
	Topic       events.Topic
	Body        []byte
	MessageID   string
	AggregateID string
	Redelivered bool
}

// HandlerFunc processes one delivery and classifies the result. Handlers must
// be idempotent: at-least-once delivery means they will see duplicates.
type HandlerFunc func(ctx context.Context, d Delivery) Outcome

// Consumer subscribes a durable queue to a set of topics and runs the handler
// under the retry and dead-letter policy. Offsets always advance: after a
// terminal handler failure the original message is republished to the
// topic's dead-letter routing key and the delivery is acked, so a poison
// message never blocks the queue.
type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	exchange string
	queue    string
	topics   []events.Topic
	tag      string

	handler        HandlerFunc
	policy         RetryPolicy
	handlerTimeout time.Duration
	concurrency    int
	dlqSuffix      string

	// deadLetterMode marks a consumer of dead-letter topics: fail-fast, no
	// retries and no further dead-letter routing.
	deadLetterMode bool

	// publish sends a raw message to the exchange; swapped out in tests.
	publish func(ctx context.Context, key string, msg amqp.Publishing) error

	log *slog.Logger
}

// NewConsumer dials the broker, declares the exchange and a durable queue,
// binds the given topics and prepares the retry policy from cfg.
func NewConsumer(cfg config.Saga, queue string, topics []events.Topic, h HandlerFunc, log *slog.Logger) (*Consumer, error) {
	c := &Consumer{
		exchange:       cfg.Exchange,
		queue:          queue,
		topics:         topics,
		tag:            consumerTag(cfg.GroupID, queue),
		handler:        h,
		policy:         PolicyFromConfig(cfg),
		handlerTimeout: cfg.HandlerTimeout,
		concurrency:    cfg.Concurrency,
		dlqSuffix:      cfg.DeadLetterSuffix,
		log:            log,
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if err := c.connect(cfg, topicKeys(topics)); err != nil {
		return nil, err
	}
	return c, nil
}

// NewDeadLetterConsumer builds the low-concurrency inspection consumer for
// the dead-letter topics derived from the given source topics. It never
// retries and never re-routes: a failure is logged and the message acked.
func NewDeadLetterConsumer(cfg config.Saga, queue string, sources []events.Topic, h HandlerFunc, log *slog.Logger) (*Consumer, error) {
	keys := make([]string, 0, len(sources))
	dlqTopics := make([]events.Topic, 0, len(sources))
	for _, t := range sources {
		dt := events.DeadLetter(t, cfg.DeadLetterSuffix)
		dlqTopics = append(dlqTopics, dt)
		keys = append(keys, string(dt))
	}
	c := &Consumer{
		exchange:       cfg.Exchange,
		queue:          queue,
		topics:         dlqTopics,
		tag:            consumerTag(cfg.GroupID, queue),
		handler:        h,
		policy:         RetryPolicy{MaxRetries: 0, InitialBackoff: cfg.InitialBackoff, Multiplier: 1, MaxBackoff: cfg.MaxBackoff},
		handlerTimeout: cfg.HandlerTimeout,
		concurrency:    1,
		dlqSuffix:      cfg.DeadLetterSuffix,
		deadLetterMode: true,
		log:            log,
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if err := c.connect(cfg, keys); err != nil {
		return nil, err
	}
	return c, nil
}

func consumerTag(groupID, queue string) string {
	if groupID == "" {
		return queue
	}
	return groupID + "." + queue
}

func topicKeys(topics []events.Topic) []string {
	keys := make([]string, len(topics))
	for i, t := range topics {
		keys[i] = string(t)
	}
	return keys
}

func (c *Consumer) connect(cfg config.Saga, bindKeys []string) error {
	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	for _, key := range bindKeys {
		if err := ch.QueueBind(q.Name, key, c.exchange, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 8
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("set qos: %w", err)
	}
	c.conn = conn
	c.ch = ch
	c.publish = func(ctx context.Context, key string, msg amqp.Publishing) error {
		return ch.PublishWithContext(ctx, c.exchange, key, false, false, msg)
	}
	return nil
}

// Run consumes until ctx is cancelled or the broker closes the channel.
// Deliveries are spread over a bounded pool of workers, pinned per aggregate.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	c.dispatch(ctx, msgs)
	return nil
}

// dispatch fans deliveries out to a fixed set of worker lanes. The lane is
// chosen by hashing the aggregate id, so every delivery for one aggregate
// lands on the same worker and is handled serially, in arrival order.
// Deliveries for different aggregates still run in parallel.
func (c *Consumer) dispatch(ctx context.Context, msgs <-chan amqp.Delivery) {
	n := c.concurrency
	if n < 1 {
		n = 1
	}
	lanes := make([]chan amqp.Delivery, n)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan amqp.Delivery)
		wg.Add(1)
		go func(lane <-chan amqp.Delivery) {
			defer wg.Done()
			for d := range lane {
				c.handleOne(ctx, d)
			}
		}(lanes[i])
	}

	for {
		var d amqp.Delivery
		var ok bool
		select {
		case <-ctx.Done():
			ok = false
		case d, ok = <-msgs:
		}
		if !ok {
			break
		}
		lanes[laneFor(d, n)] <- d
	}
	for _, lane := range lanes {
		close(lane)
	}
	wg.Wait()
}

// laneFor pins a delivery to a worker by its correlation id (the aggregate
// id). Deliveries without one fall back to the message id, which spreads them
// without ordering guarantees.
func laneFor(d amqp.Delivery, n int) int {
	key := d.CorrelationId
	if key == "" {
		key = d.MessageId
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

func (c *Consumer) handleOne(ctx context.Context, raw amqp.Delivery) {
	d := Delivery{
		Topic:       events.Topic(raw.RoutingKey),
		Body:        raw.Body,
		MessageID:   raw.MessageId,
		AggregateID: raw.CorrelationId,
		Redelivered: raw.Redelivered,
	}

	out, attempts := applyPolicy(ctx, c.policy, c.handlerTimeout, c.handler, d, c.log)
	if out.Kind != KindSuccess {
		if c.deadLetterMode {
			c.log.Error("dead-letter handler failed, dropping",
				slog.String("topic", string(d.Topic)),
				slog.String("message_id", d.MessageID),
				slog.String("reason", out.reason()))
		} else {
			// A retryable failure cut short by shutdown has not exhausted
			// its retries. Leave the delivery unacked so the broker
			// redelivers it after restart.
			if out.Kind == KindRetryable && ctx.Err() != nil {
				c.log.Warn("shutdown interrupted retries, leaving delivery unacked",
					slog.String("topic", string(d.Topic)),
					slog.String("message_id", d.MessageID),
					slog.Int("attempts", attempts))
				return
			}
			if err := c.deadLetter(ctx, d, out, attempts); err != nil {
				// Without a dead-letter copy, acking would lose the
				// message. Unacked, the broker redelivers it.
				return
			}
		}
	}

	// Ack so the queue makes forward progress; the failed message lives on
	// under its dead-letter routing key.
	if err := raw.Ack(false); err != nil {
		c.log.Error("ack failed",
			slog.String("topic", string(d.Topic)),
			slog.String("message_id", d.MessageID),
			slog.String("err", err.Error()))
	}
}

// deadLetterPublishTimeout bounds the detached republish during shutdown.
const deadLetterPublishTimeout = 10 * time.Second

// deadLetter republishes the original message body, unmodified, to the
// topic's dead-letter routing key. The republish runs on a context detached
// from the consumer's: it must complete even while the consumer is shutting
// down, because the delivery is acked right after.
func (c *Consumer) deadLetter(ctx context.Context, d Delivery, out Outcome, attempts int) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deadLetterPublishTimeout)
	defer cancel()

	target := events.DeadLetter(d.Topic, c.dlqSuffix)
	err := c.publish(pctx, string(target), amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     d.MessageID,
		CorrelationId: d.AggregateID,
		Body:          d.Body,
		Headers: amqp.Table{
			"x-source-topic":  string(d.Topic),
			"x-failure-kind":  out.Kind.String(),
			"x-failure-cause": out.reason(),
			"x-attempts":      int32(attempts),
		},
	})
	if err != nil {
		c.log.Error("dead-letter publish failed",
			slog.String("topic", string(d.Topic)),
			slog.String("dlq", string(target)),
			slog.String("message_id", d.MessageID),
			slog.String("err", err.Error()))
		return err
	}
	c.log.Error("message dead-lettered",
		slog.String("topic", string(d.Topic)),
		slog.String("dlq", string(target)),
		slog.String("message_id", d.MessageID),
		slog.String("aggregate_id", d.AggregateID),
		slog.Int("attempts", attempts),
		slog.String("reason", out.reason()))
	return nil
}

// applyPolicy runs the handler under the retry policy. Non-retryable results
// and successes return immediately; retryable failures back off and retry
// until MaxRetries is exhausted. The returned attempt count includes the
// initial attempt.
func applyPolicy(ctx context.Context, p RetryPolicy, timeout time.Duration, h HandlerFunc, d Delivery, log *slog.Logger) (Outcome, int) {
	attempts := 0
	for {
		attempts++
		out := invoke(ctx, timeout, h, d)
		if out.Kind == KindSuccess || out.Kind == KindNonRetryable {
			return out, attempts
		}

		retriesDone := attempts - 1
		if retriesDone >= p.MaxRetries {
			return out, attempts
		}

		wait := p.Backoff(retriesDone + 1)
		log.Warn("handler failed, retrying",
			slog.String("topic", string(d.Topic)),
			slog.String("message_id", d.MessageID),
			slog.Int("attempt", attempts),
			slog.Duration("backoff", wait),
			slog.String("reason", out.reason()))

		select {
		case <-ctx.Done():
			return Retryable(ctx.Err()), attempts
		case <-time.After(wait):
		}
	}
}

func invoke(ctx context.Context, timeout time.Duration, h HandlerFunc, d Delivery) Outcome {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return h(ctx, d)
}

// Close releases the channel and connection.
func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
