// dlqwatch tails every dead-letter topic and logs the failed envelopes, so an
// operator can see what the saga gave up on without digging through the
// broker UI.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Sparta-CareNest/carenest-backend/pkg/config"
	"github.com/Sparta-CareNest/carenest-backend/pkg/events"
	"github.com/Sparta-CareNest/carenest-backend/pkg/mq"
	"github.com/Sparta-CareNest/carenest-backend/pkg/obs"
)

func main() {
	_ = godotenv.Load(".env")

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("service", "dlqwatch"))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", slog.String("err", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, "dlqwatch")
	if err != nil {
		log.Error("init tracer", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	cons, err := mq.NewDeadLetterConsumer(cfg.Saga, "saga.dlq.watch", events.Topics(), handler(log), log)
	if err != nil {
		log.Error("connect consumer", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer cons.Close()

	log.Info("dead-letter watcher started",
		slog.String("suffix", cfg.DeadLetterSuffix))

	if err := cons.Run(ctx); err != nil {
		log.Error("consumer stopped", slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// handler logs every dead-lettered envelope. Bodies that no longer parse as
// envelopes are logged raw; nothing here fails the consumer.
func handler(log *slog.Logger) mq.HandlerFunc {
	return func(_ context.Context, d mq.Delivery) mq.Outcome {
		env, err := events.Unmarshal(d.Body)
		if err != nil {
			log.Error("dead-lettered message with unparseable envelope",
				slog.String("topic", string(d.Topic)),
				slog.String("message_id", d.MessageID),
				slog.String("body", string(d.Body)))
			return mq.Success()
		}
		log.Warn("dead-lettered event",
			slog.String("topic", string(d.Topic)),
			slog.String("event_id", env.EventID),
			slog.String("event_type", env.EventType),
			slog.String("aggregate_id", env.AggregateID),
			slog.Time("occurred_at", env.OccurredAt),
			slog.String("payload", string(env.Payload)))
		return mq.Success()
	}
}
