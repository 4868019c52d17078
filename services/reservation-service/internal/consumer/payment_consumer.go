// Package consumer routes payment events into the reservation service.
package consumer

import (
	"context"
	"log/slog"

	"github.com/Sparta-CareNest/carenest-backend/pkg/events"
	"github.com/Sparta-CareNest/carenest-backend/pkg/mq"
	"github.com/Sparta-CareNest/carenest-backend/services/reservation-service/internal/service"
)

// Topics lists what the reservation participant subscribes to.
var Topics = []events.Topic{
	events.TopicPaymentCompleted,
	events.TopicPaymentCancelled,
}

// Handler builds the consumer handler. Envelope decode failures are poison
// messages; unexpected topics are acknowledged and skipped.
func Handler(svc *service.ReservationService, log *slog.Logger) mq.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, d mq.Delivery) mq.Outcome {
		env, err := events.Unmarshal(d.Body)
		if err != nil {
			return mq.NonRetryable(err)
		}
		switch d.Topic {
		case events.TopicPaymentCompleted:
			return svc.ApplyPaymentCompleted(ctx, env)
		case events.TopicPaymentCancelled:
			return svc.ApplyPaymentCancelled(ctx, env)
		default:
			log.Debug("skipping unexpected topic",
				slog.String("topic", string(d.Topic)),
				slog.String("message_id", d.MessageID))
			return mq.Success()
		}
	}
}
