// Package consumer routes reservation events into the payment service.
package consumer

import (
	"context"
	"log/slog"

	"github.com/Sparta-CareNest/carenest-backend/pkg/events"
	"github.com/Sparta-CareNest/carenest-backend/pkg/mq"
	"github.com/Sparta-CareNest/carenest-backend/services/payment-service/internal/service"
)

// Topics lists what the payment participant subscribes to.
var Topics = []events.Topic{
	events.TopicReservationCancelled,
}

// Handler builds the consumer handler. Envelope decode failures are poison
// messages; unexpected topics are acknowledged and skipped.
func Handler(svc *service.PaymentService, log *slog.Logger) mq.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, d mq.Delivery) mq.Outcome {
		env, err := events.Unmarshal(d.Body)
		if err != nil {
			return mq.NonRetryable(err)
		}
		switch d.Topic {
		case events.TopicReservationCancelled:
			return svc.ApplyReservationCancelled(ctx, env)
		default:
			log.Debug("skipping unexpected topic",
				slog.String("topic", string(d.Topic)),
				slog.String("message_id", d.MessageID))
			return mq.Success()
		}
	}
}
