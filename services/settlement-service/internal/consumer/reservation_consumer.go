// Package consumer routes reservation events into the settlement service.
package consumer

import (
	"context"
	"log/slog"

	"github.com/Sparta-CareNest/carenest-backend/pkg/events"
	"github.com/Sparta-CareNest/carenest-backend/pkg/mq"
	"github.com/Sparta-CareNest/carenest-backend/services/settlement-service/internal/service"
)

// Topics lists what the settlement participant subscribes to.
var Topics = []events.Topic{
	events.TopicReservationStatusChanged,
}

// Handler builds the consumer handler.
func Handler(svc *service.SettlementService, log *slog.Logger) mq.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, d mq.Delivery) mq.Outcome {
		env, err := events.Unmarshal(d.Body)
		if err != nil {
			return mq.NonRetryable(err)
		}
		switch d.Topic {
		case events.TopicReservationStatusChanged:
			return svc.ApplyStatusChanged(ctx, env)
		default:
			log.Debug("skipping unexpected topic",
				slog.String("topic", string(d.Topic)),
				slog.String("message_id", d.MessageID))
			return mq.Success()
		}
	}
}
