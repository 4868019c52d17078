// Package worker routes every notification-worthy saga event into the
// notification service.
package worker

import (
	"context"
	"log/slog"

	"github.com/Sparta-CareNest/carenest-backend/pkg/events"
	"github.com/Sparta-CareNest/carenest-backend/pkg/mq"
	"github.com/Sparta-CareNest/carenest-backend/services/notification-service/internal/service"
)

// Topics lists what the notification participant subscribes to.
var Topics = []events.Topic{
	events.TopicReservationCreated,
	events.TopicPaymentCompleted,
	events.TopicPaymentCancelled,
	events.TopicNotificationRequested,
	events.TopicSettlementCreated,
}

// Handler builds the consumer handler.
func Handler(svc *service.NotificationService, log *slog.Logger) mq.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, d mq.Delivery) mq.Outcome {
		env, err := events.Unmarshal(d.Body)
		if err != nil {
			return mq.NonRetryable(err)
		}
		return svc.Apply(ctx, d.Topic, env)
	}
}
