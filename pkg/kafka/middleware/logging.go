package kafka_middleware

import (
	"context"
	"time"

	"waitgate/pkg/kafka"
	"waitgate/pkg/logger"
)

// Logging logs every publish with its outcome and duration. Message keys
// carry email addresses and are left out.
func Logging(log *logger.Logger) kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()
		err := next(ctx, msg)

		l := log.With(
			"topic", msg.Topic,
			"event_id", msg.GetEventID(),
			"event_type", msg.GetEventType(),
			"correlation_id", msg.GetCorrelationID(),
			"value_bytes", len(msg.Value),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if err != nil {
			l.Error("Failed to publish message", "error", err)
			return err
		}
		l.Debug("Published message")
		return nil
	}
}
