package kafka_middleware

import (
	"context"
	"time"

	"checkpost/pkg/kafka"
	"checkpost/pkg/logger"
)

func LoggingProducerMiddleware(log *logger.Logger) kafka.ProducerMiddleware {
	return func(ctx context.Context, msgs []kafka.Message, next kafka.PublishFunc) error {
		start := time.Now()
		first := msgs[0]

		err := next(ctx, msgs)

		attrs := []any{
			"topic", first.Topic,
			"messages", len(msgs),
			"first_key", first.Key,
			"event_type", first.GetEventType(),
			"batch_id", first.GetBatchID(),
			"duration", time.Since(start),
		}
		if err != nil {
			log.Error("failed to publish messages", append(attrs, "error", err)...)
			return err
		}
		log.Debug("published messages", attrs...)
		return nil
	}
}

func LoggingConsumerMiddleware(log *logger.Logger) kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()

		err := next(ctx, msg)

		attrs := []any{
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", msg.Key,
			"event_id", msg.GetEventID(),
			"event_type", msg.GetEventType(),
			"retry_count", msg.GetRetryCount(),
			"duration", time.Since(start),
		}
		if err != nil {
			log.Error("failed to process message", append(attrs, "error", err)...)
			return err
		}
		log.Info("processed message", attrs...)
		return nil
	}
}
