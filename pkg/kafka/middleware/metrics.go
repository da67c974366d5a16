package kafka_middleware

import (
	"context"

	"checkpost/pkg/kafka"
	"checkpost/pkg/metrics"
)

// MetricsProducerMiddleware counts every message of a publish call against
// its outcome.
func MetricsProducerMiddleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msgs []kafka.Message, next kafka.PublishFunc) error {
		err := next(ctx, msgs)
		for _, msg := range msgs {
			metrics.ObservePublish(msg.Topic, err)
		}
		return err
	}
}

// MetricsConsumerMiddleware counts each handler attempt, retries included.
func MetricsConsumerMiddleware() kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		err := next(ctx, msg)
		metrics.ObserveConsume(msg.Topic, err)
		return err
	}
}
