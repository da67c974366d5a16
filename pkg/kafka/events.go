package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	kafka_config "checkpost/pkg/kafka/config"
	"checkpost/pkg/logger"
	"checkpost/pkg/model"
)

const (
	EventBatchIngested = "stops.batch_ingested"
	EventReviewNeeded  = "stops.review_needed"

	EventSchemaVersion = "1"
	EventSource        = "checkpost-stops"
)

// StopEvents publishes stored batches to the ingested topic and rows that
// need review to the review topic.
type StopEvents struct {
	ingested *Producer
	review   *Producer
}

// NewStopEvents opens one producer per topic. Middleware applies to both.
func NewStopEvents(cfg *kafka_config.Config, log *logger.Logger, middleware ...ProducerMiddleware) (*StopEvents, error) {
	ingested, err := NewProducer(cfg, cfg.TopicStopsIngested, cfg.TopicDLQ, log)
	if err != nil {
		return nil, fmt.Errorf("ingested producer: %w", err)
	}
	review, err := NewProducer(cfg, cfg.TopicStopsReview, cfg.TopicDLQ, log)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("review producer: %w", err), ingested.Close())
	}
	for _, mw := range middleware {
		ingested.Use(mw)
		review.Use(mw)
	}
	return &StopEvents{ingested: ingested, review: review}, nil
}

func newStopEvents(ingested, review *Producer) *StopEvents {
	return &StopEvents{ingested: ingested, review: review}
}

func (e *StopEvents) PublishBatchIngested(ctx context.Context, evt *model.BatchIngestedEvent) error {
	msg, err := NewMessage().
		WithKey(evt.BatchID).
		WithValue(evt).
		WithEventType(EventBatchIngested).
		WithBatchID(evt.BatchID).
		WithSchemaVersion(EventSchemaVersion).
		WithSource(EventSource).
		WithTimestamp(evt.IngestedAt).
		Build()
	if err != nil {
		return err
	}
	return e.ingested.Publish(ctx, msg)
}

// PublishStopReviews sends one message per row, keyed by stop id so
// re-deliveries of the same row land on the same partition.
func (e *StopEvents) PublishStopReviews(ctx context.Context, evts []model.StopReviewEvent) error {
	if len(evts) == 0 {
		return nil
	}

	msgs := make([]Message, 0, len(evts))
	for _, evt := range evts {
		key := evt.StopID
		if key == "" {
			key = evt.BatchID + ":" + strconv.Itoa(evt.RowIndex)
		}
		msg, err := NewMessage().
			WithKey(key).
			WithValue(evt).
			WithEventType(EventReviewNeeded).
			WithBatchID(evt.BatchID).
			WithSchemaVersion(EventSchemaVersion).
			WithSource(EventSource).
			Build()
		if err != nil {
			return fmt.Errorf("review event for row %d: %w", evt.RowIndex, err)
		}
		msgs = append(msgs, msg)
	}
	return e.review.PublishBatch(ctx, msgs)
}

func (e *StopEvents) Close() error {
	return errors.Join(e.ingested.Close(), e.review.Close())
}
