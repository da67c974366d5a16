package service

import (
	"context"

	"checkpost/pkg/model"
)

// EventPublisher announces stored batches and rows that need review.
type EventPublisher interface {
	PublishBatchIngested(ctx context.Context, evt *model.BatchIngestedEvent) error
	PublishStopReviews(ctx context.Context, evts []model.StopReviewEvent) error
}

// NopPublisher drops every event. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishBatchIngested(context.Context, *model.BatchIngestedEvent) error {
	return nil
}

func (NopPublisher) PublishStopReviews(context.Context, []model.StopReviewEvent) error {
	return nil
}
