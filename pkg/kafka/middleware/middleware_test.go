package kafka_middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"checkpost/pkg/kafka"
	"checkpost/pkg/logger"
	"checkpost/pkg/metrics"

	"github.com/stretchr/testify/assert"
)

func TestLoggingProducerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: logger.DEBUG, Output: &buf})
	mw := LoggingProducerMiddleware(log)

	msgs := []kafka.Message{{Topic: "stops.ingested", Key: "batch-1", Headers: map[string]string{kafka.HeaderBatchID: "batch-1"}}}

	err := mw(context.Background(), msgs, func(context.Context, []kafka.Message) error { return nil })
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), `"msg":"published messages"`)
	assert.Contains(t, buf.String(), `"batch_id":"batch-1"`)

	buf.Reset()
	boom := errors.New("boom")
	err = mw(context.Background(), msgs, func(context.Context, []kafka.Message) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
}

func TestLoggingConsumerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Output: &buf})
	mw := LoggingConsumerMiddleware(log)

	msg := kafka.Message{Topic: "stops.ingested", Offset: 42, Headers: map[string]string{}}
	assert.NoError(t, mw(context.Background(), msg, func(context.Context, kafka.Message) error { return nil }))
	assert.Contains(t, buf.String(), `"offset":42`)
}

func TestMetricsMiddleware(t *testing.T) {
	producer := MetricsProducerMiddleware()
	consumer := MetricsConsumerMiddleware()
	msgs := []kafka.Message{{Topic: "mw.test.topic"}, {Topic: "mw.test.topic"}}

	_ = producer(context.Background(), msgs, func(context.Context, []kafka.Message) error { return nil })
	_ = consumer(context.Background(), msgs[0], func(context.Context, kafka.Message) error { return errors.New("x") })

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	assert.Contains(t, string(body), `checkpost_kafka_publishes_total{result="ok",topic="mw.test.topic"} 2`)
	assert.Contains(t, string(body), `checkpost_kafka_consumed_total{result="error",topic="mw.test.topic"} 1`)
}
