// Package metrics holds the Prometheus collectors shared by the checkpost
// binaries. Collectors register with the default registry on import.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "checkpost"

const (
	StatusInserted = "inserted"
	StatusFailed   = "failed"

	ResultOK        = "ok"
	ResultError     = "error"
	ResultDLQFailed = "dlq_failed"
)

var (
	ingestedRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_rows_total",
			Help:      "Cleaned stop rows handed to storage, by outcome.",
		},
		[]string{"format", "status"},
	)

	ingestBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_batches_total",
			Help:      "Ingest requests by format and result.",
		},
		[]string{"format", "result"},
	)

	reviewBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_batches_total",
			Help:      "Ingested batches with at least one row flagged for review.",
		},
	)

	reviewRowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_rows_total",
			Help:      "Ingested rows flagged for review.",
		},
	)

	normalizeDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "normalize_duration_seconds",
			Help:      "Time spent decoding and normalizing one upload.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"format"},
	)

	batchRowsHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_rows",
			Help:      "Rows per normalized upload.",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 15), // 10 to ~160k
		},
		[]string{"format"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)

	httpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	kafkaPublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publishes_total",
			Help:      "Event publishes by topic and result.",
		},
		[]string{"topic", "result"},
	)

	kafkaConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_consumed_total",
			Help:      "Consumed events by topic and handler result.",
		},
		[]string{"topic", "result"},
	)

	kafkaDeadLetteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_dead_lettered_total",
			Help:      "Messages sent to the dead-letter topic, by source topic and result. dlq_failed means the message was lost.",
		},
		[]string{"topic", "result"},
	)

	httpPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_panics_total",
			Help:      "Handler panics recovered, by method.",
		},
		[]string{"method"},
	)

	httpTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_timeouts_total",
			Help:      "Requests answered with 504 after the handler deadline, by method.",
		},
		[]string{"method"},
	)

	alertsRaisedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_raised_total",
			Help:      "Alerts raised by the alerts worker, by kind.",
		},
		[]string{"kind"},
	)
)

func ObserveIngest(format string, inserted, failed, needsReview int) {
	ingestedRowsTotal.WithLabelValues(format, StatusInserted).Add(float64(inserted))
	ingestedRowsTotal.WithLabelValues(format, StatusFailed).Add(float64(failed))
	ingestBatchesTotal.WithLabelValues(format, ResultOK).Inc()
	if needsReview > 0 {
		reviewBatchesTotal.Inc()
		reviewRowsTotal.Add(float64(needsReview))
	}
}

func ObserveIngestError(format string) {
	ingestBatchesTotal.WithLabelValues(format, ResultError).Inc()
}

func ObserveNormalize(format string, rows int, elapsed time.Duration) {
	normalizeDurationSeconds.WithLabelValues(format).Observe(elapsed.Seconds())
	batchRowsHistogram.WithLabelValues(format).Observe(float64(rows))
}

func ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpDurationSeconds.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func ObservePanic(method string) {
	httpPanicsTotal.WithLabelValues(method).Inc()
}

func ObserveTimeout(method string) {
	httpTimeoutsTotal.WithLabelValues(method).Inc()
}

func ObservePublish(topic string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	kafkaPublishesTotal.WithLabelValues(topic, result).Inc()
}

func ObserveConsume(topic string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	kafkaConsumedTotal.WithLabelValues(topic, result).Inc()
}

func ObserveDeadLetter(topic string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultDLQFailed
	}
	kafkaDeadLetteredTotal.WithLabelValues(topic, result).Inc()
}

func ObserveAlerts(kind string, n int) {
	alertsRaisedTotal.WithLabelValues(kind).Add(float64(n))
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
