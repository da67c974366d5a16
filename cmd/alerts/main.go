package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"checkpost/internal/stops/repository"
	"checkpost/internal/stops/service"
	"checkpost/internal/stops/validator"
	"checkpost/internal/stops/worker"
	"checkpost/pkg/config"
	"checkpost/pkg/kafka"
	kafka_config "checkpost/pkg/kafka/config"
	kafka_middleware "checkpost/pkg/kafka/middleware"
	"checkpost/pkg/metrics"
)

const ServiceName = "alerts"

// The alerts worker consumes batch-ingested events and re-evaluates the
// repeat-vehicle and search-arrest alerts. Prometheus metrics are served
// on the configured port.
func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	stopService := service.NewStopService(
		repository.NewMongoStopRepository(cfg),
		validator.NewStopValidator(cfg.Log),
		service.NopPublisher{},
		cfg,
	)
	alertsWorker := worker.NewAlertsWorker(stopService, cfg.Log)

	consumer, err := kafka.NewConsumer(kafkaCfg,
		kafkaCfg.TopicStopsIngested,
		kafkaCfg.AlertsGroupID,
		kafkaCfg.TopicDLQ,
		alertsWorker.Handle,
		cfg.Log,
	)
	if err != nil {
		cfg.Log.Fatal("Failed to create consumer", "error", err)
	}
	consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
	consumer.Use(kafka_middleware.MetricsConsumerMiddleware())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     metrics.Handler(),
		ReadTimeout: cfg.ReadTimeout,
	}
	go func() {
		cfg.Log.Info("Serving metrics", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cfg.Log.Error("Metrics server failed", "error", err)
		}
	}()

	cfg.Log.Info("Starting alerts consumer",
		"topic", kafkaCfg.TopicStopsIngested,
		"group_id", kafkaCfg.AlertsGroupID,
	)
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cfg.Log.Error("Consumer stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		cfg.Log.Error("Metrics server shutdown failed", "error", err)
	}
	if err := consumer.Close(); err != nil {
		cfg.Log.Error("Consumer close failed", "error", err)
	}
	cfg.Log.Info("Alerts worker stopped")
}
