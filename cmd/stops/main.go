package main

import (
	"checkpost/internal/stops/handler"
	"checkpost/internal/stops/repository"
	"checkpost/internal/stops/service"
	"checkpost/internal/stops/validator"
	"checkpost/pkg/app"
	"checkpost/pkg/config"
	"checkpost/pkg/kafka"
	kafka_config "checkpost/pkg/kafka/config"
	kafka_middleware "checkpost/pkg/kafka/middleware"
)

const ServiceName = "stops"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Stops service")
	serverApp := app.NewApplication(cfg)

	publisher := initPublisher(cfg, serverApp)
	stopService := initServices(cfg, publisher)

	serverApp.SetApp(cfg.Client.Mongo, handler.NewStopHandler(stopService, cfg.Log))
	serverApp.OnShutdown(func() error {
		cfg.GracefulShutdown()
		return nil
	})
	serverApp.Run()
}

func initPublisher(cfg *config.Config, serverApp *app.Application) service.EventPublisher {
	if !cfg.KafkaEnabled {
		cfg.Log.Info("Kafka disabled, stop events will not be published")
		return service.NopPublisher{}
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	events, err := kafka.NewStopEvents(kafkaCfg, cfg.Log,
		kafka_middleware.MetricsProducerMiddleware(),
		kafka_middleware.LoggingProducerMiddleware(cfg.Log),
	)
	if err != nil {
		cfg.Log.Fatal("Failed to create stop event producers", "error", err)
	}
	serverApp.OnShutdown(events.Close)
	return events
}

func initServices(cfg *config.Config, publisher service.EventPublisher) service.StopService {
	stopValidator := validator.NewStopValidator(cfg.Log)
	stopRepo := repository.NewMongoStopRepository(cfg)
	stopService := service.NewStopService(
		stopRepo,
		stopValidator,
		publisher,
		cfg,
	)

	cfg.Log.Info("Stops service initialized",
		"database", cfg.MongoDatabaseName,
		"collection", cfg.MongoCollection,
	)
	return stopService
}
