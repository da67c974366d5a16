package main

import (
	"context"
	"flag"
	"time"

	mongoMigration "checkpost/internal/migrations/mongo"
	"checkpost/pkg/config"
)

const JobName = "mongo-migration"

func main() {
	timeout := flag.Duration("timeout", 2*time.Minute, "upper bound for the whole migration")
	flag.Parse()

	cfg := config.Load(JobName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log := cfg.Log.With("database", cfg.MongoDatabaseName, "collection", cfg.MongoCollection)
	log.Info("Starting stops collection migration", "indexes", len(mongoMigration.StopIndexes))

	start := time.Now()
	if err := mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.MongoCollection, log); err != nil {
		cancel()
		cfg.GracefulShutdown()
		log.Fatal("Migration failed", "error", err, "elapsed", time.Since(start))
	}
	log.Info("Migration completed", "elapsed", time.Since(start))
}
