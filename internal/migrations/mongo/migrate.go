package mongo

import (
	"context"
	"fmt"

	"checkpost/internal/migrations/mongo/validators"
	"checkpost/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// StopIndexes back the recent-stops listing, the repeat-vehicle lookup,
// the report group-bys and batch cleanup.
var StopIndexes = []mongo.IndexModel{
	{
		Keys:    bson.D{{Key: "stop_date", Value: -1}, {Key: "stop_time", Value: -1}},
		Options: options.Index().SetName("stop_date_time_desc"),
	},
	{
		Keys:    bson.D{{Key: "vehicle_number", Value: 1}, {Key: "stop_date", Value: 1}},
		Options: options.Index().SetName("vehicle_stop_date"),
	},
	{
		Keys:    bson.D{{Key: "violation", Value: 1}},
		Options: options.Index().SetName("violation"),
	},
	{
		Keys:    bson.D{{Key: "country_name", Value: 1}},
		Options: options.Index().SetName("country_name"),
	},
	{
		Keys:    bson.D{{Key: "ingest_batch_id", Value: 1}},
		Options: options.Index().SetName("ingest_batch_id"),
	},
}

type collectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

// RunMigration creates or updates the stops collection in dbName. Running
// it twice is a no-op.
func RunMigration(ctx context.Context, client *mongo.Client, dbName, stopsCollection string, log *logger.Logger) error {
	db := client.Database(dbName)
	log.Info("Running checkpost Mongo migrations", "database", dbName)

	collections := map[string]collectionDef{
		stopsCollection: {
			Indexes:   StopIndexes,
			Validator: validators.StopValidator,
		},
	}

	for name, def := range collections {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All migrations applied successfully")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().
			SetValidator(validator).
			SetValidationLevel("moderate")
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	log.Info("Collection exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	created, err := db.Collection(name).Indexes().CreateMany(ctx, models)
	if err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "indexes", created)
	return nil
}
