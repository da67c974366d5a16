//go:build integration

package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	mongoMigration "checkpost/internal/migrations/mongo"
	"checkpost/internal/stops/repository"
	"checkpost/pkg/client"
	"checkpost/pkg/config"
	"checkpost/pkg/logger"
	"checkpost/pkg/model"
	"checkpost/pkg/table"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const connectionTimeout = 10 * time.Second

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// setupMongo runs the migration against a throwaway collection and drops
// it when the test ends.
func setupMongo(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.FromEnv()
	cfg.MongoURI = getEnv("TEST_MONGO_URI", config.DefaultMongoURI)
	cfg.MongoDatabaseName = getEnv("TEST_DB_NAME", "checkpost_test")
	cfg.MongoCollection = "stops_" + uuid.NewString()[:8]
	cfg.Log = logger.Discard()

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	require.NoError(t, err, "failed to connect to MongoDB")
	require.NoError(t, mc.Ping(ctx, nil), "failed to ping MongoDB")

	cfg.Client = client.NewClient()
	cfg.Client.Mongo = mc

	require.NoError(t, mongoMigration.RunMigration(ctx, mc, cfg.MongoDatabaseName, cfg.MongoCollection, cfg.Log))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
		defer cancel()
		_ = mc.Database(cfg.MongoDatabaseName).Collection(cfg.MongoCollection).Drop(ctx)
		_ = mc.Disconnect(ctx)
	})
	return cfg
}

func day(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func TestMongoStopRepository_RoundTrip(t *testing.T) {
	cfg := setupMongo(t)
	repo := repository.NewMongoStopRepository(cfg)
	ctx := context.Background()

	recent := time.Now().UTC().AddDate(0, 0, -2).Truncate(24 * time.Hour)
	batch := table.NewBatch("stop_date", "stop_time", "vehicle_number", "violation", "is_arrested", "driver_age", "needs_review")
	batch.Append(table.Row{
		"stop_date": table.Date(recent), "stop_time": table.Clock(14, 30, 0),
		"vehicle_number": table.String("TN01AB1234"), "violation": table.String("Speeding"),
		"is_arrested": table.Tri(table.TriBoolOf(true)), "driver_age": table.Int(34), "needs_review": table.Bool(false),
	})
	batch.Append(table.Row{
		"stop_date": table.Date(recent), "stop_time": table.Clock(9, 5, 0),
		"vehicle_number": table.String("TN01AB1234"), "violation": table.String("DUI"),
		"is_arrested": table.Tri(table.TriBoolOf(false)), "driver_age": table.Null(), "needs_review": table.Bool(false),
	})
	batch.Append(table.Row{
		"stop_date": table.Date(day("2019-03-01")), "stop_time": table.Null(),
		"vehicle_number": table.String("KA05"), "violation": table.String("Other"),
		"is_arrested": table.Null(), "driver_age": table.Int(51), "needs_review": table.Bool(false),
	})

	meta := model.BatchMeta{BatchID: uuid.NewString(), Source: "march.csv", IngestedAt: time.Now().UTC()}
	outcome, err := repo.InsertBatch(ctx, batch, meta)
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Inserted())
	assert.Empty(t, outcome.Failed)

	stop, err := repo.FindByID(ctx, outcome.IDs[0])
	require.NoError(t, err)
	assert.Equal(t, "14:30:00", stop.StopTime)
	assert.Equal(t, meta.BatchID, stop.IngestBatchID)
	require.NotNil(t, stop.IsArrested)
	assert.True(t, *stop.IsArrested)

	total, err := repo.Count(ctx, model.StopFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)

	dui, err := repo.Count(ctx, model.StopFilter{Violation: "DUI"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, dui)

	vehicles, err := repo.RepeatedVehicles(ctx, time.Now().UTC().AddDate(0, 0, -30), 2, 10)
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	assert.Equal(t, "TN01AB1234", vehicles[0].VehicleNumber)
	assert.EqualValues(t, 2, vehicles[0].Stops)

	summary, err := repo.Summarize(ctx, model.StopFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, summary.Total)
	assert.EqualValues(t, 1, summary.Arrests)
}

func TestMongoStopRepository_FindByIDNotFound(t *testing.T) {
	cfg := setupMongo(t)
	repo := repository.NewMongoStopRepository(cfg)

	_, err := repo.FindByID(context.Background(), "000000000000000000000000")
	assert.Error(t, err)
}

func TestRunMigration_Idempotent(t *testing.T) {
	cfg := setupMongo(t)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	assert.NoError(t, mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.MongoCollection, cfg.Log))
}
