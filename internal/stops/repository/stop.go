package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	stopserrors "checkpost/internal/stops/errors"
	"checkpost/pkg/config"
	"checkpost/pkg/model"
	"checkpost/pkg/table"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// insertChunkSize bounds a single InsertMany call.
const insertChunkSize = 1000

type mongoStopRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

type StopRepository interface {
	InsertBatch(ctx context.Context, batch *table.Batch, meta model.BatchMeta) (*model.InsertOutcome, error)
	FindByID(ctx context.Context, id string) (*model.Stop, error)
	Search(ctx context.Context, filter model.StopFilter, limit int, offset int64) ([]*model.Stop, error)
	Count(ctx context.Context, filter model.StopFilter) (int64, error)
	Summarize(ctx context.Context, filter model.StopFilter) (*model.Summary, error)
	RepeatedVehicles(ctx context.Context, since time.Time, minStops, limit int) ([]model.RepeatedVehicle, error)
	SearchArrestEvents(ctx context.Context, filter model.StopFilter, limit int) ([]*model.Stop, error)
	RunReport(ctx context.Context, name string, limit int) ([]map[string]any, error)
	Aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]map[string]any, error)
}

func NewMongoStopRepository(cfg *config.Config) StopRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoStopRepository{
		cfg:        cfg,
		collection: db.Collection(cfg.MongoCollection),
	}
}

// withTimeout bounds a single database operation. An earlier deadline on ctx
// still wins.
func (r *mongoStopRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.cfg.MongoOpTimeout)
}

// InsertBatch stores every row of a cleaned batch. Rows the server rejects
// are reported in the outcome and skipped; the rest are still inserted.
func (r *mongoStopRepository) InsertBatch(ctx context.Context, batch *table.Batch, meta model.BatchMeta) (*model.InsertOutcome, error) {
	outcome := &model.InsertOutcome{IDs: make([]string, batch.Len())}
	docs := make([]any, 0, min(insertChunkSize, batch.Len()))

	for start := 0; start < batch.Len(); start += insertChunkSize {
		end := min(start+insertChunkSize, batch.Len())

		docs = docs[:0]
		for i := start; i < end; i++ {
			id := primitive.NewObjectID()
			outcome.IDs[i] = id.Hex()
			docs = append(docs, toDocument(id, batch.Columns, batch.Rows[i], meta))
		}

		if err := r.insertChunk(ctx, docs, start, outcome); err != nil {
			abandonRows(outcome, start, end)
			return outcome, err
		}
	}

	return outcome, nil
}

// abandonRows reports every row from start on as failed after a chunk error
// aborted the batch. Rows before start keep their ids.
func abandonRows(outcome *model.InsertOutcome, start, end int) {
	for i := start; i < len(outcome.IDs); i++ {
		reason := model.FailReasonNotAttempted
		if i < end {
			reason = model.FailReasonStoreError
		}
		outcome.IDs[i] = ""
		outcome.Failed = append(outcome.Failed, model.FailedRow{Index: i, Reason: reason})
	}
}

func (r *mongoStopRepository) insertChunk(ctx context.Context, docs []any, offset int, outcome *model.InsertOutcome) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return nil
	}

	var bulkErr mongo.BulkWriteException
	if !errors.As(err, &bulkErr) || len(bulkErr.WriteErrors) == 0 {
		return fmt.Errorf("failed to insert stops: %w", err)
	}

	for _, we := range bulkErr.WriteErrors {
		idx := offset + we.Index
		outcome.IDs[idx] = ""
		outcome.Failed = append(outcome.Failed, model.FailedRow{Index: idx, Reason: we.Message})
	}
	return nil
}

func (r *mongoStopRepository) FindByID(ctx context.Context, id string) (*model.Stop, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", stopserrors.ErrInvalidID, id)
	}

	var stop model.Stop
	err = r.collection.FindOne(ctx, bson.M{FieldID: objectID}).Decode(&stop)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", stopserrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find stop: %w", err)
	}

	return &stop, nil
}

func (r *mongoStopRepository) Search(ctx context.Context, filter model.StopFilter, limit int, offset int64) ([]*model.Stop, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	opts := options.Find().
		SetSort(listingSort).
		SetProjection(listingProjection).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, buildFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search stops: %w", err)
	}
	defer cursor.Close(ctx)

	stops := []*model.Stop{}
	if err = cursor.All(ctx, &stops); err != nil {
		return nil, fmt.Errorf("failed to decode stops: %w", err)
	}
	return stops, nil
}

func (r *mongoStopRepository) Count(ctx context.Context, filter model.StopFilter) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count stops: %w", err)
	}
	return count, nil
}

type summaryFacets struct {
	Totals       []model.Summary `bson:"totals"`
	Violation    []model.Bucket  `bson:"violation"`
	Gender       []model.Bucket  `bson:"gender"`
	StopDuration []model.Bucket  `bson:"stop_duration"`
	Outcome      []model.Bucket  `bson:"outcome"`
}

func topOf(name string) bson.A {
	return bson.A{
		match(bson.M{name: bson.M{"$nin": bson.A{nil, ""}}}),
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.M{"$toString": field(name)}},
			{Key: "count", Value: countAll()},
		}}},
		sortBy(desc("count"), asc("_id")),
		bson.D{{Key: "$limit", Value: 1}},
	}
}

func summaryPipeline(filter bson.M) mongo.Pipeline {
	return mongo.Pipeline{
		match(filter),
		{{Key: "$facet", Value: bson.D{
			{Key: "totals", Value: bson.A{
				bson.D{{Key: "$group", Value: bson.D{
					{Key: "_id", Value: nil},
					{Key: "total", Value: countAll()},
					{Key: "arrests", Value: countIf(isTrue("is_arrested"))},
					{Key: "searches", Value: countIf(isTrue("search_conducted"))},
					{Key: "drug_related", Value: countIf(isTrue("drugs_related_stop"))},
					{Key: "high_risk", Value: countIf(bson.M{"$and": bson.A{isTrue("search_conducted"), isTrue("is_arrested")}})},
					{Key: "avg_driver_age", Value: bson.M{"$avg": "$driver_age"}},
				}}},
			}},
			{Key: "violation", Value: topOf("violation")},
			{Key: "gender", Value: topOf("driver_gender")},
			{Key: "stop_duration", Value: topOf("stop_duration")},
			{Key: "outcome", Value: topOf("stop_outcome")},
		}}},
	}
}

// Summarize returns the raw counts and most common values over every stop
// matching filter. Rates are left to the caller.
func (r *mongoStopRepository) Summarize(ctx context.Context, filter model.StopFilter) (*model.Summary, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	cursor, err := r.collection.Aggregate(ctx, summaryPipeline(buildFilter(filter)))
	if err != nil {
		return nil, fmt.Errorf("failed to summarize stops: %w", err)
	}
	defer cursor.Close(ctx)

	var facets []summaryFacets
	if err = cursor.All(ctx, &facets); err != nil {
		return nil, fmt.Errorf("failed to decode stop summary: %w", err)
	}

	summary := &model.Summary{}
	if len(facets) == 0 {
		return summary, nil
	}
	f := facets[0]
	if len(f.Totals) > 0 {
		*summary = f.Totals[0]
	}
	summary.TopViolation = first(f.Violation)
	summary.TopGender = first(f.Gender)
	summary.TopStopDuration = first(f.StopDuration)
	summary.TopOutcome = first(f.Outcome)
	return summary, nil
}

func first(buckets []model.Bucket) *model.Bucket {
	if len(buckets) == 0 {
		return nil
	}
	b := buckets[0]
	return &b
}

func repeatedVehiclesPipeline(since time.Time, minStops, limit int) mongo.Pipeline {
	return mongo.Pipeline{
		match(bson.M{
			"vehicle_number": bson.M{"$exists": true, "$nin": bson.A{nil, ""}},
			"stop_date":      bson.M{"$gte": startOfDay(since)},
		}),
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.M{"$toString": "$vehicle_number"}},
			{Key: "count", Value: countAll()},
		}}},
		match(bson.M{"count": bson.M{"$gte": minStops}}),
		sortBy(desc("count"), asc("_id")),
		bson.D{{Key: "$limit", Value: limit}},
	}
}

func (r *mongoStopRepository) RepeatedVehicles(ctx context.Context, since time.Time, minStops, limit int) ([]model.RepeatedVehicle, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	cursor, err := r.collection.Aggregate(ctx, repeatedVehiclesPipeline(since, minStops, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to find repeated vehicles: %w", err)
	}
	defer cursor.Close(ctx)

	vehicles := []model.RepeatedVehicle{}
	if err = cursor.All(ctx, &vehicles); err != nil {
		return nil, fmt.Errorf("failed to decode repeated vehicles: %w", err)
	}
	return vehicles, nil
}

func searchArrestFilter(filter model.StopFilter) bson.M {
	q := buildFilter(filter)
	q["search_conducted"] = true
	q["is_arrested"] = true
	return q
}

func (r *mongoStopRepository) SearchArrestEvents(ctx context.Context, filter model.StopFilter, limit int) ([]*model.Stop, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	opts := options.Find().
		SetSort(listingSort).
		SetProjection(searchArrestProjection).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, searchArrestFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find search-arrest events: %w", err)
	}
	defer cursor.Close(ctx)

	stops := []*model.Stop{}
	if err = cursor.All(ctx, &stops); err != nil {
		return nil, fmt.Errorf("failed to decode search-arrest events: %w", err)
	}
	return stops, nil
}

func (r *mongoStopRepository) RunReport(ctx context.Context, name string, limit int) ([]map[string]any, error) {
	pipeline, ok := reportPipeline(name, limit)
	if !ok {
		return nil, fmt.Errorf("%w: %s", stopserrors.ErrUnknownReport, name)
	}
	return r.Aggregate(ctx, pipeline)
}

func (r *mongoStopRepository) Aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]map[string]any, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stops: %w", err)
	}
	defer cursor.Close(ctx)

	rows := []map[string]any{}
	for cursor.Next(ctx) {
		var row bson.M
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode aggregation row: %w", err)
		}
		rows = append(rows, map[string]any(row))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read aggregation rows: %w", err)
	}
	return rows, nil
}
