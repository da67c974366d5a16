package repository

import (
	"testing"
	"time"

	"checkpost/pkg/model"
	"checkpost/pkg/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func docValue(doc bson.D, key string) (any, bool) {
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func TestFieldName(t *testing.T) {
	cases := map[string]string{
		"violation":       "violation",
		"officer.id":      "officer_id",
		"$where":          "_where",
		"_id":             "_id_src",
		"ingest_batch_id": "ingest_batch_id_src",
		"ingested_at":     "ingested_at_src",
	}
	for in, want := range cases {
		assert.Equal(t, want, FieldName(in), "FieldName(%q)", in)
	}
}

func TestToDocument(t *testing.T) {
	id := primitive.NewObjectID()
	ingestedAt := time.Date(2025, time.March, 4, 10, 0, 0, 0, time.UTC)
	stopDate := time.Date(2020, time.January, 15, 0, 0, 0, 0, time.UTC)

	columns := []string{"stop_date", "stop_time", "driver_age", "search_conducted", "is_arrested", "violation", "officer.id", "officer_id"}
	row := table.Row{
		"stop_date":        table.Date(stopDate),
		"stop_time":        table.Clock(14, 30, 0),
		"driver_age":       table.Int(34),
		"search_conducted": table.Tri(table.Unknown),
		"is_arrested":      table.Tri(table.True),
		"officer.id":       table.String("A1"),
		"officer_id":       table.String("B2"),
	}
	meta := model.BatchMeta{BatchID: "batch-1", Source: "upload.csv", IngestedAt: ingestedAt}

	doc := toDocument(id, columns, row, meta)

	require.Equal(t, "_id", doc[0].Key)
	assert.Equal(t, id, doc[0].Value)

	v, ok := docValue(doc, "stop_date")
	require.True(t, ok)
	assert.Equal(t, primitive.NewDateTimeFromTime(stopDate), v)

	v, _ = docValue(doc, "stop_time")
	assert.Equal(t, "14:30:00", v)

	v, _ = docValue(doc, "driver_age")
	assert.Equal(t, int64(34), v)

	v, ok = docValue(doc, "search_conducted")
	require.True(t, ok, "unknown flag is stored as null")
	assert.Nil(t, v)

	v, _ = docValue(doc, "is_arrested")
	assert.Equal(t, true, v)

	_, ok = docValue(doc, "violation")
	assert.False(t, ok, "absent cells are omitted")

	v, _ = docValue(doc, "officer_id")
	assert.Equal(t, "A1", v)
	v, _ = docValue(doc, "officer_id_2")
	assert.Equal(t, "B2", v)

	v, _ = docValue(doc, FieldIngestBatchID)
	assert.Equal(t, "batch-1", v)
	v, _ = docValue(doc, FieldIngestSource)
	assert.Equal(t, "upload.csv", v)
	v, _ = docValue(doc, FieldIngestedAt)
	assert.Equal(t, primitive.NewDateTimeFromTime(ingestedAt), v)
}

func TestToDocument_NoSource(t *testing.T) {
	doc := toDocument(primitive.NewObjectID(), nil, table.Row{}, model.BatchMeta{BatchID: "b"})
	_, ok := docValue(doc, FieldIngestSource)
	assert.False(t, ok)
}

func TestBuildFilter(t *testing.T) {
	from := time.Date(2020, time.January, 1, 15, 0, 0, 0, time.UTC)
	to := time.Date(2020, time.January, 31, 0, 0, 0, 0, time.UTC)

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, buildFilter(model.StopFilter{}))
	})

	t.Run("All is no constraint", func(t *testing.T) {
		assert.Empty(t, buildFilter(model.StopFilter{Gender: model.FilterAll, Searched: model.FilterAll}))
	})

	t.Run("everything", func(t *testing.T) {
		f := buildFilter(model.StopFilter{
			From:          from,
			To:            to,
			Gender:        "Female",
			Violation:     " speed.* ",
			VehicleNumber: " TN01 ",
			Searched:      model.FilterFalse,
		})

		assert.Equal(t, bson.M{
			"$gte": time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
			"$lt":  time.Date(2020, time.February, 1, 0, 0, 0, 0, time.UTC),
		}, f["stop_date"])
		assert.Equal(t, "Female", f["driver_gender"])
		assert.Equal(t, bson.M{"$regex": `speed\.\*`, "$options": "i"}, f["violation"])
		assert.Equal(t, "TN01", f["vehicle_number"])
		assert.Equal(t, false, f["search_conducted"])
	})

	t.Run("open ended range", func(t *testing.T) {
		f := buildFilter(model.StopFilter{To: to})
		assert.Equal(t, bson.M{"$lt": time.Date(2020, time.February, 1, 0, 0, 0, 0, time.UTC)}, f["stop_date"])
	})
}

func TestEscapeRegexSpecialChars(t *testing.T) {
	assert.Equal(t, `a\.b\(c\)\[d\]\\`, escapeRegexSpecialChars(`a.b(c)[d]\`))
	assert.Equal(t, "Speeding", escapeRegexSpecialChars("Speeding"))
}

func TestSearchArrestFilter(t *testing.T) {
	f := searchArrestFilter(model.StopFilter{Searched: model.FilterFalse, Gender: "Male"})
	assert.Equal(t, true, f["search_conducted"])
	assert.Equal(t, true, f["is_arrested"])
	assert.Equal(t, "Male", f["driver_gender"])
}

func TestRepeatedVehiclesPipeline(t *testing.T) {
	since := time.Date(2025, time.May, 1, 18, 0, 0, 0, time.UTC)
	p := repeatedVehiclesPipeline(since, 3, 50)
	require.Len(t, p, 5)

	m := p[0][0].Value.(bson.M)
	assert.Equal(t, bson.M{"$gte": time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)}, m["stop_date"])
	assert.Equal(t, bson.D{{Key: "$limit", Value: 50}}, p[4])
	assert.Equal(t, bson.M{"count": bson.M{"$gte": 3}}, p[2][0].Value)
}

func TestSummaryPipeline(t *testing.T) {
	p := summaryPipeline(bson.M{"driver_gender": "Male"})
	require.Len(t, p, 2)
	assert.Equal(t, "$match", p[0][0].Key)
	assert.Equal(t, "$facet", p[1][0].Key)

	facets := p[1][0].Value.(bson.D)
	var names []string
	for _, e := range facets {
		names = append(names, e.Key)
	}
	assert.Equal(t, []string{"totals", "violation", "gender", "stop_duration", "outcome"}, names)
}

func TestFirst(t *testing.T) {
	assert.Nil(t, first(nil))
	b := first([]model.Bucket{{Value: "Speeding", Count: 3}, {Value: "Other", Count: 1}})
	require.NotNil(t, b)
	assert.Equal(t, "Speeding", b.Value)
}

func TestReportCatalogue(t *testing.T) {
	defs := Reports()
	require.Len(t, defs, 20)

	categories := map[string]bool{
		CategoryVehicle: true, CategoryDemographic: true, CategoryTime: true,
		CategoryViolation: true, CategoryLocation: true, CategoryComplex: true,
	}
	seen := map[string]bool{}
	for _, d := range defs {
		assert.False(t, seen[d.Name], "duplicate report %s", d.Name)
		seen[d.Name] = true
		assert.True(t, categories[d.Category], "report %s has unknown category %q", d.Name, d.Category)
		assert.NotEmpty(t, d.Title, d.Name)
		assert.NotEmpty(t, d.Columns, d.Name)

		p, ok := reportPipeline(d.Name, 0)
		require.True(t, ok)
		assert.NotEmpty(t, p, d.Name)
	}

	def, ok := LookupReport("top_arrest_violations")
	require.True(t, ok)
	assert.Equal(t, 5, def.DefaultLimit)

	_, ok = LookupReport("nope")
	assert.False(t, ok)
}

func TestReportPipeline_Limit(t *testing.T) {
	plain, _ := reportPipeline("stops_by_hour", 0)
	limited, ok := reportPipeline("stops_by_hour", 7)
	require.True(t, ok)
	require.Len(t, limited, len(plain)+1)
	assert.Equal(t, bson.D{{Key: "$limit", Value: 7}}, limited[len(limited)-1])

	_, ok = reportPipeline("missing", 10)
	assert.False(t, ok)
}

func TestReportPipeline_Fresh(t *testing.T) {
	a, _ := reportPipeline("gender_by_country", 3)
	b, _ := reportPipeline("gender_by_country", 0)
	assert.Len(t, b, len(a)-1, "limits must not leak between runs")
}

func TestAbandonRows(t *testing.T) {
	// five rows in chunks of two: chunk 0 stored with row 1 rejected, chunk 1 aborted
	outcome := &model.InsertOutcome{
		IDs:    []string{"a", "", "c", "d", ""},
		Failed: []model.FailedRow{{Index: 1, Reason: "document failed validation"}},
	}

	abandonRows(outcome, 2, 4)

	assert.Equal(t, []string{"a", "", "", "", ""}, outcome.IDs)
	assert.Equal(t, 1, outcome.Inserted())
	require.Len(t, outcome.Failed, 4)
	assert.Equal(t, model.FailedRow{Index: 2, Reason: model.FailReasonStoreError}, outcome.Failed[1])
	assert.Equal(t, model.FailedRow{Index: 3, Reason: model.FailReasonStoreError}, outcome.Failed[2])
	assert.Equal(t, model.FailedRow{Index: 4, Reason: model.FailReasonNotAttempted}, outcome.Failed[3])
}
