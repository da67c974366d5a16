package repository

import (
	"checkpost/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	CategoryVehicle     = "vehicle"
	CategoryDemographic = "demographic"
	CategoryTime        = "time"
	CategoryViolation   = "violation"
	CategoryLocation    = "location"
	CategoryComplex     = "complex"
)

type report struct {
	def      model.ReportDef
	pipeline func() mongo.Pipeline
}

// groupKey is one named component of a $group _id.
type groupKey struct {
	name string
	expr any
}

func field(name string) string { return "$" + name }

func isTrue(name string) bson.M {
	return bson.M{"$eq": bson.A{field(name), true}}
}

func countIf(cond any) bson.M {
	return bson.M{"$sum": bson.M{"$cond": bson.A{cond, 1, 0}}}
}

func countAll() bson.M { return bson.M{"$sum": 1} }

// pct is ROUND(100 * num / den, 2) over two already-grouped fields.
func pct(num, den string) bson.M {
	return bson.M{"$round": bson.A{
		bson.M{"$multiply": bson.A{100, bson.M{"$divide": bson.A{field(num), bson.M{"$max": bson.A{field(den), 1}}}}}},
		2,
	}}
}

// hourOfStop reads the hour from the stored "HH:MM:SS" clock string.
var hourOfStop = bson.M{"$cond": bson.A{
	bson.M{"$eq": bson.A{bson.M{"$type": "$stop_time"}, "string"}},
	bson.M{"$convert": bson.M{
		"input":   bson.M{"$substrBytes": bson.A{"$stop_time", 0, 2}},
		"to":      "int",
		"onError": nil,
	}},
	nil,
}}

func datePart(op string) bson.M {
	return bson.M{"$cond": bson.A{
		bson.M{"$eq": bson.A{bson.M{"$type": "$stop_date"}, "date"}},
		bson.M{op: "$stop_date"},
		nil,
	}}
}

var ageGroup = bson.M{"$switch": bson.M{
	"branches": bson.A{
		bson.M{"case": bson.M{"$lt": bson.A{"$driver_age", 18}}, "then": "<18"},
		bson.M{"case": bson.M{"$lte": bson.A{"$driver_age", 24}}, "then": "18-24"},
		bson.M{"case": bson.M{"$lte": bson.A{"$driver_age", 34}}, "then": "25-34"},
		bson.M{"case": bson.M{"$lte": bson.A{"$driver_age", 44}}, "then": "35-44"},
	},
	"default": "45+",
}}

var nightOrDay = bson.M{"$cond": bson.A{
	bson.M{"$or": bson.A{
		bson.M{"$gte": bson.A{hourOfStop, 20}},
		bson.M{"$and": bson.A{
			bson.M{"$ne": bson.A{hourOfStop, nil}},
			bson.M{"$lte": bson.A{hourOfStop, 5}},
		}},
	}},
	"Night",
	"Day",
}}

// durationMinutes maps the recorded duration bands onto minutes. Unrecognised
// bands are left out of the average.
var durationMinutes = bson.M{"$switch": bson.M{
	"branches": bson.A{
		bson.M{"case": bson.M{"$eq": bson.A{"$stop_duration", "<5 minutes"}}, "then": 2.5},
		bson.M{"case": bson.M{"$eq": bson.A{"$stop_duration", "6-15 minutes"}}, "then": 10},
		bson.M{"case": bson.M{"$eq": bson.A{"$stop_duration", "16-30 minutes"}}, "then": 23},
		bson.M{"case": bson.M{"$eq": bson.A{"$stop_duration", "0-15 Min"}}, "then": 7.5},
		bson.M{"case": bson.M{"$eq": bson.A{"$stop_duration", "16-30 Min"}}, "then": 23},
		bson.M{"case": bson.M{"$eq": bson.A{"$stop_duration", "30+ Min"}}, "then": 45},
	},
	"default": nil,
}}

func by(names ...string) []groupKey {
	keys := make([]groupKey, len(names))
	for i, n := range names {
		keys[i] = groupKey{name: n, expr: field(n)}
	}
	return keys
}

func match(cond bson.M) bson.D { return bson.D{{Key: "$match", Value: cond}} }

func group(keys []groupKey, acc bson.D) bson.D {
	id := make(bson.D, 0, len(keys))
	for _, k := range keys {
		id = append(id, bson.E{Key: k.name, Value: k.expr})
	}
	stage := append(bson.D{{Key: "_id", Value: id}}, acc...)
	return bson.D{{Key: "$group", Value: stage}}
}

// flatten lifts the group keys out of _id so every row is a flat record.
func flatten(keys []groupKey, fields ...string) bson.D {
	proj := bson.D{{Key: "_id", Value: 0}}
	for _, k := range keys {
		proj = append(proj, bson.E{Key: k.name, Value: "$_id." + k.name})
	}
	for _, f := range fields {
		proj = append(proj, bson.E{Key: f, Value: 1})
	}
	return bson.D{{Key: "$project", Value: proj}}
}

func addFields(fields bson.D) bson.D { return bson.D{{Key: "$addFields", Value: fields}} }

func sortBy(fields ...bson.E) bson.D { return bson.D{{Key: "$sort", Value: bson.D(fields)}} }

func asc(name string) bson.E  { return bson.E{Key: name, Value: 1} }
func desc(name string) bson.E { return bson.E{Key: name, Value: -1} }

var catalogue = []report{
	{
		def: model.ReportDef{
			Name: "top_drug_vehicles", Title: "Top 10 vehicles in drug-related stops", Category: CategoryVehicle,
			Columns: []string{"vehicle_number", "drug_stop_count"}, DefaultLimit: 10,
		},
		pipeline: func() mongo.Pipeline {
			keys := by("vehicle_number")
			return mongo.Pipeline{
				match(bson.M{"drugs_related_stop": true}),
				group(keys, bson.D{{Key: "drug_stop_count", Value: countAll()}}),
				flatten(keys, "drug_stop_count"),
				sortBy(desc("drug_stop_count"), asc("vehicle_number")),
			}
		},
	},
	{
		def: model.ReportDef{
			Name: "most_searched_vehicles", Title: "Most frequently searched vehicles", Category: CategoryVehicle,
			Columns: []string{"vehicle_number", "searches"}, DefaultLimit: 20,
		},
		pipeline: func() mongo.Pipeline {
			keys := by("vehicle_number")
			return mongo.Pipeline{
				match(bson.M{"search_conducted": true}),
				group(keys, bson.D{{Key: "searches", Value: countAll()}}),
				flatten(keys, "searches"),
				sortBy(desc("searches"), asc("vehicle_number")),
			}
		},
	},
	{
		def: model.ReportDef{
			Name: "arrest_rate_by_age_group", Title: "Age group with highest arrest rate", Category: CategoryDemographic,
			Columns: []string{"age_group", "total_stops", "arrests", "arrest_rate_pct"},
		},
		pipeline: func() mongo.Pipeline {
			keys := []groupKey{{name: "age_group", expr: ageGroup}}
			return mongo.Pipeline{
				match(bson.M{"driver_age": bson.M{"$type": "number"}}),
				group(keys, bson.D{
					{Key: "total_stops", Value: countAll()},
					{Key: "arrests", Value: countIf(isTrue("is_arrested"))},
				}),
				flatten(keys, "total_stops", "arrests"),
				addFields(bson.D{{Key: "arrest_rate_pct", Value: pct("arrests", "total_stops")}}),
				sortBy(desc("arrest_rate_pct"), asc("age_group")),
			}
		},
	},
	{
		def: model.ReportDef{
			Name: "gender_by_country", Title: "Gender distribution per country", Category: CategoryDemographic,
			Columns: []string{"country_name", "driver_gender", "stops"},
		},
		pipeline: func() mongo.Pipeline {
			keys := by("country_name", "driver_gender")
			return mongo.Pipeline{
				group(keys, bson.D{{Key: "stops", Value: countAll()}}),
				flatten(keys, "stops"),
				sortBy(asc("country_name"), desc("stops"), asc("driver_gender")),
			}
		},
	},
	{
		def: model.ReportDef{
			Name: "race_gender_search_rate", Title: "Race and gender with highest search rate", Category: CategoryDemographic,
			Description: "Combinations with at least 10 stops.",
			Columns:     []string{"driver_race", "driver_gender", "total_stops", "searches", "search_rate_pct"},
		},
		pipeline: func() mongo.Pipeline {
			keys := by("driver_race", "driver_gender")
			return mongo.Pipeline{
				group(keys, bson.D{
					{Key: "total_stops", Value: countAll()},
					{Key: "searches", Value: countIf(isTrue("search_conducted"))},
				}),
				match(bson.M{"total_stops": bson.M{"$gte": 10}}),
				flatten(keys, "total_stops", "searches"),
				addFields(bson.D{{Key: "search_rate_pct", Value: pct("searches", "total_stops")}}),
				sortBy(desc("search_rate_pct"), asc("driver_race"), asc("driver_gender")),
			}
		},
	},
	{
		def: model.ReportDef{
			Name: "stops_by_hour", Title: "Stops by hour of day", Category: CategoryTime,
			Columns: []string{"hour_of_day", "stops"},
		},
		pipeline: func() mongo.Pipeline {
			keys := []groupKey{{name: "hour_of_day", expr: hourOfStop}}
			return mongo.Pipeline{
				group(keys, bson.D{{Key: "stops", Value: countAll()}}),
				flatten(keys, "stops"),
				sortBy(desc("stops"), asc("hour_of_day")),
			}
		},
	},
	{
		def: model.ReportDef{
			Name: "avg_duration_by_violation", Title: "Average stop duration per violation", Category: CategoryTime,
			Description: "Duration bands are mapped to minutes; unknown bands are ignored.",
			Columns:     []string{"violation", "stops", "avg_duration"},
		},
		pipeline: func() mongo.Pipeline {
			keys := by("violation")
			return mongo.Pipeline{
				group(keys, bson.D{
					{Key: "stops", Value: countAll()},
					{Key: "avg_duration", Value: bson.M{"$avg": durationMinutes}},
				}),
				flatten(keys, "stops"),
				addFields(bson.D{{Key: "avg_duration", Value: bson.M{"$round": bson.A{"$avg_duration", 1}}}}),
				sortBy(asc("violation")),
			}
		},
	},
	{
		def: model.ReportDef{
			Name: "night_vs_day_arrests", Title: "Night versus day arrest rate", Category: CategoryTime,
			Description: "Night is 20:00 to 05:59.",
			Columns:     []string{"period", "total_stops", "arrests", "arrest_rate_pct"},
		},
		pipeline: func() mongo.Pipeline {
			keys := []groupKey{{name: "period", expr: nightOrDay}}
			return mongo.Pipeline{
				group(keys, bson.D{
					{Key: "total_stops", Value: countAll()},
					{Key: "arrests", Value: countIf(isTrue("is_arrested"))},
				}),
				flatten(keys, "total_stops", "arrests"),
				addFields(bson.D{{Key: "arrest_rate_pct", Value: pct("arrests", "total_stops")}}),
				sortBy(asc("period")),
			}
		},
	},
	{
		def: model.ReportDef{
			Name: "violation_search_arrest_rates", Title: "Search and arrest rate per violation", Category: CategoryViolation,
			Columns: []string{"violation", "total_stops", "searches", "arrests", "search_rate_pct", "arrest_rate_pct"},
		},
		pipeline: func() mongo.Pipeline {
			keys := by("violation")
			return mongo.Pipeline{
				group(keys, bson.D{
					{Key: "total_stops", Value: countAll()},
					{Key: "searches", Value: countIf(isTrue("search_conducted"))},
					{Key: "arrests", Value: countIf(isTrue("is_arrested"))},
				}),
				flatten(keys, "total_stops", "searches", "arrests"),
				addFields(bson.D{
					{Key: "search_rate_pct", Value: pct("searches", "total_stops")},
					{Key: "arrest_rate_pct", Value: pct("arrests", "total_stops")},
				}),
				sortBy(desc("search_rate_pct"), asc("violation")),
			}
		},
	},
	{
		def: model.ReportDef{
			Name: "violations_under_25", Title: "Most common violations among drivers under 25", Category: CategoryViolation,
			Columns: []string{"violation", "stops_under_25"},
		},
		pipeline: func() mongo.Pipeline {
			keys := by("violation")
			return mongo.Pipeline{
				match(bson.M{"driver_age": bson.M{"$lt": 25}}),
				group(keys, bson.D{{Key: "stops_under_25", Value: countAll()}}),
				flatten(keys, "stops_under_25"),
				sortBy(desc("stops_under_25"), asc("violation")),
			}
		},
	},
	{
		def: model.ReportDef{
			Name: "low_risk_violations", Title: "Violations rarely leading to search or arrest", Category: CategoryViolation,
			Description: "Violations with at least 20 stops.",
			Columns:     []string{"violation", "total_stops", "searches", "arrests"},
		},
		pipeline: func() mongo.Pipeline {
			keys := by("violation")
			return mongo.Pipeline{
				group(keys, bson.D{
					{Key: "total_stops", Value: countAll()},
					{Key: "searches", Value: countIf(isTrue("search_conducted"))},
					{Key: "arrests", Value: countIf(isTrue("is_arrested"))},
				}),
				match(bson.M{"total_stops": bson.M{"$gte": 20}}),
				flatten(keys, "total_stops", "searches", "arrests"),
				sortBy(asc("searches"), asc("arrests"), asc("violation")),
			}
		},
	},
	{
		def: model.ReportDef{
			Name: "drug_rate_by_country", Title: "Drug-related stop rate per country", Category: CategoryLocation,
			Columns: []string{"country_name", "total_stops", "drug_stops", "drug_rate"},
		},
		pipeline: func() mongo.Pipeline {
			keys := by("country_name")
			return mongo.Pipeline{
				group(keys, bson.D{
					{Key: "total_stops", Value: countAll()},
					{Key: "drug_stops", Value: countIf(isTrue("drugs_related_stop"))},
				}),
				flatten(keys, "total_stops", "drug_stops"),
				addFields(bson.D{{Key: "drug_rate", Value: pct("drug_stops", "total_stops")}}),
				sortBy(desc("drug_rate"), asc("country_name")),
			}
		},
	},
	{
		def: model.ReportDef{
			Name: "arrest_rate_by_country_violation", Title: "Arrest rate by country and violation", Category: CategoryLocation,
			Description: "Combinations with at least 10 stops.",
			Columns:     []string{"country_name", "violation", "total_stops", "arrests", "arrest_rate"},
		},
		pipeline: func() mongo.Pipeline {
			keys := by("country_name", "violation")
			return mongo.Pipeline{
				group(keys, bson.D{
					{Key: "total_stops", Value: countAll()},
					{Key: "arrests", Value: countIf(isTrue("is_arrested"))},
				}),
				match(bson.M{"total_stops": bson.M{"$gte": 10}}),
				flatten(keys, "total_stops", "arrests"),
				addFields(bson.D{{Key: "arrest_rate", Value: pct("arrests", "total_stops")}}),
				sortBy(desc("arrest_rate"), asc("country_name"), asc("violation")),
			}
		},
	},
	{
		def: model.ReportDef{
			Name: "searches_by_country", Title: "Searches per country", Category: CategoryLocation,
			Columns: []string{"country_name", "total_stops", "searches"},
		},
		pipeline: func() mongo.Pipeline {
			keys := by("country_name")
			return mongo.Pipeline{
				group(keys, bson.D{
					{Key: "total_stops", Value: countAll()},
					{Key: "searches", Value: countIf(isTrue("search_conducted"))},
				}),
				flatten(keys, "total_stops", "searches"),
				sortBy(desc("searches"), asc("country_name")),
			}
		},
	},
	{
		def: model.ReportDef{
			Name: "yearly_stops_by_country", Title: "Yearly stops and arrests by country", Category: CategoryComplex,
			Columns: []string{"country_name", "year", "stops", "arrests", "arrest_rate"},
		},
		pipeline: func() mongo.Pipeline {
			keys := []groupKey{{name: "country_name", expr: "$country_name"}, {name: "year", expr: datePart("$year")}}
			return mongo.Pipeline{
				group(keys, bson.D{
					{Key: "stops", Value: countAll()},
					{Key: "arrests", Value: countIf(isTrue("is_arrested"))},
				}),
				flatten(keys, "stops", "arrests"),
				addFields(bson.D{{Key: "arrest_rate", Value: pct("arrests", "stops")}}),
				sortBy(asc("country_name"), desc("year")),
			}
		},
	},
	{
		def: model.ReportDef{
			Name: "violation_trends_age_race", Title: "Violation trends by age and race", Category: CategoryComplex,
			Columns: []string{"driver_age", "driver_race", "violation", "cnt"}, DefaultLimit: 200,
		},
		pipeline: func() mongo.Pipeline {
			keys := by("driver_age", "driver_race", "violation")
			return mongo.Pipeline{
				match(bson.M{"driver_age": bson.M{"$type": "number"}}),
				group(keys, bson.D{{Key: "cnt", Value: countAll()}}),
				flatten(keys, "cnt"),
				sortBy(desc("cnt"), asc("driver_age"), asc("driver_race"), asc("violation")),
			}
		},
	},
	{
		def: model.ReportDef{
			Name: "time_period_breakdown", Title: "Stops by year, month and hour", Category: CategoryComplex,
			Columns: []string{"year", "month", "hour", "stops"},
		},
		pipeline: func() mongo.Pipeline {
			keys := []groupKey{
				{name: "year", expr: datePart("$year")},
				{name: "month", expr: datePart("$month")},
				{name: "hour", expr: hourOfStop},
			}
			return mongo.Pipeline{
				group(keys, bson.D{{Key: "stops", Value: countAll()}}),
				flatten(keys, "stops"),
				sortBy(desc("year"), desc("month"), asc("hour")),
			}
		},
	},
	{
		def: model.ReportDef{
			Name: "high_rate_violations", Title: "Violations with high search and arrest rates", Category: CategoryComplex,
			Columns: []string{"violation", "total_stops", "searches", "arrests", "search_rate", "arrest_rate"},
		},
		pipeline: func() mongo.Pipeline {
			keys := by("violation")
			return mongo.Pipeline{
				group(keys, bson.D{
					{Key: "total_stops", Value: countAll()},
					{Key: "searches", Value: countIf(isTrue("search_conducted"))},
					{Key: "arrests", Value: countIf(isTrue("is_arrested"))},
				}),
				flatten(keys, "total_stops", "searches", "arrests"),
				addFields(bson.D{
					{Key: "search_rate", Value: pct("searches", "total_stops")},
					{Key: "arrest_rate", Value: pct("arrests", "total_stops")},
				}),
				sortBy(desc("search_rate"), desc("arrest_rate"), asc("violation")),
			}
		},
	},
	{
		def: model.ReportDef{
			Name: "demographics_by_country", Title: "Driver demographics by country", Category: CategoryComplex,
			Columns: []string{"country_name", "stops", "avg_age", "male", "female"},
		},
		pipeline: func() mongo.Pipeline {
			keys := by("country_name")
			return mongo.Pipeline{
				group(keys, bson.D{
					{Key: "stops", Value: countAll()},
					{Key: "avg_age", Value: bson.M{"$avg": "$driver_age"}},
					{Key: "male", Value: countIf(bson.M{"$eq": bson.A{"$driver_gender", "Male"}})},
					{Key: "female", Value: countIf(bson.M{"$eq": bson.A{"$driver_gender", "Female"}})},
				}),
				flatten(keys, "stops", "male", "female"),
				addFields(bson.D{{Key: "avg_age", Value: bson.M{"$round": bson.A{"$avg_age", 1}}}}),
				sortBy(desc("stops"), asc("country_name")),
			}
		},
	},
	{
		def: model.ReportDef{
			Name: "top_arrest_violations", Title: "Top 5 violations by arrest rate", Category: CategoryComplex,
			Columns: []string{"violation", "total_stops", "arrests", "arrest_rate"}, DefaultLimit: 5,
		},
		pipeline: func() mongo.Pipeline {
			keys := by("violation")
			return mongo.Pipeline{
				group(keys, bson.D{
					{Key: "total_stops", Value: countAll()},
					{Key: "arrests", Value: countIf(isTrue("is_arrested"))},
				}),
				flatten(keys, "total_stops", "arrests"),
				addFields(bson.D{{Key: "arrest_rate", Value: pct("arrests", "total_stops")}}),
				sortBy(desc("arrest_rate"), asc("violation")),
			}
		},
	},
}

var reportsByName = func() map[string]report {
	m := make(map[string]report, len(catalogue))
	for _, r := range catalogue {
		m[r.def.Name] = r
	}
	return m
}()

// Reports lists every named aggregation in catalogue order.
func Reports() []model.ReportDef {
	defs := make([]model.ReportDef, len(catalogue))
	for i, r := range catalogue {
		defs[i] = r.def
	}
	return defs
}

// LookupReport returns the definition of a named report.
func LookupReport(name string) (model.ReportDef, bool) {
	r, ok := reportsByName[name]
	return r.def, ok
}

func reportPipeline(name string, limit int) (mongo.Pipeline, bool) {
	r, ok := reportsByName[name]
	if !ok {
		return nil, false
	}
	p := r.pipeline()
	if limit > 0 {
		p = append(p, bson.D{{Key: "$limit", Value: limit}})
	}
	return p, true
}
