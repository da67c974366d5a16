package validators

import "go.mongodb.org/mongo-driver/bson"

const clockPattern = `^([01][0-9]|2[0-3]):[0-5][0-9]:[0-5][0-9]$`

// StopValidator checks the bookkeeping fields and the types of the known
// stop columns. Uploads carry arbitrary extra columns, so anything else is
// allowed.
var StopValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"ingest_batch_id", "ingested_at"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":             bson.M{"bsonType": "objectId"},
			"ingest_batch_id": bson.M{"bsonType": "string", "minLength": 1},
			"ingest_source":   bson.M{"bsonType": "string"},
			"ingested_at":     bson.M{"bsonType": "date"},

			"stop_date":          bson.M{"bsonType": []string{"date", "null"}},
			"stop_time":          bson.M{"bsonType": []string{"string", "null"}, "pattern": clockPattern},
			"driver_age":         bson.M{"bsonType": []string{"int", "long", "double", "null"}},
			"search_conducted":   bson.M{"bsonType": []string{"bool", "null"}},
			"is_arrested":        bson.M{"bsonType": []string{"bool", "null"}},
			"drugs_related_stop": bson.M{"bsonType": []string{"bool", "null"}},
			"needs_review":       bson.M{"bsonType": []string{"bool", "null"}},
			"violation":          bson.M{"bsonType": []string{"string", "null"}},
			"country_name":       bson.M{"bsonType": []string{"string", "null"}},
			"driver_gender":      bson.M{"bsonType": []string{"string", "null"}},
		},
	},
}
