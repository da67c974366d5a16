package repository

import (
	"strconv"
	"strings"

	"checkpost/pkg/model"
	"checkpost/pkg/table"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	FieldID            = "_id"
	FieldIngestBatchID = "ingest_batch_id"
	FieldIngestSource  = "ingest_source"
	FieldIngestedAt    = "ingested_at"
)

var reservedFields = map[string]bool{
	FieldID:            true,
	FieldIngestBatchID: true,
	FieldIngestSource:  true,
	FieldIngestedAt:    true,
}

// FieldName maps a cleaned column name onto a storable document key.
// Mongo rejects dots and a leading dollar; bookkeeping fields are suffixed.
func FieldName(column string) string {
	name := strings.ReplaceAll(column, ".", "_")
	if strings.HasPrefix(name, "$") {
		name = "_" + name[1:]
	}
	if reservedFields[name] {
		name += "_src"
	}
	return name
}

// toDocument builds the stored form of one cleaned row. Absent cells are
// omitted; an unknown tri-state flag is stored as null.
func toDocument(id primitive.ObjectID, columns []string, row table.Row, meta model.BatchMeta) bson.D {
	doc := make(bson.D, 0, len(row)+4)
	doc = append(doc, bson.E{Key: FieldID, Value: id})

	used := make(map[string]bool, len(columns))
	for _, col := range columns {
		name := uniqueField(FieldName(col), used)
		v, ok := row[col]
		if !ok || v.IsNull() {
			continue
		}
		doc = append(doc, bson.E{Key: name, Value: bsonValue(v)})
	}

	doc = append(doc, bson.E{Key: FieldIngestBatchID, Value: meta.BatchID})
	if meta.Source != "" {
		doc = append(doc, bson.E{Key: FieldIngestSource, Value: meta.Source})
	}
	doc = append(doc, bson.E{Key: FieldIngestedAt, Value: primitive.NewDateTimeFromTime(meta.IngestedAt)})
	return doc
}

func uniqueField(name string, used map[string]bool) string {
	candidate := name
	for i := 2; used[candidate]; i++ {
		candidate = name + "_" + strconv.Itoa(i)
	}
	used[candidate] = true
	return candidate
}

func bsonValue(v table.Value) any {
	if t, ok := v.Time(); ok && v.Kind() == table.KindDate {
		return primitive.NewDateTimeFromTime(t)
	}
	return v.Interface()
}
