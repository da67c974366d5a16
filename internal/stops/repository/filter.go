package repository

import (
	"regexp"
	"strings"
	"time"

	"checkpost/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
)

var regexSpecialChars = regexp.MustCompile(`[.*+?^$()[\]{}|\\]`)

// escapeRegexSpecialChars keeps user text literal inside a $regex.
func escapeRegexSpecialChars(s string) string {
	return regexSpecialChars.ReplaceAllStringFunc(s, func(match string) string {
		return "\\" + match
	})
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// buildFilter translates a StopFilter into a query document. The date range
// is inclusive on both ends.
func buildFilter(f model.StopFilter) bson.M {
	filter := bson.M{}

	if !f.From.IsZero() || !f.To.IsZero() {
		dates := bson.M{}
		if !f.From.IsZero() {
			dates["$gte"] = startOfDay(f.From)
		}
		if !f.To.IsZero() {
			dates["$lt"] = startOfDay(f.To).AddDate(0, 0, 1)
		}
		filter["stop_date"] = dates
	}

	if f.Gender != "" && f.Gender != model.FilterAll {
		filter["driver_gender"] = f.Gender
	}

	if v := strings.TrimSpace(f.Violation); v != "" {
		filter["violation"] = bson.M{"$regex": escapeRegexSpecialChars(v), "$options": "i"}
	}

	if plate := strings.TrimSpace(f.VehicleNumber); plate != "" {
		filter["vehicle_number"] = plate
	}

	switch f.Searched {
	case model.FilterTrue:
		filter["search_conducted"] = true
	case model.FilterFalse:
		filter["search_conducted"] = false
	}

	return filter
}

// listingProjection hides the redundant plate column from listed rows.
var listingProjection = bson.M{"vehicle_plate": 0}

var listingSort = bson.D{
	{Key: "stop_date", Value: -1},
	{Key: "stop_time", Value: -1},
	{Key: FieldID, Value: -1},
}

var searchArrestProjection = bson.M{
	"stop_date":      1,
	"stop_time":      1,
	"vehicle_number": 1,
	"violation":      1,
	"officer_id":     1,
	"stop_outcome":   1,
}
