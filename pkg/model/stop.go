package model

import "time"

// Stop is a stored traffic stop. Known columns are typed; any other column
// carried by the upload lands in Extra.
type Stop struct {
	ID               string     `json:"id,omitempty" bson:"_id,omitempty"`
	StopDate         *time.Time `json:"stop_date,omitempty" bson:"stop_date,omitempty"`
	StopTime         string     `json:"stop_time,omitempty" bson:"stop_time,omitempty"`
	CountryName      string     `json:"country_name,omitempty" bson:"country_name,omitempty"`
	DriverGender     string     `json:"driver_gender,omitempty" bson:"driver_gender,omitempty"`
	DriverAge        *int       `json:"driver_age,omitempty" bson:"driver_age,omitempty"`
	DriverRace       string     `json:"driver_race,omitempty" bson:"driver_race,omitempty"`
	Violation        string     `json:"violation,omitempty" bson:"violation,omitempty"`
	SearchConducted  *bool      `json:"search_conducted" bson:"search_conducted,omitempty"`
	SearchType       string     `json:"search_type,omitempty" bson:"search_type,omitempty"`
	StopOutcome      string     `json:"stop_outcome,omitempty" bson:"stop_outcome,omitempty"`
	IsArrested       *bool      `json:"is_arrested" bson:"is_arrested,omitempty"`
	StopDuration     string     `json:"stop_duration,omitempty" bson:"stop_duration,omitempty"`
	DrugsRelatedStop *bool      `json:"drugs_related_stop" bson:"drugs_related_stop,omitempty"`
	VehicleNumber    string     `json:"vehicle_number,omitempty" bson:"vehicle_number,omitempty"`
	NeedsReview      *bool      `json:"needs_review,omitempty" bson:"needs_review,omitempty"`

	IngestBatchID string    `json:"ingest_batch_id,omitempty" bson:"ingest_batch_id,omitempty"`
	IngestSource  string    `json:"ingest_source,omitempty" bson:"ingest_source,omitempty"`
	IngestedAt    time.Time `json:"ingested_at,omitempty" bson:"ingested_at,omitempty"`

	Extra map[string]any `json:"extra,omitempty" bson:",inline"`
}

// StopFilter narrows stop listings, summaries and alerts. Zero values mean
// "no constraint"; All for Gender and Searched is the same as empty.
type StopFilter struct {
	From          time.Time `json:"from,omitempty"`
	To            time.Time `json:"to,omitempty" validate:"omitempty,gtefield=From"`
	Gender        string    `json:"gender,omitempty" validate:"omitempty,oneof=All Male Female Unknown"`
	Violation     string    `json:"violation,omitempty" validate:"omitempty,max=100"`
	VehicleNumber string    `json:"vehicle_number,omitempty" validate:"omitempty,max=32,plate"`
	Searched      string    `json:"searched,omitempty" validate:"omitempty,oneof=All True False"`
	Limit         int       `json:"limit,omitempty" validate:"min=0"`
	Offset        int64     `json:"offset,omitempty" validate:"min=0"`
}

// IsFiltered reports whether any constraint beyond paging is set.
func (f StopFilter) IsFiltered() bool {
	return !f.From.IsZero() || !f.To.IsZero() ||
		(f.Gender != "" && f.Gender != FilterAll) ||
		f.Violation != "" || f.VehicleNumber != "" ||
		(f.Searched != "" && f.Searched != FilterAll)
}

const (
	FilterAll   = "All"
	FilterTrue  = "True"
	FilterFalse = "False"
)

var DefaultFilterFrom = time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC)

type StopPage struct {
	Stops    []*Stop `json:"stops"`
	Total    int64   `json:"total"`
	Limit    int     `json:"limit"`
	Offset   int64   `json:"offset"`
	Filtered bool    `json:"filtered"`
}
