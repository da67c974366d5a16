package model

import "time"

type Summary struct {
	Total        int64    `json:"total" bson:"total"`
	Arrests      int64    `json:"arrests" bson:"arrests"`
	Searches     int64    `json:"searches" bson:"searches"`
	DrugRelated  int64    `json:"drug_related" bson:"drug_related"`
	HighRisk     int64    `json:"high_risk" bson:"high_risk"`
	AvgDriverAge *float64 `json:"avg_driver_age" bson:"avg_driver_age"`

	ArrestRate   float64 `json:"arrest_rate_pct" bson:"-"`
	SearchRate   float64 `json:"search_rate_pct" bson:"-"`
	DrugRate     float64 `json:"drug_rate_pct" bson:"-"`
	HighRiskRate float64 `json:"high_risk_rate_pct" bson:"-"`

	TopViolation    *Bucket `json:"top_violation,omitempty" bson:"-"`
	TopGender       *Bucket `json:"top_gender,omitempty" bson:"-"`
	TopStopDuration *Bucket `json:"top_stop_duration,omitempty" bson:"-"`
	TopOutcome      *Bucket `json:"top_outcome,omitempty" bson:"-"`

	Insights []string `json:"insights"`
}

// Bucket is one value of a grouped field and how many stops carry it.
type Bucket struct {
	Value string `json:"value" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}

type RepeatedVehicle struct {
	VehicleNumber string `json:"vehicle_number" bson:"_id"`
	Stops         int64  `json:"stops" bson:"count"`
}

type Alerts struct {
	Since              time.Time         `json:"since"`
	MinStops           int               `json:"min_stops"`
	RepeatedVehicles   []RepeatedVehicle `json:"repeated_vehicles"`
	SearchArrestEvents []*Stop           `json:"search_arrest_events"`
}

type ReportDef struct {
	Name        string   `json:"name" yaml:"name"`
	Title       string   `json:"title" yaml:"title"`
	Category    string   `json:"category" yaml:"category"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Columns     []string `json:"columns" yaml:"columns"`

	// DefaultLimit caps the rows when the caller asks for none; 0 means the configured cap.
	DefaultLimit int `json:"default_limit,omitempty" yaml:"default_limit,omitempty"`
}

type ReportResult struct {
	Report ReportDef        `json:"report"`
	Rows   []map[string]any `json:"rows"`
}
