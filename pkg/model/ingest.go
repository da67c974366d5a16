package model

import "time"

// Reasons recorded for rows lost to a storage error that aborted the batch.
const (
	FailReasonStoreError   = "storage error while inserting this row's chunk; row may or may not be stored"
	FailReasonNotAttempted = "not attempted after an earlier storage error"
)

type FailedRow struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// InsertOutcome is the per-row result of storing a cleaned batch. IDs holds
// the stored id of each row, or "" when the row failed.
type InsertOutcome struct {
	IDs    []string    `json:"ids"`
	Failed []FailedRow `json:"failed"`
}

func (o *InsertOutcome) Inserted() int {
	return len(o.IDs) - len(o.Failed)
}

type BatchMeta struct {
	BatchID    string
	Source     string
	IngestedAt time.Time
}

type IngestResult struct {
	BatchID        string            `json:"batch_id"`
	Source         string            `json:"source,omitempty"`
	Rows           int               `json:"rows"`
	Inserted       int               `json:"inserted"`
	Failed         int               `json:"failed"`
	NeedsReview    int               `json:"needs_review"`
	Columns        []string          `json:"columns"`
	DroppedColumns []string          `json:"dropped_columns,omitempty"`
	RenamedColumns map[string]string `json:"renamed_columns,omitempty"`
	FailedRows     []FailedRow       `json:"failed_rows,omitempty"`
	IngestedAt     time.Time         `json:"ingested_at"`
}

// Preview is a cleaned sample of an upload that was not stored.
type Preview struct {
	Rows           int               `json:"rows"`
	NeedsReview    int               `json:"needs_review"`
	Columns        []string          `json:"columns"`
	DroppedColumns []string          `json:"dropped_columns,omitempty"`
	RenamedColumns map[string]string `json:"renamed_columns,omitempty"`
	Sample         []map[string]any  `json:"sample"`
}

// BatchIngestedEvent is published once per stored batch.
type BatchIngestedEvent struct {
	BatchID     string    `json:"batch_id"`
	Source      string    `json:"source,omitempty"`
	Rows        int       `json:"rows"`
	Inserted    int       `json:"inserted"`
	Failed      int       `json:"failed"`
	NeedsReview int       `json:"needs_review"`
	Columns     []string  `json:"columns"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// StopReviewEvent is published for every stored row missing both date and time.
type StopReviewEvent struct {
	BatchID  string         `json:"batch_id"`
	RowIndex int            `json:"row_index"`
	StopID   string         `json:"stop_id"`
	Record   map[string]any `json:"record"`
}
