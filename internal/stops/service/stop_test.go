package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	stopserrors "checkpost/internal/stops/errors"
	"checkpost/internal/stops/validator"
	"checkpost/pkg/config"
	apperrors "checkpost/pkg/errors"
	"checkpost/pkg/logger"
	"checkpost/pkg/model"
	"checkpost/pkg/table"

	"go.mongodb.org/mongo-driver/mongo"
)

type mockStopRepository struct {
	insertBatchFunc        func(ctx context.Context, batch *table.Batch, meta model.BatchMeta) (*model.InsertOutcome, error)
	findByIDFunc           func(ctx context.Context, id string) (*model.Stop, error)
	searchFunc             func(ctx context.Context, filter model.StopFilter, limit int, offset int64) ([]*model.Stop, error)
	countFunc              func(ctx context.Context, filter model.StopFilter) (int64, error)
	summarizeFunc          func(ctx context.Context, filter model.StopFilter) (*model.Summary, error)
	repeatedVehiclesFunc   func(ctx context.Context, since time.Time, minStops, limit int) ([]model.RepeatedVehicle, error)
	searchArrestEventsFunc func(ctx context.Context, filter model.StopFilter, limit int) ([]*model.Stop, error)
	runReportFunc          func(ctx context.Context, name string, limit int) ([]map[string]any, error)
}

func (m *mockStopRepository) InsertBatch(ctx context.Context, batch *table.Batch, meta model.BatchMeta) (*model.InsertOutcome, error) {
	if m.insertBatchFunc != nil {
		return m.insertBatchFunc(ctx, batch, meta)
	}
	ids := make([]string, batch.Len())
	for i := range ids {
		ids[i] = fmt.Sprintf("id%d", i)
	}
	return &model.InsertOutcome{IDs: ids}, nil
}

func (m *mockStopRepository) FindByID(ctx context.Context, id string) (*model.Stop, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return &model.Stop{ID: id}, nil
}

func (m *mockStopRepository) Search(ctx context.Context, filter model.StopFilter, limit int, offset int64) ([]*model.Stop, error) {
	if m.searchFunc != nil {
		return m.searchFunc(ctx, filter, limit, offset)
	}
	return []*model.Stop{}, nil
}

func (m *mockStopRepository) Count(ctx context.Context, filter model.StopFilter) (int64, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx, filter)
	}
	return 0, nil
}

func (m *mockStopRepository) Summarize(ctx context.Context, filter model.StopFilter) (*model.Summary, error) {
	if m.summarizeFunc != nil {
		return m.summarizeFunc(ctx, filter)
	}
	return &model.Summary{}, nil
}

func (m *mockStopRepository) RepeatedVehicles(ctx context.Context, since time.Time, minStops, limit int) ([]model.RepeatedVehicle, error) {
	if m.repeatedVehiclesFunc != nil {
		return m.repeatedVehiclesFunc(ctx, since, minStops, limit)
	}
	return []model.RepeatedVehicle{}, nil
}

func (m *mockStopRepository) SearchArrestEvents(ctx context.Context, filter model.StopFilter, limit int) ([]*model.Stop, error) {
	if m.searchArrestEventsFunc != nil {
		return m.searchArrestEventsFunc(ctx, filter, limit)
	}
	return []*model.Stop{}, nil
}

func (m *mockStopRepository) RunReport(ctx context.Context, name string, limit int) ([]map[string]any, error) {
	if m.runReportFunc != nil {
		return m.runReportFunc(ctx, name, limit)
	}
	return []map[string]any{}, nil
}

func (m *mockStopRepository) Aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]map[string]any, error) {
	return []map[string]any{}, nil
}

type mockPublisher struct {
	mu         sync.Mutex
	batches    []*model.BatchIngestedEvent
	reviews    []model.StopReviewEvent
	reviewErr  error
	batchErr   error
	reviewCall int
}

func (p *mockPublisher) PublishBatchIngested(_ context.Context, evt *model.BatchIngestedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, evt)
	return p.batchErr
}

func (p *mockPublisher) PublishStopReviews(_ context.Context, evts []model.StopReviewEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reviewCall++
	p.reviews = append(p.reviews, evts...)
	return p.reviewErr
}

var fixedNow = time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)

func newTestConfig() *config.Config {
	return &config.Config{
		Log:                   logger.Discard(),
		MongoOpTimeout:        5 * time.Second,
		MaxIngestRows:         100,
		PreviewRows:           2,
		RecentStopsLimit:      200,
		FilteredStopsLimit:    1000,
		ReportRowLimit:        20,
		RepeatVehicleWindow:   30 * 24 * time.Hour,
		RepeatVehicleMinStops: 2,
		RepeatVehicleLimit:    50,
	}
}

func newTestService(repo *mockStopRepository, pub EventPublisher) (*stopService, *config.Config) {
	cfg := newTestConfig()
	svc := NewStopService(repo, validator.NewStopValidator(cfg.Log), pub, cfg).(*stopService)
	svc.now = func() time.Time { return fixedNow }
	return svc, cfg
}

func requireAppError(t *testing.T, err error, code string) *apperrors.AppError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	if appErr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, appErr.Code, appErr.Message)
	}
	return appErr
}

const sampleCSV = "stop_date,stop_time,driver_age,search_conducted,is_arrested,violation_raw,vehicle_number\n" +
	"2020-01-15,14:30,34,TRUE,false,Speeding 10 over,TN01\n" +
	",,abc,maybe,1,DUI,TN02\n"

func TestIngestCSV_StoresNormalizedBatch(t *testing.T) {
	var stored *table.Batch
	var storedMeta model.BatchMeta
	repo := &mockStopRepository{
		insertBatchFunc: func(_ context.Context, batch *table.Batch, meta model.BatchMeta) (*model.InsertOutcome, error) {
			stored, storedMeta = batch, meta
			return &model.InsertOutcome{IDs: []string{"id0", "id1"}}, nil
		},
	}
	pub := &mockPublisher{}
	svc, _ := newTestService(repo, pub)

	result, err := svc.IngestCSV(context.Background(), strings.NewReader(sampleCSV), " /tmp/uploads/march.csv ")
	if err != nil {
		t.Fatalf("IngestCSV() error = %v", err)
	}

	if result.Rows != 2 || result.Inserted != 2 || result.Failed != 0 {
		t.Errorf("rows/inserted/failed = %d/%d/%d, want 2/2/0", result.Rows, result.Inserted, result.Failed)
	}
	if result.NeedsReview != 1 {
		t.Errorf("NeedsReview = %d, want 1", result.NeedsReview)
	}
	if result.BatchID == "" || result.BatchID != storedMeta.BatchID {
		t.Errorf("batch id %q not passed to storage (%q)", result.BatchID, storedMeta.BatchID)
	}
	if storedMeta.Source != "march.csv" {
		t.Errorf("Source = %q, want march.csv", storedMeta.Source)
	}
	if !storedMeta.IngestedAt.Equal(fixedNow) {
		t.Errorf("IngestedAt = %v, want %v", storedMeta.IngestedAt, fixedNow)
	}

	if got := stored.Get(0, "violation"); got.String() != "Speeding" {
		t.Errorf("violation = %q, want Speeding", got.String())
	}
	if got := stored.Get(1, "violation"); got.String() != "DUI" {
		t.Errorf("violation = %q, want DUI", got.String())
	}
	if tb, _ := stored.Get(1, "search_conducted").TriBool(); tb != table.Unknown {
		t.Errorf("search_conducted = %v, want Unknown", tb)
	}
	if !stored.Get(1, "driver_age").IsNull() {
		t.Errorf("driver_age should be absent for %q", "abc")
	}

	if len(pub.batches) != 1 || pub.batches[0].BatchID != result.BatchID {
		t.Fatalf("expected one batch event for %s, got %+v", result.BatchID, pub.batches)
	}
	if len(pub.reviews) != 1 {
		t.Fatalf("expected one review event, got %d", len(pub.reviews))
	}
	if pub.reviews[0].StopID != "id1" || pub.reviews[0].RowIndex != 1 {
		t.Errorf("review event = %+v, want stop id1 at row 1", pub.reviews[0])
	}
}

func TestIngestCSV_FailedRowsSkipped(t *testing.T) {
	repo := &mockStopRepository{
		insertBatchFunc: func(_ context.Context, batch *table.Batch, _ model.BatchMeta) (*model.InsertOutcome, error) {
			return &model.InsertOutcome{
				IDs:    []string{"id0", ""},
				Failed: []model.FailedRow{{Index: 1, Reason: "document failed validation"}},
			}, nil
		},
	}
	pub := &mockPublisher{}
	svc, _ := newTestService(repo, pub)

	result, err := svc.IngestCSV(context.Background(), strings.NewReader(sampleCSV), "")
	if err != nil {
		t.Fatalf("IngestCSV() error = %v", err)
	}
	if result.Inserted != 1 || result.Failed != 1 {
		t.Errorf("inserted/failed = %d/%d, want 1/1", result.Inserted, result.Failed)
	}
	if len(result.FailedRows) != 1 || result.FailedRows[0].Index != 1 {
		t.Errorf("FailedRows = %+v", result.FailedRows)
	}
	if pub.reviewCall != 0 {
		t.Errorf("review events must only cover stored rows, got %d calls", pub.reviewCall)
	}
}

func TestIngest_PublishFailureDoesNotFail(t *testing.T) {
	pub := &mockPublisher{batchErr: errors.New("broker down"), reviewErr: errors.New("broker down")}
	svc, _ := newTestService(&mockStopRepository{}, pub)

	result, err := svc.IngestCSV(context.Background(), strings.NewReader(sampleCSV), "x.csv")
	if err != nil {
		t.Fatalf("IngestCSV() error = %v", err)
	}
	if result.Inserted != 2 {
		t.Errorf("Inserted = %d, want 2", result.Inserted)
	}
}

func TestIngest_NilPublisher(t *testing.T) {
	cfg := newTestConfig()
	svc := NewStopService(&mockStopRepository{}, validator.NewStopValidator(cfg.Log), nil, cfg)

	if _, err := svc.IngestCSV(context.Background(), strings.NewReader(sampleCSV), ""); err != nil {
		t.Fatalf("IngestCSV() error = %v", err)
	}
}

func TestIngestRecords(t *testing.T) {
	var stored *table.Batch
	repo := &mockStopRepository{
		insertBatchFunc: func(_ context.Context, batch *table.Batch, _ model.BatchMeta) (*model.InsertOutcome, error) {
			stored = batch
			return &model.InsertOutcome{IDs: []string{"a"}}, nil
		},
	}
	svc, _ := newTestService(repo, &mockPublisher{})

	body := `[{"Stop_Date": "2021-03-04", "stop_time": "9:05 PM", "driver_age": 41, "is_arrested": true, "country_name": null}]`
	result, err := svc.IngestRecords(context.Background(), strings.NewReader(body), "api")
	if err != nil {
		t.Fatalf("IngestRecords() error = %v", err)
	}

	if result.RenamedColumns["Stop_Date"] != "stop_date" {
		t.Errorf("RenamedColumns = %v", result.RenamedColumns)
	}
	found := false
	for _, c := range result.DroppedColumns {
		if c == "country_name" {
			found = true
		}
	}
	if !found {
		t.Errorf("country_name should be dropped, got %v", result.DroppedColumns)
	}
	if got := stored.Get(0, "stop_time").String(); got != "21:05:00" {
		t.Errorf("stop_time = %q, want 21:05:00", got)
	}
	if got, _ := stored.Get(0, "driver_age").Int64(); got != 41 {
		t.Errorf("driver_age = %d, want 41", got)
	}
}

func TestIngest_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		body     io.Reader
		maxRows  int
		wantCode string
	}{
		{"header only", FormatCSV, strings.NewReader("a,b\n"), 100, apperrors.CodeInvalidInput},
		{"no header", FormatCSV, strings.NewReader(""), 100, apperrors.CodeInvalidInput},
		{"ragged row", FormatCSV, strings.NewReader("a,b\n1,2,3\n"), 100, apperrors.CodeInvalidInput},
		{"too many rows", FormatCSV, strings.NewReader("a\n1\n2\n3\n"), 2, apperrors.CodeTooLarge},
		{"columns collide", FormatCSV, strings.NewReader("Violation,violation\nx,y\n"), 100, apperrors.CodeInvalidInput},
		{"empty array", FormatJSON, strings.NewReader("[]"), 100, apperrors.CodeInvalidInput},
		{"nested json", FormatJSON, strings.NewReader(`[{"a": {"b": 1}}]`), 100, apperrors.CodeInvalidInput},
		{"body too large", FormatCSV, errReader{&http.MaxBytesError{Limit: 10}}, 100, apperrors.CodeTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			repo := &mockStopRepository{
				insertBatchFunc: func(context.Context, *table.Batch, model.BatchMeta) (*model.InsertOutcome, error) {
					called = true
					return &model.InsertOutcome{}, nil
				},
			}
			svc, cfg := newTestService(repo, &mockPublisher{})
			cfg.MaxIngestRows = tt.maxRows

			_, err := svc.ingest(context.Background(), tt.format, tt.body, "")
			requireAppError(t, err, tt.wantCode)
			if called {
				t.Errorf("rejected upload must not reach storage")
			}
		})
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestIngest_CollisionDetails(t *testing.T) {
	svc, _ := newTestService(&mockStopRepository{}, &mockPublisher{})

	_, err := svc.IngestCSV(context.Background(), strings.NewReader("Violation,violation\nx,y\n"), "")
	appErr := requireAppError(t, err, apperrors.CodeInvalidInput)

	cols, ok := appErr.Details["columns"].([]string)
	if !ok || len(cols) != 2 {
		t.Fatalf("expected both colliding columns in details, got %v", appErr.Details)
	}
}

func TestIngest_StorageError(t *testing.T) {
	repo := &mockStopRepository{
		insertBatchFunc: func(context.Context, *table.Batch, model.BatchMeta) (*model.InsertOutcome, error) {
			return nil, errors.New("connection refused")
		},
	}
	pub := &mockPublisher{}
	svc, _ := newTestService(repo, pub)

	_, err := svc.IngestCSV(context.Background(), strings.NewReader(sampleCSV), "")
	requireAppError(t, err, apperrors.CodeInternal)
	if len(pub.batches) != 0 {
		t.Errorf("no event should be published when storage fails")
	}
}

func TestIngest_StorageErrorAfterPartialInsert(t *testing.T) {
	repo := &mockStopRepository{
		insertBatchFunc: func(context.Context, *table.Batch, model.BatchMeta) (*model.InsertOutcome, error) {
			return &model.InsertOutcome{
				IDs:    []string{"id0", ""},
				Failed: []model.FailedRow{{Index: 1, Reason: model.FailReasonStoreError}},
			}, mongo.CommandError{Code: 89, Message: "network timeout"}
		},
	}
	pub := &mockPublisher{}
	svc, _ := newTestService(repo, pub)

	result, err := svc.IngestCSV(context.Background(), strings.NewReader(sampleCSV), "march.csv")
	if err != nil {
		t.Fatalf("IngestCSV() error = %v, want the partial result", err)
	}
	if result.BatchID == "" {
		t.Fatal("partial result must carry the batch id")
	}
	if result.Inserted != 1 || result.Failed != 1 {
		t.Errorf("inserted/failed = %d/%d, want 1/1", result.Inserted, result.Failed)
	}
	if len(result.FailedRows) != 1 || result.FailedRows[0].Reason != model.FailReasonStoreError {
		t.Errorf("FailedRows = %+v", result.FailedRows)
	}
	if len(pub.batches) != 1 || pub.batches[0].Inserted != 1 {
		t.Errorf("expected one batch event for the stored row, got %+v", pub.batches)
	}
}

func TestIngest_StorageErrorNothingStored(t *testing.T) {
	repo := &mockStopRepository{
		insertBatchFunc: func(context.Context, *table.Batch, model.BatchMeta) (*model.InsertOutcome, error) {
			return &model.InsertOutcome{
				IDs: []string{"", ""},
				Failed: []model.FailedRow{
					{Index: 0, Reason: model.FailReasonStoreError},
					{Index: 1, Reason: model.FailReasonStoreError},
				},
			}, errors.New("connection reset")
		},
	}
	pub := &mockPublisher{}
	svc, _ := newTestService(repo, pub)

	_, err := svc.IngestCSV(context.Background(), strings.NewReader(sampleCSV), "")
	requireAppError(t, err, apperrors.CodeInternal)
	if len(pub.batches) != 0 {
		t.Errorf("no event should be published when nothing was stored")
	}
}

func TestPreview(t *testing.T) {
	called := false
	repo := &mockStopRepository{
		insertBatchFunc: func(context.Context, *table.Batch, model.BatchMeta) (*model.InsertOutcome, error) {
			called = true
			return &model.InsertOutcome{}, nil
		},
	}
	svc, _ := newTestService(repo, &mockPublisher{})

	csv := sampleCSV + "2020-02-01,08:00,22,false,false,seat belt,TN03\n"
	preview, err := svc.Preview(context.Background(), strings.NewReader(csv), FormatCSV, 0)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if called {
		t.Errorf("Preview must not store anything")
	}
	if preview.Rows != 3 {
		t.Errorf("Rows = %d, want 3", preview.Rows)
	}
	if len(preview.Sample) != 2 {
		t.Errorf("Sample size = %d, want the configured 2", len(preview.Sample))
	}
	if preview.NeedsReview != 1 {
		t.Errorf("NeedsReview = %d, want 1", preview.NeedsReview)
	}

	one, err := svc.Preview(context.Background(), strings.NewReader(csv), FormatCSV, 1)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if len(one.Sample) != 1 {
		t.Errorf("Sample size = %d, want 1", len(one.Sample))
	}
}

func TestSearch_Limits(t *testing.T) {
	tests := []struct {
		name       string
		filter     model.StopFilter
		wantLimit  int
		wantFilter bool
		wantFrom   time.Time
	}{
		{
			name:      "recent view",
			filter:    model.StopFilter{},
			wantLimit: 200,
		},
		{
			name:       "filtered view gets default range",
			filter:     model.StopFilter{Gender: "female"},
			wantLimit:  1000,
			wantFilter: true,
			wantFrom:   model.DefaultFilterFrom,
		},
		{
			name:       "explicit limit kept",
			filter:     model.StopFilter{Violation: "speed", Limit: 25},
			wantLimit:  25,
			wantFilter: true,
			wantFrom:   model.DefaultFilterFrom,
		},
		{
			name:      "recent view capped",
			filter:    model.StopFilter{Limit: 5000},
			wantLimit: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotFilter model.StopFilter
			var gotLimit int
			repo := &mockStopRepository{
				searchFunc: func(_ context.Context, f model.StopFilter, limit int, _ int64) ([]*model.Stop, error) {
					gotFilter, gotLimit = f, limit
					return []*model.Stop{{ID: "1"}}, nil
				},
				countFunc: func(context.Context, model.StopFilter) (int64, error) { return 42, nil },
			}
			svc, _ := newTestService(repo, nil)

			page, err := svc.Search(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if page.Limit != tt.wantLimit || gotLimit != tt.wantLimit {
				t.Errorf("limit = %d (repo %d), want %d", page.Limit, gotLimit, tt.wantLimit)
			}
			if page.Filtered != tt.wantFilter {
				t.Errorf("Filtered = %v, want %v", page.Filtered, tt.wantFilter)
			}
			if page.Total != 42 || len(page.Stops) != 1 {
				t.Errorf("page = %+v", page)
			}
			if !gotFilter.From.Equal(tt.wantFrom) {
				t.Errorf("From = %v, want %v", gotFilter.From, tt.wantFrom)
			}
			if tt.wantFilter && !gotFilter.To.Equal(fixedNow) {
				t.Errorf("To = %v, want %v", gotFilter.To, fixedNow)
			}
		})
	}
}

func TestSearch_SanitizesChoices(t *testing.T) {
	var got model.StopFilter
	repo := &mockStopRepository{
		searchFunc: func(_ context.Context, f model.StopFilter, _ int, _ int64) ([]*model.Stop, error) {
			got = f
			return nil, nil
		},
	}
	svc, _ := newTestService(repo, nil)

	_, err := svc.Search(context.Background(), model.StopFilter{Gender: " male ", Searched: "TRUE", VehicleNumber: " TN  01 "})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got.Gender != "Male" || got.Searched != "True" || got.VehicleNumber != "TN 01" {
		t.Errorf("filter not sanitized: %+v", got)
	}
}

func TestSearch_Errors(t *testing.T) {
	svc, _ := newTestService(&mockStopRepository{}, nil)
	_, err := svc.Search(context.Background(), model.StopFilter{Gender: "robot"})
	appErr := requireAppError(t, err, apperrors.CodeValidation)
	if _, ok := appErr.Details["gender"]; !ok {
		t.Errorf("expected gender in details, got %v", appErr.Details)
	}

	repo := &mockStopRepository{
		countFunc: func(context.Context, model.StopFilter) (int64, error) { return 0, errors.New("timeout") },
	}
	svc, _ = newTestService(repo, nil)
	_, err = svc.Search(context.Background(), model.StopFilter{})
	requireAppError(t, err, apperrors.CodeInternal)
}

func TestGetByID(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		repoErr  error
		wantCode string
	}{
		{"found", "65f0c0ffee65f0c0ffee65f0", nil, ""},
		{"empty id", "", nil, apperrors.CodeInvalidInput},
		{"not found", "65f0c0ffee65f0c0ffee65f0", fmt.Errorf("%w: x", stopserrors.ErrNotFound), apperrors.CodeNotFound},
		{"bad id", "zzz", fmt.Errorf("%w: zzz", stopserrors.ErrInvalidID), apperrors.CodeInvalidInput},
		{"db failure", "65f0c0ffee65f0c0ffee65f0", errors.New("boom"), apperrors.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockStopRepository{
				findByIDFunc: func(_ context.Context, id string) (*model.Stop, error) {
					if tt.repoErr != nil {
						return nil, tt.repoErr
					}
					return &model.Stop{ID: id}, nil
				},
			}
			svc, _ := newTestService(repo, nil)

			stop, err := svc.GetByID(context.Background(), tt.id)
			if tt.wantCode == "" {
				if err != nil || stop.ID != tt.id {
					t.Fatalf("GetByID() = %v, %v", stop, err)
				}
				return
			}
			requireAppError(t, err, tt.wantCode)
		})
	}
}

func TestSummary(t *testing.T) {
	age := 33.456
	repo := &mockStopRepository{
		summarizeFunc: func(context.Context, model.StopFilter) (*model.Summary, error) {
			return &model.Summary{
				Total:           8,
				Arrests:         2,
				Searches:        4,
				DrugRelated:     1,
				HighRisk:        1,
				AvgDriverAge:    &age,
				TopGender:       &model.Bucket{Value: "Male", Count: 6},
				TopViolation:    &model.Bucket{Value: "Speeding", Count: 5},
				TopStopDuration: &model.Bucket{Value: "0-15 Min", Count: 7},
				TopOutcome:      &model.Bucket{Value: "Citation", Count: 5},
			}, nil
		},
	}
	svc, _ := newTestService(repo, nil)

	s, err := svc.Summary(context.Background(), model.StopFilter{})
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if s.ArrestRate != 25 || s.SearchRate != 50 || s.DrugRate != 12.5 || s.HighRiskRate != 12.5 {
		t.Errorf("rates = %v/%v/%v/%v", s.ArrestRate, s.SearchRate, s.DrugRate, s.HighRiskRate)
	}
	if *s.AvgDriverAge != 33.5 {
		t.Errorf("AvgDriverAge = %v, want 33.5", *s.AvgDriverAge)
	}

	want := []string{
		"Most stopped drivers are Male (6 stops)",
		"Drug-related stops: 12.5% of filtered results",
		"Most common stop duration: 0-15 Min",
		"Most common outcome: Citation",
		"High-risk stops (searched & arrested): 1 (12.5%)",
	}
	if len(s.Insights) != len(want) {
		t.Fatalf("Insights = %v", s.Insights)
	}
	for i := range want {
		if s.Insights[i] != want[i] {
			t.Errorf("Insights[%d] = %q, want %q", i, s.Insights[i], want[i])
		}
	}
}

func TestSummary_Empty(t *testing.T) {
	svc, _ := newTestService(&mockStopRepository{}, nil)

	s, err := svc.Summary(context.Background(), model.StopFilter{Violation: "nothing matches"})
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if s.Total != 0 || s.ArrestRate != 0 || len(s.Insights) != 0 {
		t.Errorf("empty summary = %+v", s)
	}
}

func TestAlerts(t *testing.T) {
	var gotSince time.Time
	var gotMin, gotLimit, gotEventsLimit int
	repo := &mockStopRepository{
		repeatedVehiclesFunc: func(_ context.Context, since time.Time, minStops, limit int) ([]model.RepeatedVehicle, error) {
			gotSince, gotMin, gotLimit = since, minStops, limit
			return []model.RepeatedVehicle{{VehicleNumber: "TN01", Stops: 3}}, nil
		},
		searchArrestEventsFunc: func(_ context.Context, _ model.StopFilter, limit int) ([]*model.Stop, error) {
			gotEventsLimit = limit
			return []*model.Stop{{ID: "x"}}, nil
		},
	}
	svc, _ := newTestService(repo, nil)

	alerts, err := svc.Alerts(context.Background(), model.StopFilter{})
	if err != nil {
		t.Fatalf("Alerts() error = %v", err)
	}
	if want := fixedNow.Add(-30 * 24 * time.Hour); !gotSince.Equal(want) || !alerts.Since.Equal(want) {
		t.Errorf("since = %v, want %v", gotSince, want)
	}
	if gotMin != 2 || gotLimit != 50 || gotEventsLimit != 1000 {
		t.Errorf("min/limit/events limit = %d/%d/%d", gotMin, gotLimit, gotEventsLimit)
	}
	if len(alerts.RepeatedVehicles) != 1 || len(alerts.SearchArrestEvents) != 1 {
		t.Errorf("alerts = %+v", alerts)
	}
}

func TestAlerts_RepositoryError(t *testing.T) {
	repo := &mockStopRepository{
		searchArrestEventsFunc: func(context.Context, model.StopFilter, int) ([]*model.Stop, error) {
			return nil, errors.New("boom")
		},
	}
	svc, _ := newTestService(repo, nil)

	_, err := svc.Alerts(context.Background(), model.StopFilter{})
	requireAppError(t, err, apperrors.CodeInternal)
}

func TestReport(t *testing.T) {
	tests := []struct {
		name      string
		report    string
		limit     int
		wantLimit int
		wantCode  string
	}{
		{"report default limit", "top_arrest_violations", 0, 5, ""},
		{"configured cap", "stops_by_hour", 0, 20, ""},
		{"caller limit", "stops_by_hour", 7, 7, ""},
		{"caller limit above cap", "violation_trends_age_race", 50, 20, ""},
		{"unknown report", "no_such_report", 0, 0, apperrors.CodeNotFound},
		{"invalid name", "Bad Name", 0, 0, apperrors.CodeValidation},
		{"invalid limit", "stops_by_hour", 100000, 0, apperrors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLimit int
			repo := &mockStopRepository{
				runReportFunc: func(_ context.Context, _ string, limit int) ([]map[string]any, error) {
					gotLimit = limit
					return []map[string]any{{"stops": 3}}, nil
				},
			}
			svc, _ := newTestService(repo, nil)

			res, err := svc.Report(context.Background(), tt.report, tt.limit)
			if tt.wantCode != "" {
				requireAppError(t, err, tt.wantCode)
				return
			}
			if err != nil {
				t.Fatalf("Report() error = %v", err)
			}
			if gotLimit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", gotLimit, tt.wantLimit)
			}
			if res.Report.Name != tt.report || len(res.Rows) != 1 {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestReports(t *testing.T) {
	svc, _ := newTestService(&mockStopRepository{}, nil)
	if got := len(svc.Reports()); got != 20 {
		t.Errorf("Reports() returned %d definitions, want 20", got)
	}
}
