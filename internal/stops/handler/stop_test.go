package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "checkpost/pkg/errors"
	httputil "checkpost/pkg/http"
	"checkpost/pkg/logger"
	"checkpost/pkg/model"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type ingestCall struct {
	kind   string
	body   string
	source string
	format string
	limit  int
}

type mockStopService struct {
	calls      []ingestCall
	ingestErr  error
	searchFunc func(ctx context.Context, filter model.StopFilter) (*model.StopPage, error)
	getFunc    func(ctx context.Context, id string) (*model.Stop, error)
	reportFunc func(ctx context.Context, name string, limit int) (*model.ReportResult, error)
}

func (m *mockStopService) record(kind string, r io.Reader, source, format string, limit int) {
	body, _ := io.ReadAll(r)
	m.calls = append(m.calls, ingestCall{kind: kind, body: string(body), source: source, format: format, limit: limit})
}

func (m *mockStopService) IngestCSV(_ context.Context, r io.Reader, source string) (*model.IngestResult, error) {
	m.record("csv", r, source, "", 0)
	if m.ingestErr != nil {
		return nil, m.ingestErr
	}
	return &model.IngestResult{BatchID: "b1", Rows: 1, Inserted: 1}, nil
}

func (m *mockStopService) IngestRecords(_ context.Context, r io.Reader, source string) (*model.IngestResult, error) {
	m.record("json", r, source, "", 0)
	if m.ingestErr != nil {
		return nil, m.ingestErr
	}
	return &model.IngestResult{BatchID: "b2", Rows: 1, Inserted: 1}, nil
}

func (m *mockStopService) Preview(_ context.Context, r io.Reader, format string, limit int) (*model.Preview, error) {
	m.record("preview", r, "", format, limit)
	return &model.Preview{Rows: 1}, nil
}

func (m *mockStopService) Search(ctx context.Context, filter model.StopFilter) (*model.StopPage, error) {
	if m.searchFunc != nil {
		return m.searchFunc(ctx, filter)
	}
	return &model.StopPage{Stops: []*model.Stop{}}, nil
}

func (m *mockStopService) GetByID(ctx context.Context, id string) (*model.Stop, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return &model.Stop{ID: id}, nil
}

func (m *mockStopService) Summary(context.Context, model.StopFilter) (*model.Summary, error) {
	return &model.Summary{Total: 3, Insights: []string{}}, nil
}

func (m *mockStopService) Alerts(context.Context, model.StopFilter) (*model.Alerts, error) {
	return &model.Alerts{MinStops: 2}, nil
}

func (m *mockStopService) Reports() []model.ReportDef {
	return []model.ReportDef{{Name: "stops_by_hour"}}
}

func (m *mockStopService) Report(ctx context.Context, name string, limit int) (*model.ReportResult, error) {
	if m.reportFunc != nil {
		return m.reportFunc(ctx, name, limit)
	}
	return &model.ReportResult{Report: model.ReportDef{Name: name}}, nil
}

func newTestRouter(svc *mockStopService) *httprouter.Router {
	router := httprouter.New()
	NewStopHandler(svc, logger.Discard()).RegisterRoutes(router)
	return router
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var body httputil.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON error body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestUpload_RawBodies(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantKind    string
	}{
		{"csv", "text/csv; charset=utf-8", "a,b\n1,2\n", "csv"},
		{"json records", "application/json", `[{"a": 1}]`, "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockStopService{}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/stops/upload?source=march.csv", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)

			rec := serve(newTestRouter(svc), req)

			if rec.Code != http.StatusCreated {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if len(svc.calls) != 1 {
				t.Fatalf("expected one ingest call, got %d", len(svc.calls))
			}
			call := svc.calls[0]
			if call.kind != tt.wantKind || call.body != tt.body || call.source != "march.csv" {
				t.Errorf("call = %+v", call)
			}
		})
	}
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("note", "ignored"); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUpload_Multipart(t *testing.T) {
	svc := &mockStopService{}
	body, ct := multipartBody(t, "file", "stops_2020.csv", "stop_date\n2020-01-01\n")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stops/upload", body)
	req.Header.Set("Content-Type", ct)

	rec := serve(newTestRouter(svc), req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	call := svc.calls[0]
	if call.kind != "csv" || call.source != "stops_2020.csv" || call.body != "stop_date\n2020-01-01\n" {
		t.Errorf("call = %+v", call)
	}

	var resp struct {
		Data model.IngestResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Data.BatchID != "b1" {
		t.Errorf("BatchID = %q", resp.Data.BatchID)
	}
}

func TestUpload_MultipartJSONFile(t *testing.T) {
	svc := &mockStopService{}
	body, ct := multipartBody(t, "file", "stops.JSON", `[{"a":1}]`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stops/upload", body)
	req.Header.Set("Content-Type", ct)

	rec := serve(newTestRouter(svc), req)

	if rec.Code != http.StatusCreated || svc.calls[0].kind != "json" {
		t.Fatalf("status = %d, calls = %+v", rec.Code, svc.calls)
	}
}

func TestUpload_Rejected(t *testing.T) {
	missing, missingCT := multipartBody(t, "attachment", "x.csv", "a\n1\n")

	tests := []struct {
		name        string
		contentType string
		body        io.Reader
		wantStatus  int
		wantCode    string
	}{
		{"no content type", "", strings.NewReader("a\n1\n"), http.StatusUnsupportedMediaType, apperrors.CodeUnsupportedMedia},
		{"xml", "application/xml", strings.NewReader("<a/>"), http.StatusUnsupportedMediaType, apperrors.CodeUnsupportedMedia},
		{"multipart without file", missingCT, missing, http.StatusBadRequest, apperrors.CodeInvalidInput},
		{"multipart without boundary", "multipart/form-data", strings.NewReader("x"), http.StatusBadRequest, apperrors.CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockStopService{}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/stops/upload", tt.body)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			rec := serve(newTestRouter(svc), req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if body := decodeError(t, rec); body.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", body.Code, tt.wantCode)
			}
			if len(svc.calls) != 0 {
				t.Errorf("service must not be called")
			}
		})
	}
}

func TestUpload_ServiceError(t *testing.T) {
	svc := &mockStopService{
		ingestErr: apperrors.InvalidInput("Upload is not a valid table").WithDetails(map[string]any{
			"columns": []string{"Violation", "violation"},
		}),
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stops/upload", strings.NewReader("Violation,violation\n"))
	req.Header.Set("Content-Type", "text/csv")

	rec := serve(newTestRouter(svc), req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeError(t, rec)
	if _, ok := body.Details["columns"]; !ok {
		t.Errorf("details = %v", body.Details)
	}
}

func TestPreview(t *testing.T) {
	svc := &mockStopService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stops/upload/preview?limit=5", strings.NewReader("a\n1\n"))
	req.Header.Set("Content-Type", "text/csv")

	rec := serve(newTestRouter(svc), req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if call := svc.calls[0]; call.kind != "preview" || call.format != "csv" || call.limit != 5 {
		t.Errorf("call = %+v", call)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/stops/upload/preview?limit=lots", strings.NewReader("a\n1\n"))
	req.Header.Set("Content-Type", "text/csv")
	if rec := serve(newTestRouter(svc), req); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid limit status = %d", rec.Code)
	}
}

func TestCreateBatch(t *testing.T) {
	svc := &mockStopService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stops?source=radio", strings.NewReader(`[{"violation_raw":"speeding"}]`))
	req.Header.Set("Content-Type", "application/json")

	rec := serve(newTestRouter(svc), req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	if call := svc.calls[0]; call.kind != "json" || call.source != "radio" {
		t.Errorf("call = %+v", call)
	}
}

func TestList_ParsesFilter(t *testing.T) {
	var got model.StopFilter
	svc := &mockStopService{
		searchFunc: func(_ context.Context, f model.StopFilter) (*model.StopPage, error) {
			got = f
			return &model.StopPage{Stops: []*model.Stop{{ID: "1"}}, Total: 9, Limit: 50, Offset: 10}, nil
		},
	}
	url := "/api/v1/stops?from=2020-01-01&to=2020-12-31&gender=Female&violation=speed&vehicle_number=TN01&searched=True&limit=50&offset=10"

	rec := serve(newTestRouter(svc), httptest.NewRequest(http.MethodGet, url, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	wantFrom := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.From.Equal(wantFrom) || got.To.Year() != 2020 || got.To.Month() != time.December {
		t.Errorf("range = %v..%v", got.From, got.To)
	}
	if got.Gender != "Female" || got.Violation != "speed" || got.VehicleNumber != "TN01" || got.Searched != "True" {
		t.Errorf("filter = %+v", got)
	}
	if got.Limit != 50 || got.Offset != 10 {
		t.Errorf("limit/offset = %d/%d", got.Limit, got.Offset)
	}

	var page httputil.PaginatedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if page.TotalCount != 9 || page.Limit != 50 || page.Offset != 10 {
		t.Errorf("page = %+v", page)
	}
}

func TestList_InvalidQuery(t *testing.T) {
	for _, q := range []string{"?from=01/02/2020", "?limit=abc", "?limit=-1", "?to=yesterday"} {
		t.Run(q, func(t *testing.T) {
			called := false
			svc := &mockStopService{
				searchFunc: func(context.Context, model.StopFilter) (*model.StopPage, error) {
					called = true
					return &model.StopPage{}, nil
				},
			}
			rec := serve(newTestRouter(svc), httptest.NewRequest(http.MethodGet, "/api/v1/stops"+q, nil))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if called {
				t.Errorf("service must not be called for %s", q)
			}
		})
	}
}

func TestGetByID(t *testing.T) {
	svc := &mockStopService{
		getFunc: func(_ context.Context, id string) (*model.Stop, error) {
			if id == "missing" {
				return nil, apperrors.NotFoundWithID("Stop", id)
			}
			return &model.Stop{ID: id}, nil
		},
	}
	router := newTestRouter(svc)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/stops/id/abc", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":"abc"`) {
		t.Errorf("found: status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/stops/id/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing: status = %d", rec.Code)
	}
}

func TestAnalyticsEndpoints(t *testing.T) {
	router := newTestRouter(&mockStopService{})

	for _, path := range []string{"/api/v1/stops/summary?gender=Male", "/api/v1/stops/alerts", "/api/v1/reports"} {
		rec := serve(router, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
		var body httputil.SuccessResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Data == nil {
			t.Errorf("%s: body %s", path, rec.Body.String())
		}
	}
}

func TestRunReport(t *testing.T) {
	var gotName string
	var gotLimit int
	svc := &mockStopService{
		reportFunc: func(_ context.Context, name string, limit int) (*model.ReportResult, error) {
			gotName, gotLimit = name, limit
			if name == "nope" {
				return nil, apperrors.NotFoundWithID("Report", name)
			}
			return &model.ReportResult{Report: model.ReportDef{Name: name}, Rows: []map[string]any{{"hour": 3}}}, nil
		},
	}
	router := newTestRouter(svc)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/reports/stops_by_hour?limit=12", nil))
	if rec.Code != http.StatusOK || gotName != "stops_by_hour" || gotLimit != 12 {
		t.Errorf("status = %d, name = %q, limit = %d", rec.Code, gotName, gotLimit)
	}

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/reports/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown report status = %d", rec.Code)
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context, *readpref.ReadPref) error { return p.err }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		pingErr    error
		wantStatus int
		wantState  string
	}{
		{"health", "/health", errors.New("down"), http.StatusOK, "ok"},
		{"ready", "/ready", nil, http.StatusOK, "ready"},
		{"not ready", "/ready", errors.New("no reachable servers"), http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := httprouter.New()
			NewHealthHandler(fakePinger{tt.pingErr}, logger.Discard()).RegisterRoutes(router)

			rec := serve(router, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body HealthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if body.Status != tt.wantState {
				t.Errorf("status field = %q, want %q", body.Status, tt.wantState)
			}
		})
	}
}
