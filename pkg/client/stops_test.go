package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"checkpost/pkg/middleware"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopsClient_UploadSignsAndDecodes(t *testing.T) {
	var gotSig, gotType, gotSource, gotKey, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stops/upload", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotSig = r.Header.Get(middleware.SignatureHeader)
		gotType = r.Header.Get("Content-Type")
		gotSource = r.URL.Query().Get("source")
		gotKey = r.Header.Get(middleware.IdempotencyHeader)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"batch_id":"b1","rows":1,"inserted":1,"columns":["violation"]}}`))
	}))
	defer srv.Close()

	c := NewStopsClient(srv.URL, "s3cret")
	result, err := c.Upload(context.Background(), strings.NewReader("violation\nDUI\n"), "text/csv", "march.csv", "key-1")
	require.NoError(t, err)

	assert.Equal(t, "b1", result.BatchID)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, "text/csv", gotType)
	assert.Equal(t, "march.csv", gotSource)
	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, middleware.Sign([]byte(gotBody), "s3cret"), gotSig)
}

func TestStopsClient_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Report not found","code":"NOT_FOUND"}`))
	}))
	defer srv.Close()

	_, err := NewStopsClient(srv.URL, "").Report(context.Background(), "nope", 0)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
	assert.Equal(t, "Report not found", apiErr.Message)
}

func TestStopsClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewStopsClient(srv.URL, "").Reports(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Bad Gateway", apiErr.Message)
}

func TestStopsClient_QueryParameters(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		switch r.URL.Path {
		case "/api/v1/reports/stops_by_hour":
			_, _ = w.Write([]byte(`{"data":{"report":{"name":"stops_by_hour"},"rows":[{"hour":14,"stops":3}]}}`))
		case "/api/v1/stops/summary":
			_, _ = w.Write([]byte(`{"data":{"total":4,"arrests":1}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewStopsClient(srv.URL, "")

	report, err := c.Report(context.Background(), "stops_by_hour", 7)
	require.NoError(t, err)
	assert.Equal(t, "7", gotQuery.Get("limit"))
	require.Len(t, report.Rows, 1)
	assert.EqualValues(t, 14, report.Rows[0]["hour"])

	summary, err := c.Summary(context.Background(), url.Values{"gender": {"M"}})
	require.NoError(t, err)
	assert.Equal(t, "M", gotQuery.Get("gender"))
	assert.EqualValues(t, 4, summary.Total)
}

func TestWaitForHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	assert.NoError(t, NewHttpClient(srv.URL).WaitForHealthy(context.Background(), time.Second))
}
