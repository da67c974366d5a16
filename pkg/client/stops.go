package client

import (
	"context"
	"io"
	"net/url"
	"strconv"

	"checkpost/pkg/model"
)

// StopsClient wraps the stops API.
type StopsClient struct {
	http *HttpClient
}

func NewStopsClient(baseURL, signingSecret string) *StopsClient {
	c := NewHttpClient(baseURL)
	c.SigningSecret = signingSecret
	return &StopsClient{http: c}
}

func (c *StopsClient) HTTP() *HttpClient {
	return c.http
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// Upload sends a CSV or JSON upload. idempotencyKey may be empty.
func (c *StopsClient) Upload(ctx context.Context, body io.Reader, contentType, source, idempotencyKey string) (*model.IngestResult, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	if source != "" {
		q.Set("source", source)
	}
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{"Idempotency-Key": idempotencyKey}
	}

	resp, err := c.http.POSTRaw(ctx, withQuery("/api/v1/stops/upload", q), data, contentType, headers)
	if err != nil {
		return nil, err
	}
	var result model.IngestResult
	if err := decodeData(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *StopsClient) Preview(ctx context.Context, body io.Reader, contentType string, limit int) (*model.Preview, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	resp, err := c.http.POSTRaw(ctx, withQuery("/api/v1/stops/upload/preview", q), data, contentType, nil)
	if err != nil {
		return nil, err
	}
	var preview model.Preview
	if err := decodeData(resp, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

// Summary accepts the same filter parameters as the list endpoint.
func (c *StopsClient) Summary(ctx context.Context, filter url.Values) (*model.Summary, error) {
	resp, err := c.http.GET(ctx, withQuery("/api/v1/stops/summary", filter))
	if err != nil {
		return nil, err
	}
	var summary model.Summary
	if err := decodeData(resp, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *StopsClient) Alerts(ctx context.Context, filter url.Values) (*model.Alerts, error) {
	resp, err := c.http.GET(ctx, withQuery("/api/v1/stops/alerts", filter))
	if err != nil {
		return nil, err
	}
	var alerts model.Alerts
	if err := decodeData(resp, &alerts); err != nil {
		return nil, err
	}
	return &alerts, nil
}

func (c *StopsClient) Reports(ctx context.Context) ([]model.ReportDef, error) {
	resp, err := c.http.GET(ctx, "/api/v1/reports")
	if err != nil {
		return nil, err
	}
	var defs []model.ReportDef
	if err := decodeData(resp, &defs); err != nil {
		return nil, err
	}
	return defs, nil
}

func (c *StopsClient) Report(ctx context.Context, name string, limit int) (*model.ReportResult, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	resp, err := c.http.GET(ctx, withQuery("/api/v1/reports/"+url.PathEscape(name), q))
	if err != nil {
		return nil, err
	}
	var result model.ReportResult
	if err := decodeData(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
