// Package client is an HTTP implementation of orchestrator.Runner against
// the analytics API, for dashboards and tools that drive the orchestrator
// over the wire instead of in-process.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"atmos-server/internal/modules/analytics/types"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (tests inject a
// httptest client here).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunQuery implements orchestrator.Runner.
func (c *Client) RunQuery(ctx context.Context, req types.QueryRequest) (*types.QueryResponse, error) {
	var out types.QueryResponse
	if err := c.postJSON(ctx, "/api/v1/analytics/query", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StationLive implements orchestrator.Runner.
func (c *Client) StationLive(ctx context.Context, stationCodes []string) (*types.StationLiveSnapshot, error) {
	endpoint := c.baseURL + "/api/v1/analytics/station-live"
	if len(stationCodes) > 0 {
		q := url.Values{}
		for _, code := range stationCodes {
			q.Add("station_codes", code)
		}
		endpoint += "?" + q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var out types.StationLiveSnapshot
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FilterOptions fetches the filter metadata the dashboard populates its
// controls from.
func (c *Client) FilterOptions(ctx context.Context) (*types.FilterOptions, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/analytics/filters", nil)
	if err != nil {
		return nil, err
	}
	var out types.FilterOptions
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PreviewSQL runs a read-only SQL preview.
func (c *Client) PreviewSQL(ctx context.Context, req types.SQLPreviewRequest) (*types.SQLPreviewResponse, error) {
	var out types.SQLPreviewResponse
	if err := c.postJSON(ctx, "/api/v1/analytics/sql/preview", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// apiError extracts the server's error payload ({"error": ..., "message":
// ...}) when present, falling back to the raw status.
func apiError(resp *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		return fmt.Errorf("%s: %s", resp.Status, body.Message)
	}
	return fmt.Errorf("unexpected status %s", resp.Status)
}
