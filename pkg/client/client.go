// Package client triggers detection jobs over the worker's HTTP API
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tendant/simple-detection-pipeline/pkg/pipeline"
)

// Client is an HTTP client for the detection pipeline
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new pipeline client
func New(baseURL string) *Client {
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: 30 * time.Second})
}

// NewWithHTTPClient creates a new pipeline client with a custom HTTP client
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Detect submits a detection job. The worker answers 202 Accepted, the
// standalone server 200 once the job finished.
func (c *Client) Detect(ctx context.Context, req pipeline.DetectRequest) (*pipeline.DetectResponse, error) {
	var resp pipeline.DetectResponse
	if err := c.post(ctx, "/v1/detect", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReportFalseAlert records a box that should be suppressed from now on
func (c *Client) ReportFalseAlert(ctx context.Context, req pipeline.FeedbackRequest) error {
	return c.post(ctx, "/v1/feedback", req, nil)
}

// RunStatus is the worker's view of a queued run
type RunStatus struct {
	RunID    string `json:"run_id"`
	State    string `json:"state"`
	Workflow string `json:"workflow,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Status fetches the state of a queued run
func (c *Client) Status(ctx context.Context, runID string) (*RunStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/runs/"+runID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var st RunStatus
	if err := c.do(httpReq, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, out)
}

func (c *Client) do(httpReq *http.Request, out any) error {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
