// Package classifier is the HTTP client for the external classification
// source. The source inspects a website (or a batch of search hits) and
// returns a job handle; results are fetched through a polled status endpoint.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/azar84/business-directory-cli/internal/model"
	"github.com/azar84/business-directory-cli/internal/resilience"
)

// Remote job statuses reported by the status endpoint.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Client defines the classification source operations.
type Client interface {
	SubmitWebsite(ctx context.Context, websiteURL string) (*SubmitResponse, error)
	SubmitResults(ctx context.Context, results []model.SearchResult) (*SubmitResponse, error)
	GetStatus(ctx context.Context, jobID string) (*StatusResponse, error)
}

// SubmitResponse is returned synchronously on submission.
type SubmitResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
}

// StatusResponse is the polled status of a remote job. Result is kept raw:
// its shape varies across source versions and is decoded by the normalizer.
type StatusResponse struct {
	Status   string          `json:"status"`
	Progress int             `json:"progress"`
	Position int             `json:"position,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// APIError is returned when the source responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("classifier: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second. Polling shares the same
// limiter as submissions.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a classification source client.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SubmitWebsite(ctx context.Context, websiteURL string) (*SubmitResponse, error) {
	if websiteURL == "" {
		return nil, eris.New("classifier: website url is required")
	}
	body := map[string]any{"websiteUrl": websiteURL}
	var resp SubmitResponse
	if err := c.post(ctx, "/jobs", body, &resp); err != nil {
		return nil, eris.Wrap(err, "classifier: submit website")
	}
	return &resp, nil
}

func (c *httpClient) SubmitResults(ctx context.Context, results []model.SearchResult) (*SubmitResponse, error) {
	if len(results) == 0 {
		return nil, eris.New("classifier: at least one search result is required")
	}
	body := map[string]any{"searchResults": results}
	var resp SubmitResponse
	if err := c.post(ctx, "/jobs/batch", body, &resp); err != nil {
		return nil, eris.Wrap(err, "classifier: submit results")
	}
	return &resp, nil
}

func (c *httpClient) GetStatus(ctx context.Context, jobID string) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.get(ctx, fmt.Sprintf("/jobs/%s", jobID), &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("classifier: get status %s", jobID))
	}
	return &resp, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(ctx, req, out)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(ctx, req, out)
}

func (c *httpClient) do(ctx context.Context, req *http.Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "rate limit wait")
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(data)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}

	return nil
}
