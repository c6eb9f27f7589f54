package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azar84/business-directory-cli/internal/model"
	"github.com/azar84/business-directory-cli/internal/resilience"
)

func TestSubmitWebsite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/jobs", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://example.com", body["websiteUrl"])

		json.NewEncoder(w).Encode(SubmitResponse{Success: true, JobID: "job-1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	resp, err := c.SubmitWebsite(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "job-1", resp.JobID)
}

func TestSubmitWebsite_EmptyURL(t *testing.T) {
	c := NewClient("http://unused", "k")
	_, err := c.SubmitWebsite(context.Background(), "")
	assert.Error(t, err)
}

func TestSubmitResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs/batch", r.URL.Path)

		var body struct {
			SearchResults []model.SearchResult `json:"searchResults"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.SearchResults, 2)
		assert.Equal(t, "https://acme.com", body.SearchResults[0].URL)

		json.NewEncoder(w).Encode(SubmitResponse{Success: true, JobID: "batch-1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	resp, err := c.SubmitResults(context.Background(), []model.SearchResult{
		{URL: "https://acme.com", Query: "plumbers calgary"},
		{URL: "https://example.org", Query: "plumbers calgary"},
	})
	require.NoError(t, err)
	assert.Equal(t, "batch-1", resp.JobID)
}

func TestSubmitResults_Empty(t *testing.T) {
	c := NewClient("http://unused", "k")
	_, err := c.SubmitResults(context.Background(), nil)
	assert.Error(t, err)
}

func TestGetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs/job-9", r.URL.Path)
		json.NewEncoder(w).Encode(StatusResponse{
			Status:   StatusProcessing,
			Progress: 40,
			Position: 2,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	status, err := c.GetStatus(context.Background(), "job-9")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, status.Status)
	assert.Equal(t, 40, status.Progress)
	assert.Equal(t, 2, status.Position)
}

func TestGetStatus_TransientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	_, err := c.GetStatus(context.Background(), "job-9")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err), "5xx must be retryable")
}

func TestGetStatus_PermanentClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such job", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	_, err := c.GetStatus(context.Background(), "gone")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err), "404 must not be retryable")
}
