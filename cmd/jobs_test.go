package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azar84/business-directory-cli/internal/model"
)

func TestFormatJobsList(t *testing.T) {
	jobs := []model.EnrichmentJob{
		{
			ID:        "11111111-2222-3333-4444-555555555555",
			TargetURL: "https://acme.com",
			State:     model.JobStateCompleted,
			Progress:  100,
			CreatedAt: time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC),
		},
		{
			ID:          "66666666-7777-8888-9999-000000000000",
			BatchRef:    "batch-42",
			State:       model.JobStateProcessing,
			NeedsReview: true,
			CreatedAt:   time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	formatJobsList(&buf, jobs)
	out := buf.String()

	assert.Contains(t, out, "11111111")
	assert.NotContains(t, out, "2222-3333", "IDs are truncated for display")
	assert.Contains(t, out, "https://acme.com")
	assert.Contains(t, out, "batch:batch-42")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "yes")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "12345678", truncateID("123456789abc"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestReadSearchResults_Array(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"url": "https://acme.com", "title": "Acme", "position": 1},
		{"url": "https://other.com", "position": 2}
	]`), 0o644))

	results, err := readSearchResults(path)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://acme.com", results[0].URL)
}

func TestReadSearchResults_Wrapped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"results": [{"url": "https://acme.com"}]}`), 0o644))

	results, err := readSearchResults(path)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestReadSearchResults_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o644))

	_, err := readSearchResults(path)
	assert.Error(t, err)
}
