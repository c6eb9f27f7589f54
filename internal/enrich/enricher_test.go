package enrich

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/azar84/business-directory-cli/internal/directory"
	"github.com/azar84/business-directory-cli/internal/model"
	"github.com/azar84/business-directory-cli/internal/store"
	"github.com/azar84/business-directory-cli/internal/trace"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeRunner completes every submitted job immediately with a canned payload
// per URL.
type fakeRunner struct {
	mu       sync.Mutex
	store    store.Store
	payloads map[string]json.RawMessage
	failures map[string]string
	byJobID  map[string]string
}

func (f *fakeRunner) SubmitWebsite(ctx context.Context, url string) (*model.EnrichmentJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := &model.EnrichmentJob{RemoteID: "remote-" + url, TargetURL: url}
	if err := f.store.CreateJob(ctx, j); err != nil {
		return nil, err
	}
	f.byJobID[j.ID] = url
	return j, nil
}

func (f *fakeRunner) Await(ctx context.Context, jobID string) (*model.EnrichmentJob, error) {
	f.mu.Lock()
	url := f.byJobID[jobID]
	payload, hasPayload := f.payloads[url]
	failure, hasFailure := f.failures[url]
	f.mu.Unlock()

	if hasFailure {
		if err := f.store.UpdateJobState(ctx, jobID, model.JobStateFailed, failure); err != nil {
			return nil, err
		}
		return f.store.GetJob(ctx, jobID)
	}
	if hasPayload {
		if err := f.store.AttachResult(ctx, jobID, payload); err != nil {
			return nil, err
		}
	}
	if err := f.store.UpdateJobState(ctx, jobID, model.JobStateCompleted, ""); err != nil {
		return nil, err
	}
	return f.store.GetJob(ctx, jobID)
}

// fakeResolver records resolutions without a database.
type fakeResolver struct {
	mu       sync.Mutex
	nextID   int64
	resolved []string
}

func (f *fakeResolver) Resolve(_ context.Context, rec *model.NormalizedEnrichmentRecord, opts directory.Options) (*directory.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, rec.Company.Website)

	if !rec.Analysis.BusinessConfirmed() {
		return &directory.Outcome{Skipped: true, SkipReason: "classified as not a business"}, nil
	}
	if rec.Analysis.Confidence < opts.MinConfidence {
		return &directory.Outcome{Skipped: true, SkipReason: "below confidence threshold"}, nil
	}
	f.nextID++
	return &directory.Outcome{CompanyID: f.nextID, Created: true}, nil
}

// memRecorder is an in-memory TraceRecorder.
type memRecorder struct {
	mu             sync.Mutex
	nextID         int64
	searches       []string
	searchResults  []trace.SearchResult
	verdicts       []trace.ProcessingResult
	completedProcs map[int64][3]int
	failedProcs    []int64
}

func newMemRecorder() *memRecorder {
	return &memRecorder{completedProcs: make(map[int64][3]int)}
}

func (m *memRecorder) next() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRecorder) StartSearch(_ context.Context, query, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, query)
	return m.next(), nil
}

func (m *memRecorder) AddSearchResult(_ context.Context, _ int64, res trace.SearchResult) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchResults = append(m.searchResults, res)
	return m.next(), nil
}

func (m *memRecorder) CompleteSearch(_ context.Context, _ int64, _ int) error { return nil }

func (m *memRecorder) StartProcessing(_ context.Context, _ *int64, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next(), nil
}

func (m *memRecorder) RecordVerdict(_ context.Context, res trace.ProcessingResult) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verdicts = append(m.verdicts, res)
	return m.next(), nil
}

func (m *memRecorder) CompleteProcessing(_ context.Context, sessionID int64, a, r, e int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completedProcs[sessionID] = [3]int{a, r, e}
	return nil
}

func (m *memRecorder) FailProcessing(_ context.Context, sessionID int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedProcs = append(m.failedProcs, sessionID)
	return nil
}

const businessPayload = `{
	"data": {
		"company": {"name": "Acme Plumbing", "website": "https://acme.com"},
		"contact": {"emails": ["info@acme.com"]},
		"analysis": {"isBusiness": true, "confidence": 0.93}
	}
}`

const nonBusinessPayload = `{
	"data": {
		"company": {"name": "Some Blog", "website": "https://blog.example.com"},
		"contact": {},
		"analysis": {"isBusiness": false, "confidence": 0.88}
	}
}`

func newTestEnricher(t *testing.T, runner *fakeRunner, recorder TraceRecorder) (*Enricher, *fakeResolver, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	runner.store = st
	runner.byJobID = make(map[string]string)
	resolver := &fakeResolver{}
	e := New(Config{
		Jobs:          runner,
		Resolver:      resolver,
		Store:         st,
		Recorder:      recorder,
		ResolveOpts:   directory.Options{MinConfidence: 0.7},
		MaxConcurrent: 2,
	})
	return e, resolver, st
}

func TestEnrichWebsite_Accepted(t *testing.T) {
	runner := &fakeRunner{payloads: map[string]json.RawMessage{
		"https://acme.com": json.RawMessage(businessPayload),
	}}
	e, resolver, _ := newTestEnricher(t, runner, nil)

	res, err := e.EnrichWebsite(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, model.JobStateCompleted, res.State)
	assert.Equal(t, "wrapped", res.Shape)
	assert.InDelta(t, 0.93, res.Confidence, 0.001)
	require.NotNil(t, res.Outcome)
	assert.True(t, res.Outcome.Created)
	assert.Equal(t, []string{"https://acme.com"}, resolver.resolved)
}

func TestEnrichWebsite_UnrecognizedShapeFlagsReview(t *testing.T) {
	runner := &fakeRunner{payloads: map[string]json.RawMessage{
		"https://odd.com": json.RawMessage(`{"unexpected": {"stuff": 1}}`),
	}}
	e, resolver, st := newTestEnricher(t, runner, nil)

	res, err := e.EnrichWebsite(context.Background(), "https://odd.com")
	require.NoError(t, err)
	assert.True(t, res.FlaggedForReview)
	assert.Nil(t, res.Outcome)
	assert.Empty(t, resolver.resolved, "unparseable payloads never reach the resolver")

	j, err := st.GetJob(context.Background(), res.JobID)
	require.NoError(t, err)
	assert.True(t, j.NeedsReview)
}

func TestEnrichWebsite_FailedJob(t *testing.T) {
	runner := &fakeRunner{failures: map[string]string{
		"https://down.com": "crawl blocked",
	}}
	e, _, _ := newTestEnricher(t, runner, nil)

	res, err := e.EnrichWebsite(context.Background(), "https://down.com")
	require.NoError(t, err)
	assert.Equal(t, model.JobStateFailed, res.State)
	assert.Equal(t, "crawl blocked", res.Error)
	assert.Nil(t, res.Outcome)
}

func TestProcessResults_RecordsFullTrail(t *testing.T) {
	runner := &fakeRunner{
		payloads: map[string]json.RawMessage{
			"https://acme.com":         json.RawMessage(businessPayload),
			"https://blog.example.com": json.RawMessage(nonBusinessPayload),
		},
		failures: map[string]string{
			"https://down.com": "crawl blocked",
		},
	}
	recorder := newMemRecorder()
	e, _, _ := newTestEnricher(t, runner, recorder)

	results := []model.SearchResult{
		{URL: "https://acme.com", Title: "Acme Plumbing", Position: 1},
		{URL: "https://blog.example.com", Title: "A blog", Position: 2},
		{URL: "https://down.com", Title: "Down", Position: 3},
	}
	summary, err := e.ProcessResults(context.Background(), "plumbers calgary", results)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Accepted)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, 1, summary.Errored)

	assert.Equal(t, []string{"plumbers calgary"}, recorder.searches)
	assert.Len(t, recorder.searchResults, 3)
	require.Len(t, recorder.verdicts, 3)

	byURL := make(map[string]trace.ProcessingResult)
	for _, v := range recorder.verdicts {
		byURL[v.WebsiteURL] = v
	}
	accepted := byURL["https://acme.com"]
	assert.Equal(t, trace.ResultAccepted, accepted.Status)
	require.NotNil(t, accepted.CompanyID, "accepted verdicts link to the company")
	require.NotNil(t, accepted.SearchResultID, "verdicts link back to the search result")

	rejected := byURL["https://blog.example.com"]
	assert.Equal(t, trace.ResultRejected, rejected.Status)
	assert.Equal(t, "classified as not a business", rejected.Reason)

	errored := byURL["https://down.com"]
	assert.Equal(t, trace.ResultError, errored.Status)

	tallies, ok := recorder.completedProcs[summary.ProcessingSessionID]
	require.True(t, ok, "processing session closed with tallies")
	assert.Equal(t, [3]int{1, 1, 1}, tallies)
}

func TestProcessResults_NilRecorder(t *testing.T) {
	runner := &fakeRunner{payloads: map[string]json.RawMessage{
		"https://acme.com": json.RawMessage(businessPayload),
	}}
	e, _, _ := newTestEnricher(t, runner, nil)

	summary, err := e.ProcessResults(context.Background(), "plumbers", []model.SearchResult{
		{URL: "https://acme.com", Position: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Accepted)
	assert.Zero(t, summary.ProcessingSessionID)
}

func TestProcessResults_EmptyBatch(t *testing.T) {
	e, _, _ := newTestEnricher(t, &fakeRunner{}, nil)
	_, err := e.ProcessResults(context.Background(), "q", nil)
	assert.Error(t, err)
}
