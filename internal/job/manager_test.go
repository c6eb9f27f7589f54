package job

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/azar84/business-directory-cli/internal/model"
	"github.com/azar84/business-directory-cli/internal/resilience"
	"github.com/azar84/business-directory-cli/internal/store"
	"github.com/azar84/business-directory-cli/pkg/classifier"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeClient serves a scripted sequence of status responses.
type fakeClient struct {
	mu            sync.Mutex
	submitResp    *classifier.SubmitResponse
	submitErrs    []error
	statuses      []statusStep
	statusCalls   int
	submittedURLs []string
}

type statusStep struct {
	resp *classifier.StatusResponse
	err  error
}

func (f *fakeClient) SubmitWebsite(_ context.Context, url string) (*classifier.SubmitResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submittedURLs = append(f.submittedURLs, url)
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		return nil, err
	}
	return f.submitResp, nil
}

func (f *fakeClient) SubmitResults(_ context.Context, _ []model.SearchResult) (*classifier.SubmitResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitResp, nil
}

func (f *fakeClient) GetStatus(_ context.Context, _ string) (*classifier.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	step := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return step.resp, step.err
}

func newTestManager(t *testing.T, client classifier.Client) (*Manager, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	m := NewManager(client, st,
		WithPollInterval(5*time.Millisecond),
		WithPollTimeout(500*time.Millisecond),
		WithRetryConfig(resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		}),
	)
	return m, st
}

func TestSubmitWebsite(t *testing.T) {
	client := &fakeClient{submitResp: &classifier.SubmitResponse{Success: true, JobID: "remote-1"}}
	m, st := newTestManager(t, client)

	j, err := m.SubmitWebsite(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, "remote-1", j.RemoteID)
	assert.Equal(t, model.JobStateQueued, j.State)

	stored, err := st.GetJob(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://acme.com", stored.TargetURL)
}

func TestSubmitWebsite_RetriesTransient(t *testing.T) {
	client := &fakeClient{
		submitResp: &classifier.SubmitResponse{Success: true, JobID: "remote-1"},
		submitErrs: []error{resilience.NewTransientError(eris.New("bad gateway"), 502)},
	}
	m, _ := newTestManager(t, client)

	j, err := m.SubmitWebsite(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, "remote-1", j.RemoteID)
	assert.Len(t, client.submittedURLs, 2, "first attempt failed, second succeeded")
}

func TestSubmitWebsite_Rejected(t *testing.T) {
	client := &fakeClient{submitResp: &classifier.SubmitResponse{Success: false}}
	m, _ := newTestManager(t, client)

	_, err := m.SubmitWebsite(context.Background(), "https://acme.com")
	assert.Error(t, err)
}

func TestAwait_CompletesWithResult(t *testing.T) {
	payload := json.RawMessage(`{"data":{"company":{"name":"Acme"},"contactInformation":{}}}`)
	client := &fakeClient{
		submitResp: &classifier.SubmitResponse{Success: true, JobID: "remote-1"},
		statuses: []statusStep{
			{resp: &classifier.StatusResponse{Status: classifier.StatusQueued, Position: 2}},
			{resp: &classifier.StatusResponse{Status: classifier.StatusProcessing, Progress: 50}},
			{resp: &classifier.StatusResponse{Status: classifier.StatusCompleted, Progress: 100, Result: payload}},
		},
	}
	m, _ := newTestManager(t, client)

	j, err := m.SubmitWebsite(context.Background(), "https://acme.com")
	require.NoError(t, err)

	final, err := m.Await(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateCompleted, final.State)
	assert.JSONEq(t, string(payload), string(final.Result))
	require.NotNil(t, final.CompletedAt)
}

func TestAwait_RemoteFailure(t *testing.T) {
	client := &fakeClient{
		submitResp: &classifier.SubmitResponse{Success: true, JobID: "remote-1"},
		statuses: []statusStep{
			{resp: &classifier.StatusResponse{Status: classifier.StatusFailed, Error: "crawl blocked"}},
		},
	}
	m, _ := newTestManager(t, client)

	j, err := m.SubmitWebsite(context.Background(), "https://acme.com")
	require.NoError(t, err)

	final, err := m.Await(context.Background(), j.ID)
	require.NoError(t, err, "a failed job is a state, not an error")
	assert.Equal(t, model.JobStateFailed, final.State)
	assert.Equal(t, "crawl blocked", final.Error)
}

func TestAwait_ToleratesTransientPollErrors(t *testing.T) {
	client := &fakeClient{
		submitResp: &classifier.SubmitResponse{Success: true, JobID: "remote-1"},
		statuses: []statusStep{
			{err: resilience.NewTransientError(eris.New("gateway timeout"), 504)},
			{err: resilience.NewTransientError(eris.New("gateway timeout"), 504)},
			{resp: &classifier.StatusResponse{Status: classifier.StatusCompleted}},
		},
	}
	m, _ := newTestManager(t, client)

	j, err := m.SubmitWebsite(context.Background(), "https://acme.com")
	require.NoError(t, err)

	final, err := m.Await(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateCompleted, final.State)
	assert.GreaterOrEqual(t, client.statusCalls, 3)
}

func TestAwait_PermanentPollErrorFailsJob(t *testing.T) {
	client := &fakeClient{
		submitResp: &classifier.SubmitResponse{Success: true, JobID: "remote-1"},
		statuses: []statusStep{
			{err: eris.New("classifier: HTTP 404: job not found")},
		},
	}
	m, _ := newTestManager(t, client)

	j, err := m.SubmitWebsite(context.Background(), "https://acme.com")
	require.NoError(t, err)

	final, err := m.Await(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateFailed, final.State)
	assert.Contains(t, final.Error, "404")
}

func TestAwait_TimesOut(t *testing.T) {
	client := &fakeClient{
		submitResp: &classifier.SubmitResponse{Success: true, JobID: "remote-1"},
		statuses: []statusStep{
			{resp: &classifier.StatusResponse{Status: classifier.StatusProcessing, Progress: 10}},
		},
	}
	m, _ := newTestManager(t, client)
	m.pollTimeout = 30 * time.Millisecond

	j, err := m.SubmitWebsite(context.Background(), "https://acme.com")
	require.NoError(t, err)

	final, err := m.Await(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateTimedOut, final.State)
}

func TestAwait_CallerCancellationMarksCancelled(t *testing.T) {
	client := &fakeClient{
		submitResp: &classifier.SubmitResponse{Success: true, JobID: "remote-1"},
		statuses: []statusStep{
			{resp: &classifier.StatusResponse{Status: classifier.StatusProcessing, Progress: 10}},
		},
	}
	m, _ := newTestManager(t, client)

	j, err := m.SubmitWebsite(context.Background(), "https://acme.com")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	final, err := m.Await(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateCancelled, final.State, "caller giving up is not a timeout")
}

func TestAwait_AlreadyTerminal(t *testing.T) {
	client := &fakeClient{submitResp: &classifier.SubmitResponse{Success: true, JobID: "remote-1"}}
	m, st := newTestManager(t, client)

	j, err := m.SubmitWebsite(context.Background(), "https://acme.com")
	require.NoError(t, err)
	require.NoError(t, st.UpdateJobState(context.Background(), j.ID, model.JobStateCancelled, ""))

	final, err := m.Await(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateCancelled, final.State)
	assert.Zero(t, client.statusCalls, "terminal jobs are not polled")
}

func TestCancel(t *testing.T) {
	client := &fakeClient{submitResp: &classifier.SubmitResponse{Success: true, JobID: "remote-1"}}
	m, st := newTestManager(t, client)

	j, err := m.SubmitWebsite(context.Background(), "https://acme.com")
	require.NoError(t, err)
	require.NoError(t, m.Cancel(context.Background(), j.ID))

	got, err := st.GetJob(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateCancelled, got.State)
}

func TestCancel_CompletedJobRejected(t *testing.T) {
	client := &fakeClient{submitResp: &classifier.SubmitResponse{Success: true, JobID: "remote-1"}}
	m, st := newTestManager(t, client)

	j, err := m.SubmitWebsite(context.Background(), "https://acme.com")
	require.NoError(t, err)
	require.NoError(t, st.UpdateJobState(context.Background(), j.ID, model.JobStateCompleted, ""))

	err = m.Cancel(context.Background(), j.ID)
	require.Error(t, err)
	assert.True(t, eris.Is(err, store.ErrInvalidTransition))
}
