// Package job manages the lifecycle of enrichment jobs: submission to the
// classification source, fixed-interval status polling, and local state
// tracking through the lifecycle graph.
package job

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/azar84/business-directory-cli/internal/model"
	"github.com/azar84/business-directory-cli/internal/resilience"
	"github.com/azar84/business-directory-cli/internal/store"
	"github.com/azar84/business-directory-cli/pkg/classifier"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultPollTimeout  = 5 * time.Minute
)

// Manager submits jobs to the classification source and tracks them to a
// terminal state.
type Manager struct {
	client       classifier.Client
	store        store.Store
	pollInterval time.Duration
	pollTimeout  time.Duration
	retry        resilience.RetryConfig
}

// Option configures a Manager.
type Option func(*Manager)

// WithPollInterval overrides the fixed interval between status polls.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithPollTimeout overrides the overall polling deadline, after which a job
// that never reached a terminal remote status is marked timed out.
func WithPollTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollTimeout = d
		}
	}
}

// WithRetryConfig overrides the retry policy for submissions.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(m *Manager) {
		m.retry = cfg
	}
}

// NewManager creates a Manager over the given source client and job store.
func NewManager(client classifier.Client, st store.Store, opts ...Option) *Manager {
	m := &Manager{
		client:       client,
		store:        st,
		pollInterval: defaultPollInterval,
		pollTimeout:  defaultPollTimeout,
		retry:        resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SubmitWebsite submits a single website for classification and persists the
// tracking job. Submission retries transient source errors.
func (m *Manager) SubmitWebsite(ctx context.Context, websiteURL string) (*model.EnrichmentJob, error) {
	resp, err := resilience.DoVal(ctx, m.retry, func(ctx context.Context) (*classifier.SubmitResponse, error) {
		return m.client.SubmitWebsite(ctx, websiteURL)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "job: submit website %s", websiteURL)
	}
	if !resp.Success || resp.JobID == "" {
		return nil, eris.Errorf("job: source rejected submission for %s", websiteURL)
	}

	j := &model.EnrichmentJob{RemoteID: resp.JobID, TargetURL: websiteURL}
	if err := m.store.CreateJob(ctx, j); err != nil {
		return nil, eris.Wrap(err, "job: persist job")
	}
	zap.L().Info("job: submitted website",
		zap.String("job_id", j.ID),
		zap.String("remote_id", j.RemoteID),
		zap.String("website", websiteURL),
	)
	return j, nil
}

// SubmitBatch submits a batch of search results for classification under a
// shared batch reference.
func (m *Manager) SubmitBatch(ctx context.Context, results []model.SearchResult, batchRef string) (*model.EnrichmentJob, error) {
	if len(results) == 0 {
		return nil, eris.New("job: batch is empty")
	}
	resp, err := resilience.DoVal(ctx, m.retry, func(ctx context.Context) (*classifier.SubmitResponse, error) {
		return m.client.SubmitResults(ctx, results)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "job: submit batch %s", batchRef)
	}
	if !resp.Success || resp.JobID == "" {
		return nil, eris.Errorf("job: source rejected batch %s", batchRef)
	}

	j := &model.EnrichmentJob{RemoteID: resp.JobID, BatchRef: batchRef}
	if err := m.store.CreateJob(ctx, j); err != nil {
		return nil, eris.Wrap(err, "job: persist job")
	}
	zap.L().Info("job: submitted batch",
		zap.String("job_id", j.ID),
		zap.String("remote_id", j.RemoteID),
		zap.String("batch_ref", batchRef),
		zap.Int("results", len(results)),
	)
	return j, nil
}

// Await polls the source at a fixed interval until the job reaches a terminal
// state or the poll deadline passes. Transient poll errors are logged and the
// loop continues; only the deadline or a terminal remote status ends it. The
// returned job carries the final state; a failed or timed-out job is not an
// error at this level.
func (m *Manager) Await(ctx context.Context, jobID string) (*model.EnrichmentJob, error) {
	j, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, eris.Wrapf(err, "job: load %s", jobID)
	}
	if j.State.Terminal() {
		return j, nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.pollTimeout)
		defer cancel()
	}

	for {
		status, err := m.client.GetStatus(ctx, j.RemoteID)
		switch {
		case err == nil:
			done, err := m.applyStatus(ctx, j, status)
			if err != nil {
				return nil, err
			}
			if done {
				return m.store.GetJob(ctx, j.ID)
			}
		case resilience.IsTransient(err):
			zap.L().Warn("job: transient poll error, will retry",
				zap.String("job_id", j.ID),
				zap.Error(err),
			)
		default:
			if err := m.markTerminal(ctx, j.ID, model.JobStateFailed, err.Error()); err != nil {
				return nil, err
			}
			return m.store.GetJob(ctx, j.ID)
		}

		select {
		case <-ctx.Done():
			// A deadline means the poll budget ran out; plain cancellation
			// means the caller gave up on the job.
			state, msg := model.JobStateTimedOut, "no terminal status within poll timeout"
			if errors.Is(ctx.Err(), context.Canceled) {
				state, msg = model.JobStateCancelled, "cancelled before reaching a terminal status"
			}
			if err := m.markTerminal(context.WithoutCancel(ctx), j.ID, state, msg); err != nil {
				return nil, err
			}
			return m.store.GetJob(context.WithoutCancel(ctx), j.ID)
		case <-time.After(m.pollInterval):
		}
	}
}

// applyStatus maps one remote status observation onto the local job. It
// reports whether the job reached a terminal state.
func (m *Manager) applyStatus(ctx context.Context, j *model.EnrichmentJob, status *classifier.StatusResponse) (bool, error) {
	// Progress hints are recorded regardless of state and never drive
	// transitions.
	if status.Progress > 0 || status.Position > 0 {
		if err := m.store.UpdateJobProgress(ctx, j.ID, status.Progress, status.Position); err != nil {
			return false, err
		}
	}

	switch status.Status {
	case classifier.StatusQueued:
		return false, nil
	case classifier.StatusProcessing:
		if err := m.store.UpdateJobState(ctx, j.ID, model.JobStateProcessing, ""); err != nil {
			return false, err
		}
		return false, nil
	case classifier.StatusCompleted:
		if len(status.Result) > 0 {
			if err := m.store.AttachResult(ctx, j.ID, status.Result); err != nil {
				return false, err
			}
		}
		if err := m.markTerminal(ctx, j.ID, model.JobStateCompleted, ""); err != nil {
			return false, err
		}
		return true, nil
	case classifier.StatusFailed:
		if err := m.markTerminal(ctx, j.ID, model.JobStateFailed, status.Error); err != nil {
			return false, err
		}
		return true, nil
	default:
		zap.L().Warn("job: unknown remote status ignored",
			zap.String("job_id", j.ID),
			zap.String("status", status.Status),
		)
		return false, nil
	}
}

func (m *Manager) markTerminal(ctx context.Context, jobID string, state model.JobState, errMsg string) error {
	if err := m.store.UpdateJobState(ctx, jobID, state, errMsg); err != nil {
		return eris.Wrapf(err, "job: mark %s %s", jobID, state)
	}
	zap.L().Info("job: reached terminal state",
		zap.String("job_id", jobID),
		zap.String("state", string(state)),
	)
	return nil
}

// Cancel marks a job cancelled locally. The source offers no cancellation
// endpoint, so the remote job runs to completion and its result is discarded.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	if err := m.store.UpdateJobState(ctx, jobID, model.JobStateCancelled, "cancelled by operator"); err != nil {
		return eris.Wrapf(err, "job: cancel %s", jobID)
	}
	zap.L().Info("job: cancelled", zap.String("job_id", jobID))
	return nil
}
