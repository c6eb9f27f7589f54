// Package enrich orchestrates the pipeline end to end: job submission and
// polling, payload normalization, directory resolution, and provenance
// recording.
package enrich

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/azar84/business-directory-cli/internal/directory"
	"github.com/azar84/business-directory-cli/internal/model"
	"github.com/azar84/business-directory-cli/internal/normalize"
	"github.com/azar84/business-directory-cli/internal/store"
	"github.com/azar84/business-directory-cli/internal/trace"
)

// JobRunner submits and awaits enrichment jobs.
type JobRunner interface {
	SubmitWebsite(ctx context.Context, websiteURL string) (*model.EnrichmentJob, error)
	Await(ctx context.Context, jobID string) (*model.EnrichmentJob, error)
}

// RecordResolver upserts normalized records into the directory.
type RecordResolver interface {
	Resolve(ctx context.Context, rec *model.NormalizedEnrichmentRecord, opts directory.Options) (*directory.Outcome, error)
}

// TraceRecorder records the provenance chain. A nil recorder disables
// tracing (the sqlite driver has no trace tables).
type TraceRecorder interface {
	StartSearch(ctx context.Context, query, source string) (int64, error)
	AddSearchResult(ctx context.Context, sessionID int64, res trace.SearchResult) (int64, error)
	CompleteSearch(ctx context.Context, sessionID int64, resultCount int) error
	StartProcessing(ctx context.Context, searchSessionID *int64, jobRef string) (int64, error)
	RecordVerdict(ctx context.Context, res trace.ProcessingResult) (int64, error)
	CompleteProcessing(ctx context.Context, sessionID int64, accepted, rejected, errored int) error
	FailProcessing(ctx context.Context, sessionID int64, reason string) error
}

// Result is the per-website outcome of one enrichment.
type Result struct {
	WebsiteURL       string             `json:"website_url"`
	JobID            string             `json:"job_id,omitempty"`
	State            model.JobState     `json:"state,omitempty"`
	Shape            string             `json:"shape,omitempty"`
	Confidence       float64            `json:"confidence,omitempty"`
	FlaggedForReview bool               `json:"flagged_for_review,omitempty"`
	Outcome          *directory.Outcome `json:"outcome,omitempty"`
	Error            string             `json:"error,omitempty"`
}

// BatchSummary aggregates a batch run.
type BatchSummary struct {
	ProcessingSessionID int64    `json:"processing_session_id,omitempty"`
	Total               int      `json:"total"`
	Accepted            int      `json:"accepted"`
	Rejected            int      `json:"rejected"`
	Errored             int      `json:"errored"`
	Results             []Result `json:"results"`
}

// Enricher wires the pipeline stages together.
type Enricher struct {
	jobs          JobRunner
	resolver      RecordResolver
	store         store.Store
	recorder      TraceRecorder
	resolveOpts   directory.Options
	maxConcurrent int
}

// Config assembles an Enricher.
type Config struct {
	Jobs     JobRunner
	Resolver RecordResolver
	Store    store.Store
	// Recorder may be nil to disable provenance recording.
	Recorder      TraceRecorder
	ResolveOpts   directory.Options
	MaxConcurrent int
}

// New creates an Enricher.
func New(cfg Config) *Enricher {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	return &Enricher{
		jobs:          cfg.Jobs,
		resolver:      cfg.Resolver,
		store:         cfg.Store,
		recorder:      cfg.Recorder,
		resolveOpts:   cfg.ResolveOpts,
		maxConcurrent: maxConcurrent,
	}
}

// EnrichWebsite runs the full pipeline for a single website: submit, poll to
// a terminal state, normalize the payload, and resolve it into the
// directory. A job that fails, times out, or produces an unrecognizable
// payload yields a Result describing that, not an error; errors are reserved
// for infrastructure faults.
func (e *Enricher) EnrichWebsite(ctx context.Context, websiteURL string) (*Result, error) {
	j, err := e.jobs.SubmitWebsite(ctx, websiteURL)
	if err != nil {
		return nil, err
	}

	final, err := e.jobs.Await(ctx, j.ID)
	if err != nil {
		return nil, err
	}

	res := &Result{WebsiteURL: websiteURL, JobID: final.ID, State: final.State}
	if final.State != model.JobStateCompleted {
		res.Error = final.Error
		return res, nil
	}

	rec, shape, err := normalize.Record(final.Result)
	if err != nil {
		if !eris.Is(err, normalize.ErrUnrecognizedShape) {
			return nil, eris.Wrapf(err, "enrich: normalize payload for job %s", final.ID)
		}
		if err := e.store.FlagForReview(ctx, final.ID, "unrecognized payload shape"); err != nil {
			return nil, err
		}
		zap.L().Warn("enrich: payload flagged for review",
			zap.String("job_id", final.ID),
			zap.String("website", websiteURL),
		)
		res.FlaggedForReview = true
		return res, nil
	}
	res.Shape = shape
	res.Confidence = rec.Analysis.Confidence

	outcome, err := e.resolver.Resolve(ctx, rec, e.resolveOpts)
	if err != nil {
		return nil, err
	}
	res.Outcome = outcome
	return res, nil
}

// ProcessResults classifies a batch of search results and resolves the
// accepted ones, with bounded concurrency. When a recorder is configured the
// run is recorded as one search session plus one processing session; rerunning
// the same batch later opens a fresh processing session.
func (e *Enricher) ProcessResults(ctx context.Context, query string, results []model.SearchResult) (*BatchSummary, error) {
	if len(results) == 0 {
		return nil, eris.New("enrich: no search results to process")
	}

	var searchID int64
	searchResultIDs := make([]int64, len(results))
	if e.recorder != nil {
		var err error
		searchID, err = e.recorder.StartSearch(ctx, query, "search")
		if err != nil {
			return nil, err
		}
		for i, sr := range results {
			id, err := e.recorder.AddSearchResult(ctx, searchID, trace.SearchResult{
				URL:      sr.URL,
				Title:    sr.Title,
				Snippet:  sr.Snippet,
				Position: sr.Position,
			})
			if err != nil {
				return nil, err
			}
			searchResultIDs[i] = id
		}
		if err := e.recorder.CompleteSearch(ctx, searchID, len(results)); err != nil {
			return nil, err
		}
	}

	summary := &BatchSummary{Total: len(results), Results: make([]Result, len(results))}
	if e.recorder != nil {
		procID, err := e.recorder.StartProcessing(ctx, &searchID, query)
		if err != nil {
			return nil, err
		}
		summary.ProcessingSessionID = procID
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)
	for i, sr := range results {
		g.Go(func() error {
			res, err := e.EnrichWebsite(gctx, sr.URL)
			if err != nil {
				res = &Result{WebsiteURL: sr.URL, Error: err.Error()}
			}
			summary.Results[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if e.recorder != nil {
			_ = e.recorder.FailProcessing(ctx, summary.ProcessingSessionID, err.Error())
		}
		return nil, err
	}

	for i := range summary.Results {
		res := &summary.Results[i]
		status, reason := verdictFor(res)
		switch status {
		case trace.ResultAccepted:
			summary.Accepted++
		case trace.ResultRejected:
			summary.Rejected++
		default:
			summary.Errored++
		}

		if e.recorder == nil {
			continue
		}
		pr := trace.ProcessingResult{
			ProcessingSessionID: summary.ProcessingSessionID,
			WebsiteURL:          res.WebsiteURL,
			Status:              status,
			Reason:              reason,
			Confidence:          res.Confidence,
		}
		if id := searchResultIDs[i]; id != 0 {
			pr.SearchResultID = &id
		}
		if res.Outcome != nil && res.Outcome.CompanyID != 0 {
			companyID := res.Outcome.CompanyID
			pr.CompanyID = &companyID
		}
		if _, err := e.recorder.RecordVerdict(ctx, pr); err != nil {
			return nil, err
		}
	}

	if e.recorder != nil {
		if err := e.recorder.CompleteProcessing(ctx, summary.ProcessingSessionID,
			summary.Accepted, summary.Rejected, summary.Errored); err != nil {
			return nil, err
		}
	}

	zap.L().Info("enrich: batch processed",
		zap.String("query", query),
		zap.Int("total", summary.Total),
		zap.Int("accepted", summary.Accepted),
		zap.Int("rejected", summary.Rejected),
		zap.Int("errored", summary.Errored),
	)
	return summary, nil
}

func verdictFor(res *Result) (status, reason string) {
	switch {
	case res.Outcome != nil && (res.Outcome.Created || res.Outcome.Updated):
		return trace.ResultAccepted, ""
	case res.Outcome != nil && res.Outcome.Skipped:
		return trace.ResultRejected, res.Outcome.SkipReason
	case res.FlaggedForReview:
		return trace.ResultError, "unrecognized payload shape"
	case res.Error != "":
		return trace.ResultError, res.Error
	default:
		return trace.ResultError, fmt.Sprintf("job ended in state %s", res.State)
	}
}
